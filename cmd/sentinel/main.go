// Sentinel - In-Process Threat Detection and Response
// Copyright 2026 ClipDeck Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clipdeck/sentinel

// Package main is the entry point for the Sentinel server.
//
// Sentinel is an in-process threat detection and response pipeline for
// multi-tenant APIs. Every inbound request passes through the IP
// lists, the rate guard, the WAF inspector and the behavior profiler;
// signals are folded into a per-IP threat record, and crossing the
// auto-block threshold hands the IP to the incident responder.
//
// Components start in this order:
//
//  1. Configuration: koanf v2 layering defaults, config file and
//     SENTINEL_* environment variables
//  2. Logging: global zerolog logger
//  3. Detection components: IP lists, rate guard, WAF, profiler,
//     aggregator
//  4. Audit trail: async PII-masked trail over the in-memory store
//  5. Incident response: responder plus the alert dispatcher
//  6. HTTP server: admin API, metrics, and the protected route behind
//     the pipeline
//
// Shutdown on SIGINT/SIGTERM is graceful: the supervisor tree stops
// its services, in-flight requests get the configured grace period,
// and the audit trail drains its buffer before exit.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/clipdeck/sentinel/internal/api"
	"github.com/clipdeck/sentinel/internal/audit"
	"github.com/clipdeck/sentinel/internal/auth"
	"github.com/clipdeck/sentinel/internal/behavior"
	"github.com/clipdeck/sentinel/internal/config"
	"github.com/clipdeck/sentinel/internal/incident"
	"github.com/clipdeck/sentinel/internal/iplist"
	"github.com/clipdeck/sentinel/internal/logging"
	"github.com/clipdeck/sentinel/internal/middleware"
	"github.com/clipdeck/sentinel/internal/rateguard"
	"github.com/clipdeck/sentinel/internal/supervisor"
	"github.com/clipdeck/sentinel/internal/supervisor/services"
	"github.com/clipdeck/sentinel/internal/threat"
	"github.com/clipdeck/sentinel/internal/waf"
)

// Version information, set at build time via ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	if err := run(); err != nil {
		logging.Error().Err(err).Msg("sentinel exited with error")
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	logging.Info().
		Str("version", version).
		Str("commit", commit).
		Str("listen", cfg.Server.Listen).
		Msg("starting sentinel")

	// Detection components.
	lists := iplist.NewStore(&cfg.Lists)

	aggregator := threat.NewAggregator(threat.Config{
		AutoBlockHighCount: cfg.Threat.AutoBlockHighCount,
		RecordTTL:          cfg.Threat.RecordTTL,
	})

	store := audit.NewMemoryStore(cfg.Audit.MaxEntries)
	trail := audit.NewTrail(store, audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
	})
	defer func() {
		if err := trail.Close(); err != nil {
			logging.Error().Err(err).Msg("audit trail close failed")
		}
	}()

	guard := rateguard.New(rateguard.Config{
		MaxPerSecond:  cfg.DDoS.MaxPerSecond,
		MaxPerMinute:  cfg.DDoS.MaxPerMinute,
		BlockDuration: cfg.DDoS.BlockDuration,
	}, rateguard.WithBlockHook(func(entry rateguard.BlockEntry) {
		trail.Append(audit.Entry{
			Action:       "rate.block_created",
			ResourceType: "rate_block",
			ResourceID:   entry.IP,
			Metadata: map[string]interface{}{
				"reason":     entry.Reason,
				"unblock_at": entry.UnblockAt,
			},
			IPAddress: entry.IP,
		})
	}))

	customRules, err := compileCustomRules(cfg.WAF.CustomRules)
	if err != nil {
		return fmt.Errorf("compile waf rules: %w", err)
	}
	inspector := waf.NewInspector(customRules...)

	profiler := behavior.NewProfiler(behavior.Config{
		Enabled:               cfg.Anomaly.Enabled,
		FailedLoginThreshold:  cfg.Anomaly.FailedLoginThreshold,
		FailedLoginWindow:     cfg.Anomaly.FailedLoginWindow,
		RapidRequestThreshold: cfg.Anomaly.RapidRequestThreshold,
		ProfileTTL:            cfg.Anomaly.ProfileTTL,
	})

	// Incident response.
	rotator := auth.NewVersionStore()
	dispatcher := incident.NewDispatcher(incident.DispatcherConfig{
		QueueSize:      cfg.Incident.QueueSize,
		ChannelTimeout: cfg.Incident.DispatchTimeout,
	}, buildChannels(cfg)...)
	responder := incident.NewResponder(trail, lists, guard, rotator, nil, dispatcher)

	// HTTP surface.
	pipeline := middleware.NewPipeline(cfg, lists, guard, inspector, profiler, aggregator, responder, trail, nil)
	handlers := api.NewHandlers(trail, lists, guard, profiler, aggregator, responder)
	router := api.NewRouter(cfg, handlers, pipeline, nil)

	server := &http.Server{
		Addr:    cfg.Server.Listen,
		Handler: router.Setup(),
	}

	// Supervision.
	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	tree.AddDetectionService(services.NewSweepService("rateguard-sweep", cfg.DDoS.CleanupInterval, func() int {
		counters, blocks := guard.Sweep()
		return counters + blocks
	}))
	tree.AddDetectionService(services.NewSweepService("threat-sweep", cfg.Threat.SweepInterval, aggregator.Sweep))
	tree.AddDetectionService(services.NewSweepService("profile-sweep", cfg.Anomaly.SweepInterval, profiler.Sweep))
	tree.AddAlertingService(services.NewDispatcherService(dispatcher))
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = tree.Serve(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("supervisor: %w", err)
	}

	logging.Info().Msg("sentinel stopped")
	return nil
}

// compileCustomRules turns configured rules into compiled WAF rules.
// A bad pattern fails startup rather than silently dropping the rule.
func compileCustomRules(specs []config.CustomRule) ([]waf.Rule, error) {
	rules := make([]waf.Rule, 0, len(specs))
	for _, spec := range specs {
		rule, err := waf.CompileRule(waf.Category(spec.Category), spec.Name, spec.Pattern, threat.Severity(spec.Severity))
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", spec.Name, err)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// buildChannels assembles the alert channels from configuration. The
// console channel is always present; the rest activate when their
// endpoint is set.
func buildChannels(cfg *config.Config) []incident.Channel {
	channels := []incident.Channel{&incident.ConsoleChannel{}}
	channels = append(channels,
		incident.NewWebhookChannel(cfg.Incident.WebhookURL),
		incident.NewSlackChannel(cfg.Incident.SlackWebhookURL),
		incident.NewEmailChannel(cfg.Incident.EmailEndpoint),
		incident.NewSMSChannel(cfg.Incident.SMSEndpoint),
	)
	return channels
}
