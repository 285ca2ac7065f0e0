// Sentinel - In-Process Threat Detection and Response
// Copyright 2026 ClipDeck Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clipdeck/sentinel

// Package config loads and validates the Sentinel configuration.
//
// Configuration is loaded via Koanf v2 with layered sources
// (highest priority wins):
//   - Environment variables (SENTINEL_ prefix)
//   - Config file (config.yaml, or SENTINEL_CONFIG path)
//   - Built-in defaults
//
// Validation runs at startup; an invalid threshold or an unparseable
// WAF pattern is fatal. Degrading silently at runtime is not an option
// for a security control.
package config

import (
	"time"
)

// Config is the root configuration for the Sentinel pipeline.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Logging  LoggingConfig  `koanf:"logging"`
	DDoS     DDoSConfig     `koanf:"ddos"`
	WAF      WAFConfig      `koanf:"waf"`
	Anomaly  AnomalyConfig  `koanf:"anomaly"`
	Threat   ThreatConfig   `koanf:"threat"`
	Incident IncidentConfig `koanf:"incident"`
	Audit    AuditConfig    `koanf:"audit"`
	Admin    AdminConfig    `koanf:"admin"`
	Lists    ListsConfig    `koanf:"lists"`
}

// ListsConfig seeds the allow and deny IP lists. Runtime mutations
// layer on top of these.
type ListsConfig struct {
	Allow []string `koanf:"allow" validate:"dive,ip"`
	Deny  []string `koanf:"deny" validate:"dive,ip"`
}

// AllowedIPs implements the iplist source contract.
func (l *ListsConfig) AllowedIPs() []string { return l.Allow }

// DeniedIPs implements the iplist source contract.
func (l *ListsConfig) DeniedIPs() []string { return l.Deny }

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	// Listen is the address the server binds to.
	Listen string `koanf:"listen" validate:"required"`

	// ShutdownTimeout is the grace period for in-flight requests.
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"min=1s"`
}

// LoggingConfig configures the global logger.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json console"`
}

// DDoSConfig configures the rate guard.
type DDoSConfig struct {
	// Enabled toggles rate tracking and auto-blocking entirely.
	Enabled bool `koanf:"enabled"`

	// MaxPerSecond is the per-IP request ceiling per 1s window.
	MaxPerSecond int `koanf:"max_per_second" validate:"min=1"`

	// MaxPerMinute is the per-IP request ceiling per 60s window.
	MaxPerMinute int `koanf:"max_per_minute" validate:"min=1"`

	// BlockDuration is how long a breaching IP stays blocked.
	BlockDuration time.Duration `koanf:"block_duration" validate:"min=1s"`

	// CleanupInterval is how often stale counters and expired blocks
	// are swept.
	CleanupInterval time.Duration `koanf:"cleanup_interval" validate:"min=1s"`

	// Allowlist IPs bypass tracking and blocking.
	Allowlist []string `koanf:"allowlist" validate:"dive,ip"`
}

// WAFConfig configures request inspection.
type WAFConfig struct {
	Enabled bool `koanf:"enabled"`

	// BlockHighSeverity blocks on high-severity signals. When false,
	// high signals are logged and audited but the request proceeds.
	BlockHighSeverity bool `koanf:"block_high_severity"`

	// Allowlist IPs skip inspection.
	Allowlist []string `koanf:"allowlist" validate:"dive,ip"`

	// CustomRules are appended to the built-in rule table.
	CustomRules []CustomRule `koanf:"custom_rules" validate:"dive"`
}

// CustomRule is an operator-supplied WAF rule.
type CustomRule struct {
	Category string `koanf:"category" validate:"required"`
	Name     string `koanf:"name" validate:"required"`
	Pattern  string `koanf:"pattern" validate:"required"`
	Severity string `koanf:"severity" validate:"oneof=low medium high critical"`
}

// AnomalyConfig configures behavioral anomaly detection.
type AnomalyConfig struct {
	Enabled bool `koanf:"enabled"`

	// FailedLoginThreshold is the failed-login count that flags an
	// account. Inclusive: exactly this many failures triggers.
	FailedLoginThreshold int `koanf:"failed_login_threshold" validate:"min=1"`

	// FailedLoginWindow is the lookback window for failed logins.
	FailedLoginWindow time.Duration `koanf:"failed_login_window" validate:"min=1m"`

	// RapidRequestThreshold is the per-IP request count in 60s above
	// which the rapid-request anomaly fires.
	RapidRequestThreshold int `koanf:"rapid_request_threshold" validate:"min=1"`

	// ProfileTTL is how long an idle profile is retained.
	ProfileTTL time.Duration `koanf:"profile_ttl" validate:"min=1h"`

	// SweepInterval is how often idle profiles are evicted.
	SweepInterval time.Duration `koanf:"sweep_interval" validate:"min=1m"`
}

// ThreatConfig configures the threat aggregator.
type ThreatConfig struct {
	// AutoBlockHighCount is the number of high-severity threats that
	// triggers an automatic block. Count-based, not time-windowed.
	AutoBlockHighCount int `koanf:"auto_block_high_count" validate:"min=1"`

	// RecordTTL is how long an idle threat record is retained.
	RecordTTL time.Duration `koanf:"record_ttl" validate:"min=1h"`

	// SweepInterval is how often idle records are evicted.
	SweepInterval time.Duration `koanf:"sweep_interval" validate:"min=1m"`
}

// IncidentConfig configures incident response and alert dispatch.
type IncidentConfig struct {
	// WebhookURL receives JSON alert payloads. Empty disables the channel.
	WebhookURL string `koanf:"webhook_url" validate:"omitempty,url"`

	// SlackWebhookURL receives Slack-formatted alerts.
	SlackWebhookURL string `koanf:"slack_webhook_url" validate:"omitempty,url"`

	// EmailEndpoint is the mail relay hook. Empty disables the channel.
	EmailEndpoint string `koanf:"email_endpoint" validate:"omitempty,url"`

	// SMSEndpoint is the SMS gateway hook. Empty disables the channel.
	SMSEndpoint string `koanf:"sms_endpoint" validate:"omitempty,url"`

	// DispatchTimeout bounds each channel delivery attempt.
	DispatchTimeout time.Duration `koanf:"dispatch_timeout" validate:"min=1s,max=30s"`

	// QueueSize bounds the background dispatch queue. On overflow the
	// oldest queued alert is dropped.
	QueueSize int `koanf:"queue_size" validate:"min=1"`
}

// AuditConfig configures the audit trail.
type AuditConfig struct {
	Enabled bool `koanf:"enabled"`

	// BufferSize is the async write buffer. On overflow entries are
	// dropped with a warning rather than blocking request handling.
	BufferSize int `koanf:"buffer_size" validate:"min=1"`

	// MaxEntries caps the in-memory store.
	MaxEntries int `koanf:"max_entries" validate:"min=100"`
}

// AdminConfig configures the admin API surface.
type AdminConfig struct {
	Enabled bool `koanf:"enabled"`

	// RateLimit is the per-IP request budget per minute on admin routes.
	RateLimit int `koanf:"rate_limit" validate:"min=1"`

	CORSOrigins []string `koanf:"cors_origins"`
}

// defaultConfig returns a Config with all default values. Defaults are
// applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Listen:          ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		DDoS: DDoSConfig{
			Enabled:         true,
			MaxPerSecond:    20,
			MaxPerMinute:    300,
			BlockDuration:   5 * time.Minute,
			CleanupInterval: 60 * time.Second,
			Allowlist:       []string{},
		},
		WAF: WAFConfig{
			Enabled:           true,
			BlockHighSeverity: false,
			Allowlist:         []string{},
		},
		Anomaly: AnomalyConfig{
			Enabled:               true,
			FailedLoginThreshold:  5,
			FailedLoginWindow:     15 * time.Minute,
			RapidRequestThreshold: 100,
			ProfileTTL:            30 * 24 * time.Hour,
			SweepInterval:         time.Hour,
		},
		Threat: ThreatConfig{
			AutoBlockHighCount: 5,
			RecordTTL:          24 * time.Hour,
			SweepInterval:      time.Hour,
		},
		Incident: IncidentConfig{
			DispatchTimeout: 3 * time.Second,
			QueueSize:       256,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 1000,
			MaxEntries: 10000,
		},
		Admin: AdminConfig{
			Enabled:     true,
			RateLimit:   60,
			CORSOrigins: []string{},
		},
		Lists: ListsConfig{
			Allow: []string{},
			Deny:  []string{},
		},
	}
}
