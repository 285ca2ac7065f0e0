// Sentinel - In-Process Threat Detection and Response
// Copyright 2026 ClipDeck Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clipdeck/sentinel

// Package middleware wires the detection components into the HTTP
// request path. The Pipeline handler runs every inbound request through
// the IP lists, the rate guard, the WAF inspector and the behavior
// profiler, folds the resulting signals into the threat aggregator, and
// hands actionable findings to the incident responder.
package middleware

import (
	"bytes"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/clipdeck/sentinel/internal/audit"
	"github.com/clipdeck/sentinel/internal/behavior"
	"github.com/clipdeck/sentinel/internal/config"
	"github.com/clipdeck/sentinel/internal/incident"
	"github.com/clipdeck/sentinel/internal/iplist"
	"github.com/clipdeck/sentinel/internal/logging"
	"github.com/clipdeck/sentinel/internal/metrics"
	"github.com/clipdeck/sentinel/internal/rateguard"
	"github.com/clipdeck/sentinel/internal/threat"
	"github.com/clipdeck/sentinel/internal/waf"
)

// maxInspectBody caps how much of the request body the WAF reads.
// Anything beyond the cap flows through to the handler uninspected.
const maxInspectBody = 1 << 20

// Response codes returned in the JSON error body.
const (
	CodeIPBlocked   = "IP_BLOCKED"
	CodeRateLimited = "RATE_LIMIT_EXCEEDED"
	CodeDDoSBlocked = "DDOS_BLOCKED"
	CodeWAFBlocked  = "WAF_BLOCKED"
	CodeAutoBlocked = "AUTO_BLOCKED"
)

// Identity is the authenticated principal attached to a request, as
// resolved by the host application.
type Identity struct {
	UserID string
	TeamID string
}

// IdentityFn resolves the authenticated identity for a request. It
// returns false for anonymous requests.
type IdentityFn func(r *http.Request) (Identity, bool)

// errorBody is the JSON error contract for denied requests.
type errorBody struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	Code       string `json:"code"`
	RetryAfter int    `json:"retryAfter,omitempty"`
}

// Pipeline is the security middleware. All components are optional
// except the IP list store and the audit trail; a nil component skips
// its stage.
type Pipeline struct {
	lists      *iplist.Store
	guard      *rateguard.Guard
	inspector  *waf.Inspector
	profiler   *behavior.Profiler
	aggregator *threat.Aggregator
	responder  *incident.Responder
	trail      *audit.Trail
	identity   IdentityFn

	ddosCfg config.DDoSConfig
	wafCfg  config.WAFConfig

	// Per-stage allowlists from config, resolved once at startup.
	ddosAllow map[string]struct{}
	wafAllow  map[string]struct{}
}

// NewPipeline assembles the middleware from already-constructed
// components.
func NewPipeline(
	cfg *config.Config,
	lists *iplist.Store,
	guard *rateguard.Guard,
	inspector *waf.Inspector,
	profiler *behavior.Profiler,
	aggregator *threat.Aggregator,
	responder *incident.Responder,
	trail *audit.Trail,
	identity IdentityFn,
) *Pipeline {
	return &Pipeline{
		lists:      lists,
		guard:      guard,
		inspector:  inspector,
		profiler:   profiler,
		aggregator: aggregator,
		responder:  responder,
		trail:      trail,
		identity:   identity,
		ddosCfg:    cfg.DDoS,
		wafCfg:     cfg.WAF,
		ddosAllow:  toSet(cfg.DDoS.Allowlist),
		wafAllow:   toSet(cfg.WAF.Allowlist),
	}
}

func toSet(ips []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ips))
	for _, ip := range ips {
		set[ip] = struct{}{}
	}
	return set
}

// Handler runs the detection pipeline in front of next. A detection
// failure never takes the request down with it: panics inside the
// pipeline are recovered and the request proceeds.
func (p *Pipeline) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if p.inspect(w, r) {
			return
		}
		next.ServeHTTP(w, r)
	})
}

// inspect runs every stage and reports whether the request was denied
// (response already written). Recovered panics fail open.
func (p *Pipeline) inspect(w http.ResponseWriter, r *http.Request) (denied bool) {
	defer func() {
		if rec := recover(); rec != nil {
			logging.Error().
				Interface("panic", rec).
				Str("path", r.URL.Path).
				Msg("security pipeline panic, failing open")
			denied = false
		}
	}()

	ip := ClientIP(r)
	id, authenticated := p.resolveIdentity(r)

	// Allowlisted IPs bypass every stage.
	if p.lists.IsAllowed(ip) {
		return false
	}

	if p.checkDenylist(w, r, ip, id) {
		return true
	}
	if p.checkRate(w, r, ip, id) {
		return true
	}
	if p.checkWAF(w, r, ip, id) {
		return true
	}
	p.checkBehavior(r, ip, id, authenticated)

	return p.checkAutoBlock(w, r, ip, id)
}

func (p *Pipeline) resolveIdentity(r *http.Request) (Identity, bool) {
	if p.identity == nil {
		return Identity{}, false
	}
	return p.identity(r)
}

// checkDenylist rejects requests from denylisted IPs.
func (p *Pipeline) checkDenylist(w http.ResponseWriter, r *http.Request, ip string, id Identity) bool {
	entry, denied := p.lists.DenyEntry(ip)
	if !denied {
		return false
	}

	p.trail.Append(audit.Entry{
		UserID:       id.UserID,
		TeamID:       id.TeamID,
		Action:       "ip.denied",
		ResourceType: "request",
		Metadata: map[string]interface{}{
			"reason": entry.Reason,
			"path":   r.URL.Path,
		},
		IPAddress: ip,
		UserAgent: r.UserAgent(),
	})
	metrics.RecordBlocked(CodeIPBlocked)

	writeError(w, http.StatusForbidden, errorBody{
		Error:   "Access denied",
		Message: "Your IP address has been blocked",
		Code:    CodeIPBlocked,
	})
	return true
}

// checkRate tracks the request against both rate windows and blocks
// the IP when either is breached.
func (p *Pipeline) checkRate(w http.ResponseWriter, r *http.Request, ip string, id Identity) bool {
	if p.guard == nil || !p.ddosCfg.Enabled {
		return false
	}
	if _, ok := p.ddosAllow[ip]; ok {
		return false
	}

	if entry, blocked := p.guard.IsBlocked(ip); blocked {
		p.denyRate(w, r, ip, id, entry, "request from blocked ip")
		return true
	}

	counts := p.guard.Track(ip)
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(counts.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(counts.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(counts.Reset, 10))

	if !counts.Breached(p.guard.Config()) {
		return false
	}

	// Track has already blocked the IP as a side effect of the breach.
	reason := "rate limit exceeded"
	if counts.PerSecond > p.ddosCfg.MaxPerSecond {
		reason = "per-second rate limit exceeded"
	} else if counts.PerMinute > p.ddosCfg.MaxPerMinute {
		reason = "per-minute rate limit exceeded"
	}
	if p.aggregator != nil {
		p.aggregator.TrackThreat(ip, threat.SeverityHigh, "rate_limit", reason)
	}

	entry, _ := p.guard.IsBlocked(ip)
	p.denyRate(w, r, ip, id, entry, reason)
	return true
}

func (p *Pipeline) denyRate(w http.ResponseWriter, r *http.Request, ip string, id Identity, entry rateguard.BlockEntry, reason string) {
	retryAfter := entry.RetryAfter(p.guard.Now())

	p.trail.Append(audit.Entry{
		UserID:       id.UserID,
		TeamID:       id.TeamID,
		Action:       "rate.blocked",
		ResourceType: "request",
		Metadata: map[string]interface{}{
			"reason":      reason,
			"path":        r.URL.Path,
			"retry_after": retryAfter,
		},
		IPAddress: ip,
		UserAgent: r.UserAgent(),
	})
	metrics.RecordBlocked(CodeDDoSBlocked)

	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	writeError(w, http.StatusTooManyRequests, errorBody{
		Error:      "Too many requests",
		Message:    "Rate limit exceeded, try again later",
		Code:       CodeDDoSBlocked,
		RetryAfter: retryAfter,
	})
}

// checkWAF inspects the request content. Critical matches always
// block; high matches block only when configured to.
func (p *Pipeline) checkWAF(w http.ResponseWriter, r *http.Request, ip string, id Identity) bool {
	if p.inspector == nil || !p.wafCfg.Enabled {
		return false
	}
	if _, ok := p.wafAllow[ip]; ok {
		return false
	}

	rc := &waf.RequestContext{
		Method:    r.Method,
		URL:       r.URL.String(),
		Path:      r.URL.Path,
		Query:     r.URL.RawQuery,
		Body:      readBody(r),
		UserAgent: r.UserAgent(),
	}

	signals := p.inspector.Inspect(rc)
	if len(signals) == 0 {
		return false
	}

	for _, sig := range signals {
		metrics.RecordSignal(sig.Category, string(sig.Severity))
		if p.aggregator != nil && sig.Severity.AtLeast(threat.SeverityHigh) {
			p.aggregator.TrackThreat(ip, sig.Severity, sig.Category, sig.Details)
		}
	}

	block := waf.HasCritical(signals) || (p.wafCfg.BlockHighSeverity && waf.HasHigh(signals))
	action := "waf.flagged"
	if block {
		action = "waf.blocked"
	}

	p.trail.Append(audit.Entry{
		UserID:       id.UserID,
		TeamID:       id.TeamID,
		Action:       action,
		ResourceType: "request",
		Metadata: map[string]interface{}{
			"path":    r.URL.Path,
			"method":  r.Method,
			"signals": threat.SignalMetadata(signals),
		},
		IPAddress: ip,
		UserAgent: r.UserAgent(),
	})

	if !block {
		return false
	}

	if p.responder != nil && waf.HasCritical(signals) {
		inc := incident.Incident{
			Type:     incidentTypeFor(signals),
			Severity: threat.SeverityCritical,
			UserID:   id.UserID,
			IP:       ip,
			Details: map[string]interface{}{
				"path":    r.URL.Path,
				"signals": threat.SignalMetadata(signals),
			},
		}
		p.responder.HandleIncident(r.Context(), inc)
	}

	metrics.RecordBlocked(CodeWAFBlocked)
	writeError(w, http.StatusForbidden, errorBody{
		Error:   "Request blocked",
		Message: "Request contains potentially malicious content",
		Code:    CodeWAFBlocked,
	})
	return true
}

// checkBehavior runs anomaly detection for authenticated requests and
// folds high and critical signals into the aggregator. It never denies
// the request on its own; escalation happens through the auto-block
// check.
func (p *Pipeline) checkBehavior(r *http.Request, ip string, id Identity, authenticated bool) {
	if p.profiler == nil || !authenticated {
		return
	}

	action := strings.ToLower(r.Method) + " " + r.URL.Path
	signals := p.profiler.DetectAnomalies(id.UserID, ip, action, behavior.Metadata{
		Device: r.UserAgent(),
	})
	if len(signals) == 0 {
		return
	}

	for _, sig := range signals {
		metrics.RecordSignal(sig.Category, string(sig.Severity))
		if p.aggregator != nil && sig.Severity.AtLeast(threat.SeverityHigh) {
			p.aggregator.TrackThreat(ip, sig.Severity, sig.Category, sig.Details)
		}
	}

	// One audit entry per call regardless of how many detectors fired.
	p.trail.Append(audit.Entry{
		UserID:       id.UserID,
		TeamID:       id.TeamID,
		Action:       "anomaly.detected",
		ResourceType: "user_behavior",
		ResourceID:   id.UserID,
		Metadata: map[string]interface{}{
			"action":  action,
			"signals": threat.SignalMetadata(signals),
		},
		IPAddress: ip,
		UserAgent: r.UserAgent(),
	})
}

// checkAutoBlock denies the request when the aggregated threat record
// crosses the auto-block threshold. The responder handles the actual
// containment (denylist, block, token rotation, alerting).
func (p *Pipeline) checkAutoBlock(w http.ResponseWriter, r *http.Request, ip string, id Identity) bool {
	if p.aggregator == nil || !p.aggregator.ShouldAutoBlock(ip) {
		return false
	}

	if p.responder != nil {
		record, _ := p.aggregator.Snapshot(ip)
		p.responder.HandleIncident(r.Context(), incident.Incident{
			Type:     incident.TypeAutoBlock,
			Severity: threat.SeverityCritical,
			UserID:   id.UserID,
			IP:       ip,
			Details: map[string]interface{}{
				"threat_severity": string(record.Severity),
				"high_count":      record.HighCount(),
			},
		})
	} else {
		p.lists.AddToDenylist(ip, "auto-block: repeated high-severity threats")
	}

	metrics.RecordBlocked(CodeAutoBlocked)
	writeError(w, http.StatusForbidden, errorBody{
		Error:   "Access denied",
		Message: "Suspicious activity detected from your IP address",
		Code:    CodeAutoBlocked,
	})
	return true
}

// incidentTypeFor maps the highest-priority WAF category to an
// incident type.
func incidentTypeFor(signals []threat.Signal) string {
	for _, sig := range signals {
		switch waf.Category(sig.Category) {
		case waf.CategorySQLInjection:
			return incident.TypeSQLInjection
		case waf.CategoryXSS:
			return incident.TypeXSSAttempt
		}
	}
	return incident.TypeWAFBlock
}

// readBody reads up to maxInspectBody bytes of the request body and
// restores the stream so the downstream handler sees it untouched.
func readBody(r *http.Request) string {
	if r.Body == nil || r.ContentLength == 0 {
		return ""
	}
	buf, err := io.ReadAll(io.LimitReader(r.Body, maxInspectBody))
	if err != nil {
		logging.Warn().Err(err).Msg("failed to read request body for inspection")
		return ""
	}
	r.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(buf), r.Body), r.Body}
	return string(buf)
}

// ClientIP extracts the originating client IP, preferring proxy
// headers over the socket address.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if idx := strings.Index(fwd, ","); idx != -1 {
			fwd = fwd[:idx]
		}
		return strings.TrimSpace(fwd)
	}
	if real := r.Header.Get("X-Real-IP"); real != "" {
		return strings.TrimSpace(real)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeError(w http.ResponseWriter, status int, body errorBody) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.Error().Err(err).Msg("failed to encode error response")
	}
}
