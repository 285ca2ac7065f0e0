// Sentinel - In-Process Threat Detection and Response
// Copyright 2026 ClipDeck Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clipdeck/sentinel

// Package incident executes the automated response policy for
// aggregated security events: blocking, session invalidation and
// alerting.
package incident

import (
	"context"
	"time"

	"github.com/clipdeck/sentinel/internal/threat"
)

// Incident types with dedicated response overrides.
const (
	TypeBruteForce   = "brute_force"
	TypeSQLInjection = "sql_injection"
	TypeXSSAttempt   = "xss_attempt"
	TypeDDoSAttack   = "ddos_attack"
	TypeAutoBlock    = "auto_block"
	TypeWAFBlock     = "waf_block"
	TypeAnomaly      = "anomaly"
)

// Incident is one actionable security event. It is transient: nothing
// beyond the audit entry it generates survives the call.
type Incident struct {
	Type     string                 `json:"type"`
	Severity threat.Severity        `json:"severity"`
	UserID   string                 `json:"user_id,omitempty"`
	IP       string                 `json:"ip"`
	Details  map[string]interface{} `json:"details,omitempty"`
}

// Outcome reports what the responder did.
type Outcome struct {
	Success    bool     `json:"success"`
	Responses  []string `json:"responses"`
	IncidentID string   `json:"incident_id"`
}

// Alert is the payload delivered to notification channels.
type Alert struct {
	IncidentID string                 `json:"incident_id"`
	Type       string                 `json:"type"`
	Severity   threat.Severity        `json:"severity"`
	IP         string                 `json:"ip"`
	UserID     string                 `json:"user_id,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Responses  []string               `json:"responses"`
	Timestamp  time.Time              `json:"timestamp"`
	Source     string                 `json:"source"`
}

// Channel delivers alerts to one destination. Implementations must be
// safe for concurrent use; delivery failures are the channel's own
// problem and never propagate past the dispatcher.
type Channel interface {
	// Name identifies the channel in logs (console, webhook, slack...).
	Name() string

	// Enabled reports whether the channel is configured.
	Enabled() bool

	// Send delivers one alert. The context carries the dispatch
	// timeout; Send must respect it.
	Send(ctx context.Context, alert *Alert) error
}

// Blocker applies a timed IP block. Satisfied by *rateguard.Guard.
type Blocker interface {
	BlockFor(ip, reason string, d time.Duration)
}

// Denylister adds IPs to the deny list. Satisfied by *iplist.Store.
type Denylister interface {
	AddToDenylist(ip, reason string)
	AddToDenylistUntil(ip, reason string, expiresAt time.Time)
}
