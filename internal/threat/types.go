// Sentinel - In-Process Threat Detection and Response
// Copyright 2026 ClipDeck Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clipdeck/sentinel

// Package threat aggregates detection signals per source IP into an
// escalating threat record and decides when an IP crosses the
// auto-block threshold.
package threat

import (
	"time"
)

// Severity indicates how dangerous a detected signal is.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// severityRank orders severities for monotonic escalation.
var severityRank = map[Severity]int{
	SeverityLow:      0,
	SeverityMedium:   1,
	SeverityHigh:     2,
	SeverityCritical: 3,
}

// Rank returns the numeric rank of a severity. Unknown severities rank
// lowest.
func (s Severity) Rank() int {
	return severityRank[s]
}

// AtLeast reports whether s is at least as severe as other.
func (s Severity) AtLeast(other Severity) bool {
	return s.Rank() >= other.Rank()
}

// Max returns the more severe of two severities.
func Max(a, b Severity) Severity {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// Signal is one detected indicator of malicious intent. Signals are
// transient value objects produced per request by the WAF and the
// behavior profiler; they carry no references into any component's
// internal state.
type Signal struct {
	// Category is the threat category (e.g., sql_injection,
	// failed_login_anomaly).
	Category string `json:"category"`

	// Rule identifies the rule or detector that produced the signal.
	Rule string `json:"rule"`

	// Severity of the signal.
	Severity Severity `json:"severity"`

	// Details is a short human-readable description.
	Details string `json:"details,omitempty"`
}

// SignalMetadata flattens signals into generic maps for audit-trail
// metadata, so the trail's recursive PII masker can walk every field.
func SignalMetadata(signals []Signal) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(signals))
	for _, sig := range signals {
		out = append(out, map[string]interface{}{
			"category": sig.Category,
			"rule":     sig.Rule,
			"severity": string(sig.Severity),
			"details":  sig.Details,
		})
	}
	return out
}

// Entry is one threat recorded against an IP.
type Entry struct {
	Category string    `json:"category"`
	Severity Severity  `json:"severity"`
	Details  string    `json:"details,omitempty"`
	SeenAt   time.Time `json:"seen_at"`
}

// Record is the aggregated threat state for one IP.
//
// Severity is monotonic: it only ever rises, and resets only when the
// whole record is evicted after the idle TTL.
type Record struct {
	IP        string    `json:"ip"`
	Threats   []Entry   `json:"threats"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
	Severity  Severity  `json:"severity"`
}

// HighCount returns the number of high-severity threats in the record.
// The count runs over the whole ring buffer with no time window; a
// record is only reset by idle eviction.
func (r *Record) HighCount() int {
	n := 0
	for i := range r.Threats {
		if r.Threats[i].Severity == SeverityHigh {
			n++
		}
	}
	return n
}
