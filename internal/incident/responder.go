// Sentinel - In-Process Threat Detection and Response
// Copyright 2026 ClipDeck Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clipdeck/sentinel

package incident

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/clipdeck/sentinel/internal/audit"
	"github.com/clipdeck/sentinel/internal/auth"
	"github.com/clipdeck/sentinel/internal/logging"
	"github.com/clipdeck/sentinel/internal/metrics"
	"github.com/clipdeck/sentinel/internal/threat"
)

// Policy block durations.
const (
	criticalBlockDuration = 24 * time.Hour
	highBlockDuration     = time.Hour
)

// Responder executes the fixed response policy for incidents.
//
// Order matters: the audit entry is written before any response step,
// so the incident is recorded even if a later step fails.
type Responder struct {
	trail      *audit.Trail
	denylist   Denylister
	blocker    Blocker
	rotator    auth.TokenRotator
	locker     auth.AccountLocker
	dispatcher *Dispatcher
}

// NewResponder creates a responder. locker and dispatcher may be nil;
// the corresponding steps are skipped.
func NewResponder(
	trail *audit.Trail,
	denylist Denylister,
	blocker Blocker,
	rotator auth.TokenRotator,
	locker auth.AccountLocker,
	dispatcher *Dispatcher,
) *Responder {
	return &Responder{
		trail:      trail,
		denylist:   denylist,
		blocker:    blocker,
		rotator:    rotator,
		locker:     locker,
		dispatcher: dispatcher,
	}
}

// HandleIncident applies the response policy to one incident and
// reports what was done. HandleIncident itself never fails the request
// path: every step failure is logged and reflected in the outcome, and
// alert dispatch runs in the background.
func (r *Responder) HandleIncident(ctx context.Context, inc Incident) Outcome {
	outcome := Outcome{
		IncidentID: uuid.New().String(),
		Success:    true,
	}

	// Audit first so the incident is never lost.
	r.trail.Append(audit.Entry{
		UserID:       inc.UserID,
		Action:       "incident." + inc.Type,
		ResourceType: "incident",
		ResourceID:   outcome.IncidentID,
		IPAddress:    inc.IP,
		Metadata: map[string]interface{}{
			"severity": string(inc.Severity),
			"details":  inc.Details,
		},
	})

	metrics.RecordIncident(inc.Type, string(inc.Severity))

	r.applySeverityPolicy(&inc, &outcome)
	r.applyTypeOverrides(&inc, &outcome)

	if inc.Severity.AtLeast(threat.SeverityHigh) && r.dispatcher != nil {
		r.dispatcher.Submit(&Alert{
			IncidentID: outcome.IncidentID,
			Type:       inc.Type,
			Severity:   inc.Severity,
			IP:         inc.IP,
			UserID:     inc.UserID,
			Details:    inc.Details,
			Responses:  outcome.Responses,
			Timestamp:  time.Now(),
			Source:     "sentinel",
		})
		outcome.Responses = append(outcome.Responses, "alerts_dispatched")
	}

	logging.Ctx(ctx).Info().
		Str("incident_id", outcome.IncidentID).
		Str("type", inc.Type).
		Str("severity", string(inc.Severity)).
		Strs("responses", outcome.Responses).
		Msg("incident handled")
	return outcome
}

// applySeverityPolicy applies the fixed per-severity table.
func (r *Responder) applySeverityPolicy(inc *Incident, outcome *Outcome) {
	switch inc.Severity {
	case threat.SeverityCritical:
		if inc.IP != "" {
			r.denylist.AddToDenylist(inc.IP, "critical incident: "+inc.Type)
			outcome.Responses = append(outcome.Responses, "ip_denylisted")
			r.blocker.BlockFor(inc.IP, "critical incident: "+inc.Type, criticalBlockDuration)
			outcome.Responses = append(outcome.Responses, "ip_blocked_24h")
		}
		r.rotateTokens(inc, outcome)
	case threat.SeverityHigh:
		if inc.IP != "" {
			r.blocker.BlockFor(inc.IP, "high severity incident: "+inc.Type, highBlockDuration)
			outcome.Responses = append(outcome.Responses, "ip_blocked_1h")
		}
		r.rotateTokens(inc, outcome)
	}
}

// applyTypeOverrides layers type-specific responses on top of the
// severity policy.
func (r *Responder) applyTypeOverrides(inc *Incident, outcome *Outcome) {
	switch inc.Type {
	case TypeBruteForce:
		if inc.UserID != "" && r.locker != nil {
			if err := r.locker.LockAccount(inc.UserID, "brute force detected"); err != nil {
				logging.Error().Err(err).Str("user_id", inc.UserID).Msg("account lock failed")
				outcome.Success = false
			} else {
				outcome.Responses = append(outcome.Responses, "account_locked")
			}
		}
	case TypeSQLInjection, TypeXSSAttempt:
		// Injection attempts are denylisted permanently regardless of
		// the computed severity.
		if inc.IP != "" {
			r.denylist.AddToDenylist(inc.IP, "injection attempt: "+inc.Type)
			outcome.Responses = append(outcome.Responses, "ip_denylisted_permanent")
		}
	case TypeDDoSAttack:
		if inc.IP != "" {
			r.blocker.BlockFor(inc.IP, "ddos attack", criticalBlockDuration)
			outcome.Responses = append(outcome.Responses, "ip_blocked_24h")
		}
	}
}

// rotateTokens forces token rotation when the incident names a user.
func (r *Responder) rotateTokens(inc *Incident, outcome *Outcome) {
	if inc.UserID == "" || r.rotator == nil {
		return
	}
	if err := r.rotator.ForceTokenRotation(inc.UserID, "incident: "+inc.Type); err != nil {
		logging.Error().Err(err).Str("user_id", inc.UserID).Msg("token rotation failed")
		outcome.Success = false
		return
	}
	outcome.Responses = append(outcome.Responses, "tokens_rotated")
}
