// Sentinel - In-Process Threat Detection and Response
// Copyright 2026 ClipDeck Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clipdeck/sentinel

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/clipdeck/sentinel/internal/audit"
	"github.com/clipdeck/sentinel/internal/behavior"
	"github.com/clipdeck/sentinel/internal/incident"
	"github.com/clipdeck/sentinel/internal/iplist"
	"github.com/clipdeck/sentinel/internal/logging"
	"github.com/clipdeck/sentinel/internal/rateguard"
	"github.com/clipdeck/sentinel/internal/threat"
)

// Handlers bundles the admin endpoints over the detection components.
type Handlers struct {
	trail      *audit.Trail
	lists      *iplist.Store
	guard      *rateguard.Guard
	profiler   *behavior.Profiler
	aggregator *threat.Aggregator
	responder  *incident.Responder
	validate   *validator.Validate
}

// NewHandlers creates the admin handler set.
func NewHandlers(
	trail *audit.Trail,
	lists *iplist.Store,
	guard *rateguard.Guard,
	profiler *behavior.Profiler,
	aggregator *threat.Aggregator,
	responder *incident.Responder,
) *Handlers {
	return &Handlers{
		trail:      trail,
		lists:      lists,
		guard:      guard,
		profiler:   profiler,
		aggregator: aggregator,
		responder:  responder,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Health handles GET /api/v1/health.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	respondSuccess(w, map[string]interface{}{
		"status":        "ok",
		"audit_dropped": h.trail.Dropped(),
	})
}

// ListAuditEntries handles GET /api/v1/audit.
func (h *Handlers) ListAuditEntries(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	filter := audit.Filter{
		Action:       r.URL.Query().Get("action"),
		UserID:       r.URL.Query().Get("user_id"),
		ResourceType: r.URL.Query().Get("resource_type"),
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if limit, err := strconv.Atoi(v); err == nil && limit > 0 {
			filter.Limit = limit
		}
	}
	if v := r.URL.Query().Get("start_time"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			respondError(w, http.StatusBadRequest, ErrCodeBadRequest, "start_time must be RFC3339")
			return
		}
		filter.StartTime = &t
	}
	if v := r.URL.Query().Get("end_time"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			respondError(w, http.StatusBadRequest, ErrCodeBadRequest, "end_time must be RFC3339")
			return
		}
		filter.EndTime = &t
	}

	entries, err := h.trail.Query(ctx, filter)
	if err != nil {
		logging.Error().Err(err).Msg("audit query failed")
		respondError(w, http.StatusInternalServerError, ErrCodeInternalError, "audit query failed")
		return
	}
	total, err := h.trail.Count(ctx, filter)
	if err != nil {
		logging.Error().Err(err).Msg("audit count failed")
		respondError(w, http.StatusInternalServerError, ErrCodeInternalError, "audit count failed")
		return
	}

	respondList(w, entries, len(entries), total)
}

// listEntryRequest is the body for allowlist and denylist additions.
type listEntryRequest struct {
	IP     string `json:"ip" validate:"required,ip"`
	Reason string `json:"reason"`

	// ExpiresAt makes a denylist entry temporary. Zero means permanent.
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

func (h *Handlers) decodeListEntry(w http.ResponseWriter, r *http.Request) (listEntryRequest, bool) {
	var req listEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return req, false
	}
	if err := h.validate.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeBadRequest, "ip must be a valid IP address")
		return req, false
	}
	return req, true
}

// ListAllowlist handles GET /api/v1/lists/allow.
func (h *Handlers) ListAllowlist(w http.ResponseWriter, r *http.Request) {
	ips := h.lists.Allowlist()
	respondList(w, ips, len(ips), int64(len(ips)))
}

// AddToAllowlist handles POST /api/v1/lists/allow.
func (h *Handlers) AddToAllowlist(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeListEntry(w, r)
	if !ok {
		return
	}
	h.lists.AddToAllowlist(req.IP)
	h.trail.Append(audit.Entry{
		Action:       "admin.allowlist_add",
		ResourceType: "ip_list",
		ResourceID:   req.IP,
		Metadata:     map[string]interface{}{"reason": req.Reason},
	})
	respondSuccess(w, map[string]string{"ip": req.IP})
}

// RemoveFromAllowlist handles DELETE /api/v1/lists/allow/{ip}.
func (h *Handlers) RemoveFromAllowlist(w http.ResponseWriter, r *http.Request) {
	ip := chi.URLParam(r, "ip")
	h.lists.RemoveFromAllowlist(ip)
	h.trail.Append(audit.Entry{
		Action:       "admin.allowlist_remove",
		ResourceType: "ip_list",
		ResourceID:   ip,
	})
	respondSuccess(w, map[string]string{"ip": ip})
}

// ListDenylist handles GET /api/v1/lists/deny.
func (h *Handlers) ListDenylist(w http.ResponseWriter, r *http.Request) {
	entries := h.lists.Denylist()
	respondList(w, entries, len(entries), int64(len(entries)))
}

// AddToDenylist handles POST /api/v1/lists/deny.
func (h *Handlers) AddToDenylist(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeListEntry(w, r)
	if !ok {
		return
	}
	reason := req.Reason
	if reason == "" {
		reason = "added by operator"
	}
	if req.ExpiresAt.IsZero() {
		h.lists.AddToDenylist(req.IP, reason)
	} else {
		h.lists.AddToDenylistUntil(req.IP, reason, req.ExpiresAt)
	}
	h.trail.Append(audit.Entry{
		Action:       "admin.denylist_add",
		ResourceType: "ip_list",
		ResourceID:   req.IP,
		Metadata:     map[string]interface{}{"reason": reason},
	})
	respondSuccess(w, map[string]string{"ip": req.IP})
}

// RemoveFromDenylist handles DELETE /api/v1/lists/deny/{ip}.
func (h *Handlers) RemoveFromDenylist(w http.ResponseWriter, r *http.Request) {
	ip := chi.URLParam(r, "ip")
	h.lists.RemoveFromDenylist(ip)
	h.trail.Append(audit.Entry{
		Action:       "admin.denylist_remove",
		ResourceType: "ip_list",
		ResourceID:   ip,
	})
	respondSuccess(w, map[string]string{"ip": ip})
}

// ListBlocked handles GET /api/v1/blocked. It reports IPs currently
// blocked by the rate guard.
func (h *Handlers) ListBlocked(w http.ResponseWriter, r *http.Request) {
	blocked := h.guard.Blocked()
	respondList(w, blocked, len(blocked), int64(len(blocked)))
}

// Unblock handles DELETE /api/v1/blocked/{ip}.
func (h *Handlers) Unblock(w http.ResponseWriter, r *http.Request) {
	ip := chi.URLParam(r, "ip")
	h.guard.Unblock(ip)
	h.trail.Append(audit.Entry{
		Action:       "admin.unblock",
		ResourceType: "rate_block",
		ResourceID:   ip,
	})
	respondSuccess(w, map[string]string{"ip": ip})
}

// ThreatRecord handles GET /api/v1/threats/{ip}.
func (h *Handlers) ThreatRecord(w http.ResponseWriter, r *http.Request) {
	ip := chi.URLParam(r, "ip")
	record, ok := h.aggregator.Snapshot(ip)
	if !ok {
		respondError(w, http.StatusNotFound, ErrCodeNotFound, "no threat record for ip")
		return
	}
	respondSuccess(w, record)
}

// BehaviorProfile handles GET /api/v1/profiles/{userID}.
func (h *Handlers) BehaviorProfile(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	snap, ok := h.profiler.Snapshot(userID)
	if !ok {
		respondError(w, http.StatusNotFound, ErrCodeNotFound, "no profile for user")
		return
	}
	respondSuccess(w, snap)
}

// loginEventRequest is the body for login outcome reports from the
// host application's auth layer.
type loginEventRequest struct {
	UserID   string `json:"user_id" validate:"required"`
	IP       string `json:"ip" validate:"required,ip"`
	Success  bool   `json:"success"`
	Location string `json:"location,omitempty"`
	Device   string `json:"device,omitempty"`
}

// ReportLogin handles POST /api/v1/events/login. The auth layer calls
// it after each login attempt so the profiler sees outcomes it cannot
// observe from the request path alone. A brute-force finding escalates
// straight to the incident responder.
func (h *Handlers) ReportLogin(w http.ResponseWriter, r *http.Request) {
	var req loginEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeBadRequest, "user_id and a valid ip are required")
		return
	}

	signals := h.profiler.DetectAnomalies(req.UserID, req.IP, behavior.ActionLogin, behavior.Metadata{
		Success:  req.Success,
		Location: req.Location,
		Device:   req.Device,
	})

	for _, sig := range signals {
		if sig.Severity.AtLeast(threat.SeverityHigh) {
			h.aggregator.TrackThreat(req.IP, sig.Severity, sig.Category, sig.Details)
		}
		if sig.Category == behavior.CategoryFailedLoginAnomaly {
			h.responder.HandleIncident(r.Context(), incident.Incident{
				Type:     incident.TypeBruteForce,
				Severity: sig.Severity,
				UserID:   req.UserID,
				IP:       req.IP,
				Details:  map[string]interface{}{"detail": sig.Details},
			})
		}
	}

	if len(signals) > 0 {
		h.trail.Append(audit.Entry{
			UserID:       req.UserID,
			Action:       "anomaly.detected",
			ResourceType: "user_behavior",
			ResourceID:   req.UserID,
			Metadata:     map[string]interface{}{"signals": threat.SignalMetadata(signals)},
			IPAddress:    req.IP,
		})
	}

	respondSuccess(w, map[string]interface{}{"signals": signals})
}

// incidentRequest is the body for operator-raised incidents.
type incidentRequest struct {
	Type     string                 `json:"type" validate:"required"`
	Severity string                 `json:"severity" validate:"required,oneof=low medium high critical"`
	UserID   string                 `json:"user_id,omitempty"`
	IP       string                 `json:"ip" validate:"required,ip"`
	Details  map[string]interface{} `json:"details,omitempty"`
}

// ReportIncident handles POST /api/v1/incidents.
func (h *Handlers) ReportIncident(w http.ResponseWriter, r *http.Request) {
	var req incidentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeBadRequest, "type, severity and a valid ip are required")
		return
	}

	outcome := h.responder.HandleIncident(r.Context(), incident.Incident{
		Type:     req.Type,
		Severity: threat.Severity(req.Severity),
		UserID:   req.UserID,
		IP:       req.IP,
		Details:  req.Details,
	})
	respondSuccess(w, outcome)
}
