// Sentinel - In-Process Threat Detection and Response
// Copyright 2026 ClipDeck Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clipdeck/sentinel

// Package behavior keeps per-user activity profiles and runs
// heuristic anomaly detectors over them.
package behavior

import (
	"time"
)

// Ring buffer caps. History older than these counts is discarded from
// the front.
const (
	maxLoginHistory   = 100
	maxRequestHistory = 1000
)

// LoginEvent is one recorded login attempt.
type LoginEvent struct {
	Timestamp time.Time `json:"timestamp"`
	IP        string    `json:"ip"`
	Success   bool      `json:"success"`
	Location  string    `json:"location,omitempty"`
	Device    string    `json:"device,omitempty"`
}

// RequestEvent is one recorded non-login request.
type RequestEvent struct {
	Timestamp time.Time `json:"timestamp"`
	IP        string    `json:"ip"`
	Action    string    `json:"action"`
}

// Profile is the behavioral state for one user. All access goes
// through the Profiler's lock; a Profile is never shared outside it
// except as a Snapshot.
type Profile struct {
	UserID         string
	LoginHistory   []LoginEvent
	RequestHistory []RequestEvent
	Locations      map[string]struct{}
	Devices        map[string]struct{}
	LastActivity   time.Time
}

func newProfile(userID string, now time.Time) *Profile {
	return &Profile{
		UserID:       userID,
		Locations:    make(map[string]struct{}),
		Devices:      make(map[string]struct{}),
		LastActivity: now,
	}
}

// recordLogin appends a login event and trims the ring.
func (p *Profile) recordLogin(ev LoginEvent) {
	p.LoginHistory = append(p.LoginHistory, ev)
	if len(p.LoginHistory) > maxLoginHistory {
		p.LoginHistory = p.LoginHistory[len(p.LoginHistory)-maxLoginHistory:]
	}
	if ev.Device != "" {
		p.Devices[ev.Device] = struct{}{}
	}
}

// recordRequest appends a request event and trims the ring.
func (p *Profile) recordRequest(ev RequestEvent) {
	p.RequestHistory = append(p.RequestHistory, ev)
	if len(p.RequestHistory) > maxRequestHistory {
		p.RequestHistory = p.RequestHistory[len(p.RequestHistory)-maxRequestHistory:]
	}
}

// failedLoginsSince counts failed logins at or after cutoff.
func (p *Profile) failedLoginsSince(cutoff time.Time) int {
	n := 0
	for i := range p.LoginHistory {
		ev := &p.LoginHistory[i]
		if !ev.Success && !ev.Timestamp.Before(cutoff) {
			n++
		}
	}
	return n
}

// successfulLogins returns all successful logins, oldest first.
func (p *Profile) successfulLogins() []LoginEvent {
	out := make([]LoginEvent, 0, len(p.LoginHistory))
	for i := range p.LoginHistory {
		if p.LoginHistory[i].Success {
			out = append(out, p.LoginHistory[i])
		}
	}
	return out
}

// requestsFromIPSince counts requests from ip at or after cutoff.
func (p *Profile) requestsFromIPSince(ip string, cutoff time.Time) int {
	n := 0
	for i := range p.RequestHistory {
		ev := &p.RequestHistory[i]
		if ev.IP == ip && !ev.Timestamp.Before(cutoff) {
			n++
		}
	}
	return n
}

// Snapshot is a copy of a profile safe to hand to the admin API.
type Snapshot struct {
	UserID        string    `json:"user_id"`
	Logins        int       `json:"logins"`
	Requests      int       `json:"requests"`
	Locations     []string  `json:"locations"`
	Devices       []string  `json:"devices"`
	LastActivity  time.Time `json:"last_activity"`
	FailedRecent  int       `json:"failed_recent"`
	FirstRecorded time.Time `json:"first_recorded,omitempty"`
}
