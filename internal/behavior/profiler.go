// Sentinel - In-Process Threat Detection and Response
// Copyright 2026 ClipDeck Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clipdeck/sentinel

package behavior

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/clipdeck/sentinel/internal/logging"
	"github.com/clipdeck/sentinel/internal/threat"
)

// Anomaly categories produced by the profiler.
const (
	CategoryFailedLoginAnomaly = "failed_login_anomaly"
	CategoryUnusualLocation    = "unusual_location"
	CategoryUnusualTime        = "unusual_time"
	CategoryRapidRequests      = "rapid_requests"
)

// ActionLogin marks login attempts; the login detectors only run for
// this action.
const ActionLogin = "login"

// Config holds profiler thresholds.
type Config struct {
	Enabled bool

	// FailedLoginThreshold flags an account at exactly this many
	// failures within FailedLoginWindow (inclusive boundary).
	FailedLoginThreshold int
	FailedLoginWindow    time.Duration

	// RapidRequestThreshold is the same-IP request count in the last
	// 60s above which the rapid-request anomaly fires (exclusive).
	RapidRequestThreshold int

	// ProfileTTL is the idle retention for profiles.
	ProfileTTL time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:               true,
		FailedLoginThreshold:  5,
		FailedLoginWindow:     15 * time.Minute,
		RapidRequestThreshold: 100,
		ProfileTTL:            30 * 24 * time.Hour,
	}
}

// Metadata carries the event attributes the detectors read.
type Metadata struct {
	// Success applies to login actions.
	Success bool

	// Location is a coarse location label (e.g., country or city)
	// resolved by the caller.
	Location string

	// Device is a device fingerprint or label.
	Device string
}

// Profiler owns all behavior profiles.
type Profiler struct {
	cfg Config

	mu       sync.RWMutex
	profiles map[string]*Profile

	now func() time.Time
}

// Option configures a Profiler.
type Option func(*Profiler)

// WithClock injects a clock for tests.
func WithClock(now func() time.Time) Option {
	return func(p *Profiler) { p.now = now }
}

// NewProfiler creates a profiler.
func NewProfiler(cfg Config, opts ...Option) *Profiler {
	if cfg.FailedLoginThreshold <= 0 {
		cfg.FailedLoginThreshold = DefaultConfig().FailedLoginThreshold
	}
	if cfg.FailedLoginWindow <= 0 {
		cfg.FailedLoginWindow = DefaultConfig().FailedLoginWindow
	}
	if cfg.RapidRequestThreshold <= 0 {
		cfg.RapidRequestThreshold = DefaultConfig().RapidRequestThreshold
	}
	if cfg.ProfileTTL <= 0 {
		cfg.ProfileTTL = DefaultConfig().ProfileTTL
	}

	p := &Profiler{
		cfg:      cfg,
		profiles: make(map[string]*Profile),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// DetectAnomalies records the event into the user's profile and runs
// the detectors applicable to the action. All anomalies from one call
// are returned together so the caller can batch them into a single
// audit entry.
//
// Each detector is isolated: a panic inside one is recovered and
// logged, and the remaining detectors still run (fail-open).
func (p *Profiler) DetectAnomalies(userID, ip, action string, meta Metadata) []threat.Signal {
	if !p.cfg.Enabled || userID == "" {
		return nil
	}

	now := p.now()

	p.mu.Lock()
	profile, ok := p.profiles[userID]
	if !ok {
		profile = newProfile(userID, now)
		p.profiles[userID] = profile
	}

	isLogin := action == ActionLogin
	if isLogin {
		profile.recordLogin(LoginEvent{
			Timestamp: now,
			IP:        ip,
			Success:   meta.Success,
			Location:  meta.Location,
			Device:    meta.Device,
		})
	}
	profile.recordRequest(RequestEvent{Timestamp: now, IP: ip, Action: action})
	profile.LastActivity = now

	var signals []threat.Signal
	if isLogin {
		p.runDetector(&signals, "failed_login", func() *threat.Signal {
			return p.detectFailedLogins(profile, now)
		})
		p.runDetector(&signals, "unusual_location", func() *threat.Signal {
			return p.detectUnusualLocation(profile, meta)
		})
		p.runDetector(&signals, "unusual_time", func() *threat.Signal {
			return p.detectUnusualTime(profile, now)
		})
	}
	p.runDetector(&signals, "rapid_requests", func() *threat.Signal {
		return p.detectRapidRequests(profile, ip, now)
	})
	p.mu.Unlock()

	return signals
}

// runDetector calls one detector under panic isolation.
func (p *Profiler) runDetector(signals *[]threat.Signal, name string, fn func() *threat.Signal) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error().
				Str("detector", name).
				Interface("panic", r).
				Msg("anomaly detector panicked, skipping")
		}
	}()

	if sig := fn(); sig != nil {
		*signals = append(*signals, *sig)
	}
}

// detectFailedLogins flags the account once failures within the window
// reach the threshold. The boundary is inclusive: exactly threshold
// failures triggers.
func (p *Profiler) detectFailedLogins(profile *Profile, now time.Time) *threat.Signal {
	cutoff := now.Add(-p.cfg.FailedLoginWindow)
	failed := profile.failedLoginsSince(cutoff)
	if failed < p.cfg.FailedLoginThreshold {
		return nil
	}
	return &threat.Signal{
		Category: CategoryFailedLoginAnomaly,
		Rule:     "failed_login_window",
		Severity: threat.SeverityHigh,
		Details:  fmt.Sprintf("%d failed logins within %s", failed, p.cfg.FailedLoginWindow),
	}
}

// detectUnusualLocation flags a login from a location the profile has
// never seen. A profile with no known locations never flags: the first
// location observed is the bootstrap. The new location is added to the
// known set either way.
func (p *Profiler) detectUnusualLocation(profile *Profile, meta Metadata) *threat.Signal {
	if meta.Location == "" {
		return nil
	}

	if len(profile.Locations) == 0 {
		profile.Locations[meta.Location] = struct{}{}
		return nil
	}
	if _, known := profile.Locations[meta.Location]; known {
		return nil
	}

	profile.Locations[meta.Location] = struct{}{}
	return &threat.Signal{
		Category: CategoryUnusualLocation,
		Rule:     "unknown_location",
		Severity: threat.SeverityMedium,
		Details:  "login from previously unseen location " + meta.Location,
	}
}

// detectUnusualTime compares the current hour against the arithmetic
// mean of historical successful-login hours and flags a deviation of
// more than 6 hours.
//
// The arithmetic mean is wrong across midnight: logins at 23:00 and
// 01:00 average to noon and both flag. Kept deliberately pending a
// product decision; see DESIGN.md.
func (p *Profiler) detectUnusualTime(profile *Profile, now time.Time) *threat.Signal {
	logins := profile.successfulLogins()
	if len(logins) < 5 {
		return nil
	}

	var sum float64
	for i := range logins {
		sum += float64(logins[i].Timestamp.Hour())
	}
	mean := sum / float64(len(logins))

	deviation := math.Abs(float64(now.Hour()) - mean)
	if deviation <= 6 {
		return nil
	}
	return &threat.Signal{
		Category: CategoryUnusualTime,
		Rule:     "login_hour_deviation",
		Severity: threat.SeverityMedium,
		Details:  fmt.Sprintf("login hour %d deviates %.1fh from mean %.1f", now.Hour(), deviation, mean),
	}
}

// detectRapidRequests flags more than the threshold of same-IP
// requests within the last 60 seconds.
func (p *Profiler) detectRapidRequests(profile *Profile, ip string, now time.Time) *threat.Signal {
	count := profile.requestsFromIPSince(ip, now.Add(-60*time.Second))
	if count <= p.cfg.RapidRequestThreshold {
		return nil
	}
	return &threat.Signal{
		Category: CategoryRapidRequests,
		Rule:     "same_ip_burst",
		Severity: threat.SeverityHigh,
		Details:  fmt.Sprintf("%d requests from %s within 60s", count, ip),
	}
}

// Snapshot returns a copy of the user's profile, or false when none
// exists.
func (p *Profiler) Snapshot(userID string) (Snapshot, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	profile, ok := p.profiles[userID]
	if !ok {
		return Snapshot{}, false
	}

	locations := make([]string, 0, len(profile.Locations))
	for loc := range profile.Locations {
		locations = append(locations, loc)
	}
	devices := make([]string, 0, len(profile.Devices))
	for dev := range profile.Devices {
		devices = append(devices, dev)
	}

	snap := Snapshot{
		UserID:       profile.UserID,
		Logins:       len(profile.LoginHistory),
		Requests:     len(profile.RequestHistory),
		Locations:    locations,
		Devices:      devices,
		LastActivity: profile.LastActivity,
		FailedRecent: profile.failedLoginsSince(p.now().Add(-p.cfg.FailedLoginWindow)),
	}
	if len(profile.LoginHistory) > 0 {
		snap.FirstRecorded = profile.LoginHistory[0].Timestamp
	}
	return snap, true
}

// Len returns the number of tracked profiles.
func (p *Profiler) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.profiles)
}

// Sweep evicts profiles idle for longer than the TTL. Candidates are
// collected under the read lock and evicted in batches so a large map
// never stalls request handling.
func (p *Profiler) Sweep() int {
	now := p.now()

	p.mu.RLock()
	idle := make([]string, 0)
	for userID, profile := range p.profiles {
		if now.Sub(profile.LastActivity) > p.cfg.ProfileTTL {
			idle = append(idle, userID)
		}
	}
	p.mu.RUnlock()

	evicted := 0
	const batch = 128
	for start := 0; start < len(idle); start += batch {
		end := min(start+batch, len(idle))
		p.mu.Lock()
		for _, userID := range idle[start:end] {
			if profile, ok := p.profiles[userID]; ok && now.Sub(profile.LastActivity) > p.cfg.ProfileTTL {
				delete(p.profiles, userID)
				evicted++
			}
		}
		p.mu.Unlock()
	}

	if evicted > 0 {
		logging.Debug().Int("profiles", evicted).Msg("behavior profile sweep completed")
	}
	return evicted
}
