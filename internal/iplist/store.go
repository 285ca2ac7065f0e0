// Sentinel - In-Process Threat Detection and Response
// Copyright 2026 ClipDeck Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clipdeck/sentinel

// Package iplist maintains the explicit allow/deny IP lists that gate
// the pipeline. The allowlist overrides every other decision; the
// denylist short-circuits a request before any detector runs.
//
// Lists live in memory and are refreshed lazily from a configuration
// Source when older than the refresh TTL. There is no background
// refresh timer: the first read after expiry pays for the reload.
// Runtime mutations (auto-blocks, admin actions) apply to the
// in-memory sets immediately; durable persistence belongs to an
// external collaborator.
package iplist

import (
	"sync"
	"time"

	"github.com/clipdeck/sentinel/internal/logging"
)

// Entry describes one denylist entry.
type Entry struct {
	IP      string    `json:"ip"`
	Reason  string    `json:"reason"`
	AddedAt time.Time `json:"added_at"`

	// ExpiresAt is zero for permanent entries.
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether the entry has lapsed at the given time.
// Permanent entries never expire.
func (e Entry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && now.After(e.ExpiresAt)
}

// Source supplies the configured seed lists. Implemented by the config
// layer; a nil Source means runtime mutations are the only input.
type Source interface {
	// AllowedIPs returns the configured allowlist.
	AllowedIPs() []string

	// DeniedIPs returns the configured denylist.
	DeniedIPs() []string
}

// Store holds the in-memory allow/deny sets.
type Store struct {
	mu         sync.RWMutex
	allow      map[string]struct{}
	deny       map[string]Entry
	source     Source
	refreshTTL time.Duration
	lastLoad   time.Time

	now func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock injects a clock for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithRefreshTTL overrides the 60s configuration refresh TTL.
func WithRefreshTTL(ttl time.Duration) Option {
	return func(s *Store) { s.refreshTTL = ttl }
}

// NewStore creates a store seeded from source. source may be nil.
func NewStore(source Source, opts ...Option) *Store {
	s := &Store{
		allow:      make(map[string]struct{}),
		deny:       make(map[string]Entry),
		source:     source,
		refreshTTL: 60 * time.Second,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.reload()
	return s
}

// reload merges the configured lists into the in-memory sets.
// Runtime-added entries survive a reload; configured entries that were
// removed at runtime come back, which is intentional: configuration is
// the authority for the static lists.
func (s *Store) reload() {
	if s.source == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for _, ip := range s.source.AllowedIPs() {
		s.allow[ip] = struct{}{}
	}
	for _, ip := range s.source.DeniedIPs() {
		if _, ok := s.deny[ip]; !ok {
			s.deny[ip] = Entry{IP: ip, Reason: "configured", AddedAt: now}
		}
	}
	s.lastLoad = now
}

// refreshIfStale reloads from the source when the TTL has lapsed.
func (s *Store) refreshIfStale() {
	s.mu.RLock()
	stale := s.source != nil && s.now().Sub(s.lastLoad) > s.refreshTTL
	s.mu.RUnlock()

	if stale {
		s.reload()
		logging.Debug().Msg("iplist refreshed from configuration")
	}
}

// IsAllowed reports whether ip is on the allowlist. Allowlisted IPs
// bypass every other check in the pipeline.
func (s *Store) IsAllowed(ip string) bool {
	s.refreshIfStale()

	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.allow[ip]
	return ok
}

// IsDenied reports whether ip is on the denylist. Expired entries are
// dropped on read.
func (s *Store) IsDenied(ip string) bool {
	_, ok := s.DenyEntry(ip)
	return ok
}

// DenyEntry returns the active denylist entry for ip, if any.
func (s *Store) DenyEntry(ip string) (Entry, bool) {
	s.refreshIfStale()

	s.mu.RLock()
	entry, ok := s.deny[ip]
	s.mu.RUnlock()

	if !ok {
		return Entry{}, false
	}
	if entry.Expired(s.now()) {
		s.mu.Lock()
		// Re-check under the write lock; another reader may have
		// already evicted, or a writer re-added.
		if cur, still := s.deny[ip]; still && cur.Expired(s.now()) {
			delete(s.deny, ip)
		}
		s.mu.Unlock()
		return Entry{}, false
	}
	return entry, true
}

// AddToDenylist adds ip with no expiry. Adding an already denied IP
// overwrites the reason; last write wins.
func (s *Store) AddToDenylist(ip, reason string) {
	s.AddToDenylistUntil(ip, reason, time.Time{})
}

// AddToDenylistUntil adds ip with an expiry. A zero expiresAt means
// permanent.
func (s *Store) AddToDenylistUntil(ip, reason string, expiresAt time.Time) {
	s.mu.Lock()
	s.deny[ip] = Entry{IP: ip, Reason: reason, AddedAt: s.now(), ExpiresAt: expiresAt}
	s.mu.Unlock()

	logging.Info().Str("ip", ip).Str("reason", reason).Msg("ip added to denylist")
}

// AddToAllowlist adds ip to the allowlist.
func (s *Store) AddToAllowlist(ip string) {
	s.mu.Lock()
	s.allow[ip] = struct{}{}
	s.mu.Unlock()

	logging.Info().Str("ip", ip).Msg("ip added to allowlist")
}

// RemoveFromDenylist removes ip from the denylist.
func (s *Store) RemoveFromDenylist(ip string) {
	s.mu.Lock()
	delete(s.deny, ip)
	s.mu.Unlock()
}

// RemoveFromAllowlist removes ip from the allowlist.
func (s *Store) RemoveFromAllowlist(ip string) {
	s.mu.Lock()
	delete(s.allow, ip)
	s.mu.Unlock()
}

// Allowlist returns a snapshot of the allowlist.
func (s *Store) Allowlist() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ips := make([]string, 0, len(s.allow))
	for ip := range s.allow {
		ips = append(ips, ip)
	}
	return ips
}

// Denylist returns a snapshot of active denylist entries.
func (s *Store) Denylist() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	entries := make([]Entry, 0, len(s.deny))
	for _, entry := range s.deny {
		if !entry.Expired(now) {
			entries = append(entries, entry)
		}
	}
	return entries
}
