// Sentinel - In-Process Threat Detection and Response
// Copyright 2026 ClipDeck Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clipdeck/sentinel

package threat

import (
	"sync"
	"time"

	"github.com/clipdeck/sentinel/internal/logging"
)

// maxRecordEntries caps the per-IP threat ring buffer.
const maxRecordEntries = 100

// Config holds aggregator thresholds.
type Config struct {
	// AutoBlockHighCount is the number of high-severity threats that
	// makes ShouldAutoBlock true. Count-based over the whole record,
	// not time-windowed.
	AutoBlockHighCount int

	// RecordTTL is the idle retention for threat records.
	RecordTTL time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		AutoBlockHighCount: 5,
		RecordTTL:          24 * time.Hour,
	}
}

// Aggregator owns all per-IP threat records.
type Aggregator struct {
	cfg Config

	mu      sync.RWMutex
	records map[string]*Record

	now func() time.Time
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithClock injects a clock for tests.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

// NewAggregator creates an aggregator.
func NewAggregator(cfg Config, opts ...Option) *Aggregator {
	if cfg.AutoBlockHighCount <= 0 {
		cfg.AutoBlockHighCount = DefaultConfig().AutoBlockHighCount
	}
	if cfg.RecordTTL <= 0 {
		cfg.RecordTTL = DefaultConfig().RecordTTL
	}

	a := &Aggregator{
		cfg:     cfg,
		records: make(map[string]*Record),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// TrackThreat folds one threat into the IP's record: appends to the
// capped ring buffer, updates firstSeen/lastSeen and raises the record
// severity to the maximum ever observed. Severity never decreases
// except by whole-record eviction.
func (a *Aggregator) TrackThreat(ip string, severity Severity, category, details string) {
	now := a.now()

	a.mu.Lock()
	rec, ok := a.records[ip]
	if !ok {
		rec = &Record{IP: ip, FirstSeen: now, Severity: SeverityLow}
		a.records[ip] = rec
	}

	rec.Threats = append(rec.Threats, Entry{
		Category: category,
		Severity: severity,
		Details:  details,
		SeenAt:   now,
	})
	if len(rec.Threats) > maxRecordEntries {
		rec.Threats = rec.Threats[len(rec.Threats)-maxRecordEntries:]
	}
	rec.LastSeen = now
	rec.Severity = Max(rec.Severity, severity)
	a.mu.Unlock()

	logging.Info().
		Str("ip", ip).
		Str("category", category).
		Str("severity", string(severity)).
		Msg("threat tracked")
}

// ShouldAutoBlock reports whether ip has crossed the auto-block
// threshold: record severity is critical, or the record holds at least
// the configured number of high-severity threats.
func (a *Aggregator) ShouldAutoBlock(ip string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()

	rec, ok := a.records[ip]
	if !ok {
		return false
	}
	if rec.Severity == SeverityCritical {
		return true
	}
	return rec.HighCount() >= a.cfg.AutoBlockHighCount
}

// Snapshot returns a copy of the IP's record, or false when none
// exists.
func (a *Aggregator) Snapshot(ip string) (Record, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	rec, ok := a.records[ip]
	if !ok {
		return Record{}, false
	}

	out := *rec
	out.Threats = make([]Entry, len(rec.Threats))
	copy(out.Threats, rec.Threats)
	return out, true
}

// Len returns the number of tracked records.
func (a *Aggregator) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.records)
}

// Sweep evicts records idle for longer than the TTL, in batches under
// short lock holds.
func (a *Aggregator) Sweep() int {
	now := a.now()

	a.mu.RLock()
	idle := make([]string, 0)
	for ip, rec := range a.records {
		if now.Sub(rec.LastSeen) > a.cfg.RecordTTL {
			idle = append(idle, ip)
		}
	}
	a.mu.RUnlock()

	evicted := 0
	const batch = 128
	for start := 0; start < len(idle); start += batch {
		end := min(start+batch, len(idle))
		a.mu.Lock()
		for _, ip := range idle[start:end] {
			if rec, ok := a.records[ip]; ok && now.Sub(rec.LastSeen) > a.cfg.RecordTTL {
				delete(a.records, ip)
				evicted++
			}
		}
		a.mu.Unlock()
	}

	if evicted > 0 {
		logging.Debug().Int("records", evicted).Msg("threat record sweep completed")
	}
	return evicted
}
