// Sentinel - In-Process Threat Detection and Response
// Copyright 2026 ClipDeck Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clipdeck/sentinel

// Package rateguard implements per-IP sliding-window rate limiting
// with automatic blocking.
//
// Two independent counters are kept per IP, keyed by the fixed-width
// windows floor(now/1s) and floor(now/60s). Breaching either limit
// inserts an expiring block entry. Counters and expired blocks are
// swept periodically so memory stays bounded regardless of traffic.
package rateguard

import (
	"sync"
	"time"

	"github.com/clipdeck/sentinel/internal/logging"
)

// Config holds rate guard thresholds.
type Config struct {
	MaxPerSecond  int
	MaxPerMinute  int
	BlockDuration time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		MaxPerSecond:  20,
		MaxPerMinute:  300,
		BlockDuration: 5 * time.Minute,
	}
}

// Counts is the result of tracking one request.
type Counts struct {
	PerSecond int
	PerMinute int

	// Limit, Remaining and Reset feed the X-RateLimit-* response
	// headers. Remaining never goes below zero.
	Limit     int
	Remaining int
	Reset     int64
}

// Breached reports whether either window limit was exceeded.
func (c Counts) Breached(cfg Config) bool {
	return c.PerSecond > cfg.MaxPerSecond || c.PerMinute > cfg.MaxPerMinute
}

// BlockEntry records a blocked IP. UnblockAt is always after
// BlockedAt; presence of an unexpired entry means "blocked".
type BlockEntry struct {
	IP        string    `json:"ip"`
	Reason    string    `json:"reason"`
	BlockedAt time.Time `json:"blocked_at"`
	UnblockAt time.Time `json:"unblock_at"`
}

// Expired reports whether the block has lapsed at the given time.
func (e BlockEntry) Expired(now time.Time) bool {
	return now.After(e.UnblockAt)
}

// RetryAfter returns the whole seconds until the block lifts, at
// least 1.
func (e BlockEntry) RetryAfter(now time.Time) int {
	secs := int(e.UnblockAt.Sub(now).Seconds())
	if secs < 1 {
		secs = 1
	}
	return secs
}

// ipCounters holds both window counters for one IP. Old windows are
// abandoned in place when the key advances; the sweep reclaims idle
// entries.
type ipCounters struct {
	secKey   int64
	secCount int
	minKey   int64
	minCount int
	lastSeen time.Time
}

// Guard is the DDoS protection component.
type Guard struct {
	cfg Config

	mu       sync.RWMutex
	counters map[string]*ipCounters
	blocks   map[string]BlockEntry

	// onBlock is invoked once per newly inserted block, off the hot
	// lock. Used by the pipeline to write the audit entry.
	onBlock func(BlockEntry)

	now func() time.Time
}

// Option configures a Guard.
type Option func(*Guard)

// WithClock injects a clock for tests.
func WithClock(now func() time.Time) Option {
	return func(g *Guard) { g.now = now }
}

// WithBlockHook registers a callback fired for every new block entry.
func WithBlockHook(fn func(BlockEntry)) Option {
	return func(g *Guard) { g.onBlock = fn }
}

// New creates a rate guard.
func New(cfg Config, opts ...Option) *Guard {
	if cfg.MaxPerSecond <= 0 {
		cfg.MaxPerSecond = DefaultConfig().MaxPerSecond
	}
	if cfg.MaxPerMinute <= 0 {
		cfg.MaxPerMinute = DefaultConfig().MaxPerMinute
	}
	if cfg.BlockDuration <= 0 {
		cfg.BlockDuration = DefaultConfig().BlockDuration
	}

	g := &Guard{
		cfg:      cfg,
		counters: make(map[string]*ipCounters),
		blocks:   make(map[string]BlockEntry),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Config returns the effective configuration after defaulting.
func (g *Guard) Config() Config {
	return g.cfg
}

// Now returns the guard's current time through its clock.
func (g *Guard) Now() time.Time {
	return g.now()
}

// Track records one request for ip and returns the current window
// counts. When a limit is breached the IP is blocked as a side effect;
// the caller still sees the breaching counts and decides the response.
//
// Concurrent Track calls for the same IP may both observe a breach and
// both insert a block. That is acceptable: blocking is idempotent and
// the last UnblockAt wins.
func (g *Guard) Track(ip string) Counts {
	now := g.now()
	secKey := now.UnixMilli() / 1000
	minKey := now.UnixMilli() / 60000

	g.mu.Lock()
	c, ok := g.counters[ip]
	if !ok {
		c = &ipCounters{secKey: secKey, minKey: minKey}
		g.counters[ip] = c
	}
	if c.secKey != secKey {
		c.secKey = secKey
		c.secCount = 0
	}
	if c.minKey != minKey {
		c.minKey = minKey
		c.minCount = 0
	}
	c.secCount++
	c.minCount++
	c.lastSeen = now

	counts := Counts{
		PerSecond: c.secCount,
		PerMinute: c.minCount,
		Limit:     g.cfg.MaxPerSecond,
		Remaining: g.cfg.MaxPerSecond - c.secCount,
		Reset:     secKey + 1,
	}
	g.mu.Unlock()

	if counts.Remaining < 0 {
		counts.Remaining = 0
	}

	if counts.Breached(g.cfg) {
		reason := "rate limit exceeded: per-minute window"
		if counts.PerSecond > g.cfg.MaxPerSecond {
			reason = "rate limit exceeded: per-second window"
		}
		g.Block(ip, reason)
	}

	return counts
}

// Block inserts a block entry for ip lasting the configured duration.
func (g *Guard) Block(ip, reason string) {
	g.BlockFor(ip, reason, g.cfg.BlockDuration)
}

// BlockFor inserts a block entry for ip lasting d. The incident
// responder uses this for its 1h and 24h policy blocks.
func (g *Guard) BlockFor(ip, reason string, d time.Duration) {
	now := g.now()
	entry := BlockEntry{
		IP:        ip,
		Reason:    reason,
		BlockedAt: now,
		UnblockAt: now.Add(d),
	}

	g.mu.Lock()
	_, existed := g.blocks[ip]
	g.blocks[ip] = entry
	g.mu.Unlock()

	logging.Warn().
		Str("ip", ip).
		Str("reason", reason).
		Time("unblock_at", entry.UnblockAt).
		Msg("ip blocked by rate guard")

	if !existed && g.onBlock != nil {
		g.onBlock(entry)
	}
}

// IsBlocked reports whether ip is currently blocked. Stale entries are
// expired lazily on read.
func (g *Guard) IsBlocked(ip string) (BlockEntry, bool) {
	g.mu.RLock()
	entry, ok := g.blocks[ip]
	g.mu.RUnlock()

	if !ok {
		return BlockEntry{}, false
	}
	if entry.Expired(g.now()) {
		g.mu.Lock()
		if cur, still := g.blocks[ip]; still && cur.Expired(g.now()) {
			delete(g.blocks, ip)
		}
		g.mu.Unlock()
		return BlockEntry{}, false
	}
	return entry, true
}

// Unblock removes any block entry for ip.
func (g *Guard) Unblock(ip string) {
	g.mu.Lock()
	delete(g.blocks, ip)
	g.mu.Unlock()
}

// Blocked returns a snapshot of active block entries.
func (g *Guard) Blocked() []BlockEntry {
	g.mu.RLock()
	defer g.mu.RUnlock()

	now := g.now()
	entries := make([]BlockEntry, 0, len(g.blocks))
	for _, e := range g.blocks {
		if !e.Expired(now) {
			entries = append(entries, e)
		}
	}
	return entries
}

// Sweep removes counters idle for more than 60 seconds and expired
// block entries. It collects candidates under the read lock and evicts
// under short write-lock holds, so a large map never stalls requests
// for the whole pass.
//
// Sweep never removes an entry before its recorded expiry.
func (g *Guard) Sweep() (counters, blocks int) {
	now := g.now()

	g.mu.RLock()
	staleIPs := make([]string, 0)
	for ip, c := range g.counters {
		if now.Sub(c.lastSeen) > 60*time.Second {
			staleIPs = append(staleIPs, ip)
		}
	}
	expiredIPs := make([]string, 0)
	for ip, e := range g.blocks {
		if e.Expired(now) {
			expiredIPs = append(expiredIPs, ip)
		}
	}
	g.mu.RUnlock()

	const batch = 128
	for start := 0; start < len(staleIPs); start += batch {
		end := min(start+batch, len(staleIPs))
		g.mu.Lock()
		for _, ip := range staleIPs[start:end] {
			// Re-check: the IP may have become active again.
			if c, ok := g.counters[ip]; ok && now.Sub(c.lastSeen) > 60*time.Second {
				delete(g.counters, ip)
				counters++
			}
		}
		g.mu.Unlock()
	}
	for start := 0; start < len(expiredIPs); start += batch {
		end := min(start+batch, len(expiredIPs))
		g.mu.Lock()
		for _, ip := range expiredIPs[start:end] {
			if e, ok := g.blocks[ip]; ok && e.Expired(now) {
				delete(g.blocks, ip)
				blocks++
			}
		}
		g.mu.Unlock()
	}

	if counters > 0 || blocks > 0 {
		logging.Debug().
			Int("counters", counters).
			Int("blocks", blocks).
			Msg("rate guard sweep completed")
	}
	return counters, blocks
}
