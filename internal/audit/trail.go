// Sentinel - In-Process Threat Detection and Response
// Copyright 2026 ClipDeck Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clipdeck/sentinel

package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/clipdeck/sentinel/internal/logging"
)

// Config holds trail configuration.
type Config struct {
	Enabled bool

	// BufferSize is the async write buffer. When full, new entries are
	// dropped with a warning; audit logging never blocks request
	// handling.
	BufferSize int
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:    true,
		BufferSize: 1000,
	}
}

// Trail is the audit logging service. Append masks, stamps and queues
// the entry; a background writer drains the queue into the Store.
// Append never panics outward and never returns an error: subsystem
// availability beats surfacing its own failures.
type Trail struct {
	cfg   Config
	store Store

	entryChan chan *Entry
	stopChan  chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup

	dropped atomic.Int64

	now func() time.Time
}

// Option configures a Trail.
type Option func(*Trail)

// WithClock injects a clock for tests.
func WithClock(now func() time.Time) Option {
	return func(t *Trail) { t.now = now }
}

// NewTrail creates an audit trail and starts its writer.
func NewTrail(store Store, cfg Config, opts ...Option) *Trail {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultConfig().BufferSize
	}

	t := &Trail{
		cfg:       cfg,
		store:     store,
		entryChan: make(chan *Entry, cfg.BufferSize),
		stopChan:  make(chan struct{}),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}

	t.wg.Add(1)
	go t.writer()
	return t
}

// Append records one audit entry. The entry's metadata is recursively
// PII-masked, its IP gets the last octet zeroed and its user-agent is
// truncated before anything is stored; the unmasked values never leave
// this call. On a full buffer the entry is dropped with a warning
// (documented overload policy: drop-newest, count, log).
func (t *Trail) Append(entry Entry) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error().Interface("panic", r).Msg("audit append panicked")
		}
	}()

	if !t.cfg.Enabled {
		return
	}

	entry.ID = uuid.New().String()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = t.now()
	}
	entry.Metadata = MaskMetadata(entry.Metadata)
	if entry.IPAddress != "" {
		entry.IPAddress = ZeroLastOctet(entry.IPAddress)
	}
	if entry.UserAgent != "" {
		entry.UserAgent = TruncateUserAgent(entry.UserAgent)
	}

	select {
	case t.entryChan <- &entry:
	default:
		t.dropped.Add(1)
		logging.Warn().
			Str("action", entry.Action).
			Int64("dropped_total", t.dropped.Load()).
			Msg("audit buffer full, dropping entry")
	}
}

// writer drains the buffer into the store.
func (t *Trail) writer() {
	defer t.wg.Done()

	for {
		select {
		case <-t.stopChan:
			// Drain whatever is queued, then exit.
			for {
				select {
				case entry := <-t.entryChan:
					t.persist(entry)
				default:
					return
				}
			}
		case entry := <-t.entryChan:
			t.persist(entry)
		}
	}
}

// persist writes one entry, swallowing store failures.
func (t *Trail) persist(entry *Entry) {
	if t.store == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := t.store.Save(ctx, entry); err != nil {
		logging.Error().Err(err).Str("action", entry.Action).Msg("failed to persist audit entry")
	}
}

// Dropped returns the number of entries dropped due to a full buffer.
func (t *Trail) Dropped() int64 {
	return t.dropped.Load()
}

// Query retrieves entries matching the filter.
func (t *Trail) Query(ctx context.Context, filter Filter) ([]Entry, error) {
	return t.store.Query(ctx, filter)
}

// Count returns the number of entries matching the filter.
func (t *Trail) Count(ctx context.Context, filter Filter) (int64, error) {
	return t.store.Count(ctx, filter)
}

// Close flushes queued entries and stops the writer. Safe to call
// more than once.
func (t *Trail) Close() error {
	t.stopOnce.Do(func() {
		close(t.stopChan)
	})
	t.wg.Wait()
	return nil
}
