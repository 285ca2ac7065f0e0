// Sentinel - In-Process Threat Detection and Response
// Copyright 2026 ClipDeck Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clipdeck/sentinel

package incident

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/clipdeck/sentinel/internal/logging"
)

// DispatcherConfig configures alert dispatch.
type DispatcherConfig struct {
	// QueueSize bounds the alert queue. Overload policy: drop-oldest.
	QueueSize int

	// ChannelTimeout bounds each channel delivery attempt.
	ChannelTimeout time.Duration

	// MinInterval paces deliveries so a burst of incidents cannot
	// flood the alert endpoints.
	MinInterval time.Duration
}

// DefaultDispatcherConfig returns production defaults.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		QueueSize:      256,
		ChannelTimeout: 3 * time.Second,
		MinInterval:    500 * time.Millisecond,
	}
}

// Dispatcher fans alerts out to all enabled channels from a single
// background goroutine. Submission is fire-and-forget: the request
// path never waits on a network call, and one channel failing never
// stops the others.
type Dispatcher struct {
	cfg      DispatcherConfig
	channels []Channel
	queue    chan *Alert
	limiter  *rate.Limiter
	dropped  atomic.Int64
}

// NewDispatcher creates a dispatcher. Run must be started for alerts
// to flow.
func NewDispatcher(cfg DispatcherConfig, channels ...Channel) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultDispatcherConfig().QueueSize
	}
	if cfg.ChannelTimeout <= 0 {
		cfg.ChannelTimeout = DefaultDispatcherConfig().ChannelTimeout
	}
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = DefaultDispatcherConfig().MinInterval
	}

	return &Dispatcher{
		cfg:      cfg,
		channels: channels,
		queue:    make(chan *Alert, cfg.QueueSize),
		limiter:  rate.NewLimiter(rate.Every(cfg.MinInterval), 5),
	}
}

// Submit queues an alert without blocking. When the queue is full the
// oldest queued alert is dropped to make room: fresher alerts carry
// more signal during an attack.
func (d *Dispatcher) Submit(alert *Alert) {
	select {
	case d.queue <- alert:
		return
	default:
	}

	// Queue full: evict the oldest and retry once.
	select {
	case old := <-d.queue:
		d.dropped.Add(1)
		logging.Warn().
			Str("incident_id", old.IncidentID).
			Int64("dropped_total", d.dropped.Load()).
			Msg("alert queue full, dropping oldest alert")
	default:
	}
	select {
	case d.queue <- alert:
	default:
		d.dropped.Add(1)
	}
}

// Dropped returns the number of alerts dropped due to overload.
func (d *Dispatcher) Dropped() int64 {
	return d.dropped.Load()
}

// Run drains the queue until ctx is canceled. Implements
// suture.Service via the supervisor wrapper.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case alert := <-d.queue:
			if err := d.limiter.Wait(ctx); err != nil {
				return err
			}
			d.deliver(ctx, alert)
		}
	}
}

// deliver sends one alert to every enabled channel. Each channel gets
// its own timeout and its failure is caught independently.
func (d *Dispatcher) deliver(ctx context.Context, alert *Alert) {
	for _, ch := range d.channels {
		if !ch.Enabled() {
			continue
		}

		chCtx, cancel := context.WithTimeout(ctx, d.cfg.ChannelTimeout)
		if err := ch.Send(chCtx, alert); err != nil {
			logging.Error().
				Err(err).
				Str("channel", ch.Name()).
				Str("incident_id", alert.IncidentID).
				Msg("alert delivery failed")
		}
		cancel()
	}
}
