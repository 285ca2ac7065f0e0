// Sentinel - In-Process Threat Detection and Response
// Copyright 2026 ClipDeck Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clipdeck/sentinel

// Package services wraps Sentinel's components as supervised
// suture.Service implementations.
package services

import (
	"context"
	"time"

	"github.com/clipdeck/sentinel/internal/logging"
)

// SweepService periodically evicts expired state from one component.
// The rate guard, the threat aggregator and the behavior profiler each
// get their own instance so their intervals differ.
type SweepService struct {
	name     string
	interval time.Duration
	sweep    func() int
}

// NewSweepService creates a sweep loop. sweep returns how many items
// it evicted.
func NewSweepService(name string, interval time.Duration, sweep func() int) *SweepService {
	if interval <= 0 {
		interval = time.Hour
	}
	return &SweepService{
		name:     name,
		interval: interval,
		sweep:    sweep,
	}
}

// Serve implements suture.Service. It ticks until the context is
// canceled.
func (s *SweepService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			evicted := s.sweep()
			if evicted > 0 {
				logging.Debug().
					Str("service", s.name).
					Int("evicted", evicted).
					Msg("sweep completed")
			}
		}
	}
}

// String implements fmt.Stringer for suture's event log.
func (s *SweepService) String() string {
	return s.name
}
