// Sentinel - In-Process Threat Detection and Response
// Copyright 2026 ClipDeck Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clipdeck/sentinel

package services

import (
	"context"
)

// AlertDispatcher matches the dispatcher's Run method. Satisfied by
// *incident.Dispatcher.
type AlertDispatcher interface {
	Run(ctx context.Context) error
}

// DispatcherService runs the alert dispatcher under supervision so a
// crash in channel delivery restarts the dispatch loop without losing
// the queue.
type DispatcherService struct {
	dispatcher AlertDispatcher
	name       string
}

// NewDispatcherService wraps an alert dispatcher.
func NewDispatcherService(dispatcher AlertDispatcher) *DispatcherService {
	return &DispatcherService{
		dispatcher: dispatcher,
		name:       "alert-dispatcher",
	}
}

// Serve implements suture.Service.
func (d *DispatcherService) Serve(ctx context.Context) error {
	return d.dispatcher.Run(ctx)
}

// String implements fmt.Stringer for suture's event log.
func (d *DispatcherService) String() string {
	return d.name
}
