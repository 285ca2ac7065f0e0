// Sentinel - In-Process Threat Detection and Response
// Copyright 2026 ClipDeck Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clipdeck/sentinel

// Package audit provides the tamper-resistant, PII-masked audit trail.
// Every security decision in the pipeline lands here. Entries are
// append-only: no update or delete path exists in this module, and
// persistence failures never propagate to request handling.
package audit

import (
	"context"
	"time"
)

// Entry is one audit row. Metadata, IPAddress and UserAgent are
// masked/truncated before the entry is queued; the unmasked values
// never reach a Store.
type Entry struct {
	// ID is assigned on append.
	ID string `json:"id"`

	UserID string `json:"user_id,omitempty"`
	TeamID string `json:"team_id,omitempty"`

	// Action describes the security decision (e.g. waf.blocked,
	// rate.blocked, ip.denied, anomaly.detected).
	Action string `json:"action"`

	ResourceType string `json:"resource_type"`
	ResourceID   string `json:"resource_id,omitempty"`

	// Metadata holds decision details, recursively PII-masked.
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	// IPAddress has its last octet zeroed.
	IPAddress string `json:"ip_address,omitempty"`

	// UserAgent is truncated to 50 characters.
	UserAgent string `json:"user_agent,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Filter selects entries for queries.
type Filter struct {
	Action       string     `json:"action,omitempty"`
	UserID       string     `json:"user_id,omitempty"`
	ResourceType string     `json:"resource_type,omitempty"`
	StartTime    *time.Time `json:"start_time,omitempty"`
	EndTime      *time.Time `json:"end_time,omitempty"`

	// Limit caps results; 0 means the store default.
	Limit int `json:"limit,omitempty"`
}

// Store persists audit entries. The relational store is an external
// collaborator implementing this interface; MemoryStore is the
// in-process implementation.
type Store interface {
	// Save persists one entry.
	Save(ctx context.Context, entry *Entry) error

	// Query retrieves entries matching the filter, newest first.
	Query(ctx context.Context, filter Filter) ([]Entry, error)

	// Count returns the number of entries matching the filter.
	Count(ctx context.Context, filter Filter) (int64, error)
}
