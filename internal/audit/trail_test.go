// Sentinel - In-Process Threat Detection and Response
// Copyright 2026 ClipDeck Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clipdeck/sentinel

package audit

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestAppendMasksBeforeStorage(t *testing.T) {
	store := NewMemoryStore(100)
	trail := NewTrail(store, Config{Enabled: true, BufferSize: 10})

	trail.Append(Entry{
		UserID:       "user-1",
		Action:       "waf.blocked",
		ResourceType: "request",
		Metadata: map[string]interface{}{
			"email": "alice@example.com",
			"ip":    "10.0.0.7",
		},
		IPAddress: "203.0.113.99",
		UserAgent: strings.Repeat("m", 80),
	})
	if err := trail.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	entries, err := store.Query(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("stored entries = %d, want 1", len(entries))
	}

	entry := entries[0]
	if entry.ID == "" {
		t.Error("entry should get an ID on append")
	}
	if entry.IPAddress != "203.0.113.0" {
		t.Errorf("IPAddress = %q, want last octet zeroed", entry.IPAddress)
	}
	if !strings.HasSuffix(entry.UserAgent, "...") || len(entry.UserAgent) != userAgentMaxLen+3 {
		t.Errorf("UserAgent = %q, want 50 chars plus ellipsis", entry.UserAgent)
	}
	if entry.Metadata["email"] != "a***@e***.com" {
		t.Errorf("metadata email = %v, want masked", entry.Metadata["email"])
	}
	if entry.Metadata["ip"] != "10.0.*.*" {
		t.Errorf("metadata ip = %v, want 10.0.*.*", entry.Metadata["ip"])
	}
	if entry.CreatedAt.IsZero() {
		t.Error("CreatedAt should be stamped")
	}
}

func TestAppendDisabledTrail(t *testing.T) {
	store := NewMemoryStore(100)
	trail := NewTrail(store, Config{Enabled: false, BufferSize: 10})

	trail.Append(Entry{Action: "waf.blocked"})
	trail.Close()

	if store.Len() != 0 {
		t.Errorf("disabled trail stored %d entries, want 0", store.Len())
	}
}

func TestAppendDropsOnFullBuffer(t *testing.T) {
	// A nil-store trail with a tiny buffer and a stopped writer is the
	// simplest way to fill the channel deterministically.
	store := NewMemoryStore(100)
	trail := NewTrail(store, Config{Enabled: true, BufferSize: 2})
	trail.Close()

	for i := 0; i < 5; i++ {
		trail.Append(Entry{Action: "rate.blocked"})
	}

	if trail.Dropped() != 3 {
		t.Errorf("Dropped() = %d, want 3 (buffer of 2, five appends)", trail.Dropped())
	}
}

func TestCloseDrainsQueuedEntries(t *testing.T) {
	store := NewMemoryStore(1000)
	trail := NewTrail(store, Config{Enabled: true, BufferSize: 500})

	for i := 0; i < 100; i++ {
		trail.Append(Entry{Action: "ip.denied"})
	}
	trail.Close()

	if got := store.Len(); got != 100 {
		t.Errorf("store.Len() after Close = %d, want 100 (Close must drain)", got)
	}
}

func TestCloseIdempotent(t *testing.T) {
	trail := NewTrail(NewMemoryStore(10), Config{Enabled: true, BufferSize: 5})
	if err := trail.Close(); err != nil {
		t.Fatalf("first Close failed: %v", err)
	}
	if err := trail.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
}

func TestMemoryStoreEvictsOldestTenth(t *testing.T) {
	store := NewMemoryStore(100)
	ctx := context.Background()

	for i := 0; i < 101; i++ {
		entry := Entry{Action: fmt.Sprintf("action-%d", i)}
		if err := store.Save(ctx, &entry); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	// Hitting the cap drops the oldest 10 before appending.
	if got := store.Len(); got != 91 {
		t.Errorf("Len after overflow = %d, want 91", got)
	}

	count, _ := store.Count(ctx, Filter{Action: "action-0"})
	if count != 0 {
		t.Error("oldest entry should have been evicted")
	}
	count, _ = store.Count(ctx, Filter{Action: "action-100"})
	if count != 1 {
		t.Error("newest entry must be present")
	}
}

func TestMemoryStoreQueryNewestFirstWithFilter(t *testing.T) {
	store := NewMemoryStore(100)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		entry := Entry{
			Action:    "waf.blocked",
			UserID:    "user-1",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		store.Save(ctx, &entry)
	}
	other := Entry{Action: "rate.blocked", UserID: "user-2", CreatedAt: base}
	store.Save(ctx, &other)

	results, err := store.Query(ctx, Filter{Action: "waf.blocked"})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("len(results) = %d, want 3", len(results))
	}
	if !results[0].CreatedAt.After(results[1].CreatedAt) {
		t.Error("results should be newest first")
	}

	limited, _ := store.Query(ctx, Filter{Action: "waf.blocked", Limit: 2})
	if len(limited) != 2 {
		t.Errorf("limited results = %d, want 2", len(limited))
	}

	start := base.Add(90 * time.Second)
	windowed, _ := store.Query(ctx, Filter{StartTime: &start})
	if len(windowed) != 1 {
		t.Errorf("windowed results = %d, want 1", len(windowed))
	}
}
