// Sentinel - In-Process Threat Detection and Response
// Copyright 2026 ClipDeck Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clipdeck/sentinel

package iplist

import (
	"testing"
	"time"
)

// mockSource implements Source with mutable lists.
type mockSource struct {
	allow []string
	deny  []string
}

func (m *mockSource) AllowedIPs() []string { return m.allow }
func (m *mockSource) DeniedIPs() []string  { return m.deny }

func TestStoreSeedsFromSource(t *testing.T) {
	source := &mockSource{
		allow: []string{"10.0.0.1"},
		deny:  []string{"203.0.113.50"},
	}
	store := NewStore(source)

	if !store.IsAllowed("10.0.0.1") {
		t.Error("configured allowlist ip should be allowed")
	}
	if !store.IsDenied("203.0.113.50") {
		t.Error("configured denylist ip should be denied")
	}
	if store.IsAllowed("10.0.0.2") {
		t.Error("unknown ip should not be allowed")
	}
}

func TestRuntimeMutations(t *testing.T) {
	store := NewStore(nil)

	store.AddToDenylist("198.51.100.1", "manual block")
	if !store.IsDenied("198.51.100.1") {
		t.Error("ip added at runtime should be denied")
	}

	entry, ok := store.DenyEntry("198.51.100.1")
	if !ok {
		t.Fatal("expected a deny entry")
	}
	if entry.Reason != "manual block" {
		t.Errorf("entry reason = %q, want %q", entry.Reason, "manual block")
	}
	if !entry.ExpiresAt.IsZero() {
		t.Error("plain denylist entries should be permanent")
	}

	store.RemoveFromDenylist("198.51.100.1")
	if store.IsDenied("198.51.100.1") {
		t.Error("removed ip should not be denied")
	}

	store.AddToAllowlist("10.0.0.9")
	if !store.IsAllowed("10.0.0.9") {
		t.Error("ip added to allowlist should be allowed")
	}
	store.RemoveFromAllowlist("10.0.0.9")
	if store.IsAllowed("10.0.0.9") {
		t.Error("removed allowlist ip should not be allowed")
	}
}

func TestTemporaryDenyEntryExpires(t *testing.T) {
	current := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	store := NewStore(nil, WithClock(func() time.Time { return current }))

	store.AddToDenylistUntil("198.51.100.2", "24h containment", current.Add(24*time.Hour))
	if !store.IsDenied("198.51.100.2") {
		t.Fatal("entry should be denied before expiry")
	}

	current = current.Add(24*time.Hour + time.Minute)
	if store.IsDenied("198.51.100.2") {
		t.Error("entry should lapse after its expiry")
	}
	if _, ok := store.DenyEntry("198.51.100.2"); ok {
		t.Error("lapsed entry should be evicted on read")
	}
}

func TestSourceRefreshAfterTTL(t *testing.T) {
	current := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	source := &mockSource{}
	store := NewStore(source,
		WithClock(func() time.Time { return current }),
		WithRefreshTTL(time.Minute),
	)

	if store.IsDenied("203.0.113.60") {
		t.Fatal("ip not yet configured should not be denied")
	}

	source.deny = []string{"203.0.113.60"}

	// Within the TTL the stale view persists.
	if store.IsDenied("203.0.113.60") {
		t.Error("source change should not apply before the refresh TTL")
	}

	current = current.Add(2 * time.Minute)
	if !store.IsDenied("203.0.113.60") {
		t.Error("source change should apply after the refresh TTL")
	}
}

func TestSnapshots(t *testing.T) {
	store := NewStore(nil)
	store.AddToAllowlist("10.0.0.1")
	store.AddToDenylist("203.0.113.1", "a")
	store.AddToDenylist("203.0.113.2", "b")

	if got := len(store.Allowlist()); got != 1 {
		t.Errorf("len(Allowlist()) = %d, want 1", got)
	}
	if got := len(store.Denylist()); got != 2 {
		t.Errorf("len(Denylist()) = %d, want 2", got)
	}
}
