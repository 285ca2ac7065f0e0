// Sentinel - In-Process Threat Detection and Response
// Copyright 2026 ClipDeck Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clipdeck/sentinel

package incident

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// mockChannel records deliveries.
type mockChannel struct {
	mu      sync.Mutex
	name    string
	enabled bool
	err     error
	sent    []*Alert
}

func (m *mockChannel) Name() string  { return m.name }
func (m *mockChannel) Enabled() bool { return m.enabled }

func (m *mockChannel) Send(ctx context.Context, alert *Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, alert)
	return nil
}

func (m *mockChannel) sentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func TestDispatcherDeliversToEnabledChannels(t *testing.T) {
	enabled := &mockChannel{name: "a", enabled: true}
	disabled := &mockChannel{name: "b", enabled: false}
	d := NewDispatcher(DispatcherConfig{
		QueueSize:      8,
		ChannelTimeout: time.Second,
		MinInterval:    time.Millisecond,
	}, enabled, disabled)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	d.Submit(&Alert{IncidentID: "inc-1"})

	deadline := time.After(2 * time.Second)
	for enabled.sentCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("alert was not delivered in time")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Run returned %v, want context.Canceled", err)
	}

	if disabled.sentCount() != 0 {
		t.Error("disabled channel must not receive alerts")
	}
}

func TestDispatcherChannelFailureIsolated(t *testing.T) {
	failing := &mockChannel{name: "failing", enabled: true, err: errors.New("endpoint down")}
	healthy := &mockChannel{name: "healthy", enabled: true}
	d := NewDispatcher(DispatcherConfig{
		QueueSize:      8,
		ChannelTimeout: time.Second,
		MinInterval:    time.Millisecond,
	}, failing, healthy)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	d.Submit(&Alert{IncidentID: "inc-2"})

	deadline := time.After(2 * time.Second)
	for healthy.sentCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("healthy channel did not receive the alert")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestSubmitDropsOldestOnOverflow(t *testing.T) {
	// No Run loop: the queue fills deterministically.
	d := NewDispatcher(DispatcherConfig{
		QueueSize:      2,
		ChannelTimeout: time.Second,
		MinInterval:    time.Millisecond,
	})

	for i := 0; i < 4; i++ {
		d.Submit(&Alert{IncidentID: fmt.Sprintf("inc-%d", i)})
	}

	if d.Dropped() != 2 {
		t.Errorf("Dropped() = %d, want 2", d.Dropped())
	}

	// The freshest alerts survive.
	first := <-d.queue
	second := <-d.queue
	if first.IncidentID != "inc-2" || second.IncidentID != "inc-3" {
		t.Errorf("surviving alerts = %s, %s, want inc-2, inc-3", first.IncidentID, second.IncidentID)
	}
}

func TestConsoleChannelAlwaysEnabled(t *testing.T) {
	ch := &ConsoleChannel{}
	if !ch.Enabled() {
		t.Error("console channel should always be enabled")
	}
	if err := ch.Send(context.Background(), &Alert{IncidentID: "inc-3", Type: TypeWAFBlock}); err != nil {
		t.Errorf("console send failed: %v", err)
	}
}

func TestHTTPChannelDisabledWithoutEndpoint(t *testing.T) {
	if NewWebhookChannel("").Enabled() {
		t.Error("webhook channel without endpoint should be disabled")
	}
	if !NewWebhookChannel("https://hooks.example/alert").Enabled() {
		t.Error("webhook channel with endpoint should be enabled")
	}
}
