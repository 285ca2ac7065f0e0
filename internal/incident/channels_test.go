// Sentinel - In-Process Threat Detection and Response
// Copyright 2026 ClipDeck Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clipdeck/sentinel

package incident

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"

	"github.com/clipdeck/sentinel/internal/threat"
)

func TestWebhookChannelPostsAlertJSON(t *testing.T) {
	var received Alert
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %s, want application/json", ct)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &received); err != nil {
			t.Errorf("body is not an alert: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	ch := NewWebhookChannel(server.URL)
	alert := &Alert{
		IncidentID: "inc-10",
		Type:       TypeSQLInjection,
		Severity:   threat.SeverityCritical,
		IP:         "203.0.113.20",
	}
	if err := ch.Send(context.Background(), alert); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if received.IncidentID != "inc-10" {
		t.Errorf("received incident id = %s, want inc-10", received.IncidentID)
	}
}

func TestSlackChannelPayloadShape(t *testing.T) {
	var payload map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &payload); err != nil {
			t.Errorf("invalid payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	ch := NewSlackChannel(server.URL)
	err := ch.Send(context.Background(), &Alert{
		IncidentID: "inc-11",
		Type:       TypeBruteForce,
		Severity:   threat.SeverityHigh,
		IP:         "203.0.113.21",
		UserID:     "user-1",
	})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if _, ok := payload["text"]; !ok {
		t.Error("slack payload missing text field")
	}
	if _, ok := payload["attachments"]; !ok {
		t.Error("slack payload missing attachments")
	}
}

func TestHTTPChannelErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	ch := NewWebhookChannel(server.URL)
	if err := ch.Send(context.Background(), &Alert{IncidentID: "inc-12"}); err == nil {
		t.Fatal("expected error for 502 response")
	}
}

func TestHTTPChannelBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	ch := NewWebhookChannel(server.URL)
	for i := 0; i < 3; i++ {
		if err := ch.Send(context.Background(), &Alert{IncidentID: "inc-13"}); err == nil {
			t.Fatalf("send %d should have failed", i+1)
		}
	}

	err := ch.Send(context.Background(), &Alert{IncidentID: "inc-13"})
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("after 3 consecutive failures Send returned %v, want open breaker", err)
	}
}
