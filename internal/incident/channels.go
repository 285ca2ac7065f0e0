// Sentinel - In-Process Threat Detection and Response
// Copyright 2026 ClipDeck Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clipdeck/sentinel

package incident

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/clipdeck/sentinel/internal/logging"
)

// ConsoleChannel logs alerts through the structured logger. Always
// enabled; the one channel that cannot fail.
type ConsoleChannel struct{}

// Name returns the channel name.
func (c *ConsoleChannel) Name() string { return "console" }

// Enabled always reports true.
func (c *ConsoleChannel) Enabled() bool { return true }

// Send writes the alert to the log.
func (c *ConsoleChannel) Send(ctx context.Context, alert *Alert) error {
	logging.Warn().
		Str("incident_id", alert.IncidentID).
		Str("type", alert.Type).
		Str("severity", string(alert.Severity)).
		Str("ip", alert.IP).
		Strs("responses", alert.Responses).
		Msg("SECURITY ALERT")
	return nil
}

// HTTPChannel posts JSON alert payloads to a configured endpoint.
// Webhook, email relay and SMS gateway channels are all HTTPChannels
// with different names and payload builders. A circuit breaker stops
// hammering an endpoint that keeps failing.
type HTTPChannel struct {
	name     string
	endpoint string
	client   *http.Client
	breaker  *gobreaker.CircuitBreaker[any]

	// payload builds the request body for an alert. Defaults to the
	// raw Alert JSON.
	payload func(*Alert) (any, error)
}

// newBreaker builds the shared breaker settings: open after 3
// consecutive failures, retry after 30s.
func newBreaker(name string) *gobreaker.CircuitBreaker[any] {
	return gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:    name,
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("channel", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("alert channel breaker state changed")
		},
	})
}

// NewWebhookChannel creates a generic webhook channel. An empty
// endpoint disables it.
func NewWebhookChannel(endpoint string) *HTTPChannel {
	return &HTTPChannel{
		name:     "webhook",
		endpoint: endpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
		breaker:  newBreaker("webhook"),
	}
}

// NewSlackChannel creates a Slack incoming-webhook channel.
func NewSlackChannel(endpoint string) *HTTPChannel {
	return &HTTPChannel{
		name:     "slack",
		endpoint: endpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
		breaker:  newBreaker("slack"),
		payload: func(alert *Alert) (any, error) {
			return map[string]interface{}{
				"text": fmt.Sprintf(":rotating_light: *%s* incident `%s` from `%s` (severity %s)",
					alert.Type, alert.IncidentID, alert.IP, alert.Severity),
				"attachments": []map[string]interface{}{
					{
						"color":  slackColor(alert),
						"fields": slackFields(alert),
					},
				},
			}, nil
		},
	}
}

// NewEmailChannel creates a mail-relay hook channel. The relay itself
// is an external collaborator; Sentinel only posts it a template.
func NewEmailChannel(endpoint string) *HTTPChannel {
	return &HTTPChannel{
		name:     "email",
		endpoint: endpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
		breaker:  newBreaker("email"),
		payload: func(alert *Alert) (any, error) {
			return map[string]interface{}{
				"subject": fmt.Sprintf("[sentinel] %s incident from %s", alert.Type, alert.IP),
				"body": fmt.Sprintf("Incident %s\nType: %s\nSeverity: %s\nIP: %s\nResponses: %v",
					alert.IncidentID, alert.Type, alert.Severity, alert.IP, alert.Responses),
			}, nil
		},
	}
}

// NewSMSChannel creates an SMS-gateway hook channel.
func NewSMSChannel(endpoint string) *HTTPChannel {
	return &HTTPChannel{
		name:     "sms",
		endpoint: endpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
		breaker:  newBreaker("sms"),
		payload: func(alert *Alert) (any, error) {
			return map[string]interface{}{
				"message": fmt.Sprintf("sentinel %s incident %s from %s", alert.Severity, alert.Type, alert.IP),
			}, nil
		},
	}
}

// Name returns the channel name.
func (c *HTTPChannel) Name() string { return c.name }

// Enabled reports whether the channel has an endpoint.
func (c *HTTPChannel) Enabled() bool { return c.endpoint != "" }

// Send posts the alert payload through the circuit breaker.
func (c *HTTPChannel) Send(ctx context.Context, alert *Alert) error {
	payload := any(alert)
	if c.payload != nil {
		var err error
		payload, err = c.payload(alert)
		if err != nil {
			return fmt.Errorf("%s: build payload: %w", c.name, err)
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%s: marshal payload: %w", c.name, err)
	}

	_, err = c.breaker.Execute(func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			return nil, fmt.Errorf("endpoint returned status %d", resp.StatusCode)
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("%s: %w", c.name, err)
	}
	return nil
}

func slackColor(alert *Alert) string {
	switch alert.Severity {
	case "critical":
		return "#d00000"
	case "high":
		return "#e85d04"
	default:
		return "#ffba08"
	}
}

func slackFields(alert *Alert) []map[string]interface{} {
	fields := []map[string]interface{}{
		{"title": "Incident", "value": alert.IncidentID, "short": true},
		{"title": "Severity", "value": string(alert.Severity), "short": true},
		{"title": "IP", "value": alert.IP, "short": true},
	}
	if alert.UserID != "" {
		fields = append(fields, map[string]interface{}{
			"title": "User", "value": alert.UserID, "short": true,
		})
	}
	return fields
}
