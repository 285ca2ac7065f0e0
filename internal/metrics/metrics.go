// Sentinel - In-Process Threat Detection and Response
// Copyright 2026 ClipDeck Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clipdeck/sentinel

// Package metrics registers and exposes Prometheus collectors for the
// pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sentinel",
		Name:      "http_requests_total",
		Help:      "HTTP requests processed by the pipeline.",
	}, []string{"method", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "sentinel",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency including pipeline overhead.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method"})

	activeRequests = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "sentinel",
		Name:      "http_active_requests",
		Help:      "Requests currently in flight.",
	})

	blockedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sentinel",
		Name:      "requests_blocked_total",
		Help:      "Requests denied by the pipeline, by reason code.",
	}, []string{"code"})

	signalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sentinel",
		Name:      "threat_signals_total",
		Help:      "Threat signals produced by detectors.",
	}, []string{"category", "severity"})

	incidentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sentinel",
		Name:      "incidents_total",
		Help:      "Incidents handled by the responder.",
	}, []string{"type", "severity"})
)

// TrackActiveRequest adjusts the in-flight gauge.
func TrackActiveRequest(start bool) {
	if start {
		activeRequests.Inc()
	} else {
		activeRequests.Dec()
	}
}

// RecordRequest records one completed request.
func RecordRequest(method, status string, duration time.Duration) {
	requestsTotal.WithLabelValues(method, status).Inc()
	requestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordBlocked counts one denied request by response code.
func RecordBlocked(code string) {
	blockedTotal.WithLabelValues(code).Inc()
}

// RecordSignal counts one produced threat signal.
func RecordSignal(category, severity string) {
	signalsTotal.WithLabelValues(category, severity).Inc()
}

// RecordIncident counts one handled incident.
func RecordIncident(incidentType, severity string) {
	incidentsTotal.WithLabelValues(incidentType, severity).Inc()
}
