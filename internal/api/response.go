// Sentinel - In-Process Threat Detection and Response
// Copyright 2026 ClipDeck Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clipdeck/sentinel

// Package api exposes the admin and ingest HTTP surface over chi.
package api

import (
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/clipdeck/sentinel/internal/logging"
)

// APIResponse is the response wrapper for all admin endpoints.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
	Meta    *APIMeta    `json:"meta,omitempty"`
}

// APIError carries a machine-readable code and a human-readable message.
type APIError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// APIMeta carries response metadata.
type APIMeta struct {
	Timestamp time.Time `json:"timestamp"`
	Count     int       `json:"count,omitempty"`
	Total     int64     `json:"total,omitempty"`
}

// Error codes for admin API responses.
const (
	ErrCodeBadRequest      = "BAD_REQUEST"
	ErrCodeNotFound        = "NOT_FOUND"
	ErrCodeTooManyRequests = "TOO_MANY_REQUESTS"
	ErrCodeInternalError   = "INTERNAL_ERROR"
)

func writeJSON(w http.ResponseWriter, status int, resp APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logging.Error().Err(err).Msg("failed to encode api response")
	}
}

func respondSuccess(w http.ResponseWriter, data interface{}) {
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
		Meta:    &APIMeta{Timestamp: time.Now().UTC()},
	})
}

func respondList(w http.ResponseWriter, data interface{}, count int, total int64) {
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
		Meta: &APIMeta{
			Timestamp: time.Now().UTC(),
			Count:     count,
			Total:     total,
		},
	})
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, APIResponse{
		Success: false,
		Error:   &APIError{Code: code, Message: message},
		Meta:    &APIMeta{Timestamp: time.Now().UTC()},
	})
}
