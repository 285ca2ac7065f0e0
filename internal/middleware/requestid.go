// Sentinel - In-Process Threat Detection and Response
// Copyright 2026 ClipDeck Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clipdeck/sentinel

package middleware

import (
	"net/http"

	"github.com/clipdeck/sentinel/internal/logging"
)

const requestIDHeader = "X-Request-ID"

// RequestID attaches a request ID to the request context and echoes it on
// the response. An inbound X-Request-ID is trusted if present, otherwise a
// short correlation ID is generated.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(requestIDHeader)
		if requestID == "" {
			requestID = logging.GenerateCorrelationID()
		}

		ctx := logging.ContextWithRequestID(r.Context(), requestID)
		w.Header().Set(requestIDHeader, requestID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
