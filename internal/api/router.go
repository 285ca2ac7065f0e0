// Sentinel - In-Process Threat Detection and Response
// Copyright 2026 ClipDeck Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clipdeck/sentinel

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/clipdeck/sentinel/internal/config"
	"github.com/clipdeck/sentinel/internal/middleware"
)

// Router assembles the HTTP surface: the admin API, the metrics
// endpoint, and the protected application routes behind the security
// pipeline.
type Router struct {
	cfg      *config.Config
	handlers *Handlers
	pipeline *middleware.Pipeline

	// app is the host application's handler, mounted behind the
	// pipeline. May be nil when Sentinel runs standalone.
	app http.Handler
}

// NewRouter creates a router over the admin handlers and the security
// pipeline.
func NewRouter(cfg *config.Config, handlers *Handlers, pipeline *middleware.Pipeline, app http.Handler) *Router {
	return &Router{
		cfg:      cfg,
		handlers: handlers,
		pipeline: pipeline,
		app:      app,
	}
}

// Setup wires all routes and returns the root handler.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Prometheus)

	if len(router.cfg.Admin.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   router.cfg.Admin.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Get("/api/v1/health", router.handlers.Health)

	if router.cfg.Admin.Enabled {
		r.Route("/api/v1", func(r chi.Router) {
			r.Use(httprate.Limit(
				router.cfg.Admin.RateLimit,
				time.Minute,
				httprate.WithKeyFuncs(httprate.KeyByIP),
				httprate.WithLimitHandler(adminRateLimited),
			))

			r.Get("/audit", router.handlers.ListAuditEntries)

			r.Route("/lists", func(r chi.Router) {
				r.Get("/allow", router.handlers.ListAllowlist)
				r.Post("/allow", router.handlers.AddToAllowlist)
				r.Delete("/allow/{ip}", router.handlers.RemoveFromAllowlist)
				r.Get("/deny", router.handlers.ListDenylist)
				r.Post("/deny", router.handlers.AddToDenylist)
				r.Delete("/deny/{ip}", router.handlers.RemoveFromDenylist)
			})

			r.Get("/blocked", router.handlers.ListBlocked)
			r.Delete("/blocked/{ip}", router.handlers.Unblock)
			r.Get("/threats/{ip}", router.handlers.ThreatRecord)
			r.Get("/profiles/{userID}", router.handlers.BehaviorProfile)

			r.Post("/events/login", router.handlers.ReportLogin)
			r.Post("/incidents", router.handlers.ReportIncident)
		})
	}

	// Everything else runs through the detection pipeline before
	// reaching the host application.
	if router.app != nil {
		r.Handle("/*", router.pipeline.Handler(router.app))
	} else {
		r.Handle("/*", router.pipeline.Handler(http.NotFoundHandler()))
	}

	return r
}

// adminRateLimited answers admin requests over the httprate budget.
func adminRateLimited(w http.ResponseWriter, r *http.Request) {
	respondError(w, http.StatusTooManyRequests, ErrCodeTooManyRequests, "admin rate limit exceeded")
}
