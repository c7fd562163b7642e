// Package api exposes the consolidation triggers, stats, and health over
// HTTP.
package api

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iammorganparry/neurograph/internal/consolidate"
	"github.com/iammorganparry/neurograph/internal/store"
)

// NewRouter creates the Chi router with all routes and middleware.
// registry may be nil to disable the /metrics endpoint.
func NewRouter(
	st store.Store,
	trigger consolidate.Trigger,
	embedder EmbedderHealth,
	registry *prometheus.Registry,
	authToken string,
	logger *slog.Logger,
) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware (runs on ALL routes including /health)
	r.Use(CORS)
	r.Use(RequestID)
	r.Use(Logger(logger))
	r.Use(Recovery(logger))

	var metrics *Metrics
	if registry != nil {
		metrics = NewMetrics(registry)
	}

	healthH := NewHealthHandler(st, embedder)
	statsH := NewStatsHandler(st)
	triggerH := NewTriggerHandler(trigger, metrics)

	// Unauthenticated routes
	r.Get("/health", healthH.Health)
	if registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	// Authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(authToken))

		r.Route("/hooks", func(r chi.Router) {
			r.Post("/edit", triggerH.Edit)
			r.Post("/command", triggerH.Command)
			r.Post("/session/start", triggerH.SessionStart)
			r.Post("/session/end", triggerH.SessionEnd)
		})
		r.Post("/consolidate", triggerH.Consolidate)
		r.Get("/stats", statsH.Stats)
	})

	return r
}
