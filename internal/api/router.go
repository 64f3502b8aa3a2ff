// Gaia World Sync - Real-Time World State Synchronization Engine
// Copyright 2026 Aeonia AI
// SPDX-License-Identifier: Apache-2.0
// https://github.com/Aeonia-ai/gaia-sub003

// Package api provides the HTTP surface: the websocket attach endpoint,
// operational REST endpoints, health probes, and Prometheus metrics.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Aeonia-ai/gaia-sub003/internal/config"
	"github.com/Aeonia-ai/gaia-sub003/internal/session"
)

// Router builds the chi handler tree.
type Router struct {
	handler *Handler
	hub     *session.Hub
	cfg     config.ServerConfig
}

// NewRouter creates a Router.
func NewRouter(handler *Handler, hub *session.Hub, cfg config.ServerConfig) *Router {
	return &Router{handler: handler, hub: hub, cfg: cfg}
}

// Setup configures all routes.
func (rt *Router) Setup() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: rt.cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		MaxAge:         86400,
	}))

	// Health probes get a permissive limit so monitors can poll
	// frequently without being able to flood.
	r.Group(func(r chi.Router) {
		r.Use(httprate.LimitByIP(1000, time.Minute))
		r.Get("/healthz", rt.handler.HealthLive)
		r.Get("/readyz", rt.handler.HealthReady)
	})

	r.Handle("/metrics", promhttp.Handler())

	// Websocket attach: limit upgrades, not frames. Per-command rate
	// limiting happens inside the session.
	r.With(httprate.LimitByRealIP(30, time.Minute)).Get("/ws", rt.hub.HandleWS)

	r.Route("/api/v1", func(r chi.Router) {
		if rt.cfg.RateLimitReqs > 0 {
			window := rt.cfg.RateLimitWindow
			if window <= 0 {
				window = time.Minute
			}
			r.Use(httprate.LimitByRealIP(rt.cfg.RateLimitReqs, window))
		}

		r.Route("/experiences/{experienceID}", func(r chi.Router) {
			r.Get("/version", rt.handler.WorldVersion)
			r.Get("/snapshot", rt.handler.WorldSnapshot)
		})
	})

	return r
}
