// Veilwatch - Overlay Monitoring Detection Service
// Copyright 2026 Veilwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/veilwatch/veilwatch

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/veilwatch/veilwatch/internal/config"
	"github.com/veilwatch/veilwatch/internal/middleware"
)

// Router wires handlers and middleware into the HTTP routing table.
type Router struct {
	handler *Handler
	server  config.ServerConfig
}

// NewRouter creates a Router.
func NewRouter(handler *Handler, server config.ServerConfig) *Router {
	return &Router{handler: handler, server: server}
}

// Setup configures all HTTP routes using the Chi router.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	// Global middleware, applied to all routes in order.
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: router.server.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	// Health probes get a permissive limit so orchestrators can poll
	// frequently.
	r.Route("/api/v1/health", func(r chi.Router) {
		r.Use(httprate.LimitByIP(1000, router.server.RateLimitWindow))
		r.Get("/live", router.handler.HealthLive)
		r.Get("/ready", router.handler.HealthReady)
	})

	r.Route("/api/v1", func(r chi.Router) {
		if router.server.RateLimitReqs > 0 {
			r.Use(httprate.LimitByIP(router.server.RateLimitReqs, router.server.RateLimitWindow))
		}
		r.Use(middleware.PrometheusMetrics)

		r.Get("/detection", router.handler.Detection)
		r.Get("/detection/snapshot", router.handler.Snapshot)
		r.Get("/detection/report", router.handler.Report)

		r.Post("/monitor/start", router.handler.MonitorStart)
		r.Post("/monitor/stop", router.handler.MonitorStop)
		r.Get("/monitor", router.handler.MonitorState)
		r.Get("/monitor/last", router.handler.MonitorLast)
	})

	// WebSocket upgrade sits outside the JSON middleware stack.
	r.Get("/ws", router.handler.WebSocket)

	// Prometheus scrape endpoint.
	r.Handle("/metrics", promhttp.Handler())

	return r
}
