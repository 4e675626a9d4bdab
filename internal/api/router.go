// TagCore - Bilingual Content Tagging and Trend Ranking
// Copyright 2026 Minbar Media Lab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/minbar/tagcore

// Package api provides the HTTP surface of the tagging engine, routed with
// chi and instrumented with Prometheus.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/minbar/tagcore/internal/config"
)

// Router builds the HTTP handler tree.
type Router struct {
	handler *Handler
	chimw   *ChiMiddleware
}

// NewRouter creates a Router from the handler set and security config.
func NewRouter(handler *Handler, security *config.SecurityConfig) *Router {
	return &Router{
		handler: handler,
		chimw:   NewChiMiddleware(security),
	}
}

// Setup configures all routes and returns the root handler.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	// Global middleware, applied to all routes in order.
	r.Use(RequestIDWithLogging())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.chimw.CORS())

	// Health: permissive rate limit for monitoring probes.
	r.Route("/api/v1/health", func(r chi.Router) {
		r.Use(router.chimw.RateLimitHealth())
		r.Use(APISecurityHeaders())
		r.Get("/", router.handler.Health)
	})

	// Read endpoints: cached rankings and lookups.
	r.Route("/api/v1/tags", func(r chi.Router) {
		r.Use(router.chimw.RateLimit())
		r.Use(APISecurityHeaders())
		r.Use(PrometheusMetrics())

		r.Get("/trending", router.handler.TrendingTags)
		r.Get("/popular", router.handler.PopularTags)
		r.Get("/{key}", router.handler.TagByKey)
	})

	// Content endpoints: the change hook writes, the tag listing reads.
	r.Route("/api/v1/content", func(r chi.Router) {
		r.Use(APISecurityHeaders())
		r.Use(PrometheusMetrics())

		r.With(router.chimw.RateLimit()).Get("/{id}/tags", router.handler.ContentTags)
		r.With(router.chimw.RateLimitWrite()).Post("/{id}/changed", router.handler.ContentChanged)
	})

	// Admin endpoints: batch reprocess and tag soft delete.
	r.Route("/api/v1/admin", func(r chi.Router) {
		r.Use(router.chimw.RateLimitWrite())
		r.Use(APISecurityHeaders())
		r.Use(PrometheusMetrics())

		r.Post("/reprocess", router.handler.AdminReprocess)
		r.Delete("/tags/{key}", router.handler.AdminDeleteTag)
	})

	// Prometheus scrape endpoint.
	r.Handle("/metrics", promhttp.Handler())

	return r
}
