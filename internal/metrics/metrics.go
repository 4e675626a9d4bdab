// TagCore - Bilingual Content Tagging and Trend Ranking
// Copyright 2026 Minbar Media Lab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/minbar/tagcore

// Package metrics exposes Prometheus instrumentation for the tagging engine:
// extraction throughput, reconcile latency and write volume, ranking
// recompute cost, cache efficiency and HTTP traffic.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Extraction metrics
	ExtractionTokens = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tagcore_extraction_tokens_total",
			Help: "Tag tokens found during extraction, by outcome",
		},
		[]string{"outcome"}, // "accepted", "rejected"
	)

	// Reconcile metrics
	ReconcileDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tagcore_reconcile_duration_seconds",
			Help:    "Duration of association reconcile operations",
			Buckets: prometheus.DefBuckets,
		},
	)

	ReconcileWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tagcore_reconcile_writes_total",
			Help: "Association writes applied by reconcile, by kind",
		},
		[]string{"kind"}, // "created", "deleted", "reinforced"
	)

	// Store metrics
	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tagcore_db_query_errors_total",
			Help: "DuckDB query errors by operation",
		},
		[]string{"operation"},
	)

	// Ranking metrics
	RankingRecomputeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tagcore_ranking_recompute_duration_seconds",
			Help:    "Duration of trending/popular ranking recomputation",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"ranking"}, // "trending", "popular"
	)

	// Cache metrics
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tagcore_cache_hits_total",
			Help: "Ranking cache hits",
		},
	)

	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tagcore_cache_misses_total",
			Help: "Ranking cache misses",
		},
	)

	CacheCoalesced = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tagcore_cache_coalesced_total",
			Help: "Callers that attached to an in-flight recompute instead of starting their own",
		},
	)

	CacheStaleServed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tagcore_cache_stale_served_total",
			Help: "Responses served from a stale cache entry after a recompute failure",
		},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tagcore_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tagcore_circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	// Reprocessor metrics
	ReprocessItems = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tagcore_reprocess_items_total",
			Help: "Content items visited by the reprocessor, by outcome",
		},
		[]string{"outcome"}, // "processed", "skipped", "failed"
	)

	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tagcore_http_requests_total",
			Help: "HTTP requests by path and status code",
		},
		[]string{"path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tagcore_http_request_duration_seconds",
			Help:    "HTTP request duration by path",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path"},
	)
)

// RecordHTTPRequest records one served HTTP request.
func RecordHTTPRequest(path string, status int, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(path, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(path).Observe(duration.Seconds())
}
