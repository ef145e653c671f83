// Package metrics provides Prometheus metrics for pricewatch-api.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "pricewatch"

var (
	// UpstreamCalls counts upstream calls by final outcome (ok, exhausted, cancelled).
	UpstreamCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_calls_total",
			Help:      "Total number of upstream model calls by outcome",
		},
		[]string{"outcome"},
	)

	// UpstreamAttempts counts individual attempts, including retries.
	UpstreamAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_attempts_total",
			Help:      "Total number of upstream attempts by result",
		},
		[]string{"result"},
	)

	// UpstreamCallDuration measures a call including retries and backoff.
	UpstreamCallDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_call_duration_seconds",
			Help:      "Duration of upstream calls in seconds",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80},
		},
	)

	// QuotaRejections counts calls refused by the process-wide quota.
	QuotaRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_quota_rejections_total",
			Help:      "Upstream calls refused locally by window",
		},
		[]string{"window"},
	)

	// Fallbacks counts operations answered with fallback data.
	Fallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallbacks_total",
			Help:      "Operations answered with fallback data",
		},
		[]string{"operation", "reason"},
	)

	// WorkflowRuns counts workflow runs by terminal stage.
	WorkflowRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_runs_total",
			Help:      "Search workflow runs by terminal stage",
		},
		[]string{"stage"},
	)

	// WorkflowStageDuration measures each workflow stage.
	WorkflowStageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "workflow_stage_duration_seconds",
			Help:      "Duration of workflow stages in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	// SearchCache counts cache lookups by source (redis, database, miss).
	SearchCache = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_cache_lookups_total",
			Help:      "Search cache lookups by source",
		},
		[]string{"source"},
	)

	// TrackedRefreshes counts background refreshes of tracked products.
	TrackedRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tracked_refreshes_total",
			Help:      "Background tracked product refreshes by status",
		},
		[]string{"status"},
	)
)

// RecordFallback records an operation answered with fallback data.
func RecordFallback(operation, reason string) {
	Fallbacks.WithLabelValues(operation, reason).Inc()
}
