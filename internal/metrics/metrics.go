// Package metrics provides Prometheus metrics for the correlation service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the correlation service.
type Metrics struct {
	// Link outcomes, labeled new_root / continued / forked / compact / subtask
	LinkOutcomesTotal *prometheus.CounterVec
	LinkDuration      prometheus.Histogram

	// Executor failures, labeled by executor name
	QueryFailuresTotal *prometheus.CounterVec

	// Lookup cache effectiveness
	CacheHitsTotal   prometheus.Counter
	CacheMissesTotal prometheus.Counter
}

// New creates and registers all metrics on the default registry.
func New() *Metrics {
	m := &Metrics{}

	m.LinkOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stitch_link_outcomes_total",
			Help: "Total number of correlated requests by linking outcome",
		},
		[]string{"outcome"},
	)

	m.LinkDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "stitch_link_duration_seconds",
			Help:    "Duration of one Link call in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	m.QueryFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stitch_query_failures_total",
			Help: "Total number of query executor failures",
		},
		[]string{"executor"},
	)

	m.CacheHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stitch_lookup_cache_hits_total",
			Help: "Total number of parent lookup cache hits",
		},
	)

	m.CacheMissesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stitch_lookup_cache_misses_total",
			Help: "Total number of parent lookup cache misses",
		},
	)

	return m
}
