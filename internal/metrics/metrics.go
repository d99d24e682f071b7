// Package metrics exposes Prometheus collectors for the cache, the
// reconciliation engine and the upstream sources.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "earnings"

var (
	cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_lookups_total",
		Help:      "Cache lookups by kind and answering tier (memory, disk, miss, stale-disk, inflight).",
	}, []string{"kind", "result"})

	cacheWriteErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_write_errors_total",
		Help:      "Failed disk writes by kind.",
	}, []string{"kind"})

	reconciliations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reconciliations_total",
		Help:      "Reconciliation runs by kind and outcome.",
	}, []string{"kind", "outcome"})

	reconcileDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "reconcile_duration_seconds",
		Help:      "Wall time of one reconciliation.",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30},
	}, []string{"kind"})

	sourceCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "source_calls_total",
		Help:      "Upstream adapter calls by source, data kind and outcome.",
	}, []string{"source", "data", "outcome"})
)

// CacheLookup records which tier answered a lookup.
func CacheLookup(kind, result string) {
	cacheLookups.WithLabelValues(kind, result).Inc()
}

// CacheWriteError records a failed disk write.
func CacheWriteError(kind string) {
	cacheWriteErrors.WithLabelValues(kind).Inc()
}

// Reconciled records one reconciliation run.
func Reconciled(kind string, ok bool, elapsed time.Duration) {
	reconciliations.WithLabelValues(kind, outcome(ok)).Inc()
	reconcileDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// SourceCall records one adapter call.
func SourceCall(source, data string, ok bool) {
	sourceCalls.WithLabelValues(source, data, outcome(ok)).Inc()
}

func outcome(ok bool) string {
	if ok {
		return "ok"
	}
	return "fail"
}
