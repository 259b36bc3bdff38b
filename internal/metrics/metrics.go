// Package metrics provides Prometheus metrics for ranking and indexing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CandidatesTotal counts candidates offered to a top-N heap.
	// Labels: outcome (admitted, rejected, skipped)
	CandidatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lribcf",
			Subsystem: "topk",
			Name:      "candidates_total",
			Help:      "Total number of scored candidates by admission outcome",
		},
		[]string{"outcome"},
	)

	// QueryDuration tracks how long a similarity query takes.
	// Labels: kind (item, vector)
	QueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "lribcf",
			Subsystem: "recommend",
			Name:      "query_duration_seconds",
			Help:      "Duration of similarity queries in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	// ItemsIndexed is the number of items in the store after the last index run.
	ItemsIndexed = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "lribcf",
			Subsystem: "catalog",
			Name:      "items_indexed",
			Help:      "Number of items in the store after the last index run",
		},
	)

	// IndexRunsTotal counts index runs.
	// Labels: result (success, error, cached)
	IndexRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lribcf",
			Subsystem: "catalog",
			Name:      "index_runs_total",
			Help:      "Total number of catalog index runs by result",
		},
		[]string{"result"},
	)
)

// RecordQuery records the candidate outcomes and latency of one query
func RecordQuery(kind string, admitted, rejected, skipped int, elapsed time.Duration) {
	CandidatesTotal.WithLabelValues("admitted").Add(float64(admitted))
	CandidatesTotal.WithLabelValues("rejected").Add(float64(rejected))
	CandidatesTotal.WithLabelValues("skipped").Add(float64(skipped))
	QueryDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// RecordIndex records the outcome of an index run
func RecordIndex(result string, items int) {
	IndexRunsTotal.WithLabelValues(result).Inc()
	if result != "error" {
		ItemsIndexed.Set(float64(items))
	}
}
