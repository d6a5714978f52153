// Package metrics provides Prometheus metrics for the API and worker.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "wte"

var (
	// HTTPRequestsTotal counts HTTP requests by route template, method and status code.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)

	// HTTPRequestDuration measures request latency by route template.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)

	// StatsReportsTotal counts statistics reports by kind and cache outcome.
	StatsReportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stats_reports_total",
			Help:      "Total number of statistics reports served",
		},
		[]string{"kind", "cache"},
	)

	// StatsItemsAggregated observes how many items a single aggregation ranked.
	StatsItemsAggregated = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stats_items_aggregated",
			Help:      "Distribution of item counts per aggregation",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 250},
		},
	)

	// LLMRequestsTotal counts LLM calls by operation and status.
	LLMRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Total number of LLM completions",
		},
		[]string{"operation", "status"},
	)

	// JobsProcessedTotal counts worker jobs by type and outcome.
	JobsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_processed_total",
			Help:      "Total number of queue jobs processed",
		},
		[]string{"type", "status"},
	)
)

// RecordStatsReport records a served statistics report.
func RecordStatsReport(kind string, cacheHit bool, items int) {
	outcome := "miss"
	if cacheHit {
		outcome = "hit"
	}
	StatsReportsTotal.WithLabelValues(kind, outcome).Inc()
	if !cacheHit {
		StatsItemsAggregated.Observe(float64(items))
	}
}

// RecordLLM records an LLM completion.
func RecordLLM(operation string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	LLMRequestsTotal.WithLabelValues(operation, status).Inc()
}

// RecordJob records a processed queue job.
func RecordJob(jobType, status string) {
	JobsProcessedTotal.WithLabelValues(jobType, status).Inc()
}
