// Package metrics registers the prometheus collectors for the ingestion
// pipeline and the query API. Collectors are package-level and registered on
// the default registry; the API router exposes them at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// IngestJobsTotal counts completed ingestion jobs by outcome.
	IngestJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reach_ingest_jobs_total",
			Help: "Total ingestion jobs by product and final status",
		},
		[]string{"product", "status"},
	)

	// IngestJobDuration observes end-to-end job duration per product.
	IngestJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reach_ingest_job_duration_seconds",
			Help:    "Ingestion job duration from fetch to commit",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12), // 0.5s to ~17min
		},
		[]string{"product"},
	)

	// RecordsLoaded counts hydro records committed to the store.
	RecordsLoaded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reach_ingest_records_loaded_total",
			Help: "Hydro records committed to the store per product",
		},
		[]string{"product"},
	)

	// MalformedAlerts counts operator alerts raised after consecutive
	// malformed cycles for one product.
	MalformedAlerts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reach_ingest_malformed_alerts_total",
			Help: "Alerts raised after consecutive malformed cycles",
		},
		[]string{"product"},
	)

	// WeatherProbes counts weather service probes by outcome.
	WeatherProbes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reach_weather_probes_total",
			Help: "Weather service probes by outcome",
		},
		[]string{"status"},
	)

	// RetentionPruned counts rows removed by the retention job per table.
	RetentionPruned = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reach_retention_pruned_rows_total",
			Help: "Rows removed by the retention job per table",
		},
		[]string{"table"},
	)

	// QueryRequests counts API requests by endpoint and status class.
	QueryRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reach_query_requests_total",
			Help: "Query API requests by endpoint and status",
		},
		[]string{"endpoint", "status"},
	)

	// QueryDuration observes request latency per endpoint.
	QueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reach_query_duration_seconds",
			Help:    "Query API request duration",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
		},
		[]string{"endpoint"},
	)
)
