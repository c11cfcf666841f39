// Package metrics exposes Prometheus collectors for the staging pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// IngestionsTotal counts ingestion attempts by outcome.
	IngestionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pagelake_ingestions_total",
			Help: "Total number of partner ingestion attempts by outcome",
		},
		[]string{"outcome"},
	)

	// FetchDurationSeconds observes partner fetch latency.
	FetchDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pagelake_fetch_duration_seconds",
			Help:    "Partner endpoint fetch duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
		[]string{"platform"},
	)

	// StagedFilesTotal counts raw files written by detected format.
	StagedFilesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pagelake_staged_files_total",
			Help: "Total number of raw files staged by format",
		},
		[]string{"format"},
	)

	// BatchRecordsTotal counts staging records handled by the batch processor.
	BatchRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pagelake_batch_records_total",
			Help: "Total number of staging records processed by final status",
		},
		[]string{"status"},
	)

	// ProcessedRowsTotal counts rows persisted after normalization.
	ProcessedRowsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pagelake_processed_rows_total",
			Help: "Total number of normalized rows persisted",
		},
	)

	// DroppedRowsTotal counts rows removed during normalization by reason.
	DroppedRowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pagelake_dropped_rows_total",
			Help: "Total number of rows dropped during normalization by reason",
		},
		[]string{"reason"},
	)

	// BulkChunksTotal counts committed bulk-insert chunks.
	BulkChunksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pagelake_bulk_chunks_total",
			Help: "Total number of committed processed-row chunks",
		},
	)

	// HTTPRequestDurationSeconds observes HTTP request latency by method and status code.
	HTTPRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pagelake_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "code"},
	)
)
