// Package metrics exposes Prometheus collectors for the catalog.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Ingestion metrics
var (
	IngestFilesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "archiver_ingest_files_total",
			Help: "Files processed by ingestion batches, by result",
		},
		[]string{"result"}, // "inserted", "skipped"
	)

	IngestBatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "archiver_ingest_batches_total",
			Help: "Ingestion batches finished, by final status",
		},
		[]string{"status"}, // "completed", "failed", "aborted"
	)

	IngestSignalsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "archiver_ingest_signals_dropped_total",
			Help: "Progress signals dropped because the hand-off slot was occupied",
		},
	)

	IngestRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "archiver_ingest_running",
			Help: "Whether an ingestion batch is currently running (1 = running, 0 = idle)",
		},
	)

	DigestBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "archiver_digest_bytes_total",
			Help: "Total bytes read while computing content digests",
		},
	)
)

// Store metrics
var (
	StoreOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "archiver_store_op_duration_seconds",
			Help:    "Record store operation duration in seconds, lock wait included",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"op"},
	)

	StoreOpErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "archiver_store_op_errors_total",
			Help: "Record store operations that returned an error",
		},
		[]string{"op"},
	)
)
