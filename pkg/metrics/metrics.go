// Package metrics provides Prometheus observability for the extraction
// engine. Metrics are registered automatically via promauto and recorded
// from the dispatcher hot path with label cardinality limited to the
// backend name.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PartitionsStarted counts partition extractions that entered the
	// AcquireConnection state, labeled by backend.
	PartitionsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cxpool_partitions_started_total",
		Help: "Total partition extractions started",
	}, []string{"backend"})

	// PartitionsCompleted counts partition extractions by terminal status
	// (success or failure).
	PartitionsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cxpool_partitions_completed_total",
		Help: "Total partition extractions reaching a terminal state",
	}, []string{"backend", "status"})

	// RowsExtracted counts rows streamed into destination buffers.
	RowsExtracted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cxpool_rows_extracted_total",
		Help: "Total rows written to destination buffers",
	}, []string{"backend"})

	// CheckoutFailures counts pool checkouts that failed or timed out.
	CheckoutFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cxpool_checkout_failures_total",
		Help: "Total connection checkout failures",
	}, []string{"backend"})

	// ExtractionDuration observes wall time of whole extraction requests.
	ExtractionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cxpool_extraction_duration_seconds",
		Help:    "End-to-end extraction duration",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
	}, []string{"backend"})
)
