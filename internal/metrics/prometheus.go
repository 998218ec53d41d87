// Package metrics exposes prometheus counters and histograms for the merge
// orchestrator. Metrics are purely observational: nothing in internal/catalog
// reads them back, and a scrape failure never affects a merge's outcome.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for catalogbridge merges.
var (
	MergesStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalogbridge_merges_started_total",
			Help: "Total number of merge operations started",
		},
		[]string{"device_id"},
	)

	// MergesAborted is labeled by the failure stage: transport,
	// catalog-open, integrity-fail, merge-fail, upload-fail, swap-fail.
	MergesAborted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalogbridge_merges_aborted_total",
			Help: "Total number of merges aborted, labeled by failure stage",
		},
		[]string{"device_id", "stage"},
	)

	MergesSucceeded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalogbridge_merges_succeeded_total",
			Help: "Total number of merges committed via the atomic rename",
		},
		[]string{"device_id"},
	)

	ItemsInserted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalogbridge_items_inserted_total",
			Help: "Total number of item rows inserted, labeled by media kind",
		},
		[]string{"device_id", "media_kind"},
	)

	GhostsRemoved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalogbridge_ghosts_removed_total",
			Help: "Total number of catalog rows removed by ghost reconciliation",
		},
		[]string{"device_id"},
	)

	MergeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "catalogbridge_merge_duration_seconds",
			Help:    "Merge duration in seconds, from catalog download through commit",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"device_id"},
	)

	UploadDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "catalogbridge_upload_duration_seconds",
			Help:    "Per-file upload duration through the device adapter",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"device_id", "kind"},
	)

	// BreakerTrips is registered and exported, but nothing in this
	// repository increments it.
	BreakerTrips = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalogbridge_breaker_trips_total",
			Help: "Total number of times the device adapter circuit breaker opened",
		},
		[]string{"device_id"},
	)
)

// RecordMergeAborted increments the aborted counter for the given stage.
func RecordMergeAborted(deviceID, stage string) {
	MergesAborted.WithLabelValues(deviceID, stage).Inc()
}

// RecordMergeSucceeded increments the success counter and observes duration.
func RecordMergeSucceeded(deviceID string, duration time.Duration) {
	MergesSucceeded.WithLabelValues(deviceID).Inc()
	MergeDuration.WithLabelValues(deviceID).Observe(duration.Seconds())
}

// RecordUpload observes a single file upload's duration.
func RecordUpload(deviceID, kind string, duration time.Duration) {
	UploadDuration.WithLabelValues(deviceID, kind).Observe(duration.Seconds())
}
