// Package metrics exposes Prometheus instrumentation for detections, scorers
// and the HTTP API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Detection Metrics
	DetectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "threatlens_detections_total",
			Help: "Total number of completed detections",
		},
		[]string{"type", "status", "degraded"},
	)

	ScorerDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "threatlens_scorer_duration_seconds",
			Help:    "Time spent producing a verdict",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"type", "scorer"},
	)

	ScorerFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "threatlens_scorer_failures_total",
			Help: "Total number of binary scorer failures by kind",
		},
		[]string{"type", "kind"},
	)

	ArchiveUploads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "threatlens_archive_uploads_total",
			Help: "Total number of upload archive attempts",
		},
		[]string{"result"}, // "success", "error"
	)

	// API Endpoint Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "threatlens_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "route", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "threatlens_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"method", "route"},
	)
)

// RecordDetection records a completed detection.
func RecordDetection(detectionType, status string, degraded bool) {
	DetectionsTotal.WithLabelValues(detectionType, status, strconv.FormatBool(degraded)).Inc()
}

// RecordScorer records how long a scorer took.
func RecordScorer(detectionType, scorer string, duration time.Duration) {
	ScorerDuration.WithLabelValues(detectionType, scorer).Observe(duration.Seconds())
}

// RecordScorerFailure records a binary scorer failure.
func RecordScorerFailure(detectionType, kind string) {
	ScorerFailures.WithLabelValues(detectionType, kind).Inc()
}

// RecordArchiveUpload records the outcome of an archive write.
func RecordArchiveUpload(err error) {
	if err != nil {
		ArchiveUploads.WithLabelValues("error").Inc()
		return
	}
	ArchiveUploads.WithLabelValues("success").Inc()
}

// RecordAPIRequest records an API request metric.
func RecordAPIRequest(method, route string, statusCode int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, strconv.Itoa(statusCode)).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Handler serves the default registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}
