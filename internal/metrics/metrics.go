// Package metrics defines Prometheus metrics for the photo gateway.
package metrics

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// registerOnce ensures Register() is idempotent.
var registerOnce sync.Once

// sizeBuckets are exponential buckets for request/response size histograms (bytes).
var sizeBuckets = []float64{256, 1024, 4096, 16384, 65536, 262144, 1048576, 4194304, 16777216, 67108864}

// HTTP metrics (RED: Rate, Errors, Duration).
var (
	// HTTPRequestsTotal counts total HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photogateway_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency in seconds by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "photogateway_http_request_duration_seconds",
			Help:    "Request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// HTTPRequestSize observes request body size in bytes.
	HTTPRequestSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "photogateway_http_request_size_bytes",
			Help:    "Request body size in bytes",
			Buckets: sizeBuckets,
		},
		[]string{"method", "path"},
	)

	// HTTPResponseSize observes response body size in bytes.
	HTTPResponseSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "photogateway_http_response_size_bytes",
			Help:    "Response body size in bytes",
			Buckets: sizeBuckets,
		},
		[]string{"method", "path"},
	)
)

// Photo operation metrics.
var (
	// UploadsTotal counts Ingest outcomes by effective visibility and status.
	UploadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photogateway_uploads_total",
			Help: "Photo uploads by visibility and outcome",
		},
		[]string{"visibility", "status"},
	)

	// UploadBytesTotal counts bytes written to the object store.
	UploadBytesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "photogateway_upload_bytes_total",
			Help: "Total photo bytes written to the object store",
		},
	)

	// ListedPhotos records how many photos the last listing returned.
	ListedPhotos = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "photogateway_listed_photos",
			Help: "Photos returned by the most recent listing",
		},
	)

	// ListingSkippedTotal counts objects dropped from listings because their
	// metadata could not be read.
	ListingSkippedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "photogateway_listing_skipped_total",
			Help: "Objects skipped during listing after a metadata fetch failure",
		},
	)

	// StorageOperationsTotal counts object store calls by operation and status.
	StorageOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photogateway_storage_operations_total",
			Help: "Object store operations by type and outcome",
		},
		[]string{"operation", "status"},
	)
)

// Register registers all Prometheus collectors with the default registry.
// It is safe to call multiple times; subsequent calls are no-ops.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			HTTPRequestsTotal,
			HTTPRequestDuration,
			HTTPRequestSize,
			HTTPResponseSize,
			UploadsTotal,
			UploadBytesTotal,
			ListedPhotos,
			ListingSkippedTotal,
			StorageOperationsTotal,
		)
		// Pre-create the common series so they show up before the first upload.
		UploadsTotal.WithLabelValues("public", "success")
		UploadsTotal.WithLabelValues("private", "success")
	})
}

// ObserveStorage records the outcome of one object store call.
func ObserveStorage(operation string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	StorageOperationsTotal.WithLabelValues(operation, status).Inc()
}

// NormalizePath maps request paths to a bounded set of labels so that
// arbitrary client paths cannot blow up metric cardinality.
func NormalizePath(path string) string {
	switch path {
	case "/", "":
		return "/"
	case "/upload", "/photos", "/healthz", "/readyz", "/metrics", "/openapi.json", "/openapi.yaml":
		return path
	case "/docs", "/docs/":
		return "/docs"
	}
	if strings.HasPrefix(path, "/docs/") {
		return "/docs"
	}
	if strings.HasPrefix(path, "/schemas/") {
		return "/schemas"
	}
	return "other"
}
