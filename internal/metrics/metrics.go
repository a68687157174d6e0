// Package metrics provides Prometheus metrics for monitoring the service.
package metrics

import (
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// OperationsTotal counts page operations by kind and status.
	OperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webpilot_operations_total",
			Help: "Total number of page operations processed",
		},
		[]string{"operation", "status"},
	)

	// OperationDuration tracks operation duration by kind.
	OperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "webpilot_operation_duration_seconds",
			Help:    "Operation duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 11), // 50ms to ~100s
		},
		[]string{"operation"},
	)

	// ExtractionsByMethod counts successful extractions by resolution
	// method (direct, fallback, synthesized).
	ExtractionsByMethod = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webpilot_extractions_total",
			Help: "Successful extractions by resolution method",
		},
		[]string{"method"},
	)

	// ExtractionRetries tracks retries consumed per successful extraction.
	ExtractionRetries = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "webpilot_extraction_retries",
			Help:    "Retries consumed by successful extractions",
			Buckets: prometheus.LinearBuckets(0, 1, 11),
		},
	)

	// ActiveSessions shows current pooled sessions.
	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "webpilot_active_sessions",
			Help: "Number of active page sessions",
		},
	)

	// SessionsRecreated counts sessions replaced after a failed probe.
	SessionsRecreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "webpilot_sessions_recreated_total",
			Help: "Sessions replaced after their page stopped responding",
		},
	)

	// BackendDisconnects counts browser process losses.
	BackendDisconnects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "webpilot_backend_disconnects_total",
			Help: "Times the browser backend connection was lost",
		},
	)

	// MemoryUsageBytes shows current memory usage.
	MemoryUsageBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "webpilot_memory_usage_bytes",
			Help: "Current memory usage in bytes (alloc)",
		},
	)

	// GoroutineCount shows current goroutine count.
	GoroutineCount = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "webpilot_goroutines",
			Help: "Current number of goroutines",
		},
	)

	// BuildInfo provides build information as labels.
	BuildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "webpilot_build_info",
			Help: "Build information",
		},
		[]string{"version", "go_version"},
	)
)

func init() {
	prometheus.MustRegister(
		OperationsTotal,
		OperationDuration,
		ExtractionsByMethod,
		ExtractionRetries,
		ActiveSessions,
		SessionsRecreated,
		BackendDisconnects,
		MemoryUsageBytes,
		GoroutineCount,
		BuildInfo,
	)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// SetBuildInfo sets the build info metric.
func SetBuildInfo(version, goVersion string) {
	BuildInfo.WithLabelValues(version, goVersion).Set(1)
}

// RecordOperation records metrics for a completed operation.
func RecordOperation(operation, status string, duration time.Duration) {
	OperationsTotal.WithLabelValues(operation, status).Inc()
	OperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordExtraction records a successful extraction.
func RecordExtraction(method string, retries int) {
	ExtractionsByMethod.WithLabelValues(method).Inc()
	ExtractionRetries.Observe(float64(retries))
}

// UpdateSessionMetrics updates the session count gauge.
func UpdateSessionMetrics(count int) {
	ActiveSessions.Set(float64(count))
}

// StartRuntimeCollector periodically updates process metrics until stopCh
// closes.
func StartRuntimeCollector(interval time.Duration, stopCh <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			var m runtime.MemStats
			runtime.ReadMemStats(&m)
			MemoryUsageBytes.Set(float64(m.Alloc))
			GoroutineCount.Set(float64(runtime.NumGoroutine()))
		case <-stopCh:
			return
		}
	}
}
