package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	fetchInFlight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "estate",
			Subsystem: "fetch",
			Name:      "inflight_invocations",
			Help:      "Current number of in-flight fetch invocations.",
		},
		[]string{"operation"},
	)

	fetchInvocations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "estate",
			Subsystem: "fetch",
			Name:      "invocations_total",
			Help:      "Total number of settled fetch invocations.",
		},
		[]string{"operation", "outcome"},
	)

	fetchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "estate",
			Subsystem: "fetch",
			Name:      "invocation_duration_seconds",
			Help:      "Duration of fetch invocations.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"operation"},
	)

	fetchDiscarded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "estate",
			Subsystem: "fetch",
			Name:      "discarded_results_total",
			Help:      "Results dropped because they were superseded or arrived after close.",
		},
		[]string{"operation", "reason"},
	)

	backendRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "estate",
			Subsystem: "backend",
			Name:      "requests_total",
			Help:      "Total number of backend HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	backendDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "estate",
			Subsystem: "backend",
			Name:      "request_duration_seconds",
			Help:      "Duration of backend HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		},
		[]string{"method", "path"},
	)

	circuitState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "estate",
			Subsystem: "backend",
			Name:      "circuit_state",
			Help:      "Backend circuit breaker state (0 closed, 1 open, 2 probing).",
		},
	)
)

func init() {
	Registry.MustRegister(
		fetchInFlight,
		fetchInvocations,
		fetchDuration,
		fetchDiscarded,
		backendRequests,
		backendDuration,
		circuitState,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// FetchStarted marks one invocation of operation as in flight.
func FetchStarted(operation string) {
	fetchInFlight.WithLabelValues(label(operation)).Inc()
}

// RecordFetch records a settled invocation. outcome is "success" or "failure".
func RecordFetch(operation, outcome string, duration time.Duration) {
	operation = label(operation)
	if duration <= 0 {
		duration = time.Millisecond
	}
	fetchInFlight.WithLabelValues(operation).Dec()
	fetchInvocations.WithLabelValues(operation, outcome).Inc()
	fetchDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordFetchDiscarded counts a result that was not committed to state.
func RecordFetchDiscarded(operation, reason string) {
	fetchDiscarded.WithLabelValues(label(operation), reason).Inc()
}

// RecordBackendRequest records one backend round trip. status 0 means transport failure.
func RecordBackendRequest(method, path string, status int, duration time.Duration) {
	if duration <= 0 {
		duration = time.Millisecond
	}
	method = strings.ToUpper(method)
	path = canonicalPath(path)
	backendRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	backendDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// SetCircuitState publishes the numeric circuit breaker state.
func SetCircuitState(state int) {
	circuitState.Set(float64(state))
}

func label(operation string) string {
	if operation == "" {
		return "unknown"
	}
	return operation
}

// canonicalPath keeps label cardinality bounded: table and bucket names are kept,
// row ids and object paths are collapsed.
func canonicalPath(raw string) string {
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	switch {
	case len(parts) >= 3 && parts[0] == "rest":
		return "/" + strings.Join(parts[:3], "/")
	case len(parts) >= 4 && parts[0] == "storage":
		return "/storage/v1/object/:bucket"
	case len(parts) >= 3 && parts[0] == "auth":
		return "/" + strings.Join(parts[:3], "/")
	}
	return "/" + parts[0]
}
