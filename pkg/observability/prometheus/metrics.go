package prometheus

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DefaultRegistry is the registry served on /metrics
	DefaultRegistry = prometheus.NewRegistry()

	// DefaultRegisterer labels everything with service="tasklist"
	DefaultRegisterer = prometheus.WrapRegistererWith(prometheus.Labels{"service": "tasklist"}, DefaultRegistry)

	metricsOnce sync.Once
	metrics     *Metrics
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP request metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPRequestSize     *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Task storage operations
	TaskOperationsTotal   *prometheus.CounterVec
	TaskOperationDuration *prometheus.HistogramVec

	// Change events
	EventsPublishedTotal *prometheus.CounterVec

	registerer prometheus.Registerer
}

// GetMetrics returns the process-wide metrics registered on DefaultRegisterer
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		metrics = NewMetrics(DefaultRegisterer)
	})
	return metrics
}

// NewMetrics creates a new metrics collection
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = DefaultRegisterer
	}
	factory := promauto.With(registerer)

	return &Metrics{
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tasklist_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tasklist_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tasklist_http_request_size_bytes",
				Help:    "HTTP request size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 5), // 100B to 1MB
			},
			[]string{"method", "path"},
		),
		HTTPResponseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tasklist_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 5),
			},
			[]string{"method", "path", "status"},
		),

		TaskOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tasklist_task_operations_total",
				Help: "Total number of task storage operations",
			},
			[]string{"operation", "outcome"}, // outcome: ok, not_found, error
		),
		TaskOperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tasklist_task_operation_duration_seconds",
				Help:    "Task storage operation duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"operation"},
		),

		EventsPublishedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tasklist_events_published_total",
				Help: "Total number of task change events handed to the publisher",
			},
			[]string{"type", "outcome"},
		),

		registerer: registerer,
	}
}

// RecordHTTPRequest records an HTTP request metric
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration, requestSize, responseSize int64) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
	m.HTTPRequestSize.WithLabelValues(method, path).Observe(float64(requestSize))
	m.HTTPResponseSize.WithLabelValues(method, path, status).Observe(float64(responseSize))
}

// RecordTaskOperation records one storage operation
func (m *Metrics) RecordTaskOperation(operation, outcome string, duration time.Duration) {
	m.TaskOperationsTotal.WithLabelValues(operation, outcome).Inc()
	m.TaskOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordEvent records a published (or failed) change event
func (m *Metrics) RecordEvent(eventType, outcome string) {
	m.EventsPublishedTotal.WithLabelValues(eventType, outcome).Inc()
}

// Registerer returns the registerer the metrics were created on
func (m *Metrics) Registerer() prometheus.Registerer {
	return m.registerer
}
