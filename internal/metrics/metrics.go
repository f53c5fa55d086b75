// Package metrics provides Prometheus metrics for the attribute pipeline,
// membership cascades, background jobs and the HTTP API.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Status label values.
const (
	StatusSuccess        = "success"
	StatusError          = "error"
	StatusAlreadyRunning = "already_running"
	StatusDropped        = "dropped"
)

// Metrics contains the Prometheus collectors of the service. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	attributeWritesTotal *prometheus.CounterVec
	widgetSyncsTotal     *prometheus.CounterVec
	cascadeRowsTotal     *prometheus.CounterVec
	jobsTotal            *prometheus.CounterVec
	jobDuration          *prometheus.HistogramVec
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
}

// New creates the metrics and registers them with registry.
func New(registry prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) initMetrics() {
	m.attributeWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deep_attribute_writes_total",
			Help: "Total number of attribute writes",
		},
		[]string{"widget_type", "status"},
	)

	m.widgetSyncsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deep_widget_syncs_total",
			Help: "Total number of widget filter/exportable declaration syncs",
		},
		[]string{"status"},
	)

	m.cascadeRowsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deep_membership_cascade_rows_total",
			Help: "Project membership rows changed by cascades",
		},
		[]string{"operation", "change"}, // change: added, removed, retained
	)

	m.jobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deep_jobs_total",
			Help: "Total number of background job runs",
		},
		[]string{"job", "status"},
	)

	m.jobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "deep_job_duration_seconds",
			Help:    "Time taken by background jobs",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
		[]string{"job"},
	)

	m.httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deep_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "status_code"},
	)

	m.httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "deep_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
}

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.attributeWritesTotal.Describe(ch)
	m.widgetSyncsTotal.Describe(ch)
	m.cascadeRowsTotal.Describe(ch)
	m.jobsTotal.Describe(ch)
	m.jobDuration.Describe(ch)
	m.httpRequestsTotal.Describe(ch)
	m.httpRequestDuration.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.attributeWritesTotal.Collect(ch)
	m.widgetSyncsTotal.Collect(ch)
	m.cascadeRowsTotal.Collect(ch)
	m.jobsTotal.Collect(ch)
	m.jobDuration.Collect(ch)
	m.httpRequestsTotal.Collect(ch)
	m.httpRequestDuration.Collect(ch)
}

// RecordAttributeWrite counts one attribute write.
func (m *Metrics) RecordAttributeWrite(widgetType, status string) {
	if m == nil {
		return
	}
	m.attributeWritesTotal.WithLabelValues(widgetType, status).Inc()
}

// RecordWidgetSync counts one widget declaration sync.
func (m *Metrics) RecordWidgetSync(status string) {
	if m == nil {
		return
	}
	m.widgetSyncsTotal.WithLabelValues(status).Inc()
}

// RecordCascade counts membership rows changed by a cascade operation.
func (m *Metrics) RecordCascade(operation string, added, removed, retained int) {
	if m == nil {
		return
	}
	m.cascadeRowsTotal.WithLabelValues(operation, "added").Add(float64(added))
	m.cascadeRowsTotal.WithLabelValues(operation, "removed").Add(float64(removed))
	m.cascadeRowsTotal.WithLabelValues(operation, "retained").Add(float64(retained))
}

// RecordJob counts one job run and observes its duration in seconds.
func (m *Metrics) RecordJob(job, status string, seconds float64) {
	if m == nil {
		return
	}
	m.jobsTotal.WithLabelValues(job, status).Inc()
	if status == StatusSuccess || status == StatusError {
		m.jobDuration.WithLabelValues(job).Observe(seconds)
	}
}

// RecordHTTPRequest counts one HTTP request and observes its latency in seconds.
func (m *Metrics) RecordHTTPRequest(method string, statusCode int, seconds float64) {
	if m == nil {
		return
	}
	m.httpRequestsTotal.WithLabelValues(method, strconv.Itoa(statusCode)).Inc()
	m.httpRequestDuration.WithLabelValues(method).Observe(seconds)
}
