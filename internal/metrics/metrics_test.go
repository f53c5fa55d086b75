package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMetrics(t *testing.T) *Metrics {
	t.Helper()
	m, err := New(prometheus.NewRegistry())
	require.NoError(t, err)
	return m
}

func TestNew_DoubleRegistrationFails(t *testing.T) {
	registry := prometheus.NewRegistry()
	_, err := New(registry)
	require.NoError(t, err)

	_, err = New(registry)
	assert.Error(t, err)
}

func TestRecordAttributeWrite(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordAttributeWrite("dateWidget", StatusSuccess)
	m.RecordAttributeWrite("dateWidget", StatusSuccess)
	m.RecordAttributeWrite("dateWidget", StatusError)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.attributeWritesTotal.WithLabelValues("dateWidget", StatusSuccess)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.attributeWritesTotal.WithLabelValues("dateWidget", StatusError)))
}

func TestRecordCascade(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordCascade("detach_group", 0, 3, 1)

	assert.Equal(t, float64(0), testutil.ToFloat64(m.cascadeRowsTotal.WithLabelValues("detach_group", "added")))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.cascadeRowsTotal.WithLabelValues("detach_group", "removed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.cascadeRowsTotal.WithLabelValues("detach_group", "retained")))
}

func TestRecordJob(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordJob("lead_extraction", StatusSuccess, 0.5)
	m.RecordJob("lead_extraction", StatusAlreadyRunning, 0)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.jobsTotal.WithLabelValues("lead_extraction", StatusSuccess)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.jobsTotal.WithLabelValues("lead_extraction", StatusAlreadyRunning)))
	assert.Equal(t, 1, testutil.CollectAndCount(m.jobDuration))
}

func TestRecordHTTPRequest(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordHTTPRequest("GET", 200, 0.01)
	m.RecordHTTPRequest("GET", 404, 0.01)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("GET", "200")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("GET", "404")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordAttributeWrite("dateWidget", StatusSuccess)
		m.RecordWidgetSync(StatusSuccess)
		m.RecordCascade("attach_group", 1, 0, 0)
		m.RecordJob("framework_sync", StatusError, 1)
		m.RecordHTTPRequest("POST", 201, 0.1)
	})
}
