package metric

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pipeerrors "github.com/xfyecn/sitewhere-master-sub001/errors"
)

func gathered(t *testing.T, r *MetricsRegistry, name string) bool {
	t.Helper()
	families, err := r.PrometheusRegistry().Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == name {
			return true
		}
	}
	return false
}

func TestMetricsRegistry_Register(t *testing.T) {
	registry := NewMetricsRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_counter", Help: "test"})
	require.NoError(t, registry.RegisterCounter("svc", "test_counter", counter))
	counter.Inc()
	assert.True(t, gathered(t, registry, "test_counter"))

	gauge := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: "test_gauge", Help: "test"}, []string{"x"})
	require.NoError(t, registry.RegisterGaugeVec("svc", "test_gauge", gauge))
	gauge.WithLabelValues("a").Set(3)
	assert.True(t, gathered(t, registry, "test_gauge"))
}

func TestMetricsRegistry_DuplicateRegistration(t *testing.T) {
	registry := NewMetricsRegistry()

	c1 := prometheus.NewCounter(prometheus.CounterOpts{Name: "dup_total", Help: "test"})
	c2 := prometheus.NewCounter(prometheus.CounterOpts{Name: "dup_total", Help: "test"})

	require.NoError(t, registry.RegisterCounter("svc", "dup_total", c1))

	err := registry.RegisterCounter("svc", "dup_total", c2)
	require.Error(t, err)
	assert.True(t, pipeerrors.IsInvalid(err))

	err = registry.RegisterCounter("other", "dup_total", c2)
	require.Error(t, err)
	assert.True(t, pipeerrors.IsInvalid(err))
}

func TestMetricsRegistry_Unregister(t *testing.T) {
	registry := NewMetricsRegistry()

	h := prometheus.NewHistogram(prometheus.HistogramOpts{Name: "test_hist", Help: "test"})
	require.NoError(t, registry.RegisterHistogram("svc", "test_hist", h))

	assert.True(t, registry.Unregister("svc", "test_hist"))
	assert.False(t, registry.Unregister("svc", "test_hist"))
	require.NoError(t, registry.RegisterHistogram("svc", "test_hist", h))
}

func TestMetrics_Record(t *testing.T) {
	m := NewMetrics()

	m.RecordPayload("acme", "mqtt")
	m.RecordPayload("acme", "mqtt")
	m.RecordDecode("acme", "mqtt", time.Millisecond, nil)
	m.RecordDecode("acme", "mqtt", time.Millisecond, errors.New("bad"))
	m.RecordRequest("acme", "measurements")
	m.RecordProcessorFailure("inbound", "storage", "alert")
	m.RecordPublish("mqtt", nil)
	m.RecordPublish("mqtt", errors.New("down"))
	m.RecordTransition("event-source", "started")
	m.ConnectionOpened("socket")
	m.ConnectionOpened("socket")
	m.ConnectionClosed("socket")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.PayloadsReceived.WithLabelValues("acme", "mqtt")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DecodeFailures.WithLabelValues("acme", "mqtt")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsDecoded.WithLabelValues("acme", "measurements")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProcessorFailures.WithLabelValues("inbound", "storage", "alert")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsPublished.WithLabelValues("mqtt", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LifecycleTransitions.WithLabelValues("event-source", "started")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActiveConnections.WithLabelValues("socket")))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordPayload("a", "b")
		m.RecordDecode("a", "b", time.Second, nil)
		m.RecordProcessorFailure("a", "b", "c")
		m.RecordTransition("a", "b")
		m.ConnectionOpened("a")
	})

	var r *MetricsRegistry
	assert.Nil(t, r.CoreMetrics())
}

func TestServer_Handler(t *testing.T) {
	registry := NewMetricsRegistry()
	registry.CoreMetrics().RecordPayload("acme", "socket")

	server := NewServer(0, "", registry)
	server.Handle("/health/components", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status":"started"}`))
	}))

	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/health/components")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, "http://localhost:9090/metrics", server.Address())
}

func TestServer_StopBeforeStart(t *testing.T) {
	server := NewServer(0, "", NewMetricsRegistry())
	assert.NoError(t, server.Stop())
}
