package engine

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/xfyecn/sitewhere-master-sub001/metric"
)

// engineMetrics holds Prometheus metrics for tenant engine operations.
type engineMetrics struct {
	starts *prometheus.CounterVec // By tenant and status
	stops  *prometheus.CounterVec // By tenant and status

	startDuration *prometheus.HistogramVec // By tenant
	stopDuration  *prometheus.HistogramVec // By tenant

	activeTenants prometheus.Gauge
}

// newEngineMetrics creates and registers engine metrics with the provided registry.
func newEngineMetrics(registry *metric.MetricsRegistry) (*engineMetrics, error) {
	if registry == nil {
		return nil, nil // Metrics disabled
	}

	m := &engineMetrics{
		starts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pipeline",
			Subsystem: "tenant",
			Name:      "starts_total",
			Help:      "Total number of tenant engine start operations",
		}, []string{"tenant", "status"}), // status: success, failure

		stops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pipeline",
			Subsystem: "tenant",
			Name:      "stops_total",
			Help:      "Total number of tenant engine stop operations",
		}, []string{"tenant", "status"}),

		startDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pipeline",
			Subsystem: "tenant",
			Name:      "start_duration_seconds",
			Help:      "Tenant engine start duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
		}, []string{"tenant"}),

		stopDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pipeline",
			Subsystem: "tenant",
			Name:      "stop_duration_seconds",
			Help:      "Tenant engine stop duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1.0, 2.0, 5.0, 10.0},
		}, []string{"tenant"}),

		activeTenants: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pipeline",
			Subsystem: "tenant",
			Name:      "active",
			Help:      "Current number of running tenant engines",
		}),
	}

	if err := registry.RegisterCounterVec("engine", "tenant_starts", m.starts); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("engine", "tenant_stops", m.stops); err != nil {
		return nil, err
	}
	if err := registry.RegisterHistogramVec("engine", "tenant_start_duration", m.startDuration); err != nil {
		return nil, err
	}
	if err := registry.RegisterHistogramVec("engine", "tenant_stop_duration", m.stopDuration); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge("engine", "active_tenants", m.activeTenants); err != nil {
		return nil, err
	}

	return m, nil
}

func outcome(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

// recordStart records a tenant start.
func (m *engineMetrics) recordStart(tenant string, success bool, duration float64) {
	if m == nil {
		return
	}

	m.starts.WithLabelValues(tenant, outcome(success)).Inc()
	m.startDuration.WithLabelValues(tenant).Observe(duration)
	if success {
		m.activeTenants.Inc()
	}
}

// recordStop records a tenant stop. Only a tenant that was running leaves
// the active count.
func (m *engineMetrics) recordStop(tenant string, success, wasRunning bool, duration float64) {
	if m == nil {
		return
	}

	m.stops.WithLabelValues(tenant, outcome(success)).Inc()
	m.stopDuration.WithLabelValues(tenant).Observe(duration)
	if success && wasRunning {
		m.activeTenants.Dec()
	}
}
