package storage

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/xfyecn/sitewhere-master-sub001/metric"
)

// Metrics records blob store operations. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	ops         *prometheus.CounterVec   // by operation and result
	latency     *prometheus.HistogramVec // by operation
	cacheHits   prometheus.Counter
	cacheMisses prometheus.Counter
}

// NewMetrics registers the operation metrics for one bucket of one backend.
// It returns nil, nil without a registry.
func NewMetrics(registry *metric.MetricsRegistry, backend, bucket string) (*Metrics, error) {
	if registry == nil {
		return nil, nil
	}
	labels := prometheus.Labels{"backend": backend, "bucket": bucket}
	m := &Metrics{
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "pipeline",
			Subsystem:   "storage",
			Name:        "operations_total",
			Help:        "Blob store operations by operation and result",
			ConstLabels: labels,
		}, []string{"operation", "result"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   "pipeline",
			Subsystem:   "storage",
			Name:        "operation_duration_seconds",
			Help:        "Blob store operation duration in seconds",
			ConstLabels: labels,
			Buckets:     []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 2.0},
		}, []string{"operation"}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "pipeline",
			Subsystem:   "storage",
			Name:        "cache_hits_total",
			Help:        "Reads served from the local cache",
			ConstLabels: labels,
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "pipeline",
			Subsystem:   "storage",
			Name:        "cache_misses_total",
			Help:        "Reads that went to the backend",
			ConstLabels: labels,
		}),
	}

	service := backend + "/" + bucket
	if err := registry.RegisterCounterVec(service, "operations_total", m.ops); err != nil {
		return nil, err
	}
	if err := registry.RegisterHistogramVec(service, "operation_duration_seconds", m.latency); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(service, "cache_hits_total", m.cacheHits); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(service, "cache_misses_total", m.cacheMisses); err != nil {
		return nil, err
	}
	return m, nil
}

// Observe records one operation that began at start.
func (m *Metrics) Observe(operation string, start time.Time, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	m.ops.WithLabelValues(operation, result).Inc()
	m.latency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// CacheHit counts a read served from cache.
func (m *Metrics) CacheHit() {
	if m != nil {
		m.cacheHits.Inc()
	}
}

// CacheMiss counts a read that went to the backend.
func (m *Metrics) CacheMiss() {
	if m != nil {
		m.cacheMisses.Inc()
	}
}
