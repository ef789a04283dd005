package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "pipeline"

// Metrics contains the pipeline-wide metrics shared by receivers, decoders,
// processor chains, publishers and the lifecycle machinery.
//
// All Record methods are safe to call on a nil *Metrics.
type Metrics struct {
	PayloadsReceived     *prometheus.CounterVec
	DecodeFailures       *prometheus.CounterVec
	DecodeDuration       *prometheus.HistogramVec
	RequestsDecoded      *prometheus.CounterVec
	ProcessorFailures    *prometheus.CounterVec
	EventsPublished      *prometheus.CounterVec
	LifecycleTransitions *prometheus.CounterVec
	ActiveConnections    *prometheus.GaugeVec
}

// NewMetrics creates the pipeline metrics
func NewMetrics() *Metrics {
	return &Metrics{
		PayloadsReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "inbound",
				Name:      "payloads_received_total",
				Help:      "Raw payloads handed to an event source by its receivers",
			},
			[]string{"tenant", "source"},
		),

		DecodeFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "inbound",
				Name:      "decode_failures_total",
				Help:      "Payloads dropped because they could not be decoded",
			},
			[]string{"tenant", "source"},
		),

		DecodeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "inbound",
				Name:      "decode_duration_seconds",
				Help:      "Time spent decoding a single payload",
				Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
			[]string{"tenant", "source"},
		),

		RequestsDecoded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "inbound",
				Name:      "requests_decoded_total",
				Help:      "Decoded device requests by kind",
			},
			[]string{"tenant", "kind"},
		),

		ProcessorFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "processing",
				Name:      "processor_failures_total",
				Help:      "Failures isolated by a processor chain",
			},
			[]string{"chain", "processor", "kind"},
		),

		EventsPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "outbound",
				Name:      "events_published_total",
				Help:      "Events handed to an outbound transport",
			},
			[]string{"publisher", "result"},
		),

		LifecycleTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "lifecycle",
				Name:      "transitions_total",
				Help:      "Lifecycle status changes by component type and resulting status",
			},
			[]string{"component_type", "status"},
		),

		ActiveConnections: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "inbound",
				Name:      "active_connections",
				Help:      "Connections currently being handled by a socket receiver",
			},
			[]string{"receiver"},
		),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.PayloadsReceived,
		m.DecodeFailures,
		m.DecodeDuration,
		m.RequestsDecoded,
		m.ProcessorFailures,
		m.EventsPublished,
		m.LifecycleTransitions,
		m.ActiveConnections,
	}
}

// RecordPayload counts a payload received by an event source.
func (m *Metrics) RecordPayload(tenant, source string) {
	if m == nil {
		return
	}
	m.PayloadsReceived.WithLabelValues(tenant, source).Inc()
}

// RecordDecode records the outcome of decoding one payload.
func (m *Metrics) RecordDecode(tenant, source string, took time.Duration, err error) {
	if m == nil {
		return
	}
	m.DecodeDuration.WithLabelValues(tenant, source).Observe(took.Seconds())
	if err != nil {
		m.DecodeFailures.WithLabelValues(tenant, source).Inc()
	}
}

// RecordRequest counts a decoded request of the given kind.
func (m *Metrics) RecordRequest(tenant, kind string) {
	if m == nil {
		return
	}
	m.RequestsDecoded.WithLabelValues(tenant, kind).Inc()
}

// RecordProcessorFailure counts a failure isolated by a processor chain.
func (m *Metrics) RecordProcessorFailure(chain, processor, kind string) {
	if m == nil {
		return
	}
	m.ProcessorFailures.WithLabelValues(chain, processor, kind).Inc()
}

// RecordPublish counts a publish attempt.
func (m *Metrics) RecordPublish(publisher string, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	m.EventsPublished.WithLabelValues(publisher, result).Inc()
}

// RecordTransition counts a lifecycle status change.
func (m *Metrics) RecordTransition(componentType, status string) {
	if m == nil {
		return
	}
	m.LifecycleTransitions.WithLabelValues(componentType, status).Inc()
}

// ConnectionOpened increments the active connection gauge for a receiver.
func (m *Metrics) ConnectionOpened(receiver string) {
	if m == nil {
		return
	}
	m.ActiveConnections.WithLabelValues(receiver).Inc()
}

// ConnectionClosed decrements the active connection gauge for a receiver.
func (m *Metrics) ConnectionClosed(receiver string) {
	if m == nil {
		return
	}
	m.ActiveConnections.WithLabelValues(receiver).Dec()
}
