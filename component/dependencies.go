package component

import (
	"log/slog"

	"github.com/xfyecn/sitewhere-master-sub001/metric"
	"github.com/xfyecn/sitewhere-master-sub001/natsclient"
)

// Dependencies provides the shared collaborators handed to components when
// they are built.
type Dependencies struct {
	Logger          *slog.Logger            // Structured logger (can be nil, defaults to slog.Default())
	MetricsRegistry *metric.MetricsRegistry // Metrics registry for Prometheus (can be nil)
	NATSClient      *natsclient.Client      // NATS client for JetStream sources and publishers (can be nil)
}

// GetLogger returns the configured logger or a default logger if none is provided
func (d Dependencies) GetLogger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// Metrics returns the shared pipeline metrics, or nil without a registry.
func (d Dependencies) Metrics() *metric.Metrics {
	return d.MetricsRegistry.CoreMetrics()
}

// LifecycleOptions returns the options that wire a Lifecycle to these dependencies.
func (d Dependencies) LifecycleOptions(extra ...Option) []Option {
	opts := []Option{WithLogger(d.GetLogger()), WithMetrics(d.Metrics())}
	return append(opts, extra...)
}
