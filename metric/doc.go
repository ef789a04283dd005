// Package metric provides Prometheus metrics for the device event pipeline.
//
// A MetricsRegistry owns a private Prometheus registry pre-loaded with the
// pipeline Metrics (payloads received, decode failures and latency, decoded
// requests by kind, processor failures, publishes, lifecycle transitions and
// active socket connections) plus the Go runtime collectors. Components that
// need their own collectors register them under a service name:
//
//	err := registry.RegisterGaugeVec("socket-receiver", "backlog", backlog)
//
// Components receive the shared *Metrics through their dependencies; every
// Record method tolerates a nil receiver so tests can run without metrics.
//
// Server exposes the registry over HTTP at /metrics together with a liveness
// endpoint at /health and any extra handlers mounted with Handle.
package metric
