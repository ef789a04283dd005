// Package health reports the health of the running component tree.
//
// # Health States
//
// Three states are reported:
//   - healthy: the component is started and so is everything below it
//   - degraded: the component is running but something below it is not, or
//     it is in the middle of a transition
//   - unhealthy: the component is stopped or in error
//
// A started parent with a failed optional child is degraded, not unhealthy,
// matching how the lifecycle isolates optional failures.
//
// # Usage
//
//	monitor := health.NewMonitor()
//	monitor.Track("server", server)
//	monitor.UpdateHealthy("nats", "Connected")
//
//	metricsServer.Handle("/health/components/",
//	    health.Handler(monitor, "pipeline", "/health/components", logger))
//
// Tracked components are evaluated on every read, so the report always
// reflects current lifecycle status. Pushed statuses are kept until replaced.
//
// # Security
//
// Error messages are sanitized before they are reported. URLs, file paths,
// IP addresses, ports and credential assignments are replaced with
// placeholders such as [URL] and [REDACTED].
package health
