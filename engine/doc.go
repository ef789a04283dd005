// Package engine assembles and runs the pipeline.
//
// # Overview
//
// A Server is the root of the component tree. It owns one tenant.Engine per
// configured tenant and starts them in registration order; a tenant that
// fails to start is left in Error while the others keep running.
//
// The Builder turns a config.Config into tenant engines by looking up each
// configured type in a Registry of factories:
//
//	registry := engine.DefaultRegistry()
//	builder := engine.NewBuilder(deps, registry, cfg)
//	server, err := builder.BuildServer()
//	if err != nil {
//		return err
//	}
//	server.LifecycleStart(ctx, component.NewLogMonitor(logger))
//
// For each tenant the builder creates, in order: the identity registry and
// data stores, the outbound chain, the inbound chain (whose processors are
// handed the stores and the outbound chain), and finally the event sources.
//
// # Built-in types
//
//	identity:      memory, postgres
//	event_store:   memory, influx
//	stream_store:  memory, minio, objectstore
//	receivers:     socket, udp, mqtt, websocket, jetstream-queue, kafka-queue, redis-queue
//	decoders:      json, measurements, logging, composite
//	inbound:       registration, event-storage, streams
//	outbound:      mqtt-publisher, nats-publisher, kafka-publisher, rest-publisher, file-publisher
//
// Additional types are added with the Register methods before building.
//
// # Metrics
//
// With a metrics registry the server records tenant starts and stops
// (pipeline_tenant_starts_total, pipeline_tenant_stops_total), their
// durations, and the number of running tenants (pipeline_tenant_active).
package engine
