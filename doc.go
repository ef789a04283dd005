// Package pipeline is a multi-tenant device event pipeline.
//
// Devices deliver payloads over MQTT, TCP sockets, UDP, websockets or message
// queues. Each tenant decodes those payloads into typed requests, resolves the
// device and its active assignment, persists the resulting events and hands
// them to outbound publishers.
//
// # Architecture
//
// Every moving part is a component (see package component) with a shared
// lifecycle: initialize, start, pause, stop. Components nest; a parent starts
// its children and fails when a required child fails.
//
//	Server
//	└── tenant.Engine (one per tenant, a hierarchy root)
//	    ├── outbound chain   publishers: mqtt, nats, kafka, rest, file
//	    ├── inbound chain    registration, event storage, streams
//	    └── event sources    decoder + receivers
//
// Engines start the outbound chain first and the sources last, so nothing is
// received before it can be stored and published. They stop in reverse.
//
// # Data flow
//
//	receiver ──payload──▶ source ──decode──▶ inbound chain ──event──▶ outbound chain
//	                                              │
//	                                    device registry, event and stream stores
//
// Receivers own their blocking point and deliver synchronously; decoding and
// dispatch run on the receiving goroutine. The socket receiver bounds its
// concurrency with a worker pool (pkg/worker), the UDP receiver with a
// circular buffer (pkg/buffer).
//
// # Packages
//
//   - component: lifecycle, nesting, tenant scope, monitors
//   - event, device: requests, events, devices and assignments
//   - decoder, source, receiver/...: inbound transport and decoding
//   - processor/inbound, processor/outbound, publisher/...: processing chains
//   - store, storage/...: device registry, event and stream stores
//     (memory, Postgres, InfluxDB, MinIO, NATS object store)
//   - tenant, engine: tenant engines, the factory registry and the server
//   - config, errors, metric, health, natsclient: ambient infrastructure
//
// The cmd/pipeline binary loads a layered YAML configuration, builds the
// server and runs it until interrupted.
package pipeline
