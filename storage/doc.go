// Package storage holds the key-value blob abstraction used for device
// streams and the stream store built on it.
//
// # Store
//
// Store is a flat key-value interface: keys are "/" separated paths and
// values are opaque bytes. Two backends implement it:
//   - objectstore.Store: NATS JetStream ObjectStore
//   - minio.Store: MinIO or any S3 compatible service
//
// # Streams
//
// Streams implements store.StreamStore on top of any Store. A stream is a
// JSON descriptor plus one object per chunk:
//
//	<prefix>/<assignment>/<stream>/stream.json
//	<prefix>/<assignment>/<stream>/chunks/00000000000000000042
//
// Chunk keys are zero padded so List returns them in sequence order.
//
// Event storage (influx) and device identity (postgres) live in sibling
// packages and do not go through Store.
package storage
