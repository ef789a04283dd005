// Package objectstore implements storage.Store on a NATS JetStream
// ObjectStore bucket.
//
// The bucket is created on start when it does not exist. Reads go through an
// optional LRU cache; writes and deletes invalidate the cached entry. The
// connection comes from the shared natsclient.Client in
// component.Dependencies and is left open on stop.
//
//	s := objectstore.New(deps, objectstore.Config{Bucket: "DEVICE_STREAMS"})
//	s.LifecycleStart(ctx, nil)
//	streams := storage.NewStreams(s, "streams")
package objectstore
