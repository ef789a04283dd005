// Package receiver defines the contract between inbound receivers and the
// event source that owns them.
//
// A receiver owns one blocking point (an accept loop, a queue take, a broker
// subscription or a websocket read) and hands every payload it gets to its
// Sink. Decoding and dispatch run synchronously on the receiving goroutine.
package receiver

import (
	"context"
	"sync"

	"github.com/xfyecn/sitewhere-master-sub001/component"
	"github.com/xfyecn/sitewhere-master-sub001/errors"
)

// Sink accepts encoded payloads. It returns decode failures so the receiver
// can log them; the payload is dropped either way.
type Sink[T any] interface {
	OnEncodedEventReceived(ctx context.Context, receiver string, payload T, metadata map[string]any) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc[T any] func(ctx context.Context, receiver string, payload T, metadata map[string]any) error

func (f SinkFunc[T]) OnEncodedEventReceived(ctx context.Context, receiver string, payload T, metadata map[string]any) error {
	return f(ctx, receiver, payload, metadata)
}

// Receiver is an inbound receiver for payloads of type T.
type Receiver[T any] interface {
	component.Component
	SetSink(sink Sink[T])
}

// Delivery holds the sink of a receiver. Receivers embed it.
type Delivery[T any] struct {
	mu   sync.RWMutex
	sink Sink[T]
}

// SetSink sets the sink payloads are delivered to.
func (d *Delivery[T]) SetSink(sink Sink[T]) {
	d.mu.Lock()
	d.sink = sink
	d.mu.Unlock()
}

// HasSink reports whether a sink has been set.
func (d *Delivery[T]) HasSink() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.sink != nil
}

// Deliver hands a payload to the sink.
func (d *Delivery[T]) Deliver(ctx context.Context, receiver string, payload T, metadata map[string]any) error {
	d.mu.RLock()
	sink := d.sink
	d.mu.RUnlock()
	if sink == nil {
		return errors.WrapInvalid(errors.ErrNotStarted, receiver, "Deliver", "sink lookup")
	}
	return sink.OnEncodedEventReceived(ctx, receiver, payload, metadata)
}

// RequireSink fails a receiver start when no sink has been set.
func (d *Delivery[T]) RequireSink(receiver string) error {
	if !d.HasSink() {
		return errors.WrapInvalid(errors.ErrMissingConfig, receiver, "Start", "sink lookup")
	}
	return nil
}
