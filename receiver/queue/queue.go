// Package queue provides a receiver that drains a queue with a single
// blocking take loop, along with queue sources backed by memory, NATS
// JetStream, Kafka and Redis lists.
package queue

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/xfyecn/sitewhere-master-sub001/component"
	"github.com/xfyecn/sitewhere-master-sub001/errors"
	"github.com/xfyecn/sitewhere-master-sub001/pkg/retry"
	"github.com/xfyecn/sitewhere-master-sub001/receiver"
)

// ErrClosed is returned by Take once the source has been closed.
var ErrClosed = stderrors.New("queue source closed")

// Item is one entry taken from a queue.
type Item[T any] struct {
	Payload  T
	Metadata map[string]any
	// Ack, when set, acknowledges the item after it has been handed on.
	Ack func(ctx context.Context) error
}

// Source is a queue the receiver takes from. Take blocks until an item is
// available and returns ErrClosed or the context error on shutdown.
type Source[T any] interface {
	Open(ctx context.Context) error
	Take(ctx context.Context) (Item[T], error)
	Close() error
}

// Receiver runs exactly one consumer goroutine over a Source. Items are
// delivered in the order the source yields them.
type Receiver[T any] struct {
	*component.Lifecycle
	component.TenantScope
	receiver.Delivery[T]

	source    Source[T]
	connect   retry.Config
	takePause time.Duration

	cancel context.CancelFunc
	done   chan struct{}
}

var _ receiver.Receiver[[]byte] = (*Receiver[[]byte])(nil)

// New creates a queue receiver named name over source.
func New[T any](deps component.Dependencies, name string, source Source[T]) *Receiver[T] {
	r := &Receiver[T]{
		source:    source,
		connect:   retry.Connect(),
		takePause: 100 * time.Millisecond,
	}
	r.Lifecycle = component.NewLifecycle(r, component.TypeInboundReceiver, name, deps.LifecycleOptions()...)
	return r
}

// Start opens the source and starts the take loop.
func (r *Receiver[T]) Start(ctx context.Context, _ component.Monitor) error {
	if r.source == nil {
		return errors.WrapInvalid(errors.ErrMissingConfig, r.Name(), "Start", "queue source lookup")
	}
	if err := r.RequireSink(r.Name()); err != nil {
		return err
	}
	if err := retry.Do(ctx, r.connect, r.source.Open); err != nil {
		return errors.WrapFatal(err, r.Name(), "Start", "queue source open")
	}

	r.run(ctx)
	return nil
}

func (r *Receiver[T]) run(ctx context.Context) {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r.cancel = cancel
	r.done = make(chan struct{})
	go r.loop(runCtx, r.done)
}

// halt interrupts the take loop and waits for the item in hand to be
// delivered and acknowledged.
func (r *Receiver[T]) halt() {
	if r.cancel != nil {
		r.cancel()
	}
	if r.done != nil {
		<-r.done
	}
	r.cancel, r.done = nil, nil
}

// Pause stops taking from the source. Items stay queued until Resume.
func (r *Receiver[T]) Pause(context.Context, component.Monitor) error {
	r.halt()
	return nil
}

// Resume restarts the take loop on the open source.
func (r *Receiver[T]) Resume(ctx context.Context, _ component.Monitor) error {
	r.run(ctx)
	return nil
}

func (r *Receiver[T]) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		item, err := r.source.Take(ctx)
		if err != nil {
			if ctx.Err() != nil || stderrors.Is(err, ErrClosed) {
				r.Logger().Debug("Queue take loop exiting")
				return
			}
			r.Logger().Warn("Queue take failed", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(r.takePause):
			}
			continue
		}

		// an item in hand is delivered and acknowledged even while halting
		handCtx := context.WithoutCancel(ctx)
		if err := r.Deliver(handCtx, r.Name(), item.Payload, item.Metadata); err != nil {
			r.Logger().Warn("Queued payload rejected", "error", err)
		}
		if item.Ack != nil {
			if err := item.Ack(handCtx); err != nil {
				r.Logger().Warn("Queue acknowledge failed", "error", err)
			}
		}
	}
}

// Stop interrupts the take loop, waits for it to exit and closes the source.
func (r *Receiver[T]) Stop(context.Context, component.Monitor) error {
	if r.cancel != nil {
		r.cancel()
	}
	var closeErr error
	if r.source != nil {
		closeErr = r.source.Close()
	}
	r.halt()
	if closeErr != nil {
		return errors.WrapTransient(closeErr, r.Name(), "Stop", fmt.Sprintf("close %T", r.source))
	}
	return nil
}
