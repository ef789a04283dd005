package socket

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"

	"github.com/xfyecn/sitewhere-master-sub001/component"
)

// DeliverFunc hands one payload read from a connection to the receiver.
type DeliverFunc func(ctx context.Context, payload []byte) error

// Handler reads payloads from one connection.
type Handler interface {
	Handle(ctx context.Context, conn net.Conn, deliver DeliverFunc) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, conn net.Conn, deliver DeliverFunc) error

func (f HandlerFunc) Handle(ctx context.Context, conn net.Conn, deliver DeliverFunc) error {
	return f(ctx, conn, deliver)
}

// HandlerFactory creates a handler per accepted connection.
type HandlerFactory interface {
	component.Component
	NewHandler() Handler
}

// DefaultMaxPayload bounds what a handler reads for a single payload.
const DefaultMaxPayload = 1 << 20

// ReadAllFactory creates handlers that treat everything a client sends before
// closing its side as one payload.
type ReadAllFactory struct {
	*component.Lifecycle
	maxPayload int64
}

var _ HandlerFactory = (*ReadAllFactory)(nil)

// NewReadAllFactory creates a read-all handler factory. maxPayload <= 0 means
// DefaultMaxPayload.
func NewReadAllFactory(deps component.Dependencies, maxPayload int64) *ReadAllFactory {
	if maxPayload <= 0 {
		maxPayload = DefaultMaxPayload
	}
	f := &ReadAllFactory{maxPayload: maxPayload}
	f.Lifecycle = component.NewLifecycle(f, component.TypeSocketHandlerFactory, "read-all-handler-factory", deps.LifecycleOptions()...)
	return f
}

func (f *ReadAllFactory) NewHandler() Handler {
	return HandlerFunc(func(ctx context.Context, conn net.Conn, deliver DeliverFunc) error {
		data, err := io.ReadAll(io.LimitReader(conn, f.maxPayload+1))
		if err != nil {
			return fmt.Errorf("read payload: %w", err)
		}
		if int64(len(data)) > f.maxPayload {
			return fmt.Errorf("payload exceeds %d bytes", f.maxPayload)
		}
		if len(data) == 0 {
			return nil
		}
		return deliver(ctx, data)
	})
}

// DelimitedFactory creates handlers that read newline-delimited payloads until
// the client disconnects. Each line is delivered separately; blank lines are
// skipped.
type DelimitedFactory struct {
	*component.Lifecycle
	maxLine int
}

var _ HandlerFactory = (*DelimitedFactory)(nil)

// NewDelimitedFactory creates a line-delimited handler factory. maxLine <= 0
// means DefaultMaxPayload.
func NewDelimitedFactory(deps component.Dependencies, maxLine int) *DelimitedFactory {
	if maxLine <= 0 {
		maxLine = DefaultMaxPayload
	}
	f := &DelimitedFactory{maxLine: maxLine}
	f.Lifecycle = component.NewLifecycle(f, component.TypeSocketHandlerFactory, "delimited-handler-factory", deps.LifecycleOptions()...)
	return f
}

func (f *DelimitedFactory) NewHandler() Handler {
	return HandlerFunc(func(ctx context.Context, conn net.Conn, deliver DeliverFunc) error {
		scanner := bufio.NewScanner(conn)
		scanner.Buffer(make([]byte, 0, 4096), f.maxLine)

		var failed int
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}
			payload := make([]byte, len(line))
			copy(payload, line)
			// a bad line does not end the session
			if err := deliver(ctx, payload); err != nil {
				failed++
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("read line: %w", err)
		}
		if failed > 0 {
			return fmt.Errorf("%d payloads rejected", failed)
		}
		return nil
	})
}
