// Package socket provides a TCP receiver that hands every accepted connection
// to a bounded worker pool.
package socket

import (
	"context"
	stderrors "errors"
	"fmt"
	"maps"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xfyecn/sitewhere-master-sub001/component"
	"github.com/xfyecn/sitewhere-master-sub001/decoder"
	"github.com/xfyecn/sitewhere-master-sub001/errors"
	"github.com/xfyecn/sitewhere-master-sub001/metric"
	"github.com/xfyecn/sitewhere-master-sub001/pkg/retry"
	"github.com/xfyecn/sitewhere-master-sub001/pkg/worker"
	"github.com/xfyecn/sitewhere-master-sub001/receiver"
)

// DefaultWorkers is the number of connections handled concurrently.
const DefaultWorkers = 5

// Config configures a socket receiver.
type Config struct {
	Address     string        `json:"address" yaml:"address"`
	Workers     int           `json:"workers" yaml:"workers"`
	Backlog     int           `json:"backlog" yaml:"backlog"`           // accepted connections waiting for a worker
	ReadTimeout time.Duration `json:"read_timeout" yaml:"read_timeout"` // per connection, zero for none
	StopTimeout time.Duration `json:"stop_timeout" yaml:"stop_timeout"`
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.Backlog <= 0 {
		c.Backlog = c.Workers
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = 5 * time.Second
	}
	return c
}

// Receiver accepts TCP connections and runs a handler from its factory on
// each one.
type Receiver struct {
	*component.Lifecycle
	component.TenantScope
	receiver.Delivery[[]byte]

	cfg     Config
	factory HandlerFactory
	metrics *metric.Metrics
	bind    retry.Config

	mu       sync.Mutex
	listener net.Listener
	pool     *worker.Pool[net.Conn]
	cancel   context.CancelFunc
	done     chan struct{}
	conns    map[net.Conn]struct{}

	terminating atomic.Bool
}

var _ receiver.Receiver[[]byte] = (*Receiver)(nil)

// New creates a socket receiver.
func New(deps component.Dependencies, cfg Config, factory HandlerFactory) *Receiver {
	r := &Receiver{
		cfg:     cfg.withDefaults(),
		factory: factory,
		metrics: deps.Metrics(),
		bind:    retry.Quick(),
		conns:   make(map[net.Conn]struct{}),
	}
	r.Lifecycle = component.NewLifecycle(r, component.TypeInboundReceiver, "socket-receiver", deps.LifecycleOptions()...)
	return r
}

// Addr returns the bound address, or nil when not listening.
func (r *Receiver) Addr() net.Addr {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listener == nil {
		return nil
	}
	return r.listener.Addr()
}

// Start binds the listener and starts the acceptor and the worker pool.
func (r *Receiver) Start(ctx context.Context, monitor component.Monitor) error {
	if r.factory == nil {
		return errors.WrapInvalid(errors.ErrMissingConfig, "socket-receiver", "Start", "handler factory lookup")
	}
	if err := r.RequireSink("socket-receiver"); err != nil {
		return err
	}
	if err := r.StartNested(ctx, r.factory, monitor, "Starting socket handler factory", true); err != nil {
		return err
	}

	listener, err := retry.DoWithResult(ctx, r.bind, func(context.Context) (net.Listener, error) {
		return net.Listen("tcp", r.cfg.Address)
	})
	if err != nil {
		return errors.WrapTransient(err, "socket-receiver", "Start", fmt.Sprintf("listen on %s", r.cfg.Address))
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	pool := worker.NewPool(r.cfg.Workers, r.cfg.Backlog, r.serve,
		worker.WithDiscard(func(conn net.Conn) { _ = conn.Close() }))
	if err := pool.Start(runCtx); err != nil {
		cancel()
		_ = listener.Close()
		return errors.WrapFatal(err, "socket-receiver", "Start", "worker pool start")
	}

	r.mu.Lock()
	r.listener = listener
	r.pool = pool
	r.cancel = cancel
	r.done = make(chan struct{})
	r.mu.Unlock()
	r.terminating.Store(false)

	go r.accept(runCtx, listener, pool, r.done)

	r.Logger().Info("Socket receiver listening",
		"address", listener.Addr().String(),
		"workers", r.cfg.Workers)
	return nil
}

func (r *Receiver) accept(ctx context.Context, listener net.Listener, pool *worker.Pool[net.Conn], done chan struct{}) {
	defer close(done)
	for {
		conn, err := listener.Accept()
		if err != nil {
			if r.terminating.Load() || stderrors.Is(err, net.ErrClosed) {
				return
			}
			r.Logger().Warn("Accept failed", "error", err)
			continue
		}

		// blocks while every worker is busy and the backlog is full
		if err := pool.SubmitWait(ctx, conn); err != nil {
			_ = conn.Close()
			if r.terminating.Load() {
				return
			}
			r.Logger().Warn("Connection dropped", "remote", conn.RemoteAddr().String(), "error", err)
		}
	}
}

func (r *Receiver) track(conn net.Conn, add bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if add {
		r.conns[conn] = struct{}{}
	} else {
		delete(r.conns, conn)
	}
}

func (r *Receiver) serve(ctx context.Context, conn net.Conn) error {
	r.track(conn, true)
	r.metrics.ConnectionOpened("socket")
	defer func() {
		_ = conn.Close()
		r.track(conn, false)
		r.metrics.ConnectionClosed("socket")
	}()
	// Stop may already have closed the tracked connections
	if r.terminating.Load() {
		return nil
	}

	if r.cfg.ReadTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(r.cfg.ReadTimeout))
	}

	remote := conn.RemoteAddr().String()
	metadata := map[string]any{
		decoder.MetaRemoteAddr: remote,
		decoder.MetaReceiver:   r.Name(),
	}
	deliver := func(ctx context.Context, payload []byte) error {
		err := r.Deliver(ctx, r.Name(), payload, maps.Clone(metadata))
		if err != nil {
			r.Logger().Warn("Payload rejected", "remote", remote, "error", err)
		}
		return err
	}

	err := r.safeHandle(ctx, conn, deliver)
	if err != nil && !r.terminating.Load() {
		r.Logger().Error("Connection handler failed", "remote", remote, "error", err)
	}
	return err
}

func (r *Receiver) safeHandle(ctx context.Context, conn net.Conn, deliver DeliverFunc) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("handler panic: %v", p)
		}
	}()
	return r.factory.NewHandler().Handle(ctx, conn, deliver)
}

// Stop flags termination, closes the listener and open connections, stops the
// pool and then the handler factory.
func (r *Receiver) Stop(ctx context.Context, monitor component.Monitor) error {
	r.terminating.Store(true)

	r.mu.Lock()
	listener, pool, cancel, done := r.listener, r.pool, r.cancel, r.done
	r.listener, r.pool, r.cancel, r.done = nil, nil, nil, nil
	for conn := range r.conns {
		_ = conn.Close()
	}
	r.mu.Unlock()

	var stopErr error
	if listener != nil {
		_ = listener.Close()
	}
	// stopping the pool releases an acceptor blocked in SubmitWait
	if pool != nil {
		if err := pool.Stop(r.cfg.StopTimeout); err != nil {
			stopErr = errors.WrapTransient(err, "socket-receiver", "Stop", "worker pool stop")
		}
	}
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	if r.factory != nil {
		r.StopNested(ctx, r.factory, monitor)
	}
	return stopErr
}
