// Package udp provides a datagram receiver. Every datagram is one payload.
//
// The read loop never blocks on delivery: datagrams are copied into a bounded
// buffer and a second goroutine drains it into the sink. When decoding falls
// behind, the buffer's overflow policy decides what is lost.
package udp

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xfyecn/sitewhere-master-sub001/component"
	"github.com/xfyecn/sitewhere-master-sub001/decoder"
	"github.com/xfyecn/sitewhere-master-sub001/errors"
	"github.com/xfyecn/sitewhere-master-sub001/metric"
	"github.com/xfyecn/sitewhere-master-sub001/pkg/buffer"
	"github.com/xfyecn/sitewhere-master-sub001/pkg/retry"
	"github.com/xfyecn/sitewhere-master-sub001/receiver"
)

const (
	DefaultBufferSize      = 1024
	DefaultMaxDatagram     = 65535
	DefaultReadBufferBytes = 2 * 1024 * 1024

	batchSize    = 100
	readDeadline = 100 * time.Millisecond
)

// Config configures a UDP receiver.
type Config struct {
	Address string `json:"address" yaml:"address"`
	// BufferSize is the number of datagrams held between reading and delivery.
	BufferSize  int `json:"buffer_size" yaml:"buffer_size"`
	MaxDatagram int `json:"max_datagram" yaml:"max_datagram"`
	// ReadBufferBytes sizes the kernel socket buffer.
	ReadBufferBytes int `json:"read_buffer_bytes" yaml:"read_buffer_bytes"`
	// Overflow is "drop-oldest" or "drop-newest".
	Overflow string `json:"overflow" yaml:"overflow"`
}

func (c Config) withDefaults() Config {
	if c.BufferSize <= 0 {
		c.BufferSize = DefaultBufferSize
	}
	if c.MaxDatagram <= 0 {
		c.MaxDatagram = DefaultMaxDatagram
	}
	if c.ReadBufferBytes <= 0 {
		c.ReadBufferBytes = DefaultReadBufferBytes
	}
	if c.Overflow == "" {
		c.Overflow = buffer.DropOldest.String()
	}
	return c
}

// Validate checks the overflow policy. Reject is not offered: a read loop
// has no one to report the failure to.
func (c Config) Validate() error {
	p, ok := buffer.ParseOverflowPolicy(c.withDefaults().Overflow)
	if !ok || p == buffer.Reject {
		return errors.WrapInvalid(fmt.Errorf("%w: overflow %q", errors.ErrInvalidConfig, c.Overflow),
			"udp-receiver", "Validate", "overflow policy")
	}
	return nil
}

// Receiver reads datagrams from a UDP socket.
type Receiver struct {
	*component.Lifecycle
	component.TenantScope
	receiver.Delivery[[]byte]

	cfg      Config
	registry *metric.MetricsRegistry
	bind     retry.Config
	instance atomic.Int64

	mu   sync.Mutex
	conn *net.UDPConn
	buf  buffer.Buffer[datagram]
	wg   sync.WaitGroup

	terminating atomic.Bool
}

var _ receiver.Receiver[[]byte] = (*Receiver)(nil)

// New creates a UDP receiver.
func New(deps component.Dependencies, cfg Config) *Receiver {
	r := &Receiver{
		cfg:      cfg.withDefaults(),
		registry: deps.MetricsRegistry,
		bind:     retry.Quick(),
	}
	r.Lifecycle = component.NewLifecycle(r, component.TypeInboundReceiver, "udp-receiver", deps.LifecycleOptions()...)
	return r
}

// Addr returns the bound address, or nil when not listening.
func (r *Receiver) Addr() net.Addr {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == nil {
		return nil
	}
	return r.conn.LocalAddr()
}

// Buffered returns the number of datagrams waiting for delivery.
func (r *Receiver) Buffered() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.buf == nil {
		return 0
	}
	return r.buf.Len()
}

func (r *Receiver) Start(ctx context.Context, _ component.Monitor) error {
	if err := r.RequireSink("udp-receiver"); err != nil {
		return err
	}
	if err := r.cfg.Validate(); err != nil {
		return err
	}
	policy, _ := buffer.ParseOverflowPolicy(r.cfg.Overflow)

	addr, err := net.ResolveUDPAddr("udp", r.cfg.Address)
	if err != nil {
		return errors.WrapInvalid(err, "udp-receiver", "Start", "address resolution")
	}

	opts := []buffer.Option[datagram]{buffer.WithOverflowPolicy[datagram](policy)}
	if r.registry != nil {
		// restarts need fresh collector names
		prefix := fmt.Sprintf("udp_%s_%d", component.TenantID(r), r.instance.Add(1))
		opts = append(opts, buffer.WithMetrics[datagram](r.registry, prefix))
	}
	buf, err := buffer.NewCircularBuffer[datagram](r.cfg.BufferSize, opts...)
	if err != nil {
		r.Logger().Warn("Buffer metrics disabled", "error", err)
		buf, _ = buffer.NewCircularBuffer[datagram](r.cfg.BufferSize, opts[0])
	}

	conn, err := retry.DoWithResult(ctx, r.bind, func(context.Context) (*net.UDPConn, error) {
		return net.ListenUDP("udp", addr)
	})
	if err != nil {
		return errors.WrapTransient(err, "udp-receiver", "Start", fmt.Sprintf("listen on %s", r.cfg.Address))
	}
	if err := conn.SetReadBuffer(r.cfg.ReadBufferBytes); err != nil {
		r.Logger().Warn("Socket read buffer not resized", "bytes", r.cfg.ReadBufferBytes, "error", err)
	}

	runCtx := context.WithoutCancel(ctx)
	readDone := make(chan struct{})

	r.mu.Lock()
	r.conn = conn
	r.buf = buf
	r.mu.Unlock()
	r.terminating.Store(false)

	r.wg.Add(2)
	go r.read(conn, buf, readDone)
	go r.deliver(runCtx, buf, readDone)

	r.Logger().Info("UDP receiver listening",
		"address", conn.LocalAddr().String(),
		"buffer", r.cfg.BufferSize,
		"overflow", r.cfg.Overflow)
	return nil
}

func (r *Receiver) read(conn *net.UDPConn, buf buffer.Buffer[datagram], done chan<- struct{}) {
	defer r.wg.Done()
	defer close(done)
	packet := make([]byte, r.cfg.MaxDatagram)
	for {
		// the deadline lets the loop notice termination without a close race
		_ = conn.SetReadDeadline(time.Now().Add(readDeadline))
		n, remote, err := conn.ReadFromUDP(packet)
		if err != nil {
			if r.terminating.Load() || stderrors.Is(err, net.ErrClosed) {
				return
			}
			var ne net.Error
			if stderrors.As(err, &ne) && ne.Timeout() {
				continue
			}
			r.Logger().Warn("Datagram read failed", "error", err)
			continue
		}
		if n == 0 {
			continue
		}

		d := datagram{remote: remote.String(), data: append([]byte(nil), packet[:n]...)}
		if err := buf.Write(d); err != nil && !r.terminating.Load() {
			r.Logger().Warn("Datagram dropped", "remote", d.remote, "error", err)
		}
	}
}

// deliver exits once the read loop has and the buffer is empty.
func (r *Receiver) deliver(ctx context.Context, buf buffer.Buffer[datagram], readDone <-chan struct{}) {
	defer r.wg.Done()
	for {
		select {
		case <-buf.Ready():
		case <-readDone:
			r.drain(ctx, buf)
			return
		}
		r.drain(ctx, buf)
	}
}

func (r *Receiver) drain(ctx context.Context, buf buffer.Buffer[datagram]) {
	for {
		batch := buf.ReadBatch(batchSize)
		if len(batch) == 0 {
			return
		}
		for _, d := range batch {
			metadata := map[string]any{
				decoder.MetaRemoteAddr: d.remote,
				decoder.MetaReceiver:   r.Name(),
			}
			if err := r.Deliver(ctx, r.Name(), d.data, metadata); err != nil {
				r.Logger().Warn("Payload rejected", "remote", d.remote, "error", err)
			}
		}
	}
}

// Stop closes the socket, delivers what is already buffered and waits for
// both loops to exit.
func (r *Receiver) Stop(context.Context, component.Monitor) error {
	r.terminating.Store(true)

	r.mu.Lock()
	conn, buf := r.conn, r.buf
	r.conn = nil
	r.mu.Unlock()

	var stopErr error
	if conn != nil {
		if err := conn.Close(); err != nil {
			stopErr = errors.WrapTransient(err, "udp-receiver", "Stop", "socket close")
		}
	}
	r.wg.Wait()
	if buf != nil {
		_ = buf.Close()
	}
	return stopErr
}

type datagram struct {
	remote string
	data   []byte
}
