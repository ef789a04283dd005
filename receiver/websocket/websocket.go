// Package websocket provides a receiver that connects to a websocket server
// and treats every message it reads as a payload.
package websocket

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/xfyecn/sitewhere-master-sub001/component"
	"github.com/xfyecn/sitewhere-master-sub001/decoder"
	"github.com/xfyecn/sitewhere-master-sub001/errors"
	"github.com/xfyecn/sitewhere-master-sub001/pkg/retry"
	"github.com/xfyecn/sitewhere-master-sub001/receiver"
)

// Config configures the websocket client.
type Config struct {
	URL     string            `json:"url" yaml:"url"`
	Headers map[string]string `json:"headers" yaml:"headers"`
	// Reconnect redials after the server drops the connection.
	Reconnect  bool          `json:"reconnect" yaml:"reconnect"`
	MaxRetries int           `json:"max_retries" yaml:"max_retries"` // 0 means unlimited
	Handshake  time.Duration `json:"handshake_timeout" yaml:"handshake_timeout"`
}

// Receiver reads messages from a websocket server.
type Receiver struct {
	*component.Lifecycle
	component.TenantScope
	receiver.Delivery[[]byte]

	cfg     Config
	dialer  *websocket.Dialer
	backoff retry.Config

	mu     sync.Mutex
	conn   *websocket.Conn
	cancel context.CancelFunc
	done   chan struct{}
}

var _ receiver.Receiver[[]byte] = (*Receiver)(nil)

// New creates a websocket receiver.
func New(deps component.Dependencies, cfg Config) *Receiver {
	if cfg.Handshake <= 0 {
		cfg.Handshake = 45 * time.Second
	}
	r := &Receiver{
		cfg:     cfg,
		dialer:  &websocket.Dialer{HandshakeTimeout: cfg.Handshake},
		backoff: retry.Connect(),
	}
	r.Lifecycle = component.NewLifecycle(r, component.TypeInboundReceiver, "websocket-receiver", deps.LifecycleOptions()...)
	return r
}

func (r *Receiver) headers() http.Header {
	h := http.Header{}
	for k, v := range r.cfg.Headers {
		h.Set(k, v)
	}
	return h
}

func (r *Receiver) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := r.dialer.DialContext(ctx, r.cfg.URL, r.headers())
	return conn, err
}

// Start dials the server once and starts the read loop. A server that cannot
// be reached at startup fails the start.
func (r *Receiver) Start(ctx context.Context, _ component.Monitor) error {
	if r.cfg.URL == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "websocket-receiver", "Start", "url lookup")
	}
	if err := r.RequireSink("websocket-receiver"); err != nil {
		return err
	}

	conn, err := r.dial(ctx)
	if err != nil {
		return errors.WrapTransient(err, "websocket-receiver", "Start", fmt.Sprintf("dial %s", r.cfg.URL))
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	r.mu.Lock()
	r.conn, r.cancel, r.done = conn, cancel, done
	r.mu.Unlock()

	go r.run(runCtx, conn, done)
	return nil
}

func (r *Receiver) setConn(conn *websocket.Conn) {
	r.mu.Lock()
	r.conn = conn
	r.mu.Unlock()
}

func (r *Receiver) run(ctx context.Context, conn *websocket.Conn, done chan struct{}) {
	defer close(done)

	attempts := 0
	for {
		r.readLoop(ctx, conn)
		_ = conn.Close()
		r.setConn(nil)

		if ctx.Err() != nil || !r.cfg.Reconnect {
			return
		}

		for {
			if r.cfg.MaxRetries > 0 && attempts >= r.cfg.MaxRetries {
				r.Logger().Error("Websocket reconnect attempts exhausted", "attempts", attempts)
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(r.backoff.Backoff(attempts)):
			}
			attempts++

			next, err := r.dial(ctx)
			if err != nil {
				r.Logger().Warn("Websocket reconnect failed", "attempt", attempts, "error", err)
				continue
			}
			// Stop may have run while dialing
			if ctx.Err() != nil {
				_ = next.Close()
				return
			}
			conn = next
			r.setConn(conn)
			attempts = 0
			r.Logger().Info("Websocket reconnected", "url", r.cfg.URL)
			break
		}
	}
}

func (r *Receiver) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				r.Logger().Warn("Websocket read failed", "error", err)
			}
			return
		}
		metadata := map[string]any{
			decoder.MetaRemoteAddr: conn.RemoteAddr().String(),
			decoder.MetaReceiver:   r.Name(),
		}
		if err := r.Deliver(ctx, r.Name(), message, metadata); err != nil {
			r.Logger().Warn("Websocket payload rejected", "error", err)
		}
	}
}

// Stop closes the connection and waits for the read loop to exit.
func (r *Receiver) Stop(context.Context, component.Monitor) error {
	r.mu.Lock()
	conn, cancel, done := r.conn, r.cancel, r.done
	r.conn, r.cancel, r.done = nil, nil, nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = conn.Close()
	}
	if done != nil {
		<-done
	}
	return nil
}
