package socket

import (
	"bytes"
	"context"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xfyecn/sitewhere-master-sub001/component"
	"github.com/xfyecn/sitewhere-master-sub001/decoder"
	pipeerrors "github.com/xfyecn/sitewhere-master-sub001/errors"
	"github.com/xfyecn/sitewhere-master-sub001/receiver"
)

type received struct {
	payload  string
	metadata map[string]any
}

type capture struct {
	mu    sync.Mutex
	items []received
}

func (c *capture) sink() receiver.Sink[[]byte] {
	return receiver.SinkFunc[[]byte](func(_ context.Context, _ string, payload []byte, md map[string]any) error {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.items = append(c.items, received{string(payload), md})
		return nil
	})
}

func (c *capture) payloads() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.items))
	for i, it := range c.items {
		out[i] = it.payload
	}
	return out
}

// gatedFactory holds every connection until released and tracks concurrency.
type gatedFactory struct {
	*component.Lifecycle
	release chan struct{}
	active  atomic.Int32
	peak    atomic.Int32
	handled atomic.Int32
}

func newGatedFactory() *gatedFactory {
	f := &gatedFactory{release: make(chan struct{})}
	f.Lifecycle = component.NewLifecycle(f, component.TypeSocketHandlerFactory, "gated-factory")
	return f
}

func (f *gatedFactory) NewHandler() Handler {
	return HandlerFunc(func(ctx context.Context, _ net.Conn, _ DeliverFunc) error {
		n := f.active.Add(1)
		for {
			peak := f.peak.Load()
			if n <= peak || f.peak.CompareAndSwap(peak, n) {
				break
			}
		}
		select {
		case <-f.release:
		case <-ctx.Done():
		}
		f.active.Add(-1)
		f.handled.Add(1)
		return nil
	})
}

func startReceiver(t *testing.T, r *Receiver) {
	t.Helper()
	r.LifecycleStart(context.Background(), nil)
	require.Equal(t, component.StatusStarted, r.Status(), "start failed: %v", r.LastError())
	t.Cleanup(func() { r.LifecycleStop(context.Background(), nil) })
}

func send(t *testing.T, addr net.Addr, payload string) {
	t.Helper()
	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	_, err = conn.Write([]byte(payload))
	require.NoError(t, err)
	require.NoError(t, conn.Close())
}

func TestReceiver_ReadAll(t *testing.T) {
	c := &capture{}
	r := New(component.Dependencies{}, Config{Address: "127.0.0.1:0"}, NewReadAllFactory(component.Dependencies{}, 0))
	r.SetSink(c.sink())
	startReceiver(t, r)

	send(t, r.Addr(), `{"hardwareId":"dev-1"}`)
	send(t, r.Addr(), `{"hardwareId":"dev-2"}`)

	require.Eventually(t, func() bool { return len(c.payloads()) == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.ElementsMatch(t, []string{`{"hardwareId":"dev-1"}`, `{"hardwareId":"dev-2"}`}, c.payloads())

	c.mu.Lock()
	md := c.items[0].metadata
	c.mu.Unlock()
	assert.NotEmpty(t, md[decoder.MetaRemoteAddr])
	assert.Equal(t, "socket-receiver", md[decoder.MetaReceiver])
}

func TestReceiver_Delimited(t *testing.T) {
	c := &capture{}
	r := New(component.Dependencies{}, Config{Address: "127.0.0.1:0"}, NewDelimitedFactory(component.Dependencies{}, 0))
	r.SetSink(c.sink())
	startReceiver(t, r)

	send(t, r.Addr(), "one\n\ntwo\nthree")

	require.Eventually(t, func() bool { return len(c.payloads()) == 3 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"one", "two", "three"}, c.payloads())
}

func TestReceiver_BoundedWorkers(t *testing.T) {
	factory := newGatedFactory()
	r := New(component.Dependencies{}, Config{Address: "127.0.0.1:0", Workers: 2, Backlog: 4}, factory)
	r.SetSink((&capture{}).sink())
	startReceiver(t, r)

	var conns []net.Conn
	for i := 0; i < 5; i++ {
		conn, err := net.Dial("tcp", r.Addr().String())
		require.NoError(t, err)
		conns = append(conns, conn)
	}
	defer func() {
		for _, c := range conns {
			_ = c.Close()
		}
	}()

	require.Eventually(t, func() bool { return factory.active.Load() == 2 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(2), factory.peak.Load())

	close(factory.release)
	require.Eventually(t, func() bool { return factory.handled.Load() == 5 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(2), factory.peak.Load())
}

func TestReceiver_DefaultWorkers(t *testing.T) {
	r := New(component.Dependencies{}, Config{}, NewReadAllFactory(component.Dependencies{}, 0))
	assert.Equal(t, DefaultWorkers, r.cfg.Workers)
	assert.Equal(t, 5, DefaultWorkers)
}

func TestReceiver_StartRequiresFactoryAndSink(t *testing.T) {
	r := New(component.Dependencies{}, Config{Address: "127.0.0.1:0"}, nil)
	r.SetSink((&capture{}).sink())
	r.LifecycleStart(context.Background(), nil)
	assert.Equal(t, component.StatusError, r.Status())
	assert.ErrorIs(t, r.LastError(), pipeerrors.ErrMissingConfig)

	r = New(component.Dependencies{}, Config{Address: "127.0.0.1:0"}, NewReadAllFactory(component.Dependencies{}, 0))
	r.LifecycleStart(context.Background(), nil)
	assert.Equal(t, component.StatusError, r.Status())
}

func TestReceiver_StopClosesListener(t *testing.T) {
	factory := newGatedFactory()
	r := New(component.Dependencies{}, Config{Address: "127.0.0.1:0", Workers: 1}, factory)
	r.SetSink((&capture{}).sink())
	startReceiver(t, r)
	addr := r.Addr().String()

	// one connection held by the only worker, one waiting in the backlog
	held, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer held.Close()
	queued, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer queued.Close()
	require.Eventually(t, func() bool { return factory.active.Load() == 1 }, 2*time.Second, 10*time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		r.LifecycleStop(context.Background(), nil)
		close(stopped)
	}()
	close(factory.release)

	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("stop did not return")
	}
	assert.Equal(t, component.StatusStopped, r.Status())
	assert.Equal(t, component.StatusStopped, factory.Status())
	assert.Nil(t, r.Addr())

	_, err = net.DialTimeout("tcp", addr, 200*time.Millisecond)
	assert.Error(t, err)

	r.LifecycleStop(context.Background(), nil)
	assert.Equal(t, component.StatusStopped, r.Status())
}

func TestReceiver_StopWhileAcceptingLogsNoError(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	r := New(component.Dependencies{Logger: logger}, Config{Address: "127.0.0.1:0", Workers: 1}, newGatedFactory())
	r.SetSink((&capture{}).sink())
	startReceiver(t, r)

	// leave the accept loop blocked with no client
	time.Sleep(100 * time.Millisecond)
	r.LifecycleStop(context.Background(), nil)

	require.Equal(t, component.StatusStopped, r.Status())
	assert.NotContains(t, logs.String(), "Accept failed")
}

func TestReceiver_Lifecycle(t *testing.T) {
	component.StandardLifecycleTests(t, func(*testing.T) component.Component {
		r := New(component.Dependencies{}, Config{Address: "127.0.0.1:0"}, NewReadAllFactory(component.Dependencies{}, 0))
		r.SetSink((&capture{}).sink())
		return r
	})
}
