package udp

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xfyecn/sitewhere-master-sub001/component"
	"github.com/xfyecn/sitewhere-master-sub001/decoder"
	pipeerrors "github.com/xfyecn/sitewhere-master-sub001/errors"
	"github.com/xfyecn/sitewhere-master-sub001/metric"
	"github.com/xfyecn/sitewhere-master-sub001/receiver"
)

type capture struct {
	mu       sync.Mutex
	payloads []string
	metadata []map[string]any
}

func (c *capture) sink() receiver.Sink[[]byte] {
	return receiver.SinkFunc[[]byte](func(_ context.Context, _ string, payload []byte, md map[string]any) error {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.payloads = append(c.payloads, string(payload))
		c.metadata = append(c.metadata, md)
		return nil
	})
}

func (c *capture) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.payloads)
}

func startReceiver(t *testing.T, deps component.Dependencies, cfg Config, sink receiver.Sink[[]byte]) *Receiver {
	t.Helper()
	r := New(deps, cfg)
	r.SetSink(sink)
	r.LifecycleStart(context.Background(), nil)
	require.Equal(t, component.StatusStarted, r.Status(), "start failed: %v", r.LastError())
	t.Cleanup(func() { r.LifecycleStop(context.Background(), nil) })
	require.NotNil(t, r.Addr())
	return r
}

func send(t *testing.T, addr net.Addr, payloads ...string) string {
	t.Helper()
	conn, err := net.Dial("udp", addr.String())
	require.NoError(t, err)
	defer conn.Close()
	for _, p := range payloads {
		_, err := conn.Write([]byte(p))
		require.NoError(t, err)
	}
	return conn.LocalAddr().String()
}

func TestReceiver_DeliversDatagrams(t *testing.T) {
	c := &capture{}
	r := startReceiver(t, component.Dependencies{}, Config{Address: "127.0.0.1:0"}, c.sink())

	local := send(t, r.Addr(), `{"hardwareId":"dev-1"}`, `{"hardwareId":"dev-2"}`)

	require.Eventually(t, func() bool { return c.count() == 2 }, 2*time.Second, 10*time.Millisecond)
	c.mu.Lock()
	defer c.mu.Unlock()
	assert.Equal(t, []string{`{"hardwareId":"dev-1"}`, `{"hardwareId":"dev-2"}`}, c.payloads)
	assert.Equal(t, local, c.metadata[0][decoder.MetaRemoteAddr])
	assert.Equal(t, "udp-receiver", c.metadata[0][decoder.MetaReceiver])
}

func TestReceiver_SlowSinkDropsOldest(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{}, 1)
	var mu sync.Mutex
	var got []string
	sink := receiver.SinkFunc[[]byte](func(_ context.Context, _ string, payload []byte, _ map[string]any) error {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-release
		mu.Lock()
		got = append(got, string(payload))
		mu.Unlock()
		return nil
	})

	r := startReceiver(t, component.Dependencies{MetricsRegistry: metric.NewMetricsRegistry()},
		Config{Address: "127.0.0.1:0", BufferSize: 2}, sink)

	// the first datagram is held by the sink; the rest compete for two slots
	send(t, r.Addr(), "a")
	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("first datagram never reached the sink")
	}
	send(t, r.Addr(), "b", "c", "d", "e")
	require.Eventually(t, func() bool {
		r.mu.Lock()
		defer r.mu.Unlock()
		return r.buf.Stats().Writes() == 5
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 2, r.Buffered())

	close(release)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 3
	}, 2*time.Second, 10*time.Millisecond)
	mu.Lock()
	assert.Equal(t, []string{"a", "d", "e"}, got)
	mu.Unlock()
}

func TestReceiver_StopDrainsBuffer(t *testing.T) {
	c := &capture{}
	r := New(component.Dependencies{}, Config{Address: "127.0.0.1:0"})
	r.SetSink(c.sink())
	r.LifecycleStart(context.Background(), nil)
	require.Equal(t, component.StatusStarted, r.Status(), "start failed: %v", r.LastError())

	send(t, r.Addr(), "one", "two")
	require.Eventually(t, func() bool { return c.count() == 2 }, 2*time.Second, 10*time.Millisecond)

	r.LifecycleStop(context.Background(), nil)
	assert.Nil(t, r.Addr())
	assert.Equal(t, component.StatusStopped, r.Status())

	// restart binds a fresh socket
	r.LifecycleStart(context.Background(), nil)
	assert.Equal(t, component.StatusStarted, r.Status())
	assert.NotNil(t, r.Addr())
	r.LifecycleStop(context.Background(), nil)
}

func TestReceiver_StartErrors(t *testing.T) {
	r := New(component.Dependencies{}, Config{Address: "127.0.0.1:0"})
	r.LifecycleStart(context.Background(), nil)
	assert.Equal(t, component.StatusError, r.Status())
	assert.ErrorIs(t, r.LastError(), pipeerrors.ErrMissingConfig)

	r = New(component.Dependencies{}, Config{Address: "127.0.0.1:0", Overflow: "reject"})
	r.SetSink((&capture{}).sink())
	r.LifecycleStart(context.Background(), nil)
	assert.ErrorIs(t, r.LastError(), pipeerrors.ErrInvalidConfig)
}

func TestConfig_Defaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, DefaultBufferSize, cfg.BufferSize)
	assert.Equal(t, DefaultMaxDatagram, cfg.MaxDatagram)
	assert.Equal(t, "drop-oldest", cfg.Overflow)
	assert.NoError(t, cfg.Validate())
	assert.Error(t, Config{Overflow: "sometimes"}.Validate())
}
