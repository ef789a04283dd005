package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xfyecn/sitewhere-master-sub001/config"
	"github.com/xfyecn/sitewhere-master-sub001/errors"
	"github.com/xfyecn/sitewhere-master-sub001/processor/inbound"
)

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()
	f := func(*Context, config.Params) (inbound.Processor, error) { return nil, nil }

	require.NoError(t, r.RegisterInbound("custom", f))
	assert.ErrorContains(t, r.RegisterInbound("custom", f), "already registered")
	assert.ErrorContains(t, r.RegisterInbound("", f), "cannot be empty")
	assert.ErrorContains(t, r.RegisterInbound("nil", nil), "cannot be nil")

	got, err := r.inbound.lookup("custom")
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestRegistry_UnknownType(t *testing.T) {
	r := NewRegistry()

	_, err := r.receivers.lookup("carrier-pigeon")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)
	assert.True(t, errors.IsInvalid(err))
	assert.Contains(t, err.Error(), `unknown receiver type "carrier-pigeon"`)
}

func TestDefaultRegistry_Types(t *testing.T) {
	types := DefaultRegistry().Types()

	assert.Equal(t, []string{"memory", "postgres"}, types["identity"])
	assert.Equal(t, []string{"influx", "memory"}, types["event_store"])
	assert.Equal(t, []string{"memory", "minio", "objectstore"}, types["stream_store"])
	assert.Equal(t, []string{"jetstream-queue", "kafka-queue", "mqtt", "redis-queue", "socket", "udp", "websocket"}, types["receivers"])
	assert.Equal(t, []string{"composite", "json", "logging", "measurements"}, types["decoders"])
	assert.Equal(t, []string{"event-storage", "registration", "streams"}, types["inbound"])
	assert.Equal(t, []string{"file-publisher", "kafka-publisher", "mqtt-publisher", "nats-publisher", "rest-publisher"}, types["outbound"])
}
