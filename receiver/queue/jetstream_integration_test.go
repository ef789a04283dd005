//go:build integration

package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xfyecn/sitewhere-master-sub001/component"
	"github.com/xfyecn/sitewhere-master-sub001/natsclient"
)

func TestIntegration_JetStreamSource(t *testing.T) {
	tc := natsclient.NewTestClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	src := NewJetStreamSource(tc.Client, JetStreamConfig{
		Stream:   "DEVICE_PAYLOADS",
		Subjects: []string{"payloads.>"},
		Consumer: "pipeline",
	})
	sink := &orderedSink{}
	r := New[[]byte](component.Dependencies{}, "jetstream-queue", src)
	r.SetSink(sink)
	r.LifecycleStart(ctx, nil)
	require.Equal(t, component.StatusStarted, r.Status(), "start failed: %v", r.LastError())
	defer r.LifecycleStop(context.Background(), nil)

	require.NoError(t, tc.Client.PublishToStream(ctx, "payloads.acme", []byte("one")))
	require.NoError(t, tc.Client.PublishToStream(ctx, "payloads.acme", []byte("two")))

	require.Eventually(t, func() bool { return len(sink.got()) == 2 }, 10*time.Second, 20*time.Millisecond)
	require.Equal(t, []string{"one", "two"}, sink.got())
}
