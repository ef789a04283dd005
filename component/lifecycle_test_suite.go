package component

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// LifecycleFactory creates a fresh component for a lifecycle test.
type LifecycleFactory func(t *testing.T) Component

// StandardLifecycleTests runs the lifecycle checks every component must pass.
// The factory must return a component whose start does not depend on external
// infrastructure.
func StandardLifecycleTests(t *testing.T, factory LifecycleFactory) {
	tests := []struct {
		name string
		test func(t *testing.T, c Component)
	}{
		{"InitializeStartStop", testInitializeStartStop},
		{"DoubleStart", testDoubleStart},
		{"DoubleStop", testDoubleStop},
		{"StopWithoutStart", testStopWithoutStart},
		{"RestartAfterStop", testRestartAfterStop},
		{"PauseResume", testPauseResume},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := factory(t)
			require.NotNil(t, c, "component factory returned nil")
			t.Cleanup(func() { c.LifecycleStop(context.Background(), nil) })
			tt.test(t, c)
		})
	}
}

func requireStatus(t *testing.T, c Component, want Status) {
	t.Helper()
	require.Equal(t, want, c.Status(), "last error: %v", c.LastError())
}

func testInitializeStartStop(t *testing.T, c Component) {
	ctx := context.Background()

	requireStatus(t, c, StatusStopped)
	c.LifecycleInitialize(ctx, nil)
	requireStatus(t, c, StatusStopped)
	c.LifecycleStart(ctx, nil)
	requireStatus(t, c, StatusStarted)
	c.LifecycleStop(ctx, nil)
	requireStatus(t, c, StatusStopped)
	assert.NoError(t, c.LastError())
}

func testDoubleStart(t *testing.T, c Component) {
	ctx := context.Background()

	c.LifecycleInitialize(ctx, nil)
	c.LifecycleStart(ctx, nil)
	c.LifecycleStart(ctx, nil)
	requireStatus(t, c, StatusStarted)
}

func testDoubleStop(t *testing.T, c Component) {
	ctx := context.Background()

	c.LifecycleInitialize(ctx, nil)
	c.LifecycleStart(ctx, nil)
	c.LifecycleStop(ctx, nil)
	c.LifecycleStop(ctx, nil)
	requireStatus(t, c, StatusStopped)
}

func testStopWithoutStart(t *testing.T, c Component) {
	c.LifecycleStop(context.Background(), nil)
	requireStatus(t, c, StatusStopped)
}

func testRestartAfterStop(t *testing.T, c Component) {
	ctx := context.Background()

	c.LifecycleInitialize(ctx, nil)
	c.LifecycleStart(ctx, nil)
	c.LifecycleStop(ctx, nil)
	c.LifecycleInitialize(ctx, nil)
	c.LifecycleStart(ctx, nil)
	requireStatus(t, c, StatusStarted)
}

func testPauseResume(t *testing.T, c Component) {
	ctx := context.Background()

	c.LifecycleInitialize(ctx, nil)
	c.LifecycleStart(ctx, nil)
	c.LifecyclePause(ctx, nil)
	requireStatus(t, c, StatusPaused)
	c.LifecycleStart(ctx, nil)
	requireStatus(t, c, StatusStarted)
}
