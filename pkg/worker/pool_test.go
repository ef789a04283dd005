package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xfyecn/sitewhere-master-sub001/metric"
)

type testWork struct {
	id   int
	fail bool
}

func TestNewPool_Defaults(t *testing.T) {
	noop := func(context.Context, testWork) error { return nil }

	pool := NewPool(5, 100, noop)
	assert.Equal(t, 5, pool.workers)
	assert.Equal(t, 100, pool.queueSize)

	pool = NewPool(0, 0, noop)
	assert.Equal(t, 10, pool.workers)
	assert.Equal(t, 1000, pool.queueSize)

	assert.Panics(t, func() { NewPool[testWork](1, 1, nil) })
}

func TestPool_SubmitBeforeStart(t *testing.T) {
	pool := NewPool(1, 1, func(context.Context, testWork) error { return nil })
	assert.ErrorIs(t, pool.Submit(testWork{}), ErrPoolNotStarted)
	assert.ErrorIs(t, pool.SubmitWait(context.Background(), testWork{}), ErrPoolNotStarted)
}

func TestPool_ProcessesWork(t *testing.T) {
	var processed, failed int64
	var wg sync.WaitGroup
	pool := NewPool(3, 10, func(_ context.Context, w testWork) error {
		defer wg.Done()
		if w.fail {
			atomic.AddInt64(&failed, 1)
			return errors.New("failed")
		}
		atomic.AddInt64(&processed, 1)
		return nil
	})

	ctx := context.Background()
	require.NoError(t, pool.Start(ctx))
	assert.ErrorIs(t, pool.Start(ctx), ErrPoolAlreadyStarted)

	for i := 0; i < 10; i++ {
		wg.Add(1)
		require.NoError(t, pool.SubmitWait(ctx, testWork{id: i, fail: i%5 == 0}))
	}
	wg.Wait()

	require.NoError(t, pool.Stop(time.Second))
	assert.Equal(t, int64(8), atomic.LoadInt64(&processed))
	assert.Equal(t, int64(2), atomic.LoadInt64(&failed))

	stats := pool.Stats()
	assert.Equal(t, int64(10), stats.Submitted)
	assert.Equal(t, int64(10), stats.Processed)
	assert.Equal(t, int64(2), stats.Failed)

	assert.ErrorIs(t, pool.Submit(testWork{}), ErrPoolStopped)
	assert.NoError(t, pool.Stop(time.Second))
}

func TestPool_SubmitQueueFull(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	pool := NewPool(1, 1, func(context.Context, testWork) error {
		started <- struct{}{}
		<-release
		return nil
	})
	require.NoError(t, pool.Start(context.Background()))

	require.NoError(t, pool.Submit(testWork{id: 1}))
	<-started
	require.NoError(t, pool.Submit(testWork{id: 2}))
	assert.ErrorIs(t, pool.Submit(testWork{id: 3}), ErrQueueFull)
	assert.Equal(t, int64(1), pool.Stats().Dropped)

	close(release)
	require.NoError(t, pool.Stop(time.Second))
}

func TestPool_SubmitWaitBlocksUntilRoom(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	pool := NewPool(1, 1, func(context.Context, testWork) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		return nil
	})
	require.NoError(t, pool.Start(context.Background()))

	require.NoError(t, pool.Submit(testWork{id: 1}))
	<-started
	require.NoError(t, pool.Submit(testWork{id: 2}))

	submitted := make(chan error, 1)
	go func() {
		submitted <- pool.SubmitWait(context.Background(), testWork{id: 3})
	}()

	select {
	case <-submitted:
		t.Fatal("SubmitWait returned while the queue was full")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case err := <-submitted:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("SubmitWait did not unblock")
	}
	require.NoError(t, pool.Stop(time.Second))
}

func TestPool_SubmitWaitContextCancel(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	pool := NewPool(1, 1, func(context.Context, testWork) error {
		<-release
		return nil
	})
	require.NoError(t, pool.Start(context.Background()))
	require.NoError(t, pool.Submit(testWork{id: 1}))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	var err error
	for i := 0; i < 3 && err == nil; i++ {
		err = pool.SubmitWait(ctx, testWork{id: i + 2})
	}
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPool_StopDiscardsQueued(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	var discarded []int
	var mu sync.Mutex

	pool := NewPool(1, 5, func(context.Context, testWork) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		return nil
	}, WithDiscard(func(w testWork) {
		mu.Lock()
		discarded = append(discarded, w.id)
		mu.Unlock()
	}))
	require.NoError(t, pool.Start(context.Background()))

	require.NoError(t, pool.Submit(testWork{id: 1}))
	<-started
	require.NoError(t, pool.Submit(testWork{id: 2}))
	require.NoError(t, pool.Submit(testWork{id: 3}))

	go func() {
		time.Sleep(20 * time.Millisecond)
		close(release)
	}()
	require.NoError(t, pool.Stop(time.Second))

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []int{2, 3}, discarded)
}

func TestPool_StopTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	started := make(chan struct{})
	pool := NewPool(1, 1, func(context.Context, testWork) error {
		close(started)
		<-release
		return nil
	})
	require.NoError(t, pool.Start(context.Background()))
	require.NoError(t, pool.Submit(testWork{}))
	<-started

	assert.ErrorIs(t, pool.Stop(20*time.Millisecond), ErrStopTimeout)
}

func TestPool_WithMetricsRegistry(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	done := make(chan struct{})
	pool := NewPool(1, 2, func(context.Context, testWork) error {
		close(done)
		return nil
	}, WithMetricsRegistry[testWork](registry, "socket_test"))
	require.NotNil(t, pool.metrics)

	require.NoError(t, pool.Start(context.Background()))
	require.NoError(t, pool.Submit(testWork{}))
	<-done
	require.NoError(t, pool.Stop(time.Second))

	families, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	assert.True(t, names["socket_test_submitted_total"])
}
