package buffer

import (
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pipeerrors "github.com/xfyecn/sitewhere-master-sub001/errors"
	"github.com/xfyecn/sitewhere-master-sub001/metric"
)

func fill(t *testing.T, buf Buffer[int], items ...int) {
	t.Helper()
	for _, i := range items {
		require.NoError(t, buf.Write(i))
	}
}

func TestCircularBuffer_FIFO(t *testing.T) {
	buf, err := NewCircularBuffer[int](4)
	require.NoError(t, err)

	fill(t, buf, 1, 2, 3)
	assert.Equal(t, 3, buf.Len())
	assert.Equal(t, 4, buf.Capacity())

	v, ok := buf.Read()
	require.True(t, ok)
	assert.Equal(t, 1, v)

	// wrap around the end of the ring
	fill(t, buf, 4, 5)
	assert.Equal(t, []int{2, 3, 4, 5}, buf.ReadBatch(10))

	_, ok = buf.Read()
	assert.False(t, ok)
	assert.Nil(t, buf.ReadBatch(0))
}

func TestCircularBuffer_OverflowPolicies(t *testing.T) {
	tests := []struct {
		policy  OverflowPolicy
		want    []int
		dropped []int
		wantErr bool
	}{
		{DropOldest, []int{2, 3, 4}, []int{1}, false},
		{DropNewest, []int{1, 2, 3}, []int{4}, false},
		{Reject, []int{1, 2, 3}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.policy.String(), func(t *testing.T) {
			var dropped []int
			buf, err := NewCircularBuffer[int](3,
				WithOverflowPolicy[int](tt.policy),
				WithDropCallback[int](func(i int) { dropped = append(dropped, i) }))
			require.NoError(t, err)

			fill(t, buf, 1, 2, 3)
			err = buf.Write(4)
			if tt.wantErr {
				assert.ErrorIs(t, err, pipeerrors.ErrQueueFull)
			} else {
				assert.NoError(t, err)
			}

			assert.Equal(t, tt.dropped, dropped)
			assert.Equal(t, tt.want, buf.ReadBatch(10))
			assert.Equal(t, int64(1), buf.Stats().Overflows())
			assert.Equal(t, int64(len(tt.dropped)), buf.Stats().Drops())
		})
	}
}

func TestCircularBuffer_Ready(t *testing.T) {
	buf, err := NewCircularBuffer[int](8)
	require.NoError(t, err)

	select {
	case <-buf.Ready():
		t.Fatal("ready before any write")
	default:
	}

	fill(t, buf, 1, 2, 3)
	select {
	case <-buf.Ready():
	default:
		t.Fatal("not ready after writes")
	}
	// several writes coalesce into one signal
	select {
	case <-buf.Ready():
		t.Fatal("second signal for the same writes")
	default:
	}
	assert.Len(t, buf.ReadBatch(10), 3)
}

func TestCircularBuffer_Close(t *testing.T) {
	buf, err := NewCircularBuffer[string](2)
	require.NoError(t, err)
	require.NoError(t, buf.Write("a"))
	require.NoError(t, buf.Close())

	assert.ErrorIs(t, buf.Write("b"), pipeerrors.ErrNotStarted)
	v, ok := buf.Read()
	assert.True(t, ok)
	assert.Equal(t, "a", v)
}

func TestCircularBuffer_ConcurrentWriters(t *testing.T) {
	buf, err := NewCircularBuffer[int](1000)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for w := 0; w < 10; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				_ = buf.Write(i)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1000, buf.Len())
	assert.Equal(t, int64(1000), buf.Stats().Writes())
	assert.Equal(t, int64(1000), buf.Stats().MaxSize())
	assert.Zero(t, buf.Stats().Drops())
}

func TestCircularBuffer_Metrics(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	buf, err := NewCircularBuffer[int](2, WithMetrics[int](registry, "udp_test"))
	require.NoError(t, err)

	fill(t, buf, 1, 2, 3)
	buf.ReadBatch(1)

	cb := buf.(*circularBuffer[int])
	assert.Equal(t, 3.0, testutil.ToFloat64(cb.metrics.writes))
	assert.Equal(t, 1.0, testutil.ToFloat64(cb.metrics.drops))
	assert.Equal(t, 1.0, testutil.ToFloat64(cb.metrics.size))
	assert.Equal(t, 0.5, testutil.ToFloat64(cb.metrics.utilization))

	// same prefix twice collides in the registry
	_, err = NewCircularBuffer[int](2, WithMetrics[int](registry, "udp_test"))
	assert.Error(t, err)
}

func TestParseOverflowPolicy(t *testing.T) {
	p, ok := ParseOverflowPolicy("drop-newest")
	assert.True(t, ok)
	assert.Equal(t, DropNewest, p)

	_, ok = ParseOverflowPolicy("block")
	assert.False(t, ok)
	assert.Equal(t, "unknown", OverflowPolicy(42).String())
}

func TestStatistics_DropRate(t *testing.T) {
	s := NewStatistics()
	assert.Zero(t, s.DropRate())
	for i := 0; i < 4; i++ {
		s.Write()
	}
	s.Drop()
	assert.Equal(t, 0.25, s.DropRate())
}
