package buffer

import (
	"sync"

	"github.com/xfyecn/sitewhere-master-sub001/errors"
)

type circularBuffer[T any] struct {
	mu       sync.Mutex
	items    []T
	capacity int
	size     int
	head     int // next write position
	tail     int // next read position
	closed   bool

	ready   chan struct{}
	stats   *Statistics
	metrics *bufferMetrics // nil when metrics are disabled
	opts    *bufferOptions[T]
}

func newCircularBuffer[T any](capacity int, opts *bufferOptions[T]) (*circularBuffer[T], error) {
	if capacity <= 0 {
		capacity = 1
	}

	var metrics *bufferMetrics
	if opts.metricsReg != nil {
		var err error
		metrics, err = newBufferMetrics(opts.metricsReg, opts.metricsPrefix)
		if err != nil {
			return nil, errors.WrapTransient(err, "buffer", "newCircularBuffer", "metrics registration")
		}
	}

	return &circularBuffer[T]{
		items:    make([]T, capacity),
		capacity: capacity,
		ready:    make(chan struct{}, 1),
		stats:    NewStatistics(),
		metrics:  metrics,
		opts:     opts,
	}, nil
}

func (cb *circularBuffer[T]) Write(item T) error {
	var dropped []T
	err := cb.write(item, &dropped)
	if cb.opts.dropCallback != nil {
		for _, d := range dropped {
			cb.opts.dropCallback(d)
		}
	}
	return err
}

// write runs under the lock; dropped items are reported after it is released.
func (cb *circularBuffer[T]) write(item T, dropped *[]T) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.closed {
		return errors.WrapInvalid(errors.ErrNotStarted, "buffer", "Write", "buffer closed")
	}

	if cb.size == cb.capacity {
		cb.stats.Overflow()
		cb.metrics.recordOverflow()

		switch cb.opts.overflowPolicy {
		case DropNewest:
			cb.stats.Drop()
			cb.metrics.recordDrop()
			*dropped = append(*dropped, item)
			return nil
		case Reject:
			return errors.WrapTransient(errors.ErrQueueFull, "buffer", "Write", "capacity check")
		default:
			var zero T
			*dropped = append(*dropped, cb.items[cb.tail])
			cb.items[cb.tail] = zero
			cb.tail = (cb.tail + 1) % cb.capacity
			cb.size--
			cb.stats.Drop()
			cb.metrics.recordDrop()
		}
	}

	cb.items[cb.head] = item
	cb.head = (cb.head + 1) % cb.capacity
	cb.size++

	cb.stats.Write()
	cb.stats.UpdateSize(int64(cb.size))
	cb.metrics.recordWrite(cb.size, cb.capacity)

	select {
	case cb.ready <- struct{}{}:
	default:
	}
	return nil
}

func (cb *circularBuffer[T]) Read() (T, bool) {
	items := cb.ReadBatch(1)
	if len(items) == 0 {
		var zero T
		return zero, false
	}
	return items[0], true
}

func (cb *circularBuffer[T]) ReadBatch(max int) []T {
	if max <= 0 {
		return nil
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	n := min(max, cb.size)
	if n == 0 {
		return nil
	}

	var zero T
	out := make([]T, n)
	for i := range out {
		out[i] = cb.items[cb.tail]
		cb.items[cb.tail] = zero
		cb.tail = (cb.tail + 1) % cb.capacity
	}
	cb.size -= n

	cb.stats.Read(int64(n))
	cb.stats.UpdateSize(int64(cb.size))
	cb.metrics.recordRead(n, cb.size, cb.capacity)
	return out
}

func (cb *circularBuffer[T]) Ready() <-chan struct{} {
	return cb.ready
}

func (cb *circularBuffer[T]) Len() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.size
}

func (cb *circularBuffer[T]) Capacity() int {
	return cb.capacity
}

func (cb *circularBuffer[T]) Stats() *Statistics {
	return cb.stats
}

func (cb *circularBuffer[T]) Close() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.closed = true
	return nil
}
