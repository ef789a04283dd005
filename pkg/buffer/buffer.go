// Package buffer provides a bounded, thread-safe circular buffer with
// overflow policies, always-on statistics and optional Prometheus metrics.
//
// Producers that must never block, such as a datagram read loop, write into
// the buffer; a consumer waits on Ready and drains with ReadBatch.
//
//	buf, err := buffer.NewCircularBuffer[[]byte](1024,
//		buffer.WithOverflowPolicy[[]byte](buffer.DropOldest),
//		buffer.WithMetrics[[]byte](registry, "udp_receiver"),
//	)
package buffer

// Buffer is a bounded FIFO of items of type T.
type Buffer[T any] interface {
	// Write adds an item. What happens when the buffer is full depends on the
	// overflow policy.
	Write(item T) error

	// Read removes the oldest item.
	Read() (T, bool)

	// ReadBatch removes up to max items, oldest first.
	ReadBatch(max int) []T

	// Ready is signalled after writes. A single signal may cover several
	// items, so consumers drain until empty.
	Ready() <-chan struct{}

	Len() int
	Capacity() int
	Stats() *Statistics

	// Close rejects further writes. Buffered items can still be read.
	Close() error
}

// OverflowPolicy defines how the buffer behaves when it reaches capacity.
type OverflowPolicy int

const (
	// DropOldest removes the oldest item to make room for new items.
	DropOldest OverflowPolicy = iota

	// DropNewest silently discards the item being written.
	DropNewest

	// Reject fails the write with ErrQueueFull.
	Reject
)

// String returns a human-readable representation of the overflow policy.
func (p OverflowPolicy) String() string {
	switch p {
	case DropOldest:
		return "drop-oldest"
	case DropNewest:
		return "drop-newest"
	case Reject:
		return "reject"
	default:
		return "unknown"
	}
}

// ParseOverflowPolicy parses the String form of a policy.
func ParseOverflowPolicy(s string) (OverflowPolicy, bool) {
	for _, p := range []OverflowPolicy{DropOldest, DropNewest, Reject} {
		if p.String() == s {
			return p, true
		}
	}
	return DropOldest, false
}

// DropCallback is called with each item discarded by the overflow policy.
type DropCallback[T any] func(item T)

// NewCircularBuffer creates a circular buffer. A capacity below one is
// raised to one. It fails only when metrics registration fails.
func NewCircularBuffer[T any](capacity int, options ...Option[T]) (Buffer[T], error) {
	return newCircularBuffer(capacity, applyOptions(options...))
}
