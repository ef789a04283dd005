package queue

import (
	"context"
	"sync"
)

// MemorySource is an in-process bounded queue.
type MemorySource[T any] struct {
	items chan Item[T]

	mu     sync.Mutex
	closed chan struct{}
}

var _ Source[[]byte] = (*MemorySource[[]byte])(nil)

// NewMemorySource creates a queue holding up to capacity items.
func NewMemorySource[T any](capacity int) *MemorySource[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &MemorySource[T]{
		items:  make(chan Item[T], capacity),
		closed: make(chan struct{}),
	}
}

func (s *MemorySource[T]) closedCh() chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Open reopens a closed source. Queued items are kept.
func (s *MemorySource[T]) Open(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.closed:
		s.closed = make(chan struct{})
	default:
	}
	return nil
}

// Put queues a payload, blocking while the queue is full.
func (s *MemorySource[T]) Put(ctx context.Context, payload T, metadata map[string]any) error {
	select {
	case s.items <- Item[T]{Payload: payload, Metadata: metadata}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.closedCh():
		return ErrClosed
	}
}

// Len returns the number of queued items.
func (s *MemorySource[T]) Len() int {
	return len(s.items)
}

func (s *MemorySource[T]) Take(ctx context.Context) (Item[T], error) {
	closed := s.closedCh()
	select {
	case <-closed:
		return Item[T]{}, ErrClosed
	default:
	}
	select {
	case item := <-s.items:
		return item, nil
	case <-ctx.Done():
		return Item[T]{}, ctx.Err()
	case <-closed:
		return Item[T]{}, ErrClosed
	}
}

func (s *MemorySource[T]) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.closed:
	default:
		close(s.closed)
	}
	return nil
}
