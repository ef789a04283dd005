package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/xfyecn/sitewhere-master-sub001/event"
)

type streamKey struct {
	assignment string
	stream     string
}

type chunkKey struct {
	streamKey
	seq int64
}

// Memory keeps events and streams in process. It implements both EventStore
// and StreamStore.
type Memory struct {
	mu      sync.RWMutex
	events  []event.Event
	streams map[streamKey]*Stream
	chunks  map[chunkKey][]byte
	err     error
}

var (
	_ EventStore  = (*Memory)(nil)
	_ StreamStore = (*Memory)(nil)
)

// NewMemory creates an empty store.
func NewMemory() *Memory {
	return &Memory{
		streams: make(map[streamKey]*Stream),
		chunks:  make(map[chunkKey][]byte),
	}
}

// FailWith makes every write return err until called with nil.
func (m *Memory) FailWith(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

func (m *Memory) StoreEvent(_ context.Context, e event.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, e)
	return nil
}

// Events returns the stored events in arrival order.
func (m *Memory) Events() []event.Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.events)
}

func (m *Memory) CreateStream(_ context.Context, s *Stream) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	key := streamKey{s.AssignmentToken, s.StreamID}
	if _, exists := m.streams[key]; exists {
		return ErrStreamExists
	}
	stored := *s
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	m.streams[key] = &stored
	return nil
}

func (m *Memory) GetStream(_ context.Context, assignmentToken, streamID string) (*Stream, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.streams[streamKey{assignmentToken, streamID}]
	if !ok {
		return nil, ErrStreamNotFound
	}
	out := *s
	return &out, nil
}

func (m *Memory) AppendChunk(_ context.Context, assignmentToken, streamID string, seq int64, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	key := streamKey{assignmentToken, streamID}
	if _, ok := m.streams[key]; !ok {
		return ErrStreamNotFound
	}
	m.chunks[chunkKey{key, seq}] = slices.Clone(data)
	return nil
}

func (m *Memory) GetChunk(_ context.Context, assignmentToken, streamID string, seq int64) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.chunks[chunkKey{streamKey{assignmentToken, streamID}, seq}]
	if !ok {
		return nil, ErrChunkNotFound
	}
	return slices.Clone(data), nil
}
