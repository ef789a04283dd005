// Package store defines where processed device events and streams are kept.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/xfyecn/sitewhere-master-sub001/errors"
	"github.com/xfyecn/sitewhere-master-sub001/event"
)

var (
	// ErrStreamNotFound is returned for an unknown device stream.
	ErrStreamNotFound = fmt.Errorf("device stream %w", errors.ErrNotFound)
	// ErrChunkNotFound is returned for a missing stream chunk.
	ErrChunkNotFound = fmt.Errorf("stream chunk %w", errors.ErrNotFound)
	// ErrStreamExists is returned when a stream is created twice.
	ErrStreamExists = fmt.Errorf("device stream already exists: %w", errors.ErrInvalidData)
)

// EventStore persists device events.
type EventStore interface {
	StoreEvent(ctx context.Context, e event.Event) error
}

// Stream is a binary data stream opened by a device assignment.
type Stream struct {
	AssignmentToken string    `json:"assignmentToken"`
	StreamID        string    `json:"streamId"`
	ContentType     string    `json:"contentType"`
	CreatedAt       time.Time `json:"createdAt"`
}

// StreamStore persists device streams and their chunks.
type StreamStore interface {
	CreateStream(ctx context.Context, s *Stream) error
	GetStream(ctx context.Context, assignmentToken, streamID string) (*Stream, error)
	AppendChunk(ctx context.Context, assignmentToken, streamID string, seq int64, data []byte) error
	GetChunk(ctx context.Context, assignmentToken, streamID string, seq int64) ([]byte, error)
}
