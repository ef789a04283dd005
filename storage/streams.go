package storage

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"path"
	"sync"
	"time"

	"github.com/xfyecn/sitewhere-master-sub001/errors"
	"github.com/xfyecn/sitewhere-master-sub001/store"
)

// DefaultStreamPrefix is the key prefix used when none is configured.
const DefaultStreamPrefix = "streams"

// Streams keeps device streams in a Store.
type Streams struct {
	blobs  Store
	prefix string
	now    func() time.Time

	// serializes create so two creates of one stream cannot both succeed
	createMu sync.Mutex
}

var _ store.StreamStore = (*Streams)(nil)

// NewStreams creates a stream store under prefix. An empty prefix uses
// DefaultStreamPrefix.
func NewStreams(blobs Store, prefix string) *Streams {
	if prefix == "" {
		prefix = DefaultStreamPrefix
	}
	return &Streams{blobs: blobs, prefix: prefix, now: time.Now}
}

func (s *Streams) streamKey(assignment, streamID string) string {
	return path.Join(s.prefix, assignment, streamID, "stream.json")
}

func (s *Streams) chunkKey(assignment, streamID string, seq int64) string {
	return path.Join(s.prefix, assignment, streamID, "chunks", fmt.Sprintf("%020d", seq))
}

func (s *Streams) CreateStream(ctx context.Context, st *store.Stream) error {
	if st == nil || st.AssignmentToken == "" || st.StreamID == "" {
		return errors.WrapInvalid(errors.ErrInvalidData, "streams", "CreateStream", "stream validation")
	}

	s.createMu.Lock()
	defer s.createMu.Unlock()

	key := s.streamKey(st.AssignmentToken, st.StreamID)
	_, err := s.blobs.Get(ctx, key)
	switch {
	case err == nil:
		return store.ErrStreamExists
	case !stderrors.Is(err, ErrKeyNotFound):
		return errors.WrapTransient(err, "streams", "CreateStream", "check existing stream")
	}

	created := *st
	if created.CreatedAt.IsZero() {
		created.CreatedAt = s.now().UTC()
	}
	data, err := json.Marshal(&created)
	if err != nil {
		return errors.WrapInvalid(err, "streams", "CreateStream", "encode stream")
	}
	if err := s.blobs.Put(ctx, key, data); err != nil {
		return errors.WrapTransient(err, "streams", "CreateStream", "put stream")
	}
	return nil
}

func (s *Streams) GetStream(ctx context.Context, assignmentToken, streamID string) (*store.Stream, error) {
	data, err := s.blobs.Get(ctx, s.streamKey(assignmentToken, streamID))
	if stderrors.Is(err, ErrKeyNotFound) {
		return nil, store.ErrStreamNotFound
	}
	if err != nil {
		return nil, errors.WrapTransient(err, "streams", "GetStream", "get stream")
	}
	var st store.Stream
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, errors.WrapInvalid(err, "streams", "GetStream", "decode stream")
	}
	return &st, nil
}

func (s *Streams) AppendChunk(ctx context.Context, assignmentToken, streamID string, seq int64, data []byte) error {
	if seq < 0 {
		return errors.WrapInvalid(fmt.Errorf("%w: negative sequence %d", errors.ErrInvalidData, seq),
			"streams", "AppendChunk", "sequence validation")
	}
	if _, err := s.GetStream(ctx, assignmentToken, streamID); err != nil {
		return err
	}
	if err := s.blobs.Put(ctx, s.chunkKey(assignmentToken, streamID, seq), data); err != nil {
		return errors.WrapTransient(err, "streams", "AppendChunk", "put chunk")
	}
	return nil
}

func (s *Streams) GetChunk(ctx context.Context, assignmentToken, streamID string, seq int64) ([]byte, error) {
	data, err := s.blobs.Get(ctx, s.chunkKey(assignmentToken, streamID, seq))
	if stderrors.Is(err, ErrKeyNotFound) {
		if _, serr := s.GetStream(ctx, assignmentToken, streamID); serr != nil {
			return nil, serr
		}
		return nil, store.ErrChunkNotFound
	}
	if err != nil {
		return nil, errors.WrapTransient(err, "streams", "GetChunk", "get chunk")
	}
	return data, nil
}

// Chunks returns the sequence numbers stored for a stream in ascending order.
func (s *Streams) Chunks(ctx context.Context, assignmentToken, streamID string) ([]int64, error) {
	prefix := path.Join(s.prefix, assignmentToken, streamID, "chunks") + "/"
	keys, err := s.blobs.List(ctx, prefix)
	if err != nil {
		return nil, errors.WrapTransient(err, "streams", "Chunks", "list chunks")
	}
	seqs := make([]int64, 0, len(keys))
	for _, k := range keys {
		var seq int64
		if _, err := fmt.Sscanf(path.Base(k), "%d", &seq); err != nil {
			continue
		}
		seqs = append(seqs, seq)
	}
	return seqs, nil
}
