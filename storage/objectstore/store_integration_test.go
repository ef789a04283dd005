//go:build integration

package objectstore

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/xfyecn/sitewhere-master-sub001/component"
	"github.com/xfyecn/sitewhere-master-sub001/natsclient"
	"github.com/xfyecn/sitewhere-master-sub001/storage"
	"github.com/xfyecn/sitewhere-master-sub001/store"
)

// ObjectStoreSuite shares one NATS container across tests. Each test gets
// its own bucket.
type ObjectStoreSuite struct {
	suite.Suite
	tc      *natsclient.TestClient
	buckets int

	ctx    context.Context
	cancel context.CancelFunc
	store  *Store
}

func TestObjectStoreSuite(t *testing.T) {
	suite.Run(t, new(ObjectStoreSuite))
}

func (s *ObjectStoreSuite) SetupSuite() {
	s.tc = natsclient.NewTestClient(s.T())
}

func (s *ObjectStoreSuite) SetupTest() {
	s.ctx, s.cancel = context.WithTimeout(context.Background(), 30*time.Second)
	s.buckets++
	s.store = New(component.Dependencies{NATSClient: s.tc.Client}, Config{
		Bucket:    fmt.Sprintf("STREAMS_IT_%d", s.buckets),
		CacheSize: 16,
	})
	s.store.LifecycleStart(s.ctx, nil)
	s.Require().Equal(component.StatusStarted, s.store.Status(), "start failed: %v", s.store.LastError())
}

func (s *ObjectStoreSuite) TearDownTest() {
	s.store.LifecycleStop(s.ctx, nil)
	s.cancel()
}

func (s *ObjectStoreSuite) TestBlobOperations() {
	s.Require().NoError(s.store.Put(s.ctx, "streams/asg/fw/chunks/1", []byte("one")))
	s.Require().NoError(s.store.Put(s.ctx, "streams/asg/fw/chunks/2", []byte("two")))

	data, err := s.store.Get(s.ctx, "streams/asg/fw/chunks/2")
	s.Require().NoError(err)
	s.Equal([]byte("two"), data)

	keys, err := s.store.List(s.ctx, "streams/asg/")
	s.Require().NoError(err)
	s.Equal([]string{"streams/asg/fw/chunks/1", "streams/asg/fw/chunks/2"}, keys)

	s.Require().NoError(s.store.Delete(s.ctx, "streams/asg/fw/chunks/1"))
	_, err = s.store.Get(s.ctx, "streams/asg/fw/chunks/1")
	s.ErrorIs(err, storage.ErrKeyNotFound)
}

func (s *ObjectStoreSuite) TestOverwriteRefreshesCache() {
	s.Require().NoError(s.store.Put(s.ctx, "k", []byte("v1")))
	_, err := s.store.Get(s.ctx, "k")
	s.Require().NoError(err)

	s.Require().NoError(s.store.Put(s.ctx, "k", []byte("v2")))
	data, err := s.store.Get(s.ctx, "k")
	s.Require().NoError(err)
	s.Equal([]byte("v2"), data)
}

func (s *ObjectStoreSuite) TestStreamsOverBucket() {
	streams := storage.NewStreams(s.store, "")

	s.Require().NoError(streams.CreateStream(s.ctx, &store.Stream{
		AssignmentToken: "asg-1",
		StreamID:        "firmware",
		ContentType:     "application/octet-stream",
	}))
	s.ErrorIs(streams.CreateStream(s.ctx, &store.Stream{AssignmentToken: "asg-1", StreamID: "firmware"}),
		store.ErrStreamExists)

	s.Require().NoError(streams.AppendChunk(s.ctx, "asg-1", "firmware", 2, []byte("world")))
	s.Require().NoError(streams.AppendChunk(s.ctx, "asg-1", "firmware", 1, []byte("hello")))

	seqs, err := streams.Chunks(s.ctx, "asg-1", "firmware")
	s.Require().NoError(err)
	s.Equal([]int64{1, 2}, seqs)

	chunk, err := streams.GetChunk(s.ctx, "asg-1", "firmware", 2)
	s.Require().NoError(err)
	s.Equal([]byte("world"), chunk)

	_, err = streams.GetChunk(s.ctx, "asg-1", "firmware", 3)
	s.ErrorIs(err, store.ErrChunkNotFound)
	_, err = streams.GetStream(s.ctx, "asg-1", "missing")
	s.ErrorIs(err, store.ErrStreamNotFound)
}
