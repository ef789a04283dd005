package queue

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/xfyecn/sitewhere-master-sub001/decoder"
	"github.com/xfyecn/sitewhere-master-sub001/errors"
	"github.com/xfyecn/sitewhere-master-sub001/natsclient"
)

// JetStreamConfig selects the stream and durable consumer to drain.
type JetStreamConfig struct {
	Stream   string   `json:"stream" yaml:"stream"`
	Subjects []string `json:"subjects" yaml:"subjects"`
	Consumer string   `json:"consumer" yaml:"consumer"`
}

// JetStreamSource takes messages from a durable JetStream pull consumer.
// Messages are acknowledged after delivery.
type JetStreamSource struct {
	client *natsclient.Client
	cfg    JetStreamConfig

	mu   sync.Mutex
	iter jetstream.MessagesContext
}

var _ Source[[]byte] = (*JetStreamSource)(nil)

// NewJetStreamSource creates a source over an already connected client.
func NewJetStreamSource(client *natsclient.Client, cfg JetStreamConfig) *JetStreamSource {
	return &JetStreamSource{client: client, cfg: cfg}
}

func (s *JetStreamSource) Open(ctx context.Context) error {
	if s.client == nil || s.cfg.Stream == "" || s.cfg.Consumer == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "jetstream-source", "Open", "config validation")
	}
	stream, err := s.client.EnsureStream(ctx, s.cfg.Stream, s.cfg.Subjects...)
	if err != nil {
		return err
	}
	consumer, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Durable:   s.cfg.Consumer,
		AckPolicy: jetstream.AckExplicitPolicy,
	})
	if err != nil {
		return errors.WrapTransient(err, "jetstream-source", "Open", fmt.Sprintf("consumer %s", s.cfg.Consumer))
	}
	iter, err := consumer.Messages()
	if err != nil {
		return errors.WrapTransient(err, "jetstream-source", "Open", "message iterator")
	}

	s.mu.Lock()
	s.iter = iter
	s.mu.Unlock()
	return nil
}

// Take blocks on the message iterator. It is interrupted by Close, not by ctx.
func (s *JetStreamSource) Take(context.Context) (Item[[]byte], error) {
	s.mu.Lock()
	iter := s.iter
	s.mu.Unlock()
	if iter == nil {
		return Item[[]byte]{}, ErrClosed
	}

	msg, err := iter.Next()
	if err != nil {
		if stderrors.Is(err, jetstream.ErrMsgIteratorClosed) {
			return Item[[]byte]{}, ErrClosed
		}
		return Item[[]byte]{}, err
	}
	return Item[[]byte]{
		Payload:  msg.Data(),
		Metadata: map[string]any{decoder.MetaTopic: msg.Subject()},
		Ack:      func(context.Context) error { return msg.Ack() },
	}, nil
}

func (s *JetStreamSource) Close() error {
	s.mu.Lock()
	iter := s.iter
	s.iter = nil
	s.mu.Unlock()
	if iter != nil {
		iter.Stop()
	}
	return nil
}
