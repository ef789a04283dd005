package queue

import (
	"context"
	stderrors "errors"
	"io"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/xfyecn/sitewhere-master-sub001/decoder"
	"github.com/xfyecn/sitewhere-master-sub001/errors"
)

// KafkaConfig selects the topic and consumer group to drain.
type KafkaConfig struct {
	Brokers []string `json:"brokers" yaml:"brokers"`
	Topic   string   `json:"topic" yaml:"topic"`
	GroupID string   `json:"group_id" yaml:"group_id"`
}

// KafkaSource takes messages from a Kafka consumer group. Offsets are
// committed after delivery.
type KafkaSource struct {
	cfg KafkaConfig

	mu     sync.Mutex
	reader *kafka.Reader
}

var _ Source[[]byte] = (*KafkaSource)(nil)

// NewKafkaSource creates a Kafka source.
func NewKafkaSource(cfg KafkaConfig) *KafkaSource {
	return &KafkaSource{cfg: cfg}
}

func (s *KafkaSource) Open(context.Context) error {
	if len(s.cfg.Brokers) == 0 || s.cfg.Topic == "" || s.cfg.GroupID == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "kafka-source", "Open", "config validation")
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:         s.cfg.Brokers,
		GroupID:         s.cfg.GroupID,
		Topic:           s.cfg.Topic,
		StartOffset:     kafka.LastOffset,
		CommitInterval:  time.Second,
		MinBytes:        1,
		MaxBytes:        10e6,
		ReadLagInterval: -1,
	})

	s.mu.Lock()
	s.reader = reader
	s.mu.Unlock()
	return nil
}

func (s *KafkaSource) Take(ctx context.Context) (Item[[]byte], error) {
	s.mu.Lock()
	reader := s.reader
	s.mu.Unlock()
	if reader == nil {
		return Item[[]byte]{}, ErrClosed
	}

	msg, err := reader.FetchMessage(ctx)
	if err != nil {
		if stderrors.Is(err, io.EOF) {
			return Item[[]byte]{}, ErrClosed
		}
		return Item[[]byte]{}, err
	}

	md := map[string]any{decoder.MetaTopic: msg.Topic}
	if len(msg.Key) > 0 {
		md["key"] = string(msg.Key)
	}
	return Item[[]byte]{
		Payload:  msg.Value,
		Metadata: md,
		Ack:      func(ctx context.Context) error { return reader.CommitMessages(ctx, msg) },
	}, nil
}

func (s *KafkaSource) Close() error {
	s.mu.Lock()
	reader := s.reader
	s.reader = nil
	s.mu.Unlock()
	if reader == nil {
		return nil
	}
	return reader.Close()
}
