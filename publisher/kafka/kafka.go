// Package kafka publishes outbound events to Kafka topics.
package kafka

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/xfyecn/sitewhere-master-sub001/errors"
	"github.com/xfyecn/sitewhere-master-sub001/publisher"
)

// Config configures the producer.
type Config struct {
	Brokers      []string      `json:"brokers" yaml:"brokers"`
	BatchTimeout time.Duration `json:"batch_timeout" yaml:"batch_timeout"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`
}

// Writer is the part of kafka.Writer the transport uses.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// DialFunc checks that a broker is reachable.
type DialFunc func(ctx context.Context, broker string) error

func dialBroker(ctx context.Context, broker string) error {
	conn, err := kafka.DialContext(ctx, "tcp", broker)
	if err != nil {
		return err
	}
	return conn.Close()
}

// Transport writes each message to the topic named by its route, keyed by
// hardware id so a device's events stay on one partition.
type Transport struct {
	cfg       Config
	dial      DialFunc
	newWriter func(Config) Writer

	mu     sync.Mutex
	writer Writer
}

var _ publisher.Transport = (*Transport)(nil)

// Option configures a Transport.
type Option func(*Transport)

// WithWriter replaces the kafka.Writer built on connect.
func WithWriter(w Writer) Option {
	return func(t *Transport) {
		t.newWriter = func(Config) Writer { return w }
	}
}

// WithDialer replaces the broker reachability check.
func WithDialer(d DialFunc) Option {
	return func(t *Transport) { t.dial = d }
}

// New creates a Kafka transport.
func New(cfg Config, opts ...Option) *Transport {
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 10 * time.Millisecond
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	t := &Transport{cfg: cfg, dial: dialBroker, newWriter: newWriter}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func newWriter(cfg Config) Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           cfg.BatchTimeout,
		WriteTimeout:           cfg.WriteTimeout,
		AllowAutoTopicCreation: true,
	}
}

// Connect requires one reachable broker before the writer is created, since
// kafka.Writer itself connects lazily.
func (t *Transport) Connect(ctx context.Context) error {
	if len(t.cfg.Brokers) == 0 {
		return errors.WrapInvalid(errors.ErrMissingConfig, "kafka-publisher", "Connect", "brokers")
	}

	var lastErr error
	reachable := false
	for _, b := range t.cfg.Brokers {
		if err := t.dial(ctx, b); err != nil {
			lastErr = err
			continue
		}
		reachable = true
		break
	}
	if !reachable {
		return errors.WrapTransient(lastErr, "kafka-publisher", "Connect", fmt.Sprintf("dial %v", t.cfg.Brokers))
	}

	t.mu.Lock()
	t.writer = t.newWriter(t.cfg)
	t.mu.Unlock()
	return nil
}

func (t *Transport) Publish(ctx context.Context, msg publisher.Message) error {
	t.mu.Lock()
	w := t.writer
	t.mu.Unlock()
	if w == nil {
		return errors.ErrNotStarted
	}
	return w.WriteMessages(ctx, kafka.Message{
		Topic: msg.Route,
		Key:   []byte(msg.Key),
		Value: msg.Payload,
	})
}

func (t *Transport) Close(context.Context) error {
	t.mu.Lock()
	w := t.writer
	t.writer = nil
	t.mu.Unlock()
	if w == nil {
		return nil
	}
	return w.Close()
}
