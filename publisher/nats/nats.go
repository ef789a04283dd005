// Package nats publishes outbound events to NATS subjects, optionally backed
// by a JetStream stream.
package nats

import (
	"context"
	"sync"

	"github.com/xfyecn/sitewhere-master-sub001/errors"
	"github.com/xfyecn/sitewhere-master-sub001/natsclient"
	"github.com/xfyecn/sitewhere-master-sub001/publisher"
)

// Config configures the NATS transport. URL is only used when no shared
// client is given.
type Config struct {
	URL      string   `json:"url" yaml:"url"`
	Stream   string   `json:"stream" yaml:"stream"`
	Subjects []string `json:"subjects" yaml:"subjects"`
}

// Transport publishes each message on the subject named by its route. With a
// stream configured every publish waits for the JetStream ack.
type Transport struct {
	cfg Config

	mu     sync.Mutex
	client *natsclient.Client
	owned  bool
}

var _ publisher.Transport = (*Transport)(nil)

// New creates a NATS transport. A nil client makes the transport dial cfg.URL
// itself and close the connection on stop.
func New(client *natsclient.Client, cfg Config) *Transport {
	return &Transport{cfg: cfg, client: client}
}

func (t *Transport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.client == nil {
		if t.cfg.URL == "" {
			return errors.WrapInvalid(errors.ErrMissingConfig, "nats-publisher", "Connect", "url")
		}
		c, err := natsclient.NewClient(t.cfg.URL, natsclient.WithClientName("pipeline-publisher"))
		if err != nil {
			return err
		}
		t.client, t.owned = c, true
	}
	if err := t.client.Connect(ctx); err != nil {
		return err
	}
	if t.cfg.Stream != "" {
		subjects := t.cfg.Subjects
		if len(subjects) == 0 {
			return errors.WrapInvalid(errors.ErrMissingConfig, "nats-publisher", "Connect", "stream subjects")
		}
		if _, err := t.client.EnsureStream(ctx, t.cfg.Stream, subjects...); err != nil {
			return err
		}
	}
	return nil
}

func (t *Transport) Publish(ctx context.Context, msg publisher.Message) error {
	t.mu.Lock()
	client := t.client
	t.mu.Unlock()
	if client == nil {
		return natsclient.ErrNotConnected
	}
	if t.cfg.Stream != "" {
		return client.PublishToStream(ctx, msg.Route, msg.Payload)
	}
	return client.Publish(ctx, msg.Route, msg.Payload)
}

func (t *Transport) Close(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.owned || t.client == nil {
		return nil
	}
	err := t.client.Close(ctx)
	t.client, t.owned = nil, false
	return err
}
