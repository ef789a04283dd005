// Package mqtt publishes outbound events to an MQTT broker.
package mqtt

import (
	"context"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/xfyecn/sitewhere-master-sub001/errors"
	"github.com/xfyecn/sitewhere-master-sub001/pkg/tlsutil"
	"github.com/xfyecn/sitewhere-master-sub001/publisher"
)

// Config configures the broker connection.
type Config struct {
	Broker         string        `json:"broker" yaml:"broker"`
	ClientID       string        `json:"client_id" yaml:"client_id"`
	Username       string        `json:"username" yaml:"username"`
	Password       string        `json:"password" yaml:"password"`
	QoS            byte          `json:"qos" yaml:"qos"`
	Retained       bool          `json:"retained" yaml:"retained"`
	ConnectTimeout time.Duration `json:"connect_timeout" yaml:"connect_timeout"`
	PublishTimeout time.Duration `json:"publish_timeout" yaml:"publish_timeout"`

	TLS tlsutil.ClientConfig `json:"tls" yaml:"tls"`
}

// ClientFactory creates paho clients. mqtt.NewClient is the default.
type ClientFactory func(opts *paho.ClientOptions) paho.Client

// Transport publishes each message to the topic named by its route.
type Transport struct {
	cfg       Config
	newClient ClientFactory

	mu     sync.Mutex
	client paho.Client
}

var _ publisher.Transport = (*Transport)(nil)

// Option configures a Transport.
type Option func(*Transport)

// WithClientFactory replaces the paho client constructor.
func WithClientFactory(f ClientFactory) Option {
	return func(t *Transport) { t.newClient = f }
}

// New creates an MQTT transport.
func New(cfg Config, opts ...Option) *Transport {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 5 * time.Second
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "pipeline-pub-" + uuid.NewString()[:8]
	}
	t := &Transport{cfg: cfg, newClient: paho.NewClient}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Transport) Connect(context.Context) error {
	if t.cfg.Broker == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "mqtt-publisher", "Connect", "broker")
	}
	tlsConfig, err := tlsutil.LoadClientConfig(t.cfg.TLS)
	if err != nil {
		return err
	}

	opts := paho.NewClientOptions().
		AddBroker(t.cfg.Broker).
		SetClientID(t.cfg.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectTimeout(t.cfg.ConnectTimeout)
	if t.cfg.Username != "" {
		opts.SetUsername(t.cfg.Username)
	}
	if t.cfg.Password != "" {
		opts.SetPassword(t.cfg.Password)
	}
	if tlsConfig != nil {
		opts.SetTLSConfig(tlsConfig)
	}

	client := t.newClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(t.cfg.ConnectTimeout) {
		return errors.WrapTransient(errors.ErrConnectionTimeout, "mqtt-publisher", "Connect", fmt.Sprintf("connect to %s", t.cfg.Broker))
	}
	if err := token.Error(); err != nil {
		return errors.WrapTransient(err, "mqtt-publisher", "Connect", fmt.Sprintf("connect to %s", t.cfg.Broker))
	}

	t.mu.Lock()
	t.client = client
	t.mu.Unlock()
	return nil
}

func (t *Transport) Publish(ctx context.Context, msg publisher.Message) error {
	t.mu.Lock()
	client := t.client
	t.mu.Unlock()
	if client == nil {
		return errors.ErrNotStarted
	}

	token := client.Publish(msg.Route, t.cfg.QoS, t.cfg.Retained, msg.Payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(t.cfg.PublishTimeout):
		return errors.ErrConnectionTimeout
	}
	return token.Error()
}

func (t *Transport) Close(context.Context) error {
	t.mu.Lock()
	client := t.client
	t.client = nil
	t.mu.Unlock()
	if client != nil {
		client.Disconnect(250)
	}
	return nil
}
