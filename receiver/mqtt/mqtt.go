// Package mqtt provides a receiver that subscribes to MQTT topics and hands
// every message to the event source.
package mqtt

import (
	"context"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/xfyecn/sitewhere-master-sub001/component"
	"github.com/xfyecn/sitewhere-master-sub001/decoder"
	"github.com/xfyecn/sitewhere-master-sub001/errors"
	"github.com/xfyecn/sitewhere-master-sub001/pkg/tlsutil"
	"github.com/xfyecn/sitewhere-master-sub001/receiver"
)

// Config configures the broker connection and subscriptions.
type Config struct {
	Broker         string        `json:"broker" yaml:"broker"`
	ClientID       string        `json:"client_id" yaml:"client_id"`
	Username       string        `json:"username" yaml:"username"`
	Password       string        `json:"password" yaml:"password"`
	Topics         []string      `json:"topics" yaml:"topics"`
	QoS            byte          `json:"qos" yaml:"qos"`
	ConnectTimeout time.Duration `json:"connect_timeout" yaml:"connect_timeout"`

	TLS tlsutil.ClientConfig `json:"tls" yaml:"tls"`
}

// ClientFactory creates paho clients. mqtt.NewClient is the default.
type ClientFactory func(opts *paho.ClientOptions) paho.Client

// Receiver subscribes to the configured topics. Messages are delivered on the
// paho router goroutine, one at a time.
type Receiver struct {
	*component.Lifecycle
	component.TenantScope
	receiver.Delivery[[]byte]

	cfg       Config
	newClient ClientFactory

	mu     sync.Mutex
	client paho.Client
	ctx    context.Context
	cancel context.CancelFunc
}

var _ receiver.Receiver[[]byte] = (*Receiver)(nil)

// Option configures a Receiver.
type Option func(*Receiver)

// WithClientFactory replaces the paho client constructor.
func WithClientFactory(f ClientFactory) Option {
	return func(r *Receiver) {
		r.newClient = f
	}
}

// New creates an MQTT receiver.
func New(deps component.Dependencies, cfg Config, opts ...Option) *Receiver {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "pipeline-" + uuid.NewString()[:8]
	}
	r := &Receiver{cfg: cfg, newClient: paho.NewClient}
	for _, opt := range opts {
		opt(r)
	}
	r.Lifecycle = component.NewLifecycle(r, component.TypeInboundReceiver, "mqtt-receiver", deps.LifecycleOptions()...)
	return r
}

func (r *Receiver) Start(ctx context.Context, _ component.Monitor) error {
	if r.cfg.Broker == "" || len(r.cfg.Topics) == 0 {
		return errors.WrapInvalid(errors.ErrMissingConfig, "mqtt-receiver", "Start", "broker and topics")
	}
	if err := r.RequireSink("mqtt-receiver"); err != nil {
		return err
	}
	tlsConfig, err := tlsutil.LoadClientConfig(r.cfg.TLS)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	opts := paho.NewClientOptions().
		AddBroker(r.cfg.Broker).
		SetClientID(r.cfg.ClientID).
		SetOrderMatters(true).
		SetCleanSession(false).
		SetKeepAlive(30 * time.Second).
		SetPingTimeout(10 * time.Second).
		SetAutoReconnect(true).
		SetConnectTimeout(r.cfg.ConnectTimeout)
	if r.cfg.Username != "" {
		opts.SetUsername(r.cfg.Username)
	}
	if r.cfg.Password != "" {
		opts.SetPassword(r.cfg.Password)
	}
	if tlsConfig != nil {
		opts.SetTLSConfig(tlsConfig)
	}
	// subscribe on every (re)connect
	opts.OnConnect = func(c paho.Client) {
		filters := make(map[string]byte, len(r.cfg.Topics))
		for _, t := range r.cfg.Topics {
			filters[t] = r.cfg.QoS
		}
		token := c.SubscribeMultiple(filters, r.onMessage)
		if !token.WaitTimeout(r.cfg.ConnectTimeout) {
			r.Logger().Error("MQTT subscribe timed out", "topics", r.cfg.Topics, "timeout", r.cfg.ConnectTimeout)
			return
		}
		if err := token.Error(); err != nil {
			r.Logger().Error("MQTT subscribe failed", "topics", r.cfg.Topics, "error", err)
			return
		}
		r.Logger().Info("Subscribed to MQTT topics", "topics", r.cfg.Topics, "qos", r.cfg.QoS)
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		r.Logger().Warn("MQTT connection lost", "error", err)
	}

	client := r.newClient(opts)
	// messages can arrive as soon as the subscription is made in OnConnect
	r.mu.Lock()
	r.client, r.ctx, r.cancel = client, runCtx, cancel
	r.mu.Unlock()

	token := client.Connect()
	if !token.WaitTimeout(r.cfg.ConnectTimeout) {
		r.reset()
		client.Disconnect(250)
		return errors.WrapTransient(errors.ErrConnectionTimeout, "mqtt-receiver", "Start", fmt.Sprintf("connect to %s", r.cfg.Broker))
	}
	if err := token.Error(); err != nil {
		r.reset()
		return errors.WrapTransient(err, "mqtt-receiver", "Start", fmt.Sprintf("connect to %s", r.cfg.Broker))
	}
	return nil
}

// reset forgets the client and cancels the delivery context.
func (r *Receiver) reset() paho.Client {
	r.mu.Lock()
	client, cancel := r.client, r.cancel
	r.client, r.ctx, r.cancel = nil, nil, nil
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return client
}

func (r *Receiver) onMessage(_ paho.Client, msg paho.Message) {
	r.mu.Lock()
	ctx := r.ctx
	r.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		r.Logger().Warn("MQTT payload dropped, receiver not running", "topic", msg.Topic())
		return
	}

	metadata := map[string]any{
		decoder.MetaTopic:    msg.Topic(),
		decoder.MetaReceiver: r.Name(),
	}
	if err := r.Deliver(ctx, r.Name(), msg.Payload(), metadata); err != nil {
		r.Logger().Warn("MQTT payload rejected", "topic", msg.Topic(), "error", err)
	}
}

func (r *Receiver) Stop(context.Context, component.Monitor) error {
	client := r.reset()
	if client != nil {
		client.Unsubscribe(r.cfg.Topics...).WaitTimeout(time.Second)
		client.Disconnect(250)
	}
	return nil
}
