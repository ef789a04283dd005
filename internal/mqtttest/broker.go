// Package mqtttest provides an in-process stand-in for an MQTT broker and the
// paho clients connected to it.
package mqtttest

import (
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Broker routes messages between fake clients.
type Broker struct {
	mu          sync.Mutex
	subs        []subscription
	published   []Published
	connectErr  error
	publishErr  error
	connections int
	disconnects int

	stallConnect   bool
	stallSubscribe bool
}

// Published is a message seen by the broker.
type Published struct {
	Topic   string
	QoS     byte
	Payload []byte
}

type subscription struct {
	client   *Client
	filter   string
	callback mqtt.MessageHandler
}

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{}
}

// FailConnect makes subsequent connects fail with err.
func (b *Broker) FailConnect(err error) {
	b.mu.Lock()
	b.connectErr = err
	b.mu.Unlock()
}

// StallConnect makes subsequent connects never complete.
func (b *Broker) StallConnect() {
	b.mu.Lock()
	b.stallConnect = true
	b.mu.Unlock()
}

// StallSubscribe makes subsequent subscribes never complete. The
// subscription is still recorded.
func (b *Broker) StallSubscribe() {
	b.mu.Lock()
	b.stallSubscribe = true
	b.mu.Unlock()
}

// Disconnects returns the number of client disconnects.
func (b *Broker) Disconnects() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.disconnects
}

// FailPublish makes subsequent publishes fail with err.
func (b *Broker) FailPublish(err error) {
	b.mu.Lock()
	b.publishErr = err
	b.mu.Unlock()
}

// Published returns every message published so far.
func (b *Broker) Published() []Published {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Published(nil), b.published...)
}

// Connections returns the number of successful connects.
func (b *Broker) Connections() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connections
}

// Subscriptions returns the number of active subscriptions.
func (b *Broker) Subscriptions() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// NewClient matches the signature of mqtt.NewClient.
func (b *Broker) NewClient(opts *mqtt.ClientOptions) mqtt.Client {
	return &Client{broker: b, opts: opts}
}

// Send delivers a message to matching subscribers as if a device had published it.
func (b *Broker) Send(topic string, payload []byte) {
	b.route(topic, 0, payload)
}

func (b *Broker) route(topic string, qos byte, payload []byte) {
	b.mu.Lock()
	var targets []subscription
	for _, s := range b.subs {
		if Match(s.filter, topic) {
			targets = append(targets, s)
		}
	}
	b.mu.Unlock()

	for _, s := range targets {
		s.callback(s.client, &message{topic: topic, qos: qos, payload: payload})
	}
}

// Match reports whether topic matches an MQTT subscription filter.
func Match(filter, topic string) bool {
	f := strings.Split(filter, "/")
	t := strings.Split(topic, "/")
	for i, part := range f {
		if part == "#" {
			return true
		}
		if i >= len(t) {
			return false
		}
		if part != "+" && part != t[i] {
			return false
		}
	}
	return len(f) == len(t)
}

// Client is a fake paho client bound to a Broker.
type Client struct {
	broker *Broker
	opts   *mqtt.ClientOptions

	mu        sync.Mutex
	connected bool
}

var _ mqtt.Client = (*Client)(nil)

func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *Client) IsConnectionOpen() bool { return c.IsConnected() }

func (c *Client) Connect() mqtt.Token {
	c.broker.mu.Lock()
	err, stall := c.broker.connectErr, c.broker.stallConnect
	if err == nil && !stall {
		c.broker.connections++
	}
	c.broker.mu.Unlock()
	if stall {
		return &token{stalled: true}
	}
	if err != nil {
		return &token{err: err}
	}

	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()
	if c.opts != nil && c.opts.OnConnect != nil {
		c.opts.OnConnect(c)
	}
	return &token{}
}

func (c *Client) Disconnect(uint) {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()

	c.broker.mu.Lock()
	c.broker.disconnects++
	kept := c.broker.subs[:0]
	for _, s := range c.broker.subs {
		if s.client != c {
			kept = append(kept, s)
		}
	}
	c.broker.subs = kept
	c.broker.mu.Unlock()
}

func (c *Client) Publish(topic string, qos byte, _ bool, payload interface{}) mqtt.Token {
	var data []byte
	switch p := payload.(type) {
	case []byte:
		data = p
	case string:
		data = []byte(p)
	}

	c.broker.mu.Lock()
	err := c.broker.publishErr
	if err == nil {
		c.broker.published = append(c.broker.published, Published{Topic: topic, QoS: qos, Payload: data})
	}
	c.broker.mu.Unlock()
	if err != nil {
		return &token{err: err}
	}

	c.broker.route(topic, qos, data)
	return &token{}
}

func (c *Client) Subscribe(topic string, _ byte, callback mqtt.MessageHandler) mqtt.Token {
	c.broker.mu.Lock()
	c.broker.subs = append(c.broker.subs, subscription{client: c, filter: topic, callback: callback})
	c.broker.mu.Unlock()
	return &token{}
}

func (c *Client) SubscribeMultiple(filters map[string]byte, callback mqtt.MessageHandler) mqtt.Token {
	for topic, qos := range filters {
		c.Subscribe(topic, qos, callback)
	}
	c.broker.mu.Lock()
	defer c.broker.mu.Unlock()
	return &token{stalled: c.broker.stallSubscribe}
}

func (c *Client) Unsubscribe(topics ...string) mqtt.Token {
	c.broker.mu.Lock()
	kept := c.broker.subs[:0]
	for _, s := range c.broker.subs {
		drop := false
		if s.client == c {
			for _, t := range topics {
				if s.filter == t {
					drop = true
				}
			}
		}
		if !drop {
			kept = append(kept, s)
		}
	}
	c.broker.subs = kept
	c.broker.mu.Unlock()
	return &token{}
}

func (c *Client) AddRoute(string, mqtt.MessageHandler) {}

func (c *Client) OptionsReader() mqtt.ClientOptionsReader {
	return mqtt.NewOptionsReader(c.opts)
}

// token is complete unless stalled. A stalled token never completes.
type token struct {
	err     error
	stalled bool
}

func (t *token) Wait() bool                     { return !t.stalled }
func (t *token) WaitTimeout(time.Duration) bool { return !t.stalled }
func (t *token) Error() error                   { return t.err }

func (t *token) Done() <-chan struct{} {
	ch := make(chan struct{})
	if !t.stalled {
		close(ch)
	}
	return ch
}

// NewMessage returns a message as a subscriber would receive it.
func NewMessage(topic string, payload []byte) mqtt.Message {
	return &message{topic: topic, payload: payload}
}

type message struct {
	topic   string
	qos     byte
	payload []byte
}

func (m *message) Duplicate() bool   { return false }
func (m *message) Qos() byte         { return m.qos }
func (m *message) Retained() bool    { return false }
func (m *message) Topic() string     { return m.topic }
func (m *message) MessageID() uint16 { return 0 }
func (m *message) Payload() []byte   { return m.payload }
func (m *message) Ack()              {}
