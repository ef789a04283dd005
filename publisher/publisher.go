package publisher

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"sync"

	"github.com/xfyecn/sitewhere-master-sub001/component"
	"github.com/xfyecn/sitewhere-master-sub001/errors"
	"github.com/xfyecn/sitewhere-master-sub001/event"
	"github.com/xfyecn/sitewhere-master-sub001/processor/inbound"
	"github.com/xfyecn/sitewhere-master-sub001/processor/outbound"
)

// Message is one payload bound for one route.
type Message struct {
	Route   string
	Key     string
	Payload []byte
}

// Transport moves messages to an external system. Connect is called once per
// start and Close once per stop.
type Transport interface {
	Connect(ctx context.Context) error
	Publish(ctx context.Context, msg Message) error
	Close(ctx context.Context) error
}

// Encoder turns an event into the published payload.
type Encoder func(e event.Event) ([]byte, error)

func encodeJSON(e event.Event) ([]byte, error) {
	return json.Marshal(e)
}

// Publisher is an outbound processor that publishes every persisted event.
// It also sends stream chunks back to devices.
type Publisher struct {
	*component.Lifecycle
	component.TenantScope

	transport   Transport
	topic       string
	multicaster Multicaster
	builder     RouteBuilder
	encode      Encoder
	streamRoute string

	mu        sync.RWMutex
	connected bool
}

var (
	_ outbound.Processor  = (*Publisher)(nil)
	_ inbound.ChunkSender = (*Publisher)(nil)
)

// Option configures a Publisher.
type Option func(*Publisher)

// WithTopic routes every event to topic.
func WithTopic(topic string) Option {
	return func(p *Publisher) { p.topic = topic }
}

// WithMulticaster routes every event to the routes m returns.
func WithMulticaster(m Multicaster) Option {
	return func(p *Publisher) { p.multicaster = m }
}

// WithRouteBuilder routes every event to the route b builds.
func WithRouteBuilder(b RouteBuilder) Option {
	return func(p *Publisher) { p.builder = b }
}

// WithStreamRoute sets the template used by SendStreamData. It accepts
// {hardwareId}, {streamId} and {seq}.
func WithStreamRoute(tmpl string) Option {
	return func(p *Publisher) { p.streamRoute = tmpl }
}

// New creates a publisher named name on top of transport.
func New(deps component.Dependencies, name string, transport Transport, opts ...Option) *Publisher {
	p := &Publisher{
		transport:   transport,
		encode:      encodeJSON,
		streamRoute: DefaultStreamRoute,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.Lifecycle = component.NewLifecycle(p, component.TypeOutboundProcessor, name, deps.LifecycleOptions()...)
	return p
}

func (p *Publisher) routers() int {
	n := 0
	if p.topic != "" {
		n++
	}
	if p.multicaster != nil {
		n++
	}
	if p.builder != nil {
		n++
	}
	return n
}

func (p *Publisher) Start(ctx context.Context, _ component.Monitor) error {
	if p.transport == nil {
		return errors.WrapInvalid(errors.ErrMissingConfig, p.Name(), "Start", "transport")
	}
	if n := p.routers(); n != 1 {
		return errors.WrapInvalid(
			fmt.Errorf("%w: exactly one of topic, multicaster or route builder is required, got %d", errors.ErrInvalidConfig, n),
			p.Name(), "Start", "routing validation")
	}
	if err := p.transport.Connect(ctx); err != nil {
		return errors.WrapFatal(err, p.Name(), "Start", "transport connect")
	}

	p.mu.Lock()
	p.connected = true
	p.mu.Unlock()
	return nil
}

func (p *Publisher) Stop(ctx context.Context, _ component.Monitor) error {
	p.mu.Lock()
	wasConnected := p.connected
	p.connected = false
	p.mu.Unlock()

	if !wasConnected {
		return nil
	}
	if err := p.transport.Close(ctx); err != nil {
		p.Logger().Warn("Transport close failed", "error", err)
	}
	return nil
}

func (p *Publisher) routes(e event.Event) ([]string, error) {
	switch {
	case p.topic != "":
		return []string{p.topic}, nil
	case p.multicaster != nil:
		return p.multicaster.Routes(e)
	default:
		r, err := p.builder.Build(e)
		if err != nil {
			return nil, err
		}
		return []string{r}, nil
	}
}

func (p *Publisher) send(ctx context.Context, msg Message) error {
	p.mu.RLock()
	connected := p.connected
	p.mu.RUnlock()
	if !connected {
		return errors.WrapTransient(errors.ErrNotStarted, p.Name(), "Publish", "transport check")
	}

	err := p.transport.Publish(ctx, msg)
	p.Metrics().RecordPublish(p.Name(), err)
	if err != nil {
		return errors.WrapTransient(err, p.Name(), "Publish", fmt.Sprintf("publish to %s", msg.Route))
	}
	return nil
}

// publish sends e to every route. A failed route does not stop the others.
func (p *Publisher) publish(ctx context.Context, e event.Event) error {
	routes, err := p.routes(e)
	if err != nil {
		return errors.WrapInvalid(err, p.Name(), "Publish", "route event")
	}
	payload, err := p.encode(e)
	if err != nil {
		return errors.WrapInvalid(err, p.Name(), "Publish", "encode event")
	}

	var errs []error
	for _, route := range routes {
		msg := Message{Route: route, Key: e.Header().HardwareID, Payload: payload}
		if err := p.send(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}

func (p *Publisher) OnMeasurements(ctx context.Context, e *event.Measurements) error {
	return p.publish(ctx, e)
}

func (p *Publisher) OnLocation(ctx context.Context, e *event.Location) error {
	return p.publish(ctx, e)
}

func (p *Publisher) OnAlert(ctx context.Context, e *event.Alert) error {
	return p.publish(ctx, e)
}

func (p *Publisher) OnCommandResponse(ctx context.Context, e *event.CommandResponse) error {
	return p.publish(ctx, e)
}

func (p *Publisher) OnStateChange(ctx context.Context, e *event.StateChange) error {
	return p.publish(ctx, e)
}

// SendStreamData publishes a stored chunk on the device's stream route.
func (p *Publisher) SendStreamData(ctx context.Context, hardwareID, streamID string, seq int64, data []byte) error {
	route, err := streamRoute(p.streamRoute, hardwareID, streamID, seq)
	if err != nil {
		return errors.WrapInvalid(err, p.Name(), "SendStreamData", "route chunk")
	}
	return p.send(ctx, Message{Route: route, Key: hardwareID, Payload: data})
}
