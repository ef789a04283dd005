package engine

import (
	"fmt"
	"sort"
	"sync"

	"github.com/xfyecn/sitewhere-master-sub001/config"
	"github.com/xfyecn/sitewhere-master-sub001/decoder"
	"github.com/xfyecn/sitewhere-master-sub001/device"
	"github.com/xfyecn/sitewhere-master-sub001/errors"
	"github.com/xfyecn/sitewhere-master-sub001/processor/inbound"
	"github.com/xfyecn/sitewhere-master-sub001/processor/outbound"
	"github.com/xfyecn/sitewhere-master-sub001/receiver"
	"github.com/xfyecn/sitewhere-master-sub001/store"
)

// Identity is what an identity factory provides. Resolver defaults to
// Registry when nil.
type Identity struct {
	Registry device.Registry
	Resolver device.Resolver
}

// Factory signatures, one per configurable role. Every factory receives the
// tenant's build context and the params of its config entry.
type (
	IdentityFactory    func(bc *Context, params config.Params) (Identity, error)
	EventStoreFactory  func(bc *Context, params config.Params) (store.EventStore, error)
	StreamStoreFactory func(bc *Context, params config.Params) (store.StreamStore, error)
	ReceiverFactory    func(bc *Context, params config.Params) (receiver.Receiver[[]byte], error)
	DecoderFactory     func(bc *Context, params config.Params) (decoder.Decoder[[]byte], error)
	InboundFactory     func(bc *Context, params config.Params) (inbound.Processor, error)
	OutboundFactory    func(bc *Context, name string, params config.Params) (outbound.Processor, error)
)

type factorySet[F any] struct {
	kind string

	mu        sync.RWMutex
	factories map[string]F
}

func newFactorySet[F any](kind string) *factorySet[F] {
	return &factorySet[F]{kind: kind, factories: make(map[string]F)}
}

func (s *factorySet[F]) register(name string, f F, isNil bool) error {
	if name == "" {
		return fmt.Errorf("%s factory name cannot be empty", s.kind)
	}
	if isNil {
		return fmt.Errorf("%s factory %s cannot be nil", s.kind, name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.factories[name]; exists {
		return fmt.Errorf("%s factory %s already registered", s.kind, name)
	}
	s.factories[name] = f
	return nil
}

func (s *factorySet[F]) lookup(name string) (F, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.factories[name]
	if !ok {
		return f, errors.WrapInvalid(
			fmt.Errorf("%w: unknown %s type %q", errors.ErrInvalidConfig, s.kind, name),
			"Registry", "lookup", "factory lookup")
	}
	return f, nil
}

func (s *factorySet[F]) names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.factories))
	for name := range s.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Registry maps config type names to factories.
type Registry struct {
	identity  *factorySet[IdentityFactory]
	events    *factorySet[EventStoreFactory]
	streams   *factorySet[StreamStoreFactory]
	receivers *factorySet[ReceiverFactory]
	decoders  *factorySet[DecoderFactory]
	inbound   *factorySet[InboundFactory]
	outbound  *factorySet[OutboundFactory]
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		identity:  newFactorySet[IdentityFactory]("identity"),
		events:    newFactorySet[EventStoreFactory]("event store"),
		streams:   newFactorySet[StreamStoreFactory]("stream store"),
		receivers: newFactorySet[ReceiverFactory]("receiver"),
		decoders:  newFactorySet[DecoderFactory]("decoder"),
		inbound:   newFactorySet[InboundFactory]("inbound processor"),
		outbound:  newFactorySet[OutboundFactory]("outbound processor"),
	}
}

func (r *Registry) RegisterIdentity(name string, f IdentityFactory) error {
	return r.identity.register(name, f, f == nil)
}

func (r *Registry) RegisterEventStore(name string, f EventStoreFactory) error {
	return r.events.register(name, f, f == nil)
}

func (r *Registry) RegisterStreamStore(name string, f StreamStoreFactory) error {
	return r.streams.register(name, f, f == nil)
}

func (r *Registry) RegisterReceiver(name string, f ReceiverFactory) error {
	return r.receivers.register(name, f, f == nil)
}

func (r *Registry) RegisterDecoder(name string, f DecoderFactory) error {
	return r.decoders.register(name, f, f == nil)
}

func (r *Registry) RegisterInbound(name string, f InboundFactory) error {
	return r.inbound.register(name, f, f == nil)
}

func (r *Registry) RegisterOutbound(name string, f OutboundFactory) error {
	return r.outbound.register(name, f, f == nil)
}

// Types returns the registered type names per role, sorted.
func (r *Registry) Types() map[string][]string {
	return map[string][]string{
		"identity":     r.identity.names(),
		"event_store":  r.events.names(),
		"stream_store": r.streams.names(),
		"receivers":    r.receivers.names(),
		"decoders":     r.decoders.names(),
		"inbound":      r.inbound.names(),
		"outbound":     r.outbound.names(),
	}
}
