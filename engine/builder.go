package engine

import (
	"fmt"

	"github.com/xfyecn/sitewhere-master-sub001/component"
	"github.com/xfyecn/sitewhere-master-sub001/config"
	"github.com/xfyecn/sitewhere-master-sub001/decoder"
	"github.com/xfyecn/sitewhere-master-sub001/device"
	"github.com/xfyecn/sitewhere-master-sub001/errors"
	"github.com/xfyecn/sitewhere-master-sub001/processor/inbound"
	"github.com/xfyecn/sitewhere-master-sub001/processor/outbound"
	"github.com/xfyecn/sitewhere-master-sub001/receiver"
	"github.com/xfyecn/sitewhere-master-sub001/source"
	"github.com/xfyecn/sitewhere-master-sub001/store"
	"github.com/xfyecn/sitewhere-master-sub001/tenant"
)

// Context carries what has been built so far for one tenant. Factories read
// the collaborators they need from it.
type Context struct {
	Deps     component.Dependencies
	Config   *config.Config
	Tenant   component.Tenant
	Registry *Registry

	Devices  device.Registry
	Resolver device.Resolver
	Events   store.EventStore
	Streams  store.StreamStore
	Outbound outbound.Dispatcher
	Sender   inbound.ChunkSender

	managed []component.Component
	memory  *store.Memory
}

// Manage hands a lifecycle-managed data store to the tenant engine, which
// starts it before the processor chains.
func (bc *Context) Manage(c component.Component) {
	bc.managed = append(bc.managed, c)
}

// Memory returns the tenant's in-process event and stream store, shared by
// every memory-backed factory.
func (bc *Context) Memory() *store.Memory {
	if bc.memory == nil {
		bc.memory = store.NewMemory()
	}
	return bc.memory
}

// BuildDecoder builds a decoder from its config entry. Composite decoders use
// it for their choices.
func (bc *Context) BuildDecoder(cc config.ComponentConfig) (decoder.Decoder[[]byte], error) {
	f, err := bc.Registry.decoders.lookup(cc.Type)
	if err != nil {
		return nil, err
	}
	d, err := f(bc, cc.Params)
	if err != nil {
		return nil, fmt.Errorf("decoder %s: %w", cc.Type, err)
	}
	return d, nil
}

// buildReceiver builds a receiver from its config entry.
func (bc *Context) buildReceiver(cc config.ComponentConfig) (receiver.Receiver[[]byte], error) {
	f, err := bc.Registry.receivers.lookup(cc.Type)
	if err != nil {
		return nil, err
	}
	r, err := f(bc, cc.Params)
	if err != nil {
		return nil, fmt.Errorf("receiver %s: %w", cc.Type, err)
	}
	return r, nil
}

// Builder assembles tenant engines and the server from configuration.
type Builder struct {
	deps     component.Dependencies
	registry *Registry
	cfg      *config.Config
}

// NewBuilder creates a builder. A nil registry means DefaultRegistry.
func NewBuilder(deps component.Dependencies, registry *Registry, cfg *config.Config) *Builder {
	if registry == nil {
		registry = DefaultRegistry()
	}
	return &Builder{deps: deps, registry: registry, cfg: cfg}
}

// BuildServer builds every configured tenant into a new server.
func (b *Builder) BuildServer() (*Server, error) {
	if b.cfg == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Builder", "BuildServer", "config")
	}
	s := NewServer(b.deps, b.cfg.Server.Name)
	for _, tc := range b.cfg.Tenants {
		e, err := b.BuildTenant(tc)
		if err != nil {
			return nil, err
		}
		if err := s.AddTenant(e); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// BuildTenant builds one tenant engine. Nothing is started.
func (b *Builder) BuildTenant(tc config.TenantConfig) (*tenant.Engine, error) {
	if b.cfg == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Builder", "BuildTenant", "config")
	}
	bc := &Context{
		Deps:     b.deps,
		Config:   b.cfg,
		Tenant:   component.Tenant{ID: tc.ID, Token: tc.Token, Name: tc.Name},
		Registry: b.registry,
	}
	wrap := func(err error) error {
		return fmt.Errorf("tenant %s: %w", tc.ID, err)
	}

	if err := b.buildStores(bc, tc); err != nil {
		return nil, wrap(err)
	}

	out, err := b.buildOutbound(bc, tc.Outbound)
	if err != nil {
		return nil, wrap(err)
	}
	bc.Outbound = out

	in, err := b.buildInbound(bc, tc.Inbound)
	if err != nil {
		return nil, wrap(err)
	}

	sources := make([]component.Component, 0, len(tc.Sources))
	for _, sc := range tc.Sources {
		dec, err := bc.BuildDecoder(sc.Decoder)
		if err != nil {
			return nil, wrap(fmt.Errorf("source %s: %w", sc.ID, err))
		}
		receivers := make([]receiver.Receiver[[]byte], 0, len(sc.Receivers))
		for _, rc := range sc.Receivers {
			r, err := bc.buildReceiver(rc)
			if err != nil {
				return nil, wrap(fmt.Errorf("source %s: %w", sc.ID, err))
			}
			receivers = append(receivers, r)
		}
		sources = append(sources, source.New(b.deps, sc.ID, dec, in, receivers...))
	}

	return tenant.New(b.deps, bc.Tenant, tenant.Parts{
		Stores:   bc.managed,
		Outbound: out,
		Inbound:  in,
		Sources:  sources,
	}), nil
}

func orDefault(cc config.ComponentConfig, typ string) config.ComponentConfig {
	if cc.Type == "" {
		cc.Type = typ
	}
	return cc
}

func (b *Builder) buildStores(bc *Context, tc config.TenantConfig) error {
	idc := orDefault(tc.Identity, "memory")
	idf, err := b.registry.identity.lookup(idc.Type)
	if err != nil {
		return err
	}
	id, err := idf(bc, idc.Params)
	if err != nil {
		return fmt.Errorf("identity %s: %w", idc.Type, err)
	}
	if id.Registry == nil {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Builder", "buildStores", "device registry")
	}
	bc.Devices = id.Registry
	bc.Resolver = id.Resolver
	if bc.Resolver == nil {
		bc.Resolver = id.Registry
	}

	esc := orDefault(tc.EventStore, "memory")
	esf, err := b.registry.events.lookup(esc.Type)
	if err != nil {
		return err
	}
	if bc.Events, err = esf(bc, esc.Params); err != nil {
		return fmt.Errorf("event store %s: %w", esc.Type, err)
	}

	ssc := orDefault(tc.StreamStore, "memory")
	ssf, err := b.registry.streams.lookup(ssc.Type)
	if err != nil {
		return err
	}
	if bc.Streams, err = ssf(bc, ssc.Params); err != nil {
		return fmt.Errorf("stream store %s: %w", ssc.Type, err)
	}
	return nil
}

func (b *Builder) buildOutbound(bc *Context, entries []config.ComponentConfig) (*outbound.Chain, error) {
	chain := make([]outbound.Entry, 0, len(entries))
	for i, cc := range entries {
		f, err := b.registry.outbound.lookup(cc.Type)
		if err != nil {
			return nil, err
		}
		name := cc.Name
		if name == "" {
			name = fmt.Sprintf("%s-%d", cc.Type, i)
		}
		p, err := f(bc, name, cc.Params)
		if err != nil {
			return nil, fmt.Errorf("outbound %s: %w", name, err)
		}
		if sender, ok := p.(inbound.ChunkSender); ok && bc.Sender == nil {
			bc.Sender = sender
		}
		chain = append(chain, outbound.Entry{Processor: p, Required: cc.Required})
	}
	return outbound.NewChain(bc.Deps, chain...), nil
}

func (b *Builder) buildInbound(bc *Context, entries []config.ComponentConfig) (*inbound.Chain, error) {
	chain := make([]inbound.Entry, 0, len(entries))
	for _, cc := range entries {
		f, err := b.registry.inbound.lookup(cc.Type)
		if err != nil {
			return nil, err
		}
		p, err := f(bc, cc.Params)
		if err != nil {
			return nil, fmt.Errorf("inbound %s: %w", cc.Type, err)
		}
		chain = append(chain, inbound.Entry{Processor: p, Required: cc.Required})
	}
	return inbound.NewChain(bc.Deps, chain...), nil
}
