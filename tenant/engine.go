// Package tenant hosts the per-tenant engine: the hierarchy root that owns a
// tenant's data stores, processor chains and event sources.
package tenant

import (
	"context"
	"fmt"
	"slices"

	"github.com/xfyecn/sitewhere-master-sub001/component"
	"github.com/xfyecn/sitewhere-master-sub001/errors"
	"github.com/xfyecn/sitewhere-master-sub001/processor/inbound"
	"github.com/xfyecn/sitewhere-master-sub001/processor/outbound"
)

// Parts are the components a tenant engine supervises.
type Parts struct {
	// Stores are lifecycle-managed data stores, started before anything
	// that reads or writes them.
	Stores   []component.Component
	Outbound *outbound.Chain
	Inbound  *inbound.Chain
	// Sources are event sources. They start last so no payload is received
	// before the chains are ready.
	Sources []component.Component
}

// Engine runs one tenant. It is a hierarchy root: searches from the server
// find the engine but do not descend into it.
type Engine struct {
	*component.Lifecycle
	component.TenantScope

	tenant component.Tenant
	parts  Parts
}

// New creates a tenant engine. The tenant is propagated to every
// tenant-aware component as it starts.
func New(deps component.Dependencies, tenant component.Tenant, parts Parts) *Engine {
	e := &Engine{
		tenant: tenant,
		parts: Parts{
			Stores:   slices.Clone(parts.Stores),
			Outbound: parts.Outbound,
			Inbound:  parts.Inbound,
			Sources:  slices.Clone(parts.Sources),
		},
	}
	e.SetTenant(&e.tenant)
	e.Lifecycle = component.NewLifecycle(e, component.TypeTenantEngine, "tenant-"+tenant.ID,
		deps.LifecycleOptions(component.AsHierarchyRoot())...)
	return e
}

// TenantID returns the id of the tenant this engine runs.
func (e *Engine) TenantID() string { return e.tenant.ID }

// Outbound returns the outbound chain.
func (e *Engine) Outbound() *outbound.Chain { return e.parts.Outbound }

// Inbound returns the inbound chain.
func (e *Engine) Inbound() *inbound.Chain { return e.parts.Inbound }

// Sources returns the event sources in start order.
func (e *Engine) Sources() []component.Component { return slices.Clone(e.parts.Sources) }

// Start brings the tenant up in dependency order: data stores, outbound
// chain, inbound chain, event sources. Any failure aborts the start.
func (e *Engine) Start(ctx context.Context, monitor component.Monitor) error {
	if e.tenant.ID == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, e.Name(), "Start", "tenant id")
	}
	if e.parts.Outbound == nil || e.parts.Inbound == nil {
		return errors.WrapInvalid(errors.ErrMissingConfig, e.Name(), "Start", "processor chains")
	}

	for _, s := range e.parts.Stores {
		if err := e.StartNested(ctx, s, monitor, fmt.Sprintf("Starting data store %q", s.Name()), true); err != nil {
			return err
		}
	}
	if err := e.StartNested(ctx, e.parts.Outbound, monitor, "Starting outbound processor chain", true); err != nil {
		return err
	}
	if err := e.StartNested(ctx, e.parts.Inbound, monitor, "Starting inbound processor chain", true); err != nil {
		return err
	}
	for _, s := range e.parts.Sources {
		if err := e.StartNested(ctx, s, monitor, fmt.Sprintf("Starting event source %q", s.Name()), true); err != nil {
			return err
		}
	}
	e.Logger().Info("Tenant engine started",
		"tenant", e.tenant.ID,
		"sources", len(e.parts.Sources),
		"stores", len(e.parts.Stores))
	return nil
}

// Pause pauses the event sources so no new payloads are processed. Chains
// and stores stay up to finish what is in flight.
func (e *Engine) Pause(ctx context.Context, monitor component.Monitor) error {
	for i := len(e.parts.Sources) - 1; i >= 0; i-- {
		e.PauseNested(ctx, e.parts.Sources[i], monitor)
	}
	e.Logger().Info("Tenant engine paused", "tenant", e.tenant.ID)
	return nil
}

// Resume resumes the paused event sources.
func (e *Engine) Resume(ctx context.Context, monitor component.Monitor) error {
	for _, s := range e.parts.Sources {
		if err := e.ResumeNested(ctx, s, monitor, fmt.Sprintf("Resuming event source %q", s.Name()), true); err != nil {
			return err
		}
	}
	return nil
}

// Stop tears the tenant down in reverse start order.
func (e *Engine) Stop(ctx context.Context, monitor component.Monitor) error {
	for i := len(e.parts.Sources) - 1; i >= 0; i-- {
		e.StopNested(ctx, e.parts.Sources[i], monitor)
	}
	if e.parts.Inbound != nil {
		e.StopNested(ctx, e.parts.Inbound, monitor)
	}
	if e.parts.Outbound != nil {
		e.StopNested(ctx, e.parts.Outbound, monitor)
	}
	for i := len(e.parts.Stores) - 1; i >= 0; i-- {
		e.StopNested(ctx, e.parts.Stores[i], monitor)
	}
	return nil
}
