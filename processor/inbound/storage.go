package inbound

import (
	"context"
	"time"

	"github.com/xfyecn/sitewhere-master-sub001/component"
	"github.com/xfyecn/sitewhere-master-sub001/device"
	"github.com/xfyecn/sitewhere-master-sub001/errors"
	"github.com/xfyecn/sitewhere-master-sub001/event"
	"github.com/xfyecn/sitewhere-master-sub001/processor/outbound"
	"github.com/xfyecn/sitewhere-master-sub001/store"
)

// StorageProcessor persists event-creating requests and forwards each stored
// event to the outbound chain. Events that fail to persist are not forwarded.
type StorageProcessor struct {
	*component.Lifecycle
	component.TenantScope
	Base

	resolver device.Resolver
	events   store.EventStore
	outbound outbound.Dispatcher
	now      func() time.Time
}

var _ Processor = (*StorageProcessor)(nil)

// NewStorageProcessor creates a storage processor. out may be nil when
// nothing consumes persisted events.
func NewStorageProcessor(deps component.Dependencies, resolver device.Resolver, events store.EventStore, out outbound.Dispatcher) *StorageProcessor {
	p := &StorageProcessor{
		resolver: resolver,
		events:   events,
		outbound: out,
		now:      time.Now,
	}
	p.Lifecycle = component.NewLifecycle(p, component.TypeInboundProcessor, "event-storage-processor", deps.LifecycleOptions()...)
	return p
}

func (p *StorageProcessor) Start(context.Context, component.Monitor) error {
	if p.resolver == nil || p.events == nil {
		return errors.WrapInvalid(errors.ErrMissingConfig, "event-storage-processor", "Start", "store lookup")
	}
	return nil
}

func (p *StorageProcessor) OnMeasurementsCreateRequest(ctx context.Context, hardwareID, _ string, req *event.MeasurementsRequest) error {
	return p.persist(ctx, hardwareID, req)
}

func (p *StorageProcessor) OnLocationCreateRequest(ctx context.Context, hardwareID, _ string, req *event.LocationRequest) error {
	return p.persist(ctx, hardwareID, req)
}

func (p *StorageProcessor) OnAlertCreateRequest(ctx context.Context, hardwareID, _ string, req *event.AlertRequest) error {
	return p.persist(ctx, hardwareID, req)
}

func (p *StorageProcessor) OnCommandResponseCreateRequest(ctx context.Context, hardwareID, _ string, req *event.CommandResponseRequest) error {
	return p.persist(ctx, hardwareID, req)
}

func (p *StorageProcessor) OnStateChangeCreateRequest(ctx context.Context, hardwareID, _ string, req *event.StateChangeRequest) error {
	return p.persist(ctx, hardwareID, req)
}

func (p *StorageProcessor) persist(ctx context.Context, hardwareID string, req event.Request) error {
	d, err := p.resolver.GetDevice(ctx, hardwareID)
	if err != nil {
		return errors.Wrap(err, "event-storage-processor", "persist", "device lookup")
	}

	e, err := event.FromRequest(event.Source{
		TenantID:        component.TenantID(p),
		HardwareID:      hardwareID,
		AssignmentToken: d.AssignmentToken,
	}, req, p.now())
	if err != nil {
		return err
	}

	if err := p.events.StoreEvent(ctx, e); err != nil {
		return errors.WrapTransient(err, "event-storage-processor", "persist", "event store")
	}
	if p.outbound == nil {
		return nil
	}
	return p.outbound.Dispatch(ctx, e)
}
