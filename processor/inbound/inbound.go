// Package inbound routes decoded device requests through the inbound processors.
package inbound

import (
	"context"
	"fmt"

	"github.com/xfyecn/sitewhere-master-sub001/component"
	"github.com/xfyecn/sitewhere-master-sub001/errors"
	"github.com/xfyecn/sitewhere-master-sub001/event"
	"github.com/xfyecn/sitewhere-master-sub001/processor"
)

// Processor receives decoded requests, one callback per request kind.
type Processor interface {
	component.Component
	OnRegistrationRequest(ctx context.Context, hardwareID, originator string, req *event.RegistrationRequest) error
	OnMeasurementsCreateRequest(ctx context.Context, hardwareID, originator string, req *event.MeasurementsRequest) error
	OnLocationCreateRequest(ctx context.Context, hardwareID, originator string, req *event.LocationRequest) error
	OnAlertCreateRequest(ctx context.Context, hardwareID, originator string, req *event.AlertRequest) error
	OnCommandResponseCreateRequest(ctx context.Context, hardwareID, originator string, req *event.CommandResponseRequest) error
	OnStateChangeCreateRequest(ctx context.Context, hardwareID, originator string, req *event.StateChangeRequest) error
	OnStreamCreateRequest(ctx context.Context, hardwareID, originator string, req *event.StreamCreateRequest) error
	OnStreamDataCreateRequest(ctx context.Context, hardwareID, originator string, req *event.StreamDataRequest) error
	OnSendStreamDataRequest(ctx context.Context, hardwareID, originator string, req *event.SendStreamDataRequest) error
	OnMappingCreateRequest(ctx context.Context, hardwareID, originator string, req *event.MappingRequest) error
}

// Base provides no-op callbacks. Embed it to handle only some kinds.
type Base struct{}

func (Base) OnRegistrationRequest(context.Context, string, string, *event.RegistrationRequest) error {
	return nil
}
func (Base) OnMeasurementsCreateRequest(context.Context, string, string, *event.MeasurementsRequest) error {
	return nil
}
func (Base) OnLocationCreateRequest(context.Context, string, string, *event.LocationRequest) error {
	return nil
}
func (Base) OnAlertCreateRequest(context.Context, string, string, *event.AlertRequest) error {
	return nil
}
func (Base) OnCommandResponseCreateRequest(context.Context, string, string, *event.CommandResponseRequest) error {
	return nil
}
func (Base) OnStateChangeCreateRequest(context.Context, string, string, *event.StateChangeRequest) error {
	return nil
}
func (Base) OnStreamCreateRequest(context.Context, string, string, *event.StreamCreateRequest) error {
	return nil
}
func (Base) OnStreamDataCreateRequest(context.Context, string, string, *event.StreamDataRequest) error {
	return nil
}
func (Base) OnSendStreamDataRequest(context.Context, string, string, *event.SendStreamDataRequest) error {
	return nil
}
func (Base) OnMappingCreateRequest(context.Context, string, string, *event.MappingRequest) error {
	return nil
}

// Dispatcher accepts decoded requests. The inbound Chain implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, req *event.DecodedRequest) error
}

// Entry is a processor registered with a chain.
type Entry = processor.Entry[Processor]

// Required registers p as a processor that must start.
func Required(p Processor) Entry { return Entry{Processor: p, Required: true} }

// Optional registers p as a processor whose start failure is only logged.
func Optional(p Processor) Entry { return Entry{Processor: p} }

// Chain fans decoded requests out to inbound processors.
type Chain struct {
	*processor.Chain[Processor]
}

var _ Dispatcher = (*Chain)(nil)

// NewChain creates an inbound chain. Zero processors is valid.
func NewChain(deps component.Dependencies, entries ...Entry) *Chain {
	return &Chain{
		Chain: processor.NewChain(deps, component.TypeInboundProcessorChain, "inbound", entries),
	}
}

// Dispatch offers req to every processor through the callback for its kind.
// Processor failures are isolated and not returned; a nil request or one of
// unknown kind is an error.
func (c *Chain) Dispatch(ctx context.Context, req *event.DecodedRequest) error {
	if req == nil || req.Request == nil {
		return errors.WrapInvalid(fmt.Errorf("nil request"), "inbound-chain", "Dispatch", "request check")
	}
	hw, orig := req.HardwareID, req.Originator

	var fn func(ctx context.Context, p Processor) error
	switch r := req.Request.(type) {
	case *event.RegistrationRequest:
		fn = func(ctx context.Context, p Processor) error { return p.OnRegistrationRequest(ctx, hw, orig, r) }
	case *event.MeasurementsRequest:
		fn = func(ctx context.Context, p Processor) error { return p.OnMeasurementsCreateRequest(ctx, hw, orig, r) }
	case *event.LocationRequest:
		fn = func(ctx context.Context, p Processor) error { return p.OnLocationCreateRequest(ctx, hw, orig, r) }
	case *event.AlertRequest:
		fn = func(ctx context.Context, p Processor) error { return p.OnAlertCreateRequest(ctx, hw, orig, r) }
	case *event.CommandResponseRequest:
		fn = func(ctx context.Context, p Processor) error { return p.OnCommandResponseCreateRequest(ctx, hw, orig, r) }
	case *event.StateChangeRequest:
		fn = func(ctx context.Context, p Processor) error { return p.OnStateChangeCreateRequest(ctx, hw, orig, r) }
	case *event.StreamCreateRequest:
		fn = func(ctx context.Context, p Processor) error { return p.OnStreamCreateRequest(ctx, hw, orig, r) }
	case *event.StreamDataRequest:
		fn = func(ctx context.Context, p Processor) error { return p.OnStreamDataCreateRequest(ctx, hw, orig, r) }
	case *event.SendStreamDataRequest:
		fn = func(ctx context.Context, p Processor) error { return p.OnSendStreamDataRequest(ctx, hw, orig, r) }
	case *event.MappingRequest:
		fn = func(ctx context.Context, p Processor) error { return p.OnMappingCreateRequest(ctx, hw, orig, r) }
	default:
		return errors.WrapInvalid(fmt.Errorf("unsupported request %T", req.Request),
			"inbound-chain", "Dispatch", "request dispatch")
	}
	c.Each(ctx, string(req.Kind()), fn)
	return nil
}
