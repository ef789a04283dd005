// Package outbound delivers persisted events to outbound processors such as
// publishers and connectors.
package outbound

import (
	"context"
	"fmt"

	"github.com/xfyecn/sitewhere-master-sub001/component"
	"github.com/xfyecn/sitewhere-master-sub001/errors"
	"github.com/xfyecn/sitewhere-master-sub001/event"
	"github.com/xfyecn/sitewhere-master-sub001/processor"
)

// Processor receives persisted events, one callback per event kind.
type Processor interface {
	component.Component
	OnMeasurements(ctx context.Context, e *event.Measurements) error
	OnLocation(ctx context.Context, e *event.Location) error
	OnAlert(ctx context.Context, e *event.Alert) error
	OnCommandResponse(ctx context.Context, e *event.CommandResponse) error
	OnStateChange(ctx context.Context, e *event.StateChange) error
}

// Base provides no-op callbacks. Embed it to handle only some kinds.
type Base struct{}

func (Base) OnMeasurements(context.Context, *event.Measurements) error       { return nil }
func (Base) OnLocation(context.Context, *event.Location) error               { return nil }
func (Base) OnAlert(context.Context, *event.Alert) error                     { return nil }
func (Base) OnCommandResponse(context.Context, *event.CommandResponse) error { return nil }
func (Base) OnStateChange(context.Context, *event.StateChange) error         { return nil }

// Dispatcher accepts persisted events. The outbound Chain implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, e event.Event) error
}

// Entry is a processor registered with a chain.
type Entry = processor.Entry[Processor]

// Required registers p as a processor that must start.
func Required(p Processor) Entry { return Entry{Processor: p, Required: true} }

// Optional registers p as a processor whose start failure is only logged.
func Optional(p Processor) Entry { return Entry{Processor: p} }

// Chain fans persisted events out to outbound processors.
type Chain struct {
	*processor.Chain[Processor]
}

var _ Dispatcher = (*Chain)(nil)

// NewChain creates an outbound chain. Zero processors is valid.
func NewChain(deps component.Dependencies, entries ...Entry) *Chain {
	return &Chain{
		Chain: processor.NewChain(deps, component.TypeOutboundProcessorChain, "outbound", entries),
	}
}

// Dispatch offers e to every processor. Processor failures are isolated and
// not returned; only an event of unknown type is an error.
func (c *Chain) Dispatch(ctx context.Context, e event.Event) error {
	var fn func(ctx context.Context, p Processor) error
	switch ev := e.(type) {
	case *event.Measurements:
		fn = func(ctx context.Context, p Processor) error { return p.OnMeasurements(ctx, ev) }
	case *event.Location:
		fn = func(ctx context.Context, p Processor) error { return p.OnLocation(ctx, ev) }
	case *event.Alert:
		fn = func(ctx context.Context, p Processor) error { return p.OnAlert(ctx, ev) }
	case *event.CommandResponse:
		fn = func(ctx context.Context, p Processor) error { return p.OnCommandResponse(ctx, ev) }
	case *event.StateChange:
		fn = func(ctx context.Context, p Processor) error { return p.OnStateChange(ctx, ev) }
	default:
		return errors.WrapInvalid(fmt.Errorf("unsupported event %T", e), "outbound-chain", "Dispatch", "event dispatch")
	}
	c.Each(ctx, string(e.Header().Kind), fn)
	return nil
}
