package processor

import (
	"context"
	"fmt"
	"runtime/debug"
	"slices"

	"github.com/xfyecn/sitewhere-master-sub001/component"
)

// Entry is a processor together with whether it must start for the chain to start.
type Entry[P component.Component] struct {
	Processor P
	Required  bool
}

// Chain supervises processors of type P.
type Chain[P component.Component] struct {
	*component.Lifecycle
	component.TenantScope

	label   string
	entries []Entry[P]
}

// NewChain creates a chain. label names the chain in logs and metrics
// ("inbound", "outbound").
func NewChain[P component.Component](deps component.Dependencies, typ component.Type, label string, entries []Entry[P]) *Chain[P] {
	c := &Chain[P]{
		label:   label,
		entries: slices.Clone(entries),
	}
	c.Lifecycle = component.NewLifecycle(c, typ, label+"-processor-chain", deps.LifecycleOptions()...)
	return c
}

// Processors returns the processors in registration order.
func (c *Chain[P]) Processors() []P {
	out := make([]P, len(c.entries))
	for i, e := range c.entries {
		out[i] = e.Processor
	}
	return out
}

// Start starts every processor in order. A required processor that fails
// stops the chain from starting.
func (c *Chain[P]) Start(ctx context.Context, monitor component.Monitor) error {
	for _, e := range c.entries {
		msg := fmt.Sprintf("Starting %s processor %q", c.label, e.Processor.Name())
		if err := c.StartNested(ctx, e.Processor, monitor, msg, e.Required); err != nil {
			return err
		}
	}
	return nil
}

// Stop stops every processor in order.
func (c *Chain[P]) Stop(ctx context.Context, monitor component.Monitor) error {
	for _, e := range c.entries {
		c.StopNested(ctx, e.Processor, monitor)
	}
	return nil
}

// Each offers one event to every processor. fn failures and panics are logged
// and counted per processor and never stop the iteration. It returns the
// number of processors that failed.
func (c *Chain[P]) Each(ctx context.Context, kind string, fn func(ctx context.Context, p P) error) int {
	failed := 0
	for _, e := range c.entries {
		if err := c.invoke(ctx, e.Processor, fn); err != nil {
			failed++
			c.Metrics().RecordProcessorFailure(c.label, e.Processor.Name(), kind)
			c.Logger().Error("Processor failed",
				"processor", e.Processor.Name(),
				"kind", kind,
				"error", err)
		}
	}
	return failed
}

func (c *Chain[P]) invoke(ctx context.Context, p P, fn func(ctx context.Context, p P) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			c.Logger().Debug("Processor panic stack", "processor", p.Name(), "stack", string(debug.Stack()))
		}
	}()
	return fn(ctx, p)
}
