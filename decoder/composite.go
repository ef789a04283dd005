package decoder

import (
	"context"
	"fmt"

	"github.com/xfyecn/sitewhere-master-sub001/component"
	"github.com/xfyecn/sitewhere-master-sub001/device"
	"github.com/xfyecn/sitewhere-master-sub001/errors"
	"github.com/xfyecn/sitewhere-master-sub001/event"
)

// Composite picks a delegate decoder per payload based on the device that sent
// it. The metadata extractor identifies the device, the resolver loads it, and
// the first choice whose predicate matches decodes the payload.
type Composite[T any] struct {
	*component.Lifecycle
	component.TenantScope

	resolver  device.Resolver
	extractor MetadataExtractor[T]
	choices   []Choice[T]
}

var _ Decoder[[]byte] = (*Composite[[]byte])(nil)

// NewComposite creates a composite decoder. Choices are evaluated in the order given.
func NewComposite[T any](deps component.Dependencies, resolver device.Resolver,
	extractor MetadataExtractor[T], choices ...Choice[T]) *Composite[T] {
	c := &Composite[T]{
		resolver:  resolver,
		extractor: extractor,
		choices:   choices,
	}
	c.Lifecycle = component.NewLifecycle(c, component.TypeDecoder, "composite-decoder", deps.LifecycleOptions()...)
	return c
}

// Start validates the configuration and starts the extractor and every choice decoder.
func (c *Composite[T]) Start(ctx context.Context, monitor component.Monitor) error {
	if c.extractor == nil {
		return errors.WrapInvalid(errors.ErrMissingConfig, "composite-decoder", "Start", "metadata extractor lookup")
	}
	if len(c.choices) == 0 {
		return errors.WrapInvalid(errors.ErrMissingConfig, "composite-decoder", "Start", "decoder choice lookup")
	}
	if c.resolver == nil {
		return errors.WrapInvalid(errors.ErrMissingConfig, "composite-decoder", "Start", "device resolver lookup")
	}
	for i, choice := range c.choices {
		if choice.Matches == nil || choice.Decoder == nil {
			return errors.WrapInvalid(fmt.Errorf("%w: choice %d is incomplete", errors.ErrMissingConfig, i),
				"composite-decoder", "Start", "decoder choice validation")
		}
	}

	if err := c.StartNested(ctx, c.extractor, monitor, "Starting metadata extractor", true); err != nil {
		return err
	}
	for _, choice := range c.choices {
		msg := fmt.Sprintf("Starting %s decoder choice", choice.Name)
		if err := c.StartNested(ctx, choice.Decoder, monitor, msg, true); err != nil {
			return err
		}
	}
	return nil
}

// Stop stops the extractor and every choice decoder.
func (c *Composite[T]) Stop(ctx context.Context, monitor component.Monitor) error {
	for _, child := range c.Children() {
		c.StopNested(ctx, child, monitor)
	}
	return nil
}

// Decode identifies the device, merges it into the metadata and delegates to
// the first matching choice. A payload no choice accepts yields no requests.
func (c *Composite[T]) Decode(ctx context.Context, payload T, metadata map[string]any) ([]*event.DecodedRequest, error) {
	md, err := c.extract(ctx, payload, metadata)
	if err != nil {
		return nil, errors.WrapDecode(err, "composite-decoder", "Decode", "metadata extraction")
	}

	dc, err := c.buildContext(ctx, md)
	if err != nil {
		return nil, errors.WrapDecode(err, "composite-decoder", "Decode",
			fmt.Sprintf("device context for %q", md.HardwareID))
	}

	merged := withDevice(metadata, dc.Device, dc.Specification)
	for _, choice := range c.choices {
		matched, err := matches(choice, dc)
		if err != nil {
			return nil, errors.WrapDecode(err, "composite-decoder", "Decode", fmt.Sprintf("%s choice", choice.Name))
		}
		if !matched {
			continue
		}
		requests, err := choice.Decoder.Decode(ctx, dc.Payload, merged)
		if err != nil {
			return nil, errors.WrapDecode(err, "composite-decoder", "Decode", fmt.Sprintf("%s choice", choice.Name))
		}
		return requests, nil
	}

	c.Logger().Debug("No decoder choice matched payload",
		"hardware_id", md.HardwareID,
		"specification", dc.Device.SpecificationToken)
	return nil, nil
}

func matches[T any](choice Choice[T], dc *DeviceContext[T]) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("choice predicate panicked: %v", r)
		}
	}()
	return choice.Matches(dc), nil
}

func (c *Composite[T]) extract(ctx context.Context, payload T, metadata map[string]any) (md *MessageMetadata[T], err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("metadata extractor panicked: %v", r)
		}
	}()
	md, err = c.extractor.ExtractMetadata(ctx, payload, metadata)
	if err == nil && (md == nil || md.HardwareID == "") {
		err = fmt.Errorf("no hardware id extracted")
	}
	return md, err
}

func (c *Composite[T]) buildContext(ctx context.Context, md *MessageMetadata[T]) (dc *DeviceContext[T], err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("device resolver panicked: %v", r)
		}
	}()

	d, err := c.resolver.GetDevice(ctx, md.HardwareID)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, device.ErrDeviceNotFound
	}
	spec, err := c.resolver.GetSpecification(ctx, d.SpecificationToken)
	if err != nil {
		return nil, err
	}
	return &DeviceContext[T]{Device: d, Specification: spec, Payload: md.Payload}, nil
}
