package inbound

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/xfyecn/sitewhere-master-sub001/component"
	"github.com/xfyecn/sitewhere-master-sub001/device"
	"github.com/xfyecn/sitewhere-master-sub001/errors"
	"github.com/xfyecn/sitewhere-master-sub001/event"
)

// RegistrationProcessor registers devices that announce themselves. Known
// devices are updated when their specification or site changes.
type RegistrationProcessor struct {
	*component.Lifecycle
	component.TenantScope
	Base

	registry    device.Registry
	defaultSpec string
}

var _ Processor = (*RegistrationProcessor)(nil)

// NewRegistrationProcessor creates a registration processor. defaultSpec is
// used for requests that name no specification; empty means such requests
// are rejected.
func NewRegistrationProcessor(deps component.Dependencies, registry device.Registry, defaultSpec string) *RegistrationProcessor {
	p := &RegistrationProcessor{registry: registry, defaultSpec: defaultSpec}
	p.Lifecycle = component.NewLifecycle(p, component.TypeInboundProcessor, "registration-processor", deps.LifecycleOptions()...)
	return p
}

func (p *RegistrationProcessor) Start(context.Context, component.Monitor) error {
	if p.registry == nil {
		return errors.WrapInvalid(errors.ErrMissingConfig, "registration-processor", "Start", "device registry lookup")
	}
	return nil
}

func (p *RegistrationProcessor) OnRegistrationRequest(ctx context.Context, hardwareID, _ string, req *event.RegistrationRequest) error {
	specToken := req.SpecificationToken
	if specToken == "" {
		specToken = p.defaultSpec
	}
	if specToken == "" {
		return errors.WrapInvalid(fmt.Errorf("no specification for %q", hardwareID),
			"registration-processor", "OnRegistrationRequest", "specification selection")
	}
	if _, err := p.registry.GetSpecification(ctx, specToken); err != nil {
		return errors.Wrap(err, "registration-processor", "OnRegistrationRequest", "specification lookup")
	}

	existing, err := p.registry.GetDevice(ctx, hardwareID)
	switch {
	case err == nil:
		if existing.SpecificationToken == specToken && existing.SiteToken == req.SiteToken {
			p.Logger().Debug("Device already registered", "hardware_id", hardwareID)
			return nil
		}
	case stderrors.Is(err, device.ErrDeviceNotFound):
		existing = nil
	default:
		return errors.Wrap(err, "registration-processor", "OnRegistrationRequest", "device lookup")
	}

	d := &device.Device{
		HardwareID:         hardwareID,
		SpecificationToken: specToken,
		SiteToken:          req.SiteToken,
		ParentHardwareID:   req.ParentHardwareID,
		Metadata:           req.Metadata,
	}
	if existing != nil {
		d.AssignmentToken = existing.AssignmentToken
		d.CreatedAt = existing.CreatedAt
	}
	if err := p.registry.RegisterDevice(ctx, d); err != nil {
		return errors.Wrap(err, "registration-processor", "OnRegistrationRequest", "device registration")
	}

	p.Logger().Info("Device registered",
		"hardware_id", hardwareID,
		"specification", specToken,
		"updated", existing != nil)
	return nil
}
