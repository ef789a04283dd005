// Package device defines device identity and the resolver used to attach a
// device and its specification to an inbound payload.
package device

import (
	"context"
	"fmt"
	"time"

	"github.com/xfyecn/sitewhere-master-sub001/errors"
)

var (
	// ErrDeviceNotFound is returned when no device has the requested hardware id.
	ErrDeviceNotFound = fmt.Errorf("device %w", errors.ErrNotFound)
	// ErrSpecificationNotFound is returned when no specification has the requested token.
	ErrSpecificationNotFound = fmt.Errorf("device specification %w", errors.ErrNotFound)
)

// Device is a registered device.
type Device struct {
	HardwareID         string            `json:"hardwareId"`
	SpecificationToken string            `json:"specificationToken"`
	SiteToken          string            `json:"siteToken,omitempty"`
	AssignmentToken    string            `json:"assignmentToken,omitempty"`
	ParentHardwareID   string            `json:"parentHardwareId,omitempty"`
	Metadata           map[string]string `json:"metadata,omitempty"`
	CreatedAt          time.Time         `json:"createdAt"`
}

// Specification describes a device model.
type Specification struct {
	Token           string            `json:"token"`
	Name            string            `json:"name"`
	ContainerPolicy string            `json:"containerPolicy,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// Resolver looks up device identity. Implementations return ErrDeviceNotFound
// or ErrSpecificationNotFound for unknown keys.
type Resolver interface {
	GetDevice(ctx context.Context, hardwareID string) (*Device, error)
	GetSpecification(ctx context.Context, token string) (*Specification, error)
}

// Registry is a Resolver that can also register devices.
type Registry interface {
	Resolver
	RegisterDevice(ctx context.Context, d *Device) error
}
