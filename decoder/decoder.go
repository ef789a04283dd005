// Package decoder turns raw payloads into decoded device requests.
package decoder

import (
	"context"
	"maps"

	"github.com/xfyecn/sitewhere-master-sub001/component"
	"github.com/xfyecn/sitewhere-master-sub001/device"
	"github.com/xfyecn/sitewhere-master-sub001/event"
)

// Metadata keys set by receivers and the composite decoder.
const (
	MetaDevice        = "device"
	MetaSpecification = "deviceSpecification"
	MetaTopic         = "topic"
	MetaRemoteAddr    = "remoteAddr"
	MetaReceiver      = "receiver"
)

// Decoder decodes payloads of type T. An empty result is valid; a payload
// that cannot be interpreted yields an error matching errors.ErrDecodeFailed.
type Decoder[T any] interface {
	component.Component
	Decode(ctx context.Context, payload T, metadata map[string]any) ([]*event.DecodedRequest, error)
}

// MessageMetadata is what a MetadataExtractor learns about a payload before it
// is fully decoded.
type MessageMetadata[T any] struct {
	HardwareID string
	Payload    T
}

// MetadataExtractor pulls the device identity out of a payload.
type MetadataExtractor[T any] interface {
	component.Component
	ExtractMetadata(ctx context.Context, payload T, metadata map[string]any) (*MessageMetadata[T], error)
}

// DeviceContext is a payload together with the device that sent it.
type DeviceContext[T any] struct {
	Device        *device.Device
	Specification *device.Specification
	Payload       T
}

// Choice pairs a predicate over the device context with the decoder used when
// it matches.
type Choice[T any] struct {
	Name    string
	Matches func(*DeviceContext[T]) bool
	Decoder Decoder[T]
}

// SpecificationChoice matches devices whose specification token is one of tokens.
func SpecificationChoice[T any](d Decoder[T], tokens ...string) Choice[T] {
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return Choice[T]{
		Name: "specification",
		Matches: func(dc *DeviceContext[T]) bool {
			if dc.Device == nil {
				return false
			}
			_, ok := set[dc.Device.SpecificationToken]
			return ok
		},
		Decoder: d,
	}
}

// DefaultChoice matches every device. Place it last.
func DefaultChoice[T any](d Decoder[T]) Choice[T] {
	return Choice[T]{
		Name:    "default",
		Matches: func(*DeviceContext[T]) bool { return true },
		Decoder: d,
	}
}

// DeviceFrom returns the device stored in metadata by the composite decoder.
func DeviceFrom(metadata map[string]any) (*device.Device, bool) {
	d, ok := metadata[MetaDevice].(*device.Device)
	return d, ok && d != nil
}

// SpecificationFrom returns the specification stored in metadata by the composite decoder.
func SpecificationFrom(metadata map[string]any) (*device.Specification, bool) {
	s, ok := metadata[MetaSpecification].(*device.Specification)
	return s, ok && s != nil
}

func withDevice(metadata map[string]any, d *device.Device, s *device.Specification) map[string]any {
	merged := make(map[string]any, len(metadata)+2)
	maps.Copy(merged, metadata)
	merged[MetaDevice] = d
	merged[MetaSpecification] = s
	return merged
}
