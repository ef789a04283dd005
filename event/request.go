// Package event defines the device requests produced by decoders and the
// persisted events handed to outbound processors.
package event

import (
	"github.com/xfyecn/sitewhere-master-sub001/pkg/timestamp"
)

// Kind tags a device request or event with its variant.
type Kind string

const (
	KindRegistration    Kind = "registration"
	KindMeasurements    Kind = "measurements"
	KindLocation        Kind = "location"
	KindAlert           Kind = "alert"
	KindCommandResponse Kind = "commandResponse"
	KindStateChange     Kind = "stateChange"
	KindStreamCreate    Kind = "streamCreate"
	KindStreamData      Kind = "streamData"
	KindSendStreamData  Kind = "sendStreamData"
	KindMapping         Kind = "mapping"
)

// Kinds lists every request kind in dispatch order.
var Kinds = []Kind{
	KindRegistration, KindMeasurements, KindLocation, KindAlert, KindCommandResponse,
	KindStateChange, KindStreamCreate, KindStreamData, KindSendStreamData, KindMapping,
}

// Request is one decoded device request.
type Request interface {
	Kind() Kind
}

// Common holds fields shared by event-creating requests.
type Common struct {
	EventDate   timestamp.Time    `json:"eventDate,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	UpdateState bool              `json:"updateState,omitempty"`
}

// RegistrationRequest asks for a device to be registered, or re-registered.
type RegistrationRequest struct {
	SpecificationToken string            `json:"specificationToken"`
	SiteToken          string            `json:"siteToken,omitempty"`
	ParentHardwareID   string            `json:"parentHardwareId,omitempty"`
	Metadata           map[string]string `json:"metadata,omitempty"`
}

// MeasurementsRequest carries named numeric readings.
type MeasurementsRequest struct {
	Common
	Measurements map[string]float64 `json:"measurements"`
}

// LocationRequest carries a position fix.
type LocationRequest struct {
	Common
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Elevation float64 `json:"elevation,omitempty"`
}

// AlertLevel is the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "info"
	AlertWarning  AlertLevel = "warning"
	AlertError    AlertLevel = "error"
	AlertCritical AlertLevel = "critical"
)

// AlertRequest raises an alert on behalf of a device.
type AlertRequest struct {
	Common
	Source  string     `json:"source,omitempty"`
	Level   AlertLevel `json:"level"`
	Type    string     `json:"type"`
	Message string     `json:"message"`
}

// CommandResponseRequest answers a previously delivered command.
type CommandResponseRequest struct {
	Common
	OriginatingEventID string `json:"originatingEventId"`
	ResponseEventID    string `json:"responseEventId,omitempty"`
	Response           string `json:"response,omitempty"`
}

// StateChangeRequest reports a change in device state.
type StateChangeRequest struct {
	Common
	Category      string `json:"category"`
	Type          string `json:"type"`
	PreviousState string `json:"previousState,omitempty"`
	NewState      string `json:"newState"`
}

// StreamCreateRequest opens a binary data stream for a device.
type StreamCreateRequest struct {
	StreamID    string `json:"streamId"`
	ContentType string `json:"contentType"`
}

// StreamDataRequest appends one chunk to a device stream.
type StreamDataRequest struct {
	Common
	StreamID       string `json:"streamId"`
	SequenceNumber int64  `json:"sequenceNumber"`
	Data           []byte `json:"data"`
}

// SendStreamDataRequest asks for a stored chunk to be sent back to the device.
type SendStreamDataRequest struct {
	StreamID       string `json:"streamId"`
	SequenceNumber int64  `json:"sequenceNumber"`
}

// MappingRequest maps a device into a slot of a composite device.
type MappingRequest struct {
	CompositeDeviceHardwareID string `json:"compositeDeviceHardwareId"`
	MappingPath               string `json:"mappingPath"`
}

func (*RegistrationRequest) Kind() Kind    { return KindRegistration }
func (*MeasurementsRequest) Kind() Kind    { return KindMeasurements }
func (*LocationRequest) Kind() Kind        { return KindLocation }
func (*AlertRequest) Kind() Kind           { return KindAlert }
func (*CommandResponseRequest) Kind() Kind { return KindCommandResponse }
func (*StateChangeRequest) Kind() Kind     { return KindStateChange }
func (*StreamCreateRequest) Kind() Kind    { return KindStreamCreate }
func (*StreamDataRequest) Kind() Kind      { return KindStreamData }
func (*SendStreamDataRequest) Kind() Kind  { return KindSendStreamData }
func (*MappingRequest) Kind() Kind         { return KindMapping }

// DecodedRequest is a request attributed to the device that sent it. Treat it
// as immutable once a decoder has produced it.
type DecodedRequest struct {
	HardwareID string
	Originator string
	Request    Request
}

// Kind returns the kind of the wrapped request.
func (d *DecodedRequest) Kind() Kind {
	if d == nil || d.Request == nil {
		return ""
	}
	return d.Request.Kind()
}
