package event

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/xfyecn/sitewhere-master-sub001/errors"
)

// Event is a persisted device event.
type Event interface {
	Header() *DeviceEvent
}

// DeviceEvent holds the fields shared by every persisted event.
type DeviceEvent struct {
	ID              string            `json:"id"`
	Kind            Kind              `json:"kind"`
	TenantID        string            `json:"tenantId,omitempty"`
	HardwareID      string            `json:"hardwareId"`
	AssignmentToken string            `json:"assignmentToken,omitempty"`
	EventDate       time.Time         `json:"eventDate"`
	ReceivedDate    time.Time         `json:"receivedDate"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// Header returns the shared fields.
func (e *DeviceEvent) Header() *DeviceEvent { return e }

// Measurements is a persisted measurements event.
type Measurements struct {
	DeviceEvent
	Values map[string]float64 `json:"measurements"`
}

// Location is a persisted location event.
type Location struct {
	DeviceEvent
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Elevation float64 `json:"elevation"`
}

// Alert is a persisted alert event.
type Alert struct {
	DeviceEvent
	Source  string     `json:"source,omitempty"`
	Level   AlertLevel `json:"level"`
	Type    string     `json:"type"`
	Message string     `json:"message"`
}

// CommandResponse is a persisted command response event.
type CommandResponse struct {
	DeviceEvent
	OriginatingEventID string `json:"originatingEventId"`
	ResponseEventID    string `json:"responseEventId,omitempty"`
	Response           string `json:"response,omitempty"`
}

// StateChange is a persisted state change event.
type StateChange struct {
	DeviceEvent
	Category      string `json:"category"`
	Type          string `json:"type"`
	PreviousState string `json:"previousState,omitempty"`
	NewState      string `json:"newState"`
}

// Source describes where an event came from and who it belongs to.
type Source struct {
	TenantID        string
	HardwareID      string
	AssignmentToken string
}

func header(src Source, kind Kind, c Common, received time.Time) DeviceEvent {
	eventDate := c.EventDate.Time
	if eventDate.IsZero() {
		eventDate = received
	}
	return DeviceEvent{
		ID:              uuid.NewString(),
		Kind:            kind,
		TenantID:        src.TenantID,
		HardwareID:      src.HardwareID,
		AssignmentToken: src.AssignmentToken,
		EventDate:       eventDate,
		ReceivedDate:    received,
		Metadata:        c.Metadata,
	}
}

// FromRequest builds the persisted event for an event-creating request. The
// event date defaults to received when the request carries none.
func FromRequest(src Source, req Request, received time.Time) (Event, error) {
	switch r := req.(type) {
	case *MeasurementsRequest:
		return &Measurements{DeviceEvent: header(src, KindMeasurements, r.Common, received), Values: r.Measurements}, nil
	case *LocationRequest:
		return &Location{
			DeviceEvent: header(src, KindLocation, r.Common, received),
			Latitude:    r.Latitude,
			Longitude:   r.Longitude,
			Elevation:   r.Elevation,
		}, nil
	case *AlertRequest:
		level := r.Level
		if level == "" {
			level = AlertInfo
		}
		return &Alert{
			DeviceEvent: header(src, KindAlert, r.Common, received),
			Source:      r.Source,
			Level:       level,
			Type:        r.Type,
			Message:     r.Message,
		}, nil
	case *CommandResponseRequest:
		return &CommandResponse{
			DeviceEvent:        header(src, KindCommandResponse, r.Common, received),
			OriginatingEventID: r.OriginatingEventID,
			ResponseEventID:    r.ResponseEventID,
			Response:           r.Response,
		}, nil
	case *StateChangeRequest:
		return &StateChange{
			DeviceEvent:   header(src, KindStateChange, r.Common, received),
			Category:      r.Category,
			Type:          r.Type,
			PreviousState: r.PreviousState,
			NewState:      r.NewState,
		}, nil
	default:
		return nil, errors.WrapInvalid(fmt.Errorf("request %T does not create an event", req),
			"event", "FromRequest", "event conversion")
	}
}
