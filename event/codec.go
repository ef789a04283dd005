package event

import (
	"encoding/json"
	"fmt"

	"github.com/xfyecn/sitewhere-master-sub001/errors"
)

// envelope is the JSON wire form of a DecodedRequest.
type envelope struct {
	HardwareID string          `json:"hardwareId"`
	Originator string          `json:"originator,omitempty"`
	Type       Kind            `json:"type"`
	Request    json.RawMessage `json:"request"`
}

// NewRequest returns an empty request of the given kind.
func NewRequest(kind Kind) (Request, error) {
	switch kind {
	case KindRegistration:
		return &RegistrationRequest{}, nil
	case KindMeasurements:
		return &MeasurementsRequest{}, nil
	case KindLocation:
		return &LocationRequest{}, nil
	case KindAlert:
		return &AlertRequest{}, nil
	case KindCommandResponse:
		return &CommandResponseRequest{}, nil
	case KindStateChange:
		return &StateChangeRequest{}, nil
	case KindStreamCreate:
		return &StreamCreateRequest{}, nil
	case KindStreamData:
		return &StreamDataRequest{}, nil
	case KindSendStreamData:
		return &SendStreamDataRequest{}, nil
	case KindMapping:
		return &MappingRequest{}, nil
	default:
		return nil, errors.WrapInvalid(fmt.Errorf("unknown request type %q", kind),
			"event", "NewRequest", "request type lookup")
	}
}

// MarshalJSON encodes the request in its envelope form.
func (d DecodedRequest) MarshalJSON() ([]byte, error) {
	if d.Request == nil {
		return nil, errors.WrapInvalid(fmt.Errorf("nil request"), "event", "MarshalJSON", "request validation")
	}
	body, err := json.Marshal(d.Request)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{
		HardwareID: d.HardwareID,
		Originator: d.Originator,
		Type:       d.Request.Kind(),
		Request:    body,
	})
}

// UnmarshalJSON decodes the envelope form. The hardware id and type are required.
func (d *DecodedRequest) UnmarshalJSON(data []byte) error {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return errors.WrapInvalid(err, "event", "UnmarshalJSON", "envelope decode")
	}
	if env.HardwareID == "" {
		return errors.WrapInvalid(fmt.Errorf("missing hardwareId"), "event", "UnmarshalJSON", "envelope validation")
	}

	req, err := NewRequest(env.Type)
	if err != nil {
		return err
	}
	if len(env.Request) > 0 && string(env.Request) != "null" {
		if err := json.Unmarshal(env.Request, req); err != nil {
			return errors.WrapInvalid(err, "event", "UnmarshalJSON", fmt.Sprintf("%s request decode", env.Type))
		}
	}

	d.HardwareID = env.HardwareID
	d.Originator = env.Originator
	d.Request = req
	return nil
}
