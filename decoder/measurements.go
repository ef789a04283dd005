package decoder

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/xfyecn/sitewhere-master-sub001/component"
	"github.com/xfyecn/sitewhere-master-sub001/errors"
	"github.com/xfyecn/sitewhere-master-sub001/event"
)

// MeasurementsDecoder decodes flat JSON objects of numeric readings, such as
// {"temp":21.5,"humidity":40}, into a single measurements request. The device is
// taken from metadata, so it is meant to be used as a composite decoder choice.
// Non-numeric fields are ignored.
type MeasurementsDecoder struct {
	*component.Lifecycle
}

var _ Decoder[[]byte] = (*MeasurementsDecoder)(nil)

// NewMeasurementsDecoder creates a flat measurements decoder.
func NewMeasurementsDecoder(deps component.Dependencies) *MeasurementsDecoder {
	d := &MeasurementsDecoder{}
	d.Lifecycle = component.NewLifecycle(d, component.TypeDecoder, "measurements-decoder", deps.LifecycleOptions()...)
	return d
}

func (d *MeasurementsDecoder) Decode(_ context.Context, payload []byte, metadata map[string]any) ([]*event.DecodedRequest, error) {
	dev, ok := DeviceFrom(metadata)
	if !ok {
		return nil, errors.WrapDecode(fmt.Errorf("no device in metadata"), "measurements-decoder", "Decode", "device lookup")
	}

	var fields map[string]any
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, errors.WrapDecode(err, "measurements-decoder", "Decode", "unmarshal")
	}

	values := make(map[string]float64, len(fields))
	for name, v := range fields {
		if f, ok := v.(float64); ok {
			values[name] = f
		}
	}
	if len(values) == 0 {
		return nil, nil
	}

	return []*event.DecodedRequest{{
		HardwareID: dev.HardwareID,
		Request:    &event.MeasurementsRequest{Measurements: values},
	}}, nil
}
