package decoder

import (
	"context"
	"fmt"

	"github.com/xfyecn/sitewhere-master-sub001/component"
	"github.com/xfyecn/sitewhere-master-sub001/errors"
	"github.com/xfyecn/sitewhere-master-sub001/event"
)

// Passthrough forwards requests that were decoded before they were queued.
type Passthrough struct {
	*component.Lifecycle
}

var _ Decoder[*event.DecodedRequest] = (*Passthrough)(nil)

// NewPassthrough creates a passthrough decoder.
func NewPassthrough(deps component.Dependencies) *Passthrough {
	d := &Passthrough{}
	d.Lifecycle = component.NewLifecycle(d, component.TypeDecoder, "passthrough-decoder", deps.LifecycleOptions()...)
	return d
}

func (d *Passthrough) Decode(_ context.Context, payload *event.DecodedRequest, _ map[string]any) ([]*event.DecodedRequest, error) {
	if payload == nil || payload.Request == nil {
		return nil, errors.WrapDecode(fmt.Errorf("nil request"), "passthrough-decoder", "Decode", "payload check")
	}
	return []*event.DecodedRequest{payload}, nil
}
