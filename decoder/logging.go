package decoder

import (
	"context"
	"log/slog"

	"github.com/xfyecn/sitewhere-master-sub001/component"
	"github.com/xfyecn/sitewhere-master-sub001/event"
)

const maxLoggedPayload = 256

// LoggingDecoder logs every payload and produces no requests. It is useful
// while bringing up a new device type.
type LoggingDecoder struct {
	*component.Lifecycle
	level slog.Level
}

var _ Decoder[[]byte] = (*LoggingDecoder)(nil)

// NewLoggingDecoder creates a decoder that logs payloads at level.
func NewLoggingDecoder(deps component.Dependencies, level slog.Level) *LoggingDecoder {
	d := &LoggingDecoder{level: level}
	d.Lifecycle = component.NewLifecycle(d, component.TypeDecoder, "logging-decoder", deps.LifecycleOptions()...)
	return d
}

func (d *LoggingDecoder) Decode(ctx context.Context, payload []byte, metadata map[string]any) ([]*event.DecodedRequest, error) {
	shown := payload
	if len(shown) > maxLoggedPayload {
		shown = shown[:maxLoggedPayload]
	}
	d.Logger().Log(ctx, d.level, "Payload received",
		"bytes", len(payload),
		"payload", string(shown),
		"receiver", metadata[MetaReceiver])
	return nil, nil
}
