package decoder

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xfyecn/sitewhere-master-sub001/component"
)

// JSONFieldExtractor reads the hardware id from a top-level JSON field.
type JSONFieldExtractor struct {
	*component.Lifecycle
	field string
}

var _ MetadataExtractor[[]byte] = (*JSONFieldExtractor)(nil)

// NewJSONFieldExtractor creates an extractor for field, "hardwareId" when empty.
func NewJSONFieldExtractor(deps component.Dependencies, field string) *JSONFieldExtractor {
	if field == "" {
		field = "hardwareId"
	}
	e := &JSONFieldExtractor{field: field}
	e.Lifecycle = component.NewLifecycle(e, component.TypeMetadataExtractor, "json-field-extractor", deps.LifecycleOptions()...)
	return e
}

func (e *JSONFieldExtractor) ExtractMetadata(_ context.Context, payload []byte, _ map[string]any) (*MessageMetadata[[]byte], error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, err
	}
	raw, ok := fields[e.field]
	if !ok {
		return nil, fmt.Errorf("field %q not present", e.field)
	}
	var id string
	if err := json.Unmarshal(raw, &id); err != nil {
		return nil, fmt.Errorf("field %q is not a string: %w", e.field, err)
	}
	return &MessageMetadata[[]byte]{HardwareID: id, Payload: payload}, nil
}

// TopicExtractor reads the hardware id from one segment of the topic a payload
// arrived on, for example segment 2 of "devices/acme/dev-1/telemetry".
type TopicExtractor struct {
	*component.Lifecycle
	segment int
}

var _ MetadataExtractor[[]byte] = (*TopicExtractor)(nil)

// NewTopicExtractor creates an extractor reading the zero-based topic segment.
func NewTopicExtractor(deps component.Dependencies, segment int) *TopicExtractor {
	e := &TopicExtractor{segment: segment}
	e.Lifecycle = component.NewLifecycle(e, component.TypeMetadataExtractor, "topic-extractor", deps.LifecycleOptions()...)
	return e
}

func (e *TopicExtractor) ExtractMetadata(_ context.Context, payload []byte, metadata map[string]any) (*MessageMetadata[[]byte], error) {
	topic, _ := metadata[MetaTopic].(string)
	if topic == "" {
		return nil, fmt.Errorf("no topic in metadata")
	}
	parts := strings.Split(topic, "/")
	if e.segment < 0 || e.segment >= len(parts) || parts[e.segment] == "" {
		return nil, fmt.Errorf("topic %q has no segment %d", topic, e.segment)
	}
	return &MessageMetadata[[]byte]{HardwareID: parts[e.segment], Payload: payload}, nil
}
