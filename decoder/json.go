package decoder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/xfyecn/sitewhere-master-sub001/component"
	"github.com/xfyecn/sitewhere-master-sub001/errors"
	"github.com/xfyecn/sitewhere-master-sub001/event"
)

// JSONDecoder decodes JSON request envelopes:
//
//	{"hardwareId":"dev-1","type":"measurements","request":{"measurements":{"temp":21.5}}}
//
// A payload may also be an array of envelopes. When a schema is configured the
// payload is validated against it before decoding.
type JSONDecoder struct {
	*component.Lifecycle

	schemaSource string
	schema       *gojsonschema.Schema
}

var _ Decoder[[]byte] = (*JSONDecoder)(nil)

// JSONOption configures a JSONDecoder.
type JSONOption func(*JSONDecoder)

// WithSchema validates payloads against a JSON schema document.
func WithSchema(schema string) JSONOption {
	return func(d *JSONDecoder) {
		d.schemaSource = schema
	}
}

// NewJSONDecoder creates a JSON envelope decoder.
func NewJSONDecoder(deps component.Dependencies, opts ...JSONOption) *JSONDecoder {
	d := &JSONDecoder{}
	for _, opt := range opts {
		opt(d)
	}
	d.Lifecycle = component.NewLifecycle(d, component.TypeDecoder, "json-decoder", deps.LifecycleOptions()...)
	return d
}

// Start compiles the schema, if any.
func (d *JSONDecoder) Start(context.Context, component.Monitor) error {
	if d.schemaSource == "" {
		return nil
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(d.schemaSource))
	if err != nil {
		return errors.WrapInvalid(err, "json-decoder", "Start", "schema compile")
	}
	d.schema = schema
	return nil
}

// Decode decodes one envelope or an array of envelopes.
func (d *JSONDecoder) Decode(_ context.Context, payload []byte, _ map[string]any) ([]*event.DecodedRequest, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return nil, errors.WrapDecode(fmt.Errorf("empty payload"), "json-decoder", "Decode", "payload check")
	}

	if d.schema != nil {
		result, err := d.schema.Validate(gojsonschema.NewBytesLoader(trimmed))
		if err != nil {
			return nil, errors.WrapDecode(err, "json-decoder", "Decode", "schema validation")
		}
		if !result.Valid() {
			msgs := make([]string, 0, len(result.Errors()))
			for _, e := range result.Errors() {
				msgs = append(msgs, e.String())
			}
			return nil, errors.WrapDecode(fmt.Errorf("%s", strings.Join(msgs, "; ")),
				"json-decoder", "Decode", "schema validation")
		}
	}

	if trimmed[0] == '[' {
		var batch []*event.DecodedRequest
		if err := json.Unmarshal(trimmed, &batch); err != nil {
			return nil, errors.WrapDecode(err, "json-decoder", "Decode", "batch unmarshal")
		}
		return batch, nil
	}

	var single event.DecodedRequest
	if err := json.Unmarshal(trimmed, &single); err != nil {
		return nil, errors.WrapDecode(err, "json-decoder", "Decode", "unmarshal")
	}
	return []*event.DecodedRequest{&single}, nil
}
