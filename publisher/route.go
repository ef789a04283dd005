package publisher

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xfyecn/sitewhere-master-sub001/event"
)

// RouteBuilder computes the single route for an event.
type RouteBuilder interface {
	Build(e event.Event) (string, error)
}

// Multicaster computes every route an event is sent to.
type Multicaster interface {
	Routes(e event.Event) ([]string, error)
}

// RouteBuilderFunc adapts a function to RouteBuilder.
type RouteBuilderFunc func(e event.Event) (string, error)

func (f RouteBuilderFunc) Build(e event.Event) (string, error) { return f(e) }

// MulticasterFunc adapts a function to Multicaster.
type MulticasterFunc func(e event.Event) ([]string, error)

func (f MulticasterFunc) Routes(e event.Event) ([]string, error) { return f(e) }

// Template is a route with placeholders filled from the event:
// {tenant}, {hardwareId}, {assignment} and {kind}.
//
//	tenants/{tenant}/devices/{hardwareId}/{kind}
type Template string

// Expand fills the placeholders. A placeholder whose value is empty is an error.
func (t Template) Expand(e event.Event) (string, error) {
	h := e.Header()
	return expand(string(t), map[string]string{
		"tenant":     h.TenantID,
		"hardwareId": h.HardwareID,
		"assignment": h.AssignmentToken,
		"kind":       string(h.Kind),
	})
}

func expand(tmpl string, values map[string]string) (string, error) {
	var b strings.Builder
	rest := tmpl
	for {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			b.WriteString(rest)
			return b.String(), nil
		}
		end := strings.IndexByte(rest[open:], '}')
		if end < 0 {
			return "", fmt.Errorf("route template %q: unterminated placeholder", tmpl)
		}
		name := rest[open+1 : open+end]
		value, ok := values[name]
		if !ok {
			return "", fmt.Errorf("route template %q: unknown placeholder {%s}", tmpl, name)
		}
		if value == "" {
			return "", fmt.Errorf("route template %q: {%s} is empty", tmpl, name)
		}
		b.WriteString(rest[:open])
		b.WriteString(value)
		rest = rest[open+end+1:]
	}
}

// TemplateRouteBuilder routes each event to its expanded template.
type TemplateRouteBuilder struct {
	Template Template
}

func (b TemplateRouteBuilder) Build(e event.Event) (string, error) {
	return b.Template.Expand(e)
}

// TemplateMulticaster sends each event to every expanded template.
type TemplateMulticaster struct {
	Templates []Template
}

func (m TemplateMulticaster) Routes(e event.Event) ([]string, error) {
	routes := make([]string, 0, len(m.Templates))
	for _, t := range m.Templates {
		r, err := t.Expand(e)
		if err != nil {
			return nil, err
		}
		routes = append(routes, r)
	}
	return routes, nil
}

// DefaultStreamRoute is where stream chunks are sent back to devices.
const DefaultStreamRoute = "devices/{hardwareId}/streams/{streamId}/{seq}"

func streamRoute(tmpl, hardwareID, streamID string, seq int64) (string, error) {
	return expand(tmpl, map[string]string{
		"hardwareId": hardwareID,
		"streamId":   streamID,
		"seq":        strconv.FormatInt(seq, 10),
	})
}
