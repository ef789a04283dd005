package influx

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xfyecn/sitewhere-master-sub001/component"
	pipeerrors "github.com/xfyecn/sitewhere-master-sub001/errors"
	"github.com/xfyecn/sitewhere-master-sub001/event"
)

type recordingWriter struct {
	mu     sync.Mutex
	points []*write.Point
	err    error
}

func (w *recordingWriter) WritePoint(_ context.Context, points ...*write.Point) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.points = append(w.points, points...)
	return nil
}

func tagsOf(p *write.Point) map[string]string {
	out := map[string]string{}
	for _, t := range p.TagList() {
		out[t.Key] = t.Value
	}
	return out
}

func fieldsOf(p *write.Point) map[string]any {
	out := map[string]any{}
	for _, f := range p.FieldList() {
		out[f.Key] = f.Value
	}
	return out
}

func started(t *testing.T, w *recordingWriter) *EventStore {
	t.Helper()
	s := New(component.Dependencies{}, Config{URL: "http://influx:8086", Org: "org", Bucket: "events"})
	closed := false
	s.connect = func(context.Context, Config) (*connection, error) {
		return &connection{writer: w, close: func() { closed = true }}, nil
	}
	s.LifecycleStart(context.Background(), nil)
	require.Equal(t, component.StatusStarted, s.Status(), "last error: %v", s.LastError())
	t.Cleanup(func() {
		s.LifecycleStop(context.Background(), nil)
		assert.True(t, closed)
	})
	return s
}

func TestEventStore_Measurements(t *testing.T) {
	w := &recordingWriter{}
	s := started(t, w)
	at := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

	err := s.StoreEvent(context.Background(), &event.Measurements{
		DeviceEvent: event.DeviceEvent{
			ID: "evt-1", Kind: event.KindMeasurements, TenantID: "acme",
			HardwareID: "dev-1", AssignmentToken: "asg-1", EventDate: at,
			Metadata: map[string]string{"fw version": "1.2"},
		},
		Values: map[string]float64{"engine.temp": 90.5},
	})
	require.NoError(t, err)

	require.Len(t, w.points, 1)
	p := w.points[0]
	assert.Equal(t, MeasurementMeasurements, p.Name())
	assert.Equal(t, at, p.Time())
	assert.Equal(t, map[string]string{
		"hardwareId": "dev-1", "kind": "measurements", "tenant": "acme",
		"assignment": "asg-1", "meta_fw_version": "1.2",
	}, tagsOf(p))
	assert.Equal(t, 90.5, fieldsOf(p)["m_engine_temp"])
	assert.Equal(t, "evt-1", fieldsOf(p)["eventId"])
}

func TestPoint_Kinds(t *testing.T) {
	h := event.DeviceEvent{ID: "e", HardwareID: "dev"}
	tests := []struct {
		name  string
		event event.Event
		want  string
		field string
	}{
		{"location", &event.Location{DeviceEvent: h, Latitude: 1.5}, MeasurementLocations, "latitude"},
		{"alert", &event.Alert{DeviceEvent: h, Level: event.AlertWarning, Message: "hot"}, MeasurementAlerts, "message"},
		{"command response", &event.CommandResponse{DeviceEvent: h, OriginatingEventID: "o"}, MeasurementCommandResponses, "originatingEventId"},
		{"state change", &event.StateChange{DeviceEvent: h, NewState: "on"}, MeasurementStateChanges, "newState"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Point(tt.event)
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.Name())
			assert.Contains(t, fieldsOf(p), tt.field)
		})
	}

	_, err := Point(&event.Measurements{DeviceEvent: h})
	assert.Error(t, err, "measurements without values")
	_, err = Point(&event.DeviceEvent{})
	assert.Error(t, err)
}

func TestEventStore_WriteFailure(t *testing.T) {
	w := &recordingWriter{err: errors.New("bucket not found")}
	s := started(t, w)

	err := s.StoreEvent(context.Background(), &event.Location{DeviceEvent: event.DeviceEvent{HardwareID: "dev"}})
	assert.True(t, pipeerrors.IsTransient(err))
}

func TestEventStore_NotStarted(t *testing.T) {
	s := New(component.Dependencies{}, Config{})
	err := s.StoreEvent(context.Background(), &event.Location{})
	assert.ErrorIs(t, err, pipeerrors.ErrNotStarted)

	s.LifecycleStart(context.Background(), nil)
	assert.ErrorIs(t, s.LastError(), pipeerrors.ErrMissingConfig)
}

func TestEventStore_ConnectFailure(t *testing.T) {
	s := New(component.Dependencies{}, Config{URL: "http://influx:8086", Org: "org", Bucket: "events"})
	s.connect = func(context.Context, Config) (*connection, error) { return nil, errors.New("dial tcp: refused") }
	s.LifecycleStart(context.Background(), nil)
	assert.Equal(t, component.StatusError, s.Status())
	assert.True(t, pipeerrors.IsTransient(s.LastError()))
}
