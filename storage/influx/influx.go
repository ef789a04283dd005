// Package influx persists device events as InfluxDB points.
package influx

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/xfyecn/sitewhere-master-sub001/component"
	"github.com/xfyecn/sitewhere-master-sub001/errors"
	"github.com/xfyecn/sitewhere-master-sub001/event"
	"github.com/xfyecn/sitewhere-master-sub001/store"
)

// Config configures the InfluxDB v2 connection.
type Config struct {
	URL    string `json:"url" yaml:"url"`
	Token  string `json:"token" yaml:"token"`
	Org    string `json:"org" yaml:"org"`
	Bucket string `json:"bucket" yaml:"bucket"`
}

// Measurement names, one per event kind.
const (
	MeasurementMeasurements     = "measurements"
	MeasurementLocations        = "locations"
	MeasurementAlerts           = "alerts"
	MeasurementCommandResponses = "command_responses"
	MeasurementStateChanges     = "state_changes"
)

type pointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

type connection struct {
	writer pointWriter
	close  func()
}

// EventStore writes every event synchronously with the blocking write API.
type EventStore struct {
	*component.Lifecycle
	component.TenantScope

	cfg     Config
	connect func(ctx context.Context, cfg Config) (*connection, error)

	mu   sync.RWMutex
	conn *connection
}

var _ store.EventStore = (*EventStore)(nil)

// New creates an InfluxDB event store.
func New(deps component.Dependencies, cfg Config) *EventStore {
	s := &EventStore{cfg: cfg, connect: connect}
	s.Lifecycle = component.NewLifecycle(s, component.TypeDataStore, "influx-"+cfg.Bucket, deps.LifecycleOptions()...)
	return s
}

func connect(ctx context.Context, cfg Config) (*connection, error) {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	ok, err := client.Ping(ctx)
	if err != nil {
		client.Close()
		return nil, err
	}
	if !ok {
		client.Close()
		return nil, fmt.Errorf("influxdb at %s is not ready", cfg.URL)
	}
	return &connection{
		writer: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		close:  client.Close,
	}, nil
}

func (s *EventStore) Start(ctx context.Context, _ component.Monitor) error {
	if s.cfg.URL == "" || s.cfg.Org == "" || s.cfg.Bucket == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, s.Name(), "Start", "url, org and bucket")
	}
	conn, err := s.connect(ctx, s.cfg)
	if err != nil {
		return errors.WrapTransient(err, s.Name(), "Start", "connect to "+s.cfg.URL)
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	s.Logger().Info("InfluxDB event store ready", "url", s.cfg.URL, "bucket", s.cfg.Bucket)
	return nil
}

func (s *EventStore) Stop(context.Context, component.Monitor) error {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()
	if conn != nil && conn.close != nil {
		conn.close()
	}
	return nil
}

// StoreEvent writes e as one point.
func (s *EventStore) StoreEvent(ctx context.Context, e event.Event) error {
	s.mu.RLock()
	conn := s.conn
	s.mu.RUnlock()
	if conn == nil {
		return errors.WrapTransient(errors.ErrNotStarted, s.Name(), "StoreEvent", "check started")
	}

	p, err := Point(e)
	if err != nil {
		return errors.WrapInvalid(err, s.Name(), "StoreEvent", "build point")
	}
	if err := conn.writer.WritePoint(ctx, p); err != nil {
		return errors.WrapTransient(err, s.Name(), "StoreEvent", "write point")
	}
	return nil
}

// Point converts an event to a point. Device, tenant and assignment are tags;
// event metadata becomes tags prefixed with "meta_".
func Point(e event.Event) (*write.Point, error) {
	h := e.Header()
	tags := map[string]string{
		"hardwareId": h.HardwareID,
		"kind":       string(h.Kind),
	}
	if h.TenantID != "" {
		tags["tenant"] = h.TenantID
	}
	if h.AssignmentToken != "" {
		tags["assignment"] = h.AssignmentToken
	}
	for k, v := range h.Metadata {
		tags["meta_"+sanitizeKey(k)] = v
	}
	fields := map[string]interface{}{"eventId": h.ID}

	var name string
	switch ev := e.(type) {
	case *event.Measurements:
		name = MeasurementMeasurements
		if len(ev.Values) == 0 {
			return nil, fmt.Errorf("measurements event %s has no values", h.ID)
		}
		for k, v := range ev.Values {
			fields["m_"+sanitizeKey(k)] = v
		}
	case *event.Location:
		name = MeasurementLocations
		fields["latitude"] = ev.Latitude
		fields["longitude"] = ev.Longitude
		fields["elevation"] = ev.Elevation
	case *event.Alert:
		name = MeasurementAlerts
		tags["level"] = string(ev.Level)
		tags["type"] = ev.Type
		if ev.Source != "" {
			tags["source"] = ev.Source
		}
		fields["message"] = ev.Message
	case *event.CommandResponse:
		name = MeasurementCommandResponses
		fields["originatingEventId"] = ev.OriginatingEventID
		fields["responseEventId"] = ev.ResponseEventID
		fields["response"] = ev.Response
	case *event.StateChange:
		name = MeasurementStateChanges
		tags["category"] = ev.Category
		tags["type"] = ev.Type
		fields["previousState"] = ev.PreviousState
		fields["newState"] = ev.NewState
	default:
		return nil, fmt.Errorf("unsupported event %T", e)
	}
	return write.NewPoint(name, tags, fields, h.EventDate), nil
}

var keyRe = regexp.MustCompile(`[^a-zA-Z0-9_]+`)

func sanitizeKey(k string) string {
	k = strings.TrimSpace(k)
	k = keyRe.ReplaceAllString(k, "_")
	k = strings.Trim(k, "_")
	if k == "" {
		return "field"
	}
	return k
}
