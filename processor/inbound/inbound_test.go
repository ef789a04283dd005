package inbound

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xfyecn/sitewhere-master-sub001/component"
	pipeerrors "github.com/xfyecn/sitewhere-master-sub001/errors"
	"github.com/xfyecn/sitewhere-master-sub001/event"
	"github.com/xfyecn/sitewhere-master-sub001/metric"
)

// spy records the kinds it receives and optionally fails.
type spy struct {
	*component.Lifecycle
	component.TenantScope
	Base

	fail     error
	panics   bool
	startErr error
	log      *[]string

	mu   sync.Mutex
	seen []event.Kind
}

func newSpy(name string, log *[]string) *spy {
	s := &spy{log: log}
	s.Lifecycle = component.NewLifecycle(s, component.TypeInboundProcessor, name)
	return s
}

func (s *spy) Start(context.Context, component.Monitor) error { return s.startErr }

func (s *spy) handle(kind event.Kind) error {
	s.mu.Lock()
	s.seen = append(s.seen, kind)
	if s.log != nil {
		*s.log = append(*s.log, s.Name())
	}
	s.mu.Unlock()
	if s.panics {
		panic("processor exploded")
	}
	return s.fail
}

func (s *spy) kinds() []event.Kind {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]event.Kind(nil), s.seen...)
}

func (s *spy) OnMeasurementsCreateRequest(context.Context, string, string, *event.MeasurementsRequest) error {
	return s.handle(event.KindMeasurements)
}

func (s *spy) OnAlertCreateRequest(context.Context, string, string, *event.AlertRequest) error {
	return s.handle(event.KindAlert)
}

func (s *spy) OnMappingCreateRequest(context.Context, string, string, *event.MappingRequest) error {
	return s.handle(event.KindMapping)
}

func startChain(t *testing.T, c *Chain) {
	t.Helper()
	c.LifecycleStart(context.Background(), nil)
	require.Equal(t, component.StatusStarted, c.Status(), "start failed: %v", c.LastError())
	t.Cleanup(func() { c.LifecycleStop(context.Background(), nil) })
}

func measurements() *event.DecodedRequest {
	return &event.DecodedRequest{
		HardwareID: "dev-1",
		Request:    &event.MeasurementsRequest{Measurements: map[string]float64{"t": 1}},
	}
}

func TestChain_DispatchesByKindInOrder(t *testing.T) {
	var order []string
	a, b := newSpy("a", &order), newSpy("b", &order)
	c := NewChain(component.Dependencies{}, Required(a), Required(b))
	startChain(t, c)

	require.NoError(t, c.Dispatch(context.Background(), measurements()))
	require.NoError(t, c.Dispatch(context.Background(), &event.DecodedRequest{
		HardwareID: "dev-1", Request: &event.AlertRequest{Message: "hot"},
	}))
	require.NoError(t, c.Dispatch(context.Background(), &event.DecodedRequest{
		HardwareID: "dev-1", Request: &event.MappingRequest{CompositeDeviceHardwareID: "gw"},
	}))
	// Base ignores kinds the spy does not override.
	require.NoError(t, c.Dispatch(context.Background(), &event.DecodedRequest{
		HardwareID: "dev-1", Request: &event.LocationRequest{},
	}))

	assert.Equal(t, []event.Kind{event.KindMeasurements, event.KindAlert, event.KindMapping}, a.kinds())
	assert.Equal(t, a.kinds(), b.kinds())
	assert.Equal(t, []string{"a", "b", "a", "b", "a", "b"}, order)
}

func TestChain_FailingProcessorIsIsolated(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	deps := component.Dependencies{MetricsRegistry: registry}

	failing := newSpy("failing", nil)
	failing.fail = errors.New("boom")
	panicking := newSpy("panicking", nil)
	panicking.panics = true
	healthy := newSpy("healthy", nil)

	c := NewChain(deps, Required(failing), Required(panicking), Required(healthy))
	startChain(t, c)

	require.NoError(t, c.Dispatch(context.Background(), measurements()))
	require.NoError(t, c.Dispatch(context.Background(), measurements()))

	assert.Len(t, healthy.kinds(), 2)
	m := registry.CoreMetrics()
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ProcessorFailures.WithLabelValues("inbound", "failing", "measurements")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ProcessorFailures.WithLabelValues("inbound", "panicking", "measurements")))
}

func TestChain_ZeroProcessors(t *testing.T) {
	c := NewChain(component.Dependencies{})
	startChain(t, c)
	assert.NoError(t, c.Dispatch(context.Background(), measurements()))
	assert.Empty(t, c.Processors())
}

func TestChain_RejectsMalformedRequests(t *testing.T) {
	c := NewChain(component.Dependencies{})
	startChain(t, c)

	err := c.Dispatch(context.Background(), nil)
	assert.True(t, pipeerrors.IsInvalid(err))
	err = c.Dispatch(context.Background(), &event.DecodedRequest{HardwareID: "dev-1"})
	assert.True(t, pipeerrors.IsInvalid(err))
}

func TestChain_RequiredProcessorFailureFailsStart(t *testing.T) {
	broken := newSpy("broken", nil)
	broken.startErr = errors.New("no connection")
	c := NewChain(component.Dependencies{}, Required(broken))

	c.LifecycleStart(context.Background(), nil)
	assert.Equal(t, component.StatusError, c.Status())
	assert.ErrorIs(t, c.LastError(), pipeerrors.ErrStartupFault)
}

func TestChain_OptionalProcessorFailureIsTolerated(t *testing.T) {
	broken := newSpy("broken", nil)
	broken.startErr = errors.New("no connection")
	healthy := newSpy("healthy", nil)
	c := NewChain(component.Dependencies{}, Optional(broken), Required(healthy))
	startChain(t, c)

	assert.Equal(t, component.StatusError, broken.Status())
	assert.Equal(t, component.StatusStarted, healthy.Status())
	assert.Len(t, c.Children(), 2)
}

func TestChain_PropagatesTenantAndStops(t *testing.T) {
	a := newSpy("a", nil)
	c := NewChain(component.Dependencies{}, Required(a))
	c.SetTenant(&component.Tenant{ID: "acme"})
	startChain(t, c)

	assert.Equal(t, "acme", component.TenantID(a))
	assert.Len(t, c.FindComponentsOfType(component.TypeInboundProcessor), 1)

	c.LifecycleStop(context.Background(), nil)
	assert.Equal(t, component.StatusStopped, a.Status())
}

func TestChain_Lifecycle(t *testing.T) {
	component.StandardLifecycleTests(t, func(*testing.T) component.Component {
		return NewChain(component.Dependencies{}, Required(newSpy("a", nil)))
	})
}
