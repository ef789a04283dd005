package engine

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xfyecn/sitewhere-master-sub001/component"
	"github.com/xfyecn/sitewhere-master-sub001/config"
	"github.com/xfyecn/sitewhere-master-sub001/errors"
	"github.com/xfyecn/sitewhere-master-sub001/metric"
)

// newTestServer builds a server with a healthy "acme" tenant and a "broken"
// tenant whose required webhook has no base url.
func newTestServer(t *testing.T) (*Server, *metric.MetricsRegistry) {
	t.Helper()

	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(hook.Close)

	broken := tenantConfig("broken", "")
	delete(broken.Outbound[0].Params, "base_url")

	cfg := config.Default()
	cfg.Tenants = []config.TenantConfig{tenantConfig("acme", hook.URL), broken}

	registry := metric.NewMetricsRegistry()
	s, err := NewBuilder(component.Dependencies{MetricsRegistry: registry}, nil, cfg).BuildServer()
	require.NoError(t, err)
	return s, registry
}

func TestServer_TenantFailureIsIsolated(t *testing.T) {
	s, _ := newTestServer(t)
	ctx := context.Background()

	s.LifecycleStart(ctx, nil)
	defer s.LifecycleStop(ctx, nil)

	assert.Equal(t, component.StatusStarted, s.Status())

	acme, ok := s.Tenant("acme")
	require.True(t, ok)
	assert.Equal(t, component.StatusStarted, acme.Status())

	broken, ok := s.Tenant("broken")
	require.True(t, ok)
	assert.Equal(t, component.StatusError, broken.Status())
	require.Error(t, broken.LastError())
	assert.ErrorIs(t, broken.LastError(), errors.ErrStartupFault)
}

func TestServer_FindStopsAtTenants(t *testing.T) {
	s, _ := newTestServer(t)
	ctx := context.Background()

	s.LifecycleStart(ctx, nil)
	defer s.LifecycleStop(ctx, nil)

	assert.Len(t, s.FindComponentsOfType(component.TypeTenantEngine), 2)
	assert.Empty(t, s.FindComponentsOfType(component.TypeInboundReceiver))

	// Only the running tenant has started its sources.
	receivers := s.FindInTenants(component.TypeInboundReceiver)
	require.Len(t, receivers, 1)
	assert.Equal(t, "acme", component.TenantID(receivers[0]))
}

func TestServer_StartStopTenant(t *testing.T) {
	s, _ := newTestServer(t)
	ctx := context.Background()

	s.LifecycleStart(ctx, nil)
	defer s.LifecycleStop(ctx, nil)

	require.NoError(t, s.StopTenant(ctx, "acme"))
	acme, _ := s.Tenant("acme")
	assert.Equal(t, component.StatusStopped, acme.Status())

	require.NoError(t, s.StartTenant(ctx, "acme"))
	assert.Equal(t, component.StatusStarted, acme.Status())

	// Restarting a broken tenant reports why it failed.
	err := s.StartTenant(ctx, "broken")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrStartupFault)

	err = s.StartTenant(ctx, "nobody")
	assert.ErrorIs(t, err, errors.ErrNotFound)
	err = s.StopTenant(ctx, "nobody")
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestServer_StopsEveryTenant(t *testing.T) {
	s, _ := newTestServer(t)
	ctx := context.Background()

	s.LifecycleStart(ctx, nil)
	s.LifecycleStop(ctx, nil)

	assert.Equal(t, component.StatusStopped, s.Status())
	acme, _ := s.Tenant("acme")
	assert.Equal(t, component.StatusStopped, acme.Status())
}

func TestServer_Metrics(t *testing.T) {
	s, _ := newTestServer(t)
	ctx := context.Background()

	s.LifecycleStart(ctx, nil)
	require.NotNil(t, s.metrics)

	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.starts.WithLabelValues("acme", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.starts.WithLabelValues("broken", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.activeTenants))

	s.LifecycleStop(ctx, nil)
	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.stops.WithLabelValues("acme", "success")))
	assert.Equal(t, 0.0, testutil.ToFloat64(s.metrics.activeTenants))
}

func TestServer_AddTenant(t *testing.T) {
	s := NewServer(component.Dependencies{}, "")
	assert.Equal(t, "pipeline", s.Name())
	assert.Nil(t, s.metrics)

	cfg := config.Default()
	e, err := NewBuilder(component.Dependencies{}, nil, cfg).BuildTenant(tenantConfig("acme", "http://127.0.0.1:1"))
	require.NoError(t, err)

	require.NoError(t, s.AddTenant(e))
	err = s.AddTenant(e)
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)
	assert.ErrorIs(t, s.AddTenant(nil), errors.ErrMissingConfig)
}
