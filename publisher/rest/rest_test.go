package rest

import (
	"context"
	"encoding/pem"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xfyecn/sitewhere-master-sub001/component"
	pipeerrors "github.com/xfyecn/sitewhere-master-sub001/errors"
	"github.com/xfyecn/sitewhere-master-sub001/event"
	"github.com/xfyecn/sitewhere-master-sub001/pkg/tlsutil"
	"github.com/xfyecn/sitewhere-master-sub001/publisher"
)

type recorded struct {
	path, contentType, token, body string
}

func endpoint(t *testing.T, status int) (*httptest.Server, func() []recorded) {
	t.Helper()
	var mu sync.Mutex
	var got []recorded
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			w.WriteHeader(http.StatusOK)
			return
		}
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		got = append(got, recorded{
			path:        r.URL.Path,
			contentType: r.Header.Get("Content-Type"),
			token:       r.Header.Get("X-Api-Token"),
			body:        string(body),
		})
		mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, func() []recorded {
		mu.Lock()
		defer mu.Unlock()
		return append([]recorded(nil), got...)
	}
}

func TestTransport_PostsToRoute(t *testing.T) {
	srv, requests := endpoint(t, http.StatusAccepted)
	tr := New(Config{
		BaseURL:   srv.URL + "/api",
		Headers:   map[string]string{"X-Api-Token": "secret"},
		ProbePath: "health",
	}, srv.Client())
	p := publisher.New(component.Dependencies{}, "rest-pub", tr,
		publisher.WithRouteBuilder(publisher.TemplateRouteBuilder{Template: "tenants/{tenant}/events"}))

	ctx := context.Background()
	p.LifecycleStart(ctx, nil)
	require.Equal(t, component.StatusStarted, p.Status(), "last error: %v", p.LastError())

	e := &event.StateChange{
		DeviceEvent: event.DeviceEvent{Kind: event.KindStateChange, TenantID: "acme", HardwareID: "dev-1"},
		NewState:    "online",
	}
	require.NoError(t, p.OnStateChange(ctx, e))

	got := requests()
	require.Len(t, got, 1)
	assert.Equal(t, "/api/tenants/acme/events", got[0].path)
	assert.Equal(t, "application/json", got[0].contentType)
	assert.Equal(t, "secret", got[0].token)
	assert.Contains(t, got[0].body, `"newState":"online"`)

	p.LifecycleStop(ctx, nil)
}

func TestTransport_RejectsNon2xx(t *testing.T) {
	srv, _ := endpoint(t, http.StatusBadGateway)
	tr := New(Config{BaseURL: srv.URL}, srv.Client())
	ctx := context.Background()
	require.NoError(t, tr.Connect(ctx))

	err := tr.Publish(ctx, publisher.Message{Route: "events", Payload: []byte("{}")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 502")
}

func TestTransport_ProbeFailureFailsStart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	tr := New(Config{BaseURL: srv.URL, ProbePath: "health"}, srv.Client())
	p := publisher.New(component.Dependencies{}, "rest-pub", tr, publisher.WithTopic("events"))
	p.LifecycleStart(context.Background(), nil)

	assert.Equal(t, component.StatusError, p.Status())
	assert.True(t, pipeerrors.IsFatal(p.LastError()))
}

func TestTransport_Validation(t *testing.T) {
	ctx := context.Background()
	assert.ErrorIs(t, New(Config{}, nil).Connect(ctx), pipeerrors.ErrMissingConfig)
	assert.ErrorIs(t, New(Config{BaseURL: "not a url"}, nil).Connect(ctx), pipeerrors.ErrInvalidConfig)
	assert.ErrorIs(t, New(Config{}, nil).Publish(ctx, publisher.Message{}), pipeerrors.ErrNotStarted)
}

func TestTransport_TLS(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)

	ca := filepath.Join(t.TempDir(), "ca.pem")
	require.NoError(t, os.WriteFile(ca, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: srv.Certificate().Raw}), 0o600))

	ctx := context.Background()
	tr := New(Config{BaseURL: srv.URL, TLS: tlsutil.ClientConfig{Enabled: true, CAFiles: []string{ca}}}, nil)
	require.NoError(t, tr.Connect(ctx))
	assert.NoError(t, tr.Publish(ctx, publisher.Message{Route: "events", Payload: []byte("{}")}))

	// the server certificate is not in the system pool
	untrusted := New(Config{BaseURL: srv.URL}, nil)
	require.NoError(t, untrusted.Connect(ctx))
	assert.Error(t, untrusted.Publish(ctx, publisher.Message{Route: "events", Payload: []byte("{}")}))

	bad := New(Config{BaseURL: srv.URL, TLS: tlsutil.ClientConfig{Enabled: true, CAFiles: []string{"/nonexistent/ca.pem"}}}, nil)
	assert.Error(t, bad.Connect(ctx))
}
