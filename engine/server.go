package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/xfyecn/sitewhere-master-sub001/component"
	"github.com/xfyecn/sitewhere-master-sub001/errors"
	"github.com/xfyecn/sitewhere-master-sub001/tenant"
)

// Server is the root of the component tree. It owns one engine per tenant
// and is constructed explicitly and passed to whatever needs it.
type Server struct {
	*component.Lifecycle

	metrics *engineMetrics

	mu      sync.RWMutex
	tenants map[string]*tenant.Engine
	order   []string
}

// NewServer creates a server with no tenants.
func NewServer(deps component.Dependencies, name string) *Server {
	if name == "" {
		name = "pipeline"
	}
	s := &Server{tenants: make(map[string]*tenant.Engine)}
	s.Lifecycle = component.NewLifecycle(s, component.TypeServer, name, deps.LifecycleOptions()...)

	m, err := newEngineMetrics(deps.MetricsRegistry)
	if err != nil {
		s.Logger().Error("Failed to initialize engine metrics", "error", err)
	}
	s.metrics = m
	return s
}

// AddTenant registers a tenant engine. Engines added while the server is
// running are not started; use StartTenant.
func (s *Server) AddTenant(e *tenant.Engine) error {
	if e == nil || e.TenantID() == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, s.Name(), "AddTenant", "tenant id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tenants[e.TenantID()]; exists {
		return errors.WrapInvalid(fmt.Errorf("%w: tenant %s already registered", errors.ErrInvalidConfig, e.TenantID()),
			s.Name(), "AddTenant", "tenant registration")
	}
	s.tenants[e.TenantID()] = e
	s.order = append(s.order, e.TenantID())
	return nil
}

// Tenant returns the engine for a tenant id.
func (s *Server) Tenant(id string) (*tenant.Engine, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.tenants[id]
	return e, ok
}

// Tenants returns every engine in registration order.
func (s *Server) Tenants() []*tenant.Engine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*tenant.Engine, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.tenants[id])
	}
	return out
}

// Start starts every tenant. A tenant that fails is left in Error and the
// others keep running.
func (s *Server) Start(ctx context.Context, monitor component.Monitor) error {
	for _, e := range s.Tenants() {
		s.startTenant(ctx, e, monitor)
	}
	return nil
}

// Stop stops tenants in reverse registration order.
func (s *Server) Stop(ctx context.Context, monitor component.Monitor) error {
	tenants := s.Tenants()
	for i := len(tenants) - 1; i >= 0; i-- {
		s.stopTenant(ctx, tenants[i], monitor)
	}
	return nil
}

// StartTenant starts (or restarts after a failure) a single tenant.
func (s *Server) StartTenant(ctx context.Context, id string) error {
	e, ok := s.Tenant(id)
	if !ok {
		return errors.WrapInvalid(fmt.Errorf("tenant %s %w", id, errors.ErrNotFound), s.Name(), "StartTenant", "tenant lookup")
	}
	s.startTenant(ctx, e, component.NewLogMonitor(s.Logger()))
	if e.Status() == component.StatusError {
		return e.LastError()
	}
	return nil
}

// StopTenant stops a single tenant.
func (s *Server) StopTenant(ctx context.Context, id string) error {
	e, ok := s.Tenant(id)
	if !ok {
		return errors.WrapInvalid(fmt.Errorf("tenant %s %w", id, errors.ErrNotFound), s.Name(), "StopTenant", "tenant lookup")
	}
	s.stopTenant(ctx, e, component.NewLogMonitor(s.Logger()))
	if e.Status() == component.StatusError {
		return e.LastError()
	}
	return nil
}

func (s *Server) startTenant(ctx context.Context, e *tenant.Engine, monitor component.Monitor) {
	if e.Status() == component.StatusStarted {
		return
	}
	started := time.Now()
	_ = s.StartNested(ctx, e, monitor, fmt.Sprintf("Starting tenant engine %q", e.TenantID()), false)
	s.metrics.recordStart(e.TenantID(), e.Status() == component.StatusStarted, time.Since(started).Seconds())
}

func (s *Server) stopTenant(ctx context.Context, e *tenant.Engine, monitor component.Monitor) {
	if e.Status() == component.StatusStopped {
		return
	}
	wasRunning := e.Status() == component.StatusStarted || e.Status() == component.StatusPaused
	started := time.Now()
	s.StopNested(ctx, e, monitor)
	s.metrics.recordStop(e.TenantID(), e.Status() == component.StatusStopped, wasRunning, time.Since(started).Seconds())
}

// FindInTenants searches inside every tenant engine. FindComponentsOfType
// stops at the engines because they are hierarchy roots.
func (s *Server) FindInTenants(t component.Type) []component.Component {
	var out []component.Component
	for _, e := range s.Tenants() {
		out = append(out, e.FindComponentsOfType(t)...)
	}
	return out
}
