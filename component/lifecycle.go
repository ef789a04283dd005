package component

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/xfyecn/sitewhere-master-sub001/metric"
)

// Component is implemented by every supervised part of the pipeline. Concrete
// components get the implementation by embedding *Lifecycle and supply their
// behavior through the optional hook interfaces (Initializer, Starter, Pauser,
// Resumer, Stopper).
type Component interface {
	ID() uuid.UUID
	Type() Type
	Name() string
	CreatedAt() time.Time
	Status() Status
	LastError() error
	Logger() *slog.Logger

	// Children returns supervised children in the order they were started.
	Children() []Component
	Child(id uuid.UUID) (Component, bool)

	LifecycleInitialize(ctx context.Context, monitor Monitor)
	LifecycleStart(ctx context.Context, monitor Monitor)
	LifecyclePause(ctx context.Context, monitor Monitor)
	LifecycleStop(ctx context.Context, monitor Monitor)

	FindComponentsOfType(t Type) []Component
	IsHierarchyRoot() bool
}

// Initializer is the initialize hook.
type Initializer interface {
	Initialize(ctx context.Context, monitor Monitor) error
}

// Starter is the start hook. Nested components are started from here with
// StartNested.
type Starter interface {
	Start(ctx context.Context, monitor Monitor) error
}

// Pauser is the pause hook.
type Pauser interface {
	Pause(ctx context.Context, monitor Monitor) error
}

// Resumer is the hook run when a paused component is started again. Without
// it a resume only changes status.
type Resumer interface {
	Resume(ctx context.Context, monitor Monitor) error
}

// Stopper is the stop hook.
type Stopper interface {
	Stop(ctx context.Context, monitor Monitor) error
}

// StatusListener observes status changes.
type StatusListener func(c Component, status Status)

// Option configures a Lifecycle.
type Option func(*Lifecycle)

// WithLogger sets the base logger. Component attributes are added to it.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Lifecycle) {
		if logger != nil {
			l.baseLogger = logger
		}
	}
}

// WithMetrics records transitions in the pipeline metrics.
func WithMetrics(m *metric.Metrics) Option {
	return func(l *Lifecycle) {
		l.metrics = m
	}
}

// AsHierarchyRoot marks the component as the root of its own hierarchy, so
// searches started above it do not descend into its children.
func AsHierarchyRoot() Option {
	return func(l *Lifecycle) {
		l.root = true
	}
}

// Lifecycle implements the lifecycle state machine, nested component
// supervision and error capture.
type Lifecycle struct {
	id        uuid.UUID
	typ       Type
	name      string
	createdAt time.Time
	root      bool

	self       Component
	baseLogger *slog.Logger
	logger     *slog.Logger
	metrics    *metric.Metrics

	// opMu serializes lifecycle verbs
	opMu sync.Mutex

	mu        sync.RWMutex
	status    Status
	lastError error
	children  map[uuid.UUID]Component
	order     []uuid.UUID
	listeners []StatusListener
}

var _ Component = (*Lifecycle)(nil)

// NewLifecycle creates the lifecycle for owner, the outer component that embeds
// it. Hooks are looked up on owner. A nil owner makes the Lifecycle its own owner.
func NewLifecycle(owner Component, typ Type, name string, opts ...Option) *Lifecycle {
	l := &Lifecycle{
		id:         uuid.New(),
		typ:        typ,
		name:       name,
		createdAt:  time.Now(),
		baseLogger: slog.Default(),
		status:     StatusStopped,
		children:   make(map[uuid.UUID]Component),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.self = owner
	if owner == nil {
		l.self = l
	}
	l.logger = l.baseLogger.With(
		"component", name,
		"component_type", string(typ),
		"component_id", l.id.String(),
	)
	return l
}

func (l *Lifecycle) ID() uuid.UUID        { return l.id }
func (l *Lifecycle) Type() Type           { return l.typ }
func (l *Lifecycle) Name() string         { return l.name }
func (l *Lifecycle) CreatedAt() time.Time { return l.createdAt }
func (l *Lifecycle) IsHierarchyRoot() bool {
	return l.root
}

// Logger returns the component logger, tagged with the tenant once one is assigned.
func (l *Lifecycle) Logger() *slog.Logger {
	if t := TenantOf(l.self); t != nil {
		return l.logger.With("tenant", t.ID)
	}
	return l.logger
}

// Metrics returns the pipeline metrics, possibly nil.
func (l *Lifecycle) Metrics() *metric.Metrics {
	return l.metrics
}

// Status returns the current status.
func (l *Lifecycle) Status() Status {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.status
}

// LastError returns the error recorded by the most recent failed transition.
// It is cleared when a new transition begins.
func (l *Lifecycle) LastError() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lastError
}

// Children returns supervised children in registration order.
func (l *Lifecycle) Children() []Component {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Component, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, l.children[id])
	}
	return out
}

// Child looks up a supervised child by id.
func (l *Lifecycle) Child(id uuid.UUID) (Component, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	c, ok := l.children[id]
	return c, ok
}

// Watch registers a listener called after every status change.
func (l *Lifecycle) Watch(fn StatusListener) {
	l.mu.Lock()
	l.listeners = append(l.listeners, fn)
	l.mu.Unlock()
}

func (l *Lifecycle) setStatus(status Status, err error) {
	l.mu.Lock()
	l.status = status
	l.lastError = err
	listeners := append([]StatusListener(nil), l.listeners...)
	l.mu.Unlock()

	l.metrics.RecordTransition(string(l.typ), status.String())
	for _, fn := range listeners {
		fn(l.self, status)
	}
}

func (l *Lifecycle) addChild(child Component) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.children[child.ID()]; exists {
		return
	}
	l.children[child.ID()] = child
	l.order = append(l.order, child.ID())
}

// invoke runs a hook, converting a panic into an error.
func (l *Lifecycle) invoke(verb string, hook func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s.%s: panic: %v", l.name, verb, r)
			l.Logger().Error("Lifecycle hook panicked",
				"verb", verb, "panic", r, "stack", string(debug.Stack()))
		}
	}()
	if hook == nil {
		return nil
	}
	return hook()
}

func (l *Lifecycle) fail(verb string, err error) {
	l.setStatus(StatusError, err)
	l.Logger().Error("Lifecycle transition failed", "verb", verb, "error", err)
}

// LifecycleInitialize runs the initialize hook. Allowed from Stopped or Error.
// Never returns an error: failures are captured in Status and LastError.
func (l *Lifecycle) LifecycleInitialize(ctx context.Context, monitor Monitor) {
	l.opMu.Lock()
	defer l.opMu.Unlock()

	if st := l.Status(); st != StatusStopped && st != StatusError {
		l.Logger().Warn("Initialize ignored", "status", st.String())
		return
	}

	monitor = orNop(monitor)
	l.setStatus(StatusInitializing, nil)

	var hook func() error
	if h, ok := l.self.(Initializer); ok {
		hook = func() error { return h.Initialize(ctx, monitor) }
	}
	if err := l.invoke("Initialize", hook); err != nil {
		l.fail("Initialize", err)
		return
	}

	l.setStatus(StatusStopped, nil)
	l.Logger().Debug("Initialized")
}

// LifecycleStart runs the start hook. Allowed from Stopped or Error. Resuming
// from Paused skips the hook. Starting an already started component is a no-op.
func (l *Lifecycle) LifecycleStart(ctx context.Context, monitor Monitor) {
	l.opMu.Lock()
	defer l.opMu.Unlock()

	switch st := l.Status(); st {
	case StatusStarted:
		l.Logger().Debug("Start ignored, already started")
		return
	case StatusPaused:
		l.resume(ctx, orNop(monitor))
		return
	case StatusStopped, StatusError:
	default:
		l.Logger().Warn("Start ignored", "status", st.String())
		return
	}

	monitor = orNop(monitor)
	l.setStatus(StatusStarting, nil)

	var hook func() error
	if h, ok := l.self.(Starter); ok {
		hook = func() error { return h.Start(ctx, monitor) }
	}
	if err := l.invoke("Start", hook); err != nil {
		l.fail("Start", err)
		return
	}

	l.setStatus(StatusStarted, nil)
	l.Logger().Info("Started")
}

// resume runs with opMu held.
func (l *Lifecycle) resume(ctx context.Context, monitor Monitor) {
	l.setStatus(StatusStarting, nil)

	var hook func() error
	if h, ok := l.self.(Resumer); ok {
		hook = func() error { return h.Resume(ctx, monitor) }
	}
	if err := l.invoke("Resume", hook); err != nil {
		l.fail("Resume", err)
		return
	}

	l.setStatus(StatusStarted, nil)
	l.Logger().Info("Resumed")
}

// LifecyclePause runs the pause hook. Only a started component can be paused.
func (l *Lifecycle) LifecyclePause(ctx context.Context, monitor Monitor) {
	l.opMu.Lock()
	defer l.opMu.Unlock()

	if st := l.Status(); st != StatusStarted {
		l.Logger().Warn("Pause ignored", "status", st.String())
		return
	}

	monitor = orNop(monitor)
	l.setStatus(StatusPausing, nil)

	var hook func() error
	if h, ok := l.self.(Pauser); ok {
		hook = func() error { return h.Pause(ctx, monitor) }
	}
	if err := l.invoke("Pause", hook); err != nil {
		l.fail("Pause", err)
		return
	}

	l.setStatus(StatusPaused, nil)
	l.Logger().Info("Paused")
}

// LifecycleStop runs the stop hook. Stopping a stopped component is a no-op; a
// component in Error is stopped so it can release whatever it acquired.
func (l *Lifecycle) LifecycleStop(ctx context.Context, monitor Monitor) {
	l.opMu.Lock()
	defer l.opMu.Unlock()

	switch st := l.Status(); st {
	case StatusStopped:
		l.Logger().Debug("Stop ignored, already stopped")
		return
	case StatusStarted, StatusPaused, StatusError:
	default:
		l.Logger().Warn("Stop ignored", "status", st.String())
		return
	}

	monitor = orNop(monitor)
	l.setStatus(StatusStopping, nil)

	var hook func() error
	if h, ok := l.self.(Stopper); ok {
		hook = func() error { return h.Stop(ctx, monitor) }
	}
	if err := l.invoke("Stop", hook); err != nil {
		l.fail("Stop", err)
		return
	}

	l.setStatus(StatusStopped, nil)
	l.Logger().Info("Stopped")
}
