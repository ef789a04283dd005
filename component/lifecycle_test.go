package component

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pipeerrors "github.com/xfyecn/sitewhere-master-sub001/errors"
	"github.com/xfyecn/sitewhere-master-sub001/metric"
)

type nested struct {
	child    Component
	required bool
}

// fake is a configurable component used to drive the state machine.
type fake struct {
	*Lifecycle
	TenantScope

	initErr  error
	startErr error
	stopErr  error
	panicIn  string
	nested   []nested

	mu    sync.Mutex
	calls []string
}

func newFake(typ Type, name string, opts ...Option) *fake {
	p := &fake{}
	p.Lifecycle = NewLifecycle(p, typ, name, opts...)
	return p
}

func (p *fake) record(call string) {
	p.mu.Lock()
	p.calls = append(p.calls, call)
	p.mu.Unlock()
}

func (p *fake) Initialize(context.Context, Monitor) error {
	p.record("initialize")
	if p.panicIn == "initialize" {
		panic("initialize exploded")
	}
	return p.initErr
}

func (p *fake) Start(ctx context.Context, m Monitor) error {
	p.record("start")
	if p.panicIn == "start" {
		panic("start exploded")
	}
	for _, n := range p.nested {
		if err := p.StartNested(ctx, n.child, m, "Start "+n.child.Name(), n.required); err != nil {
			return err
		}
	}
	return p.startErr
}

func (p *fake) Pause(context.Context, Monitor) error {
	p.record("pause")
	return nil
}

func (p *fake) Stop(ctx context.Context, m Monitor) error {
	p.record("stop")
	for _, c := range p.Children() {
		p.StopNested(ctx, c, m)
	}
	return p.stopErr
}

func watch(c *fake) *[]Status {
	var seen []Status
	var mu sync.Mutex
	c.Watch(func(_ Component, s Status) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	})
	return &seen
}

func TestLifecycle_Identity(t *testing.T) {
	p := newFake(TypeEventSource, "source")

	assert.Equal(t, TypeEventSource, p.Type())
	assert.Equal(t, "source", p.Name())
	assert.NotEqual(t, p.ID(), newFake(TypeEventSource, "source").ID())
	assert.False(t, p.CreatedAt().IsZero())
	assert.Equal(t, StatusStopped, p.Status())
	assert.False(t, p.IsHierarchyRoot())
	assert.True(t, newFake(TypeTenantEngine, "t", AsHierarchyRoot()).IsHierarchyRoot())
}

func TestLifecycle_TransitionSequence(t *testing.T) {
	ctx := context.Background()
	p := newFake(TypeOther, "fake")
	seen := watch(p)

	p.LifecycleInitialize(ctx, nil)
	p.LifecycleStart(ctx, nil)
	p.LifecycleStop(ctx, nil)

	assert.Equal(t, []Status{
		StatusInitializing, StatusStopped,
		StatusStarting, StatusStarted,
		StatusStopping, StatusStopped,
	}, *seen)
	assert.Equal(t, []string{"initialize", "start", "stop"}, p.calls)
}

func TestLifecycle_HookErrorsAreCaptured(t *testing.T) {
	tests := []struct {
		name  string
		setup func(p *fake)
		drive func(ctx context.Context, p *fake)
		msg   string
	}{
		{
			name:  "initialize error",
			setup: func(p *fake) { p.initErr = errors.New("bad config") },
			drive: func(ctx context.Context, p *fake) { p.LifecycleInitialize(ctx, nil) },
			msg:   "bad config",
		},
		{
			name:  "start error",
			setup: func(p *fake) { p.startErr = errors.New("bind failed") },
			drive: func(ctx context.Context, p *fake) { p.LifecycleStart(ctx, nil) },
			msg:   "bind failed",
		},
		{
			name:  "start panic",
			setup: func(p *fake) { p.panicIn = "start" },
			drive: func(ctx context.Context, p *fake) { p.LifecycleStart(ctx, nil) },
			msg:   "start exploded",
		},
		{
			name:  "initialize panic",
			setup: func(p *fake) { p.panicIn = "initialize" },
			drive: func(ctx context.Context, p *fake) { p.LifecycleInitialize(ctx, nil) },
			msg:   "initialize exploded",
		},
		{
			name:  "stop error",
			setup: func(p *fake) { p.stopErr = errors.New("close failed") },
			drive: func(ctx context.Context, p *fake) {
				p.LifecycleStart(ctx, nil)
				p.LifecycleStop(ctx, nil)
			},
			msg: "close failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newFake(TypeOther, "fake")
			tt.setup(p)

			assert.NotPanics(t, func() { tt.drive(context.Background(), p) })
			assert.Equal(t, StatusError, p.Status())
			require.Error(t, p.LastError())
			assert.Contains(t, p.LastError().Error(), tt.msg)
		})
	}
}

func TestLifecycle_RecoverFromError(t *testing.T) {
	ctx := context.Background()
	p := newFake(TypeOther, "fake")
	p.startErr = errors.New("first start fails")

	p.LifecycleStart(ctx, nil)
	require.Equal(t, StatusError, p.Status())

	p.startErr = nil
	p.LifecycleStart(ctx, nil)
	assert.Equal(t, StatusStarted, p.Status())
	assert.NoError(t, p.LastError())
}

func TestLifecycle_StopFromError(t *testing.T) {
	ctx := context.Background()
	p := newFake(TypeOther, "fake")
	p.startErr = errors.New("half started")

	p.LifecycleStart(ctx, nil)
	p.LifecycleStop(ctx, nil)

	assert.Equal(t, StatusStopped, p.Status())
	assert.Equal(t, []string{"start", "stop"}, p.calls)
}

func TestLifecycle_PauseAndResume(t *testing.T) {
	ctx := context.Background()
	p := newFake(TypeOther, "fake")
	seen := watch(p)

	p.LifecyclePause(ctx, nil)
	assert.Equal(t, StatusStopped, p.Status(), "pause requires a started component")

	p.LifecycleStart(ctx, nil)
	p.LifecyclePause(ctx, nil)
	require.Equal(t, StatusPaused, p.Status())

	p.LifecycleStart(ctx, nil)
	assert.Equal(t, StatusStarted, p.Status())
	assert.Equal(t, []string{"start", "pause"}, p.calls, "resume skips the start hook")
	assert.Equal(t, []Status{
		StatusStarting, StatusStarted,
		StatusPausing, StatusPaused,
		StatusStarting, StatusStarted,
	}, *seen)
}

// resumable adds a resume hook to fake.
type resumable struct {
	*fake
	resumeErr error
}

func newResumable(name string) *resumable {
	r := &resumable{fake: &fake{}}
	r.Lifecycle = NewLifecycle(r, TypeOther, name)
	return r
}

func (r *resumable) Resume(context.Context, Monitor) error {
	r.record("resume")
	return r.resumeErr
}

func TestLifecycle_ResumeHook(t *testing.T) {
	ctx := context.Background()
	r := newResumable("resumable")

	r.LifecycleStart(ctx, nil)
	r.LifecyclePause(ctx, nil)
	r.LifecycleStart(ctx, nil)
	assert.Equal(t, StatusStarted, r.Status())
	assert.Equal(t, []string{"start", "pause", "resume"}, r.calls)

	r.LifecyclePause(ctx, nil)
	r.resumeErr = errors.New("queue gone")
	r.LifecycleStart(ctx, nil)
	assert.Equal(t, StatusError, r.Status())
	assert.ErrorContains(t, r.LastError(), "queue gone")
}

func TestPauseNested_ResumeNested(t *testing.T) {
	ctx := context.Background()
	child := newResumable("receiver")
	parent := newFake(TypeEventSource, "source")
	parent.nested = []nested{{child: child, required: true}}
	parent.LifecycleStart(ctx, nil)
	require.Equal(t, StatusStarted, child.Status())

	parent.PauseNested(ctx, child, nil)
	assert.Equal(t, StatusPaused, child.Status())

	monitor := &recordingMonitor{}
	require.NoError(t, parent.ResumeNested(ctx, child, monitor, "Resume receiver", true))
	assert.Equal(t, StatusStarted, child.Status())
	assert.Equal(t, []string{"start", "pause", "resume"}, child.calls)
	assert.Equal(t, []string{"begin:Resume receiver", "end:Resume receiver"}, monitor.events)

	require.NoError(t, parent.ResumeNested(ctx, child, nil, "Resume receiver", true), "a running child is left alone")
	assert.Len(t, child.calls, 3)

	parent.PauseNested(ctx, child, nil)
	child.resumeErr = errors.New("broker unreachable")
	err := parent.ResumeNested(ctx, child, nil, "Resume receiver", true)
	assert.ErrorIs(t, err, pipeerrors.ErrStartupFault)
	assert.Equal(t, StatusError, child.Status())
}

func TestLifecycle_StopWhenStoppedIsNoop(t *testing.T) {
	p := newFake(TypeOther, "fake")
	p.LifecycleStop(context.Background(), nil)

	assert.Equal(t, StatusStopped, p.Status())
	assert.Empty(t, p.calls)
}

func TestLifecycle_RecordsTransitionMetrics(t *testing.T) {
	m := metric.NewMetrics()
	p := newFake(TypeDecoder, "decoder", WithMetrics(m))

	p.LifecycleStart(context.Background(), nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.LifecycleTransitions.WithLabelValues("device-event-decoder", "started")))
}

func TestStartNested_RequiredFailureFailsParent(t *testing.T) {
	ctx := context.Background()
	child := newFake(TypeInboundReceiver, "receiver")
	child.startErr = errors.New("address in use")

	parent := newFake(TypeEventSource, "source")
	parent.nested = []nested{{child: child, required: true}}

	parent.LifecycleStart(ctx, nil)

	assert.Equal(t, StatusError, child.Status())
	assert.Equal(t, StatusError, parent.Status())
	assert.ErrorIs(t, parent.LastError(), pipeerrors.ErrStartupFault)
	assert.Contains(t, parent.LastError().Error(), "address in use")

	registered, ok := parent.Child(child.ID())
	require.True(t, ok, "failed child is still registered")
	assert.Same(t, child, registered)
}

func TestStartNested_OptionalFailureKeepsParentRunning(t *testing.T) {
	ctx := context.Background()
	child := newFake(TypeInboundReceiver, "receiver")
	child.startErr = errors.New("broker unreachable")

	parent := newFake(TypeEventSource, "source")
	parent.nested = []nested{{child: child, required: false}}

	parent.LifecycleStart(ctx, nil)

	assert.Equal(t, StatusError, child.Status())
	assert.Equal(t, StatusStarted, parent.Status())
	assert.Len(t, parent.Children(), 1)
}

func TestStartNested_AbortsRemainingChildren(t *testing.T) {
	ctx := context.Background()
	first := newFake(TypeInboundReceiver, "first")
	first.startErr = errors.New("boom")
	second := newFake(TypeInboundReceiver, "second")

	parent := newFake(TypeEventSource, "source")
	parent.nested = []nested{{child: first, required: true}, {child: second, required: true}}

	parent.LifecycleStart(ctx, nil)

	assert.Equal(t, StatusError, parent.Status())
	assert.Equal(t, StatusStopped, second.Status())
	assert.Len(t, parent.Children(), 1)
}

type recordingMonitor struct {
	mu     sync.Mutex
	events []string
}

func (m *recordingMonitor) Begin(task string) {
	m.mu.Lock()
	m.events = append(m.events, "begin:"+task)
	m.mu.Unlock()
}

func (m *recordingMonitor) End(task string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.events = append(m.events, "fail:"+task)
		return
	}
	m.events = append(m.events, "end:"+task)
}

func TestStartNested_ReportsProgress(t *testing.T) {
	ok := newFake(TypeDecoder, "decoder")
	bad := newFake(TypeInboundReceiver, "receiver")
	bad.startErr = errors.New("nope")

	parent := newFake(TypeEventSource, "source")
	parent.nested = []nested{{child: ok, required: true}, {child: bad, required: false}}

	m := &recordingMonitor{}
	parent.LifecycleStart(context.Background(), m)

	assert.Equal(t, []string{
		"begin:Start decoder", "end:Start decoder",
		"begin:Start receiver", "fail:Start receiver",
	}, m.events)
}

func TestStopNested_StopsChildren(t *testing.T) {
	ctx := context.Background()
	child := newFake(TypeDecoder, "decoder")
	parent := newFake(TypeEventSource, "source")
	parent.nested = []nested{{child: child, required: true}}

	parent.LifecycleStart(ctx, nil)
	require.Equal(t, StatusStarted, child.Status())

	parent.LifecycleStop(ctx, nil)
	assert.Equal(t, StatusStopped, child.Status())
	assert.Equal(t, StatusStopped, parent.Status())
}

func TestFindComponentsOfType(t *testing.T) {
	ctx := context.Background()

	// server -> tenantA(root) -> source -> receiver
	//        -> receiverTop
	receiver := newFake(TypeInboundReceiver, "nested-receiver")
	source := newFake(TypeEventSource, "source")
	source.nested = []nested{{child: receiver, required: true}}
	tenant := newFake(TypeTenantEngine, "tenant-a", AsHierarchyRoot())
	tenant.nested = []nested{{child: source, required: true}}
	top := newFake(TypeInboundReceiver, "top-receiver")
	server := newFake(TypeServer, "server")
	server.nested = []nested{{child: tenant, required: true}, {child: top, required: true}}

	server.LifecycleStart(ctx, nil)
	require.Equal(t, StatusStarted, server.Status())

	receivers := server.FindComponentsOfType(TypeInboundReceiver)
	require.Len(t, receivers, 1, "root subtree is not searched from above")
	assert.Equal(t, "top-receiver", receivers[0].Name())

	tenants := server.FindComponentsOfType(TypeTenantEngine)
	require.Len(t, tenants, 1, "a root is still matched itself")

	fromRoot := tenant.FindComponentsOfType(TypeInboundReceiver)
	require.Len(t, fromRoot, 1)
	assert.Equal(t, "nested-receiver", fromRoot[0].Name())

	self := source.FindComponentsOfType(TypeEventSource)
	require.Len(t, self, 1)
	assert.Same(t, source, self[0])

	assert.Empty(t, server.FindComponentsOfType(TypeDataStore))
}

func TestStatus_String(t *testing.T) {
	tests := map[Status]string{
		StatusStopped:      "stopped",
		StatusInitializing: "initializing",
		StatusStarting:     "starting",
		StatusStarted:      "started",
		StatusPausing:      "pausing",
		StatusPaused:       "paused",
		StatusStopping:     "stopping",
		StatusError:        "error",
		Status(99):         "unknown",
	}
	for s, want := range tests {
		assert.Equal(t, want, s.String())
	}
}

func TestStandardLifecycle_Probe(t *testing.T) {
	StandardLifecycleTests(t, func(*testing.T) Component {
		return newFake(TypeOther, "fake")
	})
}
