package tenant

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xfyecn/sitewhere-master-sub001/component"
	"github.com/xfyecn/sitewhere-master-sub001/decoder"
	pipeerrors "github.com/xfyecn/sitewhere-master-sub001/errors"
	"github.com/xfyecn/sitewhere-master-sub001/event"
	"github.com/xfyecn/sitewhere-master-sub001/processor/inbound"
	"github.com/xfyecn/sitewhere-master-sub001/processor/outbound"
	"github.com/xfyecn/sitewhere-master-sub001/receiver/queue"
	"github.com/xfyecn/sitewhere-master-sub001/source"
)

type journal struct {
	mu      sync.Mutex
	entries []string
}

type watchable interface {
	Watch(fn component.StatusListener)
}

func (j *journal) watch(c watchable) {
	c.Watch(func(c component.Component, s component.Status) {
		if s != component.StatusStarted && s != component.StatusStopped {
			return
		}
		j.mu.Lock()
		j.entries = append(j.entries, s.String()+":"+c.Name())
		j.mu.Unlock()
	})
}

func (j *journal) list() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

type fakePart struct {
	*component.Lifecycle
	component.TenantScope
	fail error
}

func newFakePart(typ component.Type, name string) *fakePart {
	p := &fakePart{}
	p.Lifecycle = component.NewLifecycle(p, typ, name)
	return p
}

func (p *fakePart) Start(context.Context, component.Monitor) error { return p.fail }

type fixture struct {
	engine  *Engine
	store   *fakePart
	source  *fakePart
	journal *journal
}

func newFixture() *fixture {
	j := &journal{}
	store := newFakePart(component.TypeDataStore, "store")
	source := newFakePart(component.TypeEventSource, "source")
	out := outbound.NewChain(component.Dependencies{})
	in := inbound.NewChain(component.Dependencies{})
	for _, c := range []watchable{store, source, out, in} {
		j.watch(c)
	}

	e := New(component.Dependencies{}, component.Tenant{ID: "acme", Token: "acme-token"}, Parts{
		Stores:   []component.Component{store},
		Outbound: out,
		Inbound:  in,
		Sources:  []component.Component{source},
	})
	return &fixture{engine: e, store: store, source: source, journal: j}
}

func TestEngine_StartStopOrder(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.engine.LifecycleStart(ctx, nil)
	require.Equal(t, component.StatusStarted, f.engine.Status(), "start failed: %v", f.engine.LastError())

	f.engine.LifecycleStop(ctx, nil)
	require.Equal(t, component.StatusStopped, f.engine.Status())

	assert.Equal(t, []string{
		"started:store",
		"started:outbound-processor-chain",
		"started:inbound-processor-chain",
		"started:source",
		"stopped:source",
		"stopped:inbound-processor-chain",
		"stopped:outbound-processor-chain",
		"stopped:store",
	}, f.journal.list())
}

func TestEngine_PropagatesTenant(t *testing.T) {
	f := newFixture()
	f.engine.LifecycleStart(context.Background(), nil)
	defer f.engine.LifecycleStop(context.Background(), nil)

	assert.Equal(t, "acme", f.engine.TenantID())
	assert.Equal(t, "acme", component.TenantID(f.store))
	assert.Equal(t, "acme", component.TenantID(f.source))
	assert.Equal(t, "acme", component.TenantID(f.engine.Inbound()))
	assert.Equal(t, "acme-token", component.TenantOf(f.engine.Outbound()).Token)
}

func TestEngine_StoreFailureAbortsStart(t *testing.T) {
	f := newFixture()
	f.store.fail = errors.New("database unreachable")

	f.engine.LifecycleStart(context.Background(), nil)

	require.Equal(t, component.StatusError, f.engine.Status())
	assert.ErrorIs(t, f.engine.LastError(), pipeerrors.ErrStartupFault)
	assert.Equal(t, component.StatusStopped, f.source.Status(), "sources must not start after a store failure")
	assert.Equal(t, component.StatusStopped, f.engine.Outbound().Status())
}

func TestEngine_HierarchyRoot(t *testing.T) {
	f := newFixture()
	f.engine.LifecycleStart(context.Background(), nil)
	defer f.engine.LifecycleStop(context.Background(), nil)

	assert.True(t, f.engine.IsHierarchyRoot())
	found := f.engine.FindComponentsOfType(component.TypeEventSource)
	require.Len(t, found, 1)
	assert.Same(t, f.source, found[0])
	assert.Len(t, f.engine.Sources(), 1)
}

func TestEngine_RequiresChains(t *testing.T) {
	e := New(component.Dependencies{}, component.Tenant{ID: "acme"}, Parts{})
	e.LifecycleStart(context.Background(), nil)

	require.Equal(t, component.StatusError, e.Status())
	assert.ErrorIs(t, e.LastError(), pipeerrors.ErrMissingConfig)
}

func TestEngine_StandardLifecycle(t *testing.T) {
	component.StandardLifecycleTests(t, func(*testing.T) component.Component {
		return newFixture().engine
	})
}

type countingDispatcher struct {
	mu sync.Mutex
	n  int
}

func (d *countingDispatcher) Dispatch(context.Context, *event.DecodedRequest) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.n++
	return nil
}

func (d *countingDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.n
}

func TestEngine_PauseStopsProcessing(t *testing.T) {
	ctx := context.Background()
	deps := component.Dependencies{}
	mem := queue.NewMemorySource[[]byte](10)
	recv := queue.New[[]byte](deps, "memory-queue", mem)
	out := &countingDispatcher{}
	src := source.New[[]byte](deps, "json", decoder.NewJSONDecoder(deps), out, recv)

	e := New(deps, component.Tenant{ID: "acme"}, Parts{
		Outbound: outbound.NewChain(deps),
		Inbound:  inbound.NewChain(deps),
		Sources:  []component.Component{src},
	})
	e.LifecycleStart(ctx, nil)
	require.Equal(t, component.StatusStarted, e.Status(), "start failed: %v", e.LastError())
	defer e.LifecycleStop(ctx, nil)

	payload := []byte(`{"hardwareId":"dev-1","type":"measurements","request":{"measurements":{"t":1}}}`)
	require.NoError(t, mem.Put(ctx, payload, nil))
	require.Eventually(t, func() bool { return out.count() == 1 }, 2*time.Second, 5*time.Millisecond)

	e.LifecyclePause(ctx, nil)
	require.Equal(t, component.StatusPaused, e.Status())
	assert.Equal(t, component.StatusPaused, src.Status())
	assert.Equal(t, component.StatusPaused, recv.Status())

	err := src.OnEncodedEventReceived(ctx, "socket", payload, nil)
	assert.ErrorIs(t, err, source.ErrPaused)
	require.NoError(t, mem.Put(ctx, payload, nil))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, out.count(), "nothing is processed while paused")

	e.LifecycleStart(ctx, nil)
	require.Equal(t, component.StatusStarted, e.Status(), "resume failed: %v", e.LastError())
	assert.Equal(t, component.StatusStarted, recv.Status())
	require.Eventually(t, func() bool { return out.count() == 2 }, 2*time.Second, 5*time.Millisecond)
}
