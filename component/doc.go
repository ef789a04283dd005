// Package component implements the lifecycle and supervision model shared by
// every part of the device event pipeline.
//
// # Lifecycle
//
// A component embeds *Lifecycle and implements any of the hook interfaces
// (Initializer, Starter, Pauser, Resumer, Stopper):
//
//	type Receiver struct {
//	    *component.Lifecycle
//	    ...
//	}
//
//	func NewReceiver(deps component.Dependencies) *Receiver {
//	    r := &Receiver{}
//	    r.Lifecycle = component.NewLifecycle(r, component.TypeInboundReceiver, "receiver",
//	        deps.LifecycleOptions()...)
//	    return r
//	}
//
//	func (r *Receiver) Start(ctx context.Context, m component.Monitor) error { ... }
//
// The verbs LifecycleInitialize, LifecycleStart, LifecyclePause and
// LifecycleStop drive the state machine:
//
//	Stopped -> Initializing -> Stopped | Error
//	Stopped -> Starting -> Started | Error
//	Started -> Pausing -> Paused | Error
//	Paused  -> Starting -> Started | Error   (Resume hook, not Start)
//	Started, Paused -> Stopping -> Stopped | Error
//
// Verbs never return errors or panic. A failing or panicking hook leaves the
// component in StatusError with the cause in LastError.
//
// # Supervision
//
// A hook starts children with StartNested, which registers them as children of
// the caller. A required child that ends in Error makes StartNested return a
// startup fault; returning it from the hook fails the parent too.
// FindComponentsOfType walks the resulting tree, stopping at children that were
// built with AsHierarchyRoot.
//
// # Tenants
//
// Components that embed TenantScope are TenantAware. A tenant-aware parent
// assigns its tenant to tenant-aware children in InitializeNested and StartNested.
package component
