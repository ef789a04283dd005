package component

import (
	"context"

	"github.com/xfyecn/sitewhere-master-sub001/errors"
)

// InitializeNested initializes child on behalf of this component. A
// tenant-aware parent hands its tenant to a tenant-aware child first. When
// required is set and the child ends in Error, a startup fault is returned for
// the caller's hook to return.
func (l *Lifecycle) InitializeNested(ctx context.Context, child Component, monitor Monitor, message string, required bool) error {
	monitor = orNop(monitor)
	propagateTenant(l.self, child)

	monitor.Begin(message)
	child.LifecycleInitialize(ctx, monitor)
	return l.checkNested(child, monitor, message, required)
}

// StartNested starts child on behalf of this component and registers it as a
// supervised child whether or not the start succeeds. A tenant-aware parent
// hands its tenant to a tenant-aware child first. When required is set and the
// child ends in Error, a startup fault is returned for the caller's start hook
// to return, which puts this component in Error as well.
func (l *Lifecycle) StartNested(ctx context.Context, child Component, monitor Monitor, message string, required bool) error {
	monitor = orNop(monitor)
	propagateTenant(l.self, child)

	monitor.Begin(message)
	child.LifecycleStart(ctx, monitor)
	l.addChild(child)
	return l.checkNested(child, monitor, message, required)
}

// StopNested stops child. Failures are recorded on the child and logged here.
func (l *Lifecycle) StopNested(ctx context.Context, child Component, monitor Monitor) {
	child.LifecycleStop(ctx, orNop(monitor))
	if child.Status() == StatusError {
		l.Logger().Warn("Nested component failed to stop",
			"child", child.Name(), "error", child.LastError())
	}
}

// PauseNested pauses child. Failures are recorded on the child and logged here.
func (l *Lifecycle) PauseNested(ctx context.Context, child Component, monitor Monitor) {
	child.LifecyclePause(ctx, orNop(monitor))
	if child.Status() == StatusError {
		l.Logger().Warn("Nested component failed to pause",
			"child", child.Name(), "error", child.LastError())
	}
}

// ResumeNested starts a paused child again. A child that is not paused is
// left alone. Required failures are reported like StartNested.
func (l *Lifecycle) ResumeNested(ctx context.Context, child Component, monitor Monitor, message string, required bool) error {
	if child.Status() != StatusPaused {
		return nil
	}
	monitor = orNop(monitor)
	monitor.Begin(message)
	child.LifecycleStart(ctx, monitor)
	return l.checkNested(child, monitor, message, required)
}

func (l *Lifecycle) checkNested(child Component, monitor Monitor, message string, required bool) error {
	if child.Status() != StatusError {
		monitor.End(message, nil)
		return nil
	}

	cause := child.LastError()
	monitor.End(message, cause)
	if required {
		return errors.NewStartupFault(child.Name(), cause)
	}
	l.Logger().Warn("Optional nested component failed",
		"child", child.Name(), "error", cause)
	return nil
}

// FindComponentsOfType searches this component and its supervised descendants
// depth-first. Children that are hierarchy roots are matched themselves but
// their subtrees are not searched.
func (l *Lifecycle) FindComponentsOfType(t Type) []Component {
	var matches []Component
	collect(l.self, t, &matches)
	return matches
}

func collect(c Component, t Type, matches *[]Component) {
	if c.Type() == t {
		*matches = append(*matches, c)
	}
	for _, child := range c.Children() {
		if child.IsHierarchyRoot() {
			if child.Type() == t {
				*matches = append(*matches, child)
			}
			continue
		}
		collect(child, t, matches)
	}
}
