package health

import (
	"sort"
	"sync"
	"time"

	"github.com/xfyecn/sitewhere-master-sub001/component"
)

// Monitor tracks the health of the process. Component trees are evaluated
// each time they are read; other checks push their status with Update.
type Monitor struct {
	mu         sync.RWMutex
	components map[string]component.Component
	statuses   map[string]Status
}

// NewMonitor creates a new health monitor
func NewMonitor() *Monitor {
	return &Monitor{
		components: make(map[string]component.Component),
		statuses:   make(map[string]Status),
	}
}

// Track reports the tree rooted at c under name.
func (m *Monitor) Track(name string, c component.Component) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.statuses, name)
	m.components[name] = c
}

// update sets a pushed status for name, replacing any tracked component.
func (m *Monitor) update(name string, status Status) {
	m.mu.Lock()
	defer m.mu.Unlock()

	status.Component = name
	if status.Timestamp.IsZero() {
		status.Timestamp = time.Now()
	}
	delete(m.components, name)
	m.statuses[name] = status
}

// UpdateHealthy is a convenience method to update a component as healthy
func (m *Monitor) UpdateHealthy(name, message string) {
	m.update(name, NewHealthy(name, message))
}

// UpdateUnhealthy is a convenience method to update a component as unhealthy
func (m *Monitor) UpdateUnhealthy(name, message string) {
	m.update(name, NewUnhealthy(name, message))
}

// Get returns the current status for name.
func (m *Monitor) Get(name string) (Status, bool) {
	m.mu.RLock()
	c, tracked := m.components[name]
	status, pushed := m.statuses[name]
	m.mu.RUnlock()

	if tracked {
		st := FromComponent(c)
		st.Component = name
		return st, true
	}
	return status, pushed
}

// GetAll returns the current status of everything monitored, sorted by name.
func (m *Monitor) GetAll() []Status {
	out := make([]Status, 0, m.Count())
	for _, name := range m.names() {
		if st, ok := m.Get(name); ok {
			out = append(out, st)
		}
	}
	return out
}

// Remove removes a component from monitoring
func (m *Monitor) Remove(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.components, name)
	delete(m.statuses, name)
}

// AggregateHealth returns an aggregated health status for the entire system
func (m *Monitor) AggregateHealth(systemName string) Status {
	return Aggregate(systemName, m.GetAll())
}

// Count returns the number of components being monitored
func (m *Monitor) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.components) + len(m.statuses)
}

func (m *Monitor) names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.components)+len(m.statuses))
	for name := range m.components {
		names = append(names, name)
	}
	for name := range m.statuses {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
