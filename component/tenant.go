package component

import "sync"

// Tenant identifies the tenant a component hierarchy works for.
type Tenant struct {
	ID    string `json:"id" yaml:"id"`
	Token string `json:"token" yaml:"token"`
	Name  string `json:"name" yaml:"name"`
}

// TenantAware is implemented by components scoped to a tenant. A tenant-aware
// parent hands its tenant to tenant-aware children before initializing or
// starting them.
type TenantAware interface {
	Tenant() *Tenant
	SetTenant(*Tenant)
}

// TenantScope is embedded by components to become TenantAware.
type TenantScope struct {
	mu     sync.RWMutex
	tenant *Tenant
}

// Tenant returns the tenant, or nil before one is assigned.
func (s *TenantScope) Tenant() *Tenant {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tenant
}

// SetTenant assigns the tenant.
func (s *TenantScope) SetTenant(t *Tenant) {
	s.mu.Lock()
	s.tenant = t
	s.mu.Unlock()
}

// TenantOf returns the tenant of c, or nil when c is not tenant-aware or has no
// tenant yet.
func TenantOf(c any) *Tenant {
	if ta, ok := c.(TenantAware); ok {
		return ta.Tenant()
	}
	return nil
}

// TenantID returns the tenant id of c, or "" when there is none.
func TenantID(c any) string {
	if t := TenantOf(c); t != nil {
		return t.ID
	}
	return ""
}

func propagateTenant(parent, child any) {
	t := TenantOf(parent)
	if t == nil {
		return
	}
	if ta, ok := child.(TenantAware); ok {
		ta.SetTenant(t)
	}
}
