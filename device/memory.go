package device

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/xfyecn/sitewhere-master-sub001/errors"
)

// MemoryStore is an in-process Registry, used for statically configured
// devices and in tests.
type MemoryStore struct {
	mu       sync.RWMutex
	devices  map[string]*Device
	specs    map[string]*Specification
	lookups  int
	failWith error
}

var _ Registry = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		devices: make(map[string]*Device),
		specs:   make(map[string]*Specification),
	}
}

// AddSpecification stores a specification.
func (s *MemoryStore) AddSpecification(spec *Specification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.specs[spec.Token] = spec
}

// RegisterDevice stores or replaces a device. Missing assignment tokens and
// creation times are filled in.
func (s *MemoryStore) RegisterDevice(_ context.Context, d *Device) error {
	if d == nil || d.HardwareID == "" {
		return errors.WrapInvalid(fmt.Errorf("hardware id required"), "MemoryStore", "RegisterDevice", "device validation")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *d
	if stored.AssignmentToken == "" {
		stored.AssignmentToken = uuid.NewString()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	s.devices[d.HardwareID] = &stored
	return nil
}

// GetDevice returns a copy of the device.
func (s *MemoryStore) GetDevice(_ context.Context, hardwareID string) (*Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lookups++
	if s.failWith != nil {
		return nil, s.failWith
	}
	d, ok := s.devices[hardwareID]
	if !ok {
		return nil, ErrDeviceNotFound
	}
	out := *d
	return &out, nil
}

// GetSpecification returns a copy of the specification.
func (s *MemoryStore) GetSpecification(_ context.Context, token string) (*Specification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.failWith != nil {
		return nil, s.failWith
	}
	spec, ok := s.specs[token]
	if !ok {
		return nil, ErrSpecificationNotFound
	}
	out := *spec
	return &out, nil
}

// FailWith makes every lookup return err until called with nil.
func (s *MemoryStore) FailWith(err error) {
	s.mu.Lock()
	s.failWith = err
	s.mu.Unlock()
}

// DeviceLookups returns the number of GetDevice calls served.
func (s *MemoryStore) DeviceLookups() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lookups
}
