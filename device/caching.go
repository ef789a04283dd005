package device

import (
	"context"
	"time"

	"github.com/xfyecn/sitewhere-master-sub001/pkg/cache"
)

// CachingResolver fronts a Resolver with LRU caches for devices and
// specifications. Misses are not cached.
type CachingResolver struct {
	next    Resolver
	devices *cache.LRU[*Device]
	specs   *cache.LRU[*Specification]
}

var _ Resolver = (*CachingResolver)(nil)

// NewCachingResolver wraps next. Entries expire after ttl; zero keeps them
// until evicted by size.
func NewCachingResolver(next Resolver, size int, ttl time.Duration) (*CachingResolver, error) {
	devices, err := cache.NewLRU[*Device](size, cache.WithTTL[*Device](ttl))
	if err != nil {
		return nil, err
	}
	specs, err := cache.NewLRU[*Specification](size, cache.WithTTL[*Specification](ttl))
	if err != nil {
		return nil, err
	}
	return &CachingResolver{next: next, devices: devices, specs: specs}, nil
}

func (r *CachingResolver) GetDevice(ctx context.Context, hardwareID string) (*Device, error) {
	if d, ok := r.devices.Get(hardwareID); ok {
		return d, nil
	}
	d, err := r.next.GetDevice(ctx, hardwareID)
	if err != nil {
		return nil, err
	}
	_, _ = r.devices.Set(hardwareID, d)
	return d, nil
}

func (r *CachingResolver) GetSpecification(ctx context.Context, token string) (*Specification, error) {
	if s, ok := r.specs.Get(token); ok {
		return s, nil
	}
	s, err := r.next.GetSpecification(ctx, token)
	if err != nil {
		return nil, err
	}
	_, _ = r.specs.Set(token, s)
	return s, nil
}

// Invalidate drops a cached device, typically after it was re-registered.
func (r *CachingResolver) Invalidate(hardwareID string) {
	r.devices.Delete(hardwareID)
}

// Stats returns the device cache statistics.
func (r *CachingResolver) Stats() *cache.Statistics {
	return r.devices.Stats()
}
