// Package cache provides a generic, thread-safe LRU cache with optional
// per-entry expiry, used to keep device identity lookups off the database
// on the hot decode path.
package cache

import (
	"fmt"
	"time"

	"github.com/xfyecn/sitewhere-master-sub001/errors"
)

// Cache represents a generic cache keyed by string.
type Cache[V any] interface {
	// Get retrieves a value by key. Expired entries are reported as missing.
	Get(key string) (V, bool)

	// Set stores a value. Returns true if a new entry was created.
	Set(key string, value V) (bool, error)

	// Delete removes an entry. Returns true if the key existed.
	Delete(key string) bool

	// Clear removes all entries.
	Clear()

	// Size returns the current number of entries, including expired ones not yet reclaimed.
	Size() int

	// Stats returns the always-on statistics.
	Stats() *Statistics
}

// EvictCallback is called when an entry leaves the cache through capacity
// pressure or expiry.
type EvictCallback[V any] func(key string, value V)

// Option configures an LRU cache.
type Option[V any] func(*LRU[V])

// WithTTL expires entries ttl after they were last set. Zero disables expiry.
func WithTTL[V any](ttl time.Duration) Option[V] {
	return func(c *LRU[V]) {
		c.ttl = ttl
	}
}

// WithEvictCallback registers a callback for evicted entries.
func WithEvictCallback[V any](fn EvictCallback[V]) Option[V] {
	return func(c *LRU[V]) {
		c.evictFn = fn
	}
}

// withClock overrides the time source in tests.
func withClock[V any](now func() time.Time) Option[V] {
	return func(c *LRU[V]) {
		c.now = now
	}
}

func validateKey(key string) error {
	if key == "" {
		return errors.WrapInvalid(fmt.Errorf("empty key"), "cache", "Set", "key validation")
	}
	return nil
}
