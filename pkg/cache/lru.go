package cache

import (
	"container/list"
	"fmt"
	"sync"
	"time"

	"github.com/xfyecn/sitewhere-master-sub001/errors"
)

type lruEntry[V any] struct {
	key       string
	value     V
	expiresAt time.Time
}

// LRU evicts the least recently used entry once maxSize is exceeded.
type LRU[V any] struct {
	mu      sync.Mutex
	maxSize int
	ttl     time.Duration
	items   map[string]*list.Element
	order   *list.List
	stats   *Statistics
	evictFn EvictCallback[V]
	now     func() time.Time
}

var _ Cache[int] = (*LRU[int])(nil)

// NewLRU creates an LRU cache holding at most maxSize entries.
func NewLRU[V any](maxSize int, opts ...Option[V]) (*LRU[V], error) {
	if maxSize <= 0 {
		return nil, errors.WrapInvalid(fmt.Errorf("max size %d", maxSize), "cache", "NewLRU", "size validation")
	}

	c := &LRU[V]{
		maxSize: maxSize,
		items:   make(map[string]*list.Element),
		order:   list.New(),
		stats:   NewStatistics(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Get retrieves a value by key and marks it as recently used.
func (c *LRU[V]) Get(key string) (V, bool) {
	var zero V

	c.mu.Lock()
	element, exists := c.items[key]
	if !exists {
		c.mu.Unlock()
		c.stats.Miss()
		return zero, false
	}

	entry := element.Value.(*lruEntry[V])
	if c.expired(entry) {
		c.removeElement(element)
		c.stats.UpdateSize(int64(len(c.items)))
		c.mu.Unlock()

		c.stats.Eviction()
		c.stats.Miss()
		if c.evictFn != nil {
			c.evictFn(entry.key, entry.value)
		}
		return zero, false
	}

	c.order.MoveToFront(element)
	value := entry.value
	c.mu.Unlock()

	c.stats.Hit()
	return value, true
}

// Set stores a value with the given key and marks it as recently used.
func (c *LRU[V]) Set(key string, value V) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	var evicted *lruEntry[V]

	c.mu.Lock()
	expiresAt := c.expiry()
	if element, exists := c.items[key]; exists {
		entry := element.Value.(*lruEntry[V])
		entry.value = value
		entry.expiresAt = expiresAt
		c.order.MoveToFront(element)
		c.mu.Unlock()

		c.stats.Set()
		return false, nil
	}

	c.items[key] = c.order.PushFront(&lruEntry[V]{key: key, value: value, expiresAt: expiresAt})
	if len(c.items) > c.maxSize {
		if back := c.order.Back(); back != nil {
			evicted = back.Value.(*lruEntry[V])
			c.removeElement(back)
		}
	}
	c.stats.UpdateSize(int64(len(c.items)))
	c.mu.Unlock()

	c.stats.Set()
	if evicted != nil {
		c.stats.Eviction()
		if c.evictFn != nil {
			c.evictFn(evicted.key, evicted.value)
		}
	}
	return true, nil
}

// Delete removes an entry by key.
func (c *LRU[V]) Delete(key string) bool {
	c.mu.Lock()
	element, exists := c.items[key]
	if !exists {
		c.mu.Unlock()
		return false
	}
	c.removeElement(element)
	c.stats.UpdateSize(int64(len(c.items)))
	c.mu.Unlock()

	c.stats.Delete()
	return true
}

// Clear removes all entries without invoking the evict callback.
func (c *LRU[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*list.Element)
	c.order.Init()
	c.stats.UpdateSize(0)
}

// Size returns the number of entries.
func (c *LRU[V]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Stats returns cache statistics.
func (c *LRU[V]) Stats() *Statistics {
	return c.stats
}

func (c *LRU[V]) expiry() time.Time {
	if c.ttl <= 0 {
		return time.Time{}
	}
	return c.now().Add(c.ttl)
}

func (c *LRU[V]) expired(e *lruEntry[V]) bool {
	return !e.expiresAt.IsZero() && c.now().After(e.expiresAt)
}

// removeElement must be called with mu held.
func (c *LRU[V]) removeElement(element *list.Element) {
	entry := element.Value.(*lruEntry[V])
	delete(c.items, entry.key)
	c.order.Remove(element)
}
