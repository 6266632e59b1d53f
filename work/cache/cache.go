package cache

import (
	"time"

	"github.com/maypok86/otter/v2"
)

// TTLCache is a bounded string-keyed cache with write-expiry and size-based
// eviction. It replaces ad-hoc map-plus-timestamp caches: eviction is amortized
// O(1) instead of scan-and-sort over all entries.
type TTLCache[V any] struct {
	inner *otter.Cache[string, V]
}

// NewTTL creates a cache holding at most maxSize entries, each expiring ttl
// after its last write.
func NewTTL[V any](maxSize int, ttl time.Duration) *TTLCache[V] {
	return &TTLCache[V]{
		inner: otter.Must(&otter.Options[string, V]{
			MaximumSize:      maxSize,
			ExpiryCalculator: otter.ExpiryWriting[string, V](ttl),
		}),
	}
}

// Get returns the live value for key, if any.
func (c *TTLCache[V]) Get(key string) (V, bool) {
	return c.inner.GetIfPresent(key)
}

// Set inserts or refreshes an entry, restarting its TTL.
func (c *TTLCache[V]) Set(key string, value V) {
	c.inner.Set(key, value)
}

// Delete removes an entry.
func (c *TTLCache[V]) Delete(key string) {
	c.inner.Invalidate(key)
}

// Purge drops all entries.
func (c *TTLCache[V]) Purge() {
	c.inner.InvalidateAll()
}

// Len returns the approximate number of live entries.
func (c *TTLCache[V]) Len() int {
	return c.inner.EstimatedSize()
}
