package temporal

import (
	"strings"
	"sync"
	"time"
)

// cache is a TTL read-through cache for repository reads. Keys embed the
// operation and its arguments; a write to a record evicts that record's
// keys plus every list and count key, since any write can change their
// results.
type cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]cacheEntry
	now     func() time.Time
}

type cacheEntry struct {
	value   any
	expires time.Time
}

func newCache(ttl time.Duration) *cache {
	return &cache{
		ttl:     ttl,
		entries: map[string]cacheEntry{},
		now:     time.Now,
	}
}

func (c *cache) get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().After(entry.expires) {
		delete(c.entries, key)
		return nil, false
	}
	return entry.value, true
}

func (c *cache) set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{value: value, expires: c.now().Add(c.ttl)}
}

// invalidateRecord evicts everything a write to one record can stale:
// keys mentioning the id and all aggregate keys.
func (c *cache) invalidateRecord(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key := range c.entries {
		if strings.Contains(key, id) ||
			strings.HasPrefix(key, "list:") ||
			strings.HasPrefix(key, "count:") {
			delete(c.entries, key)
		}
	}
}

func (c *cache) invalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = map[string]cacheEntry{}
}
