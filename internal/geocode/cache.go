package geocode

import (
	"sync"
	"time"
)

// DefaultCacheTTL bounds how long resolved places are reused.
const DefaultCacheTTL = time.Hour

type cacheEntry struct {
	place     *Place
	expiresAt time.Time
}

// placeCache is an in-process TTL cache for resolved places. Expired entries
// are evicted lazily on access.
type placeCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]cacheEntry
}

func newPlaceCache(ttl time.Duration) *placeCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &placeCache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
	}
}

func (c *placeCache) get(key string) (*Place, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		delete(c.entries, key)
		return nil, false
	}

	copied := *entry.place
	return &copied, true
}

func (c *placeCache) put(key string, place *Place) {
	c.mu.Lock()
	defer c.mu.Unlock()

	copied := *place
	c.entries[key] = cacheEntry{
		place:     &copied,
		expiresAt: time.Now().Add(c.ttl),
	}
}
