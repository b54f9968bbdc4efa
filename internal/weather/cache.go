package weather

import (
	"strings"
	"sync"
	"time"
)

type cacheEntry struct {
	advice  Advice
	expires time.Time
}

// adviceCache keeps advice per case-insensitive city for a fixed TTL.
type adviceCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]cacheEntry
}

func newAdviceCache(ttl time.Duration) *adviceCache {
	return &adviceCache{ttl: ttl, now: time.Now, entries: make(map[string]cacheEntry)}
}

func cacheKey(city string) string {
	return strings.ToLower(strings.TrimSpace(city))
}

func (c *adviceCache) get(city string) (Advice, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := cacheKey(city)
	e, ok := c.entries[k]
	if !ok {
		return Advice{}, false
	}
	if !c.now().Before(e.expires) {
		delete(c.entries, k)
		return Advice{}, false
	}
	return e.advice, true
}

func (c *adviceCache) put(city string, a Advice) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cacheKey(city)] = cacheEntry{advice: a, expires: c.now().Add(c.ttl)}
}
