package sat

import (
	"strings"
	"sync"
	"time"

	"github.com/facturaIA/cfdi-normalizer-service/internal/models"
)

// DefaultCacheTTL keeps a determinate registry answer fresh for five
// minutes; the SAT does not flip a UUID's status faster than that in
// practice, and re-querying on every form keystroke gets callers throttled.
const DefaultCacheTTL = 5 * time.Minute

type cacheEntry struct {
	outcome  models.ValidationOutcome
	storedAt time.Time
}

// Cache is a composite-key, time-expiring store of prior validation
// outcomes. It is constructor-injected into the client, never a package
// global, so tests own their state. Reads and writes are serialized.
type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]cacheEntry
	now     func() time.Time
}

// NewCache creates a cache with the given TTL; zero means DefaultCacheTTL.
func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

// CacheKey normalizes the validation 4-tuple into the composite lookup key.
func CacheKey(issuerRFC, recipientRFC, total, uuid string) string {
	return strings.ToUpper(strings.Join([]string{issuerRFC, recipientRFC, total, uuid}, "|"))
}

// Get returns a live cached outcome. Expired entries are evicted lazily on
// lookup.
func (c *Cache) Get(key string) (models.ValidationOutcome, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return models.ValidationOutcome{}, false
	}
	if c.now().Sub(e.storedAt) > c.ttl {
		delete(c.entries, key)
		return models.ValidationOutcome{}, false
	}
	return e.outcome, true
}

// Put stores an outcome. Only determinate outcomes belong here; the caller
// enforces that so transient failures stay retryable.
func (c *Cache) Put(key string, outcome models.ValidationOutcome) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{outcome: outcome, storedAt: c.now()}
}

// Clear flushes every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}

// Len reports the live entry count, expired entries included until their
// next lookup.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
