package websearch

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/sedanonpc/agent-daredevil-telegram-bot-sub000/internal/domain/entity"
)

// Cache holds recent search results so repeated questions within the TTL
// skip the provider round-trip. Only real results are cached; synthetic
// suggestions are not.
type Cache struct {
	entries map[string]*cacheEntry
	mu      sync.RWMutex
	ttl     time.Duration
	maxSize int
}

type cacheEntry struct {
	results   []entity.WebResult
	createdAt time.Time
}

// NewCache creates a cache with the given TTL and max entries.
func NewCache(ttl time.Duration, maxSize int) *Cache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if maxSize <= 0 {
		maxSize = 256
	}
	return &Cache{
		entries: make(map[string]*cacheEntry, maxSize),
		ttl:     ttl,
		maxSize: maxSize,
	}
}

// Get returns cached results if present and not expired.
func (c *Cache) Get(query string, n int) ([]entity.WebResult, bool) {
	key := makeKey(query, n)

	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}
	if time.Since(entry.createdAt) > c.ttl {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, false
	}

	out := make([]entity.WebResult, len(entry.results))
	copy(out, entry.results)
	return out, true
}

// Put stores search results.
func (c *Cache) Put(query string, n int, results []entity.WebResult) {
	key := makeKey(query, n)

	stored := make([]entity.WebResult, len(results))
	copy(stored, results)

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= c.maxSize {
		c.evictOldest()
	}
	c.entries[key] = &cacheEntry{results: stored, createdAt: time.Now()}
}

// Clear empties the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*cacheEntry, c.maxSize)
}

// Size returns the number of entries.
func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func makeKey(query string, n int) string {
	h := sha256.New()
	h.Write([]byte(query))
	h.Write([]byte{0})
	h.Write([]byte(fmt.Sprintf("%d", n)))
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// evictOldest removes the oldest entry. Called with the lock held.
func (c *Cache) evictOldest() {
	var oldestKey string
	var oldestTime time.Time

	for k, v := range c.entries {
		if oldestKey == "" || v.createdAt.Before(oldestTime) {
			oldestKey = k
			oldestTime = v.createdAt
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}
