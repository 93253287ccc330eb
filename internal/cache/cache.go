// Package cache provides an LRU cache with per-entry expiration and deterministic key derivation.
package cache

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Cache is an LRU cache whose entries may also expire.
type Cache struct {
	capacity   int
	defaultTTL time.Duration
	items      map[string]*list.Element
	lru        *list.List
	hits       uint64
	misses     uint64
	now        func() time.Time
	mu         sync.Mutex
}

type cacheEntry struct {
	key       string
	value     any
	expiresAt time.Time // zero means never
}

// Stats are cache usage counters.
type Stats struct {
	Entries int    `json:"entries"`
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
}

// New creates a cache holding at most capacity entries. defaultTTL applies when Set is
// called with a non-positive expiration; zero disables expiration.
func New(capacity int, defaultTTL time.Duration) *Cache {
	if capacity <= 0 {
		capacity = 1
	}
	return &Cache{
		capacity:   capacity,
		defaultTTL: defaultTTL,
		items:      make(map[string]*list.Element),
		lru:        list.New(),
		now:        time.Now,
	}
}

// Get returns the cached value for key if present and not expired.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		c.misses++
		return nil, false
	}
	entry := elem.Value.(*cacheEntry)
	if !entry.expiresAt.IsZero() && !c.now().Before(entry.expiresAt) {
		c.removeElement(elem)
		c.misses++
		return nil, false
	}
	c.lru.MoveToFront(elem)
	c.hits++
	return entry.value, true
}

// Get returns the cached value for key as a T. A value of another type counts as a miss.
func Get[T any](c *Cache, key string) (T, bool) {
	var zero T
	if c == nil {
		return zero, false
	}
	v, ok := c.Get(key)
	if !ok {
		return zero, false
	}
	typed, ok := v.(T)
	if !ok {
		return zero, false
	}
	return typed, true
}

// Set stores value for key, evicting the least recently used entry if at capacity.
// A non-positive expiration uses the cache default.
func (c *Cache) Set(key string, value any, expiration time.Duration) {
	if expiration <= 0 {
		expiration = c.defaultTTL
	}
	var expiresAt time.Time
	if expiration > 0 {
		expiresAt = c.now().Add(expiration)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.lru.MoveToFront(elem)
		entry := elem.Value.(*cacheEntry)
		entry.value = value
		entry.expiresAt = expiresAt
		return
	}

	elem := c.lru.PushFront(&cacheEntry{key: key, value: value, expiresAt: expiresAt})
	c.items[key] = elem

	if c.lru.Len() > c.capacity {
		if oldest := c.lru.Back(); oldest != nil {
			c.removeElement(oldest)
		}
	}
}

// Remove deletes key from the cache.
func (c *Cache) Remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[key]; ok {
		c.removeElement(elem)
	}
}

// Purge drops every entry.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element)
	c.lru.Init()
}

// Len returns the number of entries, including expired ones not yet evicted.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Stats returns usage counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Entries: c.lru.Len(), Hits: c.hits, Misses: c.misses}
}

func (c *Cache) removeElement(elem *list.Element) {
	c.lru.Remove(elem)
	delete(c.items, elem.Value.(*cacheEntry).key)
}

// Key derives a cache key from an operation name and a hash of its parameters.
// Parameters are JSON-encoded; values that cannot be encoded fall back to their %#v form.
func Key(op string, params ...any) string {
	h := sha256.New()
	for _, p := range params {
		b, err := json.Marshal(p)
		if err != nil {
			b = []byte(fmt.Sprintf("%#v", p))
		}
		h.Write(b)
		h.Write([]byte{0})
	}
	return op + ":" + hex.EncodeToString(h.Sum(nil))
}
