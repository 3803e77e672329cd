package cache

import (
	"sync"
	"time"
)

// CacheItem represents an item stored in the cache, containing a value and its expiration time.
type CacheItem[T any] struct {
	Value      T
	Expiration time.Time
}

// Cache is a generic, thread-safe TTL cache that stores values with string keys.
type Cache[T any] struct {
	data map[string]CacheItem[T]
	mu   sync.RWMutex
	ttl  time.Duration
	now  func() time.Time
}

// NewCache initializes and returns a new Cache with a specified default TTL.
func NewCache[T any](ttl time.Duration) *Cache[T] {
	return &Cache[T]{
		data: make(map[string]CacheItem[T]),
		ttl:  ttl,
		now:  time.Now,
	}
}

// Get returns the value for key if it exists and has not expired.
func (c *Cache[T]) Get(key string) (T, bool) {
	c.mu.RLock()
	item, ok := c.data[key]
	c.mu.RUnlock()

	if !ok || c.now().After(item.Expiration) {
		var zero T
		return zero, false
	}
	return item.Value, true
}

// Set adds or updates a value in the cache with the default TTL.
func (c *Cache[T]) Set(key string, value T) {
	c.SetWithTTL(key, value, c.ttl)
}

// SetWithTTL adds or updates a value in the cache with a custom TTL, overriding the default.
func (c *Cache[T]) SetWithTTL(key string, value T, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data[key] = CacheItem[T]{
		Value:      value,
		Expiration: c.now().Add(ttl),
	}
}

// SetIfAbsent stores value only when key is missing or expired.
// It reports whether the value was stored.
func (c *Cache[T]) SetIfAbsent(key string, value T) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if item, ok := c.data[key]; ok && !now.After(item.Expiration) {
		return false
	}
	c.data[key] = CacheItem[T]{Value: value, Expiration: now.Add(c.ttl)}
	return true
}

// Delete removes an item from the cache by its key.
func (c *Cache[T]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
}

// Clear purges all items from the cache, making it empty.
func (c *Cache[T]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = make(map[string]CacheItem[T])
}

// Purge drops expired entries and returns how many were removed.
func (c *Cache[T]) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	n := 0
	for k, item := range c.data {
		if now.After(item.Expiration) {
			delete(c.data, k)
			n++
		}
	}
	return n
}

// Len counts stored entries, expired ones included until the next Purge.
func (c *Cache[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}
