package storage

import (
	"context"
	"sync"
	"time"
)

// MemoryCache is the in-process CacheRepository used when Redis is not
// configured. Keys expire lazily.
type MemoryCache struct {
	mu   sync.Mutex
	keys map[string]time.Time
	now  func() time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{keys: make(map[string]time.Time), now: time.Now}
}

func (c *MemoryCache) Reserve(_ context.Context, key string, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if exp, ok := c.keys[key]; ok && now.Before(exp) {
		return false, nil
	}
	c.keys[key] = now.Add(ttl)
	return true, nil
}

func (c *MemoryCache) Release(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.keys, key)
	return nil
}
