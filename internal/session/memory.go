package session

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	session   *Session
	expiresAt time.Time
}

type memoryCache struct {
	now func() time.Time

	mu      sync.Mutex
	entries map[string]memoryEntry
}

// NewMemory returns a single-process cache. Expired entries are purged
// lazily on access so the map does not grow unboundedly over normal
// operation.
func NewMemory() Cache {
	return &memoryCache{now: time.Now, entries: make(map[string]memoryEntry)}
}

func (c *memoryCache) Get(_ context.Context, token string) (*Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for key, entry := range c.entries {
		if !entry.expiresAt.After(now) {
			delete(c.entries, key)
		}
	}

	entry, ok := c.entries[token]
	if !ok {
		return nil, nil
	}
	return clone(entry.session), nil
}

func (c *memoryCache) Put(_ context.Context, token string, s *Session, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[token] = memoryEntry{session: clone(s), expiresAt: c.now().Add(ttl)}
	return nil
}

func (c *memoryCache) Evict(_ context.Context, token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, token)
	return nil
}

func (c *memoryCache) Close(context.Context) error {
	return nil
}
