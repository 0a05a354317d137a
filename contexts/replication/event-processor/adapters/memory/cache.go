package memory

import (
	"context"
	"sync"
	"time"

	"schemabridge/contexts/replication/event-processor/ports"
)

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Cache is the in-process dependency cache used when no Redis is configured.
type Cache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	clock   ports.Clock
	entries map[string]time.Time
}

func NewCache(ttl time.Duration, clock ports.Clock) *Cache {
	if clock == nil {
		clock = systemClock{}
	}
	return &Cache{
		ttl:     ttl,
		clock:   clock,
		entries: make(map[string]time.Time),
	}
}

func (c *Cache) IsSatisfied(_ context.Context, key string) (bool, error) {
	now := c.clock.Now()
	c.mu.RLock()
	expiresAt, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if !now.Before(expiresAt) {
		c.mu.Lock()
		if current, still := c.entries[key]; still && !now.Before(current) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return false, nil
	}
	return true, nil
}

func (c *Cache) MarkSatisfied(_ context.Context, key string) error {
	c.mu.Lock()
	c.entries[key] = c.clock.Now().Add(c.ttl)
	c.mu.Unlock()
	return nil
}

func (c *Cache) Forget(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	return nil
}

// Len counts entries, expired ones included until they are next read.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
