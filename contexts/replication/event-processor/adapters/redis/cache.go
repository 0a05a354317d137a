package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const keyPrefix = "schemabridge:dependency:"

// Cache keeps dependency facts in Redis with a TTL so both flow directions
// and every worker replica share them.
type Cache struct {
	Client goredis.UniversalClient
	TTL    time.Duration
}

func NewCache(client goredis.UniversalClient, ttl time.Duration) *Cache {
	return &Cache{Client: client, TTL: ttl}
}

func (c *Cache) IsSatisfied(ctx context.Context, key string) (bool, error) {
	err := c.Client.Get(ctx, keyPrefix+key).Err()
	if errors.Is(err, goredis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read dependency fact: %w", err)
	}
	return true, nil
}

func (c *Cache) MarkSatisfied(ctx context.Context, key string) error {
	if err := c.Client.Set(ctx, keyPrefix+key, "1", c.TTL).Err(); err != nil {
		return fmt.Errorf("write dependency fact: %w", err)
	}
	return nil
}

func (c *Cache) Forget(ctx context.Context, key string) error {
	if err := c.Client.Del(ctx, keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("drop dependency fact: %w", err)
	}
	return nil
}
