package redis

import (
	"context"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func TestCacheSurfacesConnectionErrors(t *testing.T) {
	client := goredis.NewClient(&goredis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()
	cache := NewCache(client, time.Minute)

	ok, err := cache.IsSatisfied(context.Background(), "CUSTOMER:60")
	assert.Error(t, err)
	assert.False(t, ok)
	assert.Error(t, cache.MarkSatisfied(context.Background(), "CUSTOMER:60"))
	assert.Error(t, cache.Forget(context.Background(), "CUSTOMER:60"))
}
