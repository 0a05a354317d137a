package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func TestCacheExpiresEntries(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	cache := NewCache(time.Minute, clock)
	ctx := context.Background()

	ok, err := cache.IsSatisfied(ctx, "CUSTOMER:60")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cache.MarkSatisfied(ctx, "CUSTOMER:60"))
	ok, _ = cache.IsSatisfied(ctx, "CUSTOMER:60")
	assert.True(t, ok)

	clock.now = clock.now.Add(59 * time.Second)
	ok, _ = cache.IsSatisfied(ctx, "CUSTOMER:60")
	assert.True(t, ok)

	clock.now = clock.now.Add(time.Second)
	ok, _ = cache.IsSatisfied(ctx, "CUSTOMER:60")
	assert.False(t, ok)
	assert.Equal(t, 0, cache.Len())
}

func TestCacheForget(t *testing.T) {
	cache := NewCache(time.Minute, nil)
	ctx := context.Background()

	require.NoError(t, cache.MarkSatisfied(ctx, "INVOICE:414"))
	require.NoError(t, cache.Forget(ctx, "INVOICE:414"))
	ok, err := cache.IsSatisfied(ctx, "INVOICE:414")
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, cache.Forget(ctx, "INVOICE:414"))
}

func TestSourceDeliversInOrderAndRecordsCommits(t *testing.T) {
	source := NewSource()
	source.Publish("old.public.customer_outbox", []byte("a"))
	source.Publish("old.public.invoice_outbox", []byte("b"))
	ctx := context.Background()

	first, ok, err := source.Poll(ctx, 10*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)
	second, ok, err := source.Poll(ctx, 10*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a", string(first.Value))
	assert.Equal(t, int64(1), second.Offset)

	_, ok, err = source.Poll(ctx, 5*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, source.Commit(ctx, first, second))
	assert.Len(t, source.Committed(), 2)
	assert.Equal(t, 0, source.Pending())
}

func TestSourceWakesOnPublish(t *testing.T) {
	source := NewSource()
	go func() {
		time.Sleep(10 * time.Millisecond)
		source.Publish("t", []byte("late"))
	}()

	msg, ok, err := source.Poll(context.Background(), time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "late", string(msg.Value))
}

func TestSourceClosed(t *testing.T) {
	source := NewSource()
	require.NoError(t, source.Close())
	_, _, err := source.Poll(context.Background(), time.Millisecond)
	assert.ErrorIs(t, err, ErrSourceClosed)
}
