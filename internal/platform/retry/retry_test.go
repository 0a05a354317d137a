package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errFlaky = errors.New("flaky")

func quick(attempts int) Policy {
	return Policy{MaxAttempts: attempts, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond}
}

func TestDoStopsAfterMaxAttempts(t *testing.T) {
	calls := 0
	var notified []int
	err := Do(context.Background(), quick(3), func(context.Context) error {
		calls++
		return errFlaky
	}, func(attempt int, _ error, _ time.Duration) {
		notified = append(notified, attempt)
	})

	require.ErrorIs(t, err, errFlaky)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, notified)
}

func TestDoReturnsOnSuccess(t *testing.T) {
	calls := 0
	err := Do(context.Background(), quick(5), func(context.Context) error {
		calls++
		if calls < 2 {
			return errFlaky
		}
		return nil
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestDoStopsOnPermanentError(t *testing.T) {
	calls := 0
	err := Do(context.Background(), quick(5), func(context.Context) error {
		calls++
		return Permanent(errFlaky)
	}, nil)

	require.ErrorIs(t, err, errFlaky)
	assert.Equal(t, 1, calls)
}

func TestDoHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, Policy{MaxAttempts: 10, InitialInterval: time.Hour, MaxInterval: time.Hour}, func(context.Context) error {
		calls++
		cancel()
		return errFlaky
	}, nil)

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestPermanentHelpers(t *testing.T) {
	assert.Nil(t, Permanent(nil))
	assert.True(t, IsPermanent(Permanent(errFlaky)))
	assert.False(t, IsPermanent(errFlaky))
	assert.ErrorIs(t, Permanent(errFlaky), errFlaky)
}
