package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy bounds a retried operation.
type Policy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     5,
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		Multiplier:      2,
	}
}

// Notify is called before each wait with the failed attempt's error.
type Notify func(attempt int, err error, wait time.Duration)

// Permanent marks err as not worth retrying. Do returns it unwrapped.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var permanent *backoff.PermanentError
	return errors.As(err, &permanent)
}

// Do runs op until it succeeds, returns a permanent error, the policy's
// attempts are exhausted, or ctx is done. The last error is returned.
func Do(ctx context.Context, policy Policy, op func(context.Context) error, notify Notify) error {
	attempt := 0
	operation := func() error {
		attempt++
		return op(ctx)
	}
	var onRetry backoff.Notify
	if notify != nil {
		onRetry = func(err error, wait time.Duration) {
			notify(attempt, err, wait)
		}
	}
	return backoff.RetryNotify(operation, policy.backOff(ctx), onRetry)
}

func (p Policy) backOff(ctx context.Context) backoff.BackOff {
	exponential := backoff.NewExponentialBackOff()
	exponential.InitialInterval = p.InitialInterval
	if exponential.InitialInterval <= 0 {
		exponential.InitialInterval = DefaultPolicy().InitialInterval
	}
	exponential.MaxInterval = p.MaxInterval
	if exponential.MaxInterval <= 0 {
		exponential.MaxInterval = DefaultPolicy().MaxInterval
	}
	if p.Multiplier > 1 {
		exponential.Multiplier = p.Multiplier
	}
	exponential.MaxElapsedTime = 0
	exponential.Reset()

	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	return backoff.WithContext(backoff.WithMaxRetries(exponential, uint64(attempts-1)), ctx)
}
