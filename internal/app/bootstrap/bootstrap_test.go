package bootstrap

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"schemabridge/internal/platform/config"
	"schemabridge/internal/platform/retry"
)

func TestNormalizeAddr(t *testing.T) {
	assert.Equal(t, ":8080", normalizeAddr(""))
	assert.Equal(t, ":9090", normalizeAddr("9090"))
	assert.Equal(t, ":9090", normalizeAddr(" :9090 "))
}

func TestRetryPolicyOverridesDefaults(t *testing.T) {
	policy := retryPolicy(config.Config{
		RetryMaxAttempts:     7,
		RetryInitialInterval: 50 * time.Millisecond,
	})
	assert.Equal(t, 7, policy.MaxAttempts)
	assert.Equal(t, 50*time.Millisecond, policy.InitialInterval)
	assert.Equal(t, retry.DefaultPolicy().MaxInterval, policy.MaxInterval)
}
