package client

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestRetryPolicy(t *testing.T) {
	logger := zaptest.NewLogger(t)

	t.Run("SucceedsFirstAttempt", func(t *testing.T) {
		calls := 0
		err := RetryPolicy{MaxRetries: 3, Delay: time.Millisecond}.Do(context.Background(), logger, func() error {
			calls++
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("RetriesTransientFailures", func(t *testing.T) {
		calls := 0
		err := RetryPolicy{MaxRetries: 3, Delay: time.Millisecond}.Do(context.Background(), logger, func() error {
			calls++
			if calls < 3 {
				return &ConnectionError{Reason: "flaky"}
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("TimeoutIsRetryable", func(t *testing.T) {
		calls := 0
		err := RetryPolicy{MaxRetries: 1, Delay: time.Millisecond}.Do(context.Background(), logger, func() error {
			calls++
			return &TimeoutError{Timeout: time.Second}
		})
		require.Error(t, err)
		assert.Equal(t, 2, calls)
	})

	t.Run("SandboxErrorNotRetried", func(t *testing.T) {
		calls := 0
		err := RetryPolicy{MaxRetries: 3, Delay: time.Millisecond}.Do(context.Background(), logger, func() error {
			calls++
			return &SandboxError{Message: "unknown sandbox"}
		})
		require.Error(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("RateLimitNotRetried", func(t *testing.T) {
		calls := 0
		err := RetryPolicy{MaxRetries: 3, Delay: time.Millisecond}.Do(context.Background(), logger, func() error {
			calls++
			return &RateLimitError{RetryAfter: time.Second}
		})
		require.Error(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("ExhaustsBudget", func(t *testing.T) {
		calls := 0
		err := RetryPolicy{MaxRetries: 2, Delay: time.Millisecond}.Do(context.Background(), logger, func() error {
			calls++
			return &ConnectionError{Reason: "down"}
		})
		require.Error(t, err)
		var connErr *ConnectionError
		require.ErrorAs(t, err, &connErr)
		assert.Equal(t, 3, calls)
	})

	t.Run("ContextCancelsBackoffWait", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		calls := 0
		go func() {
			time.Sleep(10 * time.Millisecond)
			cancel()
		}()
		err := RetryPolicy{MaxRetries: 3, Delay: time.Hour}.Do(ctx, logger, func() error {
			calls++
			return &ConnectionError{Reason: "down"}
		})
		require.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	})
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(&ConnectionError{Reason: "x"}))
	assert.True(t, IsRetryable(&TimeoutError{}))
	assert.False(t, IsRetryable(&SandboxError{Message: "x"}))
	assert.False(t, IsRetryable(&AuthError{Message: "x"}))
	assert.False(t, IsRetryable(&RateLimitError{}))
	assert.False(t, IsRetryable(&ExecutionError{Name: "ValueError"}))
	assert.False(t, IsRetryable(nil))
}
