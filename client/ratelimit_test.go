package client

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter(t *testing.T) {
	t.Run("AdmitsUpToLimit", func(t *testing.T) {
		limiter := NewRateLimiter(3, time.Minute)
		for i := 0; i < 3; i++ {
			_, ok := limiter.Allow()
			require.True(t, ok, "request %d should be admitted", i)
		}
		retryAfter, ok := limiter.Allow()
		assert.False(t, ok)
		assert.Greater(t, retryAfter, time.Duration(0))
	})

	t.Run("WindowSlides", func(t *testing.T) {
		now := time.Unix(1000, 0)
		limiter := NewRateLimiter(2, time.Minute)
		limiter.now = func() time.Time { return now }

		_, ok := limiter.Allow()
		require.True(t, ok)
		now = now.Add(30 * time.Second)
		_, ok = limiter.Allow()
		require.True(t, ok)

		_, ok = limiter.Allow()
		require.False(t, ok)

		// The first admission expires after one full window.
		now = now.Add(31 * time.Second)
		_, ok = limiter.Allow()
		assert.True(t, ok)
	})

	t.Run("RetryAfterTracksOldestEntry", func(t *testing.T) {
		now := time.Unix(1000, 0)
		limiter := NewRateLimiter(1, time.Minute)
		limiter.now = func() time.Time { return now }

		_, ok := limiter.Allow()
		require.True(t, ok)

		now = now.Add(20 * time.Second)
		retryAfter, ok := limiter.Allow()
		require.False(t, ok)
		assert.Equal(t, 40*time.Second, retryAfter)
	})

	t.Run("ConcurrentJobsFloorAtZero", func(t *testing.T) {
		limiter := NewRateLimiter(5, time.Minute)

		assert.Equal(t, 1, limiter.JobStarted())
		assert.Equal(t, 2, limiter.JobStarted())
		assert.Equal(t, 2, limiter.ConcurrentJobs())

		assert.Equal(t, 1, limiter.JobFinished())
		assert.Equal(t, 0, limiter.JobFinished())
		assert.Equal(t, 0, limiter.JobFinished())
		assert.Equal(t, 0, limiter.ConcurrentJobs())
	})

	t.Run("Remaining", func(t *testing.T) {
		now := time.Unix(1000, 0)
		limiter := NewRateLimiter(5, time.Minute)
		limiter.now = func() time.Time { return now }

		assert.Equal(t, 5, limiter.Remaining())
		limiter.Allow()
		limiter.Allow()
		assert.Equal(t, 3, limiter.Remaining())

		now = now.Add(2 * time.Minute)
		assert.Equal(t, 5, limiter.Remaining())
	})
}
