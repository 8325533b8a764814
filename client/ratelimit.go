package client

import (
	"sync"
	"time"
)

// RateLimiter admits or rejects outgoing requests against a sliding
// window: at most maxRequests admissions within the trailing window.
// Entries older than the window are evicted lazily on each check.
type RateLimiter struct {
	mu          sync.Mutex
	maxRequests int
	window      time.Duration
	timestamps  []time.Time
	concurrent  int
	now         func() time.Time
}

// NewRateLimiter creates a limiter admitting maxRequests per window.
func NewRateLimiter(maxRequests int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		maxRequests: maxRequests,
		window:      window,
		now:         time.Now,
	}
}

// Allow records and admits one request, or rejects it with the duration
// until the oldest window entry expires.
func (r *RateLimiter) Allow() (time.Duration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.evictLocked(now)

	if len(r.timestamps) >= r.maxRequests {
		retryAfter := r.window - now.Sub(r.timestamps[0])
		if retryAfter < 0 {
			retryAfter = 0
		}
		return retryAfter, false
	}

	r.timestamps = append(r.timestamps, now)
	return 0, true
}

// Remaining returns how many admissions are left in the current window.
func (r *RateLimiter) Remaining() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.evictLocked(r.now())
	left := r.maxRequests - len(r.timestamps)
	if left < 0 {
		return 0
	}
	return left
}

// JobStarted increments the concurrent-job gauge and returns the new
// count.
func (r *RateLimiter) JobStarted() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.concurrent++
	return r.concurrent
}

// JobFinished decrements the concurrent-job gauge, flooring at zero, and
// returns the new count.
func (r *RateLimiter) JobFinished() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.concurrent > 0 {
		r.concurrent--
	}
	return r.concurrent
}

// ConcurrentJobs reports how many jobs are currently in flight.
func (r *RateLimiter) ConcurrentJobs() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.concurrent
}

func (r *RateLimiter) evictLocked(now time.Time) {
	cutoff := now.Add(-r.window)
	kept := r.timestamps[:0]
	for _, ts := range r.timestamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	r.timestamps = kept
}
