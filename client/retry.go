package client

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// maxRetryDelay caps the exponential backoff between attempts.
const maxRetryDelay = 30 * time.Second

// RetryPolicy wraps a dispatch+await cycle in a bounded retry loop.
// Only transient failures (connection errors, timeouts) are re-dispatched;
// execution and sandbox errors surface immediately since re-running code
// can have side effects.
type RetryPolicy struct {
	MaxRetries int
	Delay      time.Duration
}

// Do invokes fn up to MaxRetries+1 times, waiting Delay*2^attempt
// (capped) between attempts. The final failure is surfaced unchanged.
func (p RetryPolicy) Do(ctx context.Context, logger *zap.Logger, fn func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if err == nil || !IsRetryable(err) || attempt >= p.MaxRetries {
			return err
		}

		delay := p.Delay << uint(attempt)
		if delay > maxRetryDelay || delay <= 0 {
			delay = maxRetryDelay
		}
		logger.Debug("retrying after transient failure",
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}
