package client

import (
	"errors"
	"fmt"
	"time"

	"github.com/isdmx/sandgate/protocol"
)

// RateLimitError reports that the local rate limiter rejected a dispatch.
// RetryAfter is the time until the oldest window entry expires. It is
// never retried automatically.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry after %s", e.RetryAfter)
}

// TimeoutError reports that a job's deadline elapsed before a terminal
// frame arrived. Retryable.
type TimeoutError struct {
	Op      protocol.Op
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Op, e.Timeout)
}

// ConnectionError reports that the transport was unavailable or dropped
// mid-call. Retryable.
type ConnectionError struct {
	Reason string
	Err    error
}

func (e *ConnectionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("connection error: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("connection error: %s", e.Reason)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// AuthError reports that the gateway rejected the caller's credentials.
// Not retryable: a bad token stays bad.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string { return e.Message }

// SandboxError reports a caller-facing failure: a sandbox, template or
// context that does not exist or is not owned by the caller. Not
// retryable.
type SandboxError struct {
	Message string
}

func (e *SandboxError) Error() string { return e.Message }

// ExecutionError reports that the simulated execution ran and failed.
// Never retried: re-running code can have side effects.
type ExecutionError struct {
	Name      string
	Value     string
	Traceback string
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Name, e.Value)
}

// IsRetryable reports whether err belongs to a transient failure class
// the retry coordinator may re-dispatch.
func IsRetryable(err error) bool {
	var connErr *ConnectionError
	var timeoutErr *TimeoutError
	return errors.As(err, &connErr) || errors.As(err, &timeoutErr)
}
