package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/isdmx/sandgate/api"
)

func newTestRESTTransport(t *testing.T, serverURL string) *restTransport {
	t.Helper()
	return newRESTTransport(serverURL, "sgk_test", NewRateLimiter(60, time.Minute), NewMetricsCollector(), time.Second, zaptest.NewLogger(t))
}

func serveError(t *testing.T, status int, body api.ErrorResponse, header http.Header) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for key, values := range header {
			for _, v := range values {
				w.Header().Add(key, v)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		require.NoError(t, json.NewEncoder(w).Encode(body))
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestRESTStatusMapping(t *testing.T) {
	ctx := context.Background()

	t.Run("UnauthorizedIsAuthError", func(t *testing.T) {
		ts := serveError(t, http.StatusUnauthorized, api.ErrorResponse{Code: "UNAUTHORIZED", Message: "invalid token"}, nil)
		tr := newTestRESTTransport(t, ts.URL)

		_, err := tr.request(ctx, http.MethodGet, "/api/templates", nil, time.Second)
		var authErr *AuthError
		require.ErrorAs(t, err, &authErr)
		assert.Equal(t, "invalid token", authErr.Message)
		assert.False(t, IsRetryable(err))
	})

	t.Run("NotFoundIsSandboxError", func(t *testing.T) {
		ts := serveError(t, http.StatusNotFound, api.ErrorResponse{Code: "SANDBOX_NOT_FOUND", Message: "sandbox not found: sb-1"}, nil)
		tr := newTestRESTTransport(t, ts.URL)

		_, err := tr.request(ctx, http.MethodGet, "/api/sandboxes/sb-1/status", nil, time.Second)
		var sbErr *SandboxError
		require.ErrorAs(t, err, &sbErr)
		assert.Equal(t, "sandbox not found: sb-1", sbErr.Message)
	})

	t.Run("ServerErrorIsRetryable", func(t *testing.T) {
		ts := serveError(t, http.StatusInternalServerError, api.ErrorResponse{Code: "INTERNAL", Message: "boom"}, nil)
		tr := newTestRESTTransport(t, ts.URL)

		_, err := tr.request(ctx, http.MethodGet, "/api/templates", nil, time.Second)
		var connErr *ConnectionError
		require.ErrorAs(t, err, &connErr)
		assert.True(t, IsRetryable(err))
	})
}

func TestRESTRetryAfterHint(t *testing.T) {
	ctx := context.Background()

	t.Run("HonorsRetryAfterHeader", func(t *testing.T) {
		header := http.Header{}
		header.Set("Retry-After", "2")
		ts := serveError(t, http.StatusTooManyRequests, api.ErrorResponse{Code: "RATE_LIMITED", Message: "slow down"}, header)
		tr := newTestRESTTransport(t, ts.URL)

		_, err := tr.request(ctx, http.MethodGet, "/api/templates", nil, time.Second)
		var rlErr *RateLimitError
		require.ErrorAs(t, err, &rlErr)
		assert.Equal(t, 2*time.Second, rlErr.RetryAfter)
	})

	t.Run("NoHeaderMeansNoHint", func(t *testing.T) {
		// The body's timestamp field is a wall clock, not a duration; it
		// must never be read as a retry hint.
		ts := serveError(t, http.StatusTooManyRequests, api.ErrorResponse{
			Code:      "RATE_LIMITED",
			Message:   "slow down",
			Timestamp: time.Now().UnixMilli(),
		}, nil)
		tr := newTestRESTTransport(t, ts.URL)

		_, err := tr.request(ctx, http.MethodGet, "/api/templates", nil, time.Second)
		var rlErr *RateLimitError
		require.ErrorAs(t, err, &rlErr)
		assert.Equal(t, time.Duration(0), rlErr.RetryAfter)
	})
}
