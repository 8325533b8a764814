package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/isdmx/sandgate/api"
	"github.com/isdmx/sandgate/protocol"
)

// restTransport executes each job as one synchronous HTTP call against
// the gateway's REST surface. Streaming callbacks are replayed from the
// buffered response after the call returns, preserving the stdout,
// stderr, result, error order a stream-transport caller would observe.
type restTransport struct {
	logger     *zap.Logger
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *RateLimiter
	metrics    *MetricsCollector
	timeout    time.Duration
}

func newRESTTransport(serverURL, token string, limiter *RateLimiter, metrics *MetricsCollector, defaultTimeout time.Duration, logger *zap.Logger) *restTransport {
	return &restTransport{
		logger:     logger,
		baseURL:    serverURL,
		token:      token,
		httpClient: &http.Client{},
		limiter:    limiter,
		metrics:    metrics,
		timeout:    defaultTimeout,
	}
}

func (t *restTransport) do(ctx context.Context, op protocol.Op, payload any, opts jobOptions) (json.RawMessage, error) {
	if retryAfter, ok := t.limiter.Allow(); !ok {
		return nil, &RateLimitError{RetryAfter: retryAfter}
	}

	method, path, body, err := restRoute(op, payload)
	if err != nil {
		return nil, err
	}

	timeout := opts.timeout
	if timeout <= 0 {
		timeout = t.timeout
	}

	t.metrics.RecordDispatch()
	t.limiter.JobStarted()
	started := time.Now()

	output, err := t.request(ctx, method, path, body, timeout)
	t.limiter.JobFinished()
	t.metrics.RecordSettlement(err == nil, time.Since(started))
	if err != nil {
		return nil, err
	}

	t.replayCallbacks(op, output, opts.callbacks)
	return output, nil
}

func (t *restTransport) close() error { return nil }

// request performs one HTTP exchange and maps the failure modes onto the
// client error taxonomy.
func (t *restTransport) request(ctx context.Context, method, path string, body any, timeout time.Duration) (json.RawMessage, error) {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, &SandboxError{Message: "unencodable payload: " + err.Error()}
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(reqCtx, method, t.baseURL+path, reader)
	if err != nil {
		return nil, &ConnectionError{Reason: "building request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.token)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || reqCtx.Err() == context.DeadlineExceeded {
			return nil, &TimeoutError{Timeout: timeout}
		}
		return nil, &ConnectionError{Reason: "request failed", Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ConnectionError{Reason: "reading response", Err: err}
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &RateLimitError{RetryAfter: retryAfterFrom(resp)}
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, &AuthError{Message: errorMessage(data, resp.StatusCode)}
	}
	if resp.StatusCode >= 500 {
		return nil, &ConnectionError{Reason: errorMessage(data, resp.StatusCode)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &SandboxError{Message: errorMessage(data, resp.StatusCode)}
	}

	return data, nil
}

// retryAfterFrom reads the Retry-After header. The error body carries no
// retry hint, only a wall-clock timestamp, so a missing header means no
// hint.
func retryAfterFrom(resp *http.Response) time.Duration {
	header := resp.Header.Get("Retry-After")
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}

func errorMessage(body []byte, status int) string {
	var errResp api.ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Message != "" {
		return errResp.Message
	}
	return fmt.Sprintf("request failed with status %d", status)
}

// restRoute maps an operation and its typed payload onto the REST
// surface.
func restRoute(op protocol.Op, payload any) (method, path string, body any, err error) {
	switch op {
	case protocol.OpCreateSandbox:
		return http.MethodPost, "/api/sandboxes/create", payload, nil
	case protocol.OpDeleteSandbox:
		req, ok := payload.(api.DeleteSandboxRequest)
		if !ok {
			return "", "", nil, &SandboxError{Message: "delete-sandbox requires a DeleteSandboxRequest"}
		}
		return http.MethodDelete, "/api/sandboxes/" + url.PathEscape(req.SandboxID), nil, nil
	case protocol.OpSandboxStatus:
		req, ok := payload.(api.DeleteSandboxRequest)
		if !ok {
			return "", "", nil, &SandboxError{Message: "get-sandbox-status requires a sandbox id"}
		}
		return http.MethodGet, "/api/sandboxes/" + url.PathEscape(req.SandboxID) + "/status", nil, nil
	case protocol.OpRunCode:
		req, ok := payload.(api.ExecuteRequest)
		if !ok {
			return "", "", nil, &SandboxError{Message: "run-code requires an ExecuteRequest"}
		}
		return http.MethodPost, "/api/sandboxes/" + url.PathEscape(req.SandboxID) + "/execute", req, nil
	case protocol.OpRunTerminal:
		req, ok := payload.(api.TerminalRequest)
		if !ok {
			return "", "", nil, &SandboxError{Message: "run-terminal requires a TerminalRequest"}
		}
		return http.MethodPost, "/api/sandboxes/" + url.PathEscape(req.SandboxID) + "/terminal", req, nil
	case protocol.OpFileRead:
		req, ok := payload.(api.FileRequest)
		if !ok {
			return "", "", nil, &SandboxError{Message: "file-read requires a FileRequest"}
		}
		return http.MethodGet, filePath(req.SandboxID, "/files", req.Path), nil, nil
	case protocol.OpFileWrite:
		req, ok := payload.(api.FileRequest)
		if !ok {
			return "", "", nil, &SandboxError{Message: "file-write requires a FileRequest"}
		}
		return http.MethodPost, filePath(req.SandboxID, "/files", req.Path), req, nil
	case protocol.OpFileDelete:
		req, ok := payload.(api.FileRequest)
		if !ok {
			return "", "", nil, &SandboxError{Message: "file-delete requires a FileRequest"}
		}
		return http.MethodDelete, filePath(req.SandboxID, "/files", req.Path), nil, nil
	case protocol.OpFileList:
		req, ok := payload.(api.FileRequest)
		if !ok {
			return "", "", nil, &SandboxError{Message: "file-list requires a FileRequest"}
		}
		return http.MethodGet, filePath(req.SandboxID, "/files/list", req.Path), nil, nil
	case protocol.OpCreateContext:
		req, ok := payload.(api.CreateContextRequest)
		if !ok {
			return "", "", nil, &SandboxError{Message: "create-context requires a CreateContextRequest"}
		}
		return http.MethodPost, "/api/sandboxes/" + url.PathEscape(req.SandboxID) + "/contexts", req, nil
	case protocol.OpDeleteContext:
		req, ok := payload.(api.DeleteContextRequest)
		if !ok {
			return "", "", nil, &SandboxError{Message: "delete-context requires a DeleteContextRequest"}
		}
		return http.MethodDelete, "/api/sandboxes/" + url.PathEscape(req.SandboxID) + "/contexts/" + url.PathEscape(req.ContextID), nil, nil
	case protocol.OpListTemplates:
		req, ok := payload.(api.ListTemplatesRequest)
		if !ok {
			return "", "", nil, &SandboxError{Message: "list-templates requires a ListTemplatesRequest"}
		}
		query := url.Values{}
		query.Set("page", strconv.Itoa(req.Page))
		query.Set("pageSize", strconv.Itoa(req.PageSize))
		return http.MethodGet, "/api/templates?" + query.Encode(), nil, nil
	case protocol.OpGetTemplate:
		req, ok := payload.(api.GetTemplateRequest)
		if !ok {
			return "", "", nil, &SandboxError{Message: "get-template requires a GetTemplateRequest"}
		}
		return http.MethodGet, "/api/templates/" + url.PathEscape(req.TemplateID), nil, nil
	case protocol.OpCreateTemplate:
		return http.MethodPost, "/api/templates", payload, nil
	default:
		return "", "", nil, &SandboxError{Message: "unknown operation: " + string(op)}
	}
}

func filePath(sandboxID, suffix, path string) string {
	query := url.Values{}
	query.Set("path", path)
	return "/api/sandboxes/" + url.PathEscape(sandboxID) + suffix + "?" + query.Encode()
}

// replayCallbacks fires streaming callbacks from a buffered REST
// response so a caller observes the same event order as on the stream
// transport.
func (t *restTransport) replayCallbacks(op protocol.Op, output json.RawMessage, callbacks StreamCallbacks) {
	switch op {
	case protocol.OpRunCode:
		var execution api.Execution
		if err := json.Unmarshal(output, &execution); err != nil {
			t.logger.Warn("skipping callback replay for undecodable execution", zap.Error(err))
			return
		}
		now := time.Now().UnixMicro()
		if callbacks.OnStdout != nil {
			for _, line := range execution.Logs.Stdout {
				callbacks.OnStdout(api.OutputMessage{Line: line, Timestamp: now, Error: false})
			}
		}
		if callbacks.OnStderr != nil {
			for _, line := range execution.Logs.Stderr {
				callbacks.OnStderr(api.OutputMessage{Line: line, Timestamp: now, Error: true})
			}
		}
		if callbacks.OnResult != nil {
			for _, result := range execution.Results {
				callbacks.OnResult(result)
			}
		}
		if callbacks.OnError != nil && execution.Error != nil {
			callbacks.OnError(*execution.Error)
		}

	case protocol.OpRunTerminal:
		var resp api.TerminalResponse
		if err := json.Unmarshal(output, &resp); err != nil {
			return
		}
		if callbacks.OnChunk != nil {
			callbacks.OnChunk(resp.Output)
		}
		if callbacks.OnStdout != nil {
			callbacks.OnStdout(api.OutputMessage{Line: resp.Output, Timestamp: time.Now().UnixMicro()})
		}
	}
}
