package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/isdmx/sandgate/api"
	"github.com/isdmx/sandgate/protocol"
)

// Transport names accepted by Config.
const (
	TransportREST   = "rest"
	TransportStream = "stream"
)

// Defaults mirroring the gateway's documented client settings.
const (
	DefaultTimeout         = 60 * time.Second
	DefaultMaxRetries      = 3
	DefaultRetryDelay      = time.Second
	DefaultRateLimit       = 60
	DefaultRateWindow      = time.Minute
	DefaultMetricsInterval = 30 * time.Second
)

// Config configures a Client.
type Config struct {
	APIKey    string
	ServerURL string
	// Transport selects "rest" or "stream". Defaults to "stream".
	Transport string

	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration

	RateLimit  int
	RateWindow time.Duration

	EnableMetrics   bool
	MetricsInterval time.Duration
	// MetricsSink receives periodic snapshots when EnableMetrics is set.
	// Defaults to a debug log line.
	MetricsSink func(api.MetricsSnapshot)
}

func (c *Config) applyDefaults() {
	if c.Transport == "" {
		c.Transport = TransportStream
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	if c.RateLimit <= 0 {
		c.RateLimit = DefaultRateLimit
	}
	if c.RateWindow <= 0 {
		c.RateWindow = DefaultRateWindow
	}
	if c.MetricsInterval <= 0 {
		c.MetricsInterval = DefaultMetricsInterval
	}
}

func (c *Config) validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("invalid API key provided")
	}
	if c.ServerURL == "" {
		return fmt.Errorf("invalid server URL provided")
	}
	if c.Transport != TransportREST && c.Transport != TransportStream {
		return fmt.Errorf("invalid transport: %s, must be %q or %q", c.Transport, TransportREST, TransportStream)
	}
	return nil
}

// RunCodeOptions are the per-call options for RunCode.
type RunCodeOptions struct {
	OnStdout  func(api.OutputMessage)
	OnStderr  func(api.OutputMessage)
	OnResult  func(api.Result)
	OnError   func(api.ExecutionError)
	Envs      map[string]string
	ContextID string
	Timeout   time.Duration
}

// RunTerminalOptions are the per-call options for RunTerminal.
type RunTerminalOptions struct {
	OnStdout func(api.OutputMessage)
	OnChunk  func(string)
	Timeout  time.Duration
}

// BatchJob is one unit of an ExecuteBatch call.
type BatchJob struct {
	ID      string
	Code    string
	Timeout time.Duration
}

// BatchResult is the per-job outcome of an ExecuteBatch call.
type BatchResult struct {
	JobID     string
	Success   bool
	Execution *api.Execution
	Error     string
	Duration  time.Duration
}

// Client is the sandgate SDK entry point. It tracks the sandboxes and
// contexts it created, mirrors of the server-side registries used to
// fail fast on unknown ids before any network traffic.
type Client struct {
	cfg       Config
	logger    *zap.Logger
	transport transport
	limiter   *RateLimiter
	metrics   *MetricsCollector
	retry     RetryPolicy

	mu              sync.Mutex
	activeSandboxes map[string]api.Sandbox
	activeContexts  map[string]api.CodeContext
	closed          bool
}

// New creates a client and, for the stream transport, establishes the
// connection.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Client, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	c := &Client{
		cfg:             cfg,
		logger:          logger,
		limiter:         NewRateLimiter(cfg.RateLimit, cfg.RateWindow),
		metrics:         NewMetricsCollector(),
		retry:           RetryPolicy{MaxRetries: cfg.MaxRetries, Delay: cfg.RetryDelay},
		activeSandboxes: make(map[string]api.Sandbox),
		activeContexts:  make(map[string]api.CodeContext),
	}

	switch cfg.Transport {
	case TransportStream:
		t, err := dialStream(ctx, cfg.ServerURL, cfg.APIKey, c.limiter, c.metrics, cfg.Timeout, logger)
		if err != nil {
			return nil, err
		}
		c.transport = t
	case TransportREST:
		c.transport = newRESTTransport(cfg.ServerURL, cfg.APIKey, c.limiter, c.metrics, cfg.Timeout, logger)
	}

	if cfg.EnableMetrics {
		sink := cfg.MetricsSink
		if sink == nil {
			sink = func(s api.MetricsSnapshot) {
				logger.Debug("metrics snapshot",
					zap.Int64("total_requests", s.TotalRequests),
					zap.Int64("successful_requests", s.SuccessfulRequests),
					zap.Int64("failed_requests", s.FailedRequests),
					zap.Float64("average_response_ms", s.AverageResponseMs))
			}
		}
		c.metrics.StartEmitting(cfg.MetricsInterval, sink)
	}

	return c, nil
}

// invoke runs one operation through the retry coordinator and decodes
// the terminal output into out (when out is non-nil).
func (c *Client) invoke(ctx context.Context, op protocol.Op, payload any, opts jobOptions, out any) error {
	var output json.RawMessage
	err := c.retry.Do(ctx, c.logger, func() error {
		var doErr error
		output, doErr = c.transport.do(ctx, op, payload, opts)
		return doErr
	})
	if err != nil {
		return err
	}
	if out == nil || len(output) == 0 {
		return nil
	}
	if err := json.Unmarshal(output, out); err != nil {
		return &SandboxError{Message: fmt.Sprintf("undecodable %s result: %v", op, err)}
	}
	return nil
}

// CreateSandbox provisions a sandbox from a template and tracks it.
func (c *Client) CreateSandbox(ctx context.Context, req api.CreateSandboxRequest) (api.Sandbox, error) {
	var resp api.CreateSandboxResponse
	if err := c.invoke(ctx, protocol.OpCreateSandbox, req, jobOptions{}, &resp); err != nil {
		return api.Sandbox{}, err
	}

	c.mu.Lock()
	c.activeSandboxes[resp.Sandbox.ID] = resp.Sandbox
	count := len(c.activeSandboxes)
	c.mu.Unlock()
	c.metrics.SetActiveSandboxes(count)

	return resp.Sandbox, nil
}

// DeleteSandbox removes a sandbox and any contexts attached to it.
func (c *Client) DeleteSandbox(ctx context.Context, sandboxID string) error {
	c.mu.Lock()
	for id, cc := range c.activeContexts {
		if cc.SandboxID == sandboxID {
			delete(c.activeContexts, id)
		}
	}
	delete(c.activeSandboxes, sandboxID)
	count := len(c.activeSandboxes)
	c.mu.Unlock()
	c.metrics.SetActiveSandboxes(count)

	return c.invoke(ctx, protocol.OpDeleteSandbox, api.DeleteSandboxRequest{SandboxID: sandboxID}, jobOptions{}, nil)
}

// GetSandboxStatus fetches the current status and refreshes the local
// record.
func (c *Client) GetSandboxStatus(ctx context.Context, sandboxID string) (api.SandboxStatus, error) {
	if _, err := c.sandbox(sandboxID); err != nil {
		return "", err
	}

	var resp api.SandboxStatusResponse
	if err := c.invoke(ctx, protocol.OpSandboxStatus, api.DeleteSandboxRequest{SandboxID: sandboxID}, jobOptions{}, &resp); err != nil {
		return "", err
	}

	c.mu.Lock()
	if sb, ok := c.activeSandboxes[sandboxID]; ok {
		sb.Status = resp.Status
		c.activeSandboxes[sandboxID] = sb
	}
	c.mu.Unlock()

	return resp.Status, nil
}

// ListSandboxes returns the sandboxes this client created.
func (c *Client) ListSandboxes() []api.Sandbox {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]api.Sandbox, 0, len(c.activeSandboxes))
	for _, sb := range c.activeSandboxes {
		out = append(out, sb)
	}
	return out
}

// RunCode executes code in a sandbox, streaming output through the
// option callbacks before the terminal execution result is returned.
func (c *Client) RunCode(ctx context.Context, sandboxID, code string, opts *RunCodeOptions) (api.Execution, error) {
	sb, err := c.sandbox(sandboxID)
	if err != nil {
		return api.Execution{}, err
	}
	if opts == nil {
		opts = &RunCodeOptions{}
	}

	req := api.ExecuteRequest{
		SandboxID: sandboxID,
		Code:      code,
		Language:  sb.TemplateConfig.Language,
		ContextID: opts.ContextID,
		EnvVars:   opts.Envs,
	}
	job := jobOptions{
		timeout: opts.Timeout,
		callbacks: StreamCallbacks{
			OnStdout: opts.OnStdout,
			OnStderr: opts.OnStderr,
			OnResult: opts.OnResult,
			OnError:  opts.OnError,
		},
	}

	var execution api.Execution
	if err := c.invoke(ctx, protocol.OpRunCode, req, job, &execution); err != nil {
		return api.Execution{}, err
	}
	return execution, nil
}

// RunTerminal runs a terminal command in a sandbox and returns its
// combined output.
func (c *Client) RunTerminal(ctx context.Context, sandboxID, command string, opts *RunTerminalOptions) (api.TerminalResponse, error) {
	if _, err := c.sandbox(sandboxID); err != nil {
		return api.TerminalResponse{}, err
	}
	if opts == nil {
		opts = &RunTerminalOptions{}
	}

	req := api.TerminalRequest{SandboxID: sandboxID, Command: command}
	job := jobOptions{
		timeout: opts.Timeout,
		callbacks: StreamCallbacks{
			OnStdout: opts.OnStdout,
			OnChunk:  opts.OnChunk,
		},
	}

	var resp api.TerminalResponse
	if err := c.invoke(ctx, protocol.OpRunTerminal, req, job, &resp); err != nil {
		return api.TerminalResponse{}, err
	}
	return resp, nil
}

// ReadFile reads a file from a sandbox.
func (c *Client) ReadFile(ctx context.Context, sandboxID, path string) (string, error) {
	if _, err := c.sandbox(sandboxID); err != nil {
		return "", err
	}
	var resp api.FileContentResponse
	err := c.invoke(ctx, protocol.OpFileRead, api.FileRequest{SandboxID: sandboxID, Path: path}, jobOptions{}, &resp)
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// WriteFile writes a file into a sandbox, creating parent directories by
// default.
func (c *Client) WriteFile(ctx context.Context, sandboxID, path, content string) (string, error) {
	if _, err := c.sandbox(sandboxID); err != nil {
		return "", err
	}
	req := api.FileRequest{SandboxID: sandboxID, Path: path, Content: content, CreateParents: true}
	var resp api.FileWriteResponse
	if err := c.invoke(ctx, protocol.OpFileWrite, req, jobOptions{}, &resp); err != nil {
		return "", err
	}
	return resp.Path, nil
}

// DeleteFile removes a file from a sandbox.
func (c *Client) DeleteFile(ctx context.Context, sandboxID, path string) error {
	if _, err := c.sandbox(sandboxID); err != nil {
		return err
	}
	return c.invoke(ctx, protocol.OpFileDelete, api.FileRequest{SandboxID: sandboxID, Path: path}, jobOptions{}, nil)
}

// ListFiles lists a sandbox directory.
func (c *Client) ListFiles(ctx context.Context, sandboxID, dir string) (api.FileListResponse, error) {
	if _, err := c.sandbox(sandboxID); err != nil {
		return api.FileListResponse{}, err
	}
	if dir == "" {
		dir = "."
	}
	var resp api.FileListResponse
	err := c.invoke(ctx, protocol.OpFileList, api.FileRequest{SandboxID: sandboxID, Path: dir}, jobOptions{}, &resp)
	if err != nil {
		return api.FileListResponse{}, err
	}
	return resp, nil
}

// CreateCodeContext creates a persistent execution context in a sandbox.
// Language defaults to the sandbox template's language and cwd to
// /workspace.
func (c *Client) CreateCodeContext(ctx context.Context, sandboxID, language, cwd string) (api.CodeContext, error) {
	sb, err := c.sandbox(sandboxID)
	if err != nil {
		return api.CodeContext{}, err
	}
	if language == "" {
		language = sb.TemplateConfig.Language
	}
	if cwd == "" {
		cwd = "/workspace"
	}

	req := api.CreateContextRequest{SandboxID: sandboxID, Language: language, Cwd: cwd}
	var cc api.CodeContext
	if err := c.invoke(ctx, protocol.OpCreateContext, req, jobOptions{}, &cc); err != nil {
		return api.CodeContext{}, err
	}

	c.mu.Lock()
	c.activeContexts[cc.ID] = cc
	c.mu.Unlock()

	return cc, nil
}

// DeleteCodeContext deletes a context. Unknown context ids are a local
// no-op.
func (c *Client) DeleteCodeContext(ctx context.Context, contextID string) error {
	c.mu.Lock()
	cc, ok := c.activeContexts[contextID]
	if ok {
		delete(c.activeContexts, contextID)
	}
	c.mu.Unlock()
	if !ok {
		return nil
	}

	req := api.DeleteContextRequest{SandboxID: cc.SandboxID, ContextID: contextID}
	return c.invoke(ctx, protocol.OpDeleteContext, req, jobOptions{}, nil)
}

// ListCodeContexts returns this client's contexts for a sandbox.
func (c *Client) ListCodeContexts(sandboxID string) []api.CodeContext {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]api.CodeContext, 0)
	for _, cc := range c.activeContexts {
		if cc.SandboxID == sandboxID {
			out = append(out, cc)
		}
	}
	return out
}

// ListTemplates fetches a page of templates.
func (c *Client) ListTemplates(ctx context.Context, page, pageSize int) (api.TemplateListResponse, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 10
	}
	var resp api.TemplateListResponse
	err := c.invoke(ctx, protocol.OpListTemplates, api.ListTemplatesRequest{Page: page, PageSize: pageSize}, jobOptions{}, &resp)
	if err != nil {
		return api.TemplateListResponse{}, err
	}
	return resp, nil
}

// GetTemplate fetches one template.
func (c *Client) GetTemplate(ctx context.Context, templateID string) (api.Template, error) {
	var tpl api.Template
	err := c.invoke(ctx, protocol.OpGetTemplate, api.GetTemplateRequest{TemplateID: templateID}, jobOptions{}, &tpl)
	if err != nil {
		return api.Template{}, err
	}
	return tpl, nil
}

// CreateTemplate registers a new template.
func (c *Client) CreateTemplate(ctx context.Context, req api.CreateTemplateRequest) (api.Template, error) {
	var tpl api.Template
	if err := c.invoke(ctx, protocol.OpCreateTemplate, req, jobOptions{}, &tpl); err != nil {
		return api.Template{}, err
	}
	return tpl, nil
}

// ExecuteBatch runs jobs sequentially, capturing per-job success and
// duration. A failing job does not abort the batch.
func (c *Client) ExecuteBatch(ctx context.Context, sandboxID string, jobs []BatchJob, opts *RunCodeOptions) ([]BatchResult, error) {
	if _, err := c.sandbox(sandboxID); err != nil {
		return nil, err
	}

	results := make([]BatchResult, 0, len(jobs))
	for _, job := range jobs {
		started := time.Now()
		runOpts := RunCodeOptions{Timeout: job.Timeout}
		if opts != nil {
			runOpts = *opts
			runOpts.Timeout = job.Timeout
		}
		execution, err := c.RunCode(ctx, sandboxID, job.Code, &runOpts)
		if err != nil {
			results = append(results, BatchResult{
				JobID:    job.ID,
				Success:  false,
				Error:    err.Error(),
				Duration: time.Since(started),
			})
			continue
		}
		results = append(results, BatchResult{
			JobID:     job.ID,
			Success:   true,
			Execution: &execution,
			Duration:  time.Since(started),
		})
	}
	return results, nil
}

// Metrics returns the current metrics snapshot.
func (c *Client) Metrics() api.MetricsSnapshot {
	return c.metrics.Snapshot()
}

// Close stops the metrics task and tears down the transport. Pending
// stream calls settle with a connection error.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.metrics.StopEmitting()
	return c.transport.close()
}

func (c *Client) sandbox(sandboxID string) (api.Sandbox, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sb, ok := c.activeSandboxes[sandboxID]
	if !ok {
		return api.Sandbox{}, &SandboxError{Message: fmt.Sprintf("sandbox %s not found", sandboxID)}
	}
	return sb, nil
}
