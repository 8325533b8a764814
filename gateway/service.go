package gateway

import (
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/isdmx/sandgate/api"
	"github.com/isdmx/sandgate/registry"
	"github.com/isdmx/sandgate/simulator"
)

// Error is an operation failure with an HTTP status and a stable code.
// The stream transport sends only the message; REST sends the full body.
type Error struct {
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string { return e.Message }

func errNotFound(code, format string, args ...any) *Error {
	return &Error{Status: http.StatusNotFound, Code: code, Message: fmt.Sprintf(format, args...)}
}

func errBadRequest(code, format string, args ...any) *Error {
	return &Error{Status: http.StatusBadRequest, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Service executes gateway operations against the registry and the
// simulator. It is shared by the REST handlers and stream sessions.
type Service struct {
	logger *zap.Logger
	reg    *registry.Registry
	sim    *simulator.Simulator
	delay  time.Duration

	mu       sync.Mutex
	total    int64
	failed   int64
	totalMs  float64
	lastUnix int64
}

// NewService creates the shared operation layer. delay is the simulated
// execution latency applied to run-code and run-terminal jobs.
func NewService(logger *zap.Logger, reg *registry.Registry, sim *simulator.Simulator, delay time.Duration) *Service {
	return &Service{logger: logger, reg: reg, sim: sim, delay: delay}
}

// RecordJob updates the gateway-side job counters.
func (s *Service) RecordJob(success bool, elapsed time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total++
	if !success {
		s.failed++
	}
	s.totalMs += float64(elapsed.Milliseconds())
	s.lastUnix = time.Now().UnixMilli()
}

// Metrics returns the gateway's aggregate job counters.
func (s *Service) Metrics() api.MetricsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := api.MetricsSnapshot{
		TotalRequests:      s.total,
		SuccessfulRequests: s.total - s.failed,
		FailedRequests:     s.failed,
		TotalExecutionMs:   s.totalMs,
		ActiveSandboxes:    s.reg.Sandboxes.Len(),
		LastUpdatedUnixMs:  s.lastUnix,
	}
	if s.total > 0 {
		snap.AverageResponseMs = s.totalMs / float64(s.total)
	}
	return snap
}

// Cleanup removes everything owned by owner. Called when a stream
// session disconnects.
func (s *Service) Cleanup(owner string) {
	s.reg.PurgeOwner(owner)
}

// sandbox resolves a sandbox id for a caller. A sandbox that belongs to
// a different caller reads exactly like a missing one, so foreign ids
// leak nothing.
func (s *Service) sandbox(caller, sandboxID string) (api.Sandbox, error) {
	sb, ok := s.reg.Sandboxes.Get(sandboxID)
	if !ok || sb.UserID != caller {
		return api.Sandbox{}, errNotFound("SANDBOX_NOT_FOUND", "sandbox not found: %s", sandboxID)
	}
	return sb, nil
}

// CreateSandbox provisions a sandbox from a template.
func (s *Service) CreateSandbox(owner, userID string, req api.CreateSandboxRequest) (api.Sandbox, error) {
	if req.TemplateID == "" {
		return api.Sandbox{}, errBadRequest("TEMPLATE_REQUIRED", "templateId is required")
	}
	tpl, ok := s.reg.Templates.Get(req.TemplateID)
	if !ok {
		return api.Sandbox{}, errNotFound("TEMPLATE_NOT_FOUND", "template not found: %s", req.TemplateID)
	}

	now := time.Now()
	sb := api.Sandbox{
		ID:             registry.NewID(),
		UserID:         userID,
		TemplateID:     tpl.ID,
		TemplateConfig: tpl.Config,
		Status:         api.StatusReady,
		CreatedAt:      now,
		UpdatedAt:      now,
		Metadata:       req.Metadata,
	}
	if req.ExpiryTimeMs > 0 {
		expires := now.Add(time.Duration(req.ExpiryTimeMs) * time.Millisecond)
		sb.ExpiresAt = &expires
	}
	s.reg.Sandboxes.Put(sb.ID, owner, sb)

	s.logger.Info("sandbox created",
		zap.String("sandbox_id", sb.ID),
		zap.String("template_id", tpl.ID),
		zap.String("owner", owner))
	return sb, nil
}

// DeleteSandbox removes a caller's sandbox along with its files and
// contexts.
func (s *Service) DeleteSandbox(caller, sandboxID string) error {
	if _, err := s.sandbox(caller, sandboxID); err != nil {
		return err
	}
	s.reg.Sandboxes.Delete(sandboxID)
	s.reg.Files.DropSandbox(sandboxID)
	for _, cc := range s.reg.Contexts.List() {
		if cc.SandboxID == sandboxID {
			s.reg.Contexts.Delete(cc.ID)
		}
	}
	s.logger.Info("sandbox deleted", zap.String("sandbox_id", sandboxID))
	return nil
}

// SandboxStatus returns the lifecycle state of a caller's sandbox.
func (s *Service) SandboxStatus(caller, sandboxID string) (api.SandboxStatus, error) {
	sb, err := s.sandbox(caller, sandboxID)
	if err != nil {
		return "", err
	}
	return sb.Status, nil
}

// RunCode executes code in a caller's sandbox and returns the full
// outcome.
func (s *Service) RunCode(caller string, req api.ExecuteRequest) (api.Execution, error) {
	sb, err := s.sandbox(caller, req.SandboxID)
	if err != nil {
		return api.Execution{}, err
	}
	if req.ContextID != "" {
		if _, ok := s.reg.Contexts.Get(req.ContextID); !ok {
			return api.Execution{}, errNotFound("CONTEXT_NOT_FOUND", "context not found: %s", req.ContextID)
		}
	}

	language := req.Language
	if language == "" {
		language = sb.TemplateConfig.Language
	}

	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	return s.sim.Run(req.Code, language), nil
}

// RunTerminal executes a terminal command in a caller's sandbox.
func (s *Service) RunTerminal(caller string, req api.TerminalRequest) (api.TerminalResponse, error) {
	if _, err := s.sandbox(caller, req.SandboxID); err != nil {
		return api.TerminalResponse{}, err
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	output, exitCode := s.sim.RunCommand(req.Command)
	return api.TerminalResponse{Output: output, ExitCode: exitCode}, nil
}

// ReadFile returns a file's content.
func (s *Service) ReadFile(caller string, req api.FileRequest) (api.FileContentResponse, error) {
	if _, err := s.sandbox(caller, req.SandboxID); err != nil {
		return api.FileContentResponse{}, err
	}
	content, ok := s.reg.Files.Read(req.SandboxID, req.Path)
	if !ok {
		return api.FileContentResponse{}, errNotFound("FILE_NOT_FOUND", "file not found: %s", req.Path)
	}
	return api.FileContentResponse{Content: content}, nil
}

// WriteFile stores a file in a sandbox.
func (s *Service) WriteFile(caller string, req api.FileRequest) (api.FileWriteResponse, error) {
	if _, err := s.sandbox(caller, req.SandboxID); err != nil {
		return api.FileWriteResponse{}, err
	}
	path, err := s.reg.Files.Write(req.SandboxID, req.Path, req.Content, req.CreateParents)
	if err != nil {
		return api.FileWriteResponse{}, errBadRequest("PARENT_NOT_FOUND", "%s: %s", err.Error(), req.Path)
	}
	return api.FileWriteResponse{Path: path}, nil
}

// DeleteFile removes a file from a sandbox.
func (s *Service) DeleteFile(caller string, req api.FileRequest) error {
	if _, err := s.sandbox(caller, req.SandboxID); err != nil {
		return err
	}
	if !s.reg.Files.Delete(req.SandboxID, req.Path) {
		return errNotFound("FILE_NOT_FOUND", "file not found: %s", req.Path)
	}
	return nil
}

// ListFiles lists a sandbox directory.
func (s *Service) ListFiles(caller string, req api.FileRequest) (api.FileListResponse, error) {
	if _, err := s.sandbox(caller, req.SandboxID); err != nil {
		return api.FileListResponse{}, err
	}
	files := s.reg.Files.List(req.SandboxID, req.Path)
	return api.FileListResponse{Files: files, Directory: req.Path}, nil
}

// CreateContext creates a persistent execution context in a caller's
// sandbox.
func (s *Service) CreateContext(owner, caller string, req api.CreateContextRequest) (api.CodeContext, error) {
	sb, err := s.sandbox(caller, req.SandboxID)
	if err != nil {
		return api.CodeContext{}, err
	}

	language := req.Language
	if language == "" {
		language = sb.TemplateConfig.Language
	}
	cwd := req.Cwd
	if cwd == "" {
		cwd = "/workspace"
	}

	cc := api.CodeContext{
		ID:        registry.NewID(),
		SandboxID: sb.ID,
		Language:  language,
		Cwd:       cwd,
		CreatedAt: time.Now(),
	}
	s.reg.Contexts.Put(cc.ID, owner, cc)
	return cc, nil
}

// DeleteContext removes an execution context.
func (s *Service) DeleteContext(caller string, req api.DeleteContextRequest) error {
	if _, err := s.sandbox(caller, req.SandboxID); err != nil {
		return err
	}
	cc, ok := s.reg.Contexts.Get(req.ContextID)
	if !ok || cc.SandboxID != req.SandboxID {
		return errNotFound("CONTEXT_NOT_FOUND", "context not found: %s", req.ContextID)
	}
	s.reg.Contexts.Delete(req.ContextID)
	return nil
}

// ListTemplates returns one page of the template catalog, ordered by id.
func (s *Service) ListTemplates(page, pageSize int) api.TemplateListResponse {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 10
	}

	templates := s.reg.Templates.List()
	sort.Slice(templates, func(i, j int) bool { return templates[i].ID < templates[j].ID })

	total := len(templates)
	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}

	return api.TemplateListResponse{
		Templates: templates[start:end],
		Total:     total,
		Page:      page,
		PageSize:  pageSize,
	}
}

// GetTemplate returns one template by id.
func (s *Service) GetTemplate(templateID string) (api.Template, error) {
	tpl, ok := s.reg.Templates.Get(templateID)
	if !ok {
		return api.Template{}, errNotFound("TEMPLATE_NOT_FOUND", "template not found: %s", templateID)
	}
	return tpl, nil
}

// CreateTemplate registers a user template.
func (s *Service) CreateTemplate(owner, userID string, req api.CreateTemplateRequest) (api.Template, error) {
	if req.Config.Name == "" || req.Config.Language == "" {
		return api.Template{}, errBadRequest("TEMPLATE_INVALID", "template config requires name and language")
	}

	now := time.Now()
	tpl := api.Template{
		ID:        registry.NewID(),
		Config:    req.Config,
		CreatedAt: now,
		UpdatedAt: now,
		IsPublic:  req.IsPublic,
		AuthorID:  userID,
	}
	s.reg.Templates.Put(tpl.ID, owner, tpl)

	s.logger.Info("template registered",
		zap.String("template_id", tpl.ID),
		zap.String("language", tpl.Config.Language))
	return tpl, nil
}
