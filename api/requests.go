package api

// CreateSandboxRequest is the body of create-sandbox.
type CreateSandboxRequest struct {
	TemplateID     string            `json:"templateId"`
	Name           string            `json:"name,omitempty"`
	ExpiryTimeMs   int64             `json:"expiryTime,omitempty"`
	InitialEnvVars map[string]string `json:"initialEnvVars,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// CreateSandboxResponse is the result of create-sandbox.
type CreateSandboxResponse struct {
	Sandbox Sandbox `json:"sandbox"`
}

// SandboxStatusResponse is the result of get-sandbox-status.
type SandboxStatusResponse struct {
	Status SandboxStatus `json:"status"`
}

// ExecuteRequest is the body of run-code.
type ExecuteRequest struct {
	SandboxID string            `json:"sandboxId"`
	Code      string            `json:"code"`
	Language  string            `json:"language,omitempty"`
	ContextID string            `json:"contextId,omitempty"`
	EnvVars   map[string]string `json:"envVars,omitempty"`
}

// TerminalRequest is the body of run-terminal.
type TerminalRequest struct {
	SandboxID string `json:"sandboxId"`
	Command   string `json:"command"`
}

// TerminalResponse is the result of run-terminal.
type TerminalResponse struct {
	Output   string `json:"output"`
	ExitCode int    `json:"exitCode"`
}

// FileRequest addresses a file operation inside a sandbox.
type FileRequest struct {
	SandboxID     string `json:"sandboxId"`
	Path          string `json:"path"`
	Content       string `json:"content,omitempty"`
	CreateParents bool   `json:"createParents,omitempty"`
}

// FileContentResponse is the result of file-read.
type FileContentResponse struct {
	Content string `json:"content"`
}

// FileWriteResponse is the result of file-write.
type FileWriteResponse struct {
	Path string `json:"path"`
}

// FileListResponse is the result of file-list.
type FileListResponse struct {
	Files     []FileInfo `json:"files"`
	Directory string     `json:"directory"`
}

// CreateContextRequest is the body of create-context.
type CreateContextRequest struct {
	SandboxID string `json:"sandboxId"`
	Language  string `json:"language,omitempty"`
	Cwd       string `json:"cwd,omitempty"`
}

// DeleteContextRequest is the body of delete-context.
type DeleteContextRequest struct {
	SandboxID string `json:"sandboxId"`
	ContextID string `json:"contextId"`
}

// ListTemplatesRequest is the body of list-templates.
type ListTemplatesRequest struct {
	Page     int `json:"page,omitempty"`
	PageSize int `json:"pageSize,omitempty"`
}

// TemplateListResponse is the result of list-templates.
type TemplateListResponse struct {
	Templates []Template `json:"templates"`
	Total     int        `json:"total"`
	Page      int        `json:"page"`
	PageSize  int        `json:"pageSize"`
}

// GetTemplateRequest is the body of get-template.
type GetTemplateRequest struct {
	TemplateID string `json:"templateId"`
}

// CreateTemplateRequest is the body of create-template.
type CreateTemplateRequest struct {
	Config   TemplateConfig `json:"config"`
	IsPublic bool           `json:"isPublic,omitempty"`
}

// DeleteSandboxRequest is the body of delete-sandbox.
type DeleteSandboxRequest struct {
	SandboxID string `json:"sandboxId"`
}

// ErrorResponse is the REST error body.
type ErrorResponse struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// RegisterResponse is returned by the unauthenticated registration path.
type RegisterResponse struct {
	Token  string `json:"token"`
	UserID string `json:"userId"`
}

// MetricsSnapshot is the aggregate view exposed by the client and the
// gateway metrics endpoint.
type MetricsSnapshot struct {
	TotalRequests      int64   `json:"totalRequests"`
	SuccessfulRequests int64   `json:"successfulRequests"`
	FailedRequests     int64   `json:"failedRequests"`
	AverageResponseMs  float64 `json:"averageResponseTime"`
	TotalExecutionMs   float64 `json:"totalExecutionTime"`
	ActiveSandboxes    int     `json:"activeSandboxes"`
	LastUpdatedUnixMs  int64   `json:"lastUpdated"`
}
