package api

import "time"

// SandboxStatus is the lifecycle state of a sandbox.
type SandboxStatus string

const (
	StatusCreating   SandboxStatus = "creating"
	StatusReady      SandboxStatus = "ready"
	StatusRunning    SandboxStatus = "running"
	StatusStopped    SandboxStatus = "stopped"
	StatusError      SandboxStatus = "error"
	StatusTerminated SandboxStatus = "terminated"
)

// TemplateConfig describes the runtime a template provisions.
type TemplateConfig struct {
	Name           string            `json:"name"`
	Language       string            `json:"language"`
	Version        string            `json:"version"`
	DockerImage    string            `json:"dockerImage"`
	Framework      string            `json:"framework,omitempty"`
	Dependencies   []string          `json:"dependencies,omitempty"`
	InstallCommand string            `json:"installCommand,omitempty"`
	StartCommand   string            `json:"startCommand,omitempty"`
	DefaultEnvVars map[string]string `json:"defaultEnvVars,omitempty"`
	TimeoutMs      int               `json:"timeoutMs,omitempty"`
	MaxInstances   int               `json:"maxInstances,omitempty"`
}

// Template is a registered sandbox template.
type Template struct {
	ID        string         `json:"id"`
	Config    TemplateConfig `json:"config"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	IsPublic  bool           `json:"isPublic"`
	AuthorID  string         `json:"authorId,omitempty"`
}

// Sandbox is a provisioned execution environment.
type Sandbox struct {
	ID             string            `json:"id"`
	UserID         string            `json:"userId"`
	TemplateID     string            `json:"templateId"`
	TemplateConfig TemplateConfig    `json:"templateConfig"`
	Status         SandboxStatus     `json:"status"`
	CreatedAt      time.Time         `json:"createdAt"`
	UpdatedAt      time.Time         `json:"updatedAt"`
	ExpiresAt      *time.Time        `json:"expiresAt,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// CodeContext is a persistent execution context inside a sandbox.
type CodeContext struct {
	ID        string    `json:"id"`
	SandboxID string    `json:"sandboxId"`
	Language  string    `json:"language"`
	Cwd       string    `json:"cwd"`
	CreatedAt time.Time `json:"createdAt"`
}

// FileInfo describes one entry in a sandbox directory listing.
type FileInfo struct {
	Path        string    `json:"path"`
	IsDirectory bool      `json:"isDirectory"`
	Size        int64     `json:"size"`
	CreatedAt   time.Time `json:"createdAt"`
	ModifiedAt  time.Time `json:"modifiedAt"`
}

// Logs collects the ordered stdout and stderr lines of an execution.
type Logs struct {
	Stdout []string `json:"stdout"`
	Stderr []string `json:"stderr"`
}

// ExecutionError reports a runtime failure inside the sandbox. It is the
// payload of the client-side ExecutionError type.
type ExecutionError struct {
	Name      string `json:"name"`
	Value     string `json:"value"`
	Traceback string `json:"traceback"`
}

// Result is one displayable result of a code execution. Text is always
// set by the simulator; the remaining formats exist for wire parity with
// richer runtimes.
type Result struct {
	IsMainResult bool   `json:"isMainResult"`
	Text         string `json:"text,omitempty"`
	HTML         string `json:"html,omitempty"`
	Markdown     string `json:"markdown,omitempty"`
	PNG          string `json:"png,omitempty"`
	JSON         string `json:"json,omitempty"`
}

// Execution is the complete outcome of a run-code job.
type Execution struct {
	Results        []Result        `json:"results"`
	Logs           Logs            `json:"logs"`
	Error          *ExecutionError `json:"error,omitempty"`
	ExecutionCount int             `json:"executionCount,omitempty"`
	ExitCode       int             `json:"exitCode"`
}

// Text returns the text of the main result, or "" if there is none.
func (e *Execution) Text() string {
	for _, r := range e.Results {
		if r.IsMainResult && r.Text != "" {
			return r.Text
		}
	}
	return ""
}

// OutputMessage is delivered to streaming callbacks for each output line.
type OutputMessage struct {
	Line      string `json:"line"`
	Timestamp int64  `json:"timestamp"`
	Error     bool   `json:"error"`
}
