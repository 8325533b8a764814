package protocol

import (
	"encoding/json"
	"fmt"
)

// Op identifies a job operation. Operation names are stable across the
// REST and stream transports.
type Op string

// Job operations understood by the gateway.
const (
	OpCreateSandbox  Op = "create-sandbox"
	OpDeleteSandbox  Op = "delete-sandbox"
	OpSandboxStatus  Op = "get-sandbox-status"
	OpRunCode        Op = "run-code"
	OpRunTerminal    Op = "run-terminal"
	OpFileRead       Op = "file-read"
	OpFileWrite      Op = "file-write"
	OpFileDelete     Op = "file-delete"
	OpFileList       Op = "file-list"
	OpCreateContext  Op = "create-context"
	OpDeleteContext  Op = "delete-context"
	OpListTemplates  Op = "list-templates"
	OpGetTemplate    Op = "get-template"
	OpCreateTemplate Op = "create-template"
)

// Valid reports whether op is a known operation.
func (op Op) Valid() bool {
	switch op {
	case OpCreateSandbox, OpDeleteSandbox, OpSandboxStatus,
		OpRunCode, OpRunTerminal,
		OpFileRead, OpFileWrite, OpFileDelete, OpFileList,
		OpCreateContext, OpDeleteContext,
		OpListTemplates, OpGetTemplate, OpCreateTemplate:
		return true
	}
	return false
}

// FrameKind tags an inbound frame. The set is closed: the event router
// switches exhaustively over these values and drops anything else.
type FrameKind string

const (
	// KindResult is the terminal frame for a job. Exactly one per job.
	KindResult FrameKind = "result"
	// KindLine is a streaming output line (stdout/stderr/result/error).
	KindLine FrameKind = "line"
	// KindChunk is a raw terminal-command output chunk.
	KindChunk FrameKind = "chunk"
	// KindEnd terminates a chunk stream with an exit code.
	KindEnd FrameKind = "end"
)

// JobRequest is the outbound envelope submitting a job to the gateway.
type JobRequest struct {
	JobID   string          `json:"jobId"`
	Op      Op              `json:"op"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Frame is one inbound message from the gateway. Only the fields for its
// Kind are populated.
type Frame struct {
	JobID string    `json:"jobId"`
	Kind  FrameKind `json:"kind"`

	// KindResult fields.
	Success bool            `json:"success,omitempty"`
	Output  json.RawMessage `json:"output,omitempty"`
	Error   string          `json:"error,omitempty"`

	// KindLine field: a JSON-encoded OutputLine.
	Line string `json:"line,omitempty"`

	// KindChunk field.
	Chunk string `json:"chunk,omitempty"`

	// KindEnd field.
	ExitCode int `json:"exitCode,omitempty"`
}

// LineType discriminates the sub-kind embedded in a KindLine frame.
type LineType string

const (
	LineStdout LineType = "stdout"
	LineStderr LineType = "stderr"
	LineResult LineType = "result"
	LineError  LineType = "error"
)

// OutputLine is the payload carried inside a KindLine frame.
type OutputLine struct {
	Type      LineType `json:"type"`
	Text      string   `json:"text"`
	Timestamp int64    `json:"timestamp,omitempty"`
}

// EncodeRequest serializes a job request for transmission.
func EncodeRequest(req JobRequest) ([]byte, error) {
	if req.JobID == "" {
		return nil, fmt.Errorf("job request missing job id")
	}
	if !req.Op.Valid() {
		return nil, fmt.Errorf("unknown operation: %s", req.Op)
	}
	return json.Marshal(req)
}

// DecodeFrame parses an inbound frame. It validates only what routing
// needs: a job id and a known kind.
func DecodeFrame(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("malformed frame: %w", err)
	}
	if f.JobID == "" {
		return Frame{}, fmt.Errorf("frame missing job id")
	}
	switch f.Kind {
	case KindResult, KindLine, KindChunk, KindEnd:
		return f, nil
	default:
		return Frame{}, fmt.Errorf("unknown frame kind: %q", f.Kind)
	}
}

// DecodeLine parses the embedded payload of a KindLine frame.
func DecodeLine(raw string) (OutputLine, error) {
	var line OutputLine
	if err := json.Unmarshal([]byte(raw), &line); err != nil {
		return OutputLine{}, fmt.Errorf("malformed output line: %w", err)
	}
	switch line.Type {
	case LineStdout, LineStderr, LineResult, LineError:
		return line, nil
	default:
		return OutputLine{}, fmt.Errorf("unknown line type: %q", line.Type)
	}
}

// EncodeLine serializes an output line for embedding in a KindLine frame.
func EncodeLine(line OutputLine) (string, error) {
	data, err := json.Marshal(line)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ResultFrame builds a terminal frame for a job.
func ResultFrame(jobID string, success bool, output json.RawMessage, errMsg string) Frame {
	return Frame{JobID: jobID, Kind: KindResult, Success: success, Output: output, Error: errMsg}
}

// LineFrame builds a streaming output line frame.
func LineFrame(jobID string, line OutputLine) (Frame, error) {
	encoded, err := EncodeLine(line)
	if err != nil {
		return Frame{}, err
	}
	return Frame{JobID: jobID, Kind: KindLine, Line: encoded}, nil
}

// ChunkFrame builds a raw output chunk frame.
func ChunkFrame(jobID, chunk string) Frame {
	return Frame{JobID: jobID, Kind: KindChunk, Chunk: chunk}
}

// EndFrame builds a stream-end frame carrying the exit code.
func EndFrame(jobID string, exitCode int) Frame {
	return Frame{JobID: jobID, Kind: KindEnd, ExitCode: exitCode}
}
