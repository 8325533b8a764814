package gateway

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/isdmx/sandgate/api"
	"github.com/isdmx/sandgate/protocol"
)

// session serves one websocket connection. Each job runs on its own
// goroutine; frame writes are serialized because gorilla connections
// allow one concurrent writer.
type session struct {
	logger *zap.Logger
	svc    *Service
	conn   *websocket.Conn
	owner  string
	userID string

	writeMu sync.Mutex
	wg      sync.WaitGroup
}

func newSession(logger *zap.Logger, svc *Service, conn *websocket.Conn, userID string) *session {
	owner := "ws:" + uuid.NewString()
	return &session{
		logger: logger.With(zap.String("session", owner)),
		svc:    svc,
		conn:   conn,
		owner:  owner,
		userID: userID,
	}
}

// run reads job requests until the connection drops, then waits for
// in-flight jobs and purges everything the session created.
func (s *session) run() {
	s.logger.Info("stream session opened", zap.String("user_id", s.userID))

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			break
		}

		var req protocol.JobRequest
		if err := json.Unmarshal(data, &req); err != nil {
			s.logger.Warn("dropping unparseable job request", zap.Error(err))
			continue
		}
		if req.JobID == "" {
			s.logger.Warn("dropping job request without id")
			continue
		}
		if !req.Op.Valid() {
			s.sendFrame(protocol.ResultFrame(req.JobID, false, nil, "unknown operation: "+string(req.Op)))
			continue
		}

		s.wg.Add(1)
		go func(req protocol.JobRequest) {
			defer s.wg.Done()
			s.handleJob(req)
		}(req)
	}

	s.wg.Wait()
	s.svc.Cleanup(s.owner)
	s.logger.Info("stream session closed")
}

// handleJob executes one job and emits its frames in order: streaming
// frames first, then exactly one terminal frame.
func (s *session) handleJob(req protocol.JobRequest) {
	started := time.Now()
	err := s.dispatch(req)
	s.svc.RecordJob(err == nil, time.Since(started))
	if err != nil {
		s.sendFrame(protocol.ResultFrame(req.JobID, false, nil, err.Error()))
	}
}

func (s *session) dispatch(req protocol.JobRequest) error {
	switch req.Op {
	case protocol.OpCreateSandbox:
		body, err := decodePayload[api.CreateSandboxRequest](req.Payload)
		if err != nil {
			return err
		}
		sb, err := s.svc.CreateSandbox(s.owner, s.userID, body)
		if err != nil {
			return err
		}
		return s.sendResult(req.JobID, api.CreateSandboxResponse{Sandbox: sb})

	case protocol.OpDeleteSandbox:
		body, err := decodePayload[api.DeleteSandboxRequest](req.Payload)
		if err != nil {
			return err
		}
		if err := s.svc.DeleteSandbox(s.userID, body.SandboxID); err != nil {
			return err
		}
		return s.sendResult(req.JobID, nil)

	case protocol.OpSandboxStatus:
		body, err := decodePayload[api.DeleteSandboxRequest](req.Payload)
		if err != nil {
			return err
		}
		status, err := s.svc.SandboxStatus(s.userID, body.SandboxID)
		if err != nil {
			return err
		}
		return s.sendResult(req.JobID, api.SandboxStatusResponse{Status: status})

	case protocol.OpRunCode:
		body, err := decodePayload[api.ExecuteRequest](req.Payload)
		if err != nil {
			return err
		}
		execution, err := s.svc.RunCode(s.userID, body)
		if err != nil {
			return err
		}
		s.streamExecution(req.JobID, execution)
		return s.sendResult(req.JobID, execution)

	case protocol.OpRunTerminal:
		body, err := decodePayload[api.TerminalRequest](req.Payload)
		if err != nil {
			return err
		}
		resp, err := s.svc.RunTerminal(s.userID, body)
		if err != nil {
			return err
		}
		return s.streamTerminal(req.JobID, resp)

	case protocol.OpFileRead:
		body, err := decodePayload[api.FileRequest](req.Payload)
		if err != nil {
			return err
		}
		resp, err := s.svc.ReadFile(s.userID, body)
		if err != nil {
			return err
		}
		return s.sendResult(req.JobID, resp)

	case protocol.OpFileWrite:
		body, err := decodePayload[api.FileRequest](req.Payload)
		if err != nil {
			return err
		}
		resp, err := s.svc.WriteFile(s.userID, body)
		if err != nil {
			return err
		}
		return s.sendResult(req.JobID, resp)

	case protocol.OpFileDelete:
		body, err := decodePayload[api.FileRequest](req.Payload)
		if err != nil {
			return err
		}
		if err := s.svc.DeleteFile(s.userID, body); err != nil {
			return err
		}
		return s.sendResult(req.JobID, nil)

	case protocol.OpFileList:
		body, err := decodePayload[api.FileRequest](req.Payload)
		if err != nil {
			return err
		}
		resp, err := s.svc.ListFiles(s.userID, body)
		if err != nil {
			return err
		}
		return s.sendResult(req.JobID, resp)

	case protocol.OpCreateContext:
		body, err := decodePayload[api.CreateContextRequest](req.Payload)
		if err != nil {
			return err
		}
		cc, err := s.svc.CreateContext(s.owner, s.userID, body)
		if err != nil {
			return err
		}
		return s.sendResult(req.JobID, cc)

	case protocol.OpDeleteContext:
		body, err := decodePayload[api.DeleteContextRequest](req.Payload)
		if err != nil {
			return err
		}
		if err := s.svc.DeleteContext(s.userID, body); err != nil {
			return err
		}
		return s.sendResult(req.JobID, nil)

	case protocol.OpListTemplates:
		body, err := decodePayload[api.ListTemplatesRequest](req.Payload)
		if err != nil {
			return err
		}
		return s.sendResult(req.JobID, s.svc.ListTemplates(body.Page, body.PageSize))

	case protocol.OpGetTemplate:
		body, err := decodePayload[api.GetTemplateRequest](req.Payload)
		if err != nil {
			return err
		}
		tpl, err := s.svc.GetTemplate(body.TemplateID)
		if err != nil {
			return err
		}
		return s.sendResult(req.JobID, tpl)

	case protocol.OpCreateTemplate:
		body, err := decodePayload[api.CreateTemplateRequest](req.Payload)
		if err != nil {
			return err
		}
		tpl, err := s.svc.CreateTemplate(s.owner, s.userID, body)
		if err != nil {
			return err
		}
		return s.sendResult(req.JobID, tpl)
	}
	return &Error{Code: "UNKNOWN_OP", Message: "unknown operation: " + string(req.Op)}
}

// streamExecution emits the line frames for an execution: stdout in
// order, then stderr, then the result or error line.
func (s *session) streamExecution(jobID string, execution api.Execution) {
	now := time.Now().UnixMilli()
	for _, line := range execution.Logs.Stdout {
		s.sendLine(jobID, protocol.OutputLine{Type: protocol.LineStdout, Text: line, Timestamp: now})
	}
	for _, line := range execution.Logs.Stderr {
		s.sendLine(jobID, protocol.OutputLine{Type: protocol.LineStderr, Text: line, Timestamp: now})
	}
	if execution.Error != nil {
		encoded, err := json.Marshal(execution.Error)
		if err != nil {
			return
		}
		s.sendLine(jobID, protocol.OutputLine{Type: protocol.LineError, Text: string(encoded), Timestamp: now})
		return
	}
	if text := execution.Text(); text != "" {
		s.sendLine(jobID, protocol.OutputLine{Type: protocol.LineResult, Text: text, Timestamp: now})
	}
}

// streamTerminal emits the raw output as chunk frames, one per line,
// then the end frame carrying the exit code.
func (s *session) streamTerminal(jobID string, resp api.TerminalResponse) error {
	for _, chunk := range strings.SplitAfter(resp.Output, "\n") {
		if chunk == "" {
			continue
		}
		if err := s.sendFrame(protocol.ChunkFrame(jobID, chunk)); err != nil {
			return err
		}
	}
	return s.sendFrame(protocol.EndFrame(jobID, resp.ExitCode))
}

func (s *session) sendResult(jobID string, output any) error {
	var encoded json.RawMessage
	if output != nil {
		data, err := json.Marshal(output)
		if err != nil {
			return &Error{Code: "ENCODING", Message: "unencodable result: " + err.Error()}
		}
		encoded = data
	}
	return s.sendFrame(protocol.ResultFrame(jobID, true, encoded, ""))
}

func (s *session) sendLine(jobID string, line protocol.OutputLine) {
	frame, err := protocol.LineFrame(jobID, line)
	if err != nil {
		s.logger.Warn("dropping unencodable output line", zap.Error(err))
		return
	}
	if err := s.sendFrame(frame); err != nil {
		s.logger.Warn("line frame write failed", zap.Error(err))
	}
}

func (s *session) sendFrame(frame protocol.Frame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func decodePayload[T any](payload json.RawMessage) (T, error) {
	var out T
	if len(payload) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(payload, &out); err != nil {
		return out, &Error{Code: "PAYLOAD_INVALID", Message: "malformed payload: " + err.Error()}
	}
	return out, nil
}
