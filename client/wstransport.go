package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/isdmx/sandgate/api"
	"github.com/isdmx/sandgate/protocol"
)

// jobOptions carries the per-call knobs a typed method passes down to a
// transport.
type jobOptions struct {
	timeout   time.Duration
	callbacks StreamCallbacks
}

// transport executes one job against the gateway. Both implementations
// produce logically equivalent results for equivalent operations.
type transport interface {
	do(ctx context.Context, op protocol.Op, payload any, opts jobOptions) (json.RawMessage, error)
	close() error
}

// streamTransport runs jobs over a single long-lived websocket
// connection through the job engine. Frame writes are serialized by
// wsConn; frame reads happen on one goroutine feeding the engine.
type streamTransport struct {
	logger *zap.Logger
	conn   *wsConn
	engine *engine
}

// wsConn wraps a websocket connection with a write mutex; gorilla
// connections support one concurrent writer only.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) SendRequest(req protocol.JobRequest) error {
	data, err := protocol.EncodeRequest(req)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Close()
}

// dialStream connects to the gateway's stream endpoint and starts the
// read loop.
func dialStream(ctx context.Context, serverURL, token string, limiter *RateLimiter, metrics *MetricsCollector, defaultTimeout time.Duration, logger *zap.Logger) (*streamTransport, error) {
	wsURL, err := streamEndpoint(serverURL)
	if err != nil {
		return nil, &ConnectionError{Reason: "invalid server url", Err: err}
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, &AuthError{Message: "authentication rejected"}
		}
		return nil, &ConnectionError{Reason: "dial failed", Err: err}
	}

	t := &streamTransport{
		logger: logger,
		conn:   &wsConn{conn: conn},
	}
	t.engine = newEngine(logger, t.conn, limiter, metrics, defaultTimeout)

	go t.readLoop()
	return t, nil
}

// streamEndpoint derives the websocket URL from the HTTP server URL.
func streamEndpoint(serverURL string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	return u.String(), nil
}

// readLoop feeds every inbound frame to the engine in arrival order.
// On read failure all pending calls settle with a connection error.
func (t *streamTransport) readLoop() {
	for {
		_, data, err := t.conn.conn.ReadMessage()
		if err != nil {
			t.engine.failAll(&ConnectionError{Reason: "connection closed", Err: err})
			return
		}
		frame, err := protocol.DecodeFrame(data)
		if err != nil {
			t.logger.Warn("dropping unroutable frame", zap.Error(err))
			continue
		}
		t.engine.handleFrame(frame)
	}
}

func (t *streamTransport) do(ctx context.Context, op protocol.Op, payload any, opts jobOptions) (json.RawMessage, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, &SandboxError{Message: "unencodable payload: " + err.Error()}
	}

	callbacks := opts.callbacks
	var chunks *chunkCollector
	if op == protocol.OpRunTerminal {
		// Terminal jobs settle with only an exit code; the output text
		// arrives as raw chunks that are collected here.
		chunks = newChunkCollector(callbacks.OnChunk, callbacks.OnStdout)
		callbacks.OnChunk = chunks.collect
	}

	call, err := t.engine.dispatch(op, encoded, callbacks, opts.timeout)
	if err != nil {
		return nil, err
	}
	output, err := call.wait(ctx)
	if err != nil {
		return nil, err
	}

	if chunks != nil {
		return chunks.terminalResponse(output)
	}
	return output, nil
}

func (t *streamTransport) close() error {
	err := t.conn.Close()
	t.engine.failAll(&ConnectionError{Reason: "client closed"})
	return err
}

// chunkCollector accumulates raw terminal output while forwarding each
// chunk to the caller's callbacks.
type chunkCollector struct {
	mu       sync.Mutex
	buf      strings.Builder
	onChunk  func(string)
	onStdout func(api.OutputMessage)
}

func newChunkCollector(onChunk func(string), onStdout func(api.OutputMessage)) *chunkCollector {
	return &chunkCollector{onChunk: onChunk, onStdout: onStdout}
}

func (c *chunkCollector) collect(chunk string) {
	c.mu.Lock()
	c.buf.WriteString(chunk)
	c.mu.Unlock()
	if c.onChunk != nil {
		c.onChunk(chunk)
	}
	if c.onStdout != nil {
		c.onStdout(api.OutputMessage{Line: chunk, Timestamp: time.Now().UnixMicro()})
	}
}

// terminalResponse folds the collected chunks and the end frame's exit
// code into a TerminalResponse payload.
func (c *chunkCollector) terminalResponse(endOutput json.RawMessage) (json.RawMessage, error) {
	var end struct {
		ExitCode int `json:"exitCode"`
	}
	if len(endOutput) > 0 {
		if err := json.Unmarshal(endOutput, &end); err != nil {
			return nil, &SandboxError{Message: "malformed stream end: " + err.Error()}
		}
	}
	c.mu.Lock()
	output := c.buf.String()
	c.mu.Unlock()
	return json.Marshal(api.TerminalResponse{Output: output, ExitCode: end.ExitCode})
}
