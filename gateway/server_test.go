package gateway

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/isdmx/sandgate/api"
	"github.com/isdmx/sandgate/config"
	"github.com/isdmx/sandgate/protocol"
	"github.com/isdmx/sandgate/registry"
	"github.com/isdmx/sandgate/simulator"
)

type testGateway struct {
	server *Server
	svc    *Service
	http   *httptest.Server
	token  string
	userID string
}

func newTestGateway(t *testing.T) *testGateway {
	t.Helper()
	logger := zaptest.NewLogger(t)
	reg, err := registry.New(logger)
	require.NoError(t, err)
	svc := NewService(logger, reg, simulator.New(logger), 0)

	cfg := &config.Config{
		Server:  config.ServerConfig{HTTPPort: 8080},
		Logging: config.LoggingConfig{Mode: "production", Level: "info"},
	}
	server := NewServer(cfg, logger, svc, reg)

	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)

	token, userID := reg.Tokens.Register()
	return &testGateway{server: server, svc: svc, http: ts, token: token, userID: userID}
}

func (g *testGateway) request(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, g.http.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.token)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestServerHealthIsUnauthenticated(t *testing.T) {
	g := newTestGateway(t)
	resp, err := http.Get(g.http.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServerRegisterIssuesWorkingToken(t *testing.T) {
	g := newTestGateway(t)

	resp, err := http.Post(g.http.URL+"/api/auth/register", "application/json", nil)
	require.NoError(t, err)
	registered := decodeBody[api.RegisterResponse](t, resp)
	require.NotEmpty(t, registered.Token)
	require.NotEmpty(t, registered.UserID)

	req, err := http.NewRequest(http.MethodGet, g.http.URL+"/api/templates", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+registered.Token)
	authed, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer authed.Body.Close()
	assert.Equal(t, http.StatusOK, authed.StatusCode)
}

func TestServerRejectsBadCredentials(t *testing.T) {
	g := newTestGateway(t)

	t.Run("MissingToken", func(t *testing.T) {
		resp, err := http.Get(g.http.URL + "/api/templates")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("InvalidToken", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodGet, g.http.URL+"/api/templates", nil)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer sgk_bogus")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}

func TestServerRESTFlow(t *testing.T) {
	g := newTestGateway(t)

	created := decodeBody[api.CreateSandboxResponse](t,
		g.request(t, http.MethodPost, "/api/sandboxes/create", api.CreateSandboxRequest{TemplateID: "python-3-11"}))
	sandboxID := created.Sandbox.ID
	require.NotEmpty(t, sandboxID)

	status := decodeBody[api.SandboxStatusResponse](t,
		g.request(t, http.MethodGet, "/api/sandboxes/"+sandboxID+"/status", nil))
	assert.Equal(t, api.StatusReady, status.Status)

	execution := decodeBody[api.Execution](t,
		g.request(t, http.MethodPost, "/api/sandboxes/"+sandboxID+"/execute", api.ExecuteRequest{Code: `print("hi")`}))
	assert.Equal(t, []string{"hi"}, execution.Logs.Stdout)
	assert.Equal(t, "hi", execution.Text())

	terminal := decodeBody[api.TerminalResponse](t,
		g.request(t, http.MethodPost, "/api/sandboxes/"+sandboxID+"/terminal", api.TerminalRequest{Command: "pwd"}))
	assert.Equal(t, "/workspace\n", terminal.Output)

	written := decodeBody[api.FileWriteResponse](t,
		g.request(t, http.MethodPost, "/api/sandboxes/"+sandboxID+"/files?path=/main.py",
			api.FileRequest{Path: "/main.py", Content: "print('hi')", CreateParents: true}))
	assert.Equal(t, "/main.py", written.Path)

	read := decodeBody[api.FileContentResponse](t,
		g.request(t, http.MethodGet, "/api/sandboxes/"+sandboxID+"/files?path=/main.py", nil))
	assert.Equal(t, "print('hi')", read.Content)

	deleted := g.request(t, http.MethodDelete, "/api/sandboxes/"+sandboxID, nil)
	deleted.Body.Close()
	assert.Equal(t, http.StatusNoContent, deleted.StatusCode)

	missing := g.request(t, http.MethodGet, "/api/sandboxes/"+sandboxID+"/status", nil)
	body := decodeBody[api.ErrorResponse](t, missing)
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
	assert.Equal(t, "SANDBOX_NOT_FOUND", body.Code)
}

func TestServerMetricsEndpoint(t *testing.T) {
	g := newTestGateway(t)

	resp := g.request(t, http.MethodPost, "/api/sandboxes/create", api.CreateSandboxRequest{TemplateID: "node-20"})
	resp.Body.Close()

	snap := decodeBody[api.MetricsSnapshot](t, g.request(t, http.MethodGet, "/api/metrics", nil))
	assert.Equal(t, int64(1), snap.TotalRequests)
	assert.Equal(t, int64(1), snap.SuccessfulRequests)
	assert.Equal(t, 1, snap.ActiveSandboxes)
}

func dialTestStream(t *testing.T, g *testGateway) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(g.http.URL, "http") + "/ws"
	header := http.Header{}
	header.Set("Authorization", "Bearer "+g.token)
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendJob(t *testing.T, conn *websocket.Conn, jobID string, op protocol.Op, payload any) {
	t.Helper()
	encoded, err := json.Marshal(payload)
	require.NoError(t, err)
	data, err := protocol.EncodeRequest(protocol.JobRequest{JobID: jobID, Op: op, Payload: encoded})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
}

func readFrame(t *testing.T, conn *websocket.Conn) protocol.Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	frame, err := protocol.DecodeFrame(data)
	require.NoError(t, err)
	return frame
}

func TestServerStreamSession(t *testing.T) {
	g := newTestGateway(t)
	conn := dialTestStream(t, g)

	sendJob(t, conn, "job-create", protocol.OpCreateSandbox, api.CreateSandboxRequest{TemplateID: "python-3-11"})
	created := readFrame(t, conn)
	require.Equal(t, protocol.KindResult, created.Kind)
	require.True(t, created.Success)

	var createResp api.CreateSandboxResponse
	require.NoError(t, json.Unmarshal(created.Output, &createResp))
	sandboxID := createResp.Sandbox.ID

	t.Run("RunCodeStreamsLinesBeforeResult", func(t *testing.T) {
		sendJob(t, conn, "job-run", protocol.OpRunCode, api.ExecuteRequest{SandboxID: sandboxID, Code: `print("hi")`, Language: "python"})

		first := readFrame(t, conn)
		require.Equal(t, protocol.KindLine, first.Kind)
		line, err := protocol.DecodeLine(first.Line)
		require.NoError(t, err)
		assert.Equal(t, protocol.LineStdout, line.Type)
		assert.Equal(t, "hi", line.Text)

		second := readFrame(t, conn)
		require.Equal(t, protocol.KindLine, second.Kind)
		line, err = protocol.DecodeLine(second.Line)
		require.NoError(t, err)
		assert.Equal(t, protocol.LineResult, line.Type)

		terminal := readFrame(t, conn)
		require.Equal(t, protocol.KindResult, terminal.Kind)
		require.True(t, terminal.Success)
		assert.Equal(t, "job-run", terminal.JobID)

		var execution api.Execution
		require.NoError(t, json.Unmarshal(terminal.Output, &execution))
		assert.Equal(t, "hi", execution.Text())
	})

	t.Run("RunTerminalStreamsChunksThenEnd", func(t *testing.T) {
		sendJob(t, conn, "job-term", protocol.OpRunTerminal, api.TerminalRequest{SandboxID: sandboxID, Command: "echo hello"})

		chunk := readFrame(t, conn)
		require.Equal(t, protocol.KindChunk, chunk.Kind)
		assert.Equal(t, "hello\n", chunk.Chunk)

		end := readFrame(t, conn)
		require.Equal(t, protocol.KindEnd, end.Kind)
		assert.Equal(t, 0, end.ExitCode)
	})

	t.Run("UnknownSandboxSettlesWithFailure", func(t *testing.T) {
		sendJob(t, conn, "job-bad", protocol.OpRunCode, api.ExecuteRequest{SandboxID: "nope", Code: "print('x')"})
		frame := readFrame(t, conn)
		require.Equal(t, protocol.KindResult, frame.Kind)
		assert.False(t, frame.Success)
		assert.Contains(t, frame.Error, "sandbox not found")
	})
}

func TestServerStreamDisconnectPurgesOwnedSandboxes(t *testing.T) {
	g := newTestGateway(t)
	conn := dialTestStream(t, g)

	sendJob(t, conn, "job-create", protocol.OpCreateSandbox, api.CreateSandboxRequest{TemplateID: "node-20"})
	created := readFrame(t, conn)
	require.True(t, created.Success)

	var createResp api.CreateSandboxResponse
	require.NoError(t, json.Unmarshal(created.Output, &createResp))
	sandboxID := createResp.Sandbox.ID

	_, err := g.svc.SandboxStatus(g.userID, sandboxID)
	require.NoError(t, err)

	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool {
		_, statusErr := g.svc.SandboxStatus(g.userID, sandboxID)
		return statusErr != nil
	}, 5*time.Second, 10*time.Millisecond)
}

func TestServerIsolatesUsers(t *testing.T) {
	g := newTestGateway(t)

	created := decodeBody[api.CreateSandboxResponse](t,
		g.request(t, http.MethodPost, "/api/sandboxes/create", api.CreateSandboxRequest{TemplateID: "python-3-11"}))
	sandboxID := created.Sandbox.ID
	require.NotEmpty(t, sandboxID)

	otherToken, _ := g.server.tokens.Register()

	asOther := func(t *testing.T, method, path string, body any) *http.Response {
		t.Helper()
		saved := g.token
		g.token = otherToken
		defer func() { g.token = saved }()
		return g.request(t, method, path, body)
	}

	t.Run("ExecuteIsRejected", func(t *testing.T) {
		resp := asOther(t, http.MethodPost, "/api/sandboxes/"+sandboxID+"/execute", api.ExecuteRequest{Code: `print("stolen")`})
		body := decodeBody[api.ErrorResponse](t, resp)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, "SANDBOX_NOT_FOUND", body.Code)
	})

	t.Run("DeleteIsRejected", func(t *testing.T) {
		resp := asOther(t, http.MethodDelete, "/api/sandboxes/"+sandboxID, nil)
		resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("OwnerStillHasIt", func(t *testing.T) {
		status := decodeBody[api.SandboxStatusResponse](t,
			g.request(t, http.MethodGet, "/api/sandboxes/"+sandboxID+"/status", nil))
		assert.Equal(t, api.StatusReady, status.Status)
	})
}

func TestServerStreamRequiresAuth(t *testing.T) {
	g := newTestGateway(t)
	wsURL := "ws" + strings.TrimPrefix(g.http.URL, "http") + "/ws"

	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
