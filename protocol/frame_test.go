package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeRequest(t *testing.T) {
	t.Run("ValidRequest", func(t *testing.T) {
		payload, _ := json.Marshal(map[string]string{"sandboxId": "sb-1"})
		data, err := EncodeRequest(JobRequest{JobID: "job-1", Op: OpRunCode, Payload: payload})
		require.NoError(t, err)

		var decoded JobRequest
		require.NoError(t, json.Unmarshal(data, &decoded))
		assert.Equal(t, "job-1", decoded.JobID)
		assert.Equal(t, OpRunCode, decoded.Op)
	})

	t.Run("MissingJobID", func(t *testing.T) {
		_, err := EncodeRequest(JobRequest{Op: OpRunCode})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "missing job id")
	})

	t.Run("UnknownOperation", func(t *testing.T) {
		_, err := EncodeRequest(JobRequest{JobID: "job-1", Op: "explode"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown operation")
	})
}

func TestDecodeFrame(t *testing.T) {
	t.Run("ResultFrame", func(t *testing.T) {
		frame, err := DecodeFrame([]byte(`{"jobId":"job-1","kind":"result","success":true,"output":{"ok":1}}`))
		require.NoError(t, err)
		assert.Equal(t, "job-1", frame.JobID)
		assert.Equal(t, KindResult, frame.Kind)
		assert.True(t, frame.Success)
	})

	t.Run("EndFrame", func(t *testing.T) {
		frame, err := DecodeFrame([]byte(`{"jobId":"job-2","kind":"end","exitCode":127}`))
		require.NoError(t, err)
		assert.Equal(t, KindEnd, frame.Kind)
		assert.Equal(t, 127, frame.ExitCode)
	})

	t.Run("MalformedJSON", func(t *testing.T) {
		_, err := DecodeFrame([]byte(`{"jobId":`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "malformed frame")
	})

	t.Run("MissingJobID", func(t *testing.T) {
		_, err := DecodeFrame([]byte(`{"kind":"result"}`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "missing job id")
	})

	t.Run("UnknownKind", func(t *testing.T) {
		_, err := DecodeFrame([]byte(`{"jobId":"job-1","kind":"telemetry"}`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown frame kind")
	})
}

func TestLineRoundTrip(t *testing.T) {
	encoded, err := EncodeLine(OutputLine{Type: LineStdout, Text: "hello", Timestamp: 42})
	require.NoError(t, err)

	line, err := DecodeLine(encoded)
	require.NoError(t, err)
	assert.Equal(t, LineStdout, line.Type)
	assert.Equal(t, "hello", line.Text)
	assert.Equal(t, int64(42), line.Timestamp)
}

func TestDecodeLineRejectsUnknownType(t *testing.T) {
	_, err := DecodeLine(`{"type":"trace","text":"x"}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown line type")
}

func TestLineFrameEmbedsPayload(t *testing.T) {
	frame, err := LineFrame("job-1", OutputLine{Type: LineStderr, Text: "boom"})
	require.NoError(t, err)
	assert.Equal(t, KindLine, frame.Kind)

	line, err := DecodeLine(frame.Line)
	require.NoError(t, err)
	assert.Equal(t, LineStderr, line.Type)
	assert.Equal(t, "boom", line.Text)
}

func TestOpValid(t *testing.T) {
	for _, op := range []Op{
		OpCreateSandbox, OpDeleteSandbox, OpSandboxStatus,
		OpRunCode, OpRunTerminal,
		OpFileRead, OpFileWrite, OpFileDelete, OpFileList,
		OpCreateContext, OpDeleteContext,
		OpListTemplates, OpGetTemplate, OpCreateTemplate,
	} {
		assert.True(t, op.Valid(), string(op))
	}
	assert.False(t, Op("delete-sandbx").Valid())
	assert.False(t, Op("").Valid())
}
