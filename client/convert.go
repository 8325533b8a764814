package client

import (
	"encoding/json"

	"github.com/isdmx/sandgate/api"
	"github.com/isdmx/sandgate/protocol"
)

func outputMessage(line protocol.OutputLine, isErr bool) api.OutputMessage {
	return api.OutputMessage{Line: line.Text, Timestamp: line.Timestamp, Error: isErr}
}

func resultFromLine(line protocol.OutputLine) api.Result {
	return api.Result{IsMainResult: true, Text: line.Text}
}

// executionErrorFromLine decodes the error line payload. Error lines
// carry a JSON-encoded api.ExecutionError in Text; anything else is
// treated as a bare value.
func executionErrorFromLine(line protocol.OutputLine) api.ExecutionError {
	var execErr api.ExecutionError
	if err := json.Unmarshal([]byte(line.Text), &execErr); err == nil && execErr.Name != "" {
		return execErr
	}
	return api.ExecutionError{Name: "ExecutionError", Value: line.Text}
}
