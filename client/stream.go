package client

import "github.com/isdmx/sandgate/api"

// StreamCallbacks is the capability set a caller may pass into a job.
// Each callback is invoked zero or more times before the call settles.
// Callbacks run on the transport's read goroutine and must not block.
type StreamCallbacks struct {
	OnStdout func(api.OutputMessage)
	OnStderr func(api.OutputMessage)
	OnResult func(api.Result)
	OnError  func(api.ExecutionError)
	OnChunk  func(string)
}
