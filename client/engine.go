package client

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/isdmx/sandgate/protocol"
)

// frameSender transmits an encoded job request. Implemented by the
// websocket connection; abstracted so engine tests need no network.
type frameSender interface {
	SendRequest(req protocol.JobRequest) error
}

// settlement is the terminal outcome of one job.
type settlement struct {
	output json.RawMessage
	err    error
}

// pendingCall is one in-flight job. It is owned by the engine's table
// from registration until settlement; the table holds at most one live
// entry per id.
type pendingCall struct {
	id        string
	op        protocol.Op
	callbacks StreamCallbacks
	timer     *time.Timer
	started   time.Time
	done      chan settlement
}

// wait blocks until the call settles or ctx is cancelled.
func (c *pendingCall) wait(ctx context.Context) (json.RawMessage, error) {
	select {
	case s := <-c.done:
		return s.output, s.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// engine is the job-correlation core: it issues correlation ids,
// registers pending calls, arms deadlines, and routes every inbound
// frame to the right call. Dispatch and routing run on different
// goroutines, so the table is mutex-guarded.
type engine struct {
	logger         *zap.Logger
	sender         frameSender
	limiter        *RateLimiter
	metrics        *MetricsCollector
	defaultTimeout time.Duration

	mu       sync.Mutex
	pending  map[string]*pendingCall
	closed   bool
	closeErr error
}

func newEngine(logger *zap.Logger, sender frameSender, limiter *RateLimiter, metrics *MetricsCollector, defaultTimeout time.Duration) *engine {
	return &engine{
		logger:         logger,
		sender:         sender,
		limiter:        limiter,
		metrics:        metrics,
		defaultTimeout: defaultTimeout,
		pending:        make(map[string]*pendingCall),
	}
}

// dispatch registers and transmits a new job, returning a handle that
// settles exactly once. The rate-limiter charge for a failed send is not
// refunded, but no table entry survives a failed send.
func (e *engine) dispatch(op protocol.Op, payload json.RawMessage, callbacks StreamCallbacks, timeout time.Duration) (*pendingCall, error) {
	if retryAfter, ok := e.limiter.Allow(); !ok {
		return nil, &RateLimitError{RetryAfter: retryAfter}
	}
	if timeout <= 0 {
		timeout = e.defaultTimeout
	}

	e.metrics.RecordDispatch()

	call := &pendingCall{
		id:        uuid.NewString(),
		op:        op,
		callbacks: callbacks,
		started:   time.Now(),
		done:      make(chan settlement, 1),
	}

	e.mu.Lock()
	if e.closed {
		err := e.closeErr
		e.mu.Unlock()
		e.metrics.RecordSettlement(false, 0)
		if err == nil {
			err = &ConnectionError{Reason: "transport closed"}
		}
		return nil, err
	}
	e.pending[call.id] = call
	e.limiter.JobStarted()
	call.timer = time.AfterFunc(timeout, func() {
		e.settle(call.id, nil, &TimeoutError{Op: op, Timeout: timeout})
	})
	e.mu.Unlock()

	if err := e.sender.SendRequest(protocol.JobRequest{JobID: call.id, Op: op, Payload: payload}); err != nil {
		// Evict the entry so the failed attempt leaves no live call. A
		// concurrent failAll may have settled it first, in which case
		// that settlement already counted.
		if e.evict(call.id) {
			e.metrics.RecordSettlement(false, time.Since(call.started))
		}
		return nil, &ConnectionError{Reason: "send failed", Err: err}
	}

	return call, nil
}

// handleFrame is the single inbound frame handler. It runs on the
// transport read goroutine, never blocks, and never propagates an error:
// a frame that cannot be routed is logged and dropped.
func (e *engine) handleFrame(f protocol.Frame) {
	switch f.Kind {
	case protocol.KindLine:
		call, ok := e.lookup(f.JobID)
		if !ok {
			e.logger.Debug("dropping stale line frame", zap.String("job_id", f.JobID))
			return
		}
		line, err := protocol.DecodeLine(f.Line)
		if err != nil {
			e.logger.Warn("dropping malformed output line", zap.String("job_id", f.JobID), zap.Error(err))
			return
		}
		e.deliverLine(call, line)

	case protocol.KindChunk:
		call, ok := e.lookup(f.JobID)
		if !ok {
			e.logger.Debug("dropping stale chunk frame", zap.String("job_id", f.JobID))
			return
		}
		if call.callbacks.OnChunk != nil {
			call.callbacks.OnChunk(f.Chunk)
		}

	case protocol.KindEnd:
		output, err := json.Marshal(map[string]int{"exitCode": f.ExitCode})
		if err != nil {
			e.logger.Warn("dropping unencodable end frame", zap.String("job_id", f.JobID), zap.Error(err))
			return
		}
		e.settle(f.JobID, output, nil)

	case protocol.KindResult:
		if f.Success {
			e.settle(f.JobID, f.Output, nil)
		} else {
			e.settle(f.JobID, nil, &SandboxError{Message: f.Error})
		}
	}
}

func (e *engine) deliverLine(call *pendingCall, line protocol.OutputLine) {
	switch line.Type {
	case protocol.LineStdout:
		if call.callbacks.OnStdout != nil {
			call.callbacks.OnStdout(outputMessage(line, false))
		}
	case protocol.LineStderr:
		if call.callbacks.OnStderr != nil {
			call.callbacks.OnStderr(outputMessage(line, true))
		}
	case protocol.LineResult:
		if call.callbacks.OnResult != nil {
			call.callbacks.OnResult(resultFromLine(line))
		}
	case protocol.LineError:
		if call.callbacks.OnError != nil {
			call.callbacks.OnError(executionErrorFromLine(line))
		}
	}
}

// settle resolves a pending call and evicts it. Settling an id that is
// absent (already settled, timed out, or never dispatched) is a no-op;
// this makes duplicate and late terminal frames harmless.
func (e *engine) settle(id string, output json.RawMessage, err error) {
	e.mu.Lock()
	call, ok := e.pending[id]
	if !ok {
		e.mu.Unlock()
		return
	}
	delete(e.pending, id)
	if call.timer != nil {
		call.timer.Stop()
	}
	e.mu.Unlock()

	e.limiter.JobFinished()
	e.metrics.RecordSettlement(err == nil, time.Since(call.started))
	call.done <- settlement{output: output, err: err}
}

// evict removes an entry without settling it, reporting whether it was
// still live. Used when a send fails and the dispatch error is returned
// directly.
func (e *engine) evict(id string) bool {
	e.mu.Lock()
	call, ok := e.pending[id]
	if ok {
		delete(e.pending, id)
		if call.timer != nil {
			call.timer.Stop()
		}
	}
	e.mu.Unlock()
	if ok {
		e.limiter.JobFinished()
	}
	return ok
}

func (e *engine) lookup(id string) (*pendingCall, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	call, ok := e.pending[id]
	return call, ok
}

// failAll settles every pending call with err and refuses further
// dispatches. Called when the transport drops so no call hangs until its
// deadline.
func (e *engine) failAll(err error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.closeErr = err
	calls := make([]*pendingCall, 0, len(e.pending))
	for id, call := range e.pending {
		delete(e.pending, id)
		if call.timer != nil {
			call.timer.Stop()
		}
		calls = append(calls, call)
	}
	e.mu.Unlock()

	for _, call := range calls {
		e.limiter.JobFinished()
		e.metrics.RecordSettlement(false, time.Since(call.started))
		call.done <- settlement{err: err}
	}
}

// pendingCount reports the number of live table entries.
func (e *engine) pendingCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}
