package client

import (
	"sync"
	"time"

	"github.com/isdmx/sandgate/api"
)

// maxResponseSamples bounds the response-time window used for the
// derived average.
const maxResponseSamples = 1000

// MetricsCollector accumulates counters and timing statistics across all
// dispatched jobs. Dispatch and settlement can happen on different
// goroutines, so every read-modify-write holds the mutex.
type MetricsCollector struct {
	mu sync.Mutex

	totalRequests      int64
	successfulRequests int64
	failedRequests     int64
	responseTimes      []float64
	totalExecutionMs   float64
	activeSandboxes    int
	lastUpdated        time.Time

	stopEmit chan struct{}
}

// NewMetricsCollector creates an empty collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{lastUpdated: time.Now()}
}

// RecordDispatch counts one dispatched job. Called at send time, not at
// settlement.
func (m *MetricsCollector) RecordDispatch() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totalRequests++
	m.lastUpdated = time.Now()
}

// RecordSettlement counts one settled job and folds its wall time into
// the running statistics.
func (m *MetricsCollector) RecordSettlement(success bool, elapsed time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if success {
		m.successfulRequests++
	} else {
		m.failedRequests++
	}

	ms := float64(elapsed) / float64(time.Millisecond)
	m.totalExecutionMs += ms
	m.responseTimes = append(m.responseTimes, ms)
	if len(m.responseTimes) > maxResponseSamples {
		m.responseTimes = m.responseTimes[1:]
	}
	m.lastUpdated = time.Now()
}

// SetActiveSandboxes updates the active sandbox gauge.
func (m *MetricsCollector) SetActiveSandboxes(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activeSandboxes = n
	m.lastUpdated = time.Now()
}

// Snapshot returns the current aggregate view.
func (m *MetricsCollector) Snapshot() api.MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	var avg float64
	if len(m.responseTimes) > 0 {
		var sum float64
		for _, v := range m.responseTimes {
			sum += v
		}
		avg = sum / float64(len(m.responseTimes))
	}

	return api.MetricsSnapshot{
		TotalRequests:      m.totalRequests,
		SuccessfulRequests: m.successfulRequests,
		FailedRequests:     m.failedRequests,
		AverageResponseMs:  avg,
		TotalExecutionMs:   m.totalExecutionMs,
		ActiveSandboxes:    m.activeSandboxes,
		LastUpdatedUnixMs:  m.lastUpdated.UnixMilli(),
	}
}

// Reset clears all accumulated statistics.
func (m *MetricsCollector) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totalRequests = 0
	m.successfulRequests = 0
	m.failedRequests = 0
	m.responseTimes = nil
	m.totalExecutionMs = 0
	m.lastUpdated = time.Now()
}

// StartEmitting delivers a snapshot to sink every interval until
// StopEmitting is called. The timer is re-armed after each tick, so the
// period can skew by up to one tick; that is acceptable here.
func (m *MetricsCollector) StartEmitting(interval time.Duration, sink func(api.MetricsSnapshot)) {
	m.mu.Lock()
	if m.stopEmit != nil {
		m.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	m.stopEmit = stop
	m.mu.Unlock()

	go func() {
		timer := time.NewTimer(interval)
		defer timer.Stop()
		for {
			select {
			case <-stop:
				return
			case <-timer.C:
				sink(m.Snapshot())
				timer.Reset(interval)
			}
		}
	}()
}

// StopEmitting cancels the periodic snapshot task. Safe to call when no
// task is running.
func (m *MetricsCollector) StopEmitting() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopEmit != nil {
		close(m.stopEmit)
		m.stopEmit = nil
	}
}
