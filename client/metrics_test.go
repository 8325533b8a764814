package client

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isdmx/sandgate/api"
)

func TestMetricsCollector(t *testing.T) {
	t.Run("CountsDispatchAndSettlement", func(t *testing.T) {
		m := NewMetricsCollector()
		m.RecordDispatch()
		m.RecordDispatch()
		m.RecordSettlement(true, 10*time.Millisecond)
		m.RecordSettlement(false, 30*time.Millisecond)

		snap := m.Snapshot()
		assert.Equal(t, int64(2), snap.TotalRequests)
		assert.Equal(t, int64(1), snap.SuccessfulRequests)
		assert.Equal(t, int64(1), snap.FailedRequests)
		assert.InDelta(t, 20.0, snap.AverageResponseMs, 0.001)
		assert.InDelta(t, 40.0, snap.TotalExecutionMs, 0.001)
	})

	t.Run("ActiveSandboxGauge", func(t *testing.T) {
		m := NewMetricsCollector()
		m.SetActiveSandboxes(4)
		assert.Equal(t, 4, m.Snapshot().ActiveSandboxes)
		m.SetActiveSandboxes(0)
		assert.Equal(t, 0, m.Snapshot().ActiveSandboxes)
	})

	t.Run("ResponseWindowIsBounded", func(t *testing.T) {
		m := NewMetricsCollector()
		for i := 0; i < maxResponseSamples+50; i++ {
			m.RecordSettlement(true, time.Millisecond)
		}
		assert.Len(t, m.responseTimes, maxResponseSamples)
	})

	t.Run("Reset", func(t *testing.T) {
		m := NewMetricsCollector()
		m.RecordDispatch()
		m.RecordSettlement(true, time.Millisecond)
		m.Reset()

		snap := m.Snapshot()
		assert.Equal(t, int64(0), snap.TotalRequests)
		assert.Equal(t, int64(0), snap.SuccessfulRequests)
		assert.Equal(t, 0.0, snap.AverageResponseMs)
	})
}

func TestMetricsEmission(t *testing.T) {
	m := NewMetricsCollector()
	m.RecordDispatch()
	m.RecordSettlement(true, time.Millisecond)

	var mu sync.Mutex
	var got []api.MetricsSnapshot
	done := make(chan struct{})
	m.StartEmitting(10*time.Millisecond, func(snap api.MetricsSnapshot) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, snap)
		if len(got) == 2 {
			close(done)
		}
	})
	defer m.StopEmitting()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected at least two snapshot emissions")
	}

	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, len(got), 2)
	assert.Equal(t, int64(1), got[0].TotalRequests)
}

func TestStartEmittingIsIdempotent(t *testing.T) {
	m := NewMetricsCollector()
	m.StartEmitting(time.Hour, func(api.MetricsSnapshot) {})
	m.StartEmitting(time.Hour, func(api.MetricsSnapshot) {})
	m.StopEmitting()
	m.StopEmitting()
}
