package app

import (
	"sync/atomic"
	"time"

	"github.com/dshills/retroide/internal/protocol"
)

// outcomes lists every outcome Metrics counts, in display order.
var outcomes = []protocol.Outcome{
	protocol.OutcomeOK,
	protocol.OutcomeAppError,
	protocol.OutcomeTimeout,
	protocol.OutcomeWorkerLost,
	protocol.OutcomeUnavailable,
	protocol.OutcomeProtocolError,
	protocol.OutcomeCancelled,
	protocol.OutcomeInvalid,
}

// Metrics tracks call counts and latency for the session.
type Metrics struct {
	counts map[protocol.Outcome]*atomic.Uint64

	callCount atomic.Uint64
	totalNs   atomic.Int64
	minNs     atomic.Int64
	maxNs     atomic.Int64
	lastNs    atomic.Int64

	// Transitions observed on the bus.
	crashes  atomic.Uint64
	restarts atomic.Uint64

	startTime time.Time
}

// NewMetrics creates a new metrics tracker.
func NewMetrics() *Metrics {
	m := &Metrics{
		counts:    make(map[protocol.Outcome]*atomic.Uint64, len(outcomes)),
		startTime: time.Now(),
	}
	for _, o := range outcomes {
		m.counts[o] = new(atomic.Uint64)
	}
	// Initialize min to max int64 so the first call will be smaller
	m.minNs.Store(1<<63 - 1)
	return m
}

// RecordCall records one finished call.
func (m *Metrics) RecordCall(outcome protocol.Outcome, duration time.Duration) {
	ns := duration.Nanoseconds()

	if c, ok := m.counts[outcome]; ok {
		c.Add(1)
	}
	m.callCount.Add(1)
	m.totalNs.Add(ns)
	m.lastNs.Store(ns)

	for {
		old := m.minNs.Load()
		if ns >= old || m.minNs.CompareAndSwap(old, ns) {
			break
		}
	}
	for {
		old := m.maxNs.Load()
		if ns <= old || m.maxNs.CompareAndSwap(old, ns) {
			break
		}
	}
}

// RecordCrash counts a worker crash.
func (m *Metrics) RecordCrash() {
	m.crashes.Add(1)
}

// RecordRestart counts an automatic restart attempt.
func (m *Metrics) RecordRestart() {
	m.restarts.Add(1)
}

// Snapshot returns a snapshot of current metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	calls := m.callCount.Load()
	snap := MetricsSnapshot{
		Calls:    calls,
		Outcomes: make(map[protocol.Outcome]uint64, len(outcomes)),
		Last:     time.Duration(m.lastNs.Load()),
		Max:      time.Duration(m.maxNs.Load()),
		Crashes:  m.crashes.Load(),
		Restarts: m.restarts.Load(),
		Uptime:   time.Since(m.startTime),
	}
	for o, c := range m.counts {
		snap.Outcomes[o] = c.Load()
	}
	if calls > 0 {
		snap.Min = time.Duration(m.minNs.Load())
		snap.Avg = time.Duration(m.totalNs.Load() / int64(calls))
	}
	return snap
}

// MetricsSnapshot is a point-in-time copy of Metrics.
type MetricsSnapshot struct {
	Calls    uint64
	Outcomes map[protocol.Outcome]uint64
	Min      time.Duration
	Max      time.Duration
	Avg      time.Duration
	Last     time.Duration
	Crashes  uint64
	Restarts uint64
	Uptime   time.Duration
}

// Failed returns the number of calls that did not succeed.
func (s MetricsSnapshot) Failed() uint64 {
	return s.Calls - s.Outcomes[protocol.OutcomeOK]
}

// SuccessRate returns the fraction of successful calls, or 1 with no calls.
func (s MetricsSnapshot) SuccessRate() float64 {
	if s.Calls == 0 {
		return 1
	}
	return float64(s.Outcomes[protocol.OutcomeOK]) / float64(s.Calls)
}
