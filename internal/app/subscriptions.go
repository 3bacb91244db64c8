package app

import (
	"context"
	"sync"
	"time"

	"github.com/dshills/retroide/internal/event"
	"github.com/dshills/retroide/internal/journal"
	"github.com/dshills/retroide/internal/protocol"
	"github.com/dshills/retroide/internal/worker"
)

// subscriptionManager runs the application's own bus consumers.
type subscriptionManager struct {
	app *Application

	mu            sync.Mutex
	subscriptions []*event.Subscription
	started       bool
	wg            sync.WaitGroup

	stderrMu sync.Mutex
	stderr   []string
}

// stderrTail is the number of worker stderr lines kept for display.
const stderrTail = 50

func newSubscriptionManager(app *Application) *subscriptionManager {
	return &subscriptionManager{app: app}
}

// setup registers the consumers. Calling it again is a no-op.
func (sm *subscriptionManager) setup() error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.started {
		return nil
	}

	// Lifecycle transitions -> journal and metrics
	if err := sm.consume(worker.EventLifecycle, sm.handleLifecycle); err != nil {
		return err
	}

	// Worker stderr -> tail
	if err := sm.consume(worker.EventStderr, sm.handleStderr); err != nil {
		sm.cancelLocked()
		return err
	}

	sm.started = true
	return nil
}

// consume subscribes to pattern and handles each event on its own
// goroutine until the subscription closes.
func (sm *subscriptionManager) consume(pattern string, handle func(protocol.Message)) error {
	// Lifecycle records must not be lost behind a burst of stderr lines.
	sub, err := sm.app.bus.Subscribe(pattern, event.WithBuffer(256), event.WithPolicy(event.DropOldest))
	if err != nil {
		return err
	}
	sm.subscriptions = append(sm.subscriptions, sub)

	sm.wg.Add(1)
	go func() {
		defer sm.wg.Done()
		for msg := range sub.Events() {
			handle(msg)
		}
	}()
	return nil
}

func (sm *subscriptionManager) handleLifecycle(msg protocol.Message) {
	var tr worker.Transition
	if err := msg.DecodeParams(&tr); err != nil {
		sm.app.log.Warn("undecodable lifecycle event", "error", err)
		return
	}

	switch tr.To {
	case worker.StateCrashed.String():
		sm.app.metrics.RecordCrash()
	case worker.StateStarting.String():
		if tr.From == worker.StateCrashed.String() {
			sm.app.metrics.RecordRestart()
		}
	}

	if sm.app.journal == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := sm.app.journal.RecordTransition(ctx, journal.TransitionRecord{
		SessionID:  sm.app.sessionID,
		From:       tr.From,
		To:         tr.To,
		InstanceID: tr.InstanceID,
		PID:        tr.PID,
		Restarts:   tr.Restarts,
		Error:      tr.Error,
		At:         tr.At,
	})
	if err != nil {
		sm.app.log.Warn("journal write failed", "event", msg.Method, "error", err)
	}
}

func (sm *subscriptionManager) handleStderr(msg protocol.Message) {
	var line worker.StderrLine
	if err := msg.DecodeParams(&line); err != nil {
		return
	}
	sm.stderrMu.Lock()
	defer sm.stderrMu.Unlock()
	if len(sm.stderr) == stderrTail {
		copy(sm.stderr, sm.stderr[1:])
		sm.stderr = sm.stderr[:stderrTail-1]
	}
	sm.stderr = append(sm.stderr, line.Line)
}

// recentStderr returns a copy of the kept stderr lines, oldest first.
func (sm *subscriptionManager) recentStderr() []string {
	sm.stderrMu.Lock()
	defer sm.stderrMu.Unlock()
	return append([]string(nil), sm.stderr...)
}

func (sm *subscriptionManager) cancelLocked() {
	for _, sub := range sm.subscriptions {
		sub.Cancel()
	}
	sm.subscriptions = nil
}

// wait cancels every subscription and waits for the consumers to drain
// what was already queued. Safe to call multiple times.
func (sm *subscriptionManager) wait() {
	sm.mu.Lock()
	sm.cancelLocked()
	sm.mu.Unlock()
	sm.wg.Wait()
}
