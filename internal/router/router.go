// Package router correlates requests sent to the worker with the responses
// that come back.
//
// Every Call is assigned a fresh id and parked in the pending map until the
// reader goroutine hands the matching response to Dispatch, the caller's
// deadline passes, the caller cancels, or the worker connection is lost.
// Whichever of those removes the entry from the map resolves the call; the
// others find it gone and do nothing, so each call completes exactly once.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dshills/retroide/internal/logging"
	"github.com/dshills/retroide/internal/protocol"
)

// DefaultTimeout applies to calls made without an explicit timeout.
const DefaultTimeout = 30 * time.Second

// ErrDetached is the cause reported by calls made before any worker
// connection was attached.
var ErrDetached = errors.New("no worker attached")

// rejectTimeout bounds the reply to a request the worker sent us.
const rejectTimeout = time.Second

// Sender delivers a message to the worker, giving up when ctx is done.
// transport.Channel satisfies it.
type Sender interface {
	SendContext(ctx context.Context, msg protocol.Message) error
}

// Stats is a snapshot of router counters.
type Stats struct {
	InFlight  int
	Completed uint64
	TimedOut  uint64
	Cancelled uint64
	Failed    uint64
	Dropped   uint64
}

type result struct {
	value json.RawMessage
	err   error
}

type pendingCall struct {
	id      uint64
	method  string
	started time.Time
	done    chan result
}

// Router owns the pending-call table for one supervisor lifetime.
type Router struct {
	log            *logging.Logger
	defaultTimeout atomic.Int64

	nextID atomic.Uint64

	mu        sync.Mutex
	pending   map[uint64]*pendingCall
	sender    Sender
	detachErr error

	completed atomic.Uint64
	timedOut  atomic.Uint64
	cancelled atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64
}

// Option configures a Router.
type Option func(*Router)

// WithDefaultTimeout sets the timeout for calls that pass zero.
func WithDefaultTimeout(d time.Duration) Option {
	return func(r *Router) {
		if d > 0 {
			r.defaultTimeout.Store(int64(d))
		}
	}
}

// New creates a detached router.
func New(log *logging.Logger, opts ...Option) *Router {
	if log == nil {
		log = logging.Nop()
	}
	r := &Router{
		log:       log.WithComponent("router"),
		pending:   make(map[uint64]*pendingCall),
		detachErr: &protocol.WorkerLostError{Cause: ErrDetached},
	}
	r.defaultTimeout.Store(int64(DefaultTimeout))
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetDefaultTimeout changes the default call timeout at runtime.
func (r *Router) SetDefaultTimeout(d time.Duration) {
	if d > 0 {
		r.defaultTimeout.Store(int64(d))
	}
}

// DefaultTimeout returns the current default call timeout.
func (r *Router) DefaultTimeout() time.Duration {
	return time.Duration(r.defaultTimeout.Load())
}

// Call sends a request and waits for its response.
//
// A zero or negative timeout uses the default. The returned error is one
// of: a *protocol.ErrorObject reported by the worker, an error matching
// protocol.ErrTimeout, a *protocol.WorkerLostError, the reason given to the
// last Detach, or ctx.Err(). The timeout starts before the request is
// written, so a worker that stops reading cannot hold the caller. Timing
// out or cancelling sends nothing to the worker; a late response is
// discarded by Dispatch.
func (r *Router) Call(ctx context.Context, method string, params any, timeout time.Duration) (json.RawMessage, error) {
	if timeout <= 0 {
		timeout = r.DefaultTimeout()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	id := r.nextID.Add(1)
	msg, err := protocol.NewRequest(id, method, params)
	if err != nil {
		return nil, err
	}

	pc := &pendingCall{
		id:      id,
		method:  method,
		started: time.Now(),
		done:    make(chan result, 1),
	}

	r.mu.Lock()
	sender := r.sender
	if sender == nil {
		reason := r.detachErr
		r.mu.Unlock()
		return nil, reason
	}
	r.pending[id] = pc
	r.mu.Unlock()

	// The deadline covers the send too: a worker that stops reading its
	// input must not hold the caller past its timeout.
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := sender.SendContext(callCtx, msg); err != nil {
		if _, ok := r.remove(id); !ok {
			// Already resolved by FailAll; report that outcome instead.
			res := <-pc.done
			return res.value, res.err
		}
		switch {
		case ctx.Err() != nil:
			r.cancelled.Add(1)
			r.log.Debug("call cancelled while sending", "id", id, "method", method)
			return nil, ctx.Err()
		case errors.Is(err, protocol.ErrTimeout):
			r.timedOut.Add(1)
			r.log.Warn("call timed out while sending", "id", id, "method", method, "timeout", timeout)
			return nil, fmt.Errorf("%s after %v: %w", method, timeout, protocol.ErrTimeout)
		case errors.Is(err, protocol.ErrIO):
			r.failed.Add(1)
			return nil, &protocol.WorkerLostError{Cause: err}
		default:
			r.failed.Add(1)
			return nil, fmt.Errorf("send %s: %w", method, err)
		}
	}

	select {
	case res := <-pc.done:
		return res.value, res.err

	case <-callCtx.Done():
		if _, ok := r.remove(id); !ok {
			res := <-pc.done
			return res.value, res.err
		}
		if err := ctx.Err(); err != nil {
			r.cancelled.Add(1)
			r.log.Debug("call cancelled", "id", id, "method", method)
			return nil, err
		}
		r.timedOut.Add(1)
		r.log.Warn("call timed out", "id", id, "method", method, "timeout", timeout)
		return nil, fmt.Errorf("%s after %v: %w", method, timeout, protocol.ErrTimeout)
	}
}

// Dispatch routes one message received from the worker. It must only be
// called from the reader goroutine. It returns false for events, which the
// caller forwards to the event bus.
func (r *Router) Dispatch(msg protocol.Message) bool {
	switch msg.Kind {
	case protocol.KindEvent:
		return false

	case protocol.KindResponse, protocol.KindError:
		pc, ok := r.remove(msg.ID)
		if !ok {
			r.dropped.Add(1)
			r.log.Debug("dropping response for unknown id", "id", msg.ID, "kind", msg.Kind)
			return true
		}
		r.completed.Add(1)
		if msg.Kind == protocol.KindError {
			pc.done <- result{err: msg.Error}
		} else {
			pc.done <- result{value: msg.Result}
		}
		r.log.Debug("call resolved", "id", msg.ID, "method", pc.method,
			"elapsed", time.Since(pc.started), "kind", msg.Kind)
		return true

	case protocol.KindRequest:
		r.rejectRequest(msg)
		return true
	}
	return true
}

// rejectRequest answers a worker-initiated request; the bridge serves none.
func (r *Router) rejectRequest(msg protocol.Message) {
	r.mu.Lock()
	sender := r.sender
	r.mu.Unlock()

	r.log.Warn("worker sent unsupported request", "id", msg.ID, "method", msg.Method)
	if sender == nil {
		return
	}
	reply := protocol.NewErrorResponse(msg.ID, protocol.CodeMethodNotFound,
		fmt.Sprintf("method not found: %s", msg.Method))
	ctx, cancel := context.WithTimeout(context.Background(), rejectTimeout)
	defer cancel()
	if err := sender.SendContext(ctx, reply); err != nil {
		r.log.Debug("failed to reject worker request", "id", msg.ID, "error", err)
	}
}

// Attach binds the router to a live worker connection.
func (r *Router) Attach(s Sender) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sender = s
	r.detachErr = nil
}

// Detach unbinds the router. Calls made while detached fail immediately
// with reason. Pending calls are untouched; use FailAll for those.
func (r *Router) Detach(reason error) {
	if reason == nil {
		reason = &protocol.WorkerLostError{Cause: ErrDetached}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sender = nil
	r.detachErr = reason
}

// Attached reports whether a connection is bound.
func (r *Router) Attached() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sender != nil
}

// FailAll resolves every pending call with err and returns how many were
// failed.
func (r *Router) FailAll(err error) int {
	r.mu.Lock()
	calls := r.pending
	r.pending = make(map[uint64]*pendingCall)
	r.mu.Unlock()

	n := len(calls)
	if n == 0 {
		return 0
	}
	r.failed.Add(uint64(n))
	for _, pc := range calls {
		pc.done <- result{err: err}
	}
	r.log.Info("failed pending calls", "count", n, "error", err)
	return n
}

// Pending returns the number of in-flight calls.
func (r *Router) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Stats returns a snapshot of the router counters.
func (r *Router) Stats() Stats {
	return Stats{
		InFlight:  r.Pending(),
		Completed: r.completed.Load(),
		TimedOut:  r.timedOut.Load(),
		Cancelled: r.cancelled.Load(),
		Failed:    r.failed.Load(),
		Dropped:   r.dropped.Load(),
	}
}

func (r *Router) remove(id uint64) (*pendingCall, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pc, ok := r.pending[id]
	if ok {
		delete(r.pending, id)
	}
	return pc, ok
}
