package event

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/dshills/retroide/internal/event/topic"
	"github.com/dshills/retroide/internal/protocol"
)

// SubscriptionState represents the state of a subscription.
type SubscriptionState int32

const (
	// SubscriptionStateActive means the subscription is receiving events.
	SubscriptionStateActive SubscriptionState = iota

	// SubscriptionStateCancelled means the subscription has been permanently cancelled.
	SubscriptionStateCancelled
)

// String returns a human-readable state name.
func (s SubscriptionState) String() string {
	switch s {
	case SubscriptionStateActive:
		return "active"
	case SubscriptionStateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Subscription is one consumer's registration for a topic pattern. Events
// are queued in a bounded buffer owned by the subscription; a slow consumer
// loses events according to its overflow policy and never blocks the
// publisher.
type Subscription struct {
	id      string
	pattern topic.Topic
	policy  OverflowPolicy
	bus     *Bus

	mu    sync.Mutex
	queue chan protocol.Message
	state atomic.Int32

	delivered atomic.Uint64
	dropped   atomic.Uint64
}

// ID returns the unique subscription identifier.
func (s *Subscription) ID() string {
	return s.id
}

// Pattern returns the subscribed topic pattern.
func (s *Subscription) Pattern() topic.Topic {
	return s.pattern
}

// State returns the current subscription state.
func (s *Subscription) State() SubscriptionState {
	return SubscriptionState(s.state.Load())
}

// IsActive returns true if the subscription can receive events.
func (s *Subscription) IsActive() bool {
	return s.State() == SubscriptionStateActive
}

// Events returns the queue of matching events. The channel is closed once
// the subscription is cancelled.
func (s *Subscription) Events() <-chan protocol.Message {
	return s.queue
}

// Next waits for the next event. It returns ErrSubscriptionClosed after
// cancellation, or ctx.Err().
func (s *Subscription) Next(ctx context.Context) (protocol.Message, error) {
	select {
	case msg, ok := <-s.queue:
		if !ok {
			return protocol.Message{}, ErrSubscriptionClosed
		}
		return msg, nil
	case <-ctx.Done():
		return protocol.Message{}, ctx.Err()
	}
}

// Dropped returns how many events this subscription lost to overflow.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Delivered returns how many events were queued for this subscription.
func (s *Subscription) Delivered() uint64 {
	return s.delivered.Load()
}

// Cancel removes the subscription from its bus and closes the queue.
// Events already queued can still be drained. Safe to call more than once.
func (s *Subscription) Cancel() {
	if s.bus != nil {
		s.bus.remove(s)
	}
	s.close()
}

func (s *Subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Swap(int32(SubscriptionStateCancelled)) == int32(SubscriptionStateCancelled) {
		return
	}
	close(s.queue)
}

// deliver queues msg without blocking. It reports whether msg was queued
// and whether an event was lost to overflow.
func (s *Subscription) deliver(msg protocol.Message) (queued, overflow bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.IsActive() {
		return false, false
	}

	select {
	case s.queue <- msg:
		s.delivered.Add(1)
		return true, false
	default:
	}

	s.dropped.Add(1)
	if s.policy == DropNewest {
		return false, true
	}

	// Only this goroutine sends while holding mu, and consumers only free
	// space, so after one receive the send normally succeeds.
	select {
	case <-s.queue:
	default:
	}
	select {
	case s.queue <- msg:
		s.delivered.Add(1)
		return true, true
	default:
		return false, true
	}
}
