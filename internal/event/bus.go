package event

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/dshills/retroide/internal/event/topic"
	"github.com/dshills/retroide/internal/logging"
	"github.com/dshills/retroide/internal/protocol"
)

// Stats is a snapshot of bus counters.
type Stats struct {
	Published   uint64
	Delivered   uint64
	Dropped     uint64
	Unmatched   uint64
	Subscribers int
}

// Bus fans event messages out to subscribers by topic pattern.
type Bus struct {
	config busConfig
	log    *logging.Logger

	mu     sync.RWMutex
	subs   map[string]*Subscription
	index  *topic.Index[*Subscription]
	closed bool

	published atomic.Uint64
	delivered atomic.Uint64
	dropped   atomic.Uint64
	unmatched atomic.Uint64
}

// NewBus creates a new event bus with the given options.
func NewBus(opts ...BusOption) *Bus {
	config := defaultBusConfig()
	for _, opt := range opts {
		opt(&config)
	}

	return &Bus{
		config: config,
		log:    config.logger.WithComponent("event"),
		subs:   make(map[string]*Subscription),
		index:  topic.NewIndex[*Subscription](),
	}
}

// Subscribe registers interest in events whose name matches pattern.
func (b *Bus) Subscribe(pattern string, opts ...SubscriptionOption) (*Subscription, error) {
	p := topic.Topic(pattern)
	if !p.IsValidPattern() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTopic, pattern)
	}

	cfg := subscriptionConfig{queueSize: b.config.queueSize, policy: b.config.policy}
	for _, opt := range opts {
		opt(&cfg)
	}

	sub := &Subscription{
		id:      uuid.NewString(),
		pattern: p,
		policy:  cfg.policy,
		bus:     b,
		queue:   make(chan protocol.Message, cfg.queueSize),
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrBusClosed
	}
	b.subs[sub.id] = sub
	b.index.Add(p, sub)

	b.log.Debug("subscribed", "id", sub.id, "pattern", pattern, "queue", cfg.queueSize, "policy", cfg.policy)
	return sub, nil
}

// Unsubscribe cancels sub.
func (b *Bus) Unsubscribe(sub *Subscription) error {
	if sub == nil {
		return ErrSubscriptionNotFound
	}
	if !b.remove(sub) {
		return ErrSubscriptionNotFound
	}
	sub.close()
	return nil
}

// Publish delivers an event message to every matching subscriber. It never
// blocks on a slow subscriber.
func (b *Bus) Publish(msg protocol.Message) error {
	if msg.Kind != protocol.KindEvent {
		return fmt.Errorf("%w: kind %q", ErrInvalidEvent, msg.Kind)
	}
	t := topic.Topic(msg.Method)
	if !t.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidTopic, msg.Method)
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrBusClosed
	}
	targets := b.index.Match(t)
	b.mu.RUnlock()

	b.published.Add(1)
	if len(targets) == 0 {
		b.unmatched.Add(1)
		return nil
	}

	for _, sub := range targets {
		queued, overflow := sub.deliver(msg)
		if overflow {
			b.dropped.Add(1)
			b.log.Debug("subscriber queue overflow", "id", sub.id, "event", msg.Method, "policy", sub.policy)
		}
		if queued {
			b.delivered.Add(1)
		}
	}
	return nil
}

// Emit builds an event from name and params and publishes it.
func (b *Bus) Emit(name string, params any) error {
	msg, err := protocol.NewEvent(name, params)
	if err != nil {
		return err
	}
	return b.Publish(msg)
}

// Close cancels every subscription. Further publishes fail with
// ErrBusClosed. Safe to call more than once.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := b.subs
	b.subs = make(map[string]*Subscription)
	b.index = topic.NewIndex[*Subscription]()
	b.mu.Unlock()

	for _, sub := range subs {
		sub.close()
	}
}

// Stats returns a snapshot of the bus counters.
func (b *Bus) Stats() Stats {
	b.mu.RLock()
	n := len(b.subs)
	b.mu.RUnlock()

	return Stats{
		Published:   b.published.Load(),
		Delivered:   b.delivered.Load(),
		Dropped:     b.dropped.Load(),
		Unmatched:   b.unmatched.Load(),
		Subscribers: n,
	}
}

func (b *Bus) remove(sub *Subscription) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[sub.id]; !ok {
		return false
	}
	delete(b.subs, sub.id)
	b.index.Remove(sub.pattern, sub)
	return true
}
