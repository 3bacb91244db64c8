package event

import (
	"fmt"
	"strings"

	"github.com/dshills/retroide/internal/logging"
)

// DefaultQueueSize is the per-subscriber queue capacity.
const DefaultQueueSize = 64

// OverflowPolicy decides which event is lost when a subscriber's queue is
// full.
type OverflowPolicy int

const (
	// DropOldest discards the oldest queued event to make room.
	DropOldest OverflowPolicy = iota
	// DropNewest discards the incoming event.
	DropNewest
)

// String returns the policy name.
func (p OverflowPolicy) String() string {
	switch p {
	case DropOldest:
		return "drop_oldest"
	case DropNewest:
		return "drop_newest"
	default:
		return "unknown"
	}
}

// ParseOverflowPolicy parses a policy name.
func ParseOverflowPolicy(s string) (OverflowPolicy, error) {
	switch strings.ToLower(strings.ReplaceAll(s, "-", "_")) {
	case "", "drop_oldest":
		return DropOldest, nil
	case "drop_newest":
		return DropNewest, nil
	default:
		return DropOldest, fmt.Errorf("unknown overflow policy %q", s)
	}
}

// BusOption configures a Bus.
type BusOption func(*busConfig)

type busConfig struct {
	queueSize int
	policy    OverflowPolicy
	logger    *logging.Logger
}

func defaultBusConfig() busConfig {
	return busConfig{
		queueSize: DefaultQueueSize,
		policy:    DropOldest,
		logger:    logging.Nop(),
	}
}

// WithQueueSize sets the default per-subscriber queue size.
func WithQueueSize(size int) BusOption {
	return func(c *busConfig) {
		if size > 0 {
			c.queueSize = size
		}
	}
}

// WithOverflowPolicy sets the default overflow policy.
func WithOverflowPolicy(p OverflowPolicy) BusOption {
	return func(c *busConfig) {
		c.policy = p
	}
}

// WithLogger sets the bus logger.
func WithLogger(l *logging.Logger) BusOption {
	return func(c *busConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// SubscriptionOption configures a single subscription.
type SubscriptionOption func(*subscriptionConfig)

type subscriptionConfig struct {
	queueSize int
	policy    OverflowPolicy
}

// WithBuffer overrides the queue size for one subscription.
func WithBuffer(size int) SubscriptionOption {
	return func(c *subscriptionConfig) {
		if size > 0 {
			c.queueSize = size
		}
	}
}

// WithPolicy overrides the overflow policy for one subscription.
func WithPolicy(p OverflowPolicy) SubscriptionOption {
	return func(c *subscriptionConfig) {
		c.policy = p
	}
}
