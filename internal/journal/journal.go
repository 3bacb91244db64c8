package journal

import (
	"context"
	"time"
)

// CallRecord is one completed worker call.
type CallRecord struct {
	ID        string
	SessionID string
	Method    string
	// Tool is the tool name for tools/call requests.
	Tool      string
	Params    string
	Outcome   string
	Error     string
	StartedAt time.Time
	Duration  time.Duration
}

// TransitionRecord is one supervisor state change.
type TransitionRecord struct {
	SessionID  string
	From       string
	To         string
	InstanceID string
	PID        int
	Restarts   int
	Error      string
	At         time.Time
}

// Store records and lists history.
type Store interface {
	RecordCall(ctx context.Context, rec CallRecord) error
	RecentCalls(ctx context.Context, limit int) ([]CallRecord, error)
	RecordTransition(ctx context.Context, rec TransitionRecord) error
	RecentTransitions(ctx context.Context, limit int) ([]TransitionRecord, error)
	Close() error
}

// DefaultLimit is used when a listing is asked for a non-positive limit.
const DefaultLimit = 50
