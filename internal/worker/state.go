package worker

import "time"

// State is the supervisor's lifecycle state.
type State int

const (
	// StateStopped means no worker is running and none will be started.
	StateStopped State = iota
	// StateStarting means a worker was spawned and the ready handshake is
	// in progress.
	StateStarting
	// StateRunning means the worker completed its handshake.
	StateRunning
	// StateCrashed means the worker exited unexpectedly; a restart may be
	// pending.
	StateCrashed
	// StateStopping means an explicit stop is in progress.
	StateStopping
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateCrashed:
		return "crashed"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Lifecycle event names published on the bus.
const (
	EventLifecycle = "supervisor.lifecycle"
	EventStderr    = "worker.stderr"
)

// Transition is the payload of a supervisor.lifecycle event.
type Transition struct {
	From       string    `json:"from"`
	To         string    `json:"to"`
	InstanceID string    `json:"instance_id,omitempty"`
	PID        int       `json:"pid,omitempty"`
	Restarts   int       `json:"restarts"`
	Error      string    `json:"error,omitempty"`
	At         time.Time `json:"at"`
}

// StderrLine is the payload of a worker.stderr event.
type StderrLine struct {
	InstanceID string `json:"instance_id"`
	Line       string `json:"line"`
}

// Health is a read-only snapshot of the supervisor.
type Health struct {
	State          State
	Failed         bool
	RestartCount   int
	RecentRestarts int
	LastError      error
	PID            int
	InstanceID     string
	StartedAt      time.Time
	LastSeen       time.Time
	Pending        int
}

// Available reports whether calls can currently be served.
func (h Health) Available() bool {
	return h.State == StateRunning
}
