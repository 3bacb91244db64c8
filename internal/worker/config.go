package worker

import (
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"time"

	"github.com/dshills/retroide/internal/transport"
)

// Config configures the worker command and the supervisor's timing.
type Config struct {
	// Command is the worker executable.
	Command string
	// Args are passed to Command.
	Args []string
	// Env entries are appended to the parent environment.
	Env []string
	// Dir is the working directory. Empty means the current directory.
	Dir string

	// MaxFrameSize bounds a single frame in either direction.
	MaxFrameSize int

	// ReadyTimeout bounds the wait for the worker's ready event.
	// Default: 5 seconds
	ReadyTimeout time.Duration

	// ShutdownGrace is how long Stop waits for a voluntary exit.
	// Default: 3 seconds
	ShutdownGrace time.Duration

	// KillTimeout is how long to wait for a killed worker to be reaped.
	// Default: 2 seconds
	KillTimeout time.Duration

	// MaxRestarts is the number of automatic restarts allowed within
	// RestartWindow before the supervisor gives up.
	// Default: 3
	MaxRestarts int

	// RestartWindow is the sliding window MaxRestarts applies to.
	// Default: 60 seconds
	RestartWindow time.Duration

	// InitialBackoff is the delay before the first restart.
	// Default: 100 milliseconds
	InitialBackoff time.Duration

	// MaxBackoff caps the restart delay.
	// Default: 5 seconds
	MaxBackoff time.Duration

	// BackoffMultiplier grows the delay between consecutive restarts.
	// Default: 2.0
	BackoffMultiplier float64

	// HealthInterval is the period between health pings while running.
	// Zero disables health checking.
	// Default: 15 seconds
	HealthInterval time.Duration

	// HealthTimeout bounds a single ping.
	// Default: 5 seconds
	HealthTimeout time.Duration
}

// DefaultConfig returns the default supervisor configuration for command.
func DefaultConfig(command string, args ...string) Config {
	return Config{
		Command:           command,
		Args:              args,
		MaxFrameSize:      transport.DefaultMaxFrameSize,
		ReadyTimeout:      5 * time.Second,
		ShutdownGrace:     3 * time.Second,
		KillTimeout:       2 * time.Second,
		MaxRestarts:       3,
		RestartWindow:     60 * time.Second,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        5 * time.Second,
		BackoffMultiplier: 2.0,
		HealthInterval:    15 * time.Second,
		HealthTimeout:     5 * time.Second,
	}
}

// Validate checks the configuration for values the supervisor cannot use.
func (c Config) Validate() error {
	var errs []error
	if c.Command == "" {
		errs = append(errs, errors.New("worker command is required"))
	}
	if c.ReadyTimeout <= 0 {
		errs = append(errs, fmt.Errorf("ready timeout must be positive, got %v", c.ReadyTimeout))
	}
	if c.ShutdownGrace < 0 || c.KillTimeout <= 0 {
		errs = append(errs, errors.New("shutdown grace must be non-negative and kill timeout positive"))
	}
	if c.MaxRestarts < 0 {
		errs = append(errs, fmt.Errorf("max restarts must be non-negative, got %d", c.MaxRestarts))
	}
	if c.RestartWindow <= 0 {
		errs = append(errs, fmt.Errorf("restart window must be positive, got %v", c.RestartWindow))
	}
	if c.InitialBackoff <= 0 || c.MaxBackoff < c.InitialBackoff {
		errs = append(errs, fmt.Errorf("backoff range invalid: initial %v, max %v", c.InitialBackoff, c.MaxBackoff))
	}
	if c.BackoffMultiplier < 1 {
		errs = append(errs, fmt.Errorf("backoff multiplier must be at least 1, got %v", c.BackoffMultiplier))
	}
	if c.HealthInterval > 0 && c.HealthTimeout <= 0 {
		errs = append(errs, errors.New("health timeout must be positive when health checks are enabled"))
	}
	return errors.Join(errs...)
}

// CommandFactory builds the command for one worker instance.
type CommandFactory func() *exec.Cmd

// commandFactory returns the factory that launches c.Command.
func (c Config) commandFactory() CommandFactory {
	return func() *exec.Cmd {
		cmd := exec.Command(c.Command, c.Args...)
		cmd.Dir = c.Dir
		if len(c.Env) > 0 {
			cmd.Env = append(os.Environ(), c.Env...)
		}
		return cmd
	}
}

// CalculateBackoff calculates the backoff duration for a given attempt.
// attempt=0 or attempt=1 returns initial, subsequent attempts use exponential growth.
func CalculateBackoff(attempt int, initial, max time.Duration, multiplier float64) time.Duration {
	if attempt <= 1 {
		return initial
	}

	delay := float64(initial) * math.Pow(multiplier, float64(attempt-1))
	if delay > float64(max) {
		return max
	}
	return time.Duration(delay)
}
