package worker

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
)

// ProcessState represents the state of a worker process.
type ProcessState int

const (
	// ProcessCreated indicates the process has been created but not started.
	ProcessCreated ProcessState = iota
	// ProcessRunning indicates the process is currently running.
	ProcessRunning
	// ProcessExited indicates the process exited on its own.
	ProcessExited
	// ProcessKilled indicates the process was killed by a signal.
	ProcessKilled
)

// String returns a human-readable state name.
func (s ProcessState) String() string {
	switch s {
	case ProcessCreated:
		return "created"
	case ProcessRunning:
		return "running"
	case ProcessExited:
		return "exited"
	case ProcessKilled:
		return "killed"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

// Sentinel errors for worker processes.
var (
	// ErrProcessAlreadyStarted is returned when trying to start a process twice.
	ErrProcessAlreadyStarted = errors.New("process already started")

	// ErrWorkerExited is the cause recorded when the worker process exits
	// without a transport error explaining why.
	ErrWorkerExited = errors.New("worker process exited")
)

// Process is one spawned worker instance.
//
// Its standard streams are os.Pipe pairs owned by the Process rather than
// pipes from exec.Cmd, so reaping the child never closes stdout under a
// reader that is still draining it.
type Process struct {
	// ID uniquely identifies this instance across restarts.
	ID string

	// Cmd is the underlying exec.Cmd.
	Cmd *exec.Cmd

	// Started is the time the process was started.
	Started time.Time

	stdin  *os.File
	stdout *os.File
	stderr *os.File

	done     chan struct{}
	state    atomic.Int32
	exitCode atomic.Int32

	mu      sync.RWMutex
	exitErr error

	waitOnce sync.Once
}

// newProcess wraps cmd. The command must not have been started.
func newProcess(cmd *exec.Cmd) *Process {
	p := &Process{
		ID:   uuid.NewString(),
		Cmd:  cmd,
		done: make(chan struct{}),
	}
	p.state.Store(int32(ProcessCreated))
	p.exitCode.Store(-1)
	return p
}

// start wires the pipes, starts the command and begins tracking its exit.
func (p *Process) start() error {
	if p.State() != ProcessCreated {
		return ErrProcessAlreadyStarted
	}

	stdinR, stdinW, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		closeAll(stdinR, stdinW)
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		closeAll(stdinR, stdinW, stdoutR, stdoutW)
		return fmt.Errorf("stderr pipe: %w", err)
	}

	p.Cmd.Stdin = stdinR
	p.Cmd.Stdout = stdoutW
	p.Cmd.Stderr = stderrW

	if err := p.Cmd.Start(); err != nil {
		closeAll(stdinR, stdinW, stdoutR, stdoutW, stderrR, stderrW)
		return fmt.Errorf("start process: %w", err)
	}

	// The child holds its own copies of these ends.
	closeAll(stdinR, stdoutW, stderrW)

	p.stdin = stdinW
	p.stdout = stdoutR
	p.stderr = stderrR
	p.Started = time.Now()
	p.state.Store(int32(ProcessRunning))

	go p.waitLoop()
	return nil
}

func (p *Process) waitLoop() {
	p.waitOnce.Do(func() {
		err := p.Cmd.Wait()

		p.mu.Lock()
		p.exitErr = err
		p.mu.Unlock()

		exitCode := 0
		state := ProcessExited

		if err != nil {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				exitCode = exitErr.ExitCode()
				if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
					state = ProcessKilled
				}
			} else {
				exitCode = -1
			}
		}

		p.exitCode.Store(int32(exitCode))
		p.state.Store(int32(state))
		close(p.done)
	})
}

// State returns the current process state.
func (p *Process) State() ProcessState {
	return ProcessState(p.state.Load())
}

// Done returns a channel that is closed when the process exits.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// ExitCode returns the exit code, or -1 if the process has not exited.
func (p *Process) ExitCode() int {
	return int(p.exitCode.Load())
}

// ExitError returns the error from waiting on the process.
func (p *Process) ExitError() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.exitErr
}

// PID returns the process ID, or -1 if not started.
func (p *Process) PID() int {
	if p.Cmd.Process == nil {
		return -1
	}
	return p.Cmd.Process.Pid
}

// Kill sends SIGKILL. Killing an exited process is not an error.
func (p *Process) Kill() error {
	if p.State() != ProcessRunning || p.Cmd.Process == nil {
		return nil
	}
	if err := p.Cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("kill worker %d: %w", p.PID(), err)
	}
	return nil
}

// exitCause describes why the process exited.
func (p *Process) exitCause() error {
	if err := p.ExitError(); err != nil {
		return fmt.Errorf("%w: %v", ErrWorkerExited, err)
	}
	return fmt.Errorf("%w with status %d", ErrWorkerExited, p.ExitCode())
}

func closeAll(files ...*os.File) {
	for _, f := range files {
		if f != nil {
			_ = f.Close()
		}
	}
}
