package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dshills/retroide/internal/event"
	"github.com/dshills/retroide/internal/logging"
	"github.com/dshills/retroide/internal/protocol"
	"github.com/dshills/retroide/internal/router"
)

// Supervisor errors.
var (
	// ErrAlreadyRunning is returned by Start when the supervisor is not stopped.
	ErrAlreadyRunning = errors.New("worker supervisor already running")

	// ErrHandshake is returned when a worker does not announce readiness.
	ErrHandshake = errors.New("worker handshake failed")

	// ErrKillTimeout is returned by Stop when a killed worker was not reaped
	// in time.
	ErrKillTimeout = errors.New("worker did not exit after kill")
)

// exitSettle is how long an exited worker's remaining output may take to
// arrive before its pending calls are failed.
const exitSettle = 50 * time.Millisecond

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithCommandFactory overrides how worker commands are built.
func WithCommandFactory(f CommandFactory) Option {
	return func(s *Supervisor) {
		if f != nil {
			s.newCommand = f
		}
	}
}

// Supervisor owns the worker process: it spawns it, performs the ready
// handshake, binds the router to its channel, restarts it after crashes
// within a budget, and shuts it down.
//
// Thread Safety: Supervisor is safe for concurrent use. All lifecycle
// fields are protected by mu.
type Supervisor struct {
	cfg        Config
	router     *router.Router
	bus        *event.Bus
	log        *logging.Logger
	newCommand CommandFactory

	mu           sync.Mutex
	state        State
	current      *instance
	restarts     []time.Time
	restartCount int
	failed       bool
	lastErr      error
	runCtx       context.Context
	cancelRun    context.CancelFunc
	stopDone     chan struct{}

	// wg tracks start, restart and health goroutines.
	wg sync.WaitGroup
}

// New creates a stopped supervisor.
func New(cfg Config, r *router.Router, bus *event.Bus, log *logging.Logger, opts ...Option) *Supervisor {
	if log == nil {
		log = logging.Nop()
	}
	s := &Supervisor{
		cfg:        cfg,
		router:     r,
		bus:        bus,
		log:        log.WithComponent("supervisor"),
		newCommand: cfg.commandFactory(),
		state:      StateStopped,
		cancelRun:  func() {},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start spawns the worker and waits for its ready event.
//
// On a failed handshake the process is killed, the supervisor returns to
// Stopped and the error is returned; no automatic restart is attempted.
// Starting after the restart budget was exhausted resets the budget.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateStopped {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}

	s.failed = false
	s.lastErr = nil
	s.restarts = nil
	s.restartCount = 0
	s.runCtx, s.cancelRun = context.WithCancel(context.Background())
	runCtx := s.runCtx
	s.setStateLocked(StateStarting, nil, nil)
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	launchCtx, cancel := context.WithCancel(runCtx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	inst, err := s.launch(launchCtx)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		if runCtx.Err() != nil {
			return fmt.Errorf("start worker: %w", protocol.ErrStopped)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		s.lastErr = err
		s.setStateLocked(StateCrashed, nil, err)
		s.cancelRun()
		s.setStateLocked(StateStopped, nil, err)
		return fmt.Errorf("start worker: %w", err)
	}

	if s.state != StateStarting {
		// Stop won the race; it no longer knows about this instance.
		go s.terminate(inst)
		return fmt.Errorf("start worker: %w", protocol.ErrStopped)
	}

	s.attachLocked(inst)
	return nil
}

// launch spawns one instance and performs the ready handshake.
func (s *Supervisor) launch(ctx context.Context) (*instance, error) {
	proc := newProcess(s.newCommand())
	if err := proc.start(); err != nil {
		return nil, fmt.Errorf("spawn worker: %w", err)
	}

	inst := newInstance(proc, s.cfg.MaxFrameSize)
	log := s.log.With("instance", proc.ID, "pid", proc.PID())
	log.Info("worker spawned", "command", s.cfg.Command)

	go inst.receive(func(msg protocol.Message) { s.handleMessage(inst, msg) })
	go inst.scanStderr(func(line string) { s.handleStderr(inst, line) })
	go inst.reap(exitSettle, s.cfg.KillTimeout, func() { s.handleExit(inst) })

	timer := time.NewTimer(s.cfg.ReadyTimeout)
	defer timer.Stop()

	select {
	case <-inst.ready:
		log.Info("worker ready", "elapsed", time.Since(proc.Started))
		return inst, nil

	case <-inst.gone:
		select {
		case <-inst.ready:
			// Ready arrived before the exit; the caller handles the crash.
			return inst, nil
		default:
		}
		return nil, fmt.Errorf("%w: %v before ready", ErrHandshake, inst.exitCause())

	case <-timer.C:
		s.terminate(inst)
		return nil, fmt.Errorf("%w: no ready event within %v", ErrHandshake, s.cfg.ReadyTimeout)

	case <-ctx.Done():
		s.terminate(inst)
		return nil, ctx.Err()
	}
}

// attachLocked makes inst the live worker. Must hold mu.
func (s *Supervisor) attachLocked(inst *instance) {
	s.current = inst
	s.router.Attach(inst)

	if inst.isGone() {
		// Died between its ready event and now.
		s.crashLocked(inst)
		return
	}

	s.setStateLocked(StateRunning, inst, nil)

	if s.cfg.HealthInterval > 0 {
		s.wg.Add(1)
		go s.healthLoop(s.runCtx, inst)
	}
}

// handleMessage is called by the reader goroutine for every frame.
func (s *Supervisor) handleMessage(inst *instance, msg protocol.Message) {
	if msg.Kind == protocol.KindEvent && msg.Method == protocol.EventReady {
		inst.markReady()
	}
	if s.router.Dispatch(msg) {
		return
	}
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(msg); err != nil {
		s.log.Debug("event not published", "event", msg.Method, "error", err)
	}
}

func (s *Supervisor) handleStderr(inst *instance, line string) {
	s.log.Debug("worker stderr", "instance", inst.proc.ID, "line", line)
	if s.bus != nil {
		_ = s.bus.Emit(EventStderr, StderrLine{InstanceID: inst.proc.ID, Line: line})
	}
}

// handleExit runs once per instance after it exited and its output was
// read, without waiting for streams held open by other processes.
func (s *Supervisor) handleExit(inst *instance) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != inst || s.state != StateRunning {
		return
	}
	s.crashLocked(inst)
}

// crashLocked handles the unexpected loss of the live instance. Must hold mu.
func (s *Supervisor) crashLocked(inst *instance) {
	cause := inst.exitCause()
	lost := &protocol.WorkerLostError{Cause: cause}

	s.current = nil
	s.lastErr = cause
	s.router.Detach(lost)
	s.router.FailAll(lost)

	s.log.Warn("worker crashed", "instance", inst.proc.ID, "exit_code", inst.proc.ExitCode(), "error", cause)
	s.setStateLocked(StateCrashed, inst, cause)
	s.scheduleRestartLocked(cause)
}

// scheduleRestartLocked applies the restart budget after a crash. Must
// hold mu and be in StateCrashed.
func (s *Supervisor) scheduleRestartLocked(cause error) {
	now := time.Now()
	s.pruneRestartsLocked(now)

	if len(s.restarts) >= s.cfg.MaxRestarts {
		s.failed = true
		s.lastErr = fmt.Errorf("%w: %d restarts within %v, last error: %v",
			protocol.ErrSupervisorFailed, len(s.restarts), s.cfg.RestartWindow, cause)
		s.router.Detach(s.lastErr)
		s.cancelRun()
		s.log.Error("restart budget exhausted", "restarts", len(s.restarts), "window", s.cfg.RestartWindow)
		s.setStateLocked(StateStopped, nil, s.lastErr)
		return
	}

	s.restarts = append(s.restarts, now)
	s.restartCount++
	delay := CalculateBackoff(len(s.restarts), s.cfg.InitialBackoff, s.cfg.MaxBackoff, s.cfg.BackoffMultiplier)

	s.log.Info("restart scheduled", "attempt", len(s.restarts), "delay", delay)
	s.wg.Add(1)
	go s.restart(s.runCtx, delay)
}

func (s *Supervisor) pruneRestartsLocked(now time.Time) {
	cutoff := now.Add(-s.cfg.RestartWindow)
	kept := s.restarts[:0]
	for _, t := range s.restarts {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	s.restarts = kept
}

// restart waits out the backoff and launches a replacement instance.
func (s *Supervisor) restart(ctx context.Context, delay time.Duration) {
	defer s.wg.Done()

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}

	s.mu.Lock()
	if ctx.Err() != nil || s.state != StateCrashed {
		s.mu.Unlock()
		return
	}
	s.setStateLocked(StateStarting, nil, nil)
	s.mu.Unlock()

	inst, err := s.launch(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	if ctx.Err() != nil || s.state != StateStarting {
		if inst != nil {
			go s.terminate(inst)
		}
		return
	}

	if err != nil {
		s.log.Warn("restart failed", "error", err)
		s.lastErr = err
		s.setStateLocked(StateCrashed, nil, err)
		s.scheduleRestartLocked(err)
		return
	}

	s.attachLocked(inst)
}

// healthLoop pings the worker while it runs. A ping that times out marks
// the worker as hung and kills it.
func (s *Supervisor) healthLoop(ctx context.Context, inst *instance) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-inst.gone:
			return
		case <-ticker.C:
		}

		_, err := s.router.Call(ctx, protocol.MethodPing, nil, s.cfg.HealthTimeout)
		switch {
		case err == nil:
		case errors.Is(err, protocol.ErrTimeout):
			s.log.Warn("health check timed out, killing worker", "instance", inst.proc.ID)
			inst.fail(fmt.Errorf("health check: %w", err))
			return
		default:
			s.log.Debug("health check failed", "instance", inst.proc.ID, "error", err)
		}
	}
}

// Stop shuts the worker down and waits until the supervisor is stopped.
//
// The worker is sent a shutdown request and its stdin is closed; if it has
// not exited after ShutdownGrace it is killed. Calls still pending fail
// with a WorkerLostError caused by protocol.ErrStopped. Stopping a stopped
// supervisor returns nil.
func (s *Supervisor) Stop(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	switch s.state {
	case StateStopped:
		s.mu.Unlock()
		return nil
	case StateStopping:
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	done := make(chan struct{})
	s.stopDone = done
	s.setStateLocked(StateStopping, s.current, nil)
	s.cancelRun()
	inst := s.current
	s.current = nil
	s.mu.Unlock()

	// The instance is shut down before waiting for the start, restart and
	// health goroutines: closing its stdin and killing it releases any of
	// them still blocked writing to it.
	var err error
	if inst != nil {
		err = s.shutdown(ctx, inst)
	}
	s.wg.Wait()

	lost := &protocol.WorkerLostError{Cause: protocol.ErrStopped}
	s.router.Detach(lost)
	s.router.FailAll(lost)

	s.mu.Lock()
	s.setStateLocked(StateStopped, nil, nil)
	s.stopDone = nil
	s.mu.Unlock()
	close(done)

	return err
}

// shutdown asks inst to exit, then kills it after the grace period.
func (s *Supervisor) shutdown(ctx context.Context, inst *instance) error {
	log := s.log.With("instance", inst.proc.ID)
	inst.stopping.Store(true)

	graceCtx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownGrace)
	defer cancel()

	replied := make(chan struct{})
	go func() {
		defer close(replied)
		if _, err := s.router.Call(graceCtx, protocol.MethodShutdown, nil, s.cfg.ShutdownGrace); err != nil {
			log.Debug("shutdown request failed", "error", err)
		}
	}()

	select {
	case <-replied:
	case <-inst.exited:
	case <-graceCtx.Done():
	}
	inst.closeStdin()

	select {
	case <-inst.exited:
		log.Info("worker exited", "exit_code", inst.proc.ExitCode())
		return nil
	case <-graceCtx.Done():
	}

	log.Warn("worker did not exit in time, killing", "grace", s.cfg.ShutdownGrace)
	if err := inst.proc.Kill(); err != nil {
		log.Error("kill failed", "error", err)
	}

	select {
	case <-inst.exited:
		return nil
	case <-time.After(s.cfg.KillTimeout):
		return fmt.Errorf("%w: pid %d", ErrKillTimeout, inst.proc.PID())
	}
}

// terminate kills an instance that never became live and waits for it to
// be reaped.
func (s *Supervisor) terminate(inst *instance) {
	inst.stopping.Store(true)
	_ = inst.proc.Kill()
	select {
	case <-inst.exited:
	case <-time.After(s.cfg.KillTimeout):
		s.log.Error("worker not reaped after kill", "instance", inst.proc.ID, "pid", inst.proc.PID())
	}
}

// setStateLocked records a transition and publishes it. Must hold mu.
func (s *Supervisor) setStateLocked(to State, inst *instance, err error) {
	from := s.state
	s.state = to

	t := Transition{
		From:     from.String(),
		To:       to.String(),
		Restarts: s.restartCount,
		At:       time.Now(),
	}
	if inst != nil {
		t.InstanceID = inst.proc.ID
		t.PID = inst.proc.PID()
	}
	if err != nil {
		t.Error = err.Error()
	}

	s.log.Debug("state transition", "from", from, "to", to)
	if s.bus != nil {
		if perr := s.bus.Emit(EventLifecycle, t); perr != nil {
			s.log.Debug("lifecycle event not published", "error", perr)
		}
	}
}

// State returns the current supervisor state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Health returns a snapshot of the supervisor and its worker.
func (s *Supervisor) Health() Health {
	s.mu.Lock()
	h := Health{
		State:          s.state,
		Failed:         s.failed,
		RestartCount:   s.restartCount,
		RecentRestarts: len(s.restarts),
		LastError:      s.lastErr,
		PID:            -1,
	}
	inst := s.current
	s.mu.Unlock()

	if inst != nil {
		h.PID = inst.proc.PID()
		h.InstanceID = inst.proc.ID
		h.StartedAt = inst.proc.Started
		h.LastSeen = inst.LastSeen()
	}
	h.Pending = s.router.Pending()
	return h
}

// Config returns the supervisor configuration.
func (s *Supervisor) Config() Config {
	return s.cfg
}
