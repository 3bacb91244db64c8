// Package app wires the worker bridge together for the front-ends.
//
// Application owns the configuration, logger, event bus, request router,
// worker supervisor and call journal. Front-ends use Call, Subscribe,
// Health and the typed tool client, or the higher level actions that
// return a Status ready for display.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/retroide/internal/config"
	"github.com/dshills/retroide/internal/event"
	"github.com/dshills/retroide/internal/journal"
	"github.com/dshills/retroide/internal/logging"
	"github.com/dshills/retroide/internal/protocol"
	"github.com/dshills/retroide/internal/router"
	"github.com/dshills/retroide/internal/toolchain"
	"github.com/dshills/retroide/internal/worker"
)

// maxJournalParams bounds the params text stored per journaled call.
const maxJournalParams = 4096

// Options configures the application.
type Options struct {
	// ConfigPath is the configuration file. Empty uses defaults and the
	// environment only.
	ConfigPath string

	// Config, when set, is used instead of loading ConfigPath.
	Config *config.Config

	// WatchConfig reloads ConfigPath when it changes.
	WatchConfig bool

	// Logger overrides the logger built from the configuration.
	Logger *logging.Logger

	// Journal overrides the journal opened from the configuration.
	Journal journal.Store

	// CommandFactory overrides how the worker process is built.
	CommandFactory worker.CommandFactory
}

// Application is the RetroIDE core.
type Application struct {
	opts      Options
	sessionID string

	log        *logging.Logger
	logFile    *os.File
	bus        *event.Bus
	router     *router.Router
	supervisor *worker.Supervisor
	journal    journal.Store
	tools      *toolchain.Client
	metrics    *Metrics
	subs       *subscriptionManager

	cfgMu sync.RWMutex
	cfg   *config.Config

	mu       sync.Mutex
	watcher  *config.Watcher
	shutdown bool
	closeErr error
	done     chan struct{}
}

// New creates an application. The worker is not started until Start.
func New(opts Options) (*Application, error) {
	cfg := opts.Config
	if cfg == nil {
		var err error
		cfg, err = config.Load(opts.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInitialization, err)
		}
	}

	app := &Application{
		opts:      opts,
		sessionID: uuid.NewString(),
		cfg:       cfg,
		metrics:   NewMetrics(),
		done:      make(chan struct{}),
	}

	if err := app.initLogger(); err != nil {
		return nil, err
	}
	app.log = app.log.With("session", app.sessionID)

	app.bus = event.NewBus(
		event.WithQueueSize(cfg.Events.QueueSize),
		event.WithOverflowPolicy(cfg.OverflowPolicy()),
		event.WithLogger(app.log),
	)
	app.router = router.New(app.log, router.WithDefaultTimeout(cfg.Router.DefaultTimeout.Std()))

	var supOpts []worker.Option
	if opts.CommandFactory != nil {
		supOpts = append(supOpts, worker.WithCommandFactory(opts.CommandFactory))
	}
	app.supervisor = worker.New(cfg.WorkerConfig(), app.router, app.bus, app.log, supOpts...)

	if err := app.initJournal(); err != nil {
		app.closeLogFile()
		return nil, err
	}

	app.tools = toolchain.NewClient(app, 0)
	app.subs = newSubscriptionManager(app)
	return app, nil
}

func (app *Application) initLogger() error {
	if app.opts.Logger != nil {
		app.log = app.opts.Logger
		return nil
	}

	lc := app.cfg.LoggerConfig()
	if path := app.cfg.Logging.File; path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return NewOperationError("open log", path, err)
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return NewOperationError("open log", path, err)
		}
		app.logFile = f
		lc.Output = f
	}
	app.log = logging.New(lc)
	return nil
}

func (app *Application) initJournal() error {
	if app.opts.Journal != nil {
		app.journal = app.opts.Journal
		return nil
	}
	if !app.cfg.Journal.Enabled {
		return nil
	}

	path, err := app.cfg.JournalPath()
	if err != nil {
		return NewOperationError("open journal", "", err)
	}
	store, err := journal.OpenSQLite(path, app.log)
	if err != nil {
		return NewOperationError("open journal", path, err)
	}
	app.journal = store
	return nil
}

// Start subscribes the application's own consumers, starts watching the
// configuration file if asked to, and starts the worker.
func (app *Application) Start(ctx context.Context) error {
	app.mu.Lock()
	if app.shutdown {
		app.mu.Unlock()
		return ErrShutdown
	}
	app.mu.Unlock()

	if err := app.subs.setup(); err != nil {
		return err
	}
	if err := app.startWatcher(ctx); err != nil {
		app.log.Warn("config watch disabled", "path", app.opts.ConfigPath, "error", err)
	}

	app.log.Info("starting worker", "command", app.Config().Worker.Command)
	return app.supervisor.Start(ctx)
}

// Restart starts the worker again after it was stopped or gave up.
func (app *Application) Restart(ctx context.Context) error {
	if err := app.supervisor.Stop(ctx); err != nil {
		return err
	}
	return app.supervisor.Start(ctx)
}

// Shutdown stops the worker and releases every resource. It always stops
// the worker process, and is safe to call more than once; later calls
// return the first call's result.
func (app *Application) Shutdown(ctx context.Context) error {
	app.mu.Lock()
	if app.shutdown {
		app.mu.Unlock()
		<-app.done
		return app.closeErr
	}
	app.shutdown = true
	watcher := app.watcher
	app.watcher = nil
	app.mu.Unlock()

	var errs []error
	if err := app.supervisor.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop worker: %w", err))
	}
	if watcher != nil {
		_ = watcher.Close()
	}

	app.bus.Close()
	app.subs.wait()

	if app.journal != nil && app.opts.Journal == nil {
		if err := app.journal.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close journal: %w", err))
		}
	}

	app.log.Info("shutdown complete")
	_ = app.log.Sync()
	app.closeLogFile()

	app.closeErr = errors.Join(errs...)
	close(app.done)
	return app.closeErr
}

func (app *Application) closeLogFile() {
	if app.logFile != nil {
		_ = app.logFile.Close()
		app.logFile = nil
	}
}

// Call sends a request to the worker and journals its outcome. A zero
// timeout selects the configured default.
func (app *Application) Call(ctx context.Context, method string, params any, timeout time.Duration) (json.RawMessage, error) {
	app.mu.Lock()
	closed := app.shutdown
	app.mu.Unlock()
	if closed {
		return nil, ErrShutdown
	}

	started := time.Now()
	result, err := app.router.Call(ctx, method, params, timeout)
	elapsed := time.Since(started)
	outcome := protocol.Classify(err)

	app.metrics.RecordCall(outcome, elapsed)
	app.recordCall(method, params, outcome, err, started, elapsed)

	if err != nil {
		app.log.Debug("call failed", "method", method, "outcome", string(outcome), "error", err)
	}
	return result, err
}

// recordCall journals one call. Journal failures are logged, not returned.
func (app *Application) recordCall(method string, params any, outcome protocol.Outcome, callErr error, started time.Time, elapsed time.Duration) {
	if app.journal == nil {
		return
	}

	rec := journal.CallRecord{
		SessionID: app.sessionID,
		Method:    method,
		Outcome:   string(outcome),
		StartedAt: started,
		Duration:  elapsed,
	}
	if p, ok := params.(toolchain.CallToolParams); ok {
		rec.Tool = p.Name
	}
	if params != nil {
		if data, err := json.Marshal(params); err == nil {
			if len(data) > maxJournalParams {
				data = data[:maxJournalParams]
			}
			rec.Params = string(data)
		}
	}
	if callErr != nil {
		rec.Error = callErr.Error()
	}

	// The caller's context may already be cancelled; the record is still
	// written.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := app.journal.RecordCall(ctx, rec); err != nil {
		app.log.Warn("journal write failed", "method", method, "error", err)
	}
}

// Subscribe returns a subscription to worker and supervisor events whose
// name matches pattern.
func (app *Application) Subscribe(pattern string, opts ...event.SubscriptionOption) (*event.Subscription, error) {
	return app.bus.Subscribe(pattern, opts...)
}

// Health returns the supervisor's health snapshot.
func (app *Application) Health() worker.Health {
	return app.supervisor.Health()
}

// WorkerStderr returns the most recent lines the worker wrote to stderr,
// oldest first.
func (app *Application) WorkerStderr() []string {
	return app.subs.recentStderr()
}

// Tools returns the typed tool client. Its calls are journaled.
func (app *Application) Tools() *toolchain.Client {
	return app.tools
}

// History returns the most recent journaled calls, newest first.
func (app *Application) History(ctx context.Context, limit int) ([]journal.CallRecord, error) {
	if app.journal == nil {
		return nil, ErrJournalDisabled
	}
	return app.journal.RecentCalls(ctx, limit)
}

// Transitions returns the most recent journaled lifecycle transitions.
func (app *Application) Transitions(ctx context.Context, limit int) ([]journal.TransitionRecord, error) {
	if app.journal == nil {
		return nil, ErrJournalDisabled
	}
	return app.journal.RecentTransitions(ctx, limit)
}

// Metrics returns a snapshot of the session's call metrics.
func (app *Application) Metrics() MetricsSnapshot {
	return app.metrics.Snapshot()
}

// RouterStats returns the router's counters.
func (app *Application) RouterStats() router.Stats {
	return app.router.Stats()
}

// Config returns the active configuration. Callers must not modify it.
func (app *Application) Config() *config.Config {
	app.cfgMu.RLock()
	defer app.cfgMu.RUnlock()
	return app.cfg
}

// Logger returns the application logger.
func (app *Application) Logger() *logging.Logger {
	return app.log
}

// SessionID identifies this run in the journal.
func (app *Application) SessionID() string {
	return app.sessionID
}
