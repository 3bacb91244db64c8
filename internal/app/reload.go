package app

import (
	"context"
	"reflect"

	"github.com/dshills/retroide/internal/config"
	"github.com/dshills/retroide/internal/logging"
)

// startWatcher watches the configuration file when enabled.
func (app *Application) startWatcher(ctx context.Context) error {
	if !app.opts.WatchConfig || app.opts.ConfigPath == "" {
		return nil
	}

	app.mu.Lock()
	defer app.mu.Unlock()
	if app.watcher != nil || app.shutdown {
		return nil
	}

	w, err := config.Watch(context.WithoutCancel(ctx), app.opts.ConfigPath, app.reload)
	if err != nil {
		return err
	}
	app.watcher = w
	app.log.Info("watching config", "path", w.Path())
	return nil
}

// reload receives a reloaded configuration from the watcher.
func (app *Application) reload(cfg *config.Config, err error) {
	if err != nil {
		app.log.Warn("config reload failed", "error", err)
		return
	}
	app.ApplyConfig(cfg)
}

// ApplyConfig makes cfg the active configuration. The log level and the
// default call timeout take effect at once; other changes are reported
// and wait for the next restart of the application.
func (app *Application) ApplyConfig(cfg *config.Config) {
	app.cfgMu.Lock()
	old := app.cfg
	app.cfg = cfg
	app.cfgMu.Unlock()

	if level := logging.ParseLevel(cfg.Logging.Level); level != app.log.Level() {
		app.log.SetLevel(level)
		app.log.Info("log level changed", "level", level.String())
	}

	if timeout := cfg.Router.DefaultTimeout.Std(); timeout != app.router.DefaultTimeout() {
		app.router.SetDefaultTimeout(timeout)
		app.log.Info("default call timeout changed", "timeout", timeout)
	}

	for _, section := range restartRequired(old, cfg) {
		app.log.Warn("config change needs a restart", "section", section)
	}
}

// restartRequired names the sections whose changes only apply to a new
// application.
func restartRequired(old, cfg *config.Config) []string {
	var sections []string
	if !reflect.DeepEqual(old.Worker, cfg.Worker) {
		sections = append(sections, "worker")
	}
	if old.Supervisor != cfg.Supervisor {
		sections = append(sections, "supervisor")
	}
	if old.Events != cfg.Events {
		sections = append(sections, "events")
	}
	if old.Logging.Format != cfg.Logging.Format || old.Logging.File != cfg.Logging.File {
		sections = append(sections, "logging")
	}
	if old.Journal != cfg.Journal {
		sections = append(sections, "journal")
	}
	return sections
}
