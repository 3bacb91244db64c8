package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/dshills/retroide/internal/event"
	"github.com/dshills/retroide/internal/logging"
	"github.com/dshills/retroide/internal/transport"
	"github.com/dshills/retroide/internal/worker"
)

// DefaultWorkerCommand is the worker executable used when none is configured.
const DefaultWorkerCommand = "retroworker"

// Config is the complete application configuration.
type Config struct {
	Worker     WorkerConfig     `toml:"worker" yaml:"worker"`
	Supervisor SupervisorConfig `toml:"supervisor" yaml:"supervisor"`
	Router     RouterConfig     `toml:"router" yaml:"router"`
	Events     EventsConfig     `toml:"events" yaml:"events"`
	Logging    LoggingConfig    `toml:"logging" yaml:"logging"`
	Journal    JournalConfig    `toml:"journal" yaml:"journal"`
}

// WorkerConfig describes how to launch the worker process.
type WorkerConfig struct {
	Command      string   `toml:"command" yaml:"command"`
	Args         []string `toml:"args" yaml:"args"`
	Env          []string `toml:"env" yaml:"env"`
	Dir          string   `toml:"dir" yaml:"dir"`
	MaxFrameSize int      `toml:"max_frame_size" yaml:"max_frame_size"`
}

// SupervisorConfig holds the supervisor's timing and restart budget.
type SupervisorConfig struct {
	ReadyTimeout      Duration `toml:"ready_timeout" yaml:"ready_timeout"`
	ShutdownGrace     Duration `toml:"shutdown_grace" yaml:"shutdown_grace"`
	KillTimeout       Duration `toml:"kill_timeout" yaml:"kill_timeout"`
	MaxRestarts       int      `toml:"max_restarts" yaml:"max_restarts"`
	RestartWindow     Duration `toml:"restart_window" yaml:"restart_window"`
	InitialBackoff    Duration `toml:"initial_backoff" yaml:"initial_backoff"`
	MaxBackoff        Duration `toml:"max_backoff" yaml:"max_backoff"`
	BackoffMultiplier float64  `toml:"backoff_multiplier" yaml:"backoff_multiplier"`
	HealthInterval    Duration `toml:"health_interval" yaml:"health_interval"`
	HealthTimeout     Duration `toml:"health_timeout" yaml:"health_timeout"`
}

// RouterConfig configures request routing.
type RouterConfig struct {
	// DefaultTimeout applies to calls made without an explicit timeout.
	DefaultTimeout Duration `toml:"default_timeout" yaml:"default_timeout"`
}

// EventsConfig configures the event bus.
type EventsConfig struct {
	QueueSize int `toml:"queue_size" yaml:"queue_size"`
	// Overflow is "drop-oldest" or "drop-newest".
	Overflow string `toml:"overflow" yaml:"overflow"`
}

// LoggingConfig configures the application logger.
type LoggingConfig struct {
	Level  string `toml:"level" yaml:"level"`
	Format string `toml:"format" yaml:"format"`
	// File receives log output. Empty means stderr.
	File string `toml:"file" yaml:"file"`
}

// JournalConfig configures the persistent call journal.
type JournalConfig struct {
	Enabled bool `toml:"enabled" yaml:"enabled"`
	// Path of the SQLite database. Empty means the user cache directory.
	Path string `toml:"path" yaml:"path"`
}

// Default returns the built-in configuration.
func Default() *Config {
	wc := worker.DefaultConfig(DefaultWorkerCommand)
	return &Config{
		Worker: WorkerConfig{
			Command:      DefaultWorkerCommand,
			MaxFrameSize: transport.DefaultMaxFrameSize,
		},
		Supervisor: SupervisorConfig{
			ReadyTimeout:      Duration(wc.ReadyTimeout),
			ShutdownGrace:     Duration(wc.ShutdownGrace),
			KillTimeout:       Duration(wc.KillTimeout),
			MaxRestarts:       wc.MaxRestarts,
			RestartWindow:     Duration(wc.RestartWindow),
			InitialBackoff:    Duration(wc.InitialBackoff),
			MaxBackoff:        Duration(wc.MaxBackoff),
			BackoffMultiplier: wc.BackoffMultiplier,
			HealthInterval:    Duration(wc.HealthInterval),
			HealthTimeout:     Duration(wc.HealthTimeout),
		},
		Router: RouterConfig{
			DefaultTimeout: Duration(30 * time.Second),
		},
		Events: EventsConfig{
			QueueSize: event.DefaultQueueSize,
			Overflow:  event.DropOldest.String(),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: string(logging.FormatConsole),
		},
		Journal: JournalConfig{
			Enabled: true,
		},
	}
}

// Load builds a configuration from the defaults, the file at path (if
// any) and RETROIDE_* environment overrides, then validates it.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// loadFile decodes path over cfg. The format follows the file extension.
func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}

	expanded := []byte(expandEnvVars(string(data)))

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		if err := toml.Unmarshal(expanded, cfg); err != nil {
			perr := &ParseError{Path: path, Message: err.Error(), Err: err}
			var derr *toml.DecodeError
			if errors.As(err, &derr) {
				perr.Line, perr.Column = derr.Position()
			}
			return perr
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(expanded, cfg); err != nil {
			return &ParseError{Path: path, Message: err.Error(), Err: err}
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	return nil
}

var envRef = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR} references with the variable's value.
// Unset variables expand to the empty string.
func expandEnvVars(s string) string {
	return envRef.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envRef.FindStringSubmatch(match)[1])
	})
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error

	if c.Worker.MaxFrameSize <= transport.HeaderSize {
		errs = append(errs, fmt.Errorf("worker.max_frame_size must exceed %d", transport.HeaderSize))
	}
	if c.Router.DefaultTimeout <= 0 {
		errs = append(errs, errors.New("router.default_timeout must be positive"))
	}
	if c.Events.QueueSize <= 0 {
		errs = append(errs, errors.New("events.queue_size must be positive"))
	}
	if _, err := event.ParseOverflowPolicy(c.Events.Overflow); err != nil {
		errs = append(errs, fmt.Errorf("events.overflow: %w", err))
	}
	switch logging.Format(strings.ToLower(c.Logging.Format)) {
	case logging.FormatConsole, logging.FormatJSON, "":
	default:
		errs = append(errs, fmt.Errorf("logging.format %q is not console or json", c.Logging.Format))
	}
	if err := c.WorkerConfig().Validate(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// WorkerConfig converts the worker and supervisor sections for the
// supervisor.
func (c *Config) WorkerConfig() worker.Config {
	s := c.Supervisor
	return worker.Config{
		Command:           c.Worker.Command,
		Args:              append([]string(nil), c.Worker.Args...),
		Env:               append([]string(nil), c.Worker.Env...),
		Dir:               c.Worker.Dir,
		MaxFrameSize:      c.Worker.MaxFrameSize,
		ReadyTimeout:      s.ReadyTimeout.Std(),
		ShutdownGrace:     s.ShutdownGrace.Std(),
		KillTimeout:       s.KillTimeout.Std(),
		MaxRestarts:       s.MaxRestarts,
		RestartWindow:     s.RestartWindow.Std(),
		InitialBackoff:    s.InitialBackoff.Std(),
		MaxBackoff:        s.MaxBackoff.Std(),
		BackoffMultiplier: s.BackoffMultiplier,
		HealthInterval:    s.HealthInterval.Std(),
		HealthTimeout:     s.HealthTimeout.Std(),
	}
}

// OverflowPolicy returns the parsed events.overflow setting.
func (c *Config) OverflowPolicy() event.OverflowPolicy {
	p, err := event.ParseOverflowPolicy(c.Events.Overflow)
	if err != nil {
		return event.DropOldest
	}
	return p
}

// LoggerConfig converts the logging section. The caller owns the file
// named by Logging.File and opens it.
func (c *Config) LoggerConfig() logging.Config {
	lc := logging.DefaultConfig()
	lc.Level = logging.ParseLevel(c.Logging.Level)
	if c.Logging.Format != "" {
		lc.Format = logging.Format(strings.ToLower(c.Logging.Format))
	}
	return lc
}

// JournalPath returns the journal database path, falling back to the user
// cache directory.
func (c *Config) JournalPath() (string, error) {
	if c.Journal.Path != "" {
		return c.Journal.Path, nil
	}
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("locating cache dir: %w", err)
	}
	return filepath.Join(dir, "retroide", "journal.db"), nil
}

// DefaultPath returns the default configuration file location.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "retroide.toml"
	}
	return filepath.Join(dir, "retroide", "config.toml")
}
