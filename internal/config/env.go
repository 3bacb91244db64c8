package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "RETROIDE_"

// envMapping maps environment variables to config paths.
var envMapping = map[string]string{
	"RETROIDE_WORKER_COMMAND":          "worker.command",
	"RETROIDE_WORKER_ARGS":             "worker.args",
	"RETROIDE_WORKER_DIR":              "worker.dir",
	"RETROIDE_MAX_FRAME_SIZE":          "worker.max_frame_size",
	"RETROIDE_READY_TIMEOUT":           "supervisor.ready_timeout",
	"RETROIDE_SHUTDOWN_GRACE":          "supervisor.shutdown_grace",
	"RETROIDE_KILL_TIMEOUT":            "supervisor.kill_timeout",
	"RETROIDE_MAX_RESTARTS":            "supervisor.max_restarts",
	"RETROIDE_RESTART_WINDOW":          "supervisor.restart_window",
	"RETROIDE_HEALTH_INTERVAL":         "supervisor.health_interval",
	"RETROIDE_CALL_TIMEOUT":            "router.default_timeout",
	"RETROIDE_EVENT_QUEUE_SIZE":        "events.queue_size",
	"RETROIDE_EVENT_OVERFLOW":          "events.overflow",
	"RETROIDE_LOG_LEVEL":               "logging.level",
	"RETROIDE_LOG_FORMAT":              "logging.format",
	"RETROIDE_LOG_FILE":                "logging.file",
	"RETROIDE_JOURNAL":                 "journal.enabled",
	"RETROIDE_JOURNAL_PATH":            "journal.path",
	"RETROIDE_SUPERVISOR_MAX_BACKOFF":  "supervisor.max_backoff",
	"RETROIDE_SUPERVISOR_INIT_BACKOFF": "supervisor.initial_backoff",
}

// setters assign a raw string to the field at a config path.
var setters = map[string]func(*Config, string) error{
	"worker.command": func(c *Config, v string) error { c.Worker.Command = v; return nil },
	"worker.args": func(c *Config, v string) error {
		c.Worker.Args = strings.Fields(v)
		return nil
	},
	"worker.dir":                 func(c *Config, v string) error { c.Worker.Dir = v; return nil },
	"worker.max_frame_size":      intSetter(func(c *Config) *int { return &c.Worker.MaxFrameSize }),
	"supervisor.ready_timeout":   durationSetter(func(c *Config) *Duration { return &c.Supervisor.ReadyTimeout }),
	"supervisor.shutdown_grace":  durationSetter(func(c *Config) *Duration { return &c.Supervisor.ShutdownGrace }),
	"supervisor.kill_timeout":    durationSetter(func(c *Config) *Duration { return &c.Supervisor.KillTimeout }),
	"supervisor.max_restarts":    intSetter(func(c *Config) *int { return &c.Supervisor.MaxRestarts }),
	"supervisor.restart_window":  durationSetter(func(c *Config) *Duration { return &c.Supervisor.RestartWindow }),
	"supervisor.initial_backoff": durationSetter(func(c *Config) *Duration { return &c.Supervisor.InitialBackoff }),
	"supervisor.max_backoff":     durationSetter(func(c *Config) *Duration { return &c.Supervisor.MaxBackoff }),
	"supervisor.health_interval": durationSetter(func(c *Config) *Duration { return &c.Supervisor.HealthInterval }),
	"router.default_timeout":     durationSetter(func(c *Config) *Duration { return &c.Router.DefaultTimeout }),
	"events.queue_size":          intSetter(func(c *Config) *int { return &c.Events.QueueSize }),
	"events.overflow":            func(c *Config, v string) error { c.Events.Overflow = v; return nil },
	"logging.level":              func(c *Config, v string) error { c.Logging.Level = v; return nil },
	"logging.format":             func(c *Config, v string) error { c.Logging.Format = v; return nil },
	"logging.file":               func(c *Config, v string) error { c.Logging.File = v; return nil },
	"journal.enabled": func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		c.Journal.Enabled = b
		return nil
	},
	"journal.path": func(c *Config, v string) error { c.Journal.Path = v; return nil },
}

func intSetter(field func(*Config) *int) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return err
		}
		*field(c) = n
		return nil
	}
}

func durationSetter(field func(*Config) *Duration) func(*Config, string) error {
	return func(c *Config, v string) error {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return err
		}
		*field(c) = Duration(d)
		return nil
	}
}

// applyEnv applies the mapped environment variables found by lookup.
// Empty values are treated as set.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	names := make([]string, 0, len(envMapping))
	for name := range envMapping {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		val, ok := lookup(name)
		if !ok {
			continue
		}
		path := envMapping[name]
		set, ok := setters[path]
		if !ok {
			return fmt.Errorf("no setter for %s", path)
		}
		if err := set(cfg, val); err != nil {
			return &EnvError{Name: name, Value: val, Err: err}
		}
	}
	return nil
}

// EnvVars returns the recognised environment variables and their config
// paths, sorted by variable name.
func EnvVars() [][2]string {
	out := make([][2]string, 0, len(envMapping))
	for name, path := range envMapping {
		out = append(out, [2]string{name, path})
	}
	sort.Slice(out, func(i, j int) bool { return out[i][0] < out[j][0] })
	return out
}
