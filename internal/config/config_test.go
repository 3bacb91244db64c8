package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dshills/retroide/internal/event"
	"github.com/dshills/retroide/internal/logging"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}
	if cfg.Worker.Command != DefaultWorkerCommand {
		t.Errorf("Worker.Command = %q, want %q", cfg.Worker.Command, DefaultWorkerCommand)
	}
	wc := cfg.WorkerConfig()
	if wc.MaxRestarts != 3 {
		t.Errorf("MaxRestarts = %d, want 3", wc.MaxRestarts)
	}
	if wc.ReadyTimeout != 5*time.Second {
		t.Errorf("ReadyTimeout = %v, want 5s", wc.ReadyTimeout)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}
	if cfg.Router.DefaultTimeout.Std() != 30*time.Second {
		t.Errorf("DefaultTimeout = %v, want 30s", cfg.Router.DefaultTimeout)
	}
}

func TestLoad_TOML(t *testing.T) {
	path := writeFile(t, "retroide.toml", `
[worker]
command = "/opt/retro/worker"
args = ["--stdio"]

[supervisor]
ready_timeout = "2s"
max_restarts = 5
restart_window = "1m30s"

[router]
default_timeout = "750ms"

[events]
queue_size = 8
overflow = "drop-newest"

[logging]
level = "debug"
format = "json"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}

	if cfg.Worker.Command != "/opt/retro/worker" {
		t.Errorf("Command = %q", cfg.Worker.Command)
	}
	if len(cfg.Worker.Args) != 1 || cfg.Worker.Args[0] != "--stdio" {
		t.Errorf("Args = %v", cfg.Worker.Args)
	}
	if got := cfg.Supervisor.ReadyTimeout.Std(); got != 2*time.Second {
		t.Errorf("ReadyTimeout = %v, want 2s", got)
	}
	if got := cfg.Supervisor.RestartWindow.Std(); got != 90*time.Second {
		t.Errorf("RestartWindow = %v, want 1m30s", got)
	}
	if cfg.Supervisor.MaxRestarts != 5 {
		t.Errorf("MaxRestarts = %d, want 5", cfg.Supervisor.MaxRestarts)
	}
	if got := cfg.Router.DefaultTimeout.Std(); got != 750*time.Millisecond {
		t.Errorf("DefaultTimeout = %v, want 750ms", got)
	}
	if cfg.OverflowPolicy() != event.DropNewest {
		t.Errorf("OverflowPolicy = %v, want drop_newest", cfg.OverflowPolicy())
	}
	// Unset keys keep their defaults.
	if got := cfg.Supervisor.KillTimeout.Std(); got != 2*time.Second {
		t.Errorf("KillTimeout = %v, want default 2s", got)
	}

	lc := cfg.LoggerConfig()
	if lc.Level != logging.LevelDebug || lc.Format != logging.FormatJSON {
		t.Errorf("LoggerConfig = %+v", lc)
	}
}

func TestLoad_YAML(t *testing.T) {
	t.Setenv("RETRO_TEST_WORKER", "/usr/local/bin/retroworker")

	path := writeFile(t, "retroide.yaml", `
worker:
  command: ${RETRO_TEST_WORKER}
supervisor:
  health_interval: 0s
journal:
  enabled: false
  path: /tmp/journal.db
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}
	if cfg.Worker.Command != "/usr/local/bin/retroworker" {
		t.Errorf("Command = %q, want expanded variable", cfg.Worker.Command)
	}
	if cfg.Supervisor.HealthInterval != 0 {
		t.Errorf("HealthInterval = %v, want 0", cfg.Supervisor.HealthInterval)
	}
	if cfg.Journal.Enabled {
		t.Error("Journal.Enabled = true, want false")
	}
	if p, _ := cfg.JournalPath(); p != "/tmp/journal.db" {
		t.Errorf("JournalPath() = %q", p)
	}
}

func TestLoad_ParseErrors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"toml syntax", "bad.toml", "[worker\ncommand = 1"},
		{"toml duration", "bad.toml", "[router]\ndefault_timeout = \"soon\""},
		{"yaml syntax", "bad.yaml", "worker: [unclosed"},
		{"yaml duration", "bad.yml", "router:\n  default_timeout: later"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.file, tt.content))
			var perr *ParseError
			if !errors.As(err, &perr) {
				t.Fatalf("Load() = %v, want *ParseError", err)
			}
			if !strings.Contains(perr.Error(), tt.file) {
				t.Errorf("error %q does not name the file", perr.Error())
			}
		})
	}
}

func TestLoad_UnsupportedFormat(t *testing.T) {
	_, err := Load(writeFile(t, "config.ini", "x=1"))
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("Load() = %v, want ErrUnsupportedFormat", err)
	}
}

func TestLoad_Validation(t *testing.T) {
	path := writeFile(t, "invalid.toml", `
[worker]
command = ""
[events]
queue_size = 0
overflow = "drop-everything"
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("Load() = nil, want validation error")
	}
	for _, want := range []string{"command", "queue_size", "overflow"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"RETROIDE_WORKER_COMMAND": "node",
		"RETROIDE_WORKER_ARGS":    "server.js --stdio",
		"RETROIDE_CALL_TIMEOUT":   "5s",
		"RETROIDE_MAX_RESTARTS":   "1",
		"RETROIDE_LOG_LEVEL":      "warn",
		"RETROIDE_JOURNAL":        "false",
	}
	lookup := func(name string) (string, bool) {
		v, ok := env[name]
		return v, ok
	}

	cfg := Default()
	if err := applyEnv(cfg, lookup); err != nil {
		t.Fatalf("applyEnv() = %v", err)
	}

	if cfg.Worker.Command != "node" {
		t.Errorf("Command = %q, want node", cfg.Worker.Command)
	}
	if len(cfg.Worker.Args) != 2 || cfg.Worker.Args[1] != "--stdio" {
		t.Errorf("Args = %v", cfg.Worker.Args)
	}
	if cfg.Router.DefaultTimeout.Std() != 5*time.Second {
		t.Errorf("DefaultTimeout = %v, want 5s", cfg.Router.DefaultTimeout)
	}
	if cfg.Supervisor.MaxRestarts != 1 {
		t.Errorf("MaxRestarts = %d, want 1", cfg.Supervisor.MaxRestarts)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q, want warn", cfg.Logging.Level)
	}
	if cfg.Journal.Enabled {
		t.Error("Journal.Enabled = true, want false")
	}
}

func TestApplyEnv_InvalidValue(t *testing.T) {
	lookup := func(name string) (string, bool) {
		if name == "RETROIDE_MAX_RESTARTS" {
			return "many", true
		}
		return "", false
	}

	err := applyEnv(Default(), lookup)
	var eerr *EnvError
	if !errors.As(err, &eerr) {
		t.Fatalf("applyEnv() = %v, want *EnvError", err)
	}
	if eerr.Name != "RETROIDE_MAX_RESTARTS" {
		t.Errorf("Name = %q", eerr.Name)
	}
}

func TestEnvVars_HaveSetters(t *testing.T) {
	for _, pair := range EnvVars() {
		if !strings.HasPrefix(pair[0], EnvPrefix) {
			t.Errorf("%s lacks prefix %s", pair[0], EnvPrefix)
		}
		if _, ok := setters[pair[1]]; !ok {
			t.Errorf("%s maps to %s which has no setter", pair[0], pair[1])
		}
	}
}

func TestDuration_Text(t *testing.T) {
	var d Duration
	if err := d.UnmarshalText([]byte("1m5s")); err != nil {
		t.Fatal(err)
	}
	if d.Std() != 65*time.Second {
		t.Errorf("got %v, want 1m5s", d)
	}
	text, _ := d.MarshalText()
	if string(text) != "1m5s" {
		t.Errorf("MarshalText() = %q", text)
	}
	if err := d.UnmarshalText([]byte("5 parsecs")); err == nil {
		t.Error("expected error for invalid duration")
	}
}

func TestWatch_Reload(t *testing.T) {
	path := writeFile(t, "retroide.toml", "[logging]\nlevel = \"info\"\n")

	reloaded := make(chan *Config, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w, err := Watch(ctx, path, func(cfg *Config, err error) {
		if err != nil {
			t.Errorf("reload error: %v", err)
			return
		}
		reloaded <- cfg
	}, WithDebounce(20*time.Millisecond))
	if err != nil {
		t.Fatalf("Watch() = %v", err)
	}
	defer w.Close()

	if err := os.WriteFile(path, []byte("[logging]\nlevel = \"debug\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-reloaded:
		if cfg.Logging.Level != "debug" {
			t.Errorf("reloaded level = %q, want debug", cfg.Logging.Level)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reload after write")
	}
}

func TestWatch_StopsOnCancel(t *testing.T) {
	path := writeFile(t, "retroide.toml", "")
	ctx, cancel := context.WithCancel(context.Background())

	w, err := Watch(ctx, path, func(*Config, error) {})
	if err != nil {
		t.Fatalf("Watch() = %v", err)
	}
	cancel()

	select {
	case <-w.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
	if err := w.Close(); err != nil {
		t.Errorf("Close() after cancel = %v", err)
	}
}
