package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLevel_String(t *testing.T) {
	tests := []struct {
		level    Level
		expected string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{Level(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		if got := tt.level.String(); got != tt.expected {
			t.Errorf("Level(%d).String() = %q, expected %q", tt.level, got, tt.expected)
		}
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
	}{
		{"debug", LevelDebug},
		{"DEBUG", LevelDebug},
		{"info", LevelInfo},
		{"warn", LevelWarn},
		{"Warning", LevelWarn},
		{"error", LevelError},
		{"unknown", LevelInfo},
		{"", LevelInfo},
	}

	for _, tt := range tests {
		if got := ParseLevel(tt.input); got != tt.expected {
			t.Errorf("ParseLevel(%q) = %v, expected %v", tt.input, got, tt.expected)
		}
	}
}

func TestLogger_ComponentFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := NewWithCore(core, LevelDebug).WithComponent("router")

	log.Info("call resolved", "id", uint64(7), "method", "ping")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	ctx := entries[0].ContextMap()
	if ctx["component"] != "router" {
		t.Errorf("component = %v, want router", ctx["component"])
	}
	if ctx["method"] != "ping" {
		t.Errorf("method = %v, want ping", ctx["method"])
	}
	if entries[0].Message != "call resolved" {
		t.Errorf("message = %q", entries[0].Message)
	}
}

func TestLogger_SetLevelSharedWithChildren(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	root := NewWithCore(core, LevelInfo)
	child := root.WithComponent("worker")

	child.Debug("hidden")
	if logs.Len() != 0 {
		t.Fatalf("debug entry logged at info level")
	}

	root.SetLevel(LevelDebug)
	child.Debug("visible")
	if logs.Len() != 1 {
		t.Errorf("got %d entries after SetLevel, want 1", logs.Len())
	}
	if child.Level() != LevelDebug {
		t.Errorf("child.Level() = %v, want DEBUG", child.Level())
	}
}

func TestNew_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: LevelInfo, Format: FormatJSON, Output: &buf, Name: "test"})

	log.Warn("restart scheduled", "attempt", 2)
	log.Debug("dropped")
	_ = log.Sync()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1: %q", len(lines), buf.String())
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("invalid JSON log line: %v", err)
	}
	if entry["msg"] != "restart scheduled" {
		t.Errorf("msg = %v", entry["msg"])
	}
	if entry["logger"] != "test" {
		t.Errorf("logger = %v, want test", entry["logger"])
	}
	if entry["attempt"] != float64(2) {
		t.Errorf("attempt = %v, want 2", entry["attempt"])
	}
	if _, ok := entry["time"]; !ok {
		t.Error("missing time key")
	}
}

func TestNew_ConsoleOutput(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: LevelDebug, Output: &buf})

	log.Error("worker crashed", "exit_code", 1)

	out := buf.String()
	if !strings.Contains(out, "ERROR") || !strings.Contains(out, "worker crashed") {
		t.Errorf("unexpected console output: %q", out)
	}
}

func TestNop(t *testing.T) {
	log := Nop()
	log.Info("ignored", "k", "v")
	log.WithComponent("x").Error("ignored")
}
