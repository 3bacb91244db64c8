package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"

	"github.com/dshills/retroide/internal/journal"
)

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	color.NoColor = true

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "retroide.toml")
	content := "[journal]\npath = \"" + filepath.ToSlash(filepath.Join(dir, "journal.db")) + "\"\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestVersionCmd(t *testing.T) {
	out, err := runCmd(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.HasPrefix(out, "RetroIDE dev\n") {
		t.Errorf("output = %q", out)
	}
}

func TestCallCmd_BadSet(t *testing.T) {
	_, err := runCmd(t, "call", "compile_rom", "--set", "platform")
	if err == nil || !strings.Contains(err.Error(), "path=value") {
		t.Errorf("call error = %v", err)
	}
}

func TestHistoryCmd(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir)

	store, err := journal.OpenSQLite(filepath.Join(dir, "journal.db"), nil)
	if err != nil {
		t.Fatalf("OpenSQLite() = %v", err)
	}
	err = store.RecordCall(t.Context(), journal.CallRecord{
		SessionID: "s1",
		Method:    "tools/call",
		Tool:      "compile_rom",
		Outcome:   "ok",
		StartedAt: time.Now(),
		Duration:  3 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("RecordCall() = %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	out, err := runCmd(t, "--config", cfgPath, "history")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if !strings.Contains(out, "OUTCOME") || !strings.Contains(out, "compile_rom") {
		t.Errorf("history output:\n%s", out)
	}

	out, err = runCmd(t, "--config", cfgPath, "history", "--transitions")
	if err != nil {
		t.Fatalf("history --transitions: %v", err)
	}
	if !strings.HasPrefix(out, "TIME") {
		t.Errorf("transitions output:\n%s", out)
	}
}

func TestDefaultServeAddr(t *testing.T) {
	t.Setenv("PORT", "")
	if got := defaultServeAddr(); got != ":3000" {
		t.Errorf("default addr = %q", got)
	}
	t.Setenv("PORT", "8088")
	if got := defaultServeAddr(); got != ":8088" {
		t.Errorf("addr with PORT = %q", got)
	}
}

func TestServeCmd_Registered(t *testing.T) {
	cmd, _, err := newRootCmd().Find([]string{"serve"})
	if err != nil || cmd.Name() != "serve" {
		t.Fatalf("serve command not found: %v", err)
	}
	if cmd.Flags().Lookup("addr") == nil {
		t.Error("serve has no --addr flag")
	}
}
