package tui

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/dshills/retroide/internal/app"
	"github.com/dshills/retroide/internal/protocol"
	"github.com/dshills/retroide/internal/toolchain"
	"github.com/dshills/retroide/internal/worker"
)

func newTestModel() *Model {
	m := NewModel(app.DefaultProject())
	m.now = func() time.Time { return time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC) }
	return m
}

func lastLine(m *Model) Line {
	lines := m.Console(1)
	if len(lines) == 0 {
		return Line{}
	}
	return lines[0]
}

func TestModel_Tabs(t *testing.T) {
	m := newTestModel()
	if m.Tab() != TabCode {
		t.Fatalf("initial Tab = %v", m.Tab())
	}
	for r, want := range map[rune]Tab{'2': TabAssets, '3': TabBuild, '1': TabCode} {
		if a := m.HandleKey(r); a != ActionNone {
			t.Errorf("HandleKey(%q) = %v, want none", r, a)
		}
		if m.Tab() != want {
			t.Errorf("after %q Tab = %v, want %v", r, m.Tab(), want)
		}
	}
	if !strings.Contains(m.Panel(TabCode), "main.asm") {
		t.Errorf("code panel = %q", m.Panel(TabCode))
	}
}

func TestModel_ActionKeys(t *testing.T) {
	tests := []struct {
		key  rune
		want Action
	}{
		{'n', ActionNewProject},
		{'o', ActionOpenAsset},
		{'b', ActionBuildROM},
		{'r', ActionRunEmulator},
		{'R', ActionRestartWorker},
		{'x', ActionNone},
	}
	for _, tt := range tests {
		m := newTestModel()
		if got := m.HandleKey(tt.key); got != tt.want {
			t.Errorf("HandleKey(%q) = %v, want %v", tt.key, got, tt.want)
		}
		if m.Busy() != tt.want {
			t.Errorf("Busy() after %q = %v, want %v", tt.key, m.Busy(), tt.want)
		}
	}
}

func TestModel_RefusesWhileBusy(t *testing.T) {
	m := newTestModel()
	m.HandleKey('b')
	if got := m.HandleKey('r'); got != ActionNone {
		t.Fatalf("second action = %v, want none", got)
	}
	if !strings.Contains(lastLine(m).Text, "Build ROM is still running") {
		t.Errorf("last line = %q", lastLine(m).Text)
	}
	if !strings.Contains(m.StatusLine(), "Build ROM...") {
		t.Errorf("StatusLine() = %q", m.StatusLine())
	}

	// Quit is always accepted.
	if got := m.HandleKey('q'); got != ActionQuit || !m.Quit() {
		t.Errorf("HandleKey('q') = %v, Quit() = %v", got, m.Quit())
	}
}

func TestModel_Finish(t *testing.T) {
	m := newTestModel()
	m.HandleKey('b')
	m.Finish(ActionBuildROM, app.Status{
		Panel:   app.PanelBuild,
		Text:    "MCP Grid: Compiled ROM for nes from 1 source files.",
		Outcome: protocol.OutcomeOK,
	})

	if m.Busy() != ActionNone {
		t.Errorf("Busy() = %v", m.Busy())
	}
	if m.Tab() != TabBuild {
		t.Errorf("Tab() = %v, want build", m.Tab())
	}
	if !strings.HasPrefix(m.Panel(TabBuild), "MCP Grid: Compiled") {
		t.Errorf("build panel = %q", m.Panel(TabBuild))
	}
	if l := lastLine(m); l.Kind != LineInfo {
		t.Errorf("line kind = %v", l.Kind)
	}

	m.HandleKey('o')
	m.Finish(ActionOpenAsset, app.Status{
		Panel:   app.PanelAssets,
		Text:    "Asset Forge: worker unavailable",
		Outcome: protocol.OutcomeUnavailable,
	})
	if l := lastLine(m); l.Kind != LineError || l.Text != "Asset Forge: worker unavailable" {
		t.Errorf("last line = %+v", l)
	}
	if m.Tab() != TabAssets {
		t.Errorf("Tab() = %v, want assets", m.Tab())
	}
}

func TestModel_FinishRestart(t *testing.T) {
	m := newTestModel()
	m.HandleKey('R')
	m.FinishRestart(fmt.Errorf("%w: gave up", protocol.ErrSupervisorFailed))
	if m.Busy() != ActionNone {
		t.Errorf("Busy() = %v", m.Busy())
	}
	if l := lastLine(m); l.Kind != LineError || !strings.HasPrefix(l.Text, "Restart failed") {
		t.Errorf("last line = %+v", l)
	}

	m.FinishRestart(nil)
	if l := lastLine(m); l.Text != "Worker restarted." {
		t.Errorf("last line = %+v", l)
	}
}

func TestModel_Events(t *testing.T) {
	progress, _ := protocol.NewEvent(toolchain.EventBuildProgress, toolchain.Progress{Tool: "compile_rom", Stage: "link", Percent: 33})
	crash, _ := protocol.NewEvent(worker.EventLifecycle, worker.Transition{From: "running", To: "crashed", Error: "exit status 2"})
	stderr, _ := protocol.NewEvent(worker.EventStderr, worker.StderrLine{Line: "bank 3 full"})
	other, _ := protocol.NewEvent("asset.saved", map[string]string{"name": "hero"})

	tests := []struct {
		msg  protocol.Message
		kind LineKind
		text string
	}{
		{progress, LineEvent, "[compile_rom] link 33%"},
		{crash, LineError, "worker running -> crashed: exit status 2"},
		{stderr, LineEvent, "worker: bank 3 full"},
		{other, LineEvent, `asset.saved {"name":"hero"}`},
	}
	for _, tt := range tests {
		m := newTestModel()
		m.Event(tt.msg)
		if l := lastLine(m); l.Kind != tt.kind || l.Text != tt.text {
			t.Errorf("Event(%s) line = %+v, want %v %q", tt.msg.Method, l, tt.kind, tt.text)
		}
	}
}

func TestModel_ConsoleLimit(t *testing.T) {
	m := newTestModel()
	m.limit = 5
	for i := 0; i < 12; i++ {
		m.logf(LineInfo, "line %d", i)
	}
	lines := m.Console(100)
	if len(lines) != 5 {
		t.Fatalf("len(Console) = %d, want 5", len(lines))
	}
	if lines[0].Text != "line 7" || lines[4].Text != "line 11" {
		t.Errorf("Console = %v .. %v", lines[0].Text, lines[4].Text)
	}
	if got := m.Console(0); got != nil {
		t.Errorf("Console(0) = %v", got)
	}
}

func TestModel_StatusLine(t *testing.T) {
	m := newTestModel()

	m.SetHealth(worker.Health{State: worker.StateRunning, PID: 4242, RestartCount: 1, Pending: 2})
	if got, want := m.StatusLine(), "worker running pid 4242 | restarts 1 | pending 2"; got != want {
		t.Errorf("StatusLine() = %q, want %q", got, want)
	}

	m.SetHealth(worker.Health{State: worker.StateStarting})
	if got := m.StatusLine(); !strings.HasPrefix(got, "worker starting") {
		t.Errorf("StatusLine() = %q", got)
	}

	m.SetHealth(worker.Health{State: worker.StateStopped, Failed: true, LastError: errors.New("3 restarts")})
	if got, want := m.StatusLine(), "worker FAILED: 3 restarts | R restarts"; got != want {
		t.Errorf("StatusLine() = %q, want %q", got, want)
	}
}
