package tui

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/dshills/retroide/internal/app"
	"github.com/dshills/retroide/internal/event"
	"github.com/dshills/retroide/internal/protocol"
	"github.com/dshills/retroide/internal/toolchain"
	"github.com/dshills/retroide/internal/worker"
)

type fakeRunner struct {
	bus *event.Bus

	mu    sync.Mutex
	calls []string
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{bus: event.NewBus()}
}

func (f *fakeRunner) record(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
}

func (f *fakeRunner) NewProject(ctx context.Context, p app.Project) app.Status {
	f.record("new")
	return app.Status{Panel: app.PanelConsole, Text: "Created " + p.Name, Outcome: protocol.OutcomeOK}
}

func (f *fakeRunner) OpenAsset(ctx context.Context, p app.Project) app.Status {
	f.record("asset")
	return app.Status{Panel: app.PanelAssets, Text: "Asset Forge: sprite", Outcome: protocol.OutcomeOK}
}

func (f *fakeRunner) BuildROM(ctx context.Context, p app.Project) app.Status {
	f.record("build")
	_ = f.bus.Emit(toolchain.EventBuildProgress, toolchain.Progress{Tool: "compile_rom", Stage: "assemble"})
	return app.Status{Panel: app.PanelBuild, Text: "MCP Grid: Compiled ROM", Outcome: protocol.OutcomeOK}
}

func (f *fakeRunner) RunEmulator(ctx context.Context, p app.Project) app.Status {
	f.record("run")
	return app.Status{Panel: app.PanelConsole, Text: "Emulator Coliseum: ok", Outcome: protocol.OutcomeOK}
}

func (f *fakeRunner) Restart(ctx context.Context) error {
	f.record("restart")
	return nil
}

func (f *fakeRunner) Health() worker.Health {
	return worker.Health{State: worker.StateRunning, PID: 77}
}

func (f *fakeRunner) Subscribe(pattern string, opts ...event.SubscriptionOption) (*event.Subscription, error) {
	return f.bus.Subscribe(pattern, opts...)
}

// screenText returns the simulation screen contents, one string per row.
func screenText(s tcell.SimulationScreen) string {
	cells, w, _ := s.GetContents()
	var b strings.Builder
	for i, c := range cells {
		if len(c.Runes) > 0 {
			b.WriteRune(c.Runes[0])
		} else {
			b.WriteByte(' ')
		}
		if (i+1)%w == 0 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func waitForScreen(t *testing.T, s tcell.SimulationScreen, want string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if strings.Contains(screenText(s), want) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("screen never showed %q:\n%s", want, screenText(s))
}

func startUI(t *testing.T, runner *fakeRunner) (tcell.SimulationScreen, <-chan error, context.CancelFunc) {
	t.Helper()
	sim := tcell.NewSimulationScreen("")
	ui := New(runner, app.DefaultProject(), WithScreen(sim))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ui.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		runner.bus.Close()
	})

	waitForScreen(t, sim, "worker running pid 77")
	return sim, done, cancel
}

func waitDone(t *testing.T, done <-chan error) {
	t.Helper()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return")
	}
}

func TestUI_BuildAndQuit(t *testing.T) {
	runner := newFakeRunner()
	sim, done, _ := startUI(t, runner)

	sim.InjectKey(tcell.KeyRune, 'b', tcell.ModNone)
	waitForScreen(t, sim, "MCP Grid: Compiled ROM")
	waitForScreen(t, sim, "[compile_rom] assemble")

	sim.InjectKey(tcell.KeyRune, 'q', tcell.ModNone)
	waitDone(t, done)

	runner.mu.Lock()
	defer runner.mu.Unlock()
	if len(runner.calls) != 1 || runner.calls[0] != "build" {
		t.Errorf("calls = %v, want [build]", runner.calls)
	}
}

func TestUI_TabsAndRestart(t *testing.T) {
	runner := newFakeRunner()
	sim, done, _ := startUI(t, runner)

	sim.InjectKey(tcell.KeyRune, '2', tcell.ModNone)
	waitForScreen(t, sim, "No assets yet")

	sim.InjectKey(tcell.KeyRune, 'R', tcell.ModNone)
	waitForScreen(t, sim, "Worker restarted.")

	sim.InjectKey(tcell.KeyEscape, 0, tcell.ModNone)
	waitDone(t, done)
}

func TestUI_ContextCancelQuits(t *testing.T) {
	runner := newFakeRunner()
	_, done, cancel := startUI(t, runner)

	cancel()
	waitDone(t, done)
}

func TestDrawText_Clips(t *testing.T) {
	sim := tcell.NewSimulationScreen("")
	if err := sim.Init(); err != nil {
		t.Fatal(err)
	}
	defer sim.Fini()
	sim.SetSize(10, 1)

	end := drawText(sim, 2, 0, 6, tcell.StyleDefault, "circuit")
	if end != 6 {
		t.Errorf("drawText() = %d, want 6", end)
	}
	sim.Show()
	if got := strings.TrimRight(screenText(sim), " \n"); got != "  circ" {
		t.Errorf("screen = %q, want %q", got, "  circ")
	}
}
