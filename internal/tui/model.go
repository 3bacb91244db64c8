package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/dshills/retroide/internal/app"
	"github.com/dshills/retroide/internal/protocol"
	"github.com/dshills/retroide/internal/toolchain"
	"github.com/dshills/retroide/internal/worker"
)

// Tab is a main view tab.
type Tab int

const (
	TabCode Tab = iota
	TabAssets
	TabBuild
)

var tabTitles = []string{"Code", "Assets", "Build"}

// String returns the tab title.
func (t Tab) String() string {
	if t < 0 || int(t) >= len(tabTitles) {
		return "?"
	}
	return tabTitles[t]
}

// Action is something the user asked for.
type Action int

const (
	ActionNone Action = iota
	ActionNewProject
	ActionOpenAsset
	ActionBuildROM
	ActionRunEmulator
	ActionRestartWorker
	ActionQuit
)

// SidebarEntry binds a key to an action.
type SidebarEntry struct {
	Key    rune
	Label  string
	Action Action
}

var sidebar = []SidebarEntry{
	{'n', "New Project", ActionNewProject},
	{'o', "Open Asset", ActionOpenAsset},
	{'b', "Build ROM", ActionBuildROM},
	{'r', "Run Emulator", ActionRunEmulator},
	{'R', "Restart Worker", ActionRestartWorker},
	{'q', "Quit", ActionQuit},
}

// Sidebar returns the sidebar entries in display order.
func Sidebar() []SidebarEntry {
	return sidebar
}

func (a Action) label() string {
	for _, e := range sidebar {
		if e.Action == a {
			return e.Label
		}
	}
	return ""
}

// LineKind classifies console lines for styling.
type LineKind int

const (
	LineInfo LineKind = iota
	LineEvent
	LineError
)

// Line is one console line.
type Line struct {
	Kind LineKind
	Text string
	At   time.Time
}

// DefaultConsoleLines bounds the console history.
const DefaultConsoleLines = 200

// Model is the UI state. It holds no terminal handles; the screen loop
// feeds it keys, results and events and draws what it reports.
type Model struct {
	tab     Tab
	console []Line
	limit   int

	// Last text shown in each tab.
	panels map[Tab]string

	health  worker.Health
	busy    Action
	project app.Project
	quit    bool

	now func() time.Time
}

// NewModel creates the initial UI state for project.
func NewModel(project app.Project) *Model {
	m := &Model{
		limit:   DefaultConsoleLines,
		panels:  make(map[Tab]string),
		project: project,
		now:     time.Now,
	}
	m.panels[TabCode] = fmt.Sprintf("%s (%s)\n\n%s", project.Name, project.Platform, strings.Join(project.Sources, "\n"))
	m.panels[TabAssets] = "No assets yet. Press o to open the Asset Forge."
	m.panels[TabBuild] = "No build yet. Press b to build the ROM."
	m.logf(LineInfo, "Welcome to RetroIDE. Project %s targets %s.", project.Name, project.Platform)
	return m
}

// HandleKey applies a key press and returns the action to run, if any.
// Worker actions are refused while another one is running.
func (m *Model) HandleKey(r rune) Action {
	switch r {
	case '1', '2', '3':
		m.tab = Tab(r - '1')
		return ActionNone
	}

	for _, e := range sidebar {
		if e.Key != r {
			continue
		}
		if e.Action == ActionQuit {
			m.quit = true
			return ActionQuit
		}
		if m.busy != ActionNone {
			m.logf(LineInfo, "%s is still running.", m.busy.label())
			return ActionNone
		}
		m.busy = e.Action
		m.logf(LineInfo, "%s...", e.Label)
		return e.Action
	}
	return ActionNone
}

// Finish records the result of a worker action started by HandleKey.
func (m *Model) Finish(a Action, st app.Status) {
	if m.busy == a {
		m.busy = ActionNone
	}

	kind := LineInfo
	if !st.OK() {
		kind = LineError
	}
	m.logf(kind, "%s", st.Text)

	switch st.Panel {
	case app.PanelAssets:
		m.panels[TabAssets] = st.Text
		m.tab = TabAssets
	case app.PanelBuild:
		m.panels[TabBuild] = st.Text
		m.tab = TabBuild
	}
}

// FinishRestart records the result of a worker restart.
func (m *Model) FinishRestart(err error) {
	if m.busy == ActionRestartWorker {
		m.busy = ActionNone
	}
	if err != nil {
		m.logf(LineError, "Restart failed: %s", app.Describe(err))
		return
	}
	m.logf(LineInfo, "Worker restarted.")
}

// Event appends a bus event to the console.
func (m *Model) Event(msg protocol.Message) {
	switch msg.Method {
	case toolchain.EventBuildProgress:
		var p toolchain.Progress
		if err := msg.DecodeParams(&p); err != nil {
			return
		}
		text := fmt.Sprintf("[%s] %s %d%%", p.Tool, p.Stage, p.Percent)
		if p.Message != "" {
			text += " " + p.Message
		}
		m.logf(LineEvent, "%s", text)

	case worker.EventLifecycle:
		var tr worker.Transition
		if err := msg.DecodeParams(&tr); err != nil {
			return
		}
		kind := LineEvent
		if tr.To == worker.StateCrashed.String() || tr.Error != "" {
			kind = LineError
		}
		text := fmt.Sprintf("worker %s -> %s", tr.From, tr.To)
		if tr.Error != "" {
			text += ": " + tr.Error
		}
		m.logf(kind, "%s", text)

	case worker.EventStderr:
		var line worker.StderrLine
		if err := msg.DecodeParams(&line); err != nil {
			return
		}
		m.logf(LineEvent, "worker: %s", line.Line)

	default:
		m.logf(LineEvent, "%s %s", msg.Method, string(msg.Params))
	}
}

// SetHealth stores the latest health snapshot for the status line.
func (m *Model) SetHealth(h worker.Health) {
	m.health = h
}

// StatusLine renders the status line text.
func (m *Model) StatusLine() string {
	h := m.health
	var b strings.Builder

	switch {
	case h.Failed:
		b.WriteString("worker FAILED")
		if h.LastError != nil {
			b.WriteString(": ")
			b.WriteString(h.LastError.Error())
		}
		b.WriteString(" | R restarts")
	case h.State == worker.StateRunning:
		fmt.Fprintf(&b, "worker running pid %d", h.PID)
	default:
		fmt.Fprintf(&b, "worker %s", h.State)
	}

	if !h.Failed {
		fmt.Fprintf(&b, " | restarts %d | pending %d", h.RestartCount, h.Pending)
	}
	if m.busy != ActionNone {
		fmt.Fprintf(&b, " | %s...", m.busy.label())
	}
	return b.String()
}

// Console returns the last n console lines, oldest first.
func (m *Model) Console(n int) []Line {
	if n <= 0 {
		return nil
	}
	if n > len(m.console) {
		n = len(m.console)
	}
	return m.console[len(m.console)-n:]
}

// Panel returns the text shown in tab t.
func (m *Model) Panel(t Tab) string {
	return m.panels[t]
}

// Tab returns the selected tab.
func (m *Model) Tab() Tab { return m.tab }

// Busy returns the running action, or ActionNone.
func (m *Model) Busy() Action { return m.busy }

// Project returns the project the actions run against.
func (m *Model) Project() app.Project { return m.project }

// Quit reports whether the user asked to quit.
func (m *Model) Quit() bool { return m.quit }

// Health returns the last health snapshot.
func (m *Model) Health() worker.Health { return m.health }

func (m *Model) logf(kind LineKind, format string, args ...any) {
	m.console = append(m.console, Line{Kind: kind, Text: fmt.Sprintf(format, args...), At: m.now()})
	if over := len(m.console) - m.limit; over > 0 {
		m.console = append(m.console[:0], m.console[over:]...)
	}
}
