package tui

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/uniseg"

	"github.com/dshills/retroide/internal/app"
	"github.com/dshills/retroide/internal/event"
	"github.com/dshills/retroide/internal/logging"
	"github.com/dshills/retroide/internal/protocol"
	"github.com/dshills/retroide/internal/worker"
)

// Runner is the part of the application the UI drives.
type Runner interface {
	NewProject(ctx context.Context, p app.Project) app.Status
	OpenAsset(ctx context.Context, p app.Project) app.Status
	BuildROM(ctx context.Context, p app.Project) app.Status
	RunEmulator(ctx context.Context, p app.Project) app.Status
	Restart(ctx context.Context) error
	Health() worker.Health
	Subscribe(pattern string, opts ...event.SubscriptionOption) (*event.Subscription, error)
}

// Layout constants.
const (
	sidebarWidth = 22
	tickInterval = 250 * time.Millisecond
)

// Option configures a UI.
type Option func(*UI)

// WithScreen draws on s instead of the terminal. Tests pass a simulation
// screen.
func WithScreen(s tcell.Screen) Option {
	return func(u *UI) { u.screen = s }
}

// WithTheme sets the styles.
func WithTheme(t Theme) Option {
	return func(u *UI) { u.theme = t }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(u *UI) {
		if l != nil {
			u.log = l
		}
	}
}

// UI is the terminal front-end.
type UI struct {
	screen tcell.Screen
	runner Runner
	model  *Model
	theme  Theme
	log    *logging.Logger

	// inbox holds results and events produced off the UI goroutine.
	inboxMu sync.Mutex
	inbox   []any
	woken   atomic.Bool

	wg sync.WaitGroup
}

// actionResult carries a finished action back to the UI goroutine.
type actionResult struct {
	action Action
	status app.Status
}

type restartResult struct{ err error }

type quitRequest struct{}

// New creates a UI driving r for project.
func New(r Runner, project app.Project, opts ...Option) *UI {
	u := &UI{
		runner: r,
		model:  NewModel(project),
		theme:  DefaultTheme(),
		log:    logging.Nop(),
	}
	for _, opt := range opts {
		opt(u)
	}
	u.log = u.log.WithComponent("tui")
	return u
}

// Run shows the UI until the user quits or ctx is cancelled.
func (u *UI) Run(ctx context.Context) error {
	if u.screen == nil {
		s, err := tcell.NewScreen()
		if err != nil {
			return err
		}
		u.screen = s
	}
	if err := u.screen.Init(); err != nil {
		return err
	}
	defer u.screen.Fini()

	runCtx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		u.wg.Wait()
	}()

	sub, err := u.runner.Subscribe("**", event.WithBuffer(256), event.WithPolicy(event.DropOldest))
	if err != nil {
		return err
	}
	defer sub.Cancel()

	u.wg.Add(2)
	go u.forwardEvents(runCtx, sub)
	go u.tick(runCtx)

	u.model.SetHealth(u.runner.Health())
	u.draw()

	for !u.model.Quit() {
		ev := u.screen.PollEvent()
		if ev == nil {
			return nil
		}

		switch e := ev.(type) {
		case *tcell.EventResize:
			u.screen.Sync()
		case *tcell.EventKey:
			u.handleKey(runCtx, e)
		case *tcell.EventInterrupt:
			u.drain()
		}
		u.draw()
	}
	return nil
}

func (u *UI) handleKey(ctx context.Context, e *tcell.EventKey) {
	switch e.Key() {
	case tcell.KeyCtrlC, tcell.KeyEscape:
		u.model.HandleKey('q')
		return
	case tcell.KeyRune:
	default:
		return
	}

	action := u.model.HandleKey(e.Rune())
	switch action {
	case ActionNone, ActionQuit:
		return
	case ActionRestartWorker:
		u.goRun(func() { u.post(restartResult{err: u.runner.Restart(ctx)}) })
	default:
		project := u.model.Project()
		u.goRun(func() { u.post(actionResult{action: action, status: u.runAction(ctx, action, project)}) })
	}
}

func (u *UI) runAction(ctx context.Context, a Action, p app.Project) app.Status {
	switch a {
	case ActionNewProject:
		return u.runner.NewProject(ctx, p)
	case ActionOpenAsset:
		return u.runner.OpenAsset(ctx, p)
	case ActionBuildROM:
		return u.runner.BuildROM(ctx, p)
	default:
		return u.runner.RunEmulator(ctx, p)
	}
}

func (u *UI) goRun(fn func()) {
	u.wg.Add(1)
	go func() {
		defer u.wg.Done()
		fn()
	}()
}

// forwardEvents moves bus events into the inbox.
func (u *UI) forwardEvents(ctx context.Context, sub *event.Subscription) {
	defer u.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.Events():
			if !ok {
				return
			}
			u.post(msg)
		}
	}
}

// tick refreshes health and retries a wake-up the event queue refused.
func (u *UI) tick(ctx context.Context) {
	defer u.wg.Done()
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			u.post(quitRequest{})
			return
		case <-ticker.C:
			u.woken.Store(false)
			u.wake()
		}
	}
}

// post queues v for the UI goroutine and wakes it.
func (u *UI) post(v any) {
	u.inboxMu.Lock()
	u.inbox = append(u.inbox, v)
	u.inboxMu.Unlock()
	u.wake()
}

func (u *UI) wake() {
	if !u.woken.CompareAndSwap(false, true) {
		return
	}
	if err := u.screen.PostEvent(tcell.NewEventInterrupt(nil)); err != nil {
		u.woken.Store(false)
	}
}

// drain applies everything queued since the last wake-up. Runs on the UI
// goroutine.
func (u *UI) drain() {
	u.woken.Store(false)

	u.inboxMu.Lock()
	items := u.inbox
	u.inbox = nil
	u.inboxMu.Unlock()

	for _, item := range items {
		switch v := item.(type) {
		case actionResult:
			u.model.Finish(v.action, v.status)
		case restartResult:
			u.model.FinishRestart(v.err)
		case protocol.Message:
			u.model.Event(v)
		case quitRequest:
			u.model.HandleKey('q')
		}
	}
	u.model.SetHealth(u.runner.Health())
}

func (u *UI) draw() {
	s := u.screen
	w, h := s.Size()
	s.Fill(' ', u.theme.Body)
	if w < sidebarWidth+10 || h < 8 {
		drawText(s, 0, 0, w, u.theme.Error, "Terminal too small")
		s.Show()
		return
	}

	// Title and tabs.
	p := u.model.Project()
	x := drawText(s, 0, 0, w, u.theme.Title, " RetroIDE  "+p.Name+" ["+string(p.Platform)+"] ")
	for t := TabCode; t <= TabBuild; t++ {
		style := u.theme.Tab
		if t == u.model.Tab() {
			style = u.theme.TabOn
		}
		x = drawText(s, x+1, 0, w, style, " "+string(rune('1'+t))+" "+t.String()+" ")
	}

	// Sidebar.
	for i, e := range Sidebar() {
		y := 2 + i
		drawText(s, 1, y, sidebarWidth, u.theme.Key, string(e.Key))
		style := u.theme.Sidebar
		if e.Action == u.model.Busy() {
			style = style.Reverse(true)
		}
		drawText(s, 3, y, sidebarWidth, style, e.Label)
	}

	// Main panel above the console.
	consoleHeight := (h - 3) / 3
	panelBottom := h - 2 - consoleHeight
	y := 2
	for _, line := range strings.Split(u.model.Panel(u.model.Tab()), "\n") {
		if y >= panelBottom {
			break
		}
		drawText(s, sidebarWidth+1, y, w, u.theme.Body, line)
		y++
	}

	// Console.
	y = panelBottom
	for _, line := range u.model.Console(consoleHeight) {
		style := u.theme.Console
		switch line.Kind {
		case LineEvent:
			style = u.theme.Event
		case LineError:
			style = u.theme.Error
		}
		drawText(s, 1, y, w, style, line.At.Format("15:04:05")+" "+line.Text)
		y++
	}

	// Status line.
	status := u.theme.Status
	if u.model.Health().Failed {
		status = u.theme.StatusKO
	}
	for x := 0; x < w; x++ {
		s.SetContent(x, h-1, ' ', nil, status)
	}
	drawText(s, 1, h-1, w, status, u.model.StatusLine())

	s.Show()
}

// drawText draws text from x on row y, clipped at maxX, and returns the
// column after the last cell drawn.
func drawText(s tcell.Screen, x, y, maxX int, style tcell.Style, text string) int {
	g := uniseg.NewGraphemes(text)
	for g.Next() {
		runes := g.Runes()
		width := g.Width()
		if width == 0 {
			continue
		}
		if x+width > maxX {
			break
		}
		s.SetContent(x, y, runes[0], runes[1:], style)
		x += width
	}
	return x
}
