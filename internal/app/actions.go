package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/dshills/retroide/internal/protocol"
	"github.com/dshills/retroide/internal/toolchain"
)

// Panel identifies where a Status is shown.
type Panel int

const (
	PanelConsole Panel = iota
	PanelAssets
	PanelBuild
)

// String returns the panel title.
func (p Panel) String() string {
	switch p {
	case PanelConsole:
		return "Console"
	case PanelAssets:
		return "Asset Forge"
	case PanelBuild:
		return "MCP Grid"
	default:
		return "Unknown"
	}
}

// Status is the displayable result of an action.
type Status struct {
	Panel   Panel
	Text    string
	Outcome protocol.Outcome
	Err     error
}

// OK reports whether the action succeeded.
func (s Status) OK() bool {
	return s.Outcome == protocol.OutcomeOK
}

// Project is the project the actions operate on.
type Project struct {
	Name     string
	Platform toolchain.Platform
	Sources  []string
}

// DefaultProject is the project a fresh session starts with.
func DefaultProject() Project {
	return Project{
		Name:     "CircuitQuest",
		Platform: toolchain.PlatformNES,
		Sources:  []string{"main.asm"},
	}
}

// NewProject creates the project on the worker.
func (app *Application) NewProject(ctx context.Context, p Project) Status {
	res, err := app.tools.CreateProject(ctx, p.Platform, p.Name)
	return newStatus(PanelConsole, "", res, err)
}

// OpenAsset generates a sprite sheet for the asset panel.
func (app *Application) OpenAsset(ctx context.Context, p Project) Status {
	res, err := app.tools.GenerateSprite(ctx, 16, 16, 4)
	return newStatus(PanelAssets, "Asset Forge: ", res, err)
}

// BuildROM compiles the project's sources.
func (app *Application) BuildROM(ctx context.Context, p Project) Status {
	res, err := app.tools.CompileROM(ctx, p.Platform, p.Sources...)
	return newStatus(PanelBuild, "MCP Grid: ", res, err)
}

// RunEmulator builds the project and runs it in test mode.
func (app *Application) RunEmulator(ctx context.Context, p Project) Status {
	res, err := app.tools.BuildAndTest(ctx, p.Name, true)
	return newStatus(PanelConsole, "Emulator Coliseum: ", res, err)
}

func newStatus(panel Panel, prefix string, res *toolchain.CallToolResult, err error) Status {
	st := Status{Panel: panel, Outcome: protocol.Classify(err), Err: err}
	if err != nil {
		st.Text = prefix + Describe(err)
		return st
	}
	st.Text = prefix + res.Text()
	return st
}

// Describe renders a call error as a line for the user.
func Describe(err error) string {
	if err == nil {
		return "ok"
	}

	outcome := protocol.Classify(err)
	switch outcome {
	case protocol.OutcomeTimeout, protocol.OutcomeWorkerLost:
		return fmt.Sprintf("worker did not answer (%s), try again", outcome)
	case protocol.OutcomeUnavailable:
		return "worker unavailable after repeated crashes, restart it to continue"
	case protocol.OutcomeAppError:
		var obj *protocol.ErrorObject
		if errors.As(err, &obj) {
			return "error: " + obj.Message
		}
	case protocol.OutcomeCancelled:
		return "cancelled"
	case protocol.OutcomeProtocolError:
		return "worker sent an unreadable reply: " + err.Error()
	}
	if errors.Is(err, ErrShutdown) {
		return "application is shutting down"
	}
	return "invalid request: " + err.Error()
}
