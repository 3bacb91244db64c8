package toolchain

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dshills/retroide/internal/logging"
)

// EventBuildProgress is the event long-running tools emit while working.
const EventBuildProgress = "build.progress"

// Progress is the payload of a build.progress event.
type Progress struct {
	Tool    string `json:"tool"`
	Stage   string `json:"stage"`
	Percent int    `json:"percent"`
	Message string `json:"message,omitempty"`
}

// ProgressFunc receives progress reports from a running tool.
type ProgressFunc func(Progress)

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithStepDelay makes each progress step of compile_rom and build_and_test
// take d.
func WithStepDelay(d time.Duration) HandlerOption {
	return func(h *Handler) {
		if d >= 0 {
			h.stepDelay = d
		}
	}
}

// WithHandlerLogger sets the handler's logger.
func WithHandlerLogger(l *logging.Logger) HandlerOption {
	return func(h *Handler) {
		if l != nil {
			h.log = l
		}
	}
}

// Handler runs tools on the worker side.
type Handler struct {
	stepDelay time.Duration
	log       *logging.Logger
}

// NewHandler creates a Handler.
func NewHandler(opts ...HandlerOption) *Handler {
	h := &Handler{log: logging.Nop()}
	for _, opt := range opts {
		opt(h)
	}
	h.log = h.log.WithComponent("toolchain")
	return h
}

// Tools returns the catalog the handler serves.
func (h *Handler) Tools() []Tool {
	return Catalog()
}

// Call runs the named tool with raw JSON arguments. Unknown tools return
// ErrUnknownTool, bad arguments ErrInvalidArguments.
func (h *Handler) Call(ctx context.Context, name string, raw json.RawMessage, progress ProgressFunc) (*CallToolResult, error) {
	args, ok := NewArguments(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, fmt.Errorf("%w: arguments are required", ErrInvalidArguments)
	}
	if err := json.Unmarshal(raw, args); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	if err := args.Validate(); err != nil {
		return nil, err
	}
	if progress == nil {
		progress = func(Progress) {}
	}

	h.log.Debug("running tool", "tool", name)

	switch a := args.(type) {
	case *CreateProjectArgs:
		return TextResult(fmt.Sprintf("Created retro project %q for platform %q. Circuit-board metropolis initialized.",
			a.ProjectName, a.Platform)), nil

	case *SpriteArgs:
		return TextResult(fmt.Sprintf("Generated %dx%d sprite with %d colors. Asset diffused and stabilized.",
			a.Width, a.Height, a.Colors)), nil

	case *CompileArgs:
		stages := []string{"assemble", "link", "pack"}
		if err := h.runStages(ctx, name, stages, progress); err != nil {
			return nil, err
		}
		return TextResult(fmt.Sprintf("Compiled ROM for %s from %d source files. Build tools integrated with momentum.",
			a.Platform, len(a.SourceFiles))), nil

	case *EditFileArgs:
		return TextResult(fmt.Sprintf("Edited instruction file %s for %s. Content validated against platform constraints.",
			a.Filename, a.Platform)), nil

	case *AssetArgs:
		text := fmt.Sprintf("Created %s asset %q for %s.", a.Type, a.Name, a.Platform)
		if a.Parameters != nil {
			params, err := json.Marshal(a.Parameters)
			if err != nil {
				return nil, fmt.Errorf("%w: parameters: %v", ErrInvalidArguments, err)
			}
			text += " Parameters: " + string(params)
		}
		return TextResult(text), nil

	case *BuildArgs:
		stages := []string{"compile", "link"}
		if a.TestMode {
			stages = append(stages, "test")
		}
		if err := h.runStages(ctx, name, stages, progress); err != nil {
			return nil, err
		}
		suffix := ""
		if a.TestMode {
			suffix = " with testing enabled"
		}
		return TextResult(fmt.Sprintf("Built and tested project %q%s. Circuit-board metropolis workflow completed.",
			a.ProjectName, suffix)), nil

	case *OpacityArgs:
		return TextResult(fmt.Sprintf("Set opacity of %s to %d%%. Code now shows %s. Circuit fog adjusted.",
			a.Filename, a.Opacity, Visibility(a.Opacity))), nil
	}

	return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
}

// runStages reports each stage in turn and a final 100 percent.
func (h *Handler) runStages(ctx context.Context, tool string, stages []string, progress ProgressFunc) error {
	for i, stage := range stages {
		progress(Progress{Tool: tool, Stage: stage, Percent: i * 100 / len(stages)})
		if h.stepDelay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(h.stepDelay):
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}
	}
	progress(Progress{Tool: tool, Stage: "done", Percent: 100})
	return nil
}
