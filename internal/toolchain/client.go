package toolchain

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dshills/retroide/internal/protocol"
)

// Caller sends one request to the worker and returns the raw result.
// A zero timeout selects the caller's default.
type Caller interface {
	Call(ctx context.Context, method string, params any, timeout time.Duration) (json.RawMessage, error)
}

// Client is a typed client for the worker's tools.
type Client struct {
	caller  Caller
	timeout time.Duration
}

// NewClient creates a Client over caller. timeout applies to every call;
// zero defers to the caller's default.
func NewClient(caller Caller, timeout time.Duration) *Client {
	return &Client{caller: caller, timeout: timeout}
}

// ListTools fetches the worker's catalog.
func (c *Client) ListTools(ctx context.Context) ([]Tool, error) {
	raw, err := c.caller.Call(ctx, protocol.MethodToolsList, nil, c.timeout)
	if err != nil {
		return nil, err
	}

	var result ListToolsResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, &protocol.ProtocolError{Reason: "undecodable tools/list result", Err: err}
	}
	return result.Tools, nil
}

// Invoke validates args and calls their tool.
func (c *Client) Invoke(ctx context.Context, args Arguments) (*CallToolResult, error) {
	if err := args.Validate(); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	return c.CallTool(ctx, args.Tool(), raw)
}

// CallTool calls the named tool with raw JSON arguments. Known tools have
// their arguments validated before anything is sent. A result flagged as
// an error is returned as a *protocol.ErrorObject.
func (c *Client) CallTool(ctx context.Context, name string, arguments json.RawMessage) (*CallToolResult, error) {
	if args, ok := NewArguments(name); ok {
		if len(arguments) == 0 {
			return nil, fmt.Errorf("%w: arguments are required", ErrInvalidArguments)
		}
		if err := json.Unmarshal(arguments, args); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
		}
		if err := args.Validate(); err != nil {
			return nil, err
		}
	}

	raw, err := c.caller.Call(ctx, protocol.MethodToolsCall, CallToolParams{Name: name, Arguments: arguments}, c.timeout)
	if err != nil {
		return nil, err
	}

	var result CallToolResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, &protocol.ProtocolError{Reason: "undecodable tools/call result", Err: err}
	}
	if result.IsError {
		return &result, &protocol.ErrorObject{Code: protocol.CodeToolFailed, Message: result.Text()}
	}
	return &result, nil
}

// CreateProject calls create_retro_project.
func (c *Client) CreateProject(ctx context.Context, platform Platform, name string) (*CallToolResult, error) {
	return c.Invoke(ctx, CreateProjectArgs{Platform: platform, ProjectName: name})
}

// GenerateSprite calls generate_sprite.
func (c *Client) GenerateSprite(ctx context.Context, width, height, colors int) (*CallToolResult, error) {
	return c.Invoke(ctx, SpriteArgs{Width: width, Height: height, Colors: colors})
}

// CompileROM calls compile_rom.
func (c *Client) CompileROM(ctx context.Context, platform Platform, sourceFiles ...string) (*CallToolResult, error) {
	if sourceFiles == nil {
		sourceFiles = []string{}
	}
	return c.Invoke(ctx, CompileArgs{SourceFiles: sourceFiles, Platform: platform})
}

// EditInstructionFile calls edit_instruction_file.
func (c *Client) EditInstructionFile(ctx context.Context, platform Platform, filename, content string) (*CallToolResult, error) {
	return c.Invoke(ctx, EditFileArgs{Filename: filename, Content: content, Platform: platform})
}

// CreateAsset calls create_asset. parameters may be nil.
func (c *Client) CreateAsset(ctx context.Context, platform Platform, typ AssetType, name string, parameters map[string]any) (*CallToolResult, error) {
	return c.Invoke(ctx, AssetArgs{Type: typ, Name: name, Platform: platform, Parameters: parameters})
}

// BuildAndTest calls build_and_test.
func (c *Client) BuildAndTest(ctx context.Context, project string, testMode bool) (*CallToolResult, error) {
	return c.Invoke(ctx, BuildArgs{ProjectName: project, TestMode: testMode})
}

// SetCodeOpacity calls set_code_opacity.
func (c *Client) SetCodeOpacity(ctx context.Context, filename string, opacity int) (*CallToolResult, error) {
	return c.Invoke(ctx, OpacityArgs{Filename: filename, Opacity: opacity})
}

// DecodeProgress extracts the payload of a build.progress event.
func DecodeProgress(msg protocol.Message) (Progress, error) {
	if msg.Kind != protocol.KindEvent || msg.Method != EventBuildProgress {
		return Progress{}, fmt.Errorf("not a %s event: %s", EventBuildProgress, msg)
	}
	var p Progress
	if err := msg.DecodeParams(&p); err != nil {
		return Progress{}, &protocol.ProtocolError{Reason: "undecodable progress event", Err: err}
	}
	return p, nil
}
