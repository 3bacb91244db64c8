package toolchain

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dshills/retroide/internal/protocol"
)

func TestCatalog(t *testing.T) {
	tools := Catalog()
	if len(tools) != 7 {
		t.Fatalf("len(Catalog()) = %d, want 7", len(tools))
	}

	seen := make(map[string]bool)
	for _, tool := range tools {
		if seen[tool.Name] {
			t.Errorf("duplicate tool %s", tool.Name)
		}
		seen[tool.Name] = true

		if tool.InputSchema.Type != "object" {
			t.Errorf("%s schema type = %q", tool.Name, tool.InputSchema.Type)
		}
		for _, req := range tool.InputSchema.Required {
			if _, ok := tool.InputSchema.Properties[req]; !ok {
				t.Errorf("%s requires undeclared property %s", tool.Name, req)
			}
		}
		if _, ok := NewArguments(tool.Name); !ok {
			t.Errorf("%s has no argument type", tool.Name)
		}
	}

	opacity, ok := Lookup(ToolSetCodeOpacity)
	if !ok {
		t.Fatal("set_code_opacity missing")
	}
	p := opacity.InputSchema.Properties["opacity"]
	if p.Minimum == nil || *p.Minimum != 0 || p.Maximum == nil || *p.Maximum != 100 {
		t.Errorf("opacity bounds = %v..%v", p.Minimum, p.Maximum)
	}
}

func TestCatalog_JSON(t *testing.T) {
	data, err := json.Marshal(ListToolsResult{Tools: Catalog()})
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{`"inputSchema"`, `"enum":["nes","snes","genesis","gb"]`, `"enum":["tile","sprite","music","palette"]`} {
		if !strings.Contains(string(data), want) {
			t.Errorf("catalog JSON missing %s", want)
		}
	}
}

func TestVisibility(t *testing.T) {
	tests := []struct {
		opacity int
		want    string
	}{
		{0, "interface only"},
		{1, "fuzzy preview"},
		{49, "fuzzy preview"},
		{50, "full visibility"},
		{100, "full visibility"},
	}
	for _, tt := range tests {
		if got := Visibility(tt.opacity); got != tt.want {
			t.Errorf("Visibility(%d) = %q, want %q", tt.opacity, got, tt.want)
		}
	}
}

func TestParsePlatform(t *testing.T) {
	if p, err := ParsePlatform(" SNES "); err != nil || p != PlatformSNES {
		t.Errorf("ParsePlatform(SNES) = %q, %v", p, err)
	}
	if _, err := ParsePlatform("atari"); !errors.Is(err, ErrInvalidArguments) {
		t.Errorf("ParsePlatform(atari) = %v, want ErrInvalidArguments", err)
	}
}

func TestArguments_Validate(t *testing.T) {
	tests := []struct {
		name  string
		args  Arguments
		valid bool
	}{
		{"project ok", CreateProjectArgs{Platform: PlatformNES, ProjectName: "CircuitQuest"}, true},
		{"project bad platform", CreateProjectArgs{Platform: "atari", ProjectName: "x"}, false},
		{"project no name", CreateProjectArgs{Platform: PlatformGB}, false},
		{"sprite ok", SpriteArgs{Width: 16, Height: 16, Colors: 4}, true},
		{"sprite zero width", SpriteArgs{Height: 16, Colors: 4}, false},
		{"sprite no colors", SpriteArgs{Width: 8, Height: 8}, false},
		{"compile ok", CompileArgs{SourceFiles: []string{"main.asm"}, Platform: PlatformNES}, true},
		{"compile empty list", CompileArgs{SourceFiles: []string{}, Platform: PlatformNES}, true},
		{"compile missing list", CompileArgs{Platform: PlatformNES}, false},
		{"compile blank file", CompileArgs{SourceFiles: []string{" "}, Platform: PlatformNES}, false},
		{"edit ok", EditFileArgs{Filename: "main.asm", Platform: PlatformGenesis}, true},
		{"edit no file", EditFileArgs{Platform: PlatformGenesis}, false},
		{"asset ok", AssetArgs{Type: AssetSprite, Name: "hero", Platform: PlatformNES}, true},
		{"asset bad type", AssetArgs{Type: "voxel", Name: "hero", Platform: PlatformNES}, false},
		{"build ok", BuildArgs{ProjectName: "CircuitQuest"}, true},
		{"build no project", BuildArgs{}, false},
		{"opacity ok", OpacityArgs{Filename: "main.asm", Opacity: 100}, true},
		{"opacity too high", OpacityArgs{Filename: "main.asm", Opacity: 101}, false},
		{"opacity negative", OpacityArgs{Filename: "main.asm", Opacity: -1}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.args.Validate()
			if tt.valid && err != nil {
				t.Errorf("Validate() = %v, want nil", err)
			}
			if !tt.valid && !errors.Is(err, ErrInvalidArguments) {
				t.Errorf("Validate() = %v, want ErrInvalidArguments", err)
			}
		})
	}
}

func TestHandler_Results(t *testing.T) {
	h := NewHandler()
	tests := []struct {
		tool string
		args string
		want string
	}{
		{ToolCreateProject, `{"platform":"nes","projectName":"CircuitQuest"}`,
			`Created retro project "CircuitQuest" for platform "nes". Circuit-board metropolis initialized.`},
		{ToolGenerateSprite, `{"width":16,"height":16,"colors":4}`,
			`Generated 16x16 sprite with 4 colors. Asset diffused and stabilized.`},
		{ToolCompileROM, `{"sourceFiles":["main.asm","gfx.asm"],"platform":"snes"}`,
			`Compiled ROM for snes from 2 source files. Build tools integrated with momentum.`},
		{ToolEditInstruction, `{"filename":"main.asm","content":"LDA #$01","platform":"nes"}`,
			`Edited instruction file main.asm for nes. Content validated against platform constraints.`},
		{ToolCreateAsset, `{"type":"sprite","name":"hero","platform":"nes","parameters":{"width":16}}`,
			`Created sprite asset "hero" for nes. Parameters: {"width":16}`},
		{ToolCreateAsset, `{"type":"music","name":"theme","platform":"gb"}`,
			`Created music asset "theme" for gb.`},
		{ToolBuildAndTest, `{"projectName":"CircuitQuest","testMode":true}`,
			`Built and tested project "CircuitQuest" with testing enabled. Circuit-board metropolis workflow completed.`},
		{ToolBuildAndTest, `{"projectName":"CircuitQuest"}`,
			`Built and tested project "CircuitQuest". Circuit-board metropolis workflow completed.`},
		{ToolSetCodeOpacity, `{"filename":"main.asm","opacity":25}`,
			`Set opacity of main.asm to 25%. Code now shows fuzzy preview. Circuit fog adjusted.`},
	}

	for _, tt := range tests {
		t.Run(tt.tool, func(t *testing.T) {
			res, err := h.Call(context.Background(), tt.tool, json.RawMessage(tt.args), nil)
			if err != nil {
				t.Fatalf("Call() = %v", err)
			}
			if got := res.Text(); got != tt.want {
				t.Errorf("got  %q\nwant %q", got, tt.want)
			}
		})
	}
}

func TestHandler_Errors(t *testing.T) {
	h := NewHandler()
	ctx := context.Background()

	if _, err := h.Call(ctx, "launch_rocket", json.RawMessage(`{}`), nil); !errors.Is(err, ErrUnknownTool) {
		t.Errorf("unknown tool: %v", err)
	}
	if _, err := h.Call(ctx, ToolBuildAndTest, nil, nil); !errors.Is(err, ErrInvalidArguments) {
		t.Errorf("missing args: %v", err)
	}
	if _, err := h.Call(ctx, ToolGenerateSprite, json.RawMessage(`{"width":"wide"}`), nil); !errors.Is(err, ErrInvalidArguments) {
		t.Errorf("mistyped args: %v", err)
	}
	if _, err := h.Call(ctx, ToolSetCodeOpacity, json.RawMessage(`{"filename":"a","opacity":150}`), nil); !errors.Is(err, ErrInvalidArguments) {
		t.Errorf("out of range: %v", err)
	}
}

func TestHandler_Progress(t *testing.T) {
	h := NewHandler()
	var reports []Progress

	_, err := h.Call(context.Background(), ToolBuildAndTest, json.RawMessage(`{"projectName":"p","testMode":true}`),
		func(p Progress) { reports = append(reports, p) })
	if err != nil {
		t.Fatal(err)
	}

	var stages []string
	for _, r := range reports {
		if r.Tool != ToolBuildAndTest {
			t.Errorf("progress tool = %q", r.Tool)
		}
		stages = append(stages, r.Stage)
	}
	if got := strings.Join(stages, ","); got != "compile,link,test,done" {
		t.Errorf("stages = %s", got)
	}
	for i := 1; i < len(reports); i++ {
		if reports[i].Percent < reports[i-1].Percent {
			t.Errorf("percent went backwards: %v", reports)
		}
	}
	if last := reports[len(reports)-1]; last.Percent != 100 {
		t.Errorf("final percent = %d", last.Percent)
	}
}

func TestHandler_ProgressCancelled(t *testing.T) {
	h := NewHandler(WithStepDelay(time.Hour))
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := h.Call(ctx, ToolCompileROM, json.RawMessage(`{"sourceFiles":["a.asm"],"platform":"nes"}`), nil)
		done <- err
	}()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Call() = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Call did not return after cancel")
	}
}

// fakeCaller answers calls from a function.
type fakeCaller struct {
	calls  []string
	params []any
	answer func(method string, params any) (json.RawMessage, error)
}

func (f *fakeCaller) Call(_ context.Context, method string, params any, _ time.Duration) (json.RawMessage, error) {
	f.calls = append(f.calls, method)
	f.params = append(f.params, params)
	return f.answer(method, params)
}

// handlerCaller routes tools/call through a real Handler.
func handlerCaller() *fakeCaller {
	h := NewHandler()
	return &fakeCaller{answer: func(method string, params any) (json.RawMessage, error) {
		switch method {
		case protocol.MethodToolsList:
			return json.Marshal(ListToolsResult{Tools: h.Tools()})
		case protocol.MethodToolsCall:
			p := params.(CallToolParams)
			res, err := h.Call(context.Background(), p.Name, p.Arguments, nil)
			if err != nil {
				return nil, &protocol.ErrorObject{Code: protocol.CodeInvalidParams, Message: err.Error()}
			}
			return json.Marshal(res)
		}
		return nil, &protocol.ErrorObject{Code: protocol.CodeMethodNotFound, Message: method}
	}}
}

func TestClient_TypedCalls(t *testing.T) {
	fc := handlerCaller()
	c := NewClient(fc, time.Second)
	ctx := context.Background()

	tools, err := c.ListTools(ctx)
	if err != nil || len(tools) != 7 {
		t.Fatalf("ListTools() = %d tools, %v", len(tools), err)
	}

	res, err := c.CreateProject(ctx, PlatformNES, "CircuitQuest")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(res.Text(), `Created retro project "CircuitQuest"`) {
		t.Errorf("CreateProject text = %q", res.Text())
	}

	res, err = c.SetCodeOpacity(ctx, "main.asm", 0)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(res.Text(), "interface only") {
		t.Errorf("SetCodeOpacity text = %q", res.Text())
	}

	if _, err := c.CompileROM(ctx, PlatformGB); err != nil {
		t.Errorf("CompileROM with no files: %v", err)
	}
}

func TestClient_ValidatesBeforeSending(t *testing.T) {
	fc := handlerCaller()
	c := NewClient(fc, 0)
	ctx := context.Background()

	if _, err := c.GenerateSprite(ctx, 0, 16, 4); !errors.Is(err, ErrInvalidArguments) {
		t.Errorf("GenerateSprite(0x16) = %v", err)
	}
	if _, err := c.CallTool(ctx, ToolSetCodeOpacity, json.RawMessage(`{"filename":"x","opacity":101}`)); !errors.Is(err, ErrInvalidArguments) {
		t.Errorf("CallTool(opacity 101) = %v", err)
	}
	if len(fc.calls) != 0 {
		t.Errorf("invalid calls reached the worker: %v", fc.calls)
	}
}

func TestClient_UndecodableResult(t *testing.T) {
	fc := &fakeCaller{answer: func(string, any) (json.RawMessage, error) {
		return json.RawMessage(`[1,2,3]`), nil
	}}
	c := NewClient(fc, 0)

	_, err := c.BuildAndTest(context.Background(), "p", false)
	if !errors.Is(err, protocol.ErrProtocol) {
		t.Errorf("BuildAndTest() = %v, want ErrProtocol", err)
	}
	if protocol.Classify(err) != protocol.OutcomeProtocolError {
		t.Errorf("Classify() = %v", protocol.Classify(err))
	}
}

func TestClient_ErrorResult(t *testing.T) {
	fc := &fakeCaller{answer: func(string, any) (json.RawMessage, error) {
		return json.RawMessage(`{"content":[{"type":"text","text":"assembler failed"}],"isError":true}`), nil
	}}
	c := NewClient(fc, 0)

	res, err := c.CompileROM(context.Background(), PlatformNES, "main.asm")
	var appErr *protocol.ErrorObject
	if !errors.As(err, &appErr) {
		t.Fatalf("CompileROM() = %v, want *protocol.ErrorObject", err)
	}
	if appErr.Code != protocol.CodeToolFailed || appErr.Message != "assembler failed" {
		t.Errorf("error = %+v", appErr)
	}
	if res == nil || !res.IsError {
		t.Errorf("result = %+v", res)
	}
}

func TestClient_PassesCallerErrors(t *testing.T) {
	fc := &fakeCaller{answer: func(string, any) (json.RawMessage, error) {
		return nil, protocol.ErrTimeout
	}}
	c := NewClient(fc, 0)

	if _, err := c.ListTools(context.Background()); !errors.Is(err, protocol.ErrTimeout) {
		t.Errorf("ListTools() = %v, want ErrTimeout", err)
	}
}

func TestDecodeProgress(t *testing.T) {
	msg, err := protocol.NewEvent(EventBuildProgress, Progress{Tool: ToolCompileROM, Stage: "link", Percent: 33})
	if err != nil {
		t.Fatal(err)
	}
	p, err := DecodeProgress(msg)
	if err != nil {
		t.Fatal(err)
	}
	if p.Stage != "link" || p.Percent != 33 {
		t.Errorf("got %+v", p)
	}

	other, _ := protocol.NewEvent("worker.stderr", nil)
	if _, err := DecodeProgress(other); err == nil {
		t.Error("expected error for other event")
	}
}
