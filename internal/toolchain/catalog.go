package toolchain

import (
	"encoding/json"
	"strings"
)

// Tool describes one tool in the catalog.
type Tool struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	InputSchema Schema `json:"inputSchema"`
}

// Schema is the JSON schema subset used for tool inputs.
type Schema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties,omitempty"`
	Required   []string            `json:"required,omitempty"`
}

// Property is one schema property.
type Property struct {
	Type        string    `json:"type"`
	Description string    `json:"description,omitempty"`
	Enum        []string  `json:"enum,omitempty"`
	Items       *Property `json:"items,omitempty"`
	Minimum     *float64  `json:"minimum,omitempty"`
	Maximum     *float64  `json:"maximum,omitempty"`
}

// ListToolsResult is the result of tools/list.
type ListToolsResult struct {
	Tools []Tool `json:"tools"`
}

// CallToolParams are the params of tools/call.
type CallToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// Content is one piece of tool output.
type Content struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// CallToolResult is the result of tools/call.
type CallToolResult struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
}

// TextResult builds a result holding a single text item.
func TextResult(text string) *CallToolResult {
	return &CallToolResult{Content: []Content{{Type: "text", Text: text}}}
}

// Text joins the text items of r.
func (r *CallToolResult) Text() string {
	if r == nil {
		return ""
	}
	parts := make([]string, 0, len(r.Content))
	for _, c := range r.Content {
		if c.Type == "text" {
			parts = append(parts, c.Text)
		}
	}
	return strings.Join(parts, "\n")
}

func floatPtr(v float64) *float64 { return &v }

func platformProperty() Property {
	return Property{Type: "string", Enum: platformStrings(), Description: "Target platform"}
}

// Catalog returns the tool catalog.
func Catalog() []Tool {
	return []Tool{
		{
			Name:        ToolCreateProject,
			Description: "Create a new retro game project with specified platform",
			InputSchema: Schema{
				Type: "object",
				Properties: map[string]Property{
					"platform":    {Type: "string", Enum: platformStrings(), Description: "Target retro gaming platform"},
					"projectName": {Type: "string", Description: "Name of the project"},
				},
				Required: []string{"platform", "projectName"},
			},
		},
		{
			Name:        ToolGenerateSprite,
			Description: "Generate a sprite asset for retro games",
			InputSchema: Schema{
				Type: "object",
				Properties: map[string]Property{
					"width":  {Type: "number", Description: "Sprite width in pixels"},
					"height": {Type: "number", Description: "Sprite height in pixels"},
					"colors": {Type: "number", Description: "Number of colors"},
				},
				Required: []string{"width", "height", "colors"},
			},
		},
		{
			Name:        ToolCompileROM,
			Description: "Compile source code into a ROM file",
			InputSchema: Schema{
				Type: "object",
				Properties: map[string]Property{
					"sourceFiles": {Type: "array", Items: &Property{Type: "string"}, Description: "Source files to assemble"},
					"platform":    platformProperty(),
				},
				Required: []string{"sourceFiles", "platform"},
			},
		},
		{
			Name:        ToolEditInstruction,
			Description: "Edit or create instruction files (assembly, C code) for retro games",
			InputSchema: Schema{
				Type: "object",
				Properties: map[string]Property{
					"filename": {Type: "string", Description: "Name of the file"},
					"content":  {Type: "string", Description: "Content to write"},
					"platform": platformProperty(),
				},
				Required: []string{"filename", "content", "platform"},
			},
		},
		{
			Name:        ToolCreateAsset,
			Description: "Create game assets like tiles, sprites, or music",
			InputSchema: Schema{
				Type: "object",
				Properties: map[string]Property{
					"type":       {Type: "string", Enum: assetTypeStrings(), Description: "Asset type"},
					"name":       {Type: "string", Description: "Asset name"},
					"platform":   platformProperty(),
					"parameters": {Type: "object", Description: "Asset-specific parameters"},
				},
				Required: []string{"type", "name", "platform"},
			},
		},
		{
			Name:        ToolBuildAndTest,
			Description: "Build the project and run tests/emulation",
			InputSchema: Schema{
				Type: "object",
				Properties: map[string]Property{
					"projectName": {Type: "string", Description: "Name of the project"},
					"testMode":    {Type: "boolean", Description: "Run the test suite after building"},
				},
				Required: []string{"projectName"},
			},
		},
		{
			Name:        ToolSetCodeOpacity,
			Description: "Set opacity level for code files (0-100%) to control visibility in the circuit-board metropolis",
			InputSchema: Schema{
				Type: "object",
				Properties: map[string]Property{
					"filename": {Type: "string", Description: "File to set opacity for"},
					"opacity": {
						Type:        "number",
						Minimum:     floatPtr(0),
						Maximum:     floatPtr(100),
						Description: "Opacity percentage (0 = interface only, 100 = full code)",
					},
				},
				Required: []string{"filename", "opacity"},
			},
		},
	}
}

// Lookup returns the catalog entry for name.
func Lookup(name string) (Tool, bool) {
	for _, t := range Catalog() {
		if t.Name == name {
			return t, true
		}
	}
	return Tool{}, false
}

// NewArguments returns a zero argument struct for the named tool.
func NewArguments(name string) (Arguments, bool) {
	switch name {
	case ToolCreateProject:
		return &CreateProjectArgs{}, true
	case ToolGenerateSprite:
		return &SpriteArgs{}, true
	case ToolCompileROM:
		return &CompileArgs{}, true
	case ToolEditInstruction:
		return &EditFileArgs{}, true
	case ToolCreateAsset:
		return &AssetArgs{}, true
	case ToolBuildAndTest:
		return &BuildArgs{}, true
	case ToolSetCodeOpacity:
		return &OpacityArgs{}, true
	default:
		return nil, false
	}
}
