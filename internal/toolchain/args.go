package toolchain

import "strings"

// Tool names.
const (
	ToolCreateProject   = "create_retro_project"
	ToolGenerateSprite  = "generate_sprite"
	ToolCompileROM      = "compile_rom"
	ToolEditInstruction = "edit_instruction_file"
	ToolCreateAsset     = "create_asset"
	ToolBuildAndTest    = "build_and_test"
	ToolSetCodeOpacity  = "set_code_opacity"
)

// Arguments is implemented by every tool's argument struct.
type Arguments interface {
	// Tool returns the tool the arguments belong to.
	Tool() string
	// Validate checks the arguments against the tool's schema.
	Validate() error
}

// CreateProjectArgs are the arguments of create_retro_project.
type CreateProjectArgs struct {
	Platform    Platform `json:"platform"`
	ProjectName string   `json:"projectName"`
}

func (CreateProjectArgs) Tool() string { return ToolCreateProject }

func (a CreateProjectArgs) Validate() error {
	if err := requirePlatform(a.Platform); err != nil {
		return err
	}
	return requireName("projectName", a.ProjectName)
}

// SpriteArgs are the arguments of generate_sprite.
type SpriteArgs struct {
	Width  int `json:"width"`
	Height int `json:"height"`
	Colors int `json:"colors"`
}

func (SpriteArgs) Tool() string { return ToolGenerateSprite }

func (a SpriteArgs) Validate() error {
	if a.Width <= 0 || a.Height <= 0 {
		return invalid("sprite size must be positive, got %dx%d", a.Width, a.Height)
	}
	if a.Colors <= 0 {
		return invalid("colors must be positive, got %d", a.Colors)
	}
	return nil
}

// CompileArgs are the arguments of compile_rom.
type CompileArgs struct {
	SourceFiles []string `json:"sourceFiles"`
	Platform    Platform `json:"platform"`
}

func (CompileArgs) Tool() string { return ToolCompileROM }

func (a CompileArgs) Validate() error {
	if a.SourceFiles == nil {
		return invalid("sourceFiles is required")
	}
	for i, f := range a.SourceFiles {
		if strings.TrimSpace(f) == "" {
			return invalid("sourceFiles[%d] is empty", i)
		}
	}
	return requirePlatform(a.Platform)
}

// EditFileArgs are the arguments of edit_instruction_file.
type EditFileArgs struct {
	Filename string   `json:"filename"`
	Content  string   `json:"content"`
	Platform Platform `json:"platform"`
}

func (EditFileArgs) Tool() string { return ToolEditInstruction }

func (a EditFileArgs) Validate() error {
	if err := requireName("filename", a.Filename); err != nil {
		return err
	}
	return requirePlatform(a.Platform)
}

// AssetArgs are the arguments of create_asset.
type AssetArgs struct {
	Type       AssetType      `json:"type"`
	Name       string         `json:"name"`
	Platform   Platform       `json:"platform"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

func (AssetArgs) Tool() string { return ToolCreateAsset }

func (a AssetArgs) Validate() error {
	if !a.Type.Valid() {
		return invalid("type must be one of %s, got %q", strings.Join(assetTypeStrings(), ", "), a.Type)
	}
	if err := requireName("name", a.Name); err != nil {
		return err
	}
	return requirePlatform(a.Platform)
}

// BuildArgs are the arguments of build_and_test.
type BuildArgs struct {
	ProjectName string `json:"projectName"`
	TestMode    bool   `json:"testMode,omitempty"`
}

func (BuildArgs) Tool() string { return ToolBuildAndTest }

func (a BuildArgs) Validate() error {
	return requireName("projectName", a.ProjectName)
}

// OpacityArgs are the arguments of set_code_opacity.
type OpacityArgs struct {
	Filename string `json:"filename"`
	Opacity  int    `json:"opacity"`
}

func (OpacityArgs) Tool() string { return ToolSetCodeOpacity }

func (a OpacityArgs) Validate() error {
	if err := requireName("filename", a.Filename); err != nil {
		return err
	}
	if a.Opacity < 0 || a.Opacity > 100 {
		return invalid("opacity must be within 0..100, got %d", a.Opacity)
	}
	return nil
}
