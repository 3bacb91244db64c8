package toolchain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidArguments is returned for tool arguments that fail validation.
var ErrInvalidArguments = errors.New("invalid tool arguments")

// ErrUnknownTool is returned for a tool name outside the catalog.
var ErrUnknownTool = errors.New("unknown tool")

// Platform is a target console.
type Platform string

const (
	PlatformNES     Platform = "nes"
	PlatformSNES    Platform = "snes"
	PlatformGenesis Platform = "genesis"
	PlatformGB      Platform = "gb"
)

// Platforms lists the supported platforms in catalog order.
var Platforms = []Platform{PlatformNES, PlatformSNES, PlatformGenesis, PlatformGB}

// Valid reports whether p is supported.
func (p Platform) Valid() bool {
	for _, known := range Platforms {
		if p == known {
			return true
		}
	}
	return false
}

// ParsePlatform parses a platform name, ignoring case.
func ParsePlatform(s string) (Platform, error) {
	p := Platform(strings.ToLower(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", fmt.Errorf("%w: unknown platform %q", ErrInvalidArguments, s)
	}
	return p, nil
}

// AssetType is a kind of game asset.
type AssetType string

const (
	AssetTile    AssetType = "tile"
	AssetSprite  AssetType = "sprite"
	AssetMusic   AssetType = "music"
	AssetPalette AssetType = "palette"
)

// AssetTypes lists the supported asset types in catalog order.
var AssetTypes = []AssetType{AssetTile, AssetSprite, AssetMusic, AssetPalette}

// Valid reports whether a is supported.
func (a AssetType) Valid() bool {
	for _, known := range AssetTypes {
		if a == known {
			return true
		}
	}
	return false
}

// Visibility names the code visibility band for an opacity percentage.
func Visibility(opacity int) string {
	switch {
	case opacity == 0:
		return "interface only"
	case opacity < 50:
		return "fuzzy preview"
	default:
		return "full visibility"
	}
}

func platformStrings() []string {
	out := make([]string, len(Platforms))
	for i, p := range Platforms {
		out[i] = string(p)
	}
	return out
}

func assetTypeStrings() []string {
	out := make([]string, len(AssetTypes))
	for i, a := range AssetTypes {
		out[i] = string(a)
	}
	return out
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArguments, fmt.Sprintf(format, args...))
}

func requirePlatform(p Platform) error {
	if !p.Valid() {
		return invalid("platform must be one of %s, got %q", strings.Join(platformStrings(), ", "), p)
	}
	return nil
}

func requireName(field, v string) error {
	if strings.TrimSpace(v) == "" {
		return invalid("%s is required", field)
	}
	return nil
}
