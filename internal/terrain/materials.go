package terrain

import (
	"fmt"
	"strings"
)

// Material is the value stored in the board's color layer.
type Material uint8

const (
	MaterialGround   Material = 0 // untouched fractal terrain
	MaterialScorched Material = 1 // crater interior
	MaterialPacked   Material = 2 // earth added by generative shots
	MaterialMud      Material = 3 // settled mud
	MaterialNapalm   Material = 4 // burning fluid
)

func (m Material) String() string {
	switch m {
	case MaterialGround:
		return "ground"

	case MaterialScorched:
		return "scorched"

	case MaterialPacked:
		return "packed"

	case MaterialMud:
		return "mud"

	case MaterialNapalm:
		return "napalm"

	default:
		return "unknown"
	}
}

// returns the material at a cell, ground outside the raster
func MaterialAt(colors *HeightField, x, y int) Material {
	v, ok := colors.Pixel(x, y)
	if !ok {
		return MaterialGround
	}
	return Material(v)
}

// Style selects how a detonation edits the terrain.
type Style uint8

const (
	StyleExplosive Style = iota
	StyleGenerative
	StyleMud
	StyleNapalm
	StyleMIRV
)

func (s Style) String() string {
	switch s {
	case StyleExplosive:
		return "explosive"

	case StyleGenerative:
		return "generative"

	case StyleMud:
		return "mud"

	case StyleNapalm:
		return "napalm"

	case StyleMIRV:
		return "mirv"

	default:
		return "unknown"
	}
}

func ParseStyle(s string) (Style, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "explosive", "":
		return StyleExplosive, nil

	case "generative":
		return StyleGenerative, nil

	case "mud":
		return StyleMud, nil

	case "napalm":
		return StyleNapalm, nil

	case "mirv":
		return StyleMIRV, nil
	}
	return StyleExplosive, fmt.Errorf("unknown weapon style %q", s)
}

// returns true if the style leaves fluid that drains after the blast
func (s Style) Drains() bool {
	return s == StyleMud || s == StyleNapalm
}

// returns the material a fluid style leaves behind
func (s Style) FluidMaterial() Material {
	if s == StyleNapalm {
		return MaterialNapalm
	}
	return MaterialMud
}
