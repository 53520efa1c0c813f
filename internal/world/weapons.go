package world

import (
	_ "embed"
	"fmt"

	"github.com/Scrimzay/artillery/internal/ai"
	"github.com/Scrimzay/artillery/internal/terrain"
	"gopkg.in/yaml.v3"
)

//go:embed weapons.yaml
var defaultWeapons []byte

type Size struct {
	Name        string  `yaml:"name" json:"name"`
	Radius      float64 `yaml:"radius" json:"radius"`
	Cost        int64   `yaml:"cost" json:"cost"`
	FluidVolume float64 `yaml:"fluid_volume" json:"fluidVolume,omitempty"`
}

type Weapon struct {
	ID         int           `yaml:"id" json:"id"`
	Name       string        `yaml:"name" json:"name"`
	StyleName  string        `yaml:"style" json:"style"`
	Style      terrain.Style `yaml:"-" json:"-"`
	Damage     int           `yaml:"damage" json:"damage"`
	BurnDamage int           `yaml:"burn_damage" json:"burnDamage,omitempty"`
	BurnRadius float64       `yaml:"burn_radius" json:"burnRadius,omitempty"`
	Warheads   int           `yaml:"warheads" json:"warheads,omitempty"`
	Spread     float64       `yaml:"spread" json:"spread,omitempty"`
	Bounds     ai.Bounds     `yaml:"bounds" json:"bounds"`
	Sizes      []Size        `yaml:"sizes" json:"sizes"`
}

// Catalog is the fixed list of weapons every peer fires with.
type Catalog struct {
	Weapons []Weapon `yaml:"weapons"`
}

func LoadCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parsing weapons catalog: %w", err)
	}
	if len(c.Weapons) == 0 {
		return nil, fmt.Errorf("weapons catalog is empty")
	}

	seen := make(map[int]bool)
	for i := range c.Weapons {
		w := &c.Weapons[i]
		if seen[w.ID] {
			return nil, fmt.Errorf("weapon id %d listed twice", w.ID)
		}
		seen[w.ID] = true

		style, err := terrain.ParseStyle(w.StyleName)
		if err != nil {
			return nil, fmt.Errorf("weapon %q: %w", w.Name, err)
		}
		w.Style = style
		if len(w.Sizes) == 0 {
			return nil, fmt.Errorf("weapon %q has no sizes", w.Name)
		}
		if w.Bounds.MaxAltitude < w.Bounds.MinAltitude || w.Bounds.MaxVelocity < w.Bounds.MinVelocity {
			return nil, fmt.Errorf("weapon %q has inverted bounds", w.Name)
		}
	}
	return &c, nil
}

// DefaultCatalog parses the catalog built into the binary.
func DefaultCatalog() (*Catalog, error) {
	return LoadCatalog(defaultWeapons)
}

// Weapon looks a weapon up by id.
func (c *Catalog) Weapon(id int) (Weapon, bool) {
	for _, w := range c.Weapons {
		if w.ID == id {
			return w, true
		}
	}
	return Weapon{}, false
}

// Lookup returns a weapon and one of its sizes, falling back to the first
// weapon and its first size when either id is unknown.
func (c *Catalog) Lookup(weaponID, sizeID int) (Weapon, Size) {
	w, ok := c.Weapon(weaponID)
	if !ok {
		w = c.Weapons[0]
	}
	if sizeID < 0 || sizeID >= len(w.Sizes) {
		sizeID = 0
	}
	return w, w.Sizes[sizeID]
}

// Valid reports whether the pair names a real weapon size.
func (c *Catalog) Valid(weaponID, sizeID int) bool {
	w, ok := c.Weapon(weaponID)
	return ok && sizeID >= 0 && sizeID < len(w.Sizes)
}
