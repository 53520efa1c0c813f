package world

import (
	"math/rand"
	"testing"

	"github.com/Scrimzay/artillery/internal/terrain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalog(t *testing.T) {
	c, err := DefaultCatalog()
	require.NoError(t, err)

	nuke, ok := c.Weapon(1)
	require.True(t, ok)
	assert.Equal(t, terrain.StyleExplosive, nuke.Style)
	assert.Equal(t, 150.0, nuke.Sizes[1].Radius)

	mud, _ := c.Lookup(3, 0)
	assert.True(t, mud.Style.Drains())

	w, s := c.Lookup(42, 9)
	assert.Equal(t, c.Weapons[0].ID, w.ID)
	assert.Equal(t, w.Sizes[0], s)

	assert.True(t, c.Valid(5, 1))
	assert.False(t, c.Valid(5, 2))
	assert.False(t, c.Valid(-1, 0))
}

func TestLoadCatalogRejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"empty", "weapons: []"},
		{"bad style", "weapons: [{id: 0, name: x, style: laser, sizes: [{name: a, radius: 1}]}]"},
		{"no sizes", "weapons: [{id: 0, name: x, style: explosive}]"},
		{"duplicate id", `weapons:
  - {id: 0, name: x, style: explosive, sizes: [{name: a, radius: 1}]}
  - {id: 0, name: y, style: explosive, sizes: [{name: a, radius: 1}]}`},
		{"inverted bounds", "weapons: [{id: 0, name: x, style: explosive, bounds: {min_altitude: 50, max_altitude: 10}, sizes: [{name: a}]}]"},
		{"not yaml", "weapons: ["},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadCatalog([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestRandomNames(t *testing.T) {
	names := RandomNames(rand.New(rand.NewSource(1)), len(CommanderNamePool)+2)
	seen := map[string]bool{}
	for _, n := range names {
		assert.False(t, seen[n], n)
		seen[n] = true
	}
}
