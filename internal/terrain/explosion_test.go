package terrain

import (
	"math/rand"
	"testing"

	"github.com/Scrimzay/artillery/internal/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func flatBoard(size int, elevation float64) (surface, bedrock, colors *HeightField) {
	surface, bedrock, colors = New(size, size), New(size, size), New(size, size)
	surface.Fill(elevation)
	return surface, bedrock, colors
}

func TestExplosiveCraterNeverRaisesGround(t *testing.T) {
	surface := New(65, 65)
	require.NoError(t, surface.FillFractal(50, 200, WithRand(rand.New(rand.NewSource(5)))))
	colors := New(65, 65)
	before := surface.Clone()

	at := geom.Vector3{X: 30, Y: 120, Z: 28}
	c := Explode(surface, nil, colors, at, 12, StyleExplosive)

	assert.Equal(t, before, surface, "inputs are not modified")
	assert.Equal(t, Rect{MinX: 18, MinY: 16, MaxX: 42, MaxY: 40}, c.Footprint)

	for y := c.Footprint.MinY; y <= c.Footprint.MaxY; y++ {
		for x := c.Footprint.MinX; x <= c.Footprint.MaxX; x++ {
			top, _ := c.Top.Pixel(x, y)
			bottom, _ := c.Bottom.Pixel(x, y)
			next, _ := c.Surface.Pixel(x, y)
			old, _ := before.Pixel(x, y)
			assert.LessOrEqual(t, bottom, top, "cell %d,%d", x, y)
			assert.LessOrEqual(t, next, old, "cell %d,%d", x, y)
		}
	}
}

func TestExplosiveCraterAtSurface(t *testing.T) {
	surface, bedrock, colors := flatBoard(33, 100)
	c := Explode(surface, bedrock, colors, geom.Vector3{X: 16, Y: 100, Z: 16}, 8, StyleExplosive)

	// centre column: ring 2, pipe 6, ext = sqrt(36-4)
	centre, _ := c.Surface.Pixel(16, 16)
	assert.InDelta(t, 100-5.656854, centre, 1e-5)
	assert.Equal(t, MaterialScorched, MaterialAt(c.Colors, 16, 16))

	// outside the torus column
	corner, _ := c.Surface.Pixel(8, 8)
	assert.Equal(t, 100.0, corner)
	assert.Equal(t, MaterialGround, MaterialAt(c.Colors, 8, 8))

	c.Apply(surface, colors)
	v, _ := surface.Pixel(16, 16)
	assert.InDelta(t, centre, v, 1e-9)
}

func TestExplosiveCraterStopsAtBedrock(t *testing.T) {
	surface, bedrock, colors := flatBoard(33, 100)
	bedrock.Fill(97)
	c := Explode(surface, bedrock, colors, geom.Vector3{X: 16, Y: 100, Z: 16}, 8, StyleExplosive)

	for _, v := range c.Surface.Cells {
		assert.GreaterOrEqual(t, v, 97.0)
	}
}

func TestExplosionOffBoardIsEmpty(t *testing.T) {
	surface, bedrock, colors := flatBoard(17, 10)
	c := Explode(surface, bedrock, colors, geom.Vector3{X: 100, Y: 10, Z: 100}, 4, StyleExplosive)
	assert.True(t, c.Footprint.Empty())
	assert.Empty(t, c.Surface.Cells)
}

func TestGenerativeSubcases(t *testing.T) {
	tests := []struct {
		name    string
		cur     float64
		wantNew float64
	}{
		{"chunk elevated above ground", 50, 62},
		{"chunk crosses the surface", 100, 106},
		{"chunk buried below the surface", 150, 162},
		{"surface exactly on lower face", 94, 94 * 1.1},
		{"surface exactly on upper face", 106, 106 * 1.1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, _, next := generativeColumn(tt.cur, 94, 106)
			assert.InDelta(t, tt.wantNew, next, 1e-9)
		})
	}
}

func TestGenerativeFallbackScalesElevation(t *testing.T) {
	surface, bedrock, colors := flatBoard(21, 94)

	// radius 8: ring 2, pipe 6; a cell 2 from the centre has ext 6, so the
	// chunk spans [94, 106] and its lower face touches the ground exactly
	c := Explode(surface, bedrock, colors, geom.Vector3{X: 10, Y: 100, Z: 10}, 8, StyleGenerative)

	v, ok := c.Surface.Pixel(12, 10)
	require.True(t, ok)
	assert.InDelta(t, 103.4, v, 1e-9)
	assert.Equal(t, MaterialPacked, MaterialAt(c.Colors, 12, 10))
}

func TestGenerativeNeverLowersGround(t *testing.T) {
	surface, bedrock, colors := flatBoard(33, 60)
	c := Explode(surface, bedrock, colors, geom.Vector3{X: 16, Y: 70, Z: 16}, 8, StyleGenerative)
	for _, v := range c.Surface.Cells {
		assert.GreaterOrEqual(t, v, 60.0)
	}
	centre, _ := c.Surface.Pixel(16, 16)
	assert.Greater(t, centre, 60.0)
}
