package ai

import (
	"math"
	"math/rand"
	"testing"

	"github.com/Scrimzay/artillery/internal/geom"
	"github.com/Scrimzay/artillery/internal/simplex"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testBounds = Bounds{MinAltitude: 0, MaxAltitude: 90, MinVelocity: 10, MaxVelocity: 100}

func TestColdStartIsRandomWithinBounds(t *testing.T) {
	b := NewBrain(Heuristic)
	rng := rand.New(rand.NewSource(1))

	for range 50 {
		a := b.NextAim(rng, 1, geom.Vector3{}, testBounds)
		assert.GreaterOrEqual(t, a.Azimuth, 0.0)
		assert.Less(t, a.Azimuth, 360.0)
		assert.GreaterOrEqual(t, a.Altitude, 0.0)
		assert.LessOrEqual(t, a.Altitude, 90.0)
		assert.GreaterOrEqual(t, a.Velocity, 10.0)
		assert.LessOrEqual(t, a.Velocity, 100.0)
	}
	assert.Equal(t, 1, b.Target)
}

func TestHeuristicReflectsFurthestShot(t *testing.T) {
	b := NewBrain(Heuristic)
	target := geom.Vector3{}
	shots := []Sample{
		{Aim{10, 40, 50}, geom.Vector3{X: 5}},
		{Aim{20, 40, 60}, geom.Vector3{X: 10}},
		{Aim{30, 50, 50}, geom.Vector3{X: 2}},
		{Aim{350, 30, 40}, geom.Vector3{X: 100}},
	}
	for _, s := range shots {
		b.Record(2, s.Aim, s.Impact, target)
	}

	a := b.NextAim(rand.New(rand.NewSource(1)), 2, target, testBounds)
	assert.InDelta(t, 35, a.Azimuth, 1e-9)
	assert.InDelta(t, 50, a.Altitude, 1e-9)
	assert.InDelta(t, 60, a.Velocity, 1e-9)

	h := b.Histories[2]
	assert.Len(t, h.LastFour, 3)
	assert.Len(t, h.Data, 4)
	for _, s := range h.LastFour {
		assert.NotEqual(t, 350.0, s.Aim.Azimuth)
	}
}

func TestHeuristicClampsProposal(t *testing.T) {
	b := NewBrain(Heuristic)
	target := geom.Vector3{}
	for i, alt := range []float64{80, 85, 88, 10} {
		b.Record(0, Aim{Azimuth: 0, Altitude: alt, Velocity: 95}, geom.Vector3{X: float64(i + 1)}, target)
	}
	a := b.NextAim(rand.New(rand.NewSource(1)), 0, target, testBounds)
	assert.Equal(t, 90.0, a.Altitude)
	assert.Equal(t, 95.0, a.Velocity)
}

func TestRollingWindowKeepsLastFour(t *testing.T) {
	b := NewBrain(Heuristic)
	for i := range 7 {
		b.Record(0, Aim{Velocity: float64(i)}, geom.Vector3{}, geom.Vector3{})
	}
	h := b.Histories[0]
	require.Len(t, h.LastFour, 4)
	assert.Equal(t, 3.0, h.LastFour[0].Aim.Velocity)
	assert.Len(t, h.Data, 7)

	b.Reset()
	assert.Empty(t, b.Histories)
	assert.Equal(t, -1, b.Target)
}

func TestOpponentsHaveSeparateHistories(t *testing.T) {
	b := NewBrain(Heuristic)
	for range 4 {
		b.Record(1, Aim{}, geom.Vector3{}, geom.Vector3{})
	}
	b.Record(2, Aim{}, geom.Vector3{}, geom.Vector3{})
	assert.Len(t, b.Histories[1].LastFour, 4)
	assert.Len(t, b.Histories[2].LastFour, 1)
}

// landing is a toy range table: the shell lands offset from the target by
// how far velocity and altitude are from 50 and 45.
func landing(a Aim) geom.Vector3 {
	return geom.Vector3{X: a.Velocity - 50, Z: a.Altitude - 45}
}

func TestSimplexStrategyClosesIn(t *testing.T) {
	b := NewBrain(Simplex)
	rng := rand.New(rand.NewSource(4))
	target := geom.Vector3{}

	first := math.Inf(1)
	best := math.Inf(1)
	for i := range 200 {
		a := b.NextAim(rng, 3, target, testBounds)
		impact := landing(a)
		b.Record(3, a, impact, target)

		d := impact.FlatDist(target)
		if i == 0 {
			first = d
		}
		best = math.Min(best, d)
	}
	assert.Less(t, best, 1.0)
	assert.LessOrEqual(t, best, first)
}

func TestParseStrategy(t *testing.T) {
	s, err := ParseStrategy("simplex")
	require.NoError(t, err)
	assert.Equal(t, Simplex, s)

	s, err = ParseStrategy("")
	require.NoError(t, err)
	assert.Equal(t, Heuristic, s)

	_, err = ParseStrategy("psychic")
	assert.Error(t, err)
}

func TestSimplexPenalizesClampedTrials(t *testing.T) {
	b := NewBrain(Simplex)
	rng := rand.New(rand.NewSource(1))
	target := geom.Vector3{}

	// the seed sits near the top of both limits, so the altitude and
	// velocity steps of the first simplex land outside them
	h := b.history(2)
	h.Search = simplex.New([]float32{180, 85, 95})

	impact := geom.Vector3{X: 3, Z: 4}
	var aims []Aim
	for range 4 {
		a := b.NextAim(rng, 2, target, testBounds)
		aims = append(aims, a)
		b.Record(2, a, impact, target)
	}

	assert.Equal(t, 85.0, aims[0].Altitude)
	assert.Equal(t, testBounds.MaxAltitude, aims[2].Altitude)
	assert.Equal(t, testBounds.MaxVelocity, aims[3].Velocity)

	// every shot landed 5 away; only the clamped ones score worse
	require.Len(t, h.Search.Points, 4)
	best, ok := h.Search.Best()
	require.True(t, ok)
	assert.InDelta(t, 5, best.Value, 1e-6)
	for _, p := range h.Search.Points {
		if p.Params[1] > 90 || p.Params[2] > 100 {
			assert.Greater(t, p.Value, float32(5))
		} else {
			assert.InDelta(t, 5, p.Value, 1e-6)
		}
	}
	assert.Zero(t, h.Penalty)
}

func TestBoundsOutside(t *testing.T) {
	assert.Zero(t, testBounds.Outside(Aim{Azimuth: 400, Altitude: 45, Velocity: 50}))
	assert.Equal(t, 15.0, testBounds.Outside(Aim{Altitude: 95, Velocity: 0}))
}
