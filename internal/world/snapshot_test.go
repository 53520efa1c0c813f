package world

import (
	"testing"

	"github.com/Scrimzay/artillery/internal/geom"
	"github.com/Scrimzay/artillery/internal/terrain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func restored(t *testing.T, s *Snapshot) *Engine {
	t.Helper()
	data, err := s.Encode()
	require.NoError(t, err)
	back, err := DecodeSnapshot(data)
	require.NoError(t, err)

	e, err := New(testConfig(), Dependencies{Logger: zerolog.Nop()})
	require.NoError(t, err)
	require.NoError(t, e.Restore(back))
	return e
}

func digest(t *testing.T, e *Engine) string {
	t.Helper()
	d, err := e.Digest()
	require.NoError(t, err)
	return d
}

func TestRestoredEnginesStayInStep(t *testing.T) {
	a := newTestEngine(t, testConfig())
	s, err := a.Snapshot(terrain.EncodingRaw)
	require.NoError(t, err)
	b := restored(t, s)
	require.Equal(t, digest(t, a), digest(t, b))

	for _, e := range []*Engine{a, b} {
		require.NoError(t, e.SetWeapon(0, 1, 0))
		require.NoError(t, e.SetAzimuth(0, 135))
		require.NoError(t, e.SetAltitude(0, 40))
		require.NoError(t, e.SetVelocity(0, 25))
	}
	ra, err := a.FireCurrent()
	require.NoError(t, err)
	rb, err := b.FireCurrent()
	require.NoError(t, err)

	assert.Equal(t, ra.Damage, rb.Damage)
	assert.Equal(t, ra.Outcome, rb.Outcome)
	assert.Equal(t, digest(t, a), digest(t, b))
}

func TestCompressedSnapshot(t *testing.T) {
	a := newTestEngine(t, testConfig())
	s, err := a.Snapshot(terrain.EncodingPacked)
	require.NoError(t, err)
	assert.Nil(t, s.Surface.Raw)
	assert.NotEmpty(t, s.Surface.Packed)
	assert.Nil(t, s.Colors.Raw)
	assert.NotEmpty(t, s.Colors.Compressed, "materials are never packed")

	b := restored(t, s)
	assert.Equal(t, a.board.Colors.Cells, b.board.Colors.Cells)
	assert.Equal(t, a.Players(), b.Players())
	assert.InDeltaSlice(t, a.board.Surface.Cells, b.board.Surface.Cells, 150*1e-6)
	assert.Equal(t, a.Status(), b.Status())
}

func TestRestoreRejectsBadSnapshots(t *testing.T) {
	e := newTestEngine(t, testConfig())
	before := digest(t, e)

	s, err := e.Snapshot(terrain.EncodingRaw)
	require.NoError(t, err)
	s.Size = 100
	assert.ErrorIs(t, e.Restore(s), ErrInvalidBoard)

	s, err = e.Snapshot(terrain.EncodingRaw)
	require.NoError(t, err)
	s.CurrentPlayer = 7
	assert.ErrorIs(t, e.Restore(s), ErrUnknownPlayer)

	s, err = e.Snapshot(terrain.EncodingRaw)
	require.NoError(t, err)
	s.Surface = terrain.Blob{}
	assert.ErrorIs(t, e.Restore(s), terrain.ErrCorruptPacked)

	// a nil seat decoded off the wire must not panic mid-restore
	s, err = e.Snapshot(terrain.EncodingRaw)
	require.NoError(t, err)
	s.Players[1] = nil
	data, err := s.Encode()
	require.NoError(t, err)
	s, err = DecodeSnapshot(data)
	require.NoError(t, err)
	require.Nil(t, s.Players[1])
	assert.ErrorIs(t, e.Restore(s), ErrUnknownPlayer)

	assert.Equal(t, before, digest(t, e))

	_, err = DecodeSnapshot([]byte("nope"))
	assert.Error(t, err)
}

func TestDigestIgnoresBrains(t *testing.T) {
	e := newTestEngine(t, testConfig(), PlayerSpec{Name: "human"}, PlayerSpec{Name: "bot", AI: true})
	before := digest(t, e)
	e.board.Players[1].AI.Target = 0
	assert.Equal(t, before, digest(t, e))

	e.board.Players[1].Score++
	assert.NotEqual(t, before, digest(t, e))
}

// A strategic nuke dropped on a tank on a full-size board.
func TestStrategicNukeOnFullBoard(t *testing.T) {
	if testing.Short() {
		t.Skip("full-size board")
	}
	cfg := DefaultConfig()
	cfg.Seed = 7
	e := newTestEngine(t, cfg, PlayerSpec{Name: "target"}, PlayerSpec{Name: "gunner"})
	e.board.CurrentPlayer = 1
	require.NoError(t, e.SetWeapon(1, 1, 1))

	lo, hi := e.board.Surface.Range()
	assert.GreaterOrEqual(t, lo, 50.0)
	assert.LessOrEqual(t, hi, 200.0)

	tank := e.board.Players[0].Tank
	res, err := e.Fire(tank.Position().Add(geom.Vector3{Y: 1}), geom.Vector3{Y: -1})
	require.NoError(t, err)
	require.Len(t, res.Detonations, 1)
	assert.Equal(t, 150.0, res.ExplosionRadius)

	x, z := int(tank.Lon), int(tank.Lat)
	after, ok := res.Final.Pixel(x, z)
	require.True(t, ok)
	assert.LessOrEqual(t, after, tank.Elev)
	assert.Equal(t, terrain.MaterialScorched, terrain.MaterialAt(res.Detonations[0].Colors, x, z))
	assert.Equal(t, 100, res.Damage[0])

	// the gunner paid past its credit
	assert.True(t, res.NewRound)
	require.NotNil(t, res.RoundWinner)
	assert.Equal(t, "gunner", *res.RoundWinner)
	assert.Zero(t, e.board.Players[1].Credit)
}
