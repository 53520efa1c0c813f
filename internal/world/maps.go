package world

import (
	"math"
	"math/rand"

	"github.com/Scrimzay/artillery/internal/ballistics"
	"github.com/Scrimzay/artillery/internal/geom"
	"github.com/Scrimzay/artillery/internal/terrain"
)

var CommanderNamePool = []string{
	"Iron Duke",
	"Red Baron",
	"Storm Battery",
	"Earthshaker",
	"Shadow Gunner",
	"Long Tom",
	"Desert Fox",
	"Thunderclap",
	"Mountain Mortar",
	"Big Bertha",
	"Sky Hammer",
	"Crater Maker",
}

// RandomNames draws count distinct names, numbering repeats once the pool
// runs out.
func RandomNames(rng *rand.Rand, count int) []string {
	pool := make([]string, len(CommanderNamePool))
	copy(pool, CommanderNamePool)
	rng.Shuffle(len(pool), func(i, j int) {
		pool[i], pool[j] = pool[j], pool[i]
	})

	names := make([]string, count)
	for i := range names {
		names[i] = pool[i%len(pool)]
		if i >= len(pool) {
			names[i] += " " + string(rune('A'+i/len(pool)-1))
		}
	}
	return names
}

// roundRand is the source every peer uses to lay out a round.
func (e *Engine) roundRand() *rand.Rand {
	return rand.New(rand.NewSource(e.board.Seed + int64(e.board.CurrentRound)*7919))
}

// setupRound builds fresh terrain, places the tanks and resets per-round
// player state.
func (e *Engine) setupRound() {
	size := e.board.Size
	rng := e.roundRand()

	surface := terrain.New(size, size)
	if err := surface.FillFractal(e.cfg.MinElevation, e.cfg.MaxElevation, terrain.WithRand(rng)); err != nil {
		// New already checked the size
		e.log.Error().Err(err).Msg("fractal generation failed")
		surface.Fill(e.cfg.MinElevation)
	}
	bedrock := terrain.New(size, size)
	bedrock.Fill(e.cfg.Bedrock)

	e.board.Surface = surface
	e.board.Bedrock = bedrock
	e.board.Colors = terrain.New(size, size)

	for _, p := range e.placeTanks(rng) {
		e.flattenPad(p)
	}

	first := e.board.CurrentRound == 0
	for _, p := range e.board.Players {
		p.HitPoints = e.cfg.HitPoints
		p.PrevTrajectory = nil
		if first || !e.cfg.CarryCredit {
			p.Credit = e.cfg.StartingCredit
		}
		if first || !e.cfg.CarryScore {
			p.Score = 0
		}
		if p.AI != nil {
			p.AI.Reset()
		}
		if p.Computer != nil {
			p.Computer.Reset()
		}
		if !e.weapons.Valid(p.WeaponID, p.WeaponSizeID) {
			p.WeaponID, p.WeaponSizeID = e.weapons.Weapons[0].ID, 0
		}
	}

	// every round starts at the first seat so a full rotation is one volley
	e.board.CurrentPlayer = 0
	e.board.Turn = 0
	e.board.Phase = RoundInProgress
	e.log.Info().Int("round", e.board.CurrentRound).Int("totalRounds", e.board.TotalRounds).Msg("round started")
}

// placeTanks drops every tank at a random spot inside the margin, keeping
// TankSpacing between tanks when the board has room for it.
func (e *Engine) placeTanks(rng *rand.Rand) []*Player {
	size := e.board.Size
	margin := min(e.cfg.TankMargin, (size-1)/4)
	span := max(size-2*margin, 1)
	centre := geom.Vector3{X: float64(size-1) / 2, Z: float64(size-1) / 2}

	var placed []geom.Vector3
	for _, p := range e.board.Players {
		var spot geom.Vector3
		for try := 0; try < 200; try++ {
			spot = geom.Vector3{
				X: float64(margin + rng.Intn(span)),
				Z: float64(margin + rng.Intn(span)),
			}
			if spaced(spot, placed, e.cfg.TankSpacing) {
				break
			}
		}
		placed = append(placed, spot)

		p.Tank.Lon, p.Tank.Lat = spot.X, spot.Z
		p.Tank.Azimuth = ballistics.AzimuthTo(spot, centre)
		p.Tank.Altitude = 45
		w, _ := e.weapons.Lookup(p.WeaponID, p.WeaponSizeID)
		p.Tank.Velocity = (w.Bounds.MinVelocity + w.Bounds.MaxVelocity) / 2
	}
	return e.board.Players
}

func spaced(spot geom.Vector3, placed []geom.Vector3, spacing float64) bool {
	for _, o := range placed {
		if spot.FlatDist(o) < spacing {
			return false
		}
	}
	return true
}

// flattenPad levels a disc under the tank to the height at its centre.
func (e *Engine) flattenPad(p *Player) {
	cx, cz := int(p.Tank.Lon), int(p.Tank.Lat)
	h, ok := e.board.Surface.Pixel(cx, cz)
	if !ok {
		return
	}
	r := e.cfg.PadRadius
	for y := cz - r; y <= cz+r; y++ {
		for x := cx - r; x <= cx+r; x++ {
			if math.Hypot(float64(x-cx), float64(y-cz)) <= float64(r) {
				e.board.Surface.SetPixel(x, y, h)
			}
		}
	}
	p.Tank.Elev = h
}

// settleTanks moves every tank onto the ground now under it.
func (e *Engine) settleTanks() {
	for _, p := range e.board.Players {
		if h, ok := e.board.Surface.Elevation(p.Tank.Lon, p.Tank.Lat); ok {
			p.Tank.Elev = h
		}
	}
}
