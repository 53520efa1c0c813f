// Package ai aims computer players. A Brain keeps what each earlier shot
// at an opponent did and proposes the next aim from it.
package ai

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/Scrimzay/artillery/internal/ballistics"
	"github.com/Scrimzay/artillery/internal/geom"
	"github.com/Scrimzay/artillery/internal/simplex"
)

type Strategy string

const (
	// Heuristic reflects the worst of the last four shots through the
	// average of the other three.
	Heuristic Strategy = "heuristic"
	// Simplex runs a Nelder–Mead search per opponent.
	Simplex Strategy = "simplex"
)

func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case Heuristic, "":
		return Heuristic, nil

	case Simplex:
		return Simplex, nil
	}
	return Heuristic, fmt.Errorf("unknown ai strategy %q", s)
}

const (
	window     = 4
	reflection = 1.5

	searchIterations = 40
	searchThreshold  = 0.05
	// boundPenalty is added to a trial's miss distance per unit it lay
	// outside the altitude or velocity limits.
	boundPenalty = 10
)

type Aim struct {
	Azimuth  float64 `msgpack:"azimuth" json:"azimuth"`
	Altitude float64 `msgpack:"altitude" json:"altitude"`
	Velocity float64 `msgpack:"velocity" json:"velocity"`
}

// Bounds limits altitude and velocity; azimuth always wraps into [0,360).
type Bounds struct {
	MinAltitude float64 `yaml:"min_altitude" msgpack:"minAltitude"`
	MaxAltitude float64 `yaml:"max_altitude" msgpack:"maxAltitude"`
	MinVelocity float64 `yaml:"min_velocity" msgpack:"minVelocity"`
	MaxVelocity float64 `yaml:"max_velocity" msgpack:"maxVelocity"`
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func (b Bounds) Clamp(a Aim) Aim {
	return Aim{
		Azimuth:  ballistics.WrapDegrees(a.Azimuth),
		Altitude: clamp(a.Altitude, b.MinAltitude, b.MaxAltitude),
		Velocity: clamp(a.Velocity, b.MinVelocity, b.MaxVelocity),
	}
}

// Outside is how far a lies beyond the altitude and velocity limits.
func (b Bounds) Outside(a Aim) float64 {
	c := b.Clamp(a)
	return math.Abs(a.Altitude-c.Altitude) + math.Abs(a.Velocity-c.Velocity)
}

func (b Bounds) Random(rng *rand.Rand) Aim {
	return Aim{
		Azimuth:  rng.Float64() * 360,
		Altitude: b.MinAltitude + rng.Float64()*(b.MaxAltitude-b.MinAltitude),
		Velocity: b.MinVelocity + rng.Float64()*(b.MaxVelocity-b.MinVelocity),
	}
}

// Sample is one shot and where it landed.
type Sample struct {
	Aim    Aim          `msgpack:"aim"`
	Impact geom.Vector3 `msgpack:"impact"`
}

// History is everything one brain has learned about one opponent.
type History struct {
	Data     []Sample         `msgpack:"data"`
	LastFour []Sample         `msgpack:"lastFour"`
	Search   *simplex.Simplex `msgpack:"search,omitempty"`
	Pending  []float32        `msgpack:"pending,omitempty"` // simplex trial behind the last aim
	Penalty  float32          `msgpack:"penalty,omitempty"` // added to Pending's result when the trial was clamped
}

type Brain struct {
	Strategy  Strategy         `msgpack:"strategy"`
	Histories map[int]*History `msgpack:"histories"`
	Target    int              `msgpack:"target"`
}

func NewBrain(strategy Strategy) *Brain {
	b := &Brain{Strategy: strategy}
	b.Reset()
	return b
}

// Reset forgets every opponent. Called whenever tanks move to new positions.
func (b *Brain) Reset() {
	b.Histories = make(map[int]*History)
	b.Target = -1
}

func (b *Brain) history(target int) *History {
	if b.Histories == nil {
		b.Histories = make(map[int]*History)
	}
	h, ok := b.Histories[target]
	if !ok {
		h = &History{}
		b.Histories[target] = h
	}
	return h
}

// Record stores the outcome of a shot fired at target.
func (b *Brain) Record(target int, aim Aim, impact, targetPos geom.Vector3) {
	h := b.history(target)
	s := Sample{Aim: aim, Impact: impact}
	h.Data = append(h.Data, s)
	h.LastFour = append(h.LastFour, s)
	if len(h.LastFour) > window {
		h.LastFour = h.LastFour[len(h.LastFour)-window:]
	}

	if h.Search != nil && h.Pending != nil {
		h.Search.AddResult(h.Pending, float32(impact.FlatDist(targetPos))+h.Penalty)
		h.Pending, h.Penalty = nil, 0
	}
}

// NextAim proposes the aim for the next shot at target.
func (b *Brain) NextAim(rng *rand.Rand, target int, targetPos geom.Vector3, bounds Bounds) Aim {
	b.Target = target
	h := b.history(target)

	if b.Strategy == Simplex {
		return h.nextSearchAim(rng, targetPos, bounds)
	}
	if len(h.LastFour) < window {
		return bounds.Random(rng)
	}
	return bounds.Clamp(h.reflectFurthest(targetPos))
}

// reflectFurthest drops the shot that landed furthest from the target and
// moves past it through the average of the rest.
func (h *History) reflectFurthest(targetPos geom.Vector3) Aim {
	far := 0
	for i, s := range h.LastFour {
		if s.Impact.Dist(targetPos) > h.LastFour[far].Impact.Dist(targetPos) {
			far = i
		}
	}
	furthest := h.LastFour[far]
	rest := make([]Sample, 0, len(h.LastFour)-1)
	rest = append(rest, h.LastFour[:far]...)
	rest = append(rest, h.LastFour[far+1:]...)
	h.LastFour = rest

	// azimuths average as offsets from the furthest so 359 and 1 meet at 0
	var dAz, alt, vel float64
	for _, s := range rest {
		dAz += wrapOffset(s.Aim.Azimuth - furthest.Aim.Azimuth)
		alt += s.Aim.Altitude
		vel += s.Aim.Velocity
	}
	n := float64(len(rest))
	dAz, alt, vel = dAz/n, alt/n, vel/n

	return Aim{
		Azimuth:  furthest.Aim.Azimuth + reflection*dAz,
		Altitude: furthest.Aim.Altitude + reflection*(alt-furthest.Aim.Altitude),
		Velocity: furthest.Aim.Velocity + reflection*(vel-furthest.Aim.Velocity),
	}
}

// wrapOffset maps an angle difference into [-180,180).
func wrapOffset(d float64) float64 {
	return ballistics.WrapDegrees(d+180) - 180
}

func (h *History) nextSearchAim(rng *rand.Rand, targetPos geom.Vector3, bounds Bounds) Aim {
	if h.Search == nil || h.Search.Done(searchIterations, searchThreshold) {
		seed := bounds.Random(rng)
		if best, ok := h.closest(targetPos); ok {
			seed = best.Aim
		}
		h.Search = simplex.New([]float32{float32(seed.Azimuth), float32(seed.Altitude), float32(seed.Velocity)})
	}
	p := h.Search.NextPoint()
	trial := Aim{Azimuth: float64(p[0]), Altitude: float64(p[1]), Velocity: float64(p[2])}
	// a clamped trial lands where the boundary shot does, so the search
	// is told it did worse the further out it reached
	h.Pending = p
	h.Penalty = float32(bounds.Outside(trial) * boundPenalty)
	return bounds.Clamp(trial)
}

func (h *History) closest(targetPos geom.Vector3) (Sample, bool) {
	if len(h.Data) == 0 {
		return Sample{}, false
	}
	best := h.Data[0]
	for _, s := range h.Data[1:] {
		if s.Impact.FlatDist(targetPos) < best.Impact.FlatDist(targetPos) {
			best = s
		}
	}
	return best, true
}
