// Package simplex is a resumable Nelder–Mead minimizer. The caller owns
// the loop: ask NextPoint for a trial, evaluate it, hand the value back to
// AddResult. All state is exported so a search can be serialized between
// turns and picked up again.
package simplex

import (
	"math"
	"slices"
)

type State uint8

const (
	Initial State = iota
	Reflect
	Expand
	ContractOut
	ContractIn
	Shrink
	Shrink2
)

func (s State) String() string {
	switch s {
	case Initial:
		return "initial"

	case Reflect:
		return "reflect"

	case Expand:
		return "expand"

	case ContractOut:
		return "contract_out"

	case ContractIn:
		return "contract_in"

	case Shrink:
		return "shrink"

	case Shrink2:
		return "shrink2"

	default:
		return "unknown"
	}
}

const (
	alpha = 1.0 // reflection
	beta  = 0.5 // contraction
	gamma = 2.0 // expansion
	delta = 0.5 // shrink
)

// Sample is an evaluated point.
type Sample struct {
	Params []float32 `msgpack:"params" json:"params"`
	Value  float32   `msgpack:"value" json:"value"`
}

type Simplex struct {
	Dim        int       `msgpack:"dim" json:"dim"`
	Seed       []float32 `msgpack:"seed" json:"seed"`
	Points     []Sample  `msgpack:"points" json:"points"` // best first once full
	State      State     `msgpack:"state" json:"state"`
	Reflected  Sample    `msgpack:"reflected" json:"reflected"`
	Trial      []float32 `msgpack:"trial" json:"trial"` // point awaiting its value
	ShrinkNext int       `msgpack:"shrinkNext" json:"shrinkNext"`
	Iterations int       `msgpack:"iterations" json:"iterations"`
}

// New starts a search around seed.
func New(seed []float32) *Simplex {
	return &Simplex{
		Dim:  len(seed),
		Seed: slices.Clone(seed),
	}
}

func (s *Simplex) seedPoint() []float32 {
	return slices.Clone(s.Seed)
}

func (s *Simplex) valid() bool {
	if s.Dim == 0 || len(s.Seed) != s.Dim {
		return false
	}
	for _, p := range s.Points {
		if len(p.Params) != s.Dim {
			return false
		}
	}
	return true
}

func norm(v []float32) float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return float32(math.Sqrt(sum))
}

// initialPoint is the k-th seed: the caller's seed, then one perturbed
// axis per point.
func (s *Simplex) initialPoint(k int) []float32 {
	p := s.seedPoint()
	if k == 0 {
		return p
	}
	axis := k - 1
	if p[axis] == 0 {
		p[axis] = 1
	} else {
		p[axis] += 0.1 * norm(s.Seed)
	}
	return p
}

// centroid of every point but the worst.
func (s *Simplex) centroid() []float32 {
	c := make([]float32, s.Dim)
	for _, p := range s.Points[:s.Dim] {
		for i, x := range p.Params {
			c[i] += x
		}
	}
	for i := range c {
		c[i] /= float32(s.Dim)
	}
	return c
}

// toward returns from + f*(to-from).
func toward(from, to []float32, f float32) []float32 {
	out := make([]float32, len(from))
	for i := range out {
		out[i] = from[i] + f*(to[i]-from[i])
	}
	return out
}

func (s *Simplex) worst() Sample {
	return s.Points[s.Dim]
}

// NextPoint proposes the next point to evaluate. A search that was never
// seeded or whose samples have the wrong dimension gets its seed back.
func (s *Simplex) NextPoint() []float32 {
	if !s.valid() {
		return s.seedPoint()
	}

	var p []float32
	switch s.State {
	case Initial:
		if len(s.Points) > s.Dim {
			return s.seedPoint()
		}
		p = s.initialPoint(len(s.Points))

	case Reflect:
		c := s.centroid()
		p = toward(c, s.worst().Params, -alpha)

	case Expand:
		c := s.centroid()
		p = toward(c, s.Reflected.Params, gamma)

	case ContractOut:
		c := s.centroid()
		p = toward(c, s.Reflected.Params, beta)

	case ContractIn:
		c := s.centroid()
		p = toward(c, s.worst().Params, beta)

	case Shrink, Shrink2:
		p = toward(s.Points[0].Params, s.Points[s.ShrinkNext].Params, delta)

	default:
		return s.seedPoint()
	}

	s.Trial = p
	return slices.Clone(p)
}

// AddResult reports the value of the last proposed point. Results for any
// other point are ignored.
func (s *Simplex) AddResult(params []float32, value float32) {
	if !s.valid() || s.Trial == nil || !slices.Equal(params, s.Trial) {
		return
	}
	sample := Sample{Params: slices.Clone(params), Value: value}
	s.Trial = nil

	n := s.Dim
	switch s.State {
	case Initial:
		s.Points = append(s.Points, sample)
		if len(s.Points) == n+1 {
			s.sort()
			s.State = Reflect
		}

	case Reflect:
		switch {
		case value < s.Points[0].Value:
			s.Reflected = sample
			s.State = Expand

		case value < s.Points[n-1].Value:
			s.accept(sample)

		case value < s.worst().Value:
			s.Reflected = sample
			s.State = ContractOut

		default:
			s.Reflected = sample
			s.State = ContractIn
		}

	case Expand:
		if value < s.Reflected.Value {
			s.accept(sample)
		} else {
			s.accept(s.Reflected)
		}

	case ContractOut:
		if value <= s.Reflected.Value {
			s.accept(sample)
		} else {
			s.startShrink()
		}

	case ContractIn:
		if value < s.worst().Value {
			s.accept(sample)
		} else {
			s.startShrink()
		}

	case Shrink, Shrink2:
		s.Points[s.ShrinkNext] = sample
		s.ShrinkNext--
		if s.ShrinkNext < 1 {
			s.sort()
			s.Iterations++
			s.State = Reflect
		} else {
			s.State = Shrink2
		}
	}
}

// accept replaces the worst point and starts the next iteration.
func (s *Simplex) accept(sample Sample) {
	s.Points[s.Dim] = sample
	s.sort()
	s.Iterations++
	s.State = Reflect
}

func (s *Simplex) startShrink() {
	s.ShrinkNext = s.Dim
	s.State = Shrink
}

func (s *Simplex) sort() {
	slices.SortStableFunc(s.Points, func(a, b Sample) int {
		switch {
		case a.Value < b.Value:
			return -1

		case a.Value > b.Value:
			return 1

		default:
			return 0
		}
	})
}

// Best is the lowest sample seen so far; ok is false before any result.
func (s *Simplex) Best() (Sample, bool) {
	if len(s.Points) == 0 {
		return Sample{}, false
	}
	best := s.Points[0]
	for _, p := range s.Points[1:] {
		if p.Value < best.Value {
			best = p
		}
	}
	return best, true
}

// Spread is the distance between the best and worst parameter vectors.
func (s *Simplex) Spread() float32 {
	if s.State == Initial || !s.valid() || len(s.Points) <= s.Dim {
		return float32(math.Inf(1))
	}
	d := make([]float32, s.Dim)
	for i := range d {
		d[i] = s.Points[0].Params[i] - s.worst().Params[i]
	}
	return norm(d)
}

// Done reports whether the search has run more than maxIterations or has
// collapsed below threshold.
func (s *Simplex) Done(maxIterations int, threshold float32) bool {
	return s.Iterations > maxIterations || s.Spread() < threshold
}
