package terrain

import (
	"errors"
	"math"
	"math/rand"
	"time"
)

var ErrInvalidDimensions = errors.New("terrain: fractal fields must be square with size-1 a power of two")

// DefaultNoise scales the midpoint displacement relative to the value range.
const DefaultNoise = 1.0

type FractalOption func(*fractalConfig)

type fractalConfig struct {
	rng   *rand.Rand
	noise float64
}

// WithRand makes generation reproducible.
func WithRand(rng *rand.Rand) FractalOption {
	return func(c *fractalConfig) {
		c.rng = rng
	}
}

func WithNoise(noise float64) FractalOption {
	return func(c *fractalConfig) {
		c.noise = noise
	}
}

func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// FillFractal fills the whole field by diamond-square midpoint displacement
// and rescales the result to exactly [lo, hi]. The field is left untouched
// and ErrInvalidDimensions returned unless it is a full, square raster whose
// side minus one is a power of two.
func (f *HeightField) FillFractal(lo, hi float64, opts ...FractalOption) error {
	cfg := fractalConfig{noise: DefaultNoise}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.rng == nil {
		cfg.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	if f.Width != f.Height || !isPowerOfTwo(f.Width-1) || !isPowerOfTwo(f.Height-1) {
		return ErrInvalidDimensions
	}
	if f.Bounds() != (Rect{MaxX: f.Width - 1, MaxY: f.Height - 1}) {
		return ErrInvalidDimensions
	}

	f.Fill(0)
	f.seed(cfg.rng, lo, hi)
	f.displace(cfg.rng, cfg.noise, hi-lo)
	f.rescale(lo, hi)
	return nil
}

// seed draws the four corners and the centre and stretches them to span [lo, hi].
func (f *HeightField) seed(rng *rand.Rand, lo, hi float64) {
	n := f.Width - 1
	points := [5][2]int{{0, 0}, {n, 0}, {0, n}, {n, n}, {n / 2, n / 2}}

	var draws [5]float64
	dlo, dhi := math.Inf(1), math.Inf(-1)
	for i := range draws {
		draws[i] = rng.Float64()
		dlo = math.Min(dlo, draws[i])
		dhi = math.Max(dhi, draws[i])
	}

	for i, p := range points {
		v := lo
		if dhi > dlo {
			v = lo + (draws[i]-dlo)/(dhi-dlo)*(hi-lo)
		}
		f.SetPixel(p[0], p[1], v)
	}
}

// computed reports whether a cell already holds a value. A genuine 0 reads
// as "not computed" and gets overwritten.
func (f *HeightField) computed(x, y int) bool {
	v, ok := f.Pixel(x, y)
	return ok && v != 0
}

func (f *HeightField) displace(rng *rand.Rand, noise, span float64) {
	n := f.Width - 1
	offset := func(size int) float64 {
		return (rng.Float64() - 0.5) * noise * float64(size) / float64(f.Width) * span
	}

	for size := n; size > 1; size /= 2 {
		half := size / 2

		// diamond: centre of each square from its four corners
		for y := 0; y < n; y += size {
			for x := 0; x < n; x += size {
				cx, cy := x+half, y+half
				if f.computed(cx, cy) {
					continue
				}
				a, _ := f.Pixel(x, y)
				b, _ := f.Pixel(x+size, y)
				c, _ := f.Pixel(x, y+size)
				d, _ := f.Pixel(x+size, y+size)
				f.SetPixel(cx, cy, (a+b+c+d)/4+offset(size))
			}
		}

		// square: edge midpoints from their axis neighbours
		for y := 0; y <= n; y += half {
			start := half
			if (y/half)%2 == 1 {
				start = 0
			}
			for x := start; x <= n; x += size {
				if f.computed(x, y) {
					continue
				}
				sum, count := 0.0, 0
				for _, nb := range [4][2]int{{x - half, y}, {x + half, y}, {x, y - half}, {x, y + half}} {
					if v, ok := f.Pixel(nb[0], nb[1]); ok {
						sum += v
						count++
					}
				}
				if count == 0 {
					continue
				}
				f.SetPixel(x, y, sum/float64(count)+offset(size))
			}
		}
	}
}

func (f *HeightField) rescale(lo, hi float64) {
	rlo, rhi := f.Range()
	for i, v := range f.Cells {
		out := lo
		if rhi > rlo {
			out = lo + (v-rlo)/(rhi-rlo)*(hi-lo)
		}
		f.Cells[i] = math.Round(out*1e6) / 1e6
	}
}
