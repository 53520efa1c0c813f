package terrain

import (
	"math"

	"github.com/Scrimzay/artillery/internal/geom"
)

// FlowParams tunes fluid drainage. Volumes are in elevation units summed
// over cells.
type FlowParams struct {
	DrainRate     float64 `mapstructure:"drainRate" msgpack:"drainRate" json:"drainRate"`             // left behind per pipe cell
	FillRate      float64 `mapstructure:"fillRate" msgpack:"fillRate" json:"fillRate"`                // poured into a puddle per step
	MaxFillTime   float64 `mapstructure:"maxFillTime" msgpack:"maxFillTime" json:"maxFillTime"`       // steps any single pour may take
	MaxPathLength int     `mapstructure:"maxPathLength" msgpack:"maxPathLength" json:"maxPathLength"` // cells
}

var DefaultFlowParams = FlowParams{
	DrainRate:     2,
	FillRate:      40,
	MaxFillTime:   60,
	MaxPathLength: 512,
}

type Cell struct {
	X int `msgpack:"x"`
	Y int `msgpack:"y"`
}

var neighbours = [8][2]int{{-1, -1}, {0, -1}, {1, -1}, {-1, 0}, {1, 0}, {-1, 1}, {0, 1}, {1, 1}}

// SteepestDescentPath follows the lowest unvisited neighbour from (x, y)
// until it reaches the raster edge, runs out of unvisited neighbours or
// has maxLen cells. The walk climbs when every neighbour is higher.
func SteepestDescentPath(surface *HeightField, x, y, maxLen int) []Cell {
	if _, ok := surface.Pixel(x, y); !ok || maxLen <= 0 {
		return nil
	}

	path := []Cell{{x, y}}
	visited := map[Cell]bool{{x, y}: true}
	for len(path) < maxLen {
		cur := path[len(path)-1]
		if cur.X <= surface.MinX || cur.X >= surface.MaxX || cur.Y <= surface.MinY || cur.Y >= surface.MaxY {
			break
		}

		best, bestH, found := Cell{}, math.Inf(1), false
		for _, d := range neighbours {
			next := Cell{cur.X + d[0], cur.Y + d[1]}
			h, ok := surface.Pixel(next.X, next.Y)
			if !ok || visited[next] {
				continue
			}
			if h < bestH {
				best, bestH, found = next, h, true
			}
		}
		if !found {
			break
		}
		visited[best] = true
		path = append(path, best)
	}
	return path
}

// Puddle is a basin along a drainage profile. Indices refer to the profile.
type Puddle struct {
	Start    int     `msgpack:"start"`  // first index of the basin
	Bottom   int     `msgpack:"bottom"` // lowest point
	End      int     `msgpack:"end"`    // first downstream index at or above Rim
	Rim      float64 `msgpack:"rim"`
	Terminal bool    `msgpack:"terminal"` // End is the last point of the profile
}

// FindPuddles partitions a profile into basins. Everything between them is
// drain pipe.
func FindPuddles(profile []float64) []Puddle {
	var puddles []Puddle
	n := len(profile)
	for i := 0; i < n-1; {
		// a basin bottoms out where the profile stops descending
		if profile[i+1] <= profile[i] {
			i++
			continue
		}
		bottom := i

		crest := bottom + 1
		for crest+1 < n && profile[crest+1] >= profile[crest] {
			crest++
		}
		rim := profile[crest]

		start := bottom
		for start > 0 && profile[start-1] < rim {
			start--
		}
		if start == 0 && bottom > 0 {
			// upstream never rises to the rim: the level can only reach
			// the highest point behind the basin before flowing back
			upstream := profile[0]
			for _, h := range profile[:bottom] {
				upstream = math.Max(upstream, h)
			}
			rim = math.Max(math.Min(rim, upstream), profile[bottom])
		}

		puddles = append(puddles, Puddle{
			Start:    start,
			Bottom:   bottom,
			End:      crest,
			Rim:      rim,
			Terminal: crest == n-1,
		})
		i = crest
	}
	return puddles
}

// Flow is the outcome of draining a volume of fluid along a path.
type Flow struct {
	Path      []geom.Vector3   `msgpack:"path"`
	Remaining []float64        `msgpack:"remaining"` // volume left after each path point
	Puddles   []Puddle         `msgpack:"puddles"`
	Levels    []float64        `msgpack:"levels"` // fill level per puddle, NaN when never reached
	FillTime  float64          `msgpack:"fillTime"`
	Wet       map[Cell]float64 `msgpack:"-"`
}

// Drain pours volume down path. Pipes keep DrainRate of it per cell;
// puddles hold what it takes to raise them toward their rims.
func Drain(surface *HeightField, path []Cell, volume float64, params FlowParams) Flow {
	n := len(path)
	profile := make([]float64, n)
	for k, c := range path {
		profile[k], _ = surface.Pixel(c.X, c.Y)
	}

	flow := Flow{
		Path:      make([]geom.Vector3, n),
		Remaining: make([]float64, n),
		Puddles:   FindPuddles(profile),
		Wet:       make(map[Cell]float64),
	}
	flow.Levels = make([]float64, len(flow.Puddles))
	for i := range flow.Levels {
		flow.Levels[i] = math.NaN()
	}
	for k, c := range path {
		flow.Path[k] = geom.Vector3{X: float64(c.X), Y: profile[k], Z: float64(c.Y)}
	}

	rate := params.FillRate
	if params.MaxFillTime > 0 {
		rate = math.Max(rate, volume/params.MaxFillTime)
	}

	// water is the profile with fluid already deposited on it
	water := append([]float64(nil), profile...)
	filled := make(map[int]float64)
	vol := math.Max(volume, 0)

	next := 0
	for k := 0; k < n; k++ {
		for next < len(flow.Puddles) && flow.Puddles[next].Bottom == k {
			p := flow.Puddles[next]
			if vol > 0 {
				level, full := fillLevel(water[p.Start:p.End], vol, p.Rim)
				if prev, ok := filled[p.Start]; ok && prev >= level {
					level = math.Min(prev, p.Rim)
				} else {
					used := vol
					if full {
						used = math.Min(vol, basinVolume(water[p.Start:p.End], level))
					}
					vol -= used
					if rate > 0 {
						flow.FillTime += used / rate
					}
					filled[p.Start] = level
					for j := p.Start; j < p.End; j++ {
						if water[j] < level {
							water[j] = level
							flow.Wet[path[j]] = level
						}
					}
				}
				flow.Levels[next] = level
			}
			next++
		}

		if vol > 0 {
			if _, wet := flow.Wet[path[k]]; !wet {
				flow.Wet[path[k]] = water[k]
				vol = math.Max(0, vol-params.DrainRate)
			}
		}
		flow.Remaining[k] = vol
	}
	return flow
}

func basinVolume(water []float64, level float64) float64 {
	total := 0.0
	for _, w := range water {
		total += math.Max(0, level-w)
	}
	return total
}

// fillLevel finds the level at which the basin holds vol. full reports
// that vol reaches the rim and the level was capped there.
func fillLevel(water []float64, vol, rim float64) (level float64, full bool) {
	if len(water) == 0 {
		return rim, true
	}
	lo := water[0]
	for _, w := range water {
		lo = math.Min(lo, w)
	}
	if lo >= rim || basinVolume(water, rim) <= vol {
		return rim, true
	}

	hi := rim
	for range 64 {
		mid := (lo + hi) / 2
		if basinVolume(water, mid) > vol {
			hi = mid
		} else {
			lo = mid
		}
	}
	return lo, false
}

// Apply deposits the fluid. Mud raises wetted cells to their fluid level;
// napalm only stains them.
func (fl Flow) Apply(surface, colors *HeightField, style Style) {
	material := float64(style.FluidMaterial())
	for c, level := range fl.Wet {
		if style == StyleMud {
			if cur, ok := surface.Pixel(c.X, c.Y); ok && level > cur {
				surface.SetPixel(c.X, c.Y, level)
			}
		}
		colors.SetPixel(c.X, c.Y, material)
	}
}

// Near reports whether any wetted cell lies within radius of (x, z).
func (fl Flow) Near(x, z, radius float64) bool {
	for c := range fl.Wet {
		if math.Hypot(float64(c.X)-x, float64(c.Y)-z) <= radius {
			return true
		}
	}
	return false
}
