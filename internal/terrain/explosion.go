package terrain

import (
	"math"

	"github.com/Scrimzay/artillery/internal/geom"
)

// Torus proportions of a blast of radius r: the solid reaches r horizontally.
const (
	ringFraction = 0.25
	pipeFraction = 0.75
)

// Crater is the result of one detonation, every layer cropped to the blast
// footprint. Top, Middle and Bottom drive the collapse animation; Surface
// and Colors are the edited terrain ready to be pasted onto the board.
type Crater struct {
	At          geom.Vector3 `msgpack:"at"`
	Radius      float64      `msgpack:"radius"`
	Style       Style        `msgpack:"style"`
	Footprint   Rect         `msgpack:"footprint"`
	Top         *HeightField `msgpack:"top"`
	Middle      *HeightField `msgpack:"middle"`
	Bottom      *HeightField `msgpack:"bottom"`
	TopColor    *HeightField `msgpack:"topColor"`
	BottomColor *HeightField `msgpack:"bottomColor"`
	Surface     *HeightField `msgpack:"surface"`
	Colors      *HeightField `msgpack:"colors"`
}

// torusExtent returns the vertical half-extent of the torus column at
// horizontal distance d from its axis.
func torusExtent(d, ring, pipe float64) (float64, bool) {
	r := pipe*pipe - (d-ring)*(d-ring)
	if r < 0 {
		return 0, false
	}
	return math.Sqrt(r), true
}

// Footprint is the cell rectangle a blast of radius r at (x, z) can touch.
func Footprint(at geom.Vector3, radius float64) Rect {
	return Rect{
		MinX: int(math.Floor(at.X - radius)),
		MinY: int(math.Floor(at.Z - radius)),
		MaxX: int(math.Ceil(at.X + radius)),
		MaxY: int(math.Ceil(at.Z + radius)),
	}
}

// Explode computes the crater a detonation leaves. It does not modify its
// inputs. bedrock may be nil.
func Explode(surface, bedrock, colors *HeightField, at geom.Vector3, radius float64, style Style) Crater {
	rect := Footprint(at, radius).Intersect(surface.Bounds())
	c := Crater{
		At:          at,
		Radius:      radius,
		Style:       style,
		Footprint:   rect,
		Top:         Crop(surface, rect),
		Middle:      Crop(surface, rect),
		Bottom:      Crop(surface, rect),
		TopColor:    Crop(colors, rect),
		BottomColor: Crop(colors, rect),
		Surface:     Crop(surface, rect),
		Colors:      Crop(colors, rect),
	}
	if rect.Empty() || radius <= 0 {
		return c
	}

	ring, pipe := radius*ringFraction, radius*pipeFraction
	for y := rect.MinY; y <= rect.MaxY; y++ {
		for x := rect.MinX; x <= rect.MaxX; x++ {
			cur, ok := surface.Pixel(x, y)
			if !ok {
				continue
			}
			ext, hit := torusExtent(math.Hypot(float64(x)-at.X, float64(y)-at.Z), ring, pipe)
			if !hit {
				continue
			}

			var top, middle, bottom, next float64
			color := MaterialAt(colors, x, y)
			if style == StyleGenerative {
				top, middle, bottom, next = generativeColumn(cur, at.Y-ext, at.Y+ext)
				if next > cur {
					color = MaterialPacked
				}
			} else {
				top, middle, bottom, next = explosiveColumn(cur, at.Y, ext)
				if at.Y-ext < cur && cur <= at.Y+ext {
					color = MaterialScorched
				}
			}

			if floor, ok := bedrock.Pixel(x, y); ok {
				bottom = math.Max(bottom, floor)
				next = math.Max(next, floor)
			}

			c.Top.SetPixel(x, y, top)
			c.Middle.SetPixel(x, y, middle)
			c.Bottom.SetPixel(x, y, bottom)
			c.Surface.SetPixel(x, y, next)
			c.BottomColor.SetPixel(x, y, float64(color))
			c.Colors.SetPixel(x, y, float64(color))
		}
	}
	return c
}

// explosiveColumn removes the torus column from the ground; anything above
// the torus falls into the hole.
func explosiveColumn(cur, centre, ext float64) (top, middle, bottom, next float64) {
	top = cur
	middle = centre + ext
	bottom = math.Min(cur, centre-ext)
	next = math.Min(cur, bottom+math.Max(0, top-middle))
	return top, middle, bottom, next
}

// generativeColumn adds a chunk of earth spanning [lo, hi] to the column.
func generativeColumn(cur, lo, hi float64) (top, middle, bottom, next float64) {
	switch {
	case lo > cur:
		// new chunk is elevated: it drops onto the ground
		next = cur + (hi - lo)
		return hi, lo, cur, next

	case lo < cur && cur < hi:
		// crosses the old surface
		return hi, cur, cur, hi

	case hi < cur:
		// entirely below the old surface: pushes it up
		next = cur + (hi - lo)
		return next, cur, cur, next

	default:
		// surface sits exactly on a face of the chunk
		next = cur * 1.1
		return next, cur, cur, next
	}
}

// Apply pastes the crater's surface and colors onto the board layers.
func (c Crater) Apply(surface, colors *HeightField) {
	surface.Paste(c.Surface)
	colors.Paste(c.Colors)
}
