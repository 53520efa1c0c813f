// Package terrain owns the elevation rasters of the board: fractal
// generation, the packed transfer form, crater editing and fluid drainage.
package terrain

import (
	"math"
)

// Rect is an inclusive cell rectangle.
type Rect struct {
	MinX int `msgpack:"minX" json:"minX"`
	MinY int `msgpack:"minY" json:"minY"`
	MaxX int `msgpack:"maxX" json:"maxX"`
	MaxY int `msgpack:"maxY" json:"maxY"`
}

func (r Rect) Empty() bool {
	return r.MaxX < r.MinX || r.MaxY < r.MinY
}

func (r Rect) Contains(x, y int) bool {
	return x >= r.MinX && x <= r.MaxX && y >= r.MinY && y <= r.MaxY
}

func (r Rect) Intersect(o Rect) Rect {
	return Rect{
		MinX: max(r.MinX, o.MinX),
		MinY: max(r.MinY, o.MinY),
		MaxX: min(r.MaxX, o.MaxX),
		MaxY: min(r.MaxY, o.MaxY),
	}
}

// HeightField is a scalar raster. Only the sub-rectangle
// [MinX,MaxX]x[MinY,MaxY] is stored; Width and Height describe the full
// raster it belongs to so cropped fields keep board coordinates.
type HeightField struct {
	Width  int       `msgpack:"w"`
	Height int       `msgpack:"h"`
	MinX   int       `msgpack:"minX"`
	MinY   int       `msgpack:"minY"`
	MaxX   int       `msgpack:"maxX"`
	MaxY   int       `msgpack:"maxY"`
	Cells  []float64 `msgpack:"cells"`
}

func New(w, h int) *HeightField {
	f := &HeightField{}
	f.SetSize(w, h)
	return f
}

// SetSize allocates a zeroed w x h field addressing the whole raster.
func (f *HeightField) SetSize(w, h int) {
	w, h = max(w, 0), max(h, 0)
	f.Width, f.Height = w, h
	f.MinX, f.MinY, f.MaxX, f.MaxY = 0, 0, w-1, h-1
	f.Cells = make([]float64, w*h)
}

func (f *HeightField) Bounds() Rect {
	return Rect{MinX: f.MinX, MinY: f.MinY, MaxX: f.MaxX, MaxY: f.MaxY}
}

func (f *HeightField) stride() int {
	return f.MaxX - f.MinX + 1
}

func (f *HeightField) index(x, y int) (int, bool) {
	if f == nil || x < f.MinX || x > f.MaxX || y < f.MinY || y > f.MaxY {
		return 0, false
	}
	i := (y-f.MinY)*f.stride() + (x - f.MinX)
	if i < 0 || i >= len(f.Cells) {
		return 0, false
	}
	return i, true
}

// Pixel reads a cell. ok is false outside the addressable rectangle.
func (f *HeightField) Pixel(x, y int) (float64, bool) {
	i, ok := f.index(x, y)
	if !ok {
		return 0, false
	}
	return f.Cells[i], true
}

// SetPixel writes a cell; writes outside the addressable rectangle are ignored.
func (f *HeightField) SetPixel(x, y int, v float64) {
	if i, ok := f.index(x, y); ok {
		f.Cells[i] = v
	}
}

// Elevation samples the nearest cell to world coordinates (x, z).
func (f *HeightField) Elevation(x, z float64) (float64, bool) {
	if math.IsNaN(x) || math.IsNaN(z) {
		return 0, false
	}
	return f.Pixel(int(math.Round(x)), int(math.Round(z)))
}

// Crop copies the part of r that src addresses. The result keeps src's
// full Width and Height.
func Crop(src *HeightField, r Rect) *HeightField {
	r = r.Intersect(src.Bounds())
	out := &HeightField{
		Width:  src.Width,
		Height: src.Height,
		MinX:   r.MinX,
		MinY:   r.MinY,
		MaxX:   r.MaxX,
		MaxY:   r.MaxY,
	}
	if r.Empty() {
		return out
	}
	out.Cells = make([]float64, (r.MaxX-r.MinX+1)*(r.MaxY-r.MinY+1))
	w := r.MaxX - r.MinX + 1
	for y := r.MinY; y <= r.MaxY; y++ {
		si, _ := src.index(r.MinX, y)
		di := (y - r.MinY) * w
		copy(out.Cells[di:di+w], src.Cells[si:si+w])
	}
	return out
}

// Paste writes every cell src addresses into f.
func (f *HeightField) Paste(src *HeightField) {
	r := src.Bounds().Intersect(f.Bounds())
	if r.Empty() {
		return
	}
	w := r.MaxX - r.MinX + 1
	for y := r.MinY; y <= r.MaxY; y++ {
		si, _ := src.index(r.MinX, y)
		di, _ := f.index(r.MinX, y)
		copy(f.Cells[di:di+w], src.Cells[si:si+w])
	}
}

func (f *HeightField) Clone() *HeightField {
	if f == nil {
		return nil
	}
	out := *f
	out.Cells = append([]float64(nil), f.Cells...)
	return &out
}

func (f *HeightField) Fill(v float64) {
	for i := range f.Cells {
		f.Cells[i] = v
	}
}

// Range returns the realized minimum and maximum; both are 0 for an empty field.
func (f *HeightField) Range() (lo, hi float64) {
	if len(f.Cells) == 0 {
		return 0, 0
	}
	lo, hi = f.Cells[0], f.Cells[0]
	for _, v := range f.Cells[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return lo, hi
}
