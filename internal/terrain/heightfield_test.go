package terrain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gradientField(w, h int) *HeightField {
	f := New(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			f.SetPixel(x, y, float64(x+10*y))
		}
	}
	return f
}

func TestPixelOutOfBounds(t *testing.T) {
	f := New(4, 3)

	tests := []struct {
		name string
		x, y int
		ok   bool
	}{
		{"origin", 0, 0, true},
		{"far corner", 3, 2, true},
		{"left of raster", -1, 0, false},
		{"right of raster", 4, 0, false},
		{"below raster", 0, 3, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := f.Pixel(tt.x, tt.y)
			assert.Equal(t, tt.ok, ok)
		})
	}

	f.SetPixel(10, 10, 5)
	for _, v := range f.Cells {
		assert.Zero(t, v)
	}

	var nilField *HeightField
	_, ok := nilField.Pixel(0, 0)
	assert.False(t, ok)
}

func TestCropKeepsBoardCoordinates(t *testing.T) {
	f := gradientField(9, 9)

	c := Crop(f, Rect{MinX: 2, MinY: 3, MaxX: 5, MaxY: 6})
	assert.Equal(t, 9, c.Width)
	assert.Equal(t, 9, c.Height)
	assert.Len(t, c.Cells, 16)

	v, ok := c.Pixel(2, 3)
	require.True(t, ok)
	assert.Equal(t, 32.0, v)

	_, ok = c.Pixel(1, 3)
	assert.False(t, ok)
	_, ok = c.Pixel(6, 6)
	assert.False(t, ok)
}

func TestCropClipsToSource(t *testing.T) {
	f := gradientField(5, 5)
	c := Crop(f, Rect{MinX: -3, MinY: 3, MaxX: 2, MaxY: 9})
	assert.Equal(t, Rect{MinX: 0, MinY: 3, MaxX: 2, MaxY: 4}, c.Bounds())

	empty := Crop(f, Rect{MinX: 7, MinY: 7, MaxX: 9, MaxY: 9})
	assert.True(t, empty.Bounds().Empty())
	assert.Empty(t, empty.Cells)
}

func TestPasteWritesOnlyCroppedCells(t *testing.T) {
	f := gradientField(9, 9)
	orig := f.Clone()

	c := Crop(f, Rect{MinX: 1, MinY: 1, MaxX: 3, MaxY: 2})
	c.Fill(-1)
	f.Paste(c)

	for y := 0; y < 9; y++ {
		for x := 0; x < 9; x++ {
			got, _ := f.Pixel(x, y)
			want, _ := orig.Pixel(x, y)
			if c.Bounds().Contains(x, y) {
				want = -1
			}
			assert.Equal(t, want, got, "cell %d,%d", x, y)
		}
	}
}

func TestCropPasteIdentity(t *testing.T) {
	f := gradientField(17, 17)
	before := f.Clone()
	f.Paste(Crop(f, Rect{MinX: 4, MinY: 4, MaxX: 12, MaxY: 12}))
	assert.Equal(t, before, f)
}

func TestElevationRoundsToNearestCell(t *testing.T) {
	f := gradientField(5, 5)
	v, ok := f.Elevation(1.6, 2.4)
	require.True(t, ok)
	assert.Equal(t, 22.0, v)

	_, ok = f.Elevation(-0.6, 0)
	assert.False(t, ok)
}

func TestRange(t *testing.T) {
	lo, hi := gradientField(3, 3).Range()
	assert.Equal(t, 0.0, lo)
	assert.Equal(t, 22.0, hi)

	lo, hi = (&HeightField{}).Range()
	assert.Zero(t, lo)
	assert.Zero(t, hi)
}
