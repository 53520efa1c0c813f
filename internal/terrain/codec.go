package terrain

import (
	"bytes"
	"errors"
	"fmt"
	"math"

	"github.com/pierrec/lz4/v4"
	"github.com/vmihailenco/msgpack/v5"
)

var ErrCorruptPacked = errors.New("terrain: corrupt packed field")

// levels is the largest value three 8-bit channels can hold.
const levels = 1<<24 - 1

type packedField struct {
	Width  int     `msgpack:"w"`
	Height int     `msgpack:"h"`
	Bounds Rect    `msgpack:"r"`
	Lo     float64 `msgpack:"lo"`
	Hi     float64 `msgpack:"hi"`
	RGB    []byte  `msgpack:"rgb"`
}

// Pack quantizes every cell to 24 bits over the field's own range, stores
// the bits as RGB triples and LZ4-compresses the result. Unpack(Pack(f))
// differs from f by at most (hi-lo)/2^24 per cell.
func (f *HeightField) Pack() ([]byte, error) {
	lo, hi := f.Range()
	span := hi - lo

	rgb := make([]byte, 3*len(f.Cells))
	for i, v := range f.Cells {
		var q uint32
		if span > 0 {
			q = uint32(math.Round((v - lo) / span * levels))
		}
		rgb[3*i] = byte(q >> 16)
		rgb[3*i+1] = byte(q >> 8)
		rgb[3*i+2] = byte(q)
	}

	var buf bytes.Buffer
	zw := lz4.NewWriter(&buf)
	err := msgpack.NewEncoder(zw).Encode(&packedField{
		Width:  f.Width,
		Height: f.Height,
		Bounds: f.Bounds(),
		Lo:     lo,
		Hi:     hi,
		RGB:    rgb,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding packed field: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("compressing packed field: %w", err)
	}
	return buf.Bytes(), nil
}

// Unpack restores a field produced by Pack.
func Unpack(data []byte) (*HeightField, error) {
	var p packedField
	if err := msgpack.NewDecoder(lz4.NewReader(bytes.NewReader(data))).Decode(&p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptPacked, err)
	}

	f := &HeightField{Width: p.Width, Height: p.Height, MinX: p.Bounds.MinX, MinY: p.Bounds.MinY, MaxX: p.Bounds.MaxX, MaxY: p.Bounds.MaxY}
	n := 0
	if !p.Bounds.Empty() {
		n = (p.Bounds.MaxX - p.Bounds.MinX + 1) * (p.Bounds.MaxY - p.Bounds.MinY + 1)
	}
	if len(p.RGB) != 3*n {
		return nil, fmt.Errorf("%w: %d color bytes for %d cells", ErrCorruptPacked, len(p.RGB), n)
	}

	f.Cells = make([]float64, n)
	span := p.Hi - p.Lo
	for i := range f.Cells {
		q := uint32(p.RGB[3*i])<<16 | uint32(p.RGB[3*i+1])<<8 | uint32(p.RGB[3*i+2])
		f.Cells[i] = p.Lo + float64(q)/levels*span
	}
	return f, nil
}

// Compress LZ4-compresses the field as it is. Unlike Pack it loses
// nothing, so it suits material layers and boards that must hash equal.
func (f *HeightField) Compress() ([]byte, error) {
	var buf bytes.Buffer
	zw := lz4.NewWriter(&buf)
	if err := msgpack.NewEncoder(zw).Encode(f); err != nil {
		return nil, fmt.Errorf("encoding field: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("compressing field: %w", err)
	}
	return buf.Bytes(), nil
}

// Decompress restores a field produced by Compress.
func Decompress(data []byte) (*HeightField, error) {
	var f HeightField
	if err := msgpack.NewDecoder(lz4.NewReader(bytes.NewReader(data))).Decode(&f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptPacked, err)
	}
	n := 0
	if !f.Bounds().Empty() {
		n = (f.MaxX - f.MinX + 1) * (f.MaxY - f.MinY + 1)
	}
	if len(f.Cells) != n {
		return nil, fmt.Errorf("%w: %d cells for a %d cell region", ErrCorruptPacked, len(f.Cells), n)
	}
	return &f, nil
}

// Encoding is the form a Blob carries its field in.
type Encoding uint8

const (
	EncodingRaw Encoding = iota
	// EncodingPacked is the lossy 24-bit form from Pack.
	EncodingPacked
	// EncodingCompressed is the lossless form from Compress.
	EncodingCompressed
)

// Blob carries a field raw, packed or compressed. Exactly one is set.
type Blob struct {
	Raw        *HeightField `msgpack:"raw,omitempty"`
	Packed     []byte       `msgpack:"packed,omitempty"`
	Compressed []byte       `msgpack:"compressed,omitempty"`
}

func NewBlob(f *HeightField, enc Encoding) (Blob, error) {
	switch enc {
	case EncodingPacked:
		data, err := f.Pack()
		if err != nil {
			return Blob{}, err
		}
		return Blob{Packed: data}, nil

	case EncodingCompressed:
		data, err := f.Compress()
		if err != nil {
			return Blob{}, err
		}
		return Blob{Compressed: data}, nil

	default:
		return Blob{Raw: f.Clone()}, nil
	}
}

// Field returns an editable copy of the carried field.
func (b Blob) Field() (*HeightField, error) {
	switch {
	case b.Raw != nil:
		return b.Raw.Clone(), nil
	case len(b.Packed) > 0:
		return Unpack(b.Packed)
	case len(b.Compressed) > 0:
		return Decompress(b.Compressed)
	default:
		return nil, fmt.Errorf("%w: empty blob", ErrCorruptPacked)
	}
}
