// Package geom holds the small vector type shared by the physics and
// terrain packages. Y is up; board cell (x, y) maps to world (X, Z).
package geom

import "math"

type Vector3 struct {
	X float64 `msgpack:"x" json:"x"`
	Y float64 `msgpack:"y" json:"y"`
	Z float64 `msgpack:"z" json:"z"`
}

func (v Vector3) Add(o Vector3) Vector3 {
	return Vector3{v.X + o.X, v.Y + o.Y, v.Z + o.Z}
}

func (v Vector3) Sub(o Vector3) Vector3 {
	return Vector3{v.X - o.X, v.Y - o.Y, v.Z - o.Z}
}

func (v Vector3) Scale(s float64) Vector3 {
	return Vector3{v.X * s, v.Y * s, v.Z * s}
}

func (v Vector3) Len() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Dist is the euclidean distance between two points.
func (v Vector3) Dist(o Vector3) float64 {
	return v.Sub(o).Len()
}

// FlatDist ignores elevation.
func (v Vector3) FlatDist(o Vector3) float64 {
	return math.Hypot(v.X-o.X, v.Z-o.Z)
}
