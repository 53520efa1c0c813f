// Package ballistics computes projectile flight over the board. Every
// function is a pure function of its arguments.
package ballistics

import (
	"iter"
	"math"

	"github.com/Scrimzay/artillery/internal/geom"
)

const (
	Gravity = 9.8

	// MaxSteps bounds a trajectory that never comes down.
	MaxSteps = 100_000
)

// Ground answers terrain height under a world point; ok is false off the board.
type Ground interface {
	Elevation(x, z float64) (float64, bool)
}

// PositionAt is the analytic position t seconds after launch.
func PositionAt(pos, vel geom.Vector3, t float64) geom.Vector3 {
	return geom.Vector3{
		X: pos.X + vel.X*t,
		Y: pos.Y + vel.Y*t - 0.5*Gravity*t*t,
		Z: pos.Z + vel.Z*t,
	}
}

// Trajectory yields the flight sampled every dt seconds, starting at pos.
// It ends with the first sample at or below the ground or off the board.
func Trajectory(ground Ground, pos, vel geom.Vector3, dt float64) iter.Seq[geom.Vector3] {
	return TrajectoryFor(ground, pos, vel, dt, 0)
}

// TrajectoryFor is Trajectory cut off after tMax seconds; tMax <= 0 means
// no limit beyond MaxSteps.
func TrajectoryFor(ground Ground, pos, vel geom.Vector3, dt, tMax float64) iter.Seq[geom.Vector3] {
	return func(yield func(geom.Vector3) bool) {
		if dt <= 0 {
			return
		}
		for i := 0; i < MaxSteps; i++ {
			t := float64(i) * dt
			if tMax > 0 && t > tMax {
				return
			}
			p := PositionAt(pos, vel, t)
			if !yield(p) {
				return
			}
			if i == 0 {
				continue
			}
			h, ok := ground.Elevation(p.X, p.Z)
			if !ok || p.Y <= h {
				return
			}
		}
	}
}

// Impact refines the last segment of a finished trajectory to the point
// where it meets the ground. It returns the last sample unchanged when the
// shell left the board.
func Impact(ground Ground, path []geom.Vector3) geom.Vector3 {
	if len(path) == 0 {
		return geom.Vector3{}
	}
	last := path[len(path)-1]
	if len(path) == 1 {
		return last
	}
	h, ok := ground.Elevation(last.X, last.Z)
	if !ok {
		return last
	}

	prev := path[len(path)-2]
	ph, pok := ground.Elevation(prev.X, prev.Z)
	if !pok {
		ph = h
	}
	above, below := prev.Y-ph, last.Y-h
	if above <= 0 || above == below {
		last.Y = h
		return last
	}

	f := above / (above - below)
	hit := prev.Add(last.Sub(prev).Scale(f))
	if gh, ok := ground.Elevation(hit.X, hit.Z); ok {
		hit.Y = gh
	}
	return hit
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}

func degrees(rad float64) float64 {
	return rad * 180 / math.Pi
}

// Direction is the unit vector for an azimuth and altitude in degrees.
func Direction(azimuth, altitude float64) geom.Vector3 {
	az, alt := radians(azimuth), radians(altitude)
	return geom.Vector3{
		X: -math.Sin(az) * math.Cos(alt),
		Y: math.Sin(alt),
		Z: -math.Cos(az) * math.Cos(alt),
	}
}

// Muzzle returns the launch point and velocity of a shell fired from a
// turret at base. The barrel tip sits barrel units along the aim.
func Muzzle(base geom.Vector3, azimuth, altitude, velocity, barrel float64) (pos, vel geom.Vector3) {
	dir := Direction(azimuth, altitude)
	return base.Add(dir.Scale(barrel)), dir.Scale(velocity)
}

// Apex is the highest point of the flight.
func Apex(pos, vel geom.Vector3) geom.Vector3 {
	if vel.Y <= 0 {
		return pos
	}
	return PositionAt(pos, vel, vel.Y/Gravity)
}

// TimeToApex is zero for shells fired level or downward.
func TimeToApex(vel geom.Vector3) float64 {
	return math.Max(0, vel.Y/Gravity)
}

// VelocityAt is the analytic velocity t seconds after launch.
func VelocityAt(vel geom.Vector3, t float64) geom.Vector3 {
	return geom.Vector3{X: vel.X, Y: vel.Y - Gravity*t, Z: vel.Z}
}

// Split fans n warheads out of a MIRV bus. Headings spread evenly across
// spread degrees centred on the bus heading; speed is kept.
func Split(vel geom.Vector3, n int, spread float64) []geom.Vector3 {
	if n <= 1 {
		return []geom.Vector3{vel}
	}
	out := make([]geom.Vector3, n)
	step := radians(spread) / float64(n-1)
	first := -radians(spread) / 2
	for i := range out {
		a := first + float64(i)*step
		sin, cos := math.Sincos(a)
		out[i] = geom.Vector3{
			X: vel.X*cos - vel.Z*sin,
			Y: vel.Y,
			Z: vel.X*sin + vel.Z*cos,
		}
	}
	return out
}

// AzimuthTo is the azimuth in [0,360) that points from one board point
// towards another.
func AzimuthTo(from, to geom.Vector3) float64 {
	dx, dz := to.X-from.X, to.Z-from.Z
	az := degrees(math.Atan2(-dx, -dz))
	return WrapDegrees(az)
}

func WrapDegrees(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	if deg >= 360 {
		deg = 0
	}
	return deg
}
