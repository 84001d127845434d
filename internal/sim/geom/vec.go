// Package geom holds the small vector type shared by actions, snapshots and the world.
package geom

import "math"

type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (v Vec3) Add(o Vec3) Vec3      { return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }
func (v Vec3) Sub(o Vec3) Vec3      { return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }
func (v Vec3) Scale(k float64) Vec3 { return Vec3{v.X * k, v.Y * k, v.Z * k} }
func (v Vec3) Len() float64         { return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z) }
func (v Vec3) Dist(o Vec3) float64  { return v.Sub(o).Len() }

// Norm returns the unit vector, or the zero vector for zero-length input.
func (v Vec3) Norm() Vec3 {
	l := v.Len()
	if l == 0 {
		return Vec3{}
	}
	return v.Scale(1 / l)
}

// StepToward moves from v toward dst by at most dist and reports arrival.
func (v Vec3) StepToward(dst Vec3, dist float64) (Vec3, bool) {
	d := dst.Sub(v)
	l := d.Len()
	if l <= dist {
		return dst, true
	}
	return v.Add(d.Scale(dist / l)), false
}
