// Package vector3 implements a thin 3-vector of autograd.Value scalars,
// so that every component operation (+, -, scalar *, dot, cross,
// magnitude, normalized) reduces to scalar autodiff operators and
// participates in the same DAG, registry, and kernel-compilation
// pipeline as any other residual.
package vector3

import "github.com/mfagerlund/scalarautograd/src/autograd"

// Vec3 is a 3-vector of traced scalars.
type Vec3 struct {
	X, Y, Z *autograd.Value
}

// New builds a Vec3 from three constant leaves.
func New(x, y, z float64) Vec3 {
	return Vec3{autograd.NewConstant(x), autograd.NewConstant(y), autograd.NewConstant(z)}
}

// NewParam builds a Vec3 of three parameter leaves.
func NewParam(x, y, z float64) Vec3 {
	return Vec3{autograd.NewParam(x), autograd.NewParam(y), autograd.NewParam(z)}
}

// Data returns the current forward values as a plain [3]float64.
func (v Vec3) Data() [3]float64 {
	return [3]float64{v.X.Data, v.Y.Data, v.Z.Data}
}

// Add returns v + other, component-wise.
func (v Vec3) Add(other Vec3) Vec3 {
	return Vec3{v.X.Add(other.X), v.Y.Add(other.Y), v.Z.Add(other.Z)}
}

// Sub returns v - other, component-wise.
func (v Vec3) Sub(other Vec3) Vec3 {
	return Vec3{v.X.Sub(other.X), v.Y.Sub(other.Y), v.Z.Sub(other.Z)}
}

// Scale returns v * s, component-wise.
func (v Vec3) Scale(s *autograd.Value) Vec3 {
	return Vec3{v.X.Mul(s), v.Y.Mul(s), v.Z.Mul(s)}
}

// Dot returns the scalar dot product v . other.
func (v Vec3) Dot(other Vec3) *autograd.Value {
	return v.X.Mul(other.X).Add(v.Y.Mul(other.Y)).Add(v.Z.Mul(other.Z))
}

// Cross returns the vector cross product v x other.
func (v Vec3) Cross(other Vec3) Vec3 {
	return Vec3{
		X: v.Y.Mul(other.Z).Sub(v.Z.Mul(other.Y)),
		Y: v.Z.Mul(other.X).Sub(v.X.Mul(other.Z)),
		Z: v.X.Mul(other.Y).Sub(v.Y.Mul(other.X)),
	}
}

// Magnitude returns sqrt(v . v). Domain is non-negative by construction
// (sum of squares), so the sqrt(x>0) caller obligation is always satisfied
// except at the exact zero vector, where the gradient is singular per
// Sqrt's rule.
func (v Vec3) Magnitude() *autograd.Value {
	return v.Dot(v).Sqrt()
}

// Normalized returns v / |v|. Undefined (NaN, propagated rather than
// raised) at the zero vector.
func (v Vec3) Normalized() Vec3 {
	m := v.Magnitude()
	return Vec3{v.X.Div(m), v.Y.Div(m), v.Z.Div(m)}
}
