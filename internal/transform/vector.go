package transform

import "gonum.org/v1/gonum/floats"

// Vector3 is a Cartesian vector. Positions are in km, velocities in km/s.
type Vector3 struct {
	X, Y, Z float64
}

// Sub returns v - u.
func (v Vector3) Sub(u Vector3) Vector3 {
	return Vector3{X: v.X - u.X, Y: v.Y - u.Y, Z: v.Z - u.Z}
}

// Add returns v + u.
func (v Vector3) Add(u Vector3) Vector3 {
	return Vector3{X: v.X + u.X, Y: v.Y + u.Y, Z: v.Z + u.Z}
}

// Scale returns v multiplied by s.
func (v Vector3) Scale(s float64) Vector3 {
	return Vector3{X: v.X * s, Y: v.Y * s, Z: v.Z * s}
}

// Norm returns the Euclidean length of v. NaN components yield NaN.
func (v Vector3) Norm() float64 {
	return floats.Norm([]float64{v.X, v.Y, v.Z}, 2)
}

// Array returns the components as a fixed-size array.
func (v Vector3) Array() [3]float64 {
	return [3]float64{v.X, v.Y, v.Z}
}
