package transform

import "math"

const twoPi = 2 * math.Pi

// ToRadians converts degrees to radians.
func ToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}

// ToDegrees converts radians to degrees.
func ToDegrees(rad float64) float64 {
	return rad * 180.0 / math.Pi
}

// floorMod is the mathematical modulo x mod y for y > 0, in [0, y) for any
// finite x. A zero modulus returns x unchanged.
func floorMod(x, y float64) float64 {
	if y == 0 {
		return x
	}
	r := math.Mod(x, y)
	if r < 0 {
		r += y
	}
	// Rounding can land exactly on y for tiny negative x.
	if r >= y {
		r = 0
	}
	return r
}

// WrapTwoPi reduces an angle to [0, 2π).
func WrapTwoPi(x float64) float64 {
	return floorMod(x, twoPi)
}

// WrapSignedPi reduces an angle to (-π, π].
func WrapSignedPi(x float64) float64 {
	return math.Pi - floorMod(math.Pi-x, twoPi)
}
