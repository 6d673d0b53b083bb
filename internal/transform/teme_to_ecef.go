// Package transform converts between the coordinate frames used to locate a
// satellite and its ground observers.
//
// Four representations are involved: TEME (the near-inertial frame SGP4
// produces), ECEF, geodetic latitude/longitude/altitude on an ellipsoid, and
// the observer-centric South-East-Zenith horizon frame that yields azimuth,
// elevation and range.
//
// Earth orientation is modelled with Greenwich Mean Sidereal Time only
// (TEME -> PEF ≈ ECEF). Polar motion, nutation and the equation of the
// equinoxes are ignored.
//
// Reference: Vallado, "Fundamentals of Astrodynamics and Applications", Ch. 3-4.
package transform

import "math"

// EarthFixedState is a position and velocity in the rotating Earth-fixed frame.
type EarthFixedState struct {
	Position ECEF    // km
	Velocity Vector3 // km/s
}

// ToEarthFixed rotates an inertial state into the Earth-fixed frame using the
// sidereal angle stored on the state.
//
// Position transform: r_ECEF = R3(θ) * r_TEME
// Velocity transform: v_ECEF = R3(θ) * v_TEME - ω × r_ECEF
//
// where R3(θ) is a rotation about the Z-axis by θ and ω = [0, 0, OmegaEarth].
func ToEarthFixed(s InertialState) EarthFixedState {
	cosG := math.Cos(s.Sidereal)
	sinG := math.Sin(s.Sidereal)

	x := s.Position.X*cosG + s.Position.Y*sinG
	y := -s.Position.X*sinG + s.Position.Y*cosG
	z := s.Position.Z

	vxRot := s.Velocity.X*cosG + s.Velocity.Y*sinG
	vyRot := -s.Velocity.X*sinG + s.Velocity.Y*cosG

	return EarthFixedState{
		Position: ECEF{X: x, Y: y, Z: z},
		Velocity: Vector3{
			X: vxRot + OmegaEarth*y, // -(-ω*y)
			Y: vyRot - OmegaEarth*x, // -(ω*x)
			Z: s.Velocity.Z,
		},
	}
}

// Plausible orbital radius bounds (km). LEO is ~6571-6971 km, GEO ~42164 km.
const (
	MinOrbitRadiusKm = 6200.0
	MaxOrbitRadiusKm = 50000.0
)

// PlausibleOrbit reports whether a position is finite and at a radius an
// Earth-orbiting satellite could occupy.
func PlausibleOrbit(pos Vector3) bool {
	if math.IsNaN(pos.X) || math.IsNaN(pos.Y) || math.IsNaN(pos.Z) {
		return false
	}
	if math.IsInf(pos.X, 0) || math.IsInf(pos.Y, 0) || math.IsInf(pos.Z, 0) {
		return false
	}
	mag := pos.Norm()
	return mag >= MinOrbitRadiusKm && mag <= MaxOrbitRadiusKm
}
