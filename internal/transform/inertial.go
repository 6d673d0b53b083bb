package transform

import (
	"math"
	"time"
)

// Earth rotation.
const (
	SiderealRotationRate = 1.00273790934 // sidereal revolutions per solar day
	SecondsPerDay        = 86400.0

	// OmegaEarth is Earth's rotation rate in rad/s.
	OmegaEarth = 2 * math.Pi * (SiderealRotationRate / SecondsPerDay)
)

// InertialState is a point's position and velocity in the TEME frame at one
// instant, together with the Greenwich sidereal angle of that instant.
type InertialState struct {
	Position          Vector3 // km
	PositionMagnitude float64 // km
	Velocity          Vector3 // km/s
	VelocityMagnitude float64 // km/s
	Sidereal          float64 // radians
}

// NewInertialState builds an InertialState, deriving both magnitudes.
func NewInertialState(pos, vel Vector3, sidereal float64) InertialState {
	return InertialState{
		Position:          pos,
		PositionMagnitude: pos.Norm(),
		Velocity:          vel,
		VelocityMagnitude: vel.Norm(),
		Sidereal:          sidereal,
	}
}

// GeodeticToInertial returns where a stationary ground point sits in the
// inertial frame at t, and the velocity it has there from Earth's rotation.
func GeodeticToInertial(g Geodetic, t time.Time) InertialState {
	return GeodeticToInertialAt(g, SiderealAngle(t))
}

// GeodeticToInertialAt is GeodeticToInertial with a precomputed sidereal angle.
// Useful when many ground points are evaluated at the same instant.
func GeodeticToInertialAt(g Geodetic, sidereal float64) InertialState {
	lat := ToRadians(g.Latitude)
	theta := LocalSiderealTime(ToRadians(g.Longitude), sidereal)

	sinLat := math.Sin(lat)
	cosLat := math.Cos(lat)

	c := 1 / math.Sqrt(1+Flattening*(Flattening-2)*sinLat*sinLat)
	s := (1 - Flattening) * (1 - Flattening) * c
	achcp := (EquatorialRadiusKm*c + g.Altitude) * cosLat

	pos := Vector3{
		X: achcp * math.Cos(theta),
		Y: achcp * math.Sin(theta),
		Z: (EquatorialRadiusKm*s + g.Altitude) * sinLat,
	}

	// ω × r with ω along +Z.
	vel := Vector3{
		X: -OmegaEarth * pos.Y,
		Y: OmegaEarth * pos.X,
		Z: 0,
	}

	return NewInertialState(pos, vel, sidereal)
}

// Zenith returns the unit vector along the local geodetic vertical of a
// ground point, expressed in the inertial frame for the given sidereal angle.
func Zenith(g Geodetic, sidereal float64) Vector3 {
	lat := ToRadians(g.Latitude)
	theta := LocalSiderealTime(ToRadians(g.Longitude), sidereal)
	return Vector3{
		X: math.Cos(lat) * math.Cos(theta),
		Y: math.Cos(lat) * math.Sin(theta),
		Z: math.Sin(lat),
	}
}
