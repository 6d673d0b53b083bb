package transform

import (
	"math"
	"time"
)

// Reference ellipsoid. The two eccentricity-squared values are tied to their
// own formulas and must not be unified: geodetic<->ECEF uses the published
// WGS-84 value, the inertial-frame conversions derive theirs from Flattening.
const (
	EquatorialRadiusKm = 6378.137     // a_e (km)
	Flattening         = 1.0 / 298.26 // f

	// EccentricitySquaredECEF is used by GeodeticToECEF and ECEFToGeodetic.
	EccentricitySquaredECEF = 6.69437999014e-3

	// EccentricitySquaredInertial is used by GeodeticToInertial and SolveGeodetic.
	EccentricitySquaredInertial = Flattening * (2 - Flattening)
)

// Latitude solver bounds.
const (
	MaxLatitudeIterations = 10
	LatitudeTolerance     = 1e-10 // radians
)

// Geodetic is a position on the reference ellipsoid.
// Latitude and longitude are in degrees, altitude in km above the ellipsoid.
type Geodetic struct {
	Latitude  float64
	Longitude float64
	Altitude  float64
}

// ECEF is an Earth-fixed Cartesian position in km.
type ECEF struct {
	X, Y, Z float64
}

// Vector returns the ECEF position as a Vector3.
func (e ECEF) Vector() Vector3 {
	return Vector3{X: e.X, Y: e.Y, Z: e.Z}
}

// GeodeticToECEF converts a geodetic position to ECEF using the prime-vertical
// radius of curvature N = a_e / sqrt(1 - e²·sin²φ).
func GeodeticToECEF(g Geodetic) ECEF {
	lat := ToRadians(g.Latitude)
	lon := ToRadians(g.Longitude)

	sinLat := math.Sin(lat)
	cosLat := math.Cos(lat)

	N := EquatorialRadiusKm / math.Sqrt(1-EccentricitySquaredECEF*sinLat*sinLat)

	return ECEF{
		X: (N + g.Altitude) * cosLat * math.Cos(lon),
		Y: (N + g.Altitude) * cosLat * math.Sin(lon),
		Z: ((1-EccentricitySquaredECEF)*N + g.Altitude) * sinLat,
	}
}

// GeodeticSolution is the result of the iterative latitude solve.
type GeodeticSolution struct {
	Geodetic
	Iterations int  // latitude updates performed, 1..MaxLatitudeIterations
	Converged  bool // last update moved latitude by less than LatitudeTolerance
}

// SolveGeodetic recovers latitude, longitude and altitude from an inertial
// position (km) given the Greenwich sidereal angle at the observation instant.
//
// Longitude is atan2(y, x) minus the sidereal angle, wrapped to (-180, 180].
// Latitude starts from the spherical estimate atan2(z, r) and is refined by
// a fixed point on the ellipsoid; the loop always stops after
// MaxLatitudeIterations updates and returns its best estimate.
func SolveGeodetic(pos Vector3, sidereal float64) GeodeticSolution {
	r := math.Sqrt(pos.X*pos.X + pos.Y*pos.Y)
	lon := WrapSignedPi(math.Atan2(pos.Y, pos.X) - sidereal)

	lat, c, iterations, converged := solveLatitude(pos.Z, r, EccentricitySquaredInertial)
	alt := r/math.Cos(lat) - EquatorialRadiusKm*c

	return GeodeticSolution{
		Geodetic: Geodetic{
			Latitude:  ToDegrees(lat),
			Longitude: ToDegrees(lon),
			Altitude:  alt,
		},
		Iterations: iterations,
		Converged:  converged,
	}
}

// InertialToGeodetic converts an inertial (TEME) position observed at t into
// geodetic coordinates.
func InertialToGeodetic(pos Vector3, t time.Time) Geodetic {
	return SolveGeodetic(pos, SiderealAngle(t)).Geodetic
}

// ECEFToGeodetic is the inverse of GeodeticToECEF. It runs the same bounded
// fixed point with the ECEF eccentricity and no sidereal rotation.
func ECEFToGeodetic(e ECEF) Geodetic {
	r := math.Sqrt(e.X*e.X + e.Y*e.Y)
	lon := WrapSignedPi(math.Atan2(e.Y, e.X))

	lat, c, _, _ := solveLatitude(e.Z, r, EccentricitySquaredECEF)
	alt := r/math.Cos(lat) - EquatorialRadiusKm*c

	return Geodetic{
		Latitude:  ToDegrees(lat),
		Longitude: ToDegrees(lon),
		Altitude:  alt,
	}
}

// solveLatitude iterates φ ← atan2(z + a_e·c·e²·sin φ, r) with
// c = 1/sqrt(1 - e²·sin²φ) evaluated at the previous estimate. It returns the
// final latitude, the curvature term of the last update, the number of
// updates and whether the tolerance was met.
func solveLatitude(z, r, e2 float64) (lat, c float64, iterations int, converged bool) {
	lat = math.Atan2(z, r)
	for iterations < MaxLatitudeIterations {
		phi := lat
		sinPhi := math.Sin(phi)
		c = 1 / math.Sqrt(1-e2*sinPhi*sinPhi)
		lat = math.Atan2(z+EquatorialRadiusKm*c*e2*sinPhi, r)
		iterations++

		if math.Abs(lat-phi) < LatitudeTolerance {
			converged = true
			break
		}
	}
	return lat, c, iterations, converged
}
