package transform

import (
	"math"
	"time"

	"github.com/soniakeys/meeus/v3/julian"
)

// j2000 is the Julian Date of the J2000.0 epoch (January 1, 2000, 12:00:00 TT).
const j2000 = 2451545.0

// daysPerJulianYear is the length of a Julian year in days.
const daysPerJulianYear = 365.25

// JulianDate converts a time.Time to a Julian Date on the UTC scale.
func JulianDate(t time.Time) float64 {
	return julian.TimeToJD(t.UTC())
}

// JulianYearsSinceJ2000 returns the signed number of Julian years between
// J2000.0 and t.
func JulianYearsSinceJ2000(t time.Time) float64 {
	return (JulianDate(t) - j2000) / daysPerJulianYear
}

// IAUSiderealTime evaluates the IAU-82 Greenwich Mean Sidereal Time polynomial
// (Vallado Eq 3-45) for an epoch given in Julian years since J2000.0.
//
//	θ_GMST = 67310.54841 + (876600h + 8640184.812866)*T + 0.093104*T² - 6.2e-6*T³
//
// T is in Julian centuries and θ in seconds of time. The result is in radians,
// reduced with a truncated remainder so it takes the sign of the polynomial
// value in seconds.
func IAUSiderealTime(years float64) float64 {
	c := years / 100.0

	// 876600h = 876600 * 3600 = 3155760000 seconds.
	sec := -6.2e-6*c*c*c +
		0.093104*c*c +
		(3155760000.0+8640184.812866)*c +
		67310.54841

	// 240 seconds of time per degree.
	return math.Mod(sec*(math.Pi/180.0)/240.0, twoPi)
}

// SiderealAngle returns Greenwich Mean Sidereal Time in radians at t.
// The polynomial stays positive until about 18 hours before J2000.0, so
// earlier instants give negative angles; callers that need [0, 2π) wrap the
// result with WrapTwoPi.
func SiderealAngle(t time.Time) float64 {
	return IAUSiderealTime(JulianYearsSinceJ2000(t))
}

// LocalSiderealTime adds an east-positive longitude (radians) to a Greenwich
// sidereal angle and wraps the sum to [0, 2π).
func LocalSiderealTime(lonRad, sidereal float64) float64 {
	return WrapTwoPi(sidereal + lonRad)
}
