package transform

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// LookAngle is the topocentric direction and range from an observer to a
// target. The zero value means "not yet computed".
type LookAngle struct {
	Azimuth   float64 // radians, [0, 2π), 0 = North, clockwise
	Elevation float64 // radians, [-π/2, π/2], 0 = horizon
	Distance  float64 // km
}

// AzimuthDeg returns the azimuth in degrees.
func (l LookAngle) AzimuthDeg() float64 { return ToDegrees(l.Azimuth) }

// ElevationDeg returns the elevation in degrees.
func (l LookAngle) ElevationDeg() float64 { return ToDegrees(l.Elevation) }

// AzimuthMode selects the azimuth quadrant rule.
type AzimuthMode int

const (
	// AzimuthReference is atan(-E/S) with a +π correction when S > 0 and a
	// +2π correction when the result is negative. When S == 0 the +π branch
	// is never taken, so a target due east on the horizon reports 3π/2.
	AzimuthReference AzimuthMode = iota

	// AzimuthQuadrant is atan2(E, -S) wrapped to [0, 2π). It agrees with
	// AzimuthReference everywhere except S == 0.
	AzimuthQuadrant
)

func (m AzimuthMode) String() string {
	switch m {
	case AzimuthReference:
		return "reference"
	case AzimuthQuadrant:
		return "quadrant"
	default:
		return fmt.Sprintf("AzimuthMode(%d)", int(m))
	}
}

// ParseAzimuthMode parses "reference" or "quadrant" (case-insensitive).
// The empty string selects AzimuthReference.
func ParseAzimuthMode(s string) (AzimuthMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "reference":
		return AzimuthReference, nil
	case "quadrant", "atan2":
		return AzimuthQuadrant, nil
	default:
		return AzimuthReference, fmt.Errorf("unknown azimuth mode %q (want reference or quadrant)", s)
	}
}

// elevationSlack is how far |zenith/range| may exceed 1 from rounding alone
// before the ratio is reported as out of domain instead of clamped.
const elevationSlack = 1e-12

// LookAngleSolver computes topocentric look angles. The zero value uses
// AzimuthReference. Safe for concurrent use.
type LookAngleSolver struct {
	Azimuth AzimuthMode
}

// ComputeLookAngle is LookAngleSolver{}.Compute.
func ComputeLookAngle(site Geodetic, observer, target InertialState, t time.Time) LookAngle {
	return LookAngleSolver{}.Compute(site, observer, target, t)
}

// Compute returns the azimuth, elevation and range of target as seen from an
// observer at site whose inertial state is observer. The sidereal angle is
// recomputed from t rather than read from either state.
//
// Uses the SEZ (South-East-Zenith) topocentric rotation per Vallado Section 4.4.
// Compute never fails: NaN inputs and a zero range yield NaN angles.
func (s LookAngleSolver) Compute(site Geodetic, observer, target InertialState, t time.Time) LookAngle {
	look, _ := s.solve(site, observer.Position, target.Position, SiderealAngle(t))
	return look
}

// ComputeChecked is Compute, but classifies degenerate geometry as a
// *GeometryError wrapping ErrDegenerateGeometry. The returned LookAngle is
// the same value Compute would produce.
func (s LookAngleSolver) ComputeChecked(site Geodetic, observer, target InertialState, t time.Time) (LookAngle, error) {
	return s.checked(site, observer.Position, target.Position, SiderealAngle(t))
}

func (s LookAngleSolver) checked(site Geodetic, obsPos, targetPos Vector3, sidereal float64) (LookAngle, error) {
	look, top := s.solve(site, obsPos, targetPos, sidereal)

	var kind DegeneracyKind
	switch {
	case look.Distance == 0:
		kind = ZeroRange
	case math.IsNaN(look.Distance) || math.IsInf(look.Distance, 0):
		kind = NonFinite
	case math.Abs(top.zenith/look.Distance) > 1+elevationSlack:
		kind = ElevationDomain
	case top.south == 0 && top.east == 0:
		kind = UndefinedAzimuth
	case math.IsNaN(look.Azimuth) || math.IsNaN(look.Elevation):
		kind = NonFinite
	default:
		return look, nil
	}
	return look, &GeometryError{Kind: kind, Look: look}
}

// sez is a range vector in South-East-Zenith components.
type sez struct {
	south, east, zenith float64
}

func (s LookAngleSolver) solve(site Geodetic, obsPos, targetPos Vector3, sidereal float64) (LookAngle, sez) {
	lat := ToRadians(site.Latitude)
	theta := LocalSiderealTime(ToRadians(site.Longitude), sidereal)

	d := targetPos.Sub(obsPos)
	distance := d.Norm()

	sinLat := math.Sin(lat)
	cosLat := math.Cos(lat)
	sinTheta := math.Sin(theta)
	cosTheta := math.Cos(theta)

	top := sez{
		south:  sinLat*cosTheta*d.X + sinLat*sinTheta*d.Y - cosLat*d.Z,
		east:   -sinTheta*d.X + cosTheta*d.Y,
		zenith: cosLat*cosTheta*d.X + cosLat*sinTheta*d.Y + sinLat*d.Z,
	}

	var az float64
	switch s.Azimuth {
	case AzimuthQuadrant:
		az = WrapTwoPi(math.Atan2(top.east, -top.south))
	default:
		az = math.Atan(-top.east / top.south)
		if top.south > 0 {
			az += math.Pi
		}
		if az < 0 {
			az += twoPi
		}
		if az >= twoPi {
			az -= twoPi
		}
	}

	return LookAngle{
		Azimuth:   az,
		Elevation: math.Asin(clampUnit(top.zenith / distance)),
		Distance:  distance,
	}, top
}

// clampUnit pulls values that overshoot ±1 by rounding back into the asin
// domain. Larger overshoots and NaN pass through unchanged.
func clampUnit(x float64) float64 {
	if x > 1 && x <= 1+elevationSlack {
		return 1
	}
	if x < -1 && x >= -1-elevationSlack {
		return -1
	}
	return x
}
