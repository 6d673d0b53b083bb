package transform

import (
	"math"
	"testing"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"
	"gonum.org/v1/gonum/floats/scalar"
)

func TestGeodeticToInertial_MatchesGeodeticToECEF(t *testing.T) {
	// Rotating an observer's inertial position back by the sidereal angle must
	// land on its Earth-fixed position. This pins the longitude sign: east is
	// positive in both conversions.
	at := time.Date(2026, 2, 6, 4, 1, 0, 0, time.UTC)

	for _, tt := range roundTripSites {
		t.Run(tt.name, func(t *testing.T) {
			got := ToEarthFixed(GeodeticToInertial(tt.g, at)).Position
			want := GeodeticToECEF(tt.g)

			// The two conversions use eccentricities that differ in the eighth
			// digit, which moves the point by well under a metre.
			diff := got.Vector().Sub(want.Vector()).Norm()
			if diff > 0.01 {
				t.Errorf("inertial->ECEF = %+v, GeodeticToECEF = %+v (diff=%.6f km)", got, want, diff)
			}
		})
	}
}

func TestGeodeticToInertial_Velocity(t *testing.T) {
	g := Geodetic{Latitude: 33.4484, Longitude: -112.0740}
	s := GeodeticToInertialAt(g, 2.1)

	r := math.Hypot(s.Position.X, s.Position.Y)
	if want := OmegaEarth * r; !scalar.EqualWithinAbs(s.VelocityMagnitude, want, 1e-12) {
		t.Errorf("velocity magnitude = %.9f km/s, want ω·r = %.9f", s.VelocityMagnitude, want)
	}
	if s.Velocity.Z != 0 {
		t.Errorf("velocity Z = %v, want 0", s.Velocity.Z)
	}
	if !scalar.EqualWithinAbs(s.PositionMagnitude, s.Position.Norm(), 1e-12) {
		t.Errorf("position magnitude = %v, want %v", s.PositionMagnitude, s.Position.Norm())
	}

	// A ground point is at rest in the Earth-fixed frame.
	fixed := ToEarthFixed(s)
	if v := fixed.Velocity.Norm(); v > 1e-12 {
		t.Errorf("Earth-fixed velocity of a ground point = %.3e km/s, want 0", v)
	}
}

func TestGeodeticToInertial_AdvancesEastward(t *testing.T) {
	g := Geodetic{Latitude: 48, Longitude: 0}
	t0 := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)

	a := GeodeticToInertial(g, t0)
	b := GeodeticToInertial(g, t0.Add(time.Minute))

	angle := WrapTwoPi(math.Atan2(b.Position.Y, b.Position.X) - math.Atan2(a.Position.Y, a.Position.X))
	want := OmegaEarth * 60
	if math.Abs(angle-want) > 1e-7 {
		t.Errorf("one-minute rotation = %.9f rad, want %.9f", angle, want)
	}
	if !scalar.EqualWithinAbs(a.Position.Z, b.Position.Z, 1e-12) {
		t.Errorf("Z changed under rotation: %v -> %v", a.Position.Z, b.Position.Z)
	}
}

func TestZenith(t *testing.T) {
	for _, tt := range roundTripSites {
		z := Zenith(tt.g, 1.3)
		if !scalar.EqualWithinAbs(z.Norm(), 1, 1e-12) {
			t.Errorf("%s: |zenith| = %v, want 1", tt.name, z.Norm())
		}
	}

	// On the equator the geodetic vertical is the radial direction.
	s := GeodeticToInertialAt(Geodetic{Latitude: 0, Longitude: 30}, 0.4)
	z := Zenith(Geodetic{Latitude: 0, Longitude: 30}, 0.4)
	radial := s.Position.Scale(1 / s.PositionMagnitude)
	if d := z.Sub(radial).Norm(); d > 1e-12 {
		t.Errorf("equatorial zenith differs from radial by %v", d)
	}
}

func TestToEarthFixed_MatchesGoSatellite(t *testing.T) {
	tests := []struct {
		name string
		pos  Vector3
		vel  Vector3
		time time.Time
	}{
		{
			// Vallado "Fundamentals of Astrodynamics" Example 3-15
			name: "Vallado example 3-15",
			pos:  Vector3{X: 5094.18016, Y: 6127.64465, Z: 6380.34453},
			vel:  Vector3{X: -4.746131487, Y: 0.786598499, Z: 5.531931288},
			time: time.Date(2004, 4, 6, 7, 51, 28, 0, time.UTC),
		},
		{
			name: "LEO equatorial",
			pos:  Vector3{X: 6778.0},
			vel:  Vector3{Y: 7.5},
			time: time.Date(2026, 2, 6, 12, 0, 0, 0, time.UTC),
		},
		{
			name: "LEO polar",
			pos:  Vector3{Z: 6978.0},
			vel:  Vector3{X: 7.4},
			time: time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gmst := satellite.GSTimeFromDate(
				tt.time.Year(), int(tt.time.Month()), tt.time.Day(),
				tt.time.Hour(), tt.time.Minute(), tt.time.Second(),
			)

			got := ToEarthFixed(NewInertialState(tt.pos, tt.vel, gmst)).Position
			ref := satellite.ECIToECEF(satellite.Vector3{X: tt.pos.X, Y: tt.pos.Y, Z: tt.pos.Z}, gmst)

			const tolerance = 1e-3 // km
			if math.Abs(got.X-ref.X) > tolerance || math.Abs(got.Y-ref.Y) > tolerance || math.Abs(got.Z-ref.Z) > tolerance {
				t.Errorf("position mismatch:\n  ours: [%.6f, %.6f, %.6f] km\n  ref:  [%.6f, %.6f, %.6f] km",
					got.X, got.Y, got.Z, ref.X, ref.Y, ref.Z)
			}
			if !PlausibleOrbit(got.Vector()) {
				t.Errorf("Earth-fixed position failed plausibility: %+v", got)
			}
		})
	}
}

func TestToEarthFixed_Velocity(t *testing.T) {
	// Prograde equatorial satellite with the frames aligned.
	s := NewInertialState(Vector3{X: 6778.0}, Vector3{Y: 7.5}, 0)
	fixed := ToEarthFixed(s)

	if math.Abs(fixed.Position.X-6778.0) > 1e-9 {
		t.Errorf("X position: got %.6f, want 6778.0", fixed.Position.X)
	}

	// ω·R = 7.292115e-5 * 6778 ≈ 0.4943 km/s comes off the inertial speed.
	want := 7.5 - OmegaEarth*6778.0
	if math.Abs(fixed.Velocity.Y-want) > 1e-9 {
		t.Errorf("VY: got %.6f km/s, want %.6f km/s", fixed.Velocity.Y, want)
	}
}

func TestPlausibleOrbit(t *testing.T) {
	tests := []struct {
		name  string
		pos   Vector3
		valid bool
	}{
		{"LEO", Vector3{X: 6778}, true},
		{"GEO", Vector3{X: 42164}, true},
		{"too low", Vector3{X: 5000}, false},
		{"too high", Vector3{X: 60000}, false},
		{"NaN", Vector3{X: math.NaN()}, false},
		{"Inf", Vector3{Y: math.Inf(-1)}, false},
		{"zero", Vector3{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PlausibleOrbit(tt.pos); got != tt.valid {
				t.Errorf("PlausibleOrbit(%+v) = %v, want %v", tt.pos, got, tt.valid)
			}
		})
	}
}
