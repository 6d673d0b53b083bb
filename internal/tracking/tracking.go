// Package tracking holds the per-instant state of ground observers and the
// satellites they watch.
//
// Observer and SatelliteTrack are values. Each advance to a new instant
// returns a fresh value whose derived fields were all computed together, so
// a caller never sees an inertial state from one instant next to a look angle
// from another.
package tracking

import (
	"fmt"
	"time"

	"github.com/zojak-ves/satview/internal/transform"
)

// Propagator yields a satellite's inertial state at an instant. The element
// set behind it is immutable.
type Propagator interface {
	Propagate(t time.Time) (transform.InertialState, error)
}

// Observer is a fixed ground site plus its state at the last evaluated
// instant.
type Observer struct {
	Name string
	Site transform.Geodetic
	ECEF transform.ECEF // computed once; the site does not move

	Time     time.Time
	Inertial transform.InertialState
	Look     transform.LookAngle // zero until Observe
}

// NewObserver sites an observer at lat/lon (degrees) and alt (km).
func NewObserver(name string, lat, lon, alt float64) Observer {
	site := transform.Geodetic{Latitude: lat, Longitude: lon, Altitude: alt}
	return Observer{
		Name: name,
		Site: site,
		ECEF: transform.GeodeticToECEF(site),
	}
}

// At returns the observer's state at t. The look angle is cleared since it
// referred to the previous instant.
func (o Observer) At(t time.Time) Observer {
	next := o
	next.Time = t
	next.Inertial = transform.GeodeticToInertial(o.Site, t)
	next.Look = transform.LookAngle{}
	return next
}

// Observe refreshes the observer for t and points it at sat. sat should
// already have been advanced to t.
func (o Observer) Observe(sat SatelliteTrack, t time.Time, solver transform.LookAngleSolver) Observer {
	next := o.At(t)
	next.Look = solver.Compute(next.Site, next.Inertial, sat.Inertial, t)
	return next
}

// ObserveChecked is Observe with degenerate geometry reported as an error
// wrapping transform.ErrDegenerateGeometry. The returned observer carries the
// raw look angle either way.
func (o Observer) ObserveChecked(sat SatelliteTrack, t time.Time, solver transform.LookAngleSolver) (Observer, error) {
	next := o.At(t)
	look, err := solver.ComputeChecked(next.Site, next.Inertial, sat.Inertial, t)
	next.Look = look
	if err != nil {
		return next, fmt.Errorf("observer %s to NORAD %d: %w", o.Name, sat.NORADID, err)
	}
	return next, nil
}

// SatelliteTrack is one satellite's element set and its state at the last
// evaluated instant.
type SatelliteTrack struct {
	NORADID  int
	Name     string
	Elements Propagator

	Time     time.Time
	Inertial transform.InertialState
	Geodetic transform.Geodetic
	ECEF     transform.ECEF

	// Outcome of the geodetic solve behind Geodetic.
	SolverIterations int
	SolverConverged  bool
}

// NewSatelliteTrack wraps an element set. No state is computed until Advance.
func NewSatelliteTrack(noradID int, name string, elements Propagator) SatelliteTrack {
	return SatelliteTrack{NORADID: noradID, Name: name, Elements: elements}
}

// Advance propagates the element set to t and returns the resulting track.
// On error the receiver is returned unchanged alongside the error.
func (s SatelliteTrack) Advance(t time.Time) (SatelliteTrack, error) {
	if s.Elements == nil {
		return s, fmt.Errorf("NORAD %d: no element set", s.NORADID)
	}
	state, err := s.Elements.Propagate(t)
	if err != nil {
		return s, fmt.Errorf("NORAD %d: %w", s.NORADID, err)
	}
	return s.WithState(state, t), nil
}

// WithState returns the track positioned at an already-propagated inertial
// state. The state's sidereal angle is replaced with the one for t, and the
// geodetic and ECEF positions are derived from it.
func (s SatelliteTrack) WithState(state transform.InertialState, t time.Time) SatelliteTrack {
	sidereal := transform.SiderealAngle(t)
	state = transform.NewInertialState(state.Position, state.Velocity, sidereal)
	sol := transform.SolveGeodetic(state.Position, sidereal)

	next := s
	next.Time = t
	next.Inertial = state
	next.Geodetic = sol.Geodetic
	next.ECEF = transform.GeodeticToECEF(sol.Geodetic)
	next.SolverIterations = sol.Iterations
	next.SolverConverged = sol.Converged
	return next
}

// Visible reports whether look is at or above minElevationDeg. NaN elevations
// are never visible.
func Visible(look transform.LookAngle, minElevationDeg float64) bool {
	return look.ElevationDeg() >= minElevationDeg
}
