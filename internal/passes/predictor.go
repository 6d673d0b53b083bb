// Package passes predicts when satellites are visible from a ground site.
package passes

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/zojak-ves/satview/internal/propagation"
	"github.com/zojak-ves/satview/internal/tle"
	"github.com/zojak-ves/satview/internal/tracking"
	"github.com/zojak-ves/satview/internal/transform"
)

var tracer = otel.Tracer("github.com/zojak-ves/satview/internal/passes")

// GroundTrackPoint is a sub-satellite position at a specific time during a pass.
type GroundTrackPoint struct {
	Time      time.Time `json:"time"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Altitude  float64   `json:"altitude_km"`
	Elevation float64   `json:"elevation"` // degrees above observer's horizon
}

// PassEvent describes a single satellite pass over an observer location.
// Angles are in degrees.
type PassEvent struct {
	StartTime        time.Time          `json:"start_time"`
	MaxElevationTime time.Time          `json:"max_elevation_time"`
	EndTime          time.Time          `json:"end_time"`
	DurationSeconds  float64            `json:"duration_seconds"`
	MaxElevation     float64            `json:"max_elevation"`
	AzimuthAtMax     float64            `json:"azimuth_at_max"`
	StartAzimuth     float64            `json:"start_azimuth"`
	EndAzimuth       float64            `json:"end_azimuth"`
	GroundTrack      []GroundTrackPoint `json:"ground_track"`
}

// SatellitePasses holds the predicted passes for one satellite.
type SatellitePasses struct {
	NORADID int         `json:"norad_id"`
	Name    string      `json:"name,omitempty"`
	Passes  []PassEvent `json:"passes"`
	Error   string      `json:"error,omitempty"`
}

// Request holds the parameters for a pass prediction request.
type Request struct {
	Observer     tracking.Observer
	Satellites   []tle.ElementSet
	Start        time.Time
	HorizonHours float64
	MinElevation float64 // degrees; a pass is the span with elevation >= MinElevation
	MaxPasses    int
	Azimuth      transform.AzimuthMode
}

const (
	coarseStepSec      = 30 // seconds between coarse scan steps
	fineStepSec        = 1  // seconds between fine scan steps
	groundTrackStepSec = 10 // seconds between ground track samples
	minPassDur         = 10 * time.Second
)

// Predict computes satellite passes for the given request.
// Each satellite is processed in its own goroutine, bounded by a semaphore.
func Predict(ctx context.Context, req Request) []SatellitePasses {
	ctx, span := tracer.Start(ctx, "passes.predict", trace.WithAttributes(
		attribute.String("observer", req.Observer.Name),
		attribute.Int("satellite_count", len(req.Satellites)),
		attribute.Float64("horizon_hours", req.HorizonHours),
		attribute.Float64("min_elevation", req.MinElevation),
	))
	defer span.End()

	results := make([]SatellitePasses, len(req.Satellites))
	sem := make(chan struct{}, runtime.NumCPU())
	var wg sync.WaitGroup

	for i, es := range req.Satellites {
		wg.Add(1)
		go func(idx int, es tle.ElementSet) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results[idx] = SatellitePasses{NORADID: es.NORADID, Name: es.Name, Error: "cancelled"}
				return
			}

			passes, err := predictSatellite(ctx, req, es)
			if err != nil {
				results[idx] = SatellitePasses{NORADID: es.NORADID, Name: es.Name, Error: err.Error()}
				return
			}
			results[idx] = SatellitePasses{NORADID: es.NORADID, Name: es.Name, Passes: passes}
		}(i, es)
	}

	wg.Wait()

	total := 0
	for _, r := range results {
		total += len(r.Passes)
	}
	span.SetAttributes(attribute.Int("pass_count", total))
	return results
}

// scanner evaluates one satellite from one observer.
type scanner struct {
	track    tracking.SatelliteTrack
	observer tracking.Observer
	solver   transform.LookAngleSolver
}

// at advances the satellite to t and returns the observer's look angle
// along with the advanced track.
func (s scanner) at(t time.Time) (transform.LookAngle, tracking.SatelliteTrack, error) {
	track, err := s.track.Advance(t)
	if err != nil {
		return transform.LookAngle{}, track, err
	}
	return s.observer.Observe(track, t, s.solver).Look, track, nil
}

// predictSatellite finds all passes for a single satellite.
func predictSatellite(ctx context.Context, req Request, es tle.ElementSet) ([]PassEvent, error) {
	prop, err := propagation.NewSGP4Propagator(es.Line1, es.Line2, es.NORADID)
	if err != nil {
		return nil, fmt.Errorf("sgp4 init: %w", err)
	}
	sc := scanner{
		track:    tracking.NewSatelliteTrack(es.NORADID, es.Name, prop),
		observer: req.Observer,
		solver:   transform.LookAngleSolver{Azimuth: req.Azimuth},
	}

	end := req.Start.Add(time.Duration(req.HorizonHours * float64(time.Hour)))
	var passes []PassEvent

	// Coarse scan: step through the time range looking for elevation > 0.
	t := req.Start
	for t.Before(end) && len(passes) < req.MaxPasses {
		if ctx.Err() != nil {
			return passes, nil
		}

		look, _, err := sc.at(t)
		if err != nil {
			t = t.Add(coarseStepSec * time.Second)
			continue
		}

		if look.Elevation > 0 || tracking.Visible(look, req.MinElevation) {
			// Candidate window; fine scan to find the full pass.
			pass, windowEnd := sc.refine(ctx, t, req.Start, end, req.MinElevation)
			if pass != nil && pass.EndTime.Sub(pass.StartTime) >= minPassDur {
				passes = append(passes, *pass)
			}
			// Jump past the end of this window.
			t = windowEnd.Add(coarseStepSec * time.Second)
		} else {
			t = t.Add(coarseStepSec * time.Second)
		}
	}

	return passes, nil
}

// passBuilder accumulates one pass from rise to set.
type passBuilder struct {
	ev PassEvent
}

func newPass(t time.Time, look transform.LookAngle) *passBuilder {
	az := look.AzimuthDeg()
	return &passBuilder{ev: PassEvent{
		StartTime:        t,
		StartAzimuth:     az,
		MaxElevation:     look.ElevationDeg(),
		MaxElevationTime: t,
		AzimuthAtMax:     az,
	}}
}

// peak records look if it is the highest point so far.
func (p *passBuilder) peak(t time.Time, look transform.LookAngle) {
	if el := look.ElevationDeg(); el > p.ev.MaxElevation {
		p.ev.MaxElevation = el
		p.ev.MaxElevationTime = t
		p.ev.AzimuthAtMax = look.AzimuthDeg()
	}
}

// sample adds a ground track point every groundTrackStepSec after rise.
func (p *passBuilder) sample(t time.Time, look transform.LookAngle, track tracking.SatelliteTrack) {
	if int(t.Sub(p.ev.StartTime).Seconds())%groundTrackStepSec != 0 {
		return
	}
	p.ev.GroundTrack = append(p.ev.GroundTrack, GroundTrackPoint{
		Time:      t,
		Latitude:  track.Geodetic.Latitude,
		Longitude: track.Geodetic.Longitude,
		Altitude:  track.Geodetic.Altitude,
		Elevation: look.ElevationDeg(),
	})
}

func (p *passBuilder) close(t time.Time, endAzimuth float64) *PassEvent {
	p.ev.EndTime = t
	p.ev.EndAzimuth = endAzimuth
	p.ev.DurationSeconds = t.Sub(p.ev.StartTime).Seconds()
	return &p.ev
}

// refine scans at fineStepSec from just before a coarse hit until the
// satellite drops below minElev, returning the pass (nil if it never reached
// minElev) and the time the scan stopped.
func (s scanner) refine(ctx context.Context, coarseHit, windowStart, windowEnd time.Time, minElev float64) (*PassEvent, time.Time) {
	// Back up one coarse step; the threshold crossing is somewhere in it.
	t := coarseHit.Add(-coarseStepSec * time.Second)
	if t.Before(windowStart) {
		t = windowStart
	}

	var (
		pass  *passBuilder
		risen bool // elevation has been above 0
	)
	for ; t.Before(windowEnd) && ctx.Err() == nil; t = t.Add(fineStepSec * time.Second) {
		look, track, err := s.at(t)
		if err != nil {
			continue
		}
		above := tracking.Visible(look, minElev)

		switch {
		case pass == nil && above:
			pass = newPass(t, look)
			pass.sample(t, look, track)
		case pass == nil && look.Elevation > 0:
			risen = true
		case pass == nil && risen:
			// Set again without reaching minElev.
			return nil, t
		case pass != nil && above:
			pass.peak(t, look)
			pass.sample(t, look, track)
		case pass != nil:
			return pass.close(t, look.AzimuthDeg()), t
		}
	}

	if pass == nil {
		return nil, t
	}

	// Still up at the end of the window: close the pass there.
	var endAz float64
	if look, _, err := s.at(t); err == nil {
		pass.peak(t, look)
		endAz = look.AzimuthDeg()
	}
	return pass.close(t, endAz), t
}
