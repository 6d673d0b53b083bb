package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/zojak-ves/satview/internal/passes"
	"github.com/zojak-ves/satview/internal/propagation"
	"github.com/zojak-ves/satview/internal/tle"
	"github.com/zojak-ves/satview/internal/tracking"
	"github.com/zojak-ves/satview/internal/transform"
)

const (
	maxGroundTrackPoints = 1440
	defaultPassHours     = 24.0
	maxPassHours         = 72.0
	defaultMaxPasses     = 10
	maxMaxPasses         = 50
)

type handlers struct {
	store   *tle.Store
	sweeper *propagation.Sweeper
	logger  *slog.Logger
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// lookupStatus maps dataset lookup errors to HTTP statuses.
func lookupStatus(err error) int {
	switch {
	case errors.Is(err, tle.ErrNoDataset):
		return http.StatusServiceUnavailable
	case errors.Is(err, tle.ErrUnknownSatellite):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func pathNORADID(r *http.Request) (int, error) {
	raw := r.PathValue("norad_id")
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid norad_id %q", raw)
	}
	return id, nil
}

// queryTime reads ?time as RFC 3339, defaulting to now.
func queryTime(r *http.Request) (time.Time, error) {
	raw := r.URL.Query().Get("time")
	if raw == "" {
		return time.Now().UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: want RFC 3339", raw)
	}
	return t.UTC(), nil
}

func queryFloat(r *http.Request, key string, def float64) (float64, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", key, raw)
	}
	return v, nil
}

// queryObservers returns an ad-hoc observer from ?lat&lon[&alt], or the
// configured observers when neither is given.
func (h *handlers) queryObservers(r *http.Request) ([]tracking.Observer, error) {
	q := r.URL.Query()
	if q.Get("lat") == "" && q.Get("lon") == "" {
		return h.sweeper.Observers(), nil
	}
	if q.Get("lat") == "" || q.Get("lon") == "" {
		return nil, errors.New("lat and lon must be given together")
	}

	lat, err := queryFloat(r, "lat", 0)
	if err != nil {
		return nil, err
	}
	lon, err := queryFloat(r, "lon", 0)
	if err != nil {
		return nil, err
	}
	alt, err := queryFloat(r, "alt", 0)
	if err != nil {
		return nil, err
	}
	if lat < -90 || lat > 90 {
		return nil, fmt.Errorf("lat %v out of range [-90, 90]", lat)
	}
	if lon < -180 || lon > 180 {
		return nil, fmt.Errorf("lon %v out of range [-180, 180]", lon)
	}
	return []tracking.Observer{tracking.NewObserver("query", lat, lon, alt)}, nil
}

type geodeticJSON struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Altitude  float64 `json:"altitude_km"`
}

func toGeodeticJSON(g transform.Geodetic) geodeticJSON {
	return geodeticJSON{Latitude: g.Latitude, Longitude: g.Longitude, Altitude: g.Altitude}
}

type lookJSON struct {
	Observer   string       `json:"observer"`
	Site       geodeticJSON `json:"site"`
	Azimuth    float64      `json:"azimuth_deg"`
	Elevation  float64      `json:"elevation_deg"`
	Range      float64      `json:"range_km"`
	Visible    bool         `json:"visible"`
	Degenerate string       `json:"degenerate,omitempty"`
}

type lookResponse struct {
	NORADID   int          `json:"norad_id"`
	Name      string       `json:"name"`
	Time      time.Time    `json:"time"`
	Satellite geodeticJSON `json:"satellite"`
	Looks     []lookJSON   `json:"looks"`
}

// look serves GET /api/v1/look/{norad_id}.
func (h *handlers) look(w http.ResponseWriter, r *http.Request) {
	id, err := pathNORADID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	t, err := queryTime(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	observers, err := h.queryObservers(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	base, err := h.sweeper.Track(id)
	if err != nil {
		writeError(w, lookupStatus(err), err.Error())
		return
	}
	track, err := base.Advance(t)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	cfg := h.sweeper.Config()
	solver := transform.LookAngleSolver{Azimuth: cfg.Azimuth}
	resp := lookResponse{
		NORADID:   track.NORADID,
		Name:      track.Name,
		Time:      t,
		Satellite: toGeodeticJSON(track.Geodetic),
		Looks:     make([]lookJSON, 0, len(observers)),
	}
	for _, o := range observers {
		seen, err := o.ObserveChecked(track, t, solver)
		lj := lookJSON{
			Observer:  o.Name,
			Site:      toGeodeticJSON(o.Site),
			Azimuth:   seen.Look.AzimuthDeg(),
			Elevation: seen.Look.ElevationDeg(),
			Range:     seen.Look.Distance,
		}
		var gerr *transform.GeometryError
		if errors.As(err, &gerr) {
			// encoding/json rejects NaN.
			lj = lookJSON{Observer: o.Name, Site: lj.Site, Degenerate: string(gerr.Kind)}
		} else {
			lj.Visible = tracking.Visible(seen.Look, cfg.MinElevation)
		}
		resp.Looks = append(resp.Looks, lj)
	}

	writeJSON(w, http.StatusOK, resp)
}

type vectorJSON struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

type groundPointJSON struct {
	Time             time.Time    `json:"time"`
	Geodetic         geodeticJSON `json:"geodetic"`
	ECEF             vectorJSON   `json:"ecef_km"`
	ECEFVelocity     vectorJSON   `json:"ecef_velocity_km_s"`
	Position         vectorJSON   `json:"teme_position_km"`
	Velocity         vectorJSON   `json:"teme_velocity_km_s"`
	Speed            float64      `json:"speed_km_s"`
	SiderealRad      float64      `json:"sidereal_rad"`
	SolverIterations int          `json:"solver_iterations"`
	SolverConverged  bool         `json:"solver_converged"`
}

type groundTrackResponse struct {
	NORADID int               `json:"norad_id"`
	Name    string            `json:"name"`
	Points  []groundPointJSON `json:"points"`
}

func toGroundPoint(s tracking.SatelliteTrack) groundPointJSON {
	// Velocity relative to the rotating Earth, for ground-relative speed.
	fixed := transform.ToEarthFixed(s.Inertial)
	return groundPointJSON{
		Time:             s.Time,
		Geodetic:         toGeodeticJSON(s.Geodetic),
		ECEF:             vectorJSON{X: s.ECEF.X, Y: s.ECEF.Y, Z: s.ECEF.Z},
		ECEFVelocity:     vectorJSON{X: fixed.Velocity.X, Y: fixed.Velocity.Y, Z: fixed.Velocity.Z},
		Position:         vectorJSON{X: s.Inertial.Position.X, Y: s.Inertial.Position.Y, Z: s.Inertial.Position.Z},
		Velocity:         vectorJSON{X: s.Inertial.Velocity.X, Y: s.Inertial.Velocity.Y, Z: s.Inertial.Velocity.Z},
		Speed:            s.Inertial.VelocityMagnitude,
		SiderealRad:      s.Inertial.Sidereal,
		SolverIterations: s.SolverIterations,
		SolverConverged:  s.SolverConverged,
	}
}

// groundTrack serves GET /api/v1/groundtrack/{norad_id}. With ?minutes and
// ?step (seconds) it returns a series starting at ?time.
func (h *handlers) groundTrack(w http.ResponseWriter, r *http.Request) {
	id, err := pathNORADID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	t, err := queryTime(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	minutes, err := queryFloat(r, "minutes", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	stepSec, err := queryFloat(r, "step", 60)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if minutes < 0 || stepSec < 1 {
		writeError(w, http.StatusBadRequest, "minutes must be >= 0 and step >= 1")
		return
	}

	n := int(minutes*60/stepSec) + 1
	if n > maxGroundTrackPoints {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":      fmt.Sprintf("requested %d points exceeds budget", n),
			"max_points": maxGroundTrackPoints,
		})
		return
	}

	base, err := h.sweeper.Track(id)
	if err != nil {
		writeError(w, lookupStatus(err), err.Error())
		return
	}

	resp := groundTrackResponse{NORADID: base.NORADID, Name: base.Name, Points: make([]groundPointJSON, 0, n)}
	step := time.Duration(stepSec * float64(time.Second))
	for i := 0; i < n; i++ {
		track, err := base.Advance(t.Add(time.Duration(i) * step))
		if err != nil {
			if i == 0 {
				writeError(w, http.StatusUnprocessableEntity, err.Error())
				return
			}
			h.logger.Debug("ground track cut short", "norad_id", id, "point", i, "error", err)
			break
		}
		resp.Points = append(resp.Points, toGroundPoint(track))
	}

	writeJSON(w, http.StatusOK, resp)
}

// passes serves GET /api/v1/passes/{norad_id}.
func (h *handlers) passes(w http.ResponseWriter, r *http.Request) {
	id, err := pathNORADID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	observers, err := h.queryObservers(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(observers) == 0 {
		writeError(w, http.StatusBadRequest, "lat and lon are required when no observers are configured")
		return
	}
	start, err := queryTime(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	cfg := h.sweeper.Config()
	hours, err := queryFloat(r, "hours", defaultPassHours)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if hours <= 0 || hours > maxPassHours {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":     fmt.Sprintf("hours must be in (0, %g]", maxPassHours),
			"max_hours": maxPassHours,
		})
		return
	}
	minEl, err := queryFloat(r, "min_elevation", cfg.MinElevation)
	if err != nil || minEl < -90 || minEl > 90 {
		writeError(w, http.StatusBadRequest, "min_elevation must be a number in [-90, 90]")
		return
	}
	maxPasses := defaultMaxPasses
	if raw := r.URL.Query().Get("max_passes"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxMaxPasses {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("max_passes must be in [1, %d]", maxMaxPasses))
			return
		}
		maxPasses = n
	}

	es, err := h.store.Lookup(id)
	if err != nil {
		writeError(w, lookupStatus(err), err.Error())
		return
	}

	results := passes.Predict(r.Context(), passes.Request{
		Observer:     observers[0],
		Satellites:   []tle.ElementSet{es},
		Start:        start,
		HorizonHours: hours,
		MinElevation: minEl,
		MaxPasses:    maxPasses,
		Azimuth:      cfg.Azimuth,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"observer":      observers[0].Name,
		"site":          toGeodeticJSON(observers[0].Site),
		"start":         start,
		"horizon_hours": hours,
		"min_elevation": minEl,
		"satellite":     results[0],
	})
}

type viewJSON struct {
	Observer  string  `json:"observer"`
	NORADID   int     `json:"norad_id"`
	Azimuth   float64 `json:"azimuth_deg"`
	Elevation float64 `json:"elevation_deg"`
	Range     float64 `json:"range_km"`
}

type snapshotResponse struct {
	Time       time.Time  `json:"time"`
	Satellites int        `json:"satellites"`
	Failed     int        `json:"failed"`
	Degenerate int        `json:"degenerate"`
	Visible    []viewJSON `json:"visible"`
}

// snapshot serves GET /api/v1/snapshot: every configured observer's visible
// satellites at ?time.
func (h *handlers) snapshot(w http.ResponseWriter, r *http.Request) {
	t, err := queryTime(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	snap, err := h.sweeper.SnapshotAt(r.Context(), t)
	if err != nil {
		writeError(w, lookupStatus(err), err.Error())
		return
	}

	resp := snapshotResponse{
		Time:       snap.Time,
		Satellites: len(snap.Tracks),
		Failed:     snap.Failed,
		Visible:    []viewJSON{},
	}
	for _, v := range snap.Views {
		if v.Degenerate != "" {
			resp.Degenerate++
			continue
		}
		if !v.Visible {
			continue
		}
		resp.Visible = append(resp.Visible, viewJSON{
			Observer:  v.Observer,
			NORADID:   v.NORADID,
			Azimuth:   v.Look.AzimuthDeg(),
			Elevation: v.Look.ElevationDeg(),
			Range:     v.Look.Distance,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// tleMetadata serves GET /api/v1/tle/metadata.
func (h *handlers) tleMetadata(w http.ResponseWriter, r *http.Request) {
	ds, err := h.store.Current()
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"source":      ds.Source,
		"fetched_at":  ds.FetchedAt.UTC(),
		"age_seconds": h.store.AgeSeconds(),
		"count":       len(ds.Satellites),
		"epoch_min":   ds.EpochRange.Min,
		"epoch_max":   ds.EpochRange.Max,
	})
}
