package propagation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/zojak-ves/satview/internal/metrics"
	"github.com/zojak-ves/satview/internal/tle"
	"github.com/zojak-ves/satview/internal/tracking"
	"github.com/zojak-ves/satview/internal/transform"
)

var tracer = otel.Tracer("github.com/zojak-ves/satview/internal/propagation")

// trackCache holds initialised tracks for a specific dataset.
// Immutable after construction; safe for concurrent reads.
type trackCache struct {
	tracks    []tracking.SatelliteTrack
	byID      map[int]int // NORAD ID -> index into tracks
	fetchedAt time.Time
}

// Sweeper evaluates every satellite in the current dataset against a fixed
// set of observers.
type Sweeper struct {
	store     *tle.Store
	pool      *WorkerPool
	config    SweepConfig
	observers []tracking.Observer
	logger    *slog.Logger
	cache     atomic.Pointer[trackCache]
	cacheMu   sync.Mutex // serializes cache rebuilds
}

// NewSweeper creates a sweeper over store for the given observers.
func NewSweeper(store *tle.Store, observers []tracking.Observer, config SweepConfig, logger *slog.Logger) *Sweeper {
	pool := NewWorkerPool(config.Workers, transform.LookAngleSolver{Azimuth: config.Azimuth}, config.MinElevation, logger)
	obs := make([]tracking.Observer, len(observers))
	copy(obs, observers)
	return &Sweeper{
		store:     store,
		pool:      pool,
		config:    config,
		observers: obs,
		logger:    logger,
	}
}

// Observers returns a copy of the configured observers.
func (s *Sweeper) Observers() []tracking.Observer {
	out := make([]tracking.Observer, len(s.observers))
	copy(out, s.observers)
	return out
}

// Config returns the sweep configuration.
func (s *Sweeper) Config() SweepConfig { return s.config }

// cachedTracks returns initialised tracks for the given dataset.
// Rebuilds the cache if the dataset has changed (double-checked locking).
func (s *Sweeper) cachedTracks(ds *tle.Dataset) *trackCache {
	if c := s.cache.Load(); c != nil && c.fetchedAt.Equal(ds.FetchedAt) {
		return c
	}

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	if c := s.cache.Load(); c != nil && c.fetchedAt.Equal(ds.FetchedAt) {
		return c
	}

	c := &trackCache{
		tracks:    make([]tracking.SatelliteTrack, 0, len(ds.Satellites)),
		byID:      make(map[int]int, len(ds.Satellites)),
		fetchedAt: ds.FetchedAt,
	}
	var skipped int
	for _, es := range ds.Satellites {
		if _, ok := c.byID[es.NORADID]; ok {
			continue
		}
		sp, err := NewSGP4Propagator(es.Line1, es.Line2, es.NORADID)
		if err != nil {
			s.logger.Warn("sgp4 init failed", "norad_id", es.NORADID, "error", err)
			skipped++
			continue
		}
		c.byID[es.NORADID] = len(c.tracks)
		c.tracks = append(c.tracks, tracking.NewSatelliteTrack(es.NORADID, es.Name, sp))
	}

	s.logger.Info("track cache rebuilt",
		"cached", len(c.tracks),
		"skipped", skipped,
		"dataset_fetched_at", ds.FetchedAt.UTC().Format(time.RFC3339),
	)
	s.cache.Store(c)
	return c
}

// Track returns the initialised, not yet advanced, track for a satellite in
// the current dataset.
func (s *Sweeper) Track(noradID int) (tracking.SatelliteTrack, error) {
	ds, err := s.store.Current()
	if err != nil {
		return tracking.SatelliteTrack{}, err
	}
	c := s.cachedTracks(ds)
	i, ok := c.byID[noradID]
	if !ok {
		return tracking.SatelliteTrack{}, fmt.Errorf("NORAD %d: %w", noradID, tle.ErrUnknownSatellite)
	}
	return c.tracks[i], nil
}

// SnapshotAt evaluates the current dataset at t.
func (s *Sweeper) SnapshotAt(ctx context.Context, t time.Time) (*Snapshot, error) {
	ds, err := s.store.Current()
	if err != nil {
		return nil, err
	}
	c := s.cachedTracks(ds)

	ctx, span := tracer.Start(ctx, "sweep.snapshot", trace.WithAttributes(
		attribute.Int("satellite_count", len(c.tracks)),
		attribute.Int("observer_count", len(s.observers)),
		attribute.String("target_time", t.UTC().Format(time.RFC3339)),
	))
	defer span.End()

	s.logger.Debug("evaluating",
		"satellite_count", len(c.tracks),
		"target_time", t.UTC().Format(time.RFC3339),
		"workers", s.pool.workers,
	)

	start := time.Now()
	snap := s.pool.Evaluate(ctx, c.tracks, s.observers, t)
	duration := time.Since(start)

	metrics.RecordPropagation(duration, len(snap.Tracks), snap.Failed)
	span.SetAttributes(
		attribute.Int("propagated", len(snap.Tracks)),
		attribute.Int("failed", snap.Failed),
	)

	s.logger.Debug("evaluation complete",
		"success", len(snap.Tracks),
		"errors", snap.Failed,
		"duration_ms", duration.Milliseconds(),
	)

	return snap, ctx.Err()
}

// Run evaluates snapshots from start over the configured horizon at the
// configured step, handing each to fn in time order. It stops at the first
// error from fn or on context cancellation.
func (s *Sweeper) Run(ctx context.Context, start time.Time, fn func(*Snapshot) error) error {
	if s.config.Step < time.Second {
		return fmt.Errorf("sweep step must be at least 1s, got %s", s.config.Step)
	}
	numFrames := int(s.config.Horizon/s.config.Step) + 1

	for i := 0; i < numFrames; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		target := start.Add(time.Duration(i) * s.config.Step)
		snap, err := s.SnapshotAt(ctx, target)
		if err != nil {
			return fmt.Errorf("snapshot %d at %s: %w", i, target.Format(time.RFC3339), err)
		}
		if err := fn(snap); err != nil {
			return err
		}
	}
	return nil
}

// Series collects the snapshots Run produces.
func (s *Sweeper) Series(ctx context.Context, start time.Time) ([]*Snapshot, error) {
	var out []*Snapshot
	err := s.Run(ctx, start, func(snap *Snapshot) error {
		out = append(out, snap)
		return nil
	})
	return out, err
}
