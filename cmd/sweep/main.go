// Command sweep runs one batch evaluation over a TLE dataset and logs every
// time a satellite rises above or drops below the minimum elevation for one
// of the configured observers.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/zojak-ves/satview/internal/config"
	"github.com/zojak-ves/satview/internal/logging"
	"github.com/zojak-ves/satview/internal/propagation"
	"github.com/zojak-ves/satview/internal/tle"
	"github.com/zojak-ves/satview/internal/tracing"
)

func main() {
	configPath := flag.String("config", "", "path to a config file")
	tleFile := flag.String("tle", "", "TLE file; overrides the configured source")
	startFlag := flag.String("start", "", "RFC3339 start time (default: earliest epoch in the dataset)")
	horizon := flag.Duration("horizon", 0, "sweep length (default: configured horizon)")
	step := flag.Duration("step", 0, "time between snapshots (default: configured step)")
	flag.Parse()

	logger := logging.New("info", "text", os.Stderr)
	if err := run(*configPath, *tleFile, *startFlag, *horizon, *step, logger); err != nil {
		logger.Error("sweep failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath, tleFile, startFlag string, horizon, step time.Duration, boot *slog.Logger) error {
	cfg, err := config.Load(configPath, boot)
	if err != nil {
		return err
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	if tleFile != "" {
		cfg.TLE.File = tleFile
	}
	if horizon > 0 {
		cfg.Sweep.Horizon = horizon
	}
	if step > 0 {
		cfg.Sweep.Step = step
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing, logger)
	if err != nil {
		return fmt.Errorf("tracing setup: %w", err)
	}
	defer tracing.ShutdownWithTimeout(context.Background(), shutdownTracing, logger)

	var ds *tle.Dataset
	if cfg.TLE.File != "" {
		ds, err = tle.LoadFile(cfg.TLE.File, logger)
	} else {
		archive := tle.NewArchive(cfg.TLE.ArchiveDir, cfg.TLE.ArchiveKeep)
		ds, err = tle.NewFetcher(cfg.TLE.SourceURL, logger, cfg.TLE.ExtraURLs...).LoadWithArchive(ctx, archive)
	}
	if err != nil {
		return fmt.Errorf("loading TLE data: %w", err)
	}
	logger.Info("loaded TLE data", "source", ds.Source, "count", len(ds.Satellites))

	start := ds.EpochRange.Min
	if startFlag != "" {
		start, err = time.Parse(time.RFC3339, startFlag)
		if err != nil {
			return fmt.Errorf("invalid -start: %w", err)
		}
	}

	store := tle.NewStore()
	store.Set(ds)
	sweeper := propagation.NewSweeper(store, cfg.Observers, propagation.SweepConfig{
		Workers:      cfg.Sweep.Workers,
		Step:         cfg.Sweep.Step,
		Horizon:      cfg.Sweep.Horizon,
		MinElevation: cfg.Sweep.MinElevation,
		Azimuth:      cfg.Sweep.Azimuth,
	}, logger)

	logger.Info("sweep started",
		"start", start.Format(time.RFC3339),
		"horizon", cfg.Sweep.Horizon.String(),
		"step", cfg.Sweep.Step.String(),
		"observers", len(cfg.Observers),
		"min_elevation_deg", cfg.Sweep.MinElevation,
	)

	tracker := newVisibilityTracker(logger)
	frames := 0
	err = sweeper.Run(ctx, start, func(snap *propagation.Snapshot) error {
		frames++
		tracker.update(snap)
		return nil
	})
	if err != nil {
		return err
	}

	logger.Info("sweep finished",
		"frames", frames,
		"rises", tracker.rises,
		"sets", tracker.sets,
		"still_visible", len(tracker.visible),
	)
	return nil
}

type pairKey struct {
	observer string
	noradID  int
}

// visibilityTracker logs transitions of each (observer, satellite) pair
// across consecutive snapshots.
type visibilityTracker struct {
	logger  *slog.Logger
	visible map[pairKey]bool
	rises   int
	sets    int
}

func newVisibilityTracker(logger *slog.Logger) *visibilityTracker {
	return &visibilityTracker{logger: logger, visible: make(map[pairKey]bool)}
}

func (vt *visibilityTracker) update(snap *propagation.Snapshot) {
	for _, v := range snap.Views {
		key := pairKey{observer: v.Observer, noradID: v.NORADID}
		was := vt.visible[key]
		switch {
		case v.Visible && !was:
			vt.visible[key] = true
			vt.rises++
			vt.logger.Info("visibility start",
				"time", snap.Time.Format(time.RFC3339),
				"observer", v.Observer,
				"norad_id", v.NORADID,
				"azimuth_deg", v.Look.AzimuthDeg(),
				"elevation_deg", v.Look.ElevationDeg(),
				"range_km", v.Look.Distance,
			)
		case !v.Visible && was:
			delete(vt.visible, key)
			vt.sets++
			vt.logger.Info("visibility end",
				"time", snap.Time.Format(time.RFC3339),
				"observer", v.Observer,
				"norad_id", v.NORADID,
				"azimuth_deg", v.Look.AzimuthDeg(),
				"elevation_deg", v.Look.ElevationDeg(),
			)
		}
		if v.Degenerate != "" {
			vt.logger.Debug("degenerate geometry",
				"time", snap.Time.Format(time.RFC3339),
				"observer", v.Observer,
				"norad_id", v.NORADID,
				"kind", string(v.Degenerate),
			)
		}
	}
}
