package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/zojak-ves/satview/internal/api"
	"github.com/zojak-ves/satview/internal/config"
	"github.com/zojak-ves/satview/internal/logging"
	"github.com/zojak-ves/satview/internal/metrics"
	"github.com/zojak-ves/satview/internal/propagation"
	"github.com/zojak-ves/satview/internal/stream"
	"github.com/zojak-ves/satview/internal/tle"
	"github.com/zojak-ves/satview/internal/tracing"
)

func main() {
	configPath := flag.String("config", "", "path to a config file (yaml, json or toml)")
	flag.Parse()

	// Config errors are reported before the configured logger exists.
	boot := logging.New("info", "json", os.Stdout)
	cfg, err := config.Load(*configPath, boot)
	if err != nil {
		boot.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing, logger)
	if err != nil {
		logger.Error("tracing setup failed", "error", err)
		os.Exit(1)
	}
	defer tracing.ShutdownWithTimeout(context.Background(), shutdownTracing, logger)

	store := tle.NewStore()
	archive := tle.NewArchive(cfg.TLE.ArchiveDir, cfg.TLE.ArchiveKeep)
	fetcher := tle.NewFetcher(cfg.TLE.SourceURL, logger, cfg.TLE.ExtraURLs...)

	if ds, err := loadDataset(ctx, cfg.TLE, fetcher, archive, logger); err != nil {
		// Readiness stays failed until a refresh succeeds.
		logger.Warn("starting without TLE data", "error", err)
	} else {
		store.Set(ds)
		logger.Info("loaded TLE data",
			"source", ds.Source,
			"count", len(ds.Satellites),
			"fetched_at", ds.FetchedAt.Format(time.RFC3339),
		)
	}

	logger.Info("sweep config",
		"workers", cfg.Sweep.Workers,
		"step_seconds", cfg.Sweep.Step.Seconds(),
		"horizon_seconds", cfg.Sweep.Horizon.Seconds(),
		"min_elevation_deg", cfg.Sweep.MinElevation,
		"observers", len(cfg.Observers),
	)
	sweeper := propagation.NewSweeper(store, cfg.Observers, propagation.SweepConfig{
		Workers:      cfg.Sweep.Workers,
		Step:         cfg.Sweep.Step,
		Horizon:      cfg.Sweep.Horizon,
		MinElevation: cfg.Sweep.MinElevation,
		Azimuth:      cfg.Sweep.Azimuth,
	}, logger)

	srv := api.NewServer(api.Options{
		Addr:       cfg.HTTPAddr,
		Auth:       cfg.Auth,
		TrustProxy: cfg.TrustProxy,
		Stream: stream.Config{
			MaxConcurrentPerIP: cfg.Stream.MaxPerIP,
			KeepaliveInterval:  cfg.Stream.Keepalive,
		},
	}, logger, store, sweeper)

	if cfg.TLE.File == "" {
		go refreshLoop(ctx, cfg.TLE.MaxAge, store, fetcher, archive, logger)
	}

	// Background goroutine to update TLE dataset age gauge.
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if age := store.AgeSeconds(); age >= 0 {
					metrics.SetDatasetAge(age)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		logger.Info("starting server", "addr", cfg.HTTPAddr, "auth_enabled", cfg.Auth.Enabled)
		if err := srv.ListenAndServe(); err != nil {
			logger.Error("server listen error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.HTTPServer().Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// loadDataset reads the configured TLE file, or fetches the configured
// sources with the archive as fallback.
func loadDataset(ctx context.Context, cfg config.TLEConfig, fetcher *tle.Fetcher, archive *tle.Archive, logger *slog.Logger) (*tle.Dataset, error) {
	if cfg.File != "" {
		return tle.LoadFile(cfg.File, logger)
	}
	return fetcher.LoadWithArchive(ctx, archive)
}

// refreshLoop refetches element sets every interval. A failed refresh keeps
// the current dataset rather than reloading the archive.
func refreshLoop(ctx context.Context, interval time.Duration, store *tle.Store, fetcher *tle.Fetcher, archive *tle.Archive, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			store.Lock()
			ds, err := fetcher.LoadAndArchive(ctx, archive)
			if err == nil {
				store.Set(ds)
			}
			store.Unlock()

			if err != nil {
				logger.Warn("TLE refresh failed", "error", err)
				continue
			}
			logger.Info("refreshed TLE data", "source", ds.Source, "count", len(ds.Satellites))
		case <-ctx.Done():
			return
		}
	}
}
