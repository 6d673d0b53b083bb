// Package config loads service settings from defaults, an optional config
// file and SATVIEW_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/zojak-ves/satview/internal/auth"
	"github.com/zojak-ves/satview/internal/tracing"
	"github.com/zojak-ves/satview/internal/tracking"
	"github.com/zojak-ves/satview/internal/transform"
)

// EnvPrefix is prepended to every environment key.
const EnvPrefix = "SATVIEW"

// Default observer sites: the Phoenix gateway and a user terminal.
const defaultObservers = "phoenix:33.4484:-112.0740:0,terminal:48.0:0.0:0"

// TLEConfig says where element sets come from.
type TLEConfig struct {
	File        string // local file; disables fetching when set
	SourceURL   string
	ExtraURLs   []string
	ArchiveDir  string
	ArchiveKeep int
	MaxAge      time.Duration // refetch interval when fetching
}

// SweepConfig controls batch evaluation.
type SweepConfig struct {
	Workers      int
	Step         time.Duration
	Horizon      time.Duration
	MinElevation float64 // degrees
	Azimuth      transform.AzimuthMode
}

// StreamConfig limits live look angle streams.
type StreamConfig struct {
	MaxPerIP  int
	Keepalive time.Duration
}

// Config is the complete service configuration.
type Config struct {
	HTTPAddr   string
	LogLevel   string
	LogFormat  string
	TrustProxy bool

	TLE       TLEConfig
	Sweep     SweepConfig
	Stream    StreamConfig
	Observers []tracking.Observer
	Auth      auth.Config
	Tracing   tracing.Config
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("trust_proxy", false)

	v.SetDefault("tle_file", "")
	v.SetDefault("tle_source_url", "https://celestrak.org/NORAD/elements/gp.php?GROUP=stations&FORMAT=tle")
	v.SetDefault("tle_extra_urls", "")
	v.SetDefault("tle_archive_dir", "/tmp/satview/tle")
	v.SetDefault("tle_archive_keep", 5)
	v.SetDefault("tle_max_age", "24h")

	v.SetDefault("observers", defaultObservers)
	v.SetDefault("min_elevation", 15.0)
	v.SetDefault("step", "1s")
	v.SetDefault("horizon", "10m")
	v.SetDefault("workers", runtime.NumCPU())
	v.SetDefault("azimuth_mode", "reference")

	v.SetDefault("stream_max_per_ip", 10)
	v.SetDefault("stream_keepalive", "30s")

	v.SetDefault("auth_enabled", false)
	v.SetDefault("auth_token", "")

	v.SetDefault("tracing_enabled", false)
	v.SetDefault("tracing_exporter", "stdout")
	v.SetDefault("tracing_endpoint", "")
	v.SetDefault("tracing_service_name", "satview")
	v.SetDefault("tracing_sample_ratio", 1.0)
}

// Load reads configuration. path may be empty, in which case only defaults
// and the environment apply. Invalid optional values fall back to their
// defaults with a warning; invalid required values are errors.
func Load(path string, logger *slog.Logger) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	cfg := Config{
		HTTPAddr:   v.GetString("http_addr"),
		LogLevel:   v.GetString("log_level"),
		LogFormat:  v.GetString("log_format"),
		TrustProxy: v.GetBool("trust_proxy"),
		TLE: TLEConfig{
			File:        v.GetString("tle_file"),
			SourceURL:   v.GetString("tle_source_url"),
			ExtraURLs:   stringList(v, "tle_extra_urls"),
			ArchiveDir:  v.GetString("tle_archive_dir"),
			ArchiveKeep: v.GetInt("tle_archive_keep"),
			MaxAge:      duration(v, "tle_max_age", 24*time.Hour, logger),
		},
		Stream: StreamConfig{
			MaxPerIP:  v.GetInt("stream_max_per_ip"),
			Keepalive: duration(v, "stream_keepalive", 30*time.Second, logger),
		},
		Auth: auth.Config{
			Enabled: v.GetBool("auth_enabled"),
			Token:   v.GetString("auth_token"),
		},
		Tracing: tracing.Config{
			Enabled:     v.GetBool("tracing_enabled"),
			ServiceName: v.GetString("tracing_service_name"),
			Exporter:    v.GetString("tracing_exporter"),
			Endpoint:    v.GetString("tracing_endpoint"),
			SampleRatio: v.GetFloat64("tracing_sample_ratio"),
		},
	}

	if cfg.Auth.Enabled && cfg.Auth.Token == "" {
		return Config{}, errors.New("SATVIEW_AUTH_TOKEN is required when auth is enabled")
	}

	observers, err := ParseObservers(stringList(v, "observers"))
	if err != nil {
		return Config{}, err
	}
	cfg.Observers = observers

	mode, err := transform.ParseAzimuthMode(v.GetString("azimuth_mode"))
	if err != nil {
		return Config{}, err
	}

	cfg.Sweep = SweepConfig{
		Workers:      v.GetInt("workers"),
		Step:         duration(v, "step", time.Second, logger),
		Horizon:      duration(v, "horizon", 10*time.Minute, logger),
		MinElevation: v.GetFloat64("min_elevation"),
		Azimuth:      mode,
	}
	if cfg.Sweep.Workers < 1 {
		logger.Warn("invalid workers value, using default", "value", cfg.Sweep.Workers, "default", runtime.NumCPU())
		cfg.Sweep.Workers = runtime.NumCPU()
	}
	if cfg.Sweep.MinElevation < -90 || cfg.Sweep.MinElevation > 90 {
		logger.Warn("invalid min_elevation value, using default", "value", cfg.Sweep.MinElevation, "default", 15)
		cfg.Sweep.MinElevation = 15
	}
	if r := cfg.Tracing.SampleRatio; r < 0 || r > 1 {
		logger.Warn("invalid tracing_sample_ratio value, using default", "value", r, "default", 1)
		cfg.Tracing.SampleRatio = 1
	}
	if cfg.Stream.MaxPerIP < 1 {
		logger.Warn("invalid stream_max_per_ip value, using default", "value", cfg.Stream.MaxPerIP, "default", 10)
		cfg.Stream.MaxPerIP = 10
	}
	if cfg.TLE.ArchiveKeep < 1 {
		logger.Warn("invalid tle_archive_keep value, using default", "value", cfg.TLE.ArchiveKeep, "default", 5)
		cfg.TLE.ArchiveKeep = 5
	}

	return cfg, nil
}

// stringList reads key as either a list (config files) or a comma-separated
// string (environment).
func stringList(v *viper.Viper, key string) []string {
	var parts []string
	switch raw := v.Get(key).(type) {
	case string:
		parts = strings.Split(raw, ",")
	default:
		parts = v.GetStringSlice(key)
	}

	var out []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// duration accepts a Go duration string or a bare number of seconds.
func duration(v *viper.Viper, key string, def time.Duration, logger *slog.Logger) time.Duration {
	raw := strings.TrimSpace(v.GetString(key))
	d, err := time.ParseDuration(raw)
	if err != nil {
		if n, nerr := strconv.Atoi(raw); nerr == nil {
			d, err = time.Duration(n)*time.Second, nil
		}
	}
	if err != nil || d <= 0 {
		logger.Warn("invalid "+key+" value, using default", "value", raw, "default", def.String())
		return def
	}
	return d
}

// ParseObservers parses observer definitions of the form name:lat:lon:alt, with
// lat/lon in degrees and alt in km. alt may be omitted. Longitudes are
// wrapped into [-180, 180], so east-positive [0, 360) values are accepted.
func ParseObservers(defs []string) ([]tracking.Observer, error) {
	out := make([]tracking.Observer, 0, len(defs))
	seen := make(map[string]bool, len(defs))
	for _, def := range defs {
		fields := strings.Split(def, ":")
		if len(fields) != 3 && len(fields) != 4 {
			return nil, fmt.Errorf("observer %q: want name:lat:lon[:alt]", def)
		}
		name := strings.TrimSpace(fields[0])
		if name == "" {
			return nil, fmt.Errorf("observer %q: empty name", def)
		}
		if seen[name] {
			return nil, fmt.Errorf("observer %q: duplicate name", name)
		}
		seen[name] = true

		vals := make([]float64, 3)
		for i, f := range fields[1:] {
			x, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
			if err != nil {
				return nil, fmt.Errorf("observer %q: %w", name, err)
			}
			vals[i] = x
		}
		lat, lon, alt := vals[0], vals[1], vals[2]
		if math.IsNaN(lat) || lat < -90 || lat > 90 {
			return nil, fmt.Errorf("observer %q: latitude %v out of range", name, lat)
		}
		if math.IsNaN(lon) || math.IsInf(lon, 0) || math.IsNaN(alt) || math.IsInf(alt, 0) {
			return nil, fmt.Errorf("observer %q: non-finite coordinate", name)
		}
		// Accept [0, 360) producers; sites are stored in [-180, 180].
		lon = transform.ToDegrees(transform.WrapSignedPi(transform.ToRadians(lon)))
		out = append(out, tracking.NewObserver(name, lat, lon, alt))
	}
	return out, nil
}
