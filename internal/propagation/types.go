package propagation

import (
	"time"

	"github.com/zojak-ves/satview/internal/tracking"
	"github.com/zojak-ves/satview/internal/transform"
)

// Snapshot is every satellite in a dataset, and every observer's view of it,
// at a single instant.
type Snapshot struct {
	Time   time.Time
	Tracks []tracking.SatelliteTrack // satellites that propagated successfully
	Views  []View                    // one per (observer, track) pair
	Failed int                       // satellites that failed to propagate
}

// Visible returns the views at or above the minimum elevation.
func (s *Snapshot) Visible() []View {
	var out []View
	for _, v := range s.Views {
		if v.Visible {
			out = append(out, v)
		}
	}
	return out
}

// View is one observer's look angle to one satellite.
type View struct {
	Observer   string
	NORADID    int
	Look       transform.LookAngle
	Visible    bool
	Degenerate transform.DegeneracyKind // empty when the geometry was well defined
}

// SweepConfig holds sweep configuration.
type SweepConfig struct {
	Workers      int           // worker pool size (default: runtime.NumCPU())
	Horizon      time.Duration // length of a series (default: 600s)
	MinElevation float64       // degrees
	Azimuth      transform.AzimuthMode

	// Step is the interval between snapshots (default: 1s). SGP4 is fed whole
	// seconds, so Run rejects steps under a second.
	Step time.Duration
}
