package propagation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/zojak-ves/satview/internal/tle"
	"github.com/zojak-ves/satview/internal/tracking"
)

func testStore(sats ...tle.ElementSet) *tle.Store {
	store := tle.NewStore()
	store.Set(tle.NewDataset("test", time.Now(), sats))
	return store
}

var (
	issSet  = tle.ElementSet{NORADID: 25544, Name: "ISS", Line1: issLine1, Line2: issLine2}
	noaaSet = tle.ElementSet{NORADID: 33591, Name: "NOAA 19", Line1: noaaLine1, Line2: noaaLine2}
)

// TestSweeperSeries verifies snapshot generation over a horizon.
func TestSweeperSeries(t *testing.T) {
	cfg := SweepConfig{
		Workers:      2,
		Step:         5 * time.Second,
		Horizon:      15 * time.Second,
		MinElevation: 10,
	}
	sw := NewSweeper(testStore(issSet, noaaSet), []tracking.Observer{phoenix, sydney}, cfg, testLogger())

	series, err := sw.Series(context.Background(), issTime)
	if err != nil {
		t.Fatalf("Series failed: %v", err)
	}

	// Frames at 0s, 5s, 10s and 15s.
	if len(series) != 4 {
		t.Fatalf("got %d snapshots, want 4", len(series))
	}
	for i, snap := range series {
		want := issTime.Add(time.Duration(i) * cfg.Step)
		if !snap.Time.Equal(want) {
			t.Errorf("snapshot %d: time = %v, want %v", i, snap.Time, want)
		}
		if len(snap.Tracks) != 2 {
			t.Errorf("snapshot %d: %d tracks, want 2", i, len(snap.Tracks))
		}
		if len(snap.Views) != 4 {
			t.Errorf("snapshot %d: %d views, want 4", i, len(snap.Views))
		}
	}
}

func TestSweeperRunStopsOnError(t *testing.T) {
	cfg := SweepConfig{Workers: 1, Step: time.Second, Horizon: time.Minute}
	sw := NewSweeper(testStore(issSet), []tracking.Observer{phoenix}, cfg, testLogger())

	stop := errors.New("stop")
	calls := 0
	err := sw.Run(context.Background(), issTime, func(*Snapshot) error {
		calls++
		if calls == 3 {
			return stop
		}
		return nil
	})
	if !errors.Is(err, stop) {
		t.Errorf("err = %v, want %v", err, stop)
	}
	if calls != 3 {
		t.Errorf("callback ran %d times, want 3", calls)
	}
}

func TestSweeperRunBadStep(t *testing.T) {
	for _, step := range []time.Duration{0, -time.Second, 500 * time.Millisecond, time.Second - 1} {
		sw := NewSweeper(testStore(issSet), nil, SweepConfig{Step: step, Horizon: time.Minute}, testLogger())
		called := false
		err := sw.Run(context.Background(), issTime, func(*Snapshot) error {
			called = true
			return nil
		})
		if err == nil {
			t.Errorf("step %s: expected error", step)
		}
		if called {
			t.Errorf("step %s: snapshot delivered before rejection", step)
		}
	}
}

// TestSweeperNoDataset verifies error when no TLE data is loaded.
func TestSweeperNoDataset(t *testing.T) {
	cfg := SweepConfig{Workers: 2, Step: 5 * time.Second, Horizon: 60 * time.Second}
	sw := NewSweeper(tle.NewStore(), []tracking.Observer{phoenix}, cfg, testLogger())

	if _, err := sw.SnapshotAt(context.Background(), time.Now()); !errors.Is(err, tle.ErrNoDataset) {
		t.Fatalf("err = %v, want ErrNoDataset", err)
	}
	if _, err := sw.Track(25544); !errors.Is(err, tle.ErrNoDataset) {
		t.Fatalf("Track err = %v, want ErrNoDataset", err)
	}
}

func TestSweeperTrack(t *testing.T) {
	bad := tle.ElementSet{NORADID: 11111, Name: "BROKEN", Line1: "1 short", Line2: "2 short"}
	sw := NewSweeper(testStore(issSet, bad, issSet), nil, SweepConfig{Workers: 1}, testLogger())

	tr, err := sw.Track(25544)
	if err != nil {
		t.Fatalf("Track: %v", err)
	}
	if tr.Name != "ISS" || tr.Elements == nil || !tr.Time.IsZero() {
		t.Errorf("track = %+v, want initialised but not advanced", tr)
	}

	// Elements that fail to initialise are not tracked.
	if _, err := sw.Track(11111); !errors.Is(err, tle.ErrUnknownSatellite) {
		t.Errorf("err = %v, want ErrUnknownSatellite", err)
	}

	snap, err := sw.SnapshotAt(context.Background(), issTime)
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Tracks) != 1 {
		t.Errorf("duplicate NORAD IDs produced %d tracks, want 1", len(snap.Tracks))
	}
}

func TestSweeperObserversCopy(t *testing.T) {
	sw := NewSweeper(tle.NewStore(), []tracking.Observer{phoenix}, SweepConfig{}, testLogger())
	obs := sw.Observers()
	obs[0].Name = "changed"
	if sw.Observers()[0].Name != "phoenix" {
		t.Error("Observers exposed internal slice")
	}
}

// BenchmarkSnapshot1000 benchmarks evaluating 1000 satellites from two sites.
func BenchmarkSnapshot1000(b *testing.B) {
	sets := make([]tle.ElementSet, 1000)
	for i := range sets {
		sets[i] = tle.ElementSet{NORADID: 25544 + i, Name: "TEST", Line1: issLine1, Line2: issLine2}
	}

	cfg := SweepConfig{Workers: 4, Step: 5 * time.Second, Horizon: 5 * time.Second}
	sw := NewSweeper(testStore(sets...), []tracking.Observer{phoenix, sydney}, cfg, testLogger())
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := sw.SnapshotAt(ctx, issTime); err != nil {
			b.Fatal(err)
		}
	}
}
