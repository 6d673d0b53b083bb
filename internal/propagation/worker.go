package propagation

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/zojak-ves/satview/internal/metrics"
	"github.com/zojak-ves/satview/internal/tracking"
	"github.com/zojak-ves/satview/internal/transform"
)

// evalJob is a unit of work for the worker pool.
type evalJob struct {
	index int
	track tracking.SatelliteTrack
}

// evalResult is the output of advancing one satellite and observing it.
type evalResult struct {
	index int
	track tracking.SatelliteTrack
	views []View
	err   error
}

// WorkerPool manages a fixed number of goroutines that advance satellites and
// compute every observer's look angle to them.
type WorkerPool struct {
	workers      int
	solver       transform.LookAngleSolver
	minElevation float64
	logger       *slog.Logger
}

// NewWorkerPool creates a worker pool with the given number of workers.
func NewWorkerPool(workers int, solver transform.LookAngleSolver, minElevation float64, logger *slog.Logger) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	return &WorkerPool{
		workers:      workers,
		solver:       solver,
		minElevation: minElevation,
		logger:       logger,
	}
}

// Evaluate advances every track to t and computes each observer's view of
// it. Satellites that fail to propagate are logged and counted in
// Snapshot.Failed. Tracks and views keep the input order.
//
// Every job works on its own copies of the track and observers, so callers
// may reuse the input slices after Evaluate returns.
func (wp *WorkerPool) Evaluate(ctx context.Context, tracks []tracking.SatelliteTrack, observers []tracking.Observer, t time.Time) *Snapshot {
	snap := &Snapshot{Time: t}
	if len(tracks) == 0 {
		return snap
	}

	// Observer inertial states depend only on t.
	sited := make([]tracking.Observer, len(observers))
	for i, o := range observers {
		sited[i] = o.At(t)
	}

	jobs := make(chan evalJob, wp.workers*2)
	results := make(chan evalResult, wp.workers*2)

	// Start workers.
	var wg sync.WaitGroup
	for i := 0; i < wp.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				result := wp.evaluateSingle(job, sited, t)
				select {
				case results <- result:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	// Feed jobs in a goroutine.
	go func() {
		defer close(jobs)
		for i, track := range tracks {
			select {
			case jobs <- evalJob{index: i, track: track}:
			case <-ctx.Done():
				return
			}
		}
	}()

	// Close results when all workers are done.
	go func() {
		wg.Wait()
		close(results)
	}()

	// Collect into per-job slots.
	slots := make([]*evalResult, len(tracks))
	for result := range results {
		r := result
		slots[r.index] = &r
	}

	views := 0
	for _, r := range slots {
		if r == nil {
			// Never ran: cancelled before dispatch.
			continue
		}
		if r.err != nil {
			snap.Failed++
			wp.logger.Warn("propagation failed",
				"norad_id", r.track.NORADID,
				"error", r.err,
			)
			continue
		}
		snap.Tracks = append(snap.Tracks, r.track)
		snap.Views = append(snap.Views, r.views...)
		views += len(r.views)
		metrics.ObserveSolverIterations(r.track.SolverIterations)
	}
	metrics.RecordLookAngles(views)

	return snap
}

// evaluateSingle advances one track to t and observes it from every site.
func (wp *WorkerPool) evaluateSingle(job evalJob, observers []tracking.Observer, t time.Time) evalResult {
	track, err := job.track.Advance(t)
	if err != nil {
		return evalResult{index: job.index, track: job.track, err: err}
	}

	views := make([]View, 0, len(observers))
	for _, o := range observers {
		seen, err := o.ObserveChecked(track, t, wp.solver)
		v := View{
			Observer: o.Name,
			NORADID:  track.NORADID,
			Look:     seen.Look,
		}
		var gerr *transform.GeometryError
		if errors.As(err, &gerr) {
			v.Degenerate = gerr.Kind
			metrics.RecordDegenerate(string(gerr.Kind))
		} else {
			v.Visible = tracking.Visible(seen.Look, wp.minElevation)
		}
		views = append(views, v)
	}

	return evalResult{index: job.index, track: track, views: views}
}
