package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cwbudde/tilefit/internal/pipeline"
	"github.com/cwbudde/tilefit/internal/reconstruct"
	"github.com/cwbudde/tilefit/internal/store"
)

// runJob executes a reconstruction job. If resultStore is not nil the trace is
// written while the job runs, the result with its images is saved when it
// ends, and the live images are released from memory so later requests read
// them from the store.
func runJob(ctx context.Context, jm *JobManager, resultStore store.Store, jobID string) error {
	job, exists := jm.GetJob(jobID)
	if !exists {
		return fmt.Errorf("job not found: %s", jobID)
	}

	if err := jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateRunning
	}); err != nil {
		return err
	}

	slog.Info("Starting job", "job_id", jobID, "ref", job.Config.RefPath, "tiles_dir", job.Config.TilesDir)

	in, err := pipeline.Load(job.Config)
	if err != nil {
		markJobFailed(jm, resultStore, jobID, err)
		return err
	}

	jm.SetReference(jobID, in.Reference)
	jm.UpdateJob(jobID, func(j *Job) {
		j.Tiles = len(in.Tiles)
		j.Remaining = len(in.Tiles)
	})

	var trace *store.TraceWriter
	if resultStore != nil {
		trace, err = resultStore.OpenTrace(jobID)
		if err != nil {
			slog.Warn("Trace disabled", "job_id", jobID, "error", err)
			trace = nil
		}
	}

	progress := publishProgress(jm, jobID)
	if trace != nil {
		progress = pipeline.Chain(progress, pipeline.TraceProgress(trace, in.Names))
	}

	outcome, runErr := in.Reconstruct(ctx, job.Config, progress)

	if trace != nil {
		if err := trace.Close(); err != nil {
			slog.Warn("Failed to close trace", "job_id", jobID, "error", err)
		}
	}

	if runErr != nil {
		if outcome != nil {
			jm.SetCanvas(jobID, outcome.Canvas)
			if resultStore != nil {
				savePartialImages(resultStore, jobID, outcome)
			}
		}
		if errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded) {
			markJobCancelled(jm, resultStore, jobID)
			return runErr
		}
		markJobFailed(jm, resultStore, jobID, runErr)
		return runErr
	}

	jm.SetCanvas(jobID, outcome.Canvas)

	// Images move to the store only once it holds them
	holder := resultStore
	if resultStore != nil {
		if _, err := pipeline.Persist(resultStore, jobID, job.Config, outcome); err != nil {
			// The job itself succeeded; only the artifacts are missing
			slog.Error("Failed to persist result", "job_id", jobID, "error", err)
			holder = nil
		}
	}

	endTime := time.Now()
	if err := jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCompleted
		j.Rounds = outcome.Rounds()
		j.Remaining = 0
		j.FinalScore = outcome.FinalScore
		j.EndTime = &endTime
	}); err != nil {
		return err
	}

	slog.Info("Job completed",
		"job_id", jobID,
		"elapsed", outcome.Elapsed,
		"rounds", outcome.Rounds(),
		"final_score", outcome.FinalScore,
	)

	finishJob(jm, holder, jobID, ProgressEvent{
		JobID:      jobID,
		State:      StateCompleted,
		Round:      outcome.Rounds(),
		Total:      len(in.Tiles),
		FinalScore: outcome.FinalScore,
		Timestamp:  time.Now(),
	})
	return nil
}

// finishJob publishes the terminal event and tears down the job's live state:
// SSE subscribers are closed out and, when a store holds the artifacts, the
// images are released.
func finishJob(jm *JobManager, resultStore store.Store, jobID string, event ProgressEvent) {
	jm.broadcaster.Broadcast(event)
	jm.broadcaster.CleanupJob(jobID)
	if resultStore != nil {
		jm.ReleaseImages(jobID)
	}
}

// savePartialImages stores the canvas and diff of a job that stopped early.
func savePartialImages(resultStore store.Store, jobID string, outcome *pipeline.Outcome) {
	if err := resultStore.SaveImage(jobID, store.CanvasImage, outcome.Canvas); err != nil {
		slog.Warn("Failed to save partial canvas", "job_id", jobID, "error", err)
	}
	if err := resultStore.SaveImage(jobID, store.DiffImage, outcome.Diff()); err != nil {
		slog.Warn("Failed to save partial diff", "job_id", jobID, "error", err)
	}
}

// publishProgress returns the engine callback that mirrors each placement into
// the job record and the broadcaster. It runs on the engine goroutine and
// never blocks: Broadcast drops events for slow subscribers.
func publishProgress(jm *JobManager, jobID string) reconstruct.ProgressFunc {
	return func(p reconstruct.Progress) {
		jm.SetCanvas(jobID, p.Canvas)
		jm.UpdateJob(jobID, func(j *Job) {
			j.Rounds = p.Round
			j.Remaining = p.Remaining
			j.LastScore = p.Score
		})

		jm.broadcaster.Broadcast(ProgressEvent{
			JobID:     jobID,
			State:     StateRunning,
			Round:     p.Round,
			Total:     p.Total,
			Remaining: p.Remaining,
			TileIndex: p.TileIndex,
			X:         p.X,
			Y:         p.Y,
			Width:     p.Width,
			Height:    p.Height,
			Score:     p.Score,
			Timestamp: time.Now(),
		})
	}
}

// markJobFailed marks a job as failed with an error message
func markJobFailed(jm *JobManager, resultStore store.Store, jobID string, err error) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateFailed
		j.Error = err.Error()
		j.EndTime = &endTime
	})
	finishJob(jm, resultStore, jobID, ProgressEvent{JobID: jobID, State: StateFailed, Error: err.Error(), Timestamp: endTime})
	slog.Error("Job failed", "job_id", jobID, "error", err)
}

// markJobCancelled marks a job as cancelled
func markJobCancelled(jm *JobManager, resultStore store.Store, jobID string) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCancelled
		j.EndTime = &endTime
	})
	finishJob(jm, resultStore, jobID, ProgressEvent{JobID: jobID, State: StateCancelled, Timestamp: endTime})
	slog.Info("Job cancelled", "job_id", jobID)
}
