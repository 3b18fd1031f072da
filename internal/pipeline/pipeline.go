// Package pipeline wires the loader, the scorer registry and the
// reconstruction engine into a single job used by both the CLI and the
// server.
package pipeline

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"runtime"
	"time"

	"github.com/cwbudde/tilefit/internal/pixel"
	"github.com/cwbudde/tilefit/internal/reconstruct"
	"github.com/cwbudde/tilefit/internal/score"
	"github.com/cwbudde/tilefit/internal/store"
	"github.com/cwbudde/tilefit/internal/tiles"
)

// Config describes one reconstruction job. It is the persisted form, so a
// stored job can be rerun from its result.json alone.
type Config = store.JobConfig

// WithDefaults fills unset fields. Zero MinTileSize and EdgeTolerance select
// the defaults of 5.
func WithDefaults(cfg Config) Config {
	cfg.Scorer = string(score.NormalizeName(cfg.Scorer))
	if cfg.MinTileSize <= 0 {
		cfg.MinTileSize = tiles.DefaultMinSize
	}
	if cfg.EdgeTolerance <= 0 {
		cfg.EdgeTolerance = reconstruct.DefaultEdgeTolerance
	}
	if cfg.Workers < 0 {
		cfg.Workers = 0
	}
	return cfg
}

// Validate reports the first problem with cfg.
func Validate(cfg Config) error {
	if cfg.RefPath == "" {
		return &store.ValidationError{Field: "refPath", Reason: "is required"}
	}
	if cfg.TilesDir == "" {
		return &store.ValidationError{Field: "tilesDir", Reason: "is required"}
	}
	if _, err := score.New(cfg.Scorer, 1); err != nil {
		return &store.ValidationError{Field: "scorer", Reason: err.Error()}
	}
	return nil
}

// Input holds the decoded images of a job.
type Input struct {
	Reference *image.NRGBA
	Tiles     []*image.NRGBA
	Names     []string // File name per entry of Tiles
	Loaded    int      // Files decoded before filtering
}

// Load decodes the reference and the tile directory, then drops tiles below
// the size floor.
func Load(cfg Config) (*Input, error) {
	ref, err := tiles.LoadReference(cfg.RefPath)
	if err != nil {
		return nil, fmt.Errorf("reference: %w", err)
	}

	all, names, err := tiles.LoadDir(cfg.TilesDir)
	if err != nil {
		return nil, fmt.Errorf("tiles: %w", err)
	}

	in := &Input{Reference: ref, Loaded: len(all)}
	for i, tile := range all {
		if tiles.Keep(tile, cfg.MinTileSize) {
			in.Tiles = append(in.Tiles, tile)
			in.Names = append(in.Names, names[i])
		} else {
			slog.Debug("Skipping small tile", "name", names[i], "size", tile.Bounds().Size())
		}
	}

	slog.Info("Loaded job input",
		"ref", cfg.RefPath,
		"width", ref.Bounds().Dx(),
		"height", ref.Bounds().Dy(),
		"loaded", in.Loaded,
		"kept", len(in.Tiles),
	)
	return in, nil
}

// Outcome is a finished (or cancelled) reconstruction with its summary
// measurements.
type Outcome struct {
	*reconstruct.Result

	Input      *Input
	FinalScore float64
	Digest     string
}

// Diff returns the per-channel difference between the reference and the
// canvas.
func (o *Outcome) Diff() *image.NRGBA {
	return pixel.Diff(o.Input.Reference, o.Canvas)
}

// Summary builds the persisted form of the outcome.
func (o *Outcome) Summary(jobID string, cfg Config) *store.Result {
	b := o.Canvas.Bounds()
	return &store.Result{
		JobID:        jobID,
		Config:       cfg,
		Width:        b.Dx(),
		Height:       b.Dy(),
		Loaded:       o.Input.Loaded,
		Tiles:        len(o.Input.Tiles),
		Rounds:       o.Rounds(),
		FinalScore:   o.FinalScore,
		CanvasDigest: o.Digest,
		Elapsed:      o.Elapsed,
		Timestamp:    time.Now(),
	}
}

// Reconstruct runs the engine configured by cfg over in. The progress
// callback may be nil. On cancellation the partial outcome is returned with
// the context error.
func (in *Input) Reconstruct(ctx context.Context, cfg Config, progress reconstruct.ProgressFunc) (*Outcome, error) {
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	scorer, err := candidateScorer(cfg.Scorer)
	if err != nil {
		return nil, err
	}

	engine := reconstruct.New(
		reconstruct.WithScorer(scorer),
		reconstruct.WithWorkers(workers),
		reconstruct.WithEdgeTolerance(cfg.EdgeTolerance),
		reconstruct.WithProgress(progress),
	)

	// The engine drains its slice of tiles; keep ours intact for reruns
	pool := append([]*image.NRGBA(nil), in.Tiles...)
	result, runErr := engine.Run(ctx, in.Reference, pool)

	outcome := &Outcome{
		Result:     result,
		Input:      in,
		FinalScore: (&score.MSE{Workers: workers}).Score(in.Reference, result.Canvas),
		Digest:     pixel.Digest(result.Canvas),
	}
	return outcome, runErr
}

// candidateScorer builds the per-candidate scorer. The engine already fans
// candidates out over the workers, so each score runs on a single goroutine.
func candidateScorer(name string) (score.Scorer, error) {
	return score.New(name, 1)
}

// TraceProgress returns a progress callback that appends every placement to
// tw, naming tiles from names.
func TraceProgress(tw *store.TraceWriter, names []string) reconstruct.ProgressFunc {
	return func(p reconstruct.Progress) {
		entry := store.TraceEntry{
			Round:     p.Round,
			TileIndex: p.TileIndex,
			X:         p.X,
			Y:         p.Y,
			Width:     p.Width,
			Height:    p.Height,
			Score:     p.Score,
			Remaining: p.Remaining,
			Timestamp: time.Now(),
		}
		if p.TileIndex < len(names) {
			entry.TileName = names[p.TileIndex]
		}
		if err := tw.Write(entry); err != nil {
			slog.Warn("Failed to write trace entry", "round", p.Round, "error", err)
		}
	}
}

// Chain combines progress callbacks, skipping nil ones.
func Chain(fns ...reconstruct.ProgressFunc) reconstruct.ProgressFunc {
	return func(p reconstruct.Progress) {
		for _, fn := range fns {
			if fn != nil {
				fn(p)
			}
		}
	}
}

// Persist writes result.json, canvas.png and diff.png for a finished job and
// returns the stored summary.
func Persist(st store.Store, jobID string, cfg Config, o *Outcome) (*store.Result, error) {
	summary := o.Summary(jobID, cfg)
	if err := summary.Validate(); err != nil {
		return nil, fmt.Errorf("invalid result: %w", err)
	}
	if err := st.SaveImage(jobID, store.CanvasImage, o.Canvas); err != nil {
		return nil, err
	}
	if err := st.SaveImage(jobID, store.DiffImage, o.Diff()); err != nil {
		return nil, err
	}
	if err := st.SaveResult(jobID, summary); err != nil {
		return nil, err
	}
	slog.Info("Result persisted", "job_id", jobID, "rounds", summary.Rounds, "final_score", summary.FinalScore)
	return summary, nil
}
