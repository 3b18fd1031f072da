// Package reconstruct reassembles a reference image from an unordered set of
// tiles cut from it.
//
// Each round crops the reference under the cursor to the size of every
// remaining tile, scores all candidates in parallel, commits the best one to
// the canvas and advances the cursor. The assignment is greedy: a round never
// revisits an earlier placement.
package reconstruct

import (
	"context"
	"image"
	"log/slog"
	"runtime"
	"time"

	"github.com/cwbudde/tilefit/internal/pixel"
	"github.com/cwbudde/tilefit/internal/score"
	"golang.org/x/sync/errgroup"
)

// Placement records one committed tile.
type Placement struct {
	Round      int     `json:"round"`
	TileIndex  int     `json:"tileIndex"`
	X          int     `json:"x"`
	Y          int     `json:"y"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	Score      float64 `json:"score"`
	Candidates int     `json:"candidates"` // Pool size when the round started
}

// Result is the outcome of a reconstruction run.
type Result struct {
	Canvas     *image.NRGBA
	Placements []Placement
	Elapsed    time.Duration
}

// Rounds returns the number of committed placements.
func (r *Result) Rounds() int {
	return len(r.Placements)
}

// Engine runs the placement loop. An Engine holds configuration only and may
// be reused, including concurrently, for independent runs.
type Engine struct {
	scorer    score.Scorer
	workers   int
	tolerance int
	progress  ProgressFunc
}

// Option configures an Engine.
type Option func(*Engine)

// WithScorer sets the similarity metric. The default is MSE.
func WithScorer(s score.Scorer) Option {
	return func(e *Engine) {
		if s != nil {
			e.scorer = s
		}
	}
}

// WithWorkers bounds the number of goroutines scoring candidates in a round.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithEdgeTolerance sets the leftover row width that triggers a wrap.
func WithEdgeTolerance(n int) Option {
	return func(e *Engine) {
		if n >= 0 {
			e.tolerance = n
		}
	}
}

// WithProgress registers a callback invoked after every committed placement.
func WithProgress(fn ProgressFunc) Option {
	return func(e *Engine) {
		e.progress = fn
	}
}

// New creates an engine with the given options.
func New(opts ...Option) *Engine {
	e := &Engine{
		workers:   runtime.GOMAXPROCS(0),
		tolerance: DefaultEdgeTolerance,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.scorer == nil {
		// Candidates already run in parallel; each score stays on one goroutine
		e.scorer = &score.MSE{Workers: 1}
	}
	return e
}

// Reconstruct assembles tiles onto a blank canvas shaped like reference and
// returns the canvas. It places every tile, so it performs exactly len(tiles)
// rounds. An empty tile set yields the blank canvas.
func (e *Engine) Reconstruct(reference *image.NRGBA, tiles []*image.NRGBA) *image.NRGBA {
	result, _ := e.Run(context.Background(), reference, tiles)
	return result.Canvas
}

// ReconstructContext is like Reconstruct but stops between rounds once ctx is
// done. A round that has started always completes. On cancellation the
// partially filled canvas is returned along with ctx.Err().
func (e *Engine) ReconstructContext(ctx context.Context, reference *image.NRGBA, tiles []*image.NRGBA) (*image.NRGBA, error) {
	result, err := e.Run(ctx, reference, tiles)
	return result.Canvas, err
}

// Run performs the reconstruction and returns the canvas with the placement
// history. The result is never nil.
func (e *Engine) Run(ctx context.Context, reference *image.NRGBA, tiles []*image.NRGBA) (*Result, error) {
	start := time.Now()

	canvas := pixel.Blank(reference)
	pool := NewPool(tiles)
	cursor := NewCursor(canvas.Bounds().Dx(), e.tolerance)
	total := pool.Len()

	result := &Result{
		Canvas:     canvas,
		Placements: make([]Placement, 0, total),
	}

	slog.Info("Starting reconstruction",
		"width", canvas.Bounds().Dx(),
		"height", canvas.Bounds().Dy(),
		"tiles", total,
		"workers", e.workers,
	)

	for round := 1; pool.Len() > 0; round++ {
		if err := ctx.Err(); err != nil {
			result.Elapsed = time.Since(start)
			slog.Info("Reconstruction cancelled", "round", round, "remaining", pool.Len())
			return result, err
		}

		entries := pool.Snapshot()
		best, bestScore := e.selectBest(reference, cursor, entries)
		winner := entries[best]
		wb := winner.Tile.Bounds()

		placement := Placement{
			Round:      round,
			TileIndex:  winner.Index,
			X:          cursor.X,
			Y:          cursor.Y,
			Width:      wb.Dx(),
			Height:     wb.Dy(),
			Score:      bestScore,
			Candidates: len(entries),
		}

		pixel.Blit(canvas, winner.Tile, cursor.X, cursor.Y)
		cursor.Advance(wb.Dx(), wb.Dy())
		pool.Remove(winner.Index)
		result.Placements = append(result.Placements, placement)

		slog.Debug("Round committed",
			"round", round,
			"tile", winner.Index,
			"x", placement.X,
			"y", placement.Y,
			"score", bestScore,
			"remaining", pool.Len(),
		)

		if e.progress != nil {
			e.progress(Progress{
				Placement: placement,
				Total:     total,
				Remaining: pool.Len(),
				Canvas:    pixel.Clone(canvas),
			})
		}
	}

	result.Elapsed = time.Since(start)
	slog.Info("Reconstruction complete", "rounds", result.Rounds(), "elapsed", result.Elapsed)
	return result, nil
}

// candidate is a partial arg-min: the snapshot position of the best entry seen
// and its score.
type candidate struct {
	pos   int
	score float64
}

// selectBest scores every entry against the reference region under the cursor
// and returns the snapshot position and score of the winner. Ties go to the
// entry that comes first in the snapshot.
func (e *Engine) selectBest(reference *image.NRGBA, cursor *Cursor, entries []Entry) (int, float64) {
	regions := cropRegions(reference, cursor, entries)

	chunks := e.workers
	if chunks > len(entries) {
		chunks = len(entries)
	}
	size := (len(entries) + chunks - 1) / chunks
	chunks = (len(entries) + size - 1) / size

	partials := make([]candidate, chunks)

	var g errgroup.Group
	g.SetLimit(e.workers)
	for c := 0; c < chunks; c++ {
		start := c * size
		end := start + size
		if end > len(entries) {
			end = len(entries)
		}

		g.Go(func() error {
			best := candidate{pos: start, score: e.scoreEntry(regions, entries[start])}
			for i := start + 1; i < end; i++ {
				if s := e.scoreEntry(regions, entries[i]); s < best.score {
					best = candidate{pos: i, score: s}
				}
			}
			partials[c] = best
			return nil
		})
	}
	_ = g.Wait()

	// Merge in chunk order with a strict comparison so the earliest entry keeps a tie
	best := partials[0]
	for _, p := range partials[1:] {
		if p.score < best.score {
			best = p
		}
	}
	return best.pos, best.score
}

func (e *Engine) scoreEntry(regions map[image.Point]*image.NRGBA, entry Entry) float64 {
	return e.scorer.Score(regions[entry.Tile.Bounds().Size()], entry.Tile)
}

// cropRegions crops the reference at the cursor once per distinct tile size.
// The map is read-only once the scoring workers start.
func cropRegions(reference *image.NRGBA, cursor *Cursor, entries []Entry) map[image.Point]*image.NRGBA {
	regions := make(map[image.Point]*image.NRGBA)
	for _, entry := range entries {
		size := entry.Tile.Bounds().Size()
		if _, ok := regions[size]; ok {
			continue
		}
		regions[size] = pixel.Crop(reference, cursor.X, cursor.Y, size.X, size.Y)
	}
	return regions
}
