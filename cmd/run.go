package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cwbudde/tilefit/internal/pipeline"
	"github.com/cwbudde/tilefit/internal/reconstruct"
	"github.com/cwbudde/tilefit/internal/store"
	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	refPath    string
	tilesDir   string
	outPath    string
	diffPath   string
	scorerName string
	workers    int
	minTile    int
	edgeTol    int
	saveRun    bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Reconstruct an image from a tile directory",
	Long: `Loads the reference and every decodable image in the tile directory,
runs the greedy placement to completion and writes the canvas. With --save
the result, both images and a per-round trace are stored under --data-dir.`,
	RunE: runReconstruct,
}

func init() {
	runCmd.Flags().StringVar(&refPath, "ref", "", "Reference image path (required)")
	runCmd.Flags().StringVar(&tilesDir, "tiles", "", "Directory of tile images (required)")
	runCmd.Flags().StringVar(&outPath, "out", "out.png", "Output image path; format follows the extension")
	runCmd.Flags().StringVar(&diffPath, "diff", "", "Optional path for the difference image")
	runCmd.Flags().StringVar(&scorerName, "scorer", "mse", "Similarity measure: mse, sad, ssim, ssim-rgb, histogram, deltae, exact")
	runCmd.Flags().IntVar(&workers, "workers", 0, "Scoring workers (0 = GOMAXPROCS)")
	runCmd.Flags().IntVar(&minTile, "min-tile", 5, "Tiles with width or height at or below this are skipped (at least 1)")
	runCmd.Flags().IntVar(&edgeTol, "edge", reconstruct.DefaultEdgeTolerance, "Columns from the right edge at which the cursor wraps (at least 1)")
	runCmd.Flags().BoolVar(&saveRun, "save", false, "Persist result, images and trace under --data-dir")

	runCmd.MarkFlagRequired("ref")
	runCmd.MarkFlagRequired("tiles")
	rootCmd.AddCommand(runCmd)
}

// checkRunFlags rejects sizes the job config cannot express: a zero there
// selects the default.
func checkRunFlags() error {
	if minTile < 1 {
		return &store.ValidationError{Field: "--min-tile", Reason: fmt.Sprintf("must be at least 1, got %d", minTile)}
	}
	if edgeTol < 1 {
		return &store.ValidationError{Field: "--edge", Reason: fmt.Sprintf("must be at least 1, got %d", edgeTol)}
	}
	return nil
}

func runReconstruct(cmd *cobra.Command, args []string) error {
	if err := checkRunFlags(); err != nil {
		return err
	}

	cfg := pipeline.WithDefaults(pipeline.Config{
		RefPath:       refPath,
		TilesDir:      tilesDir,
		Scorer:        scorerName,
		Workers:       workers,
		MinTileSize:   minTile,
		EdgeTolerance: edgeTol,
	})
	if err := pipeline.Validate(cfg); err != nil {
		return err
	}

	in, err := pipeline.Load(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		st       *store.FSStore
		jobID    string
		progress reconstruct.ProgressFunc
	)
	if saveRun {
		st, err = store.NewFSStore(dataDir)
		if err != nil {
			return fmt.Errorf("failed to create result store: %w", err)
		}
		jobID = uuid.New().String()
		tw, err := st.OpenTrace(jobID)
		if err != nil {
			return err
		}
		defer tw.Close()
		progress = pipeline.TraceProgress(tw, in.Names)
	}

	outcome, runErr := in.Reconstruct(ctx, cfg, progress)
	if outcome == nil {
		return runErr
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}

	// A cancelled run still writes its partial canvas
	if err := imaging.Save(outcome.Canvas, outPath); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	if diffPath != "" {
		if err := imaging.Save(outcome.Diff(), diffPath); err != nil {
			return fmt.Errorf("failed to write diff: %w", err)
		}
	}

	if runErr != nil {
		slog.Warn("Reconstruction interrupted", "rounds", outcome.Rounds(), "tiles", len(in.Tiles))
		return fmt.Errorf("interrupted after %d round(s): %w", outcome.Rounds(), runErr)
	}

	if st != nil {
		if _, err := pipeline.Persist(st, jobID, cfg, outcome); err != nil {
			return fmt.Errorf("failed to persist result: %w", err)
		}
		fmt.Printf("Saved job %s under %s\n", jobID, st.JobDir(jobID))
	}

	fmt.Printf("Wrote %s (%d of %d tiles placed, final MSE %.4f, %s)\n",
		outPath, outcome.Rounds(), len(in.Tiles), outcome.FinalScore, outcome.Elapsed.Round(time.Millisecond))
	return nil
}
