package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cwbudde/tilefit/internal/pipeline"
	"github.com/cwbudde/tilefit/internal/store"
	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	rerunOut  string
	rerunSave bool
)

var rerunCmd = &cobra.Command{
	Use:   "rerun <job-id>",
	Short: "Rerun a stored job and check it reproduces",
	Long: `Loads the configuration of a stored result, runs the reconstruction
again on the same inputs and compares size, tile count, rounds and canvas
digest against the stored run. A difference is reported as an error.`,
	Args: cobra.ExactArgs(1),
	RunE: runRerun,
}

func init() {
	rerunCmd.Flags().StringVar(&rerunOut, "out", "", "Optional path for the rerun canvas")
	rerunCmd.Flags().BoolVar(&rerunSave, "save", false, "Store the rerun as a new result")
	rootCmd.AddCommand(rerunCmd)
}

func runRerun(cmd *cobra.Command, args []string) error {
	resultStore, err := store.NewFSStore(dataDir)
	if err != nil {
		return fmt.Errorf("failed to create result store: %w", err)
	}

	previous, err := resultStore.LoadResult(args[0])
	if err != nil {
		return err
	}
	outcome, summary, err := rerunResult(context.Background(), resultStore, previous, rerunSave)
	if err != nil {
		return err
	}

	if rerunOut != "" {
		if err := imaging.Save(outcome.Canvas, rerunOut); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	}

	if err := previous.Compare(summary); err != nil {
		var mismatch *store.MismatchError
		if errors.As(err, &mismatch) {
			slog.Error("Rerun diverged", "job_id", previous.JobID, "field", mismatch.Field)
		}
		return err
	}

	fmt.Printf("Job %s reproduced: %d rounds, digest %s\n", previous.JobID, summary.Rounds, shortID(summary.CanvasDigest))
	return nil
}

// rerunResult repeats the job described by previous on its original inputs.
// With save the rerun is persisted, with its trace, under a fresh job ID.
func rerunResult(ctx context.Context, st store.Store, previous *store.Result, save bool) (*pipeline.Outcome, *store.Result, error) {
	cfg := pipeline.WithDefaults(previous.Config)
	in, err := pipeline.Load(cfg)
	if err != nil {
		return nil, nil, err
	}

	if !save {
		outcome, err := in.Reconstruct(ctx, cfg, nil)
		if err != nil {
			return nil, nil, err
		}
		return outcome, outcome.Summary(previous.JobID, cfg), nil
	}

	jobID := uuid.New().String()
	tw, err := st.OpenTrace(jobID)
	if err != nil {
		return nil, nil, err
	}
	defer tw.Close()

	outcome, err := in.Reconstruct(ctx, cfg, pipeline.TraceProgress(tw, in.Names))
	if err != nil {
		return nil, nil, err
	}
	summary, err := pipeline.Persist(st, jobID, cfg, outcome)
	if err != nil {
		return nil, nil, err
	}
	return outcome, summary, nil
}
