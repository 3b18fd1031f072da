package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/cwbudde/tilefit/internal/store"
	"github.com/spf13/cobra"
)

var (
	keepLast      int
	olderThanDays int
	forceClean    bool
)

var resultsCmd = &cobra.Command{
	Use:   "results",
	Short: "Manage stored results",
	Long: `Manage results saved by "run --save" and by the server, including
listing, inspecting and cleaning old ones.`,
}

var listResultsCmd = &cobra.Command{
	Use:   "list",
	Short: "List all stored results",
	Long:  `Display all results with job ID, timestamp, rounds, final score and size on disk.`,
	RunE:  runListResults,
}

var showResultCmd = &cobra.Command{
	Use:   "show <job-id>",
	Short: "Show one result and its placement trace",
	Args:  cobra.ExactArgs(1),
	RunE:  runShowResult,
}

var cleanResultsCmd = &cobra.Command{
	Use:   "clean",
	Short: "Clean old results",
	Long: `Delete old results based on retention policy.
You can keep only the newest N results or delete results older than N days.`,
	RunE: runCleanResults,
}

func init() {
	rootCmd.AddCommand(resultsCmd)

	resultsCmd.AddCommand(listResultsCmd)
	resultsCmd.AddCommand(showResultCmd)
	resultsCmd.AddCommand(cleanResultsCmd)

	cleanResultsCmd.Flags().IntVar(&keepLast, "keep-last", 0, "Keep only the newest N results (0 = keep all)")
	cleanResultsCmd.Flags().IntVar(&olderThanDays, "older-than", 0, "Delete results older than N days (0 = no age limit)")
	cleanResultsCmd.Flags().BoolVarP(&forceClean, "force", "f", false, "Skip confirmation prompt")
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12] + "..."
	}
	return id
}

func runListResults(cmd *cobra.Command, args []string) error {
	resultStore, err := store.NewFSStore(dataDir)
	if err != nil {
		return fmt.Errorf("failed to create result store: %w", err)
	}

	infos, err := resultStore.ListResults()
	if err != nil {
		return fmt.Errorf("failed to list results: %w", err)
	}

	if len(infos) == 0 {
		fmt.Println("No results found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "JOB ID\tTIMESTAMP\tSCORER\tROUNDS\tFINAL SCORE\tSIZE")
	fmt.Fprintln(w, "------\t---------\t------\t------\t-----------\t----")

	for _, info := range infos {
		sizeStr := "unknown"
		if size, err := getDirSize(resultStore.JobDir(info.JobID)); err == nil {
			sizeStr = formatBytes(size)
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%.4f\t%s\n",
			shortID(info.JobID),
			info.Timestamp.Format("2006-01-02 15:04:05"),
			info.Scorer,
			info.Rounds,
			info.FinalScore,
			sizeStr,
		)
	}

	w.Flush()

	fmt.Printf("\nTotal results: %d\n", len(infos))
	return nil
}

func runShowResult(cmd *cobra.Command, args []string) error {
	resultStore, err := store.NewFSStore(dataDir)
	if err != nil {
		return fmt.Errorf("failed to create result store: %w", err)
	}

	jobID := args[0]
	result, err := resultStore.LoadResult(jobID)
	if err != nil {
		return err
	}

	fmt.Printf("Job: %s\n", result.JobID)
	fmt.Printf("Reference: %s (%dx%d)\n", result.Config.RefPath, result.Width, result.Height)
	fmt.Printf("Tiles: %s (%d loaded, %d kept)\n", result.Config.TilesDir, result.Loaded, result.Tiles)
	fmt.Printf("Scorer: %s\n", result.Config.Scorer)
	fmt.Printf("Rounds: %d\n", result.Rounds)
	fmt.Printf("Final score: %.4f (exact: %v)\n", result.FinalScore, result.Exact())
	fmt.Printf("Elapsed: %s\n", result.Elapsed.Round(time.Millisecond))
	fmt.Printf("Digest: %s\n", result.CanvasDigest)

	entries, err := resultStore.LoadTrace(jobID)
	if err != nil {
		// Results saved without a trace are still valid
		slog.Debug("No trace for result", "job_id", jobID, "error", err)
		return nil
	}

	fmt.Println()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ROUND\tTILE\tPOSITION\tSIZE\tSCORE")
	for _, e := range entries {
		fmt.Fprintf(w, "%d\t%s\t%d,%d\t%dx%d\t%.4f\n", e.Round, e.TileName, e.X, e.Y, e.Width, e.Height, e.Score)
	}
	return w.Flush()
}

func runCleanResults(cmd *cobra.Command, args []string) error {
	if keepLast == 0 && olderThanDays == 0 {
		return fmt.Errorf("must specify either --keep-last or --older-than")
	}

	resultStore, err := store.NewFSStore(dataDir)
	if err != nil {
		return fmt.Errorf("failed to create result store: %w", err)
	}

	infos, err := resultStore.ListResults()
	if err != nil {
		return fmt.Errorf("failed to list results: %w", err)
	}

	if len(infos) == 0 {
		fmt.Println("No results to clean.")
		return nil
	}

	toDelete := selectResultsForDeletion(infos, keepLast, olderThanDays, time.Now())
	if len(toDelete) == 0 {
		fmt.Println("No results match deletion criteria.")
		return nil
	}

	fmt.Printf("Found %d result(s) to delete:\n", len(toDelete))
	for _, info := range toDelete {
		fmt.Printf("  - %s (%d rounds, %s)\n",
			shortID(info.JobID),
			info.Rounds,
			info.Timestamp.Format("2006-01-02 15:04:05"),
		)
	}

	if !forceClean {
		fmt.Print("\nProceed with deletion? [y/N]: ")
		var response string
		fmt.Scanln(&response)
		if response != "y" && response != "Y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	deleted, failed := 0, 0
	for _, info := range toDelete {
		if err := resultStore.DeleteResult(info.JobID); err != nil {
			slog.Error("Failed to delete result", "job_id", info.JobID, "error", err)
			failed++
		} else {
			slog.Info("Deleted result", "job_id", info.JobID)
			deleted++
		}
	}

	fmt.Printf("\nDeleted %d result(s), %d failed.\n", deleted, failed)
	return nil
}

// selectResultsForDeletion applies the retention policy: anything older than
// olderThanDays, plus everything beyond the newest keepLast. A zero value
// disables that rule.
func selectResultsForDeletion(infos []store.ResultInfo, keepLast, olderThanDays int, now time.Time) []store.ResultInfo {
	sorted := make([]store.ResultInfo, len(infos))
	copy(sorted, infos)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.After(sorted[j].Timestamp)
	})

	var cutoff time.Time
	if olderThanDays > 0 {
		cutoff = now.AddDate(0, 0, -olderThanDays)
	}

	var toDelete []store.ResultInfo
	for i, info := range sorted {
		tooOld := olderThanDays > 0 && info.Timestamp.Before(cutoff)
		beyondKeep := keepLast > 0 && i >= keepLast
		if tooOld || beyondKeep {
			toDelete = append(toDelete, info)
		}
	}
	return toDelete
}

// getDirSize calculates the total size of a directory
func getDirSize(path string) (int64, error) {
	var size int64
	err := filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size, err
}

// formatBytes formats bytes as human-readable string
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
