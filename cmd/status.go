package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cwbudde/tilefit/internal/server"
	"github.com/spf13/cobra"
)

var (
	serverURL string
)

var statusCmd = &cobra.Command{
	Use:   "status [job-id]",
	Short: "Query server status or specific job",
	Long: `Queries the server for job status information.
If no job-id is provided, lists all jobs.
If job-id is provided, shows detailed status for that job.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "Server URL")
	rootCmd.AddCommand(statusCmd)
}

// jobStatus is the body of GET /api/v1/jobs/:id/status
type jobStatus struct {
	server.Job
	Progress float64 `json:"progress"`
	Elapsed  float64 `json:"elapsed"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return listJobs(fmt.Sprintf("%s/api/v1/jobs", serverURL))
	}
	jobID := args[0]
	return getJobStatus(fmt.Sprintf("%s/api/v1/jobs/%s/status", serverURL, jobID), jobID)
}

func fetchJSON(url string, v any) (int, error) {
	resp, err := http.Get(url)
	if err != nil {
		return 0, fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, fmt.Errorf("server returned error: %s", string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
	}
	return resp.StatusCode, nil
}

func listJobs(url string) error {
	var jobs []server.Job
	if _, err := fetchJSON(url, &jobs); err != nil {
		return err
	}

	if len(jobs) == 0 {
		fmt.Println("No jobs found")
		return nil
	}

	fmt.Printf("Found %d job(s):\n\n", len(jobs))
	for _, job := range jobs {
		fmt.Printf("Job ID: %s\n", job.ID)
		fmt.Printf("  State: %s\n", job.State)
		fmt.Printf("  Reference: %s\n", job.Config.RefPath)
		fmt.Printf("  Rounds: %d / %d\n", job.Rounds, job.Tiles)
		if job.State == server.StateCompleted {
			fmt.Printf("  Final score: %.4f\n", job.FinalScore)
		}
		fmt.Println()
	}
	return nil
}

func getJobStatus(url, jobID string) error {
	var status jobStatus
	code, err := fetchJSON(url, &status)
	if code == http.StatusNotFound {
		return fmt.Errorf("job not found: %s", jobID)
	}
	if err != nil {
		return err
	}

	fmt.Printf("Job: %s\n", status.ID)
	fmt.Printf("State: %s\n", status.State)
	fmt.Println()

	fmt.Println("Configuration:")
	fmt.Printf("  Reference: %s\n", status.Config.RefPath)
	fmt.Printf("  Tiles: %s\n", status.Config.TilesDir)
	fmt.Printf("  Scorer: %s\n", status.Config.Scorer)
	fmt.Printf("  Min tile size: %d\n", status.Config.MinTileSize)
	fmt.Printf("  Edge tolerance: %d\n", status.Config.EdgeTolerance)
	fmt.Println()

	fmt.Println("Progress:")
	fmt.Printf("  Rounds: %d / %d (%.1f%%)\n", status.Rounds, status.Tiles, status.Progress*100)
	fmt.Printf("  Remaining: %d\n", status.Remaining)
	if status.Rounds > 0 {
		fmt.Printf("  Last score: %.4f\n", status.LastScore)
	}
	if status.State == server.StateCompleted {
		fmt.Printf("  Final score: %.4f\n", status.FinalScore)
	}
	elapsed := time.Duration(status.Elapsed * float64(time.Second))
	fmt.Printf("  Elapsed: %s\n", elapsed.Round(time.Millisecond))

	if status.Error != "" {
		fmt.Printf("\nError: %s\n", status.Error)
	}
	return nil
}
