// Package store persists finished reconstruction jobs on the local filesystem.
package store

import "image"

// Store defines result persistence. Implementations must be safe for
// concurrent use.
//
// Load and Delete return ErrNotFound (match with errors.Is) when the job has
// no stored result. Other failures are wrapped with context.
type Store interface {
	// SaveResult writes the job summary, replacing any earlier one.
	SaveResult(jobID string, result *Result) error

	// LoadResult reads the summary for a job.
	LoadResult(jobID string) (*Result, error)

	// ListResults returns metadata for every stored job. Unreadable entries
	// are skipped.
	ListResults() ([]ResultInfo, error)

	// DeleteResult removes the job directory with all of its artifacts
	// (result.json, canvas.png, diff.png, trace.jsonl).
	DeleteResult(jobID string) error

	// SaveImage writes img as <name>.png in the job directory.
	SaveImage(jobID, name string, img image.Image) error

	// LoadImage reads <name>.png from the job directory.
	LoadImage(jobID, name string) (image.Image, error)

	// OpenTrace starts a fresh trace.jsonl for the job.
	OpenTrace(jobID string) (*TraceWriter, error)

	// LoadTrace reads the job's trace.jsonl.
	LoadTrace(jobID string) ([]TraceEntry, error)
}

// Artifact names used with SaveImage and LoadImage.
const (
	CanvasImage = "canvas"
	DiffImage   = "diff"
)

// ErrNotFound is returned when a requested result does not exist.
var ErrNotFound = &NotFoundError{}

// NotFoundError reports a missing job result or artifact.
type NotFoundError struct {
	JobID string
}

func (e *NotFoundError) Error() string {
	if e.JobID != "" {
		return "result not found: " + e.JobID
	}
	return "result not found"
}

func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)
	return ok
}
