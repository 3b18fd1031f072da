package store

import (
	"fmt"
	"strings"
	"time"
)

// JobConfig mirrors the server's job configuration so results can be rerun
// without importing the server package.
type JobConfig struct {
	RefPath       string `json:"refPath"`
	TilesDir      string `json:"tilesDir"`
	Scorer        string `json:"scorer"`
	Workers       int    `json:"workers,omitempty"`
	MinTileSize   int    `json:"minTileSize"`
	EdgeTolerance int    `json:"edgeTolerance"`
}

// Result summarizes a finished reconstruction. Per-round detail lives in the
// trace file next to it.
type Result struct {
	JobID  string    `json:"jobId"`
	Config JobConfig `json:"config"`

	// Canvas dimensions, equal to the reference's
	Width  int `json:"width"`
	Height int `json:"height"`

	Loaded int `json:"loaded"` // Tile files decoded
	Tiles  int `json:"tiles"`  // Tiles left after the size filter
	Rounds int `json:"rounds"`

	// FinalScore is the MSE of the whole canvas against the reference. Zero
	// means an exact reconstruction.
	FinalScore float64 `json:"finalScore"`

	// CanvasDigest identifies the canvas pixels; equal digests mean equal
	// canvases.
	CanvasDigest string `json:"canvasDigest"`

	Elapsed   time.Duration `json:"elapsed"`
	Timestamp time.Time     `json:"timestamp"`
}

// ResultInfo is the listing view of a Result.
type ResultInfo struct {
	JobID      string    `json:"jobId"`
	RefPath    string    `json:"refPath"`
	Scorer     string    `json:"scorer"`
	Rounds     int       `json:"rounds"`
	FinalScore float64   `json:"finalScore"`
	Timestamp  time.Time `json:"timestamp"`
}

// Exact reports whether the canvas matched the reference.
func (r *Result) Exact() bool {
	return r.FinalScore == 0
}

// ToInfo converts a Result to its listing metadata.
func (r *Result) ToInfo() ResultInfo {
	return ResultInfo{
		JobID:      r.JobID,
		RefPath:    r.Config.RefPath,
		Scorer:     r.Config.Scorer,
		Rounds:     r.Rounds,
		FinalScore: r.FinalScore,
		Timestamp:  r.Timestamp,
	}
}

// Validate checks that the result is internally consistent.
func (r *Result) Validate() error {
	switch {
	case r.JobID == "":
		return &ValidationError{Field: "JobID", Reason: "cannot be empty"}
	case r.Config.RefPath == "":
		return &ValidationError{Field: "Config.RefPath", Reason: "cannot be empty"}
	case r.Config.TilesDir == "":
		return &ValidationError{Field: "Config.TilesDir", Reason: "cannot be empty"}
	case r.Width <= 0 || r.Height <= 0:
		return &ValidationError{Field: "Width/Height", Reason: "must be positive"}
	case r.Tiles < 0 || r.Rounds < 0:
		return &ValidationError{Field: "Tiles/Rounds", Reason: "cannot be negative"}
	case r.Rounds > r.Tiles:
		return &ValidationError{Field: "Rounds", Reason: fmt.Sprintf("%d exceeds tile count %d", r.Rounds, r.Tiles)}
	case r.Tiles > r.Loaded:
		return &ValidationError{Field: "Tiles", Reason: "exceeds loaded count"}
	case r.FinalScore < 0:
		return &ValidationError{Field: "FinalScore", Reason: "cannot be negative"}
	case r.CanvasDigest == "":
		return &ValidationError{Field: "CanvasDigest", Reason: "cannot be empty"}
	case r.Timestamp.IsZero():
		return &ValidationError{Field: "Timestamp", Reason: "cannot be zero"}
	}
	return nil
}

// ValidationError represents a result validation error.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}

// ValidateJobID reports whether id can name a job directory. IDs must be a
// single path element so every artifact stays under <baseDir>/jobs.
func ValidateJobID(id string) error {
	return checkPathElement("jobID", id)
}

func checkPathElement(field, v string) error {
	switch {
	case v == "":
		return &ValidationError{Field: field, Reason: "cannot be empty"}
	case v == "." || v == "..":
		return &ValidationError{Field: field, Reason: fmt.Sprintf("%q is not a valid name", v)}
	case strings.ContainsAny(v, "/\\\x00"):
		return &ValidationError{Field: field, Reason: fmt.Sprintf("%q contains a path separator", v)}
	}
	return nil
}

// Compare reports the first observable difference between r and another run
// of the same job. Timing and identity fields are ignored.
func (r *Result) Compare(other *Result) error {
	if r.Width != other.Width || r.Height != other.Height {
		return &MismatchError{
			Field:    "Size",
			Expected: fmt.Sprintf("%dx%d", r.Width, r.Height),
			Actual:   fmt.Sprintf("%dx%d", other.Width, other.Height),
		}
	}
	if r.Tiles != other.Tiles {
		return &MismatchError{Field: "Tiles", Expected: fmt.Sprint(r.Tiles), Actual: fmt.Sprint(other.Tiles)}
	}
	if r.Rounds != other.Rounds {
		return &MismatchError{Field: "Rounds", Expected: fmt.Sprint(r.Rounds), Actual: fmt.Sprint(other.Rounds)}
	}
	if r.CanvasDigest != other.CanvasDigest {
		return &MismatchError{Field: "CanvasDigest", Expected: r.CanvasDigest, Actual: other.CanvasDigest}
	}
	return nil
}

// MismatchError reports a difference between two runs of one job.
type MismatchError struct {
	Field    string
	Expected string
	Actual   string
}

func (e *MismatchError) Error() string {
	return "result mismatch: " + e.Field + " (expected " + e.Expected + ", got " + e.Actual + ")"
}
