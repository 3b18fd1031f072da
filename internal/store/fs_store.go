package store

import (
	"encoding/json"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/disintegration/imaging"
)

// FSStore implements Store on the filesystem. Each job gets its own directory,
// <baseDir>/jobs/<jobID>/.
//
// Writes go to a temp file that is renamed into place, so concurrent readers
// never see a partial file and no locking is needed.
type FSStore struct {
	baseDir string
}

// NewFSStore creates a filesystem store rooted at baseDir, creating it if
// needed.
func NewFSStore(baseDir string) (*FSStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	return &FSStore{baseDir: baseDir}, nil
}

// BaseDir returns the root directory of the store.
func (fs *FSStore) BaseDir() string {
	return fs.baseDir
}

// JobDir returns the directory holding a job's artifacts.
func (fs *FSStore) JobDir(jobID string) string {
	return filepath.Join(fs.baseDir, "jobs", jobID)
}

func (fs *FSStore) resultPath(jobID string) string {
	return filepath.Join(fs.JobDir(jobID), "result.json")
}

func (fs *FSStore) imagePath(jobID, name string) string {
	return filepath.Join(fs.JobDir(jobID), name+".png")
}

// writeAtomic creates path via a sibling temp file and a rename.
func (fs *FSStore) writeAtomic(path string, write func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create job directory: %w", err)
	}

	tempPath := path + ".tmp"
	f, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	if err := write(f); err != nil {
		f.Close()
		os.Remove(tempPath)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename %s: %w", filepath.Base(path), err)
	}
	return nil
}

// SaveResult atomically writes result.json for the job.
func (fs *FSStore) SaveResult(jobID string, result *Result) error {
	if err := ValidateJobID(jobID); err != nil {
		return err
	}
	if result == nil {
		return fmt.Errorf("result cannot be nil")
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize result: %w", err)
	}

	path := fs.resultPath(jobID)
	err = fs.writeAtomic(path, func(w io.Writer) error {
		if _, err := w.Write(data); err != nil {
			return fmt.Errorf("failed to write result: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	slog.Debug("Result saved", "jobID", jobID, "path", path)
	return nil
}

// LoadResult reads result.json for the job.
func (fs *FSStore) LoadResult(jobID string) (*Result, error) {
	if err := ValidateJobID(jobID); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(fs.resultPath(jobID))
	if os.IsNotExist(err) {
		return nil, &NotFoundError{JobID: jobID}
	} else if err != nil {
		return nil, fmt.Errorf("failed to read result file: %w", err)
	}

	var result Result
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to deserialize result: %w", err)
	}
	return &result, nil
}

// ListResults returns metadata for every job directory holding a readable
// result.json, newest first.
func (fs *FSStore) ListResults() ([]ResultInfo, error) {
	jobsDir := filepath.Join(fs.baseDir, "jobs")

	entries, err := os.ReadDir(jobsDir)
	if os.IsNotExist(err) {
		return []ResultInfo{}, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to read jobs directory: %w", err)
	}

	infos := []ResultInfo{}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		result, err := fs.LoadResult(entry.Name())
		if err != nil {
			if !os.IsNotExist(err) && !isNotFound(err) {
				slog.Warn("Failed to load result for listing", "jobID", entry.Name(), "error", err)
			}
			continue
		}
		infos = append(infos, result.ToInfo())
	}

	sort.SliceStable(infos, func(i, j int) bool {
		return infos[i].Timestamp.After(infos[j].Timestamp)
	})

	slog.Debug("Listed results", "count", len(infos))
	return infos, nil
}

// DeleteResult removes the job directory and everything in it.
func (fs *FSStore) DeleteResult(jobID string) error {
	if err := ValidateJobID(jobID); err != nil {
		return err
	}

	dir := fs.JobDir(jobID)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return &NotFoundError{JobID: jobID}
	} else if err != nil {
		return fmt.Errorf("failed to stat job directory: %w", err)
	}

	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove job directory: %w", err)
	}

	slog.Debug("Result deleted", "jobID", jobID, "path", dir)
	return nil
}

// SaveImage atomically writes img as a PNG artifact of the job.
func (fs *FSStore) SaveImage(jobID, name string, img image.Image) error {
	if err := ValidateJobID(jobID); err != nil {
		return err
	}
	if err := checkPathElement("name", name); err != nil {
		return err
	}

	return fs.writeAtomic(fs.imagePath(jobID, name), func(w io.Writer) error {
		if err := imaging.Encode(w, img, imaging.PNG); err != nil {
			return fmt.Errorf("failed to encode %s: %w", name, err)
		}
		return nil
	})
}

// LoadImage reads a PNG artifact of the job.
func (fs *FSStore) LoadImage(jobID, name string) (image.Image, error) {
	if err := ValidateJobID(jobID); err != nil {
		return nil, err
	}
	if err := checkPathElement("name", name); err != nil {
		return nil, err
	}

	img, err := imaging.Open(fs.imagePath(jobID, name))
	if os.IsNotExist(err) {
		return nil, &NotFoundError{JobID: jobID}
	} else if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", name, err)
	}
	return img, nil
}

// OpenTrace starts a fresh trace for the job, replacing any earlier one.
func (fs *FSStore) OpenTrace(jobID string) (*TraceWriter, error) {
	return NewTraceWriter(fs.baseDir, jobID, false)
}

// LoadTrace reads every entry of the job's trace.
func (fs *FSStore) LoadTrace(jobID string) ([]TraceEntry, error) {
	return ReadTrace(fs.baseDir, jobID)
}

func isNotFound(err error) bool {
	_, ok := err.(*NotFoundError)
	return ok
}
