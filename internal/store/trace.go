package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const traceFile = "trace.jsonl"

// TraceEntry is one committed placement, stored as a JSON line.
type TraceEntry struct {
	Round     int       `json:"round"`
	TileIndex int       `json:"tileIndex"`
	TileName  string    `json:"tileName,omitempty"`
	X         int       `json:"x"`
	Y         int       `json:"y"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	Score     float64   `json:"score"`
	Remaining int       `json:"remaining"`
	Timestamp time.Time `json:"timestamp"`
}

// TraceWriter appends entries to a job's trace.jsonl. It is safe for
// concurrent use; entries are buffered until Flush or Close.
type TraceWriter struct {
	mu     sync.Mutex
	file   *os.File
	writer *bufio.Writer
	path   string
}

// NewTraceWriter opens <baseDir>/jobs/<jobID>/trace.jsonl for writing,
// truncating it unless appendMode is set.
func NewTraceWriter(baseDir, jobID string, appendMode bool) (*TraceWriter, error) {
	if err := ValidateJobID(jobID); err != nil {
		return nil, err
	}
	dir := filepath.Join(baseDir, "jobs", jobID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create job directory: %w", err)
	}

	path := filepath.Join(dir, traceFile)
	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if appendMode {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}
	file, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}

	return &TraceWriter{
		file:   file,
		writer: bufio.NewWriterSize(file, 64*1024),
		path:   path,
	}, nil
}

// Write buffers one entry.
func (tw *TraceWriter) Write(entry TraceEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal trace entry: %w", err)
	}
	data = append(data, '\n')

	tw.mu.Lock()
	defer tw.mu.Unlock()
	if _, err := tw.writer.Write(data); err != nil {
		return fmt.Errorf("failed to write trace entry: %w", err)
	}
	return nil
}

// Flush writes buffered entries and syncs the file.
func (tw *TraceWriter) Flush() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if err := tw.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush trace writer: %w", err)
	}
	if err := tw.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync trace file: %w", err)
	}
	return nil
}

// Close flushes and closes the trace file.
func (tw *TraceWriter) Close() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if err := tw.writer.Flush(); err != nil {
		tw.file.Close()
		return fmt.Errorf("failed to flush on close: %w", err)
	}
	if err := tw.file.Close(); err != nil {
		return fmt.Errorf("failed to close trace file: %w", err)
	}
	return nil
}

// Path returns the trace file location.
func (tw *TraceWriter) Path() string {
	return tw.path
}

// ReadTrace loads every entry of a job's trace in file order.
func ReadTrace(baseDir, jobID string) ([]TraceEntry, error) {
	if err := ValidateJobID(jobID); err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(baseDir, "jobs", jobID, traceFile))
	if os.IsNotExist(err) {
		return nil, &NotFoundError{JobID: jobID}
	} else if err != nil {
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}
	defer f.Close()

	return decodeTrace(f)
}

func decodeTrace(r io.Reader) ([]TraceEntry, error) {
	var entries []TraceEntry
	scanner := bufio.NewScanner(r)
	for line := 1; scanner.Scan(); line++ {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var entry TraceEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			return nil, fmt.Errorf("failed to unmarshal trace line %d: %w", line, err)
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan trace: %w", err)
	}
	return entries, nil
}
