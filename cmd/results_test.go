package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cwbudde/tilefit/internal/store"
)

func testInfos(now time.Time) []store.ResultInfo {
	return []store.ResultInfo{
		{JobID: "job1", Timestamp: now.AddDate(0, 0, -10)},
		{JobID: "job2", Timestamp: now.AddDate(0, 0, -5)},
		{JobID: "job3", Timestamp: now.AddDate(0, 0, -1)},
		{JobID: "job4", Timestamp: now.AddDate(0, 0, -30)},
	}
}

func jobIDs(infos []store.ResultInfo) map[string]bool {
	ids := make(map[string]bool, len(infos))
	for _, info := range infos {
		ids[info.JobID] = true
	}
	return ids
}

func TestSelectResultsForDeletion(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name          string
		keepLast      int
		olderThanDays int
		want          []string
	}{
		{"by age", 0, 7, []string{"job1", "job4"}},
		{"by count", 2, 0, []string{"job1", "job4"}},
		{"combined", 1, 7, []string{"job1", "job2", "job4"}},
		{"keep more than stored", 10, 0, nil},
		{"nothing old enough", 0, 60, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := jobIDs(selectResultsForDeletion(testInfos(now), tt.keepLast, tt.olderThanDays, now))
			if len(got) != len(tt.want) {
				t.Fatalf("selected %v, want %v", got, tt.want)
			}
			for _, id := range tt.want {
				if !got[id] {
					t.Errorf("%s not selected (got %v)", id, got)
				}
			}
		})
	}
}

func TestSelectResultsForDeletion_DoesNotReorderInput(t *testing.T) {
	now := time.Now()
	infos := testInfos(now)
	selectResultsForDeletion(infos, 1, 0, now)
	if infos[0].JobID != "job1" || infos[3].JobID != "job4" {
		t.Error("input slice was reordered")
	}
}

func TestGetDirSize(t *testing.T) {
	tmpDir := t.TempDir()

	content := []byte("Hello, World!")
	if err := os.WriteFile(filepath.Join(tmpDir, "test.txt"), content, 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	size, err := getDirSize(tmpDir)
	if err != nil {
		t.Fatalf("getDirSize failed: %v", err)
	}
	if size != int64(len(content)) {
		t.Errorf("Expected size %d, got %d", len(content), size)
	}

	if _, err := getDirSize(filepath.Join(tmpDir, "missing")); err == nil {
		t.Error("expected error for a missing directory")
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		bytes    int64
		expected string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1023, "1023 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{1048576, "1.0 MB"},
		{1073741824, "1.0 GB"},
	}

	for _, tt := range tests {
		if result := formatBytes(tt.bytes); result != tt.expected {
			t.Errorf("formatBytes(%d) = %s, expected %s", tt.bytes, result, tt.expected)
		}
	}
}

func TestShortID(t *testing.T) {
	if got := shortID("abc"); got != "abc" {
		t.Errorf("shortID(abc) = %s", got)
	}
	if got := shortID("0123456789abcdef"); got != "0123456789ab..." {
		t.Errorf("shortID = %s", got)
	}
}

// useDataDir points the commands at dir for the duration of the test.
func useDataDir(t *testing.T, dir string) {
	t.Helper()
	original := dataDir
	dataDir = dir
	t.Cleanup(func() { dataDir = original })
}

func saveTestResult(t *testing.T, st *store.FSStore, jobID string, age time.Duration) {
	t.Helper()
	result := &store.Result{
		JobID: jobID,
		Config: store.JobConfig{
			RefPath:       "ref.png",
			TilesDir:      "tiles",
			Scorer:        "mse",
			MinTileSize:   5,
			EdgeTolerance: 5,
		},
		Width:        16,
		Height:       16,
		Loaded:       4,
		Tiles:        4,
		Rounds:       4,
		CanvasDigest: "digest",
		Timestamp:    time.Now().Add(-age),
	}
	if err := st.SaveResult(jobID, result); err != nil {
		t.Fatalf("Failed to save result: %v", err)
	}
}

func TestResultsListCommand_NoResults(t *testing.T) {
	useDataDir(t, t.TempDir())

	if err := runListResults(nil, nil); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
}

func TestResultsListCommand_WithResults(t *testing.T) {
	tmpDir := t.TempDir()
	st, err := store.NewFSStore(tmpDir)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	saveTestResult(t, st, "test-job-id", 0)
	useDataDir(t, tmpDir)

	if err := runListResults(nil, nil); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
}

func TestResultsShowCommand(t *testing.T) {
	tmpDir := t.TempDir()
	st, err := store.NewFSStore(tmpDir)
	if err != nil {
		t.Fatal(err)
	}
	saveTestResult(t, st, "shown", 0)
	useDataDir(t, tmpDir)

	if err := runShowResult(nil, []string{"shown"}); err != nil {
		t.Errorf("show without trace: %v", err)
	}
	if err := runShowResult(nil, []string{"missing"}); err == nil {
		t.Error("expected error for unknown job")
	}

	var verr *store.ValidationError
	if err := runShowResult(nil, []string{"../shown"}); !errors.As(err, &verr) {
		t.Errorf("traversing job ID: err = %v, want ValidationError", err)
	}
}

func TestResultsCleanCommand_NoFlags(t *testing.T) {
	useDataDir(t, t.TempDir())
	keepLast, olderThanDays = 0, 0

	if err := runCleanResults(nil, nil); err == nil {
		t.Error("Expected error when no flags specified")
	}
}

func TestResultsCleanCommand_WithForce(t *testing.T) {
	tmpDir := t.TempDir()
	st, err := store.NewFSStore(tmpDir)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	saveTestResult(t, st, "old-job", 30*24*time.Hour)
	saveTestResult(t, st, "new-job", 0)
	useDataDir(t, tmpDir)

	keepLast, olderThanDays, forceClean = 0, 7, true
	t.Cleanup(func() { keepLast, olderThanDays, forceClean = 0, 0, false })

	if err := runCleanResults(nil, nil); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}

	if _, err := st.LoadResult("old-job"); err == nil {
		t.Error("Expected old result to be deleted")
	}
	if _, err := st.LoadResult("new-job"); err != nil {
		t.Errorf("new result should survive: %v", err)
	}
}
