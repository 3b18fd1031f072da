package store

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestTraceWriter_WriteAndRead(t *testing.T) {
	dir := t.TempDir()

	tw, err := NewTraceWriter(dir, "job", false)
	if err != nil {
		t.Fatalf("NewTraceWriter failed: %v", err)
	}
	if want := filepath.Join(dir, "jobs", "job", "trace.jsonl"); tw.Path() != want {
		t.Errorf("Path() = %s, want %s", tw.Path(), want)
	}

	for i := 1; i <= 3; i++ {
		entry := TraceEntry{Round: i, TileIndex: 3 - i, X: 8 * (i - 1), Width: 8, Height: 8, Remaining: 3 - i, Timestamp: time.Now()}
		if err := tw.Write(entry); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	entries, err := ReadTrace(dir, "job")
	if err != nil {
		t.Fatalf("ReadTrace failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	for i, e := range entries {
		if e.Round != i+1 || e.X != 8*i || e.TileIndex != 2-i {
			t.Errorf("entry %d = %+v", i, e)
		}
	}
}

func TestTraceWriter_Append(t *testing.T) {
	dir := t.TempDir()

	for round := 1; round <= 2; round++ {
		tw, err := NewTraceWriter(dir, "job", true)
		if err != nil {
			t.Fatal(err)
		}
		if err := tw.Write(TraceEntry{Round: round}); err != nil {
			t.Fatal(err)
		}
		if err := tw.Close(); err != nil {
			t.Fatal(err)
		}
	}

	entries, err := ReadTrace(dir, "job")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Errorf("got %d entries after append, want 2", len(entries))
	}

	// Truncating mode starts over
	tw, err := NewTraceWriter(dir, "job", false)
	if err != nil {
		t.Fatal(err)
	}
	tw.Close()
	entries, err = ReadTrace(dir, "job")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("got %d entries after truncate, want 0", len(entries))
	}
}

func TestTraceWriter_Flush(t *testing.T) {
	dir := t.TempDir()
	tw, err := NewTraceWriter(dir, "job", false)
	if err != nil {
		t.Fatal(err)
	}
	defer tw.Close()

	if err := tw.Write(TraceEntry{Round: 1, Score: 12.5}); err != nil {
		t.Fatal(err)
	}
	if err := tw.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	data, err := os.ReadFile(tw.Path())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"score":12.5`) {
		t.Errorf("flushed data = %s", data)
	}
}

func TestReadTrace_NotFound(t *testing.T) {
	_, err := ReadTrace(t.TempDir(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestDecodeTrace_BadLine(t *testing.T) {
	input := `{"round":1}` + "\n\n" + `{"round":` + "\n"
	_, err := decodeTrace(strings.NewReader(input))
	if err == nil || !strings.Contains(err.Error(), "line 3") {
		t.Errorf("err = %v, want failure on line 3", err)
	}
}

func TestTraceWriter_ConcurrentWrites(t *testing.T) {
	dir := t.TempDir()
	tw, err := NewTraceWriter(dir, "job", false)
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := tw.Write(TraceEntry{Round: i}); err != nil {
				t.Error(err)
			}
		}(i)
	}
	wg.Wait()
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}

	entries, err := ReadTrace(dir, "job")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 50 {
		t.Errorf("got %d entries, want 50", len(entries))
	}
}
