package server

import (
	"context"
	"fmt"
	"image"
	"sort"
	"sync"
	"time"

	"github.com/cwbudde/tilefit/internal/pipeline"
	"github.com/google/uuid"
)

// JobState represents the current state of a job
type JobState string

const (
	StatePending   JobState = "pending"
	StateRunning   JobState = "running"
	StateCompleted JobState = "completed"
	StateFailed    JobState = "failed"
	StateCancelled JobState = "cancelled"
)

// Terminal reports whether no further transitions can happen.
func (s JobState) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// JobConfig is an alias to avoid duplication with the persisted config
type JobConfig = pipeline.Config

// Job represents a reconstruction job
type Job struct {
	ID         string     `json:"id"`
	State      JobState   `json:"state"`
	Config     JobConfig  `json:"config"`
	Tiles      int        `json:"tiles"`
	Rounds     int        `json:"rounds"`
	Remaining  int        `json:"remaining"`
	LastScore  float64    `json:"lastScore"`
	FinalScore float64    `json:"finalScore"`
	StartTime  time.Time  `json:"startTime"`
	EndTime    *time.Time `json:"endTime,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// Elapsed returns the run time so far, or the total once the job ended.
func (j Job) Elapsed() time.Duration {
	if j.EndTime != nil {
		return j.EndTime.Sub(j.StartTime)
	}
	return time.Since(j.StartTime)
}

// jobEntry is the manager's private record: the public view plus the live
// images and the cancel hook.
type jobEntry struct {
	job       Job
	reference *image.NRGBA
	canvas    *image.NRGBA
	cancel    context.CancelFunc
}

// JobManager manages the lifecycle of jobs
type JobManager struct {
	mu          sync.RWMutex
	jobs        map[string]*jobEntry
	broadcaster *EventBroadcaster
}

// NewJobManager creates a new JobManager
func NewJobManager() *JobManager {
	return &JobManager{
		jobs:        make(map[string]*jobEntry),
		broadcaster: NewEventBroadcaster(),
	}
}

// CreateJob registers a pending job with the given configuration
func (jm *JobManager) CreateJob(config JobConfig) Job {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	entry := &jobEntry{job: Job{
		ID:        uuid.New().String(),
		State:     StatePending,
		Config:    config,
		StartTime: time.Now(),
	}}
	jm.jobs[entry.job.ID] = entry
	return entry.job
}

// GetJob returns a snapshot of the job
func (jm *JobManager) GetJob(id string) (Job, bool) {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	entry, exists := jm.jobs[id]
	if !exists {
		return Job{}, false
	}
	return entry.job, true
}

// ListJobs returns snapshots of all jobs, oldest first
func (jm *JobManager) ListJobs() []Job {
	jm.mu.RLock()
	jobs := make([]Job, 0, len(jm.jobs))
	for _, entry := range jm.jobs {
		jobs = append(jobs, entry.job)
	}
	jm.mu.RUnlock()

	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].StartTime.Equal(jobs[j].StartTime) {
			return jobs[i].ID < jobs[j].ID
		}
		return jobs[i].StartTime.Before(jobs[j].StartTime)
	})
	return jobs
}

// UpdateJob atomically updates a job using the provided function
func (jm *JobManager) UpdateJob(id string, updateFn func(*Job)) error {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	entry, exists := jm.jobs[id]
	if !exists {
		return fmt.Errorf("job not found: %s", id)
	}
	updateFn(&entry.job)
	return nil
}

// GetRunningJobs returns all jobs currently in the running state
func (jm *JobManager) GetRunningJobs() []Job {
	running := make([]Job, 0)
	for _, job := range jm.ListJobs() {
		if job.State == StateRunning {
			running = append(running, job)
		}
	}
	return running
}

// SetReference records the decoded reference for diff rendering.
func (jm *JobManager) SetReference(id string, ref *image.NRGBA) {
	jm.mu.Lock()
	defer jm.mu.Unlock()
	if entry, ok := jm.jobs[id]; ok {
		entry.reference = ref
	}
}

// SetCanvas replaces the latest canvas snapshot. The manager takes ownership
// of img.
func (jm *JobManager) SetCanvas(id string, img *image.NRGBA) {
	jm.mu.Lock()
	defer jm.mu.Unlock()
	if entry, ok := jm.jobs[id]; ok {
		entry.canvas = img
	}
}

// Images returns the reference and the latest canvas snapshot, either of
// which may be nil. Callers must not modify them.
func (jm *JobManager) Images(id string) (ref, canvas *image.NRGBA) {
	jm.mu.RLock()
	defer jm.mu.RUnlock()
	if entry, ok := jm.jobs[id]; ok {
		return entry.reference, entry.canvas
	}
	return nil, nil
}

// ReleaseImages drops the live reference and canvas of a job. The job record
// itself is kept.
func (jm *JobManager) ReleaseImages(id string) {
	jm.mu.Lock()
	defer jm.mu.Unlock()
	if entry, ok := jm.jobs[id]; ok {
		entry.reference = nil
		entry.canvas = nil
	}
}

// setCancel stores the function that stops a running job.
func (jm *JobManager) setCancel(id string, cancel context.CancelFunc) {
	jm.mu.Lock()
	defer jm.mu.Unlock()
	if entry, ok := jm.jobs[id]; ok {
		entry.cancel = cancel
	}
}

// CancelJob requests that a job stop after its current round. It reports
// false if the job does not exist or has already finished.
func (jm *JobManager) CancelJob(id string) bool {
	jm.mu.RLock()
	entry, ok := jm.jobs[id]
	if !ok || entry.job.State.Terminal() || entry.cancel == nil {
		jm.mu.RUnlock()
		return false
	}
	cancel := entry.cancel
	jm.mu.RUnlock()

	cancel()
	return true
}
