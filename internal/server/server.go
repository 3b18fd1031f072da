package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cwbudde/tilefit/internal/pipeline"
	"github.com/cwbudde/tilefit/internal/pixel"
	"github.com/cwbudde/tilefit/internal/store"
)

// Server represents the HTTP server
type Server struct {
	jobManager  *JobManager
	resultStore store.Store
	addr        string
	server      *http.Server

	// Jobs run under baseCtx so Shutdown can stop them
	baseCtx    context.Context
	cancelJobs context.CancelFunc
}

// NewServer creates a new HTTP server. resultStore may be nil, in which case
// finished jobs are kept in memory only.
func NewServer(addr string, resultStore store.Store) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		jobManager:  NewJobManager(),
		resultStore: resultStore,
		addr:        addr,
		baseCtx:     ctx,
		cancelJobs:  cancel,
	}
}

// Handler returns the routed handler with middleware applied
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/", s.handleIndex)

	mux.HandleFunc("/api/v1/jobs", s.handleJobs)
	mux.HandleFunc("/api/v1/jobs/", s.handleJobsWithID)
	mux.HandleFunc("/api/v1/results", s.handleListResults)

	return s.loggingMiddleware(s.corsMiddleware(mux))
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("Starting HTTP server", "addr", s.addr)
	return s.server.ListenAndServe()
}

// Shutdown cancels running jobs and gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("Shutting down HTTP server", "running_jobs", len(s.jobManager.GetRunningJobs()))
	s.cancelJobs()
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// handleJobs handles /api/v1/jobs
func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateJob(w, r)
	case http.MethodGet:
		s.handleListJobs(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleJobsWithID handles /api/v1/jobs/:id/*
func (s *Server) handleJobsWithID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/jobs/")
	parts := strings.Split(strings.TrimSuffix(path, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		http.Error(w, "Job ID required", http.StatusBadRequest)
		return
	}

	jobID := parts[0]
	sub := ""
	if len(parts) > 1 {
		sub = parts[1]
	}

	if sub == "" && r.Method == http.MethodDelete {
		s.handleCancelJob(w, r, jobID)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	switch sub {
	case "", "status":
		s.handleGetJobStatus(w, r, jobID)
	case "canvas.png":
		s.handleGetCanvasImage(w, r, jobID)
	case "diff.png":
		s.handleGetDiffImage(w, r, jobID)
	case "stream":
		s.handleJobStream(w, r, jobID)
	case "trace":
		s.handleGetTrace(w, r, jobID)
	default:
		http.Error(w, "Not found", http.StatusNotFound)
	}
}

// handleCreateJob handles POST /api/v1/jobs
func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var config JobConfig
	if err := json.NewDecoder(r.Body).Decode(&config); err != nil {
		http.Error(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
		return
	}

	config = pipeline.WithDefaults(config)
	if err := pipeline.Validate(config); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	job := s.startJob(config)

	writeJSON(w, http.StatusCreated, job)
}

// startJob registers a job and runs it in the background
func (s *Server) startJob(config JobConfig) Job {
	job := s.jobManager.CreateJob(config)

	ctx, cancel := context.WithCancel(s.baseCtx)
	s.jobManager.setCancel(job.ID, cancel)

	go func() {
		defer cancel()
		runJob(ctx, s.jobManager, s.resultStore, job.ID)
	}()
	return job
}

// handleListJobs handles GET /api/v1/jobs
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.jobManager.ListJobs())
}

// handleGetJobStatus handles GET /api/v1/jobs/:id/status
func (s *Server) handleGetJobStatus(w http.ResponseWriter, r *http.Request, jobID string) {
	job, exists := s.jobManager.GetJob(jobID)
	if !exists {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}

	var progress float64
	if job.Tiles > 0 {
		progress = float64(job.Rounds) / float64(job.Tiles)
	}

	response := map[string]interface{}{
		"id":         job.ID,
		"state":      job.State,
		"config":     job.Config,
		"tiles":      job.Tiles,
		"rounds":     job.Rounds,
		"remaining":  job.Remaining,
		"progress":   progress,
		"lastScore":  job.LastScore,
		"finalScore": job.FinalScore,
		"elapsed":    job.Elapsed().Seconds(),
		"startTime":  job.StartTime,
		"endTime":    job.EndTime,
		"error":      job.Error,
	}

	writeJSON(w, http.StatusOK, response)
}

// handleCancelJob handles DELETE /api/v1/jobs/:id
func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request, jobID string) {
	if _, exists := s.jobManager.GetJob(jobID); !exists {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}
	if !s.jobManager.CancelJob(jobID) {
		http.Error(w, "Job is not running", http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// handleGetCanvasImage handles GET /api/v1/jobs/:id/canvas.png
func (s *Server) handleGetCanvasImage(w http.ResponseWriter, r *http.Request, jobID string) {
	job, exists := s.jobManager.GetJob(jobID)
	_, canvas := s.jobManager.Images(jobID)
	if !exists || (canvas == nil && job.State.Terminal()) {
		s.servePersistedImage(w, jobID, store.CanvasImage)
		return
	}
	if canvas == nil {
		http.Error(w, "No canvas yet", http.StatusNotFound)
		return
	}
	writePNG(w, canvas)
}

// handleGetDiffImage handles GET /api/v1/jobs/:id/diff.png
func (s *Server) handleGetDiffImage(w http.ResponseWriter, r *http.Request, jobID string) {
	job, exists := s.jobManager.GetJob(jobID)
	ref, canvas := s.jobManager.Images(jobID)
	if !exists || ((ref == nil || canvas == nil) && job.State.Terminal()) {
		s.servePersistedImage(w, jobID, store.DiffImage)
		return
	}
	if ref == nil || canvas == nil {
		http.Error(w, "No canvas yet", http.StatusNotFound)
		return
	}
	writePNG(w, pixel.Diff(ref, canvas))
}

// servePersistedImage answers image requests out of the result store, for
// jobs from earlier server runs and for finished jobs whose live images were
// released.
func (s *Server) servePersistedImage(w http.ResponseWriter, jobID, name string) {
	if s.resultStore == nil {
		http.Error(w, "Image not found", http.StatusNotFound)
		return
	}

	img, err := s.resultStore.LoadImage(jobID, name)
	var verr *store.ValidationError
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "Image not found", http.StatusNotFound)
		return
	} else if errors.As(err, &verr) {
		http.Error(w, verr.Error(), http.StatusBadRequest)
		return
	} else if err != nil {
		http.Error(w, fmt.Sprintf("Failed to load image: %v", err), http.StatusInternalServerError)
		return
	}
	writePNG(w, img)
}

// handleGetTrace handles GET /api/v1/jobs/:id/trace
func (s *Server) handleGetTrace(w http.ResponseWriter, r *http.Request, jobID string) {
	if s.resultStore == nil {
		http.Error(w, "Persistence disabled", http.StatusNotFound)
		return
	}

	entries, err := s.resultStore.LoadTrace(jobID)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "Trace not found", http.StatusNotFound)
		return
	} else if err != nil {
		http.Error(w, fmt.Sprintf("Failed to read trace: %v", err), http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []store.TraceEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// handleListResults handles GET /api/v1/results
func (s *Server) handleListResults(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.resultStore == nil {
		writeJSON(w, http.StatusOK, []store.ResultInfo{})
		return
	}

	infos, err := s.resultStore.ListResults()
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to list results: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, infos)
}

// corsMiddleware adds CORS headers
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("HTTP request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}
