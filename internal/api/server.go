package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/derob357/Real-Estate-Deal-Analyzer/internal/config"
	"github.com/derob357/Real-Estate-Deal-Analyzer/internal/logger"
	"github.com/derob357/Real-Estate-Deal-Analyzer/internal/models"
	"github.com/derob357/Real-Estate-Deal-Analyzer/internal/normalize"
	"github.com/derob357/Real-Estate-Deal-Analyzer/internal/queue"
	"github.com/derob357/Real-Estate-Deal-Analyzer/internal/store"
	"github.com/derob357/Real-Estate-Deal-Analyzer/internal/telemetry"
)

const (
	dlqPeekCount     = 100
	maxPropertyLimit = 500
)

// JobQueue is the part of the queue the API drives.
type JobQueue interface {
	AddJob(jobType models.JobType, payload map[string]any, opts ...queue.JobOption) (string, error)
	GetJob(id string) (models.Job, bool)
	GetAllJobs() []models.Job
	GetJobsByStatus(status models.JobStatus) []models.Job
	GetQueueStats() models.QueueStats
	CancelJob(id string) bool
}

// Limiter gates submissions per tenant.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, float64, error)
}

// AuditReader serves the durable transition history of a job.
type AuditReader interface {
	ListAudit(ctx context.Context, jobID string) ([]models.AuditLog, error)
}

// PropertyLister serves stored properties.
type PropertyLister interface {
	ListProperties(ctx context.Context, city, state, propertyType string, limit int) ([]models.NormalizedProperty, error)
}

// DeadLetters lists jobs that failed for good.
type DeadLetters interface {
	DLQPeek(ctx context.Context, count int64) ([]models.Job, error)
}

// ProgressStreamer upgrades a request into a live progress feed.
type ProgressStreamer interface {
	ServeJob(w http.ResponseWriter, r *http.Request, jobID string)
}

// Deps are the server collaborators. Only Queue and Normalizer are required.
type Deps struct {
	Queue      JobQueue
	Normalizer *normalize.Normalizer
	Limiter    Limiter
	Audit      AuditReader
	Properties PropertyLister
	DLQ        DeadLetters
	Progress   ProgressStreamer
}

// Server wires HTTP handlers for job submission, inspection and batch normalization.
type Server struct {
	cfg  config.Config
	deps Deps
	log  *zerolog.Logger
}

// New constructs the API server.
func New(cfg config.Config, deps Deps) *Server {
	return &Server{
		cfg:  cfg,
		deps: deps,
		log:  logger.WithComponent("api"),
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/metrics", telemetry.Handler())

	r.Route("/jobs", func(r chi.Router) {
		r.Post("/", s.handleEnqueue)
		r.Get("/", s.handleListJobs)
		r.Get("/{id}", s.handleGetJob)
		r.Get("/{id}/status", s.handleJobStatus)
		r.Post("/{id}/cancel", s.handleCancel)
		r.Get("/{id}/audit", s.handleAudit)
	})
	r.Get("/stats", s.handleStats)
	r.Post("/batches", s.handleBatch)
	r.Get("/properties", s.handleProperties)
	r.Get("/dlq", s.handleDLQ)
	r.Get("/ws/jobs/{id}", s.handleProgress)
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("request")
	})
}

type enqueueRequest struct {
	Type        string         `json:"type"`
	Payload     map[string]any `json:"payload"`
	Priority    *int           `json:"priority"`
	MaxAttempts int            `json:"max_attempts"`
}

type enqueueResponse struct {
	JobID string     `json:"job_id"`
	Job   models.Job `json:"job"`
}

func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var req enqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Type == "" {
		writeError(w, http.StatusBadRequest, "type is required")
		return
	}

	if s.deps.Limiter != nil {
		allowed, _, err := s.deps.Limiter.Allow(r.Context(), "api:"+tenantFromRequest(r))
		if err != nil {
			s.log.Error().Err(err).Msg("rate limiter unavailable")
			writeError(w, http.StatusInternalServerError, "rate limit error")
			return
		}
		if !allowed {
			telemetry.RateLimitRejects.Inc()
			writeError(w, http.StatusTooManyRequests, "rate limited")
			return
		}
	}

	var opts []queue.JobOption
	if req.Priority != nil {
		opts = append(opts, queue.WithPriority(*req.Priority))
	}
	if req.MaxAttempts > 0 {
		opts = append(opts, queue.WithMaxAttempts(req.MaxAttempts))
	}
	id, err := s.deps.Queue.AddJob(models.JobType(req.Type), req.Payload, opts...)
	if err != nil {
		switch {
		case errors.Is(err, queue.ErrUnknownJobType), errors.Is(err, queue.ErrInvalidPriority):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, queue.ErrQueueClosed):
			writeError(w, http.StatusServiceUnavailable, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	job, _ := s.deps.Queue.GetJob(id)
	writeJSON(w, http.StatusAccepted, enqueueResponse{JobID: id, Job: job})
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	status := models.JobStatus(r.URL.Query().Get("status"))
	var jobs []models.Job
	switch status {
	case "":
		jobs = s.deps.Queue.GetAllJobs()
	case models.StatusPending, models.StatusRunning, models.StatusCompleted, models.StatusFailed, models.StatusRetrying:
		jobs = s.deps.Queue.GetJobsByStatus(status)
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", status))
		return
	}
	if jobs == nil {
		jobs = []models.Job{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs, "count": len(jobs)})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.deps.Queue.GetJob(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, queue.ErrJobNotFound.Error())
		return
	}
	writeJSON(w, http.StatusOK, job)
}

type statusResponse struct {
	JobID        string           `json:"job_id"`
	Status       models.JobStatus `json:"status"`
	Attempts     int              `json:"attempts"`
	MaxAttempts  int              `json:"max_attempts"`
	ErrorMessage string           `json:"error_message,omitempty"`
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	job, ok := s.deps.Queue.GetJob(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, queue.ErrJobNotFound.Error())
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{
		JobID:        job.ID,
		Status:       job.Status,
		Attempts:     job.Attempts,
		MaxAttempts:  job.MaxAttempts,
		ErrorMessage: job.ErrorMessage,
	})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := s.deps.Queue.GetJob(id); !ok {
		writeError(w, http.StatusNotFound, queue.ErrJobNotFound.Error())
		return
	}
	if !s.deps.Queue.CancelJob(id) {
		writeError(w, http.StatusConflict, "job is running or already finished")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	if s.deps.Audit == nil {
		writeError(w, http.StatusNotImplemented, "job history is not configured")
		return
	}
	entries, err := s.deps.Audit.ListAudit(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.log.Error().Err(err).Msg("list audit")
		writeError(w, http.StatusInternalServerError, "failed to read audit log")
		return
	}
	if len(entries) == 0 {
		writeError(w, http.StatusNotFound, store.ErrNotFound.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": entries})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Queue.GetQueueStats())
}

type batchRequest struct {
	Records []models.RawProperty `json:"records"`
}

// handleBatch normalizes and deduplicates inline without touching the queue.
func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Records == nil {
		writeError(w, http.StatusBadRequest, "records is required")
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Normalizer.ProcessDataBatch(req.Records))
}

func (s *Server) handleProperties(w http.ResponseWriter, r *http.Request) {
	if s.deps.Properties == nil {
		writeError(w, http.StatusNotImplemented, "property store is not configured")
		return
	}
	q := r.URL.Query()
	city, state := q.Get("city"), q.Get("state")
	if city == "" || state == "" {
		writeError(w, http.StatusBadRequest, "city and state are required")
		return
	}
	limit := 100
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxPropertyLimit)
	}
	propertyType := q.Get("property_type")
	if propertyType != "" {
		propertyType = normalize.NormalizePropertyType(propertyType)
	}

	props, err := s.deps.Properties.ListProperties(r.Context(), city, normalize.NormalizeState(state), propertyType, limit)
	if err != nil {
		s.log.Error().Err(err).Msg("list properties")
		writeError(w, http.StatusInternalServerError, "failed to list properties")
		return
	}
	if props == nil {
		props = []models.NormalizedProperty{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"properties": props, "count": len(props)})
}

// handleDLQ returns the most recent dead-lettered jobs.
func (s *Server) handleDLQ(w http.ResponseWriter, r *http.Request) {
	if s.deps.DLQ == nil {
		writeError(w, http.StatusNotImplemented, "dead letter journal is not configured")
		return
	}
	items, err := s.deps.DLQ.DLQPeek(r.Context(), dlqPeekCount)
	if err != nil {
		s.log.Error().Err(err).Msg("peek dlq")
		writeError(w, http.StatusInternalServerError, "failed to read dlq")
		return
	}
	if items == nil {
		items = []models.Job{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	if s.deps.Progress == nil {
		writeError(w, http.StatusNotImplemented, "progress streaming is not configured")
		return
	}
	id := chi.URLParam(r, "id")
	if _, ok := s.deps.Queue.GetJob(id); !ok {
		writeError(w, http.StatusNotFound, queue.ErrJobNotFound.Error())
		return
	}
	s.deps.Progress.ServeJob(w, r, id)
}

func tenantFromRequest(r *http.Request) string {
	if v := r.Header.Get("X-Tenant-ID"); v != "" {
		return v
	}
	return "default"
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
