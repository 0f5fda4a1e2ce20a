// Package queue is an in-process priority job queue. Jobs are held in memory,
// dispatched in (priority, creation) order under a concurrency cap, retried
// with linear backoff and observed through progress callbacks.
package queue

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/derob357/Real-Estate-Deal-Analyzer/internal/logger"
	"github.com/derob357/Real-Estate-Deal-Analyzer/internal/models"
	"github.com/derob357/Real-Estate-Deal-Analyzer/internal/telemetry"
)

const (
	DefaultMaxConcurrent  = 3
	DefaultMaxAttempts    = 3
	DefaultRetryBaseDelay = 5 * time.Second
	DefaultPollInterval   = time.Second

	// CancelledMessage is stored as the error message of cancelled jobs.
	CancelledMessage = "Job cancelled by user"
	// ShutdownMessage prefixes the failure detail of retries abandoned when
	// the scheduler stops.
	ShutdownMessage = "scheduler shut down"

	transitionBuffer = 1024
)

// ReportFunc is handed to executors to publish progress milestones.
type ReportFunc func(progress int, message, step string)

// Executor performs the work for one job type. The returned value becomes
// the job result on success. Wrap an error with Permanent to skip retries.
type Executor func(ctx context.Context, job models.Job, report ReportFunc) (any, error)

// BackoffFunc returns the delay before the next attempt, given the number of
// attempts already made.
type BackoffFunc func(attempts int) time.Duration

// LinearBackoff waits base multiplied by the attempts made so far.
func LinearBackoff(base time.Duration) BackoffFunc {
	return func(attempts int) time.Duration {
		if attempts < 1 {
			attempts = 1
		}
		return base * time.Duration(attempts)
	}
}

// Options tunes a Queue. Zero values fall back to the package defaults.
type Options struct {
	MaxConcurrent      int
	DefaultMaxAttempts int
	DefaultPriority    int
	PollInterval       time.Duration
	Backoff            BackoffFunc
	// JobTimeout bounds a single attempt. Zero means unbounded.
	JobTimeout time.Duration
	Observers  []Observer
	NewID      func() string
	Now        func() time.Time
}

// JobOption overrides per-job settings in AddJob.
type JobOption func(*jobSettings)

type jobSettings struct {
	priority    int
	maxAttempts int
}

// WithPriority sets the job priority; 1 runs first, 5 last.
func WithPriority(p int) JobOption {
	return func(s *jobSettings) { s.priority = p }
}

// WithMaxAttempts sets how many times the job may run before failing.
func WithMaxAttempts(n int) JobOption {
	return func(s *jobSettings) { s.maxAttempts = n }
}

type entry struct {
	job      models.Job
	seq      uint64
	progress int
	retry    *time.Timer
}

// snapshot copies the job with its own payload map so callers cannot reach
// the stored one.
func (e *entry) snapshot() models.Job {
	job := e.job
	job.Payload = maps.Clone(job.Payload)
	return job
}

// Queue owns every job it has accepted for the life of the process.
type Queue struct {
	opts      Options
	log       *zerolog.Logger
	observers []Observer

	mu          sync.Mutex
	jobs        map[string]*entry
	pending     []*entry
	running     int
	seq         uint64
	executors   map[models.JobType]Executor
	subscribers map[string]func(models.Progress)
	recurrences map[*Recurrence]struct{}
	started     bool
	closed      bool

	wake        chan struct{}
	transitions chan transition
	inflight    sync.WaitGroup
}

// New builds a Queue. Call Run to start dispatching.
func New(opts Options) *Queue {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = DefaultMaxConcurrent
	}
	if opts.DefaultMaxAttempts <= 0 {
		opts.DefaultMaxAttempts = DefaultMaxAttempts
	}
	if opts.DefaultPriority < models.PriorityHighest || opts.DefaultPriority > models.PriorityLowest {
		opts.DefaultPriority = models.PriorityDefault
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Backoff == nil {
		opts.Backoff = LinearBackoff(DefaultRetryBaseDelay)
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Queue{
		opts:        opts,
		log:         logger.WithComponent("queue"),
		observers:   opts.Observers,
		jobs:        make(map[string]*entry),
		executors:   make(map[models.JobType]Executor),
		subscribers: make(map[string]func(models.Progress)),
		recurrences: make(map[*Recurrence]struct{}),
		wake:        make(chan struct{}, 1),
		transitions: make(chan transition, transitionBuffer),
	}
}

// RegisterExecutor binds an executor to a job type, replacing any previous one.
func (q *Queue) RegisterExecutor(jobType models.JobType, exec Executor) {
	if !jobType.Valid() || exec == nil {
		return
	}
	q.mu.Lock()
	q.executors[jobType] = exec
	q.mu.Unlock()
}

// AddJob accepts a job in pending state and wakes the scheduler. It never
// waits for the job to run.
func (q *Queue) AddJob(jobType models.JobType, payload map[string]any, opts ...JobOption) (string, error) {
	if !jobType.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownJobType, jobType)
	}
	settings := jobSettings{priority: q.opts.DefaultPriority, maxAttempts: q.opts.DefaultMaxAttempts}
	for _, opt := range opts {
		opt(&settings)
	}
	if settings.priority < models.PriorityHighest || settings.priority > models.PriorityLowest {
		return "", fmt.Errorf("%w: got %d", ErrInvalidPriority, settings.priority)
	}
	if settings.maxAttempts <= 0 {
		settings.maxAttempts = q.opts.DefaultMaxAttempts
	}
	payload = maps.Clone(payload)
	if payload == nil {
		payload = map[string]any{}
	}

	job := models.Job{
		ID:          q.opts.NewID(),
		Type:        jobType,
		Priority:    settings.priority,
		Payload:     payload,
		Status:      models.StatusPending,
		MaxAttempts: settings.maxAttempts,
		CreatedAt:   q.opts.Now(),
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return "", ErrQueueClosed
	}
	if _, exists := q.jobs[job.ID]; exists {
		q.mu.Unlock()
		return "", fmt.Errorf("duplicate job id %q", job.ID)
	}
	q.seq++
	e := &entry{job: job, seq: q.seq}
	q.jobs[job.ID] = e
	q.insertPendingLocked(e)
	q.publish(e.snapshot(), EventEnqueued, fmt.Sprintf("priority=%d", job.Priority))
	q.mu.Unlock()

	telemetry.JobsEnqueued.WithLabelValues(string(jobType)).Inc()
	logger.WithJobID(job.ID).Info().Str("type", string(jobType)).Int("priority", job.Priority).Msg("job enqueued")
	q.signal()
	return job.ID, nil
}

// GetJob returns a snapshot of the job.
func (q *Queue) GetJob(id string) (models.Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.jobs[id]
	if !ok {
		return models.Job{}, false
	}
	return e.snapshot(), true
}

// GetJobStatus returns only the job status.
func (q *Queue) GetJobStatus(id string) (models.JobStatus, bool) {
	job, ok := q.GetJob(id)
	return job.Status, ok
}

// GetAllJobs returns every job ordered by creation.
func (q *Queue) GetAllJobs() []models.Job {
	return q.collect(func(models.Job) bool { return true })
}

// GetJobsByStatus returns the jobs currently in status, ordered by creation.
func (q *Queue) GetJobsByStatus(status models.JobStatus) []models.Job {
	return q.collect(func(j models.Job) bool { return j.Status == status })
}

func (q *Queue) collect(keep func(models.Job) bool) []models.Job {
	q.mu.Lock()
	entries := make([]*entry, 0, len(q.jobs))
	for _, e := range q.jobs {
		if keep(e.job) {
			entries = append(entries, e)
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
	out := make([]models.Job, len(entries))
	for i, e := range entries {
		out[i] = e.snapshot()
	}
	q.mu.Unlock()
	return out
}

// GetQueueStats counts jobs by status.
func (q *Queue) GetQueueStats() models.QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	stats := models.QueueStats{Total: len(q.jobs), QueueLength: len(q.pending)}
	for _, e := range q.jobs {
		switch e.job.Status {
		case models.StatusPending:
			stats.Pending++
		case models.StatusRunning:
			stats.Running++
		case models.StatusCompleted:
			stats.Completed++
		case models.StatusFailed:
			stats.Failed++
		case models.StatusRetrying:
			stats.Retrying++
		}
	}
	return stats
}

// CancelJob fails a job that has not started or is waiting to retry. Running
// and terminal jobs are left alone and false is returned.
func (q *Queue) CancelJob(id string) bool {
	q.mu.Lock()
	e, ok := q.jobs[id]
	if !ok {
		q.mu.Unlock()
		return false
	}
	switch e.job.Status {
	case models.StatusPending:
		q.removePendingLocked(e)
	case models.StatusRetrying:
		if e.retry != nil {
			e.retry.Stop()
			e.retry = nil
		}
	default:
		q.mu.Unlock()
		return false
	}
	now := q.opts.Now()
	e.job.Status = models.StatusFailed
	e.job.ErrorMessage = CancelledMessage
	e.job.CompletedAt = &now
	q.publish(e.snapshot(), EventCancelled, CancelledMessage)
	q.mu.Unlock()

	telemetry.JobsCancelled.Inc()
	logger.WithJobID(id).Info().Msg("job cancelled")
	return true
}

func (q *Queue) insertPendingLocked(e *entry) {
	i, _ := slices.BinarySearchFunc(q.pending, e, comparePending)
	q.pending = slices.Insert(q.pending, i, e)
	telemetry.QueueDepthGauge.Set(float64(len(q.pending)))
}

func (q *Queue) removePendingLocked(e *entry) {
	q.pending = slices.DeleteFunc(q.pending, func(p *entry) bool { return p == e })
	telemetry.QueueDepthGauge.Set(float64(len(q.pending)))
}

// comparePending orders by priority, then creation time, then insertion.
func comparePending(a, b *entry) int {
	if c := cmp.Compare(a.job.Priority, b.job.Priority); c != 0 {
		return c
	}
	if c := a.job.CreatedAt.Compare(b.job.CreatedAt); c != 0 {
		return c
	}
	return cmp.Compare(a.seq, b.seq)
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}
