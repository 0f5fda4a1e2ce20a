package queue

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/derob357/Real-Estate-Deal-Analyzer/internal/logger"
	"github.com/derob357/Real-Estate-Deal-Analyzer/internal/models"
	"github.com/derob357/Real-Estate-Deal-Analyzer/internal/telemetry"
)

// Run dispatches pending jobs until ctx is cancelled. It wakes on every
// enqueue and finished job, with PollInterval as a fallback. On shutdown it
// stops recurring schedules, waits for in-flight executors and flushes
// observers before returning ctx.Err().
func (q *Queue) Run(ctx context.Context) error {
	q.mu.Lock()
	if q.started {
		q.mu.Unlock()
		return ErrAlreadyRunning
	}
	q.started = true
	q.mu.Unlock()

	stopObservers := make(chan struct{})
	observersDone := make(chan struct{})
	go func() {
		defer close(observersDone)
		q.deliverTransitions(stopObservers)
	}()

	ticker := time.NewTicker(q.opts.PollInterval)
	defer ticker.Stop()

	q.log.Info().Int("max_concurrent", q.opts.MaxConcurrent).Msg("scheduler started")
	for {
		q.dispatch(ctx)
		select {
		case <-ctx.Done():
			q.shutdown()
			q.inflight.Wait()
			close(stopObservers)
			<-observersDone
			q.log.Info().Msg("scheduler stopped")
			return ctx.Err()
		case <-q.wake:
		case <-ticker.C:
		}
	}
}

// shutdown closes the queue to new work. Jobs waiting out a retry backoff
// will never be requeued, so they fail with their last error.
func (q *Queue) shutdown() {
	q.mu.Lock()
	q.closed = true
	recurrences := make([]*Recurrence, 0, len(q.recurrences))
	for r := range q.recurrences {
		recurrences = append(recurrences, r)
	}
	var abandoned []models.Job
	now := q.opts.Now()
	for _, e := range q.jobs {
		if e.retry != nil {
			e.retry.Stop()
			e.retry = nil
		}
		if e.job.Status != models.StatusRetrying {
			continue
		}
		e.job.Status = models.StatusFailed
		e.job.CompletedAt = &now
		q.publish(e.snapshot(), EventFailed, ShutdownMessage+": "+e.job.ErrorMessage)
		abandoned = append(abandoned, e.job)
	}
	q.mu.Unlock()

	for _, job := range abandoned {
		telemetry.JobsFailed.WithLabelValues(string(job.Type)).Inc()
		logger.WithJobID(job.ID).Warn().Str("error", job.ErrorMessage).Int("attempts", job.Attempts).Msg("retry abandoned at shutdown")
	}
	for _, r := range recurrences {
		r.Stop()
	}
}

// dispatch starts as many pending jobs as free slots allow.
func (q *Queue) dispatch(ctx context.Context) {
	type start struct {
		job  models.Job
		exec Executor
	}
	var started []start

	q.mu.Lock()
	for len(q.pending) > 0 && q.running < q.opts.MaxConcurrent && !q.closed {
		e := q.pending[0]
		q.pending = q.pending[1:]
		now := q.opts.Now()
		e.job.Status = models.StatusRunning
		e.job.StartedAt = &now
		e.job.Attempts++
		e.job.ErrorMessage = ""
		e.progress = 0
		q.running++
		q.publish(e.snapshot(), EventStarted, fmt.Sprintf("attempt=%d", e.job.Attempts))
		started = append(started, start{job: e.snapshot(), exec: q.executors[e.job.Type]})
	}
	telemetry.QueueDepthGauge.Set(float64(len(q.pending)))
	telemetry.RunningGauge.Set(float64(q.running))
	q.mu.Unlock()

	for _, s := range started {
		q.inflight.Add(1)
		go q.execute(ctx, s.job, s.exec)
	}
}

func (q *Queue) execute(ctx context.Context, job models.Job, exec Executor) {
	defer q.inflight.Done()

	log := logger.WithJobID(job.ID)
	log.Info().Str("type", string(job.Type)).Int("attempt", job.Attempts).Msg("job started")

	runCtx := ctx
	if q.opts.JobTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, q.opts.JobTimeout)
		defer cancel()
	}

	report := func(progress int, message, step string) {
		q.emitProgress(job.ID, progress, message, step)
	}

	began := time.Now()
	result, err := invoke(runCtx, exec, job, report)
	telemetry.JobDuration.WithLabelValues(string(job.Type)).Observe(time.Since(began).Seconds())
	q.finish(job.ID, result, err)
}

// invoke runs exec and converts a panic into an error.
func invoke(ctx context.Context, exec Executor, job models.Job, report ReportFunc) (result any, err error) {
	if exec == nil {
		return nil, Permanent(fmt.Errorf("no executor registered for type %q", job.Type))
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("executor panic: %v", r)
			logger.WithJobID(job.ID).Error().Str("stack", string(debug.Stack())).Msg("executor panicked")
		}
	}()
	return exec(ctx, job, report)
}

// finish applies the outcome of one attempt.
func (q *Queue) finish(id string, result any, runErr error) {
	log := logger.WithJobID(id)

	q.mu.Lock()
	e := q.jobs[id]
	q.running--
	now := q.opts.Now()
	event := EventSucceeded
	detail := ""
	switch {
	case runErr == nil:
		e.job.Status = models.StatusCompleted
		e.job.CompletedAt = &now
		e.job.Result = result
	case !IsPermanent(runErr) && e.job.CanRetry() && !q.closed:
		delay := q.opts.Backoff(e.job.Attempts)
		e.job.Status = models.StatusRetrying
		e.job.ErrorMessage = runErr.Error()
		e.retry = time.AfterFunc(delay, func() { q.requeue(id) })
		event = EventRetryScheduled
		detail = fmt.Sprintf("delay=%s attempts=%d error=%s", delay, e.job.Attempts, runErr)
	default:
		e.job.Status = models.StatusFailed
		e.job.CompletedAt = &now
		e.job.ErrorMessage = runErr.Error()
		event = EventFailed
		detail = runErr.Error()
	}
	snapshot := e.snapshot()
	progress := e.progress
	telemetry.RunningGauge.Set(float64(q.running))
	q.publish(snapshot, event, detail)
	q.mu.Unlock()

	jobType := string(snapshot.Type)
	switch event {
	case EventSucceeded:
		telemetry.JobsCompleted.WithLabelValues(jobType).Inc()
		log.Info().Int("attempts", snapshot.Attempts).Msg("job completed")
		q.emitProgress(id, 100, "Job completed", "")
	case EventRetryScheduled:
		telemetry.JobsRetried.WithLabelValues(jobType).Inc()
		log.Warn().Err(runErr).Int("attempts", snapshot.Attempts).Msg("job failed; retry scheduled")
	default:
		telemetry.JobsFailed.WithLabelValues(jobType).Inc()
		log.Error().Err(runErr).Int("attempts", snapshot.Attempts).Msg("job failed")
		q.emitProgress(id, progress, "Job failed: "+runErr.Error(), "")
	}
	q.signal()
}

// requeue moves a retrying job back into the pending set once its backoff
// elapses. Jobs cancelled in the meantime are skipped.
func (q *Queue) requeue(id string) {
	q.mu.Lock()
	e, ok := q.jobs[id]
	if !ok || e.job.Status != models.StatusRetrying || q.closed {
		q.mu.Unlock()
		return
	}
	e.retry = nil
	e.job.Status = models.StatusPending
	q.insertPendingLocked(e)
	q.publish(e.snapshot(), EventRequeued, fmt.Sprintf("attempts=%d", e.job.Attempts))
	q.mu.Unlock()
	q.signal()
}
