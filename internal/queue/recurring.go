package queue

import (
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/derob357/Real-Estate-Deal-Analyzer/internal/models"
)

// Recurrence is a handle on a job scheduled at a fixed interval.
type Recurrence struct {
	q        *Queue
	jobType  models.JobType
	interval time.Duration
	stop     chan struct{}
	once     sync.Once
	done     chan struct{}
}

// ScheduleRecurringJob enqueues a job immediately and then once per interval
// until the returned handle is stopped or the scheduler shuts down.
func (q *Queue) ScheduleRecurringJob(jobType models.JobType, payload map[string]any, interval time.Duration, opts ...JobOption) (*Recurrence, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("recurring interval must be positive, got %s", interval)
	}
	payload = maps.Clone(payload)
	if _, err := q.AddJob(jobType, payload, opts...); err != nil {
		return nil, err
	}

	r := &Recurrence{
		q:        q,
		jobType:  jobType,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, ErrQueueClosed
	}
	q.recurrences[r] = struct{}{}
	go r.loop(payload, opts)
	return r, nil
}

func (r *Recurrence) loop(payload map[string]any, opts []JobOption) {
	defer close(r.done)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			_, err := r.q.AddJob(r.jobType, payload, opts...)
			switch {
			case errors.Is(err, ErrQueueClosed):
				return
			case err != nil:
				r.q.log.Error().Err(err).Str("type", string(r.jobType)).Msg("recurring enqueue failed")
			}
		}
	}
}

// Stop cancels future enqueues. Jobs already added are unaffected. Stop is
// safe to call more than once and returns after the schedule goroutine exits.
func (r *Recurrence) Stop() {
	r.once.Do(func() {
		close(r.stop)
		r.q.mu.Lock()
		delete(r.q.recurrences, r)
		r.q.mu.Unlock()
	})
	<-r.done
}
