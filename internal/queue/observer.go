package queue

import (
	"context"
	"time"

	"github.com/derob357/Real-Estate-Deal-Analyzer/internal/models"
)

// Transition events delivered to observers.
const (
	EventEnqueued       = "enqueued"
	EventStarted        = "started"
	EventSucceeded      = "succeeded"
	EventRetryScheduled = "retry_scheduled"
	EventRequeued       = "requeued"
	EventFailed         = "failed"
	EventCancelled      = "cancelled"
)

// Observer receives a snapshot of a job after every state transition.
// Calls happen on a single goroutine in transition order.
type Observer interface {
	JobTransition(ctx context.Context, job models.Job, event, detail string) error
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, job models.Job, event, detail string) error

func (f ObserverFunc) JobTransition(ctx context.Context, job models.Job, event, detail string) error {
	return f(ctx, job, event, detail)
}

type transition struct {
	job    models.Job
	event  string
	detail string
}

const observerTimeout = 5 * time.Second

// publish hands a transition to the observer loop without blocking.
func (q *Queue) publish(job models.Job, event, detail string) {
	if len(q.observers) == 0 {
		return
	}
	select {
	case q.transitions <- transition{job: job, event: event, detail: detail}:
	default:
		q.log.Warn().Str("job_id", job.ID).Str("event", event).Msg("observer buffer full; dropping transition")
	}
}

// deliverTransitions fans transitions out to observers until stop closes,
// then flushes whatever is still buffered.
func (q *Queue) deliverTransitions(stop <-chan struct{}) {
	for {
		select {
		case t := <-q.transitions:
			q.deliver(t)
		case <-stop:
			for {
				select {
				case t := <-q.transitions:
					q.deliver(t)
				default:
					return
				}
			}
		}
	}
}

func (q *Queue) deliver(t transition) {
	for _, o := range q.observers {
		ctx, cancel := context.WithTimeout(context.Background(), observerTimeout)
		if err := o.JobTransition(ctx, t.job, t.event, t.detail); err != nil {
			q.log.Warn().Err(err).Str("job_id", t.job.ID).Str("event", t.event).Msg("observer failed")
		}
		cancel()
	}
}
