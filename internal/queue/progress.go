package queue

import "github.com/derob357/Real-Estate-Deal-Analyzer/internal/models"

// SubscribeToProgress registers the progress callback for a job. A job has at
// most one subscriber; a second call replaces the first.
func (q *Queue) SubscribeToProgress(jobID string, fn func(models.Progress)) {
	if fn == nil {
		return
	}
	q.mu.Lock()
	q.subscribers[jobID] = fn
	q.mu.Unlock()
}

// Unsubscribe removes the progress callback for a job, if any.
func (q *Queue) Unsubscribe(jobID string) {
	q.mu.Lock()
	delete(q.subscribers, jobID)
	q.mu.Unlock()
}

func (q *Queue) emitProgress(jobID string, progress int, message, step string) {
	progress = min(max(progress, 0), 100)

	q.mu.Lock()
	if e, ok := q.jobs[jobID]; ok {
		e.progress = progress
	}
	fn := q.subscribers[jobID]
	q.mu.Unlock()

	if fn == nil {
		return
	}
	fn(models.Progress{JobID: jobID, Progress: progress, Message: message, CurrentStep: step})
}
