package queue

import "errors"

var (
	// ErrJobNotFound is returned when an id does not match any job.
	ErrJobNotFound = errors.New("job not found")
	// ErrUnknownJobType is returned by AddJob for types outside the enum.
	ErrUnknownJobType = errors.New("unknown job type")
	// ErrInvalidPriority is returned by AddJob for priorities outside 1..5.
	ErrInvalidPriority = errors.New("priority must be between 1 and 5")
	// ErrAlreadyRunning is returned when Run is called twice on one queue.
	ErrAlreadyRunning = errors.New("queue scheduler already running")
	// ErrQueueClosed is returned for work offered after the scheduler stopped.
	ErrQueueClosed = errors.New("queue is shut down")
)

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as non-retryable. The job fails immediately even if
// attempts remain.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err, or anything it wraps, was marked Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}
