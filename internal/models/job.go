package models

import (
	"time"
)

// JobType selects the executor that runs a job.
type JobType string

const (
	JobTypeScraping        JobType = "scraping"
	JobTypeDataProcessing  JobType = "data_processing"
	JobTypeMarketAnalysis  JobType = "market_analysis"
	JobTypeTaxLookup       JobType = "tax_lookup"
	JobTypeImageProcessing JobType = "image_processing"
)

// JobTypes lists every type the queue accepts.
var JobTypes = []JobType{
	JobTypeScraping,
	JobTypeDataProcessing,
	JobTypeMarketAnalysis,
	JobTypeTaxLookup,
	JobTypeImageProcessing,
}

// Valid reports whether t is one of the known job types.
func (t JobType) Valid() bool {
	for _, known := range JobTypes {
		if t == known {
			return true
		}
	}
	return false
}

// JobStatus enumerates lifecycle states of a queued job.
type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
	StatusRetrying  JobStatus = "retrying"
)

// Terminal reports whether no further transitions can happen.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Priority bounds. Lower numbers run first.
const (
	PriorityHighest = 1
	PriorityDefault = 3
	PriorityLowest  = 5
)

// Job is a unit of schedulable work owned by the queue.
type Job struct {
	ID           string         `json:"id"`
	Type         JobType        `json:"type"`
	Priority     int            `json:"priority"`
	Payload      map[string]any `json:"payload"`
	Status       JobStatus      `json:"status"`
	Attempts     int            `json:"attempts"`
	MaxAttempts  int            `json:"max_attempts"`
	CreatedAt    time.Time      `json:"created_at"`
	StartedAt    *time.Time     `json:"started_at,omitempty"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	Result       any            `json:"result,omitempty"`
}

// CanRetry returns true while attempts remain.
func (j *Job) CanRetry() bool {
	return j.Attempts < j.MaxAttempts
}

// Progress is a milestone reported by an executor for a running job.
type Progress struct {
	JobID       string `json:"job_id"`
	Progress    int    `json:"progress"`
	Message     string `json:"message"`
	CurrentStep string `json:"current_step,omitempty"`
}

// QueueStats is a point-in-time count of jobs by status.
type QueueStats struct {
	Pending     int `json:"pending"`
	Running     int `json:"running"`
	Completed   int `json:"completed"`
	Failed      int `json:"failed"`
	Retrying    int `json:"retrying"`
	Total       int `json:"total"`
	QueueLength int `json:"queue_length"`
}

// AuditLog is a single recorded job transition.
type AuditLog struct {
	JobID    string    `json:"job_id"`
	Event    string    `json:"event"`
	Detail   string    `json:"detail"`
	Recorded time.Time `json:"recorded_at"`
}
