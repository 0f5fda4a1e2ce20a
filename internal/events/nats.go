package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/derob357/Real-Estate-Deal-Analyzer/internal/logger"
	"github.com/derob357/Real-Estate-Deal-Analyzer/internal/models"
	"github.com/derob357/Real-Estate-Deal-Analyzer/internal/queue"
)

const (
	// JobSubmitSubject accepts JobSubmissionMessage payloads.
	JobSubmitSubject = "jobs.submit"
	// JobStatusSubjectPrefix is followed by the job type.
	JobStatusSubjectPrefix = "jobs.status."
)

// JobSubmissionMessage asks the service to enqueue a job.
type JobSubmissionMessage struct {
	Type        models.JobType `json:"type"`
	Payload     map[string]any `json:"payload"`
	Priority    int            `json:"priority,omitempty"`
	MaxAttempts int            `json:"max_attempts,omitempty"`
}

// JobStatusMessage is published after every job transition.
type JobStatusMessage struct {
	JobID    string           `json:"job_id"`
	Type     models.JobType   `json:"type"`
	Event    string           `json:"event"`
	Status   models.JobStatus `json:"status"`
	Attempts int              `json:"attempts"`
	Error    string           `json:"error,omitempty"`
	Detail   string           `json:"detail,omitempty"`
}

type publisher interface {
	Publish(subject string, data []byte) error
}

// NATSPublisher forwards job transitions to NATS. It satisfies queue.Observer.
type NATSPublisher struct {
	conn *nats.Conn
	pub  publisher
	sub  *nats.Subscription
	log  *zerolog.Logger
}

// ConnectNATS dials url, or the NATS default URL when url is empty.
func ConnectNATS(url string) (*NATSPublisher, error) {
	if url == "" {
		url = nats.DefaultURL
	}
	conn, err := nats.Connect(url, nats.Name("propertyd"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	p := newNATSPublisher(conn)
	p.conn = conn
	return p, nil
}

func newNATSPublisher(pub publisher) *NATSPublisher {
	return &NATSPublisher{pub: pub, log: logger.WithComponent("nats")}
}

func (p *NATSPublisher) JobTransition(_ context.Context, job models.Job, event, detail string) error {
	data, err := json.Marshal(JobStatusMessage{
		JobID:    job.ID,
		Type:     job.Type,
		Event:    event,
		Status:   job.Status,
		Attempts: job.Attempts,
		Error:    job.ErrorMessage,
		Detail:   detail,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal job status message: %w", err)
	}
	if err := p.pub.Publish(JobStatusSubjectPrefix+string(job.Type), data); err != nil {
		return fmt.Errorf("failed to publish job status: %w", err)
	}
	return nil
}

// Enqueuer is the part of the queue submissions need.
type Enqueuer interface {
	AddJob(jobType models.JobType, payload map[string]any, opts ...queue.JobOption) (string, error)
}

// SubscribeSubmissions enqueues every message received on JobSubmitSubject.
func (p *NATSPublisher) SubscribeSubmissions(q Enqueuer) error {
	if p.conn == nil {
		return fmt.Errorf("subscribe %s: not connected", JobSubmitSubject)
	}
	sub, err := p.conn.Subscribe(JobSubmitSubject, func(msg *nats.Msg) {
		id, err := HandleSubmission(q, msg.Data)
		if err != nil {
			p.log.Warn().Err(err).Msg("rejected job submission")
			return
		}
		p.log.Info().Str("job_id", id).Msg("job submitted over nats")
		if msg.Reply != "" {
			_ = msg.Respond([]byte(id))
		}
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", JobSubmitSubject, err)
	}
	p.sub = sub
	return nil
}

// HandleSubmission decodes a submission and enqueues it.
func HandleSubmission(q Enqueuer, data []byte) (string, error) {
	var msg JobSubmissionMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return "", fmt.Errorf("decode submission: %w", err)
	}
	var opts []queue.JobOption
	if msg.Priority != 0 {
		opts = append(opts, queue.WithPriority(msg.Priority))
	}
	if msg.MaxAttempts != 0 {
		opts = append(opts, queue.WithMaxAttempts(msg.MaxAttempts))
	}
	return q.AddJob(msg.Type, msg.Payload, opts...)
}

func (p *NATSPublisher) Close() {
	if p.sub != nil {
		_ = p.sub.Unsubscribe()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}
