package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/derob357/Real-Estate-Deal-Analyzer/internal/models"
)

// JobTransition upserts the job row and appends an audit entry in one
// transaction. It satisfies queue.Observer.
func (s *Store) JobTransition(ctx context.Context, job models.Job, event, detail string) error {
	payloadJSON, err := json.Marshal(job.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	var resultJSON []byte
	if job.Result != nil {
		if resultJSON, err = json.Marshal(job.Result); err != nil {
			return fmt.Errorf("marshal result: %w", err)
		}
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // safe no-op on commit

	_, err = tx.Exec(ctx, `
		INSERT INTO jobs (id, type, priority, payload, status, attempts, max_attempts, error_message, result,
			created_at, started_at, completed_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW())
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			attempts = EXCLUDED.attempts,
			error_message = EXCLUDED.error_message,
			result = EXCLUDED.result,
			started_at = EXCLUDED.started_at,
			completed_at = EXCLUDED.completed_at,
			updated_at = NOW()
	`, job.ID, job.Type, job.Priority, payloadJSON, job.Status, job.Attempts, job.MaxAttempts,
		emptyToNil(job.ErrorMessage), resultJSON, job.CreatedAt, job.StartedAt, job.CompletedAt)
	if err != nil {
		return fmt.Errorf("upsert job: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO audit_logs (job_id, event, detail, ts)
		VALUES ($1, $2, $3, NOW())
	`, job.ID, event, detail)
	if err != nil {
		return fmt.Errorf("append audit: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// GetJob fetches the last recorded snapshot of a job.
func (s *Store) GetJob(ctx context.Context, id string) (models.Job, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, type, priority, payload, status, attempts, max_attempts, error_message, result,
			created_at, started_at, completed_at
		FROM jobs WHERE id = $1
	`, id)

	var job models.Job
	var payloadJSON, resultJSON []byte
	var errMsg pgtype.Text
	if err := row.Scan(&job.ID, &job.Type, &job.Priority, &payloadJSON, &job.Status, &job.Attempts, &job.MaxAttempts,
		&errMsg, &resultJSON, &job.CreatedAt, &job.StartedAt, &job.CompletedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Job{}, fmt.Errorf("job %s: %w", id, ErrNotFound)
		}
		return models.Job{}, fmt.Errorf("scan job: %w", err)
	}
	if err := json.Unmarshal(payloadJSON, &job.Payload); err != nil {
		return models.Job{}, fmt.Errorf("unmarshal payload: %w", err)
	}
	if len(resultJSON) > 0 {
		if err := json.Unmarshal(resultJSON, &job.Result); err != nil {
			return models.Job{}, fmt.Errorf("unmarshal result: %w", err)
		}
	}
	job.ErrorMessage = errMsg.String
	return job, nil
}

// ListAudit returns the audit trail of a job, oldest first.
func (s *Store) ListAudit(ctx context.Context, jobID string) ([]models.AuditLog, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT job_id, event, detail, ts FROM audit_logs WHERE job_id = $1 ORDER BY id
	`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list audit: %w", err)
	}
	logs, err := pgx.CollectRows(rows, pgx.RowToStructByPos[models.AuditLog])
	if err != nil {
		return nil, fmt.Errorf("scan audit: %w", err)
	}
	return logs, nil
}
