// Package journal keeps snapshots of finished jobs in Redis so they outlive
// the process, and a dead-letter list of jobs that failed for good.
package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/derob357/Real-Estate-Deal-Analyzer/internal/config"
	"github.com/derob357/Real-Estate-Deal-Analyzer/internal/models"
	"github.com/derob357/Real-Estate-Deal-Analyzer/internal/queue"
)

// ErrNotFound is returned when no snapshot exists for a job.
var ErrNotFound = errors.New("journal entry not found")

const (
	defaultTTL = 7 * 24 * time.Hour
	dlqCap     = 1000
)

// Redis journals terminal job snapshots.
type Redis struct {
	client    *redis.Client
	jobPrefix string
	recentKey string
	dlqKey    string
	ttl       time.Duration
}

// NewClient builds a Redis client from config.
func NewClient(cfg config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
}

// New returns a journal writing under the "journal:" key space.
func New(client *redis.Client, dlqKey string, ttl time.Duration) *Redis {
	if dlqKey == "" {
		dlqKey = "jobs:dlq"
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Redis{
		client:    client,
		jobPrefix: "journal:job:",
		recentKey: "journal:recent",
		dlqKey:    dlqKey,
		ttl:       ttl,
	}
}

func (r *Redis) jobKey(id string) string {
	return r.jobPrefix + id
}

// JobTransition stores the snapshot once the job is terminal. Jobs that
// failed on their own, not by cancellation, are also pushed onto the DLQ.
// Non-terminal transitions are ignored.
func (r *Redis) JobTransition(ctx context.Context, job models.Job, event, _ string) error {
	if !job.Status.Terminal() {
		return nil
	}
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", job.ID, err)
	}
	finished := time.Now()
	if job.CompletedAt != nil {
		finished = *job.CompletedAt
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.jobKey(job.ID), data, r.ttl)
	pipe.ZAdd(ctx, r.recentKey, redis.Z{Score: float64(finished.UnixMilli()), Member: job.ID})
	if event == queue.EventFailed {
		pipe.LPush(ctx, r.dlqKey, job.ID)
		pipe.LTrim(ctx, r.dlqKey, 0, dlqCap-1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("journal job %s: %w", job.ID, err)
	}
	return nil
}

// Snapshot returns the journaled job.
func (r *Redis) Snapshot(ctx context.Context, id string) (models.Job, error) {
	data, err := r.client.Get(ctx, r.jobKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.Job{}, fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return models.Job{}, fmt.Errorf("get job %s: %w", id, err)
	}
	var job models.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return models.Job{}, fmt.Errorf("decode job %s: %w", id, err)
	}
	return job, nil
}

// DLQPeek reads the most recently dead-lettered jobs, newest first. Entries
// whose snapshot has expired are skipped.
func (r *Redis) DLQPeek(ctx context.Context, count int64) ([]models.Job, error) {
	if count <= 0 {
		count = 50
	}
	ids, err := r.client.LRange(ctx, r.dlqKey, 0, count-1).Result()
	if err != nil {
		return nil, fmt.Errorf("read dlq: %w", err)
	}
	return r.load(ctx, ids)
}

// Recent returns up to count terminal jobs, most recently finished first.
func (r *Redis) Recent(ctx context.Context, count int64) ([]models.Job, error) {
	if count <= 0 {
		count = 50
	}
	ids, err := r.client.ZRevRange(ctx, r.recentKey, 0, count-1).Result()
	if err != nil {
		return nil, fmt.Errorf("read recent: %w", err)
	}
	return r.load(ctx, ids)
}

func (r *Redis) load(ctx context.Context, ids []string) ([]models.Job, error) {
	if len(ids) == 0 {
		return []models.Job{}, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.jobKey(id)
	}
	vals, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load snapshots: %w", err)
	}
	jobs := make([]models.Job, 0, len(vals))
	for _, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var job models.Job
		if err := json.Unmarshal([]byte(s), &job); err != nil {
			return nil, fmt.Errorf("decode snapshot: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// Ping reports whether Redis is reachable.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
