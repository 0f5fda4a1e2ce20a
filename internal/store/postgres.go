// Package store persists normalized properties and job history in Postgres.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"

	"github.com/derob357/Real-Estate-Deal-Analyzer/internal/logger"
)

var (
	// ErrPropertyExists is returned by InsertProperty when a property with the
	// same normalized address, city, state and zip is already stored.
	ErrPropertyExists = errors.New("property already exists")
	// ErrNotFound is returned when a looked-up row does not exist.
	ErrNotFound = errors.New("not found")
)

// Store wraps pgxpool for Postgres persistence.
type Store struct {
	pool *pgxpool.Pool
	log  *zerolog.Logger
}

// Options tunes how New waits for the database to come up.
type Options struct {
	ConnectAttempts uint64
	ConnectBackoff  time.Duration
}

// New creates a pooled connection to Postgres and waits until it answers a ping.
func New(ctx context.Context, dsn string, opts Options) (*Store, error) {
	if opts.ConnectAttempts == 0 {
		opts.ConnectAttempts = 10
	}
	if opts.ConnectBackoff <= 0 {
		opts.ConnectBackoff = 500 * time.Millisecond
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	log := logger.WithComponent("store")
	backoff := retry.WithMaxRetries(opts.ConnectAttempts-1, retry.WithCappedDuration(5*time.Second, retry.NewExponential(opts.ConnectBackoff)))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := pool.Ping(ctx); err != nil {
			log.Warn().Err(err).Msg("postgres not ready")
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{pool: pool, log: log}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
