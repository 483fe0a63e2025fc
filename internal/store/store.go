// Package store is the durable PostgreSQL archive of evaluations and HITL
// escalations. The pipeline inserts, the API reads. Archived alignment
// summaries are version-gated on read: rows written under a different major
// analysis version are flagged incompatible rather than reinterpreted.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// ErrNotFound is returned when no archived record matches.
var ErrNotFound = errors.New("record not found")

// PoolInterface defines the pool operations the archive needs. Satisfied by
// pgxpool.Pool and by pgxmock in tests.
type PoolInterface interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Ping(ctx context.Context) error
	Close()
}

// Store wraps the archive connection pool.
type Store struct {
	pool PoolInterface
}

// New wraps an existing pool.
func New(pool PoolInterface) *Store {
	return &Store{pool: pool}
}

// Connect creates a connection pool from a DSN and verifies connectivity.
func Connect(ctx context.Context, dsn string) (*Store, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database DSN: %w", err)
	}

	// Pool size comes from the DSN (pool_max_conns); only the lifecycle
	// knobs are pinned here.
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute
	config.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Msg("Archive connection pool created")

	return New(pool), nil
}

// Close closes the connection pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
		log.Info().Msg("Archive connection pool closed")
	}
}

// Health checks database connectivity.
func (s *Store) Health(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
