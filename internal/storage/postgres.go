package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ratelimiter/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS ratelimit_violations (
		id          UUID PRIMARY KEY,
		client_key  TEXT NOT NULL,
		method      TEXT NOT NULL,
		path        TEXT NOT NULL,
		hit_count   BIGINT NOT NULL,
		hit_limit   BIGINT NOT NULL,
		overage     BIGINT NOT NULL,
		reset_ms    BIGINT NOT NULL,
		occurred_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_ratelimit_violations_key_time ON ratelimit_violations (client_key, occurred_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_ratelimit_violations_time ON ratelimit_violations (occurred_at DESC)`,
}

// PostgresStore writes violations to PostgreSQL through a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects using cfg.DSN, applies pool limits and creates the schema.
func NewPostgresStore(ctx context.Context, cfg models.DatabaseConfig) (*PostgresStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("connection string is required for PostgreSQL storage")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	for _, stmt := range postgresSchema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}

	return &PostgresStore{pool: pool}, nil
}

// RecordViolation inserts v.
func (ps *PostgresStore) RecordViolation(ctx context.Context, v *models.Violation) error {
	_, err := ps.pool.Exec(ctx,
		`INSERT INTO ratelimit_violations (id, client_key, method, path, hit_count, hit_limit, overage, reset_ms, occurred_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		v.ID, v.Key, v.Method, v.Path,
		int64(v.Count), int64(v.Limit), int64(v.Overage), v.ResetMs,
		v.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert violation: %w", err)
	}
	return nil
}

// Violations lists matching rows newest first.
func (ps *PostgresStore) Violations(ctx context.Context, filter models.ViolationFilter) ([]*models.Violation, error) {
	var (
		where []string
		args  []any
	)
	if filter.Key != "" {
		args = append(args, filter.Key)
		where = append(where, fmt.Sprintf("client_key = $%d", len(args)))
	}
	if !filter.Since.IsZero() {
		args = append(args, filter.Since)
		where = append(where, fmt.Sprintf("occurred_at >= $%d", len(args)))
	}

	query := `SELECT id::text, client_key, method, path, hit_count, hit_limit, overage, reset_ms, occurred_at FROM ratelimit_violations`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, filter.EffectiveLimit())
	query += fmt.Sprintf(" ORDER BY occurred_at DESC LIMIT $%d", len(args))

	rows, err := ps.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query violations: %w", err)
	}

	violations, err := pgx.CollectRows(rows, scanViolation)
	if err != nil {
		return nil, fmt.Errorf("failed to read violations: %w", err)
	}
	return violations, nil
}

func scanViolation(row pgx.CollectableRow) (*models.Violation, error) {
	var v models.Violation
	var count, limit, overage int64
	var occurredAt time.Time
	if err := row.Scan(&v.ID, &v.Key, &v.Method, &v.Path, &count, &limit, &overage, &v.ResetMs, &occurredAt); err != nil {
		return nil, err
	}
	v.Count = uint64(count)
	v.Limit = uint64(limit)
	v.Overage = uint64(overage)
	v.OccurredAt = occurredAt.UTC()
	return &v, nil
}

// Ping verifies the database is reachable.
func (ps *PostgresStore) Ping(ctx context.Context) error {
	return ps.pool.Ping(ctx)
}

// Close closes the connection pool.
func (ps *PostgresStore) Close() error {
	ps.pool.Close()
	return nil
}
