package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"ratelimiter/internal/models"

	_ "modernc.org/sqlite"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS violations (
		id          TEXT PRIMARY KEY,
		client_key  TEXT NOT NULL,
		method      TEXT NOT NULL,
		path        TEXT NOT NULL,
		hit_count   INTEGER NOT NULL,
		hit_limit   INTEGER NOT NULL,
		overage     INTEGER NOT NULL,
		reset_ms    INTEGER NOT NULL,
		occurred_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_violations_key_time ON violations (client_key, occurred_at)`,
	`CREATE INDEX IF NOT EXISTS idx_violations_time ON violations (occurred_at)`,
}

// SQLiteStore writes violations to a SQLite database through the pure-Go
// modernc driver. Timestamps are stored as Unix nanoseconds.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the database at cfg.DSN and creates the schema.
func NewSQLiteStore(ctx context.Context, cfg models.DatabaseConfig) (*SQLiteStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("connection string is required for SQLite storage")
	}

	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite serializes writers; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	for _, stmt := range sqliteSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

// RecordViolation inserts v.
func (ss *SQLiteStore) RecordViolation(ctx context.Context, v *models.Violation) error {
	_, err := ss.db.ExecContext(ctx,
		`INSERT INTO violations (id, client_key, method, path, hit_count, hit_limit, overage, reset_ms, occurred_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ID, v.Key, v.Method, v.Path,
		int64(v.Count), int64(v.Limit), int64(v.Overage), v.ResetMs,
		v.OccurredAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert violation: %w", err)
	}
	return nil
}

// Violations lists matching rows newest first.
func (ss *SQLiteStore) Violations(ctx context.Context, filter models.ViolationFilter) ([]*models.Violation, error) {
	var (
		where []string
		args  []any
	)
	if filter.Key != "" {
		where = append(where, "client_key = ?")
		args = append(args, filter.Key)
	}
	if !filter.Since.IsZero() {
		where = append(where, "occurred_at >= ?")
		args = append(args, filter.Since.UnixNano())
	}

	query := `SELECT id, client_key, method, path, hit_count, hit_limit, overage, reset_ms, occurred_at FROM violations`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY occurred_at DESC LIMIT ?"
	args = append(args, filter.EffectiveLimit())

	rows, err := ss.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query violations: %w", err)
	}
	defer rows.Close()

	var violations []*models.Violation
	for rows.Next() {
		var v models.Violation
		var count, limit, overage, occurredAt int64
		if err := rows.Scan(&v.ID, &v.Key, &v.Method, &v.Path, &count, &limit, &overage, &v.ResetMs, &occurredAt); err != nil {
			return nil, fmt.Errorf("failed to scan violation: %w", err)
		}
		v.Count = uint64(count)
		v.Limit = uint64(limit)
		v.Overage = uint64(overage)
		v.OccurredAt = time.Unix(0, occurredAt).UTC()
		violations = append(violations, &v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate violations: %w", err)
	}

	return violations, nil
}

// Ping verifies the database is reachable.
func (ss *SQLiteStore) Ping(ctx context.Context) error {
	return ss.db.PingContext(ctx)
}

// Close closes the database.
func (ss *SQLiteStore) Close() error {
	return ss.db.Close()
}
