package storage

import (
	"context"

	"ratelimiter/internal/models"
)

// ViolationStore persists rejected requests for later inspection. Running
// window counts are never written here.
type ViolationStore interface {
	// RecordViolation appends one rejection to the log
	RecordViolation(ctx context.Context, v *models.Violation) error

	// Violations returns matching rejections, newest first, capped by filter.EffectiveLimit()
	Violations(ctx context.Context, filter models.ViolationFilter) ([]*models.Violation, error)

	// Ping verifies the backend is reachable
	Ping(ctx context.Context) error

	// Close releases connections and other resources
	Close() error
}
