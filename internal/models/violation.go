package models

import (
	"time"

	"github.com/google/uuid"
)

// Violation records one rejected request. Only rejections are stored, never
// running counts.
type Violation struct {
	ID         string    `json:"id"`
	Key        string    `json:"key"`
	Method     string    `json:"method"`
	Path       string    `json:"path"`
	Count      uint64    `json:"count"`
	Limit      uint64    `json:"limit"`
	Overage    uint64    `json:"overage"`
	ResetMs    int64     `json:"reset_ms"`
	OccurredAt time.Time `json:"occurred_at"`
}

// NewViolation creates a violation stamped with a fresh ID and the current time.
func NewViolation(key, method, path string, limit, overage uint64, resetMs int64) *Violation {
	return &Violation{
		ID:         uuid.New().String(),
		Key:        key,
		Method:     method,
		Path:       path,
		Count:      limit + overage,
		Limit:      limit,
		Overage:    overage,
		ResetMs:    resetMs,
		OccurredAt: time.Now().UTC(),
	}
}

// ViolationFilter narrows a violation listing. Zero values match everything.
type ViolationFilter struct {
	Key   string
	Since time.Time
	Limit int
}

// Listing caps for ViolationFilter.
const (
	DefaultViolationLimit = 100
	MaxViolationLimit     = 1000
)

// EffectiveLimit returns the listing cap to apply.
func (f ViolationFilter) EffectiveLimit() int {
	switch {
	case f.Limit <= 0:
		return DefaultViolationLimit
	case f.Limit > MaxViolationLimit:
		return MaxViolationLimit
	default:
		return f.Limit
	}
}
