package storage

import (
	"context"
	"sync"

	"ratelimiter/internal/models"
)

// DefaultMemoryCapacity bounds the in-memory log when no capacity is given.
const DefaultMemoryCapacity = 10000

// MemoryStore keeps the most recent violations in process memory. Once the
// capacity is reached the oldest entry is dropped for each new one. Contents
// are lost on restart.
type MemoryStore struct {
	mu         sync.RWMutex
	violations []*models.Violation // oldest first
	capacity   int
	closed     bool
}

// NewMemoryStore creates a memory-backed store holding at most capacity entries.
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	return &MemoryStore{
		violations: make([]*models.Violation, 0, min(capacity, 256)),
		capacity:   capacity,
	}
}

// RecordViolation stores a copy of v.
func (m *MemoryStore) RecordViolation(_ context.Context, v *models.Violation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	vCopy := *v
	if len(m.violations) >= m.capacity {
		copy(m.violations, m.violations[1:])
		m.violations[len(m.violations)-1] = &vCopy
		return nil
	}
	m.violations = append(m.violations, &vCopy)
	return nil
}

// Violations walks the log from the newest entry backwards.
func (m *MemoryStore) Violations(_ context.Context, filter models.ViolationFilter) ([]*models.Violation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	limit := filter.EffectiveLimit()
	result := make([]*models.Violation, 0, min(limit, len(m.violations)))
	for i := len(m.violations) - 1; i >= 0 && len(result) < limit; i-- {
		v := m.violations[i]
		if filter.Key != "" && v.Key != filter.Key {
			continue
		}
		if !filter.Since.IsZero() && v.OccurredAt.Before(filter.Since) {
			continue
		}
		vCopy := *v
		result = append(result, &vCopy)
	}

	return result, nil
}

// Ping reports ErrStoreClosed after Close.
func (m *MemoryStore) Ping(_ context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrStoreClosed
	}
	return nil
}

// Close drops the log. It is safe to call more than once.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.violations = nil
	return nil
}
