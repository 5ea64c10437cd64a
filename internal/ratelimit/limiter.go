// Package ratelimit implements fixed-window request counting for HTTP clients.
// A single window is shared by every client key: when it elapses all counts are
// cleared at once. Each evaluation yields one of three actions (allow, delay or
// reject) together with the quota figures callers expose as response headers.
package ratelimit

import "time"

// Action is the outcome kind of a single evaluation.
type Action int

const (
	// ActionAllow lets the request through unmodified.
	ActionAllow Action = iota
	// ActionDelay lets the request through after Decision.Delay has elapsed.
	ActionDelay
	// ActionReject short-circuits the request with Decision.Rejection.
	ActionReject
)

func (a Action) String() string {
	switch a {
	case ActionAllow:
		return "allow"
	case ActionDelay:
		return "delay"
	case ActionReject:
		return "reject"
	default:
		return "unknown"
	}
}

// Limiter defines the rate limiting contract used by the HTTP intercept and the
// admin API. Implementations must be safe for concurrent use.
type Limiter interface {
	// Evaluate records one hit for key and returns the resulting decision.
	Evaluate(key string) Decision

	// Count returns the hits recorded for key in the current window.
	Count(key string) (uint64, bool)

	// Quota reports the figures for key without recording a hit.
	Quota(key string) Quota

	// ResetKey forgets key. It also restarts the shared window.
	ResetKey(key string)

	// ResetAll forgets every key and restarts the shared window.
	ResetAll()

	// TrackedKeys returns the number of keys counted in the current window.
	TrackedKeys() int

	// RejectMessage renders the configured reject message for r.
	RejectMessage(r Rejection) string

	// Close stops background goroutines and releases resources.
	Close()
}

// Quota contains the figures exposed on every evaluation, whatever the action.
type Quota struct {
	Limit     uint64        // Configured maximum, 0 when the ceiling is disabled
	Remaining uint64        // Hits left before rejection
	ResetIn   time.Duration // Time until the shared window restarts; may be negative
	Unlimited bool          // True when no reject ceiling is configured
}

// Rejection carries the structured fields needed to render a reject response.
type Rejection struct {
	Status  int
	Limit   uint64
	Overage uint64
	ResetIn time.Duration
	Window  time.Duration
}

// Decision is the result of one evaluation. Exactly one action applies: Delay is
// meaningful only for ActionDelay and Rejection is non-nil only for ActionReject.
type Decision struct {
	Action    Action
	Delay     time.Duration
	Rejection *Rejection
	Quota     Quota
}

// Allowed reports whether the request may continue, possibly after a delay.
func (d Decision) Allowed() bool {
	return d.Action != ActionReject
}
