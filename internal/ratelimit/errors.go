package ratelimit

import (
	"errors"
	"fmt"
)

// ErrGlobalModeRemoved is returned when options ask for one counter shared by
// every client. Counting is always per key.
var ErrGlobalModeRemoved = errors.New("the global option was removed; limits always apply per client key")

// ConfigurationError reports an unsupported or contradictory option. It is only
// returned at construction time; a policy is never created from invalid options.
type ConfigurationError struct {
	Option string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid rate limit option %s: %s: %v", e.Option, e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid rate limit option %s: %s", e.Option, e.Reason)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

func newConfigurationError(option, reason string, err error) *ConfigurationError {
	return &ConfigurationError{Option: option, Reason: reason, Err: err}
}
