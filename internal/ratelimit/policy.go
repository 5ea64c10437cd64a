package ratelimit

import (
	"text/template"
	"time"
)

// Policy turns hit counts into decisions. It owns its WindowStore, so several
// policies can run side by side without sharing counts.
type Policy struct {
	opts  Options
	store *WindowStore
	msg   *template.Template
}

// NewPolicy validates opts and starts a policy with its own window store.
// It returns a *ConfigurationError when opts are unusable.
func NewPolicy(opts Options) (*Policy, error) {
	msg, err := opts.compile()
	if err != nil {
		return nil, err
	}
	return &Policy{
		opts:  opts,
		store: NewWindowStore(opts.Window),
		msg:   msg,
	}, nil
}

// newPolicyWithStore builds a policy around an existing store.
func newPolicyWithStore(opts Options, store *WindowStore) (*Policy, error) {
	msg, err := opts.compile()
	if err != nil {
		return nil, err
	}
	return &Policy{opts: opts, store: store, msg: msg}, nil
}

// Evaluate records one hit for key and decides what happens to the request.
// Rejection is checked before delay, so a client over both thresholds is
// rejected outright.
func (p *Policy) Evaluate(key string) Decision {
	count := p.store.Increment(key)
	resetIn := p.store.RemainingTime()

	quota := p.quota(count, resetIn)

	switch {
	case p.opts.Max > 0 && count > p.opts.Max:
		return Decision{
			Action: ActionReject,
			Rejection: &Rejection{
				Status:  p.opts.StatusCode,
				Limit:   p.opts.Max,
				Overage: count - p.opts.Max,
				ResetIn: resetIn,
				Window:  p.opts.Window,
			},
			Quota: quota,
		}
	case p.opts.DelayAfter > 0 && p.opts.DelayUnit > 0 && count > p.opts.DelayAfter:
		return Decision{
			Action: ActionDelay,
			Delay:  p.opts.DelayUnit * time.Duration(count-p.opts.DelayAfter),
			Quota:  quota,
		}
	default:
		return Decision{Action: ActionAllow, Quota: quota}
	}
}

// Count returns the hits recorded for key in the current window.
func (p *Policy) Count(key string) (uint64, bool) {
	return p.store.Count(key)
}

// Quota reports the figures for key as of now without counting a hit.
func (p *Policy) Quota(key string) Quota {
	count, _ := p.store.Count(key)
	return p.quota(count, p.store.RemainingTime())
}

func (p *Policy) quota(count uint64, resetIn time.Duration) Quota {
	q := Quota{Limit: p.opts.Max, ResetIn: resetIn, Unlimited: p.opts.Max == 0}
	if p.opts.Max > 0 && count < p.opts.Max {
		q.Remaining = p.opts.Max - count
	}
	return q
}

// ResetKey forgets key and restarts the shared window for every key.
func (p *Policy) ResetKey(key string) {
	p.store.ResetKey(key)
}

// ResetAll forgets every key and restarts the window.
func (p *Policy) ResetAll() {
	p.store.ResetAll()
}

// TrackedKeys returns the number of keys counted in the current window.
func (p *Policy) TrackedKeys() int {
	return p.store.Len()
}

// Options returns a copy of the options the policy was built with.
func (p *Policy) Options() Options {
	return p.opts
}

// RejectMessage renders the configured message template for r.
func (p *Policy) RejectMessage(r Rejection) string {
	return renderMessage(p.msg, r)
}

// Close stops the window reset ticker.
func (p *Policy) Close() {
	p.store.Close()
}

var _ Limiter = (*Policy)(nil)
