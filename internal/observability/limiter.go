package observability

import (
	"context"

	"ratelimiter/internal/ratelimit"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// InstrumentedLimiter wraps a ratelimit.Limiter and records every decision.
// Client keys never become metric attributes.
type InstrumentedLimiter struct {
	inner        ratelimit.Limiter
	decisions    metric.Int64Counter
	delays       metric.Float64Histogram
	resets       metric.Int64Counter
	registration metric.Registration
}

var _ ratelimit.Limiter = (*InstrumentedLimiter)(nil)

// NewInstrumentedLimiter instruments inner with the global meter provider.
func NewInstrumentedLimiter(inner ratelimit.Limiter) (*InstrumentedLimiter, error) {
	meter := otel.Meter("ratelimiter/ratelimit")

	decisions, err := meter.Int64Counter(
		"ratelimit.decisions",
		metric.WithDescription("Rate limit decisions by action"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		return nil, err
	}

	delays, err := meter.Float64Histogram(
		"ratelimit.delay.duration",
		metric.WithDescription("Delay imposed on requests over the delay threshold"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60),
	)
	if err != nil {
		return nil, err
	}

	resets, err := meter.Int64Counter(
		"ratelimit.resets",
		metric.WithDescription("Administrative counter resets by scope"),
		metric.WithUnit("{reset}"),
	)
	if err != nil {
		return nil, err
	}

	trackedKeys, err := meter.Int64ObservableGauge(
		"ratelimit.tracked_keys",
		metric.WithDescription("Client keys counted in the current window"),
		metric.WithUnit("{key}"),
	)
	if err != nil {
		return nil, err
	}

	l := &InstrumentedLimiter{
		inner:     inner,
		decisions: decisions,
		delays:    delays,
		resets:    resets,
	}

	l.registration, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(trackedKeys, int64(l.inner.TrackedKeys()))
		return nil
	}, trackedKeys)
	if err != nil {
		return nil, err
	}

	return l, nil
}

func (l *InstrumentedLimiter) Evaluate(key string) ratelimit.Decision {
	d := l.inner.Evaluate(key)

	ctx := context.Background()
	l.decisions.Add(ctx, 1, metric.WithAttributes(attribute.String("action", d.Action.String())))
	if d.Action == ratelimit.ActionDelay {
		l.delays.Record(ctx, d.Delay.Seconds())
	}
	return d
}

func (l *InstrumentedLimiter) Count(key string) (uint64, bool) {
	return l.inner.Count(key)
}

func (l *InstrumentedLimiter) ResetKey(key string) {
	l.inner.ResetKey(key)
	l.resets.Add(context.Background(), 1, metric.WithAttributes(attribute.String("scope", "key")))
}

func (l *InstrumentedLimiter) ResetAll() {
	l.inner.ResetAll()
	l.resets.Add(context.Background(), 1, metric.WithAttributes(attribute.String("scope", "all")))
}

func (l *InstrumentedLimiter) TrackedKeys() int {
	return l.inner.TrackedKeys()
}

func (l *InstrumentedLimiter) RejectMessage(r ratelimit.Rejection) string {
	return l.inner.RejectMessage(r)
}

// Quota passes through to the wrapped limiter.
func (l *InstrumentedLimiter) Quota(key string) ratelimit.Quota {
	return l.inner.Quota(key)
}

// Close stops the gauge callback and closes the wrapped limiter.
func (l *InstrumentedLimiter) Close() {
	if l.registration != nil {
		_ = l.registration.Unregister()
	}
	l.inner.Close()
}
