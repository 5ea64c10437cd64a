package observability

import (
	"context"
	"time"

	"ratelimiter/internal/models"
	"ratelimiter/internal/storage"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentedViolationStore wraps a storage.ViolationStore with a span,
// a latency histogram and an error counter per call.
type InstrumentedViolationStore struct {
	inner    storage.ViolationStore
	tracer   trace.Tracer
	duration metric.Float64Histogram
	errors   metric.Int64Counter
}

var _ storage.ViolationStore = (*InstrumentedViolationStore)(nil)

// NewInstrumentedViolationStore instruments inner with the global providers.
func NewInstrumentedViolationStore(inner storage.ViolationStore) (*InstrumentedViolationStore, error) {
	tracer := otel.Tracer("ratelimiter/storage")
	meter := otel.Meter("ratelimiter/storage")

	duration, err := meter.Float64Histogram(
		"storage.operation.duration",
		metric.WithDescription("Duration of violation store operations in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	errCounter, err := meter.Int64Counter(
		"storage.operation.errors",
		metric.WithDescription("Number of violation store operation errors"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	return &InstrumentedViolationStore{
		inner:    inner,
		tracer:   tracer,
		duration: duration,
		errors:   errCounter,
	}, nil
}

func (s *InstrumentedViolationStore) startSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "storage."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(append([]attribute.KeyValue{
			attribute.String("storage.operation", operation),
		}, attrs...)...),
	)
}

func (s *InstrumentedViolationStore) record(ctx context.Context, span trace.Span, operation string, start time.Time, err error) {
	attrs := metric.WithAttributes(attribute.String("operation", operation))

	s.duration.Record(ctx, time.Since(start).Seconds(), attrs)

	if err != nil {
		s.errors.Add(ctx, 1, attrs)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}

	span.End()
}

func (s *InstrumentedViolationStore) RecordViolation(ctx context.Context, v *models.Violation) error {
	ctx, span := s.startSpan(ctx, "RecordViolation",
		attribute.String("violation.id", v.ID),
		attribute.Int64("violation.overage", int64(v.Overage)),
	)
	start := time.Now()
	err := s.inner.RecordViolation(ctx, v)
	s.record(ctx, span, "RecordViolation", start, err)
	return err
}

func (s *InstrumentedViolationStore) Violations(ctx context.Context, filter models.ViolationFilter) ([]*models.Violation, error) {
	ctx, span := s.startSpan(ctx, "Violations",
		attribute.Bool("filter.by_key", filter.Key != ""),
		attribute.Int("filter.limit", filter.EffectiveLimit()),
	)
	start := time.Now()
	result, err := s.inner.Violations(ctx, filter)
	if err == nil {
		span.SetAttributes(attribute.Int("result.count", len(result)))
	}
	s.record(ctx, span, "Violations", start, err)
	return result, err
}

func (s *InstrumentedViolationStore) Ping(ctx context.Context) error {
	ctx, span := s.startSpan(ctx, "Ping")
	start := time.Now()
	err := s.inner.Ping(ctx)
	s.record(ctx, span, "Ping", start, err)
	return err
}

func (s *InstrumentedViolationStore) Close() error {
	return s.inner.Close()
}
