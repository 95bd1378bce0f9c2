package metrics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	apperrors "github.com/allisson/logvault/internal/errors"
)

// Status labels recorded with every business operation. Failures are split
// by error category so a spike of not_found reads differently from one of
// error.
const (
	StatusSuccess      = "success"
	StatusInvalidInput = "invalid_input"
	StatusNotFound     = "not_found"
	StatusConflict     = "conflict"
	StatusDenied       = "denied"
	StatusError        = "error"
)

// BusinessMetrics records counts and durations of key-management and log
// operations. Domain is the module ("kek", "recovery", "logs", "retention",
// "auth") and operation the use case method ("rotate", "append_entry", ...).
type BusinessMetrics interface {
	RecordOperation(ctx context.Context, domain, operation, status string)
	RecordDuration(ctx context.Context, domain, operation string, duration time.Duration, status string)
}

type otelBusinessMetrics struct {
	operations metric.Int64Counter
	latency    metric.Float64Histogram
}

func NewBusinessMetrics(meterProvider metric.MeterProvider, namespace string) (BusinessMetrics, error) {
	meter := meterProvider.Meter(namespace)

	operations, err := meter.Int64Counter(namespace+"_operations_total",
		metric.WithDescription("Key management and log operations by outcome"),
		metric.WithUnit("{operation}"))
	if err != nil {
		return nil, fmt.Errorf("failed to create operations counter: %w", err)
	}

	latency, err := meter.Float64Histogram(namespace+"_operation_duration_seconds",
		metric.WithDescription("Latency of key management and log operations"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("failed to create operation latency histogram: %w", err)
	}

	return &otelBusinessMetrics{operations: operations, latency: latency}, nil
}

func (b *otelBusinessMetrics) RecordOperation(ctx context.Context, domain, operation, status string) {
	b.operations.Add(ctx, 1, operationAttrs(domain, operation, status))
}

func (b *otelBusinessMetrics) RecordDuration(
	ctx context.Context,
	domain, operation string,
	duration time.Duration,
	status string,
) {
	b.latency.Record(ctx, duration.Seconds(), operationAttrs(domain, operation, status))
}

func operationAttrs(domain, operation, status string) metric.MeasurementOption {
	return metric.WithAttributes(
		attribute.String("domain", domain),
		attribute.String("operation", operation),
		attribute.String("status", status),
	)
}

// StatusOf maps an operation error to its status label.
func StatusOf(err error) string {
	switch {
	case err == nil:
		return StatusSuccess
	case apperrors.Is(err, apperrors.ErrInvalidInput):
		return StatusInvalidInput
	case apperrors.Is(err, apperrors.ErrNotFound):
		return StatusNotFound
	case apperrors.Is(err, apperrors.ErrConflict):
		return StatusConflict
	case apperrors.Is(err, apperrors.ErrForbidden), apperrors.Is(err, apperrors.ErrUnauthorized):
		return StatusDenied
	default:
		return StatusError
	}
}

// Observe records one operation that started at start and ended with err.
// Decorators call it in a defer.
func Observe(ctx context.Context, m BusinessMetrics, domain, operation string, start time.Time, err error) {
	status := StatusOf(err)
	m.RecordOperation(ctx, domain, operation, status)
	m.RecordDuration(ctx, domain, operation, time.Since(start), status)
}

// NoOpBusinessMetrics is used when metrics are disabled.
type NoOpBusinessMetrics struct{}

func NewNoOpBusinessMetrics() BusinessMetrics {
	return NoOpBusinessMetrics{}
}

func (NoOpBusinessMetrics) RecordOperation(context.Context, string, string, string) {}

func (NoOpBusinessMetrics) RecordDuration(context.Context, string, string, time.Duration, string) {}
