package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// EntrypointMetricsMeterName is the name used for the entrypoint metrics meter
const EntrypointMetricsMeterName = "github.com/stacklok/toolhive-entrypoint/orchestrator"

const (
	// StageReadiness labels readiness probe attempts
	StageReadiness = "readiness"
	// StageMigration labels migration attempts
	StageMigration = "migration"
)

// EntrypointMetrics holds the OpenTelemetry instruments for the orchestration stages
type EntrypointMetrics struct {
	attempts        metric.Int64Counter
	attemptDuration metric.Float64Histogram
	phase           metric.Int64Gauge
	serviceExit     metric.Int64Gauge
}

// NewEntrypointMetrics creates a new EntrypointMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewEntrypointMetrics(provider metric.MeterProvider) (*EntrypointMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(EntrypointMetricsMeterName)

	attempts, err := meter.Int64Counter(
		"thv_entrypoint_attempts",
		metric.WithDescription("Readiness and migration attempts by outcome"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, err
	}

	attemptDuration, err := meter.Float64Histogram(
		"thv_entrypoint_attempt_duration",
		metric.WithDescription("Duration of a single readiness or migration attempt"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300),
	)
	if err != nil {
		return nil, err
	}

	phase, err := meter.Int64Gauge(
		"thv_entrypoint_phase",
		metric.WithDescription("1 for the current orchestration phase, 0 otherwise"),
	)
	if err != nil {
		return nil, err
	}

	serviceExit, err := meter.Int64Gauge(
		"thv_entrypoint_service_exit_code",
		metric.WithDescription("Exit code of the supervised service"),
	)
	if err != nil {
		return nil, err
	}

	return &EntrypointMetrics{
		attempts:        attempts,
		attemptDuration: attemptDuration,
		phase:           phase,
		serviceExit:     serviceExit,
	}, nil
}

// RecordAttempt records one attempt of a stage with its outcome and duration
func (m *EntrypointMetrics) RecordAttempt(ctx context.Context, stage, outcome string, duration time.Duration) {
	if m == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("stage", stage),
		attribute.String("outcome", outcome),
	)
	m.attempts.Add(ctx, 1, attrs)
	m.attemptDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordPhaseTransition marks from as inactive and to as active
func (m *EntrypointMetrics) RecordPhaseTransition(ctx context.Context, from, to string) {
	if m == nil {
		return
	}

	if from != "" && from != to {
		m.phase.Record(ctx, 0, metric.WithAttributes(attribute.String("phase", from)))
	}
	m.phase.Record(ctx, 1, metric.WithAttributes(attribute.String("phase", to)))
}

// RecordServiceExit records the exit code of the supervised service
func (m *EntrypointMetrics) RecordServiceExit(ctx context.Context, code int) {
	if m == nil {
		return
	}
	m.serviceExit.Record(ctx, int64(code))
}
