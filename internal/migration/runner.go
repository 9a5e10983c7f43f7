package migration

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/toolhive-entrypoint/internal/retry"
	"github.com/stacklok/toolhive-entrypoint/internal/telemetry"
)

// Runner applies migrations with one initial attempt plus a bounded number of retries
type Runner struct {
	applier Applier
	sleep   retry.Sleeper
	metrics *telemetry.EntrypointMetrics
}

// Option configures a Runner
type Option func(*Runner)

// WithSleeper replaces the sleep used before retries
func WithSleeper(s retry.Sleeper) Option {
	return func(r *Runner) {
		r.sleep = s
	}
}

// WithMetrics records every attempt
func WithMetrics(m *telemetry.EntrypointMetrics) Option {
	return func(r *Runner) {
		r.metrics = m
	}
}

// NewRunner creates a Runner around applier
func NewRunner(applier Applier, opts ...Option) *Runner {
	r := &Runner{
		applier: applier,
		sleep:   retry.Sleep,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run applies migrations once and, on failure, retries up to policy.Retries
// more times. Every retry is preceded by a sleep. Run returns Success on the
// first attempt that succeeds and Failure once all attempts are exhausted,
// on an invalid policy, or when ctx is done.
func (r *Runner) Run(ctx context.Context, policy retry.RetriesPolicy) retry.Outcome {
	if err := policy.Validate(); err != nil {
		slog.Error("Invalid migration policy", "error", err)
		return retry.Failure
	}

	total := policy.TotalAttempts()
	if r.attempt(ctx, 1, total) == retry.Success {
		return retry.Success
	}

	delays := policy.NewBackOff()
	for retryNum := 1; retryNum <= policy.Retries; retryNum++ {
		delay := delays.NextBackOff()
		slog.Info("Retrying migrations", "retry", retryNum, "retries", policy.Retries, "delay", delay)
		if err := r.sleep(ctx, delay); err != nil {
			slog.Warn("Migration retries cancelled", "error", err)
			return retry.Failure
		}

		if r.attempt(ctx, retryNum+1, total) == retry.Success {
			return retry.Success
		}
	}

	slog.Error("Migrations failed after all attempts, exiting migration stage", "attempts", total)
	return retry.Failure
}

// attempt runs the applier once. Errors and panics are both failed attempts.
func (r *Runner) attempt(ctx context.Context, attempt, total int) (outcome retry.Outcome) {
	slog.Info(fmt.Sprintf("Applying migrations (attempt %d/%d)", attempt, total))

	start := time.Now()
	var err error
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("migration panicked: %v", rec)
		}
		outcome = retry.OutcomeOf(err)
		r.metrics.RecordAttempt(ctx, telemetry.StageMigration, outcome.String(), time.Since(start))
		trace.SpanFromContext(ctx).AddEvent("migration.attempt", trace.WithAttributes(
			telemetry.AttrAttempt.Int(attempt),
			telemetry.AttrOutcome.String(outcome.String()),
		))

		if outcome == retry.Success {
			slog.Info("Migrations applied successfully", "attempt", attempt, "duration", time.Since(start))
		} else {
			slog.Warn(fmt.Sprintf("Migration attempt %d/%d failed", attempt, total), "error", err)
		}
	}()

	err = r.applier.Apply(ctx)
	return retry.OutcomeOf(err)
}
