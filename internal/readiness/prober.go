package readiness

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/toolhive-entrypoint/internal/config"
	"github.com/stacklok/toolhive-entrypoint/internal/retry"
	"github.com/stacklok/toolhive-entrypoint/internal/telemetry"
)

// Prober polls a Checker until the target is ready or the policy is exhausted
type Prober struct {
	checker      Checker
	checkTimeout time.Duration
	sleep        retry.Sleeper
	metrics      *telemetry.EntrypointMetrics
}

// Option configures a Prober
type Option func(*Prober)

// WithCheckTimeout bounds every single check. It is independent of the retry delay.
func WithCheckTimeout(d time.Duration) Option {
	return func(p *Prober) {
		p.checkTimeout = d
	}
}

// WithSleeper replaces the sleep used between attempts
func WithSleeper(s retry.Sleeper) Option {
	return func(p *Prober) {
		p.sleep = s
	}
}

// WithMetrics records every attempt
func WithMetrics(m *telemetry.EntrypointMetrics) Option {
	return func(p *Prober) {
		p.metrics = m
	}
}

// NewProber creates a Prober around checker
func NewProber(checker Checker, opts ...Option) *Prober {
	p := &Prober{
		checker:      checker,
		checkTimeout: config.DefaultCheckTimeout,
		sleep:        retry.Sleep,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Probe checks target up to policy.MaxAttempts times and returns Success on
// the first check that passes. After a failed check it sleeps for the next
// delay of the policy, except after the last attempt. Failure is returned
// once every attempt has failed, on invalid input, or when ctx is done.
func (p *Prober) Probe(ctx context.Context, target config.ConnectionTarget, policy retry.Policy) retry.Outcome {
	if err := target.Validate(); err != nil {
		slog.Error("Invalid readiness target", "error", err)
		return retry.Failure
	}
	if err := policy.Validate(); err != nil {
		slog.Error("Invalid readiness policy", "error", err)
		return retry.Failure
	}

	slog.Info("Waiting for database to accept connections",
		"target", target.String(),
		"max_attempts", policy.MaxAttempts,
		"delay", policy.Delay)

	delays := policy.NewBackOff()
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		err := p.check(ctx, target)
		if err == nil {
			slog.Info("Database is ready", "attempt", attempt, "max_attempts", policy.MaxAttempts)
			return retry.Success
		}

		slog.Warn(fmt.Sprintf("Database not ready (attempt %d/%d)", attempt, policy.MaxAttempts),
			"error", err)

		if attempt == policy.MaxAttempts {
			break
		}

		delay := delays.NextBackOff()
		if err := p.sleep(ctx, delay); err != nil {
			slog.Warn("Readiness probing cancelled", "attempt", attempt, "error", err)
			return retry.Failure
		}
	}

	slog.Error("Database did not become ready", "attempts", policy.MaxAttempts)
	return retry.Failure
}

// check runs one bounded check. Errors of any kind count as a failed attempt.
func (p *Prober) check(ctx context.Context, target config.ConnectionTarget) (err error) {
	checkCtx, cancel := context.WithTimeout(ctx, p.checkTimeout)
	defer cancel()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("readiness check panicked: %v", r)
		}
		outcome := retry.OutcomeOf(err).String()
		p.metrics.RecordAttempt(ctx, telemetry.StageReadiness, outcome, time.Since(start))
		trace.SpanFromContext(ctx).AddEvent("readiness.attempt",
			trace.WithAttributes(telemetry.AttrOutcome.String(outcome)))
	}()

	return p.checker.Check(checkCtx, target)
}
