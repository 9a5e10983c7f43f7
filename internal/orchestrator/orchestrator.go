// Package orchestrator sequences the entrypoint: it launches the service,
// waits for the database, applies migrations and supervises the service
// until it exits.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/stacklok/toolhive-entrypoint/internal/config"
	"github.com/stacklok/toolhive-entrypoint/internal/retry"
	"github.com/stacklok/toolhive-entrypoint/internal/telemetry"
)

// TracerName is the name used for the orchestration tracer
const TracerName = "github.com/stacklok/toolhive-entrypoint/orchestrator"

// ExitCodeFailure is returned when the entrypoint fails before the service
// exit status can be propagated
const ExitCodeFailure = 1

var errCancelled = errors.New("entrypoint cancelled")

// Orchestrator runs one entrypoint lifecycle
type Orchestrator struct {
	cfg       *config.Config
	launcher  Launcher
	prober    ReadinessProber
	runner    MigrationRunner
	observers []StateObserver
	metrics   *telemetry.EntrypointMetrics
	tracer    trace.Tracer
	logger    *slog.Logger
	now       func() time.Time

	mu      sync.RWMutex
	status  Status
	service Service
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithObservers registers observers for phase transitions
func WithObservers(observers ...StateObserver) Option {
	return func(o *Orchestrator) {
		o.observers = append(o.observers, observers...)
	}
}

// WithMetrics records phase transitions and the service exit code
func WithMetrics(m *telemetry.EntrypointMetrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithTracerProvider records the run and each stage as spans
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *Orchestrator) {
		if tp != nil {
			o.tracer = tp.Tracer(TracerName)
		}
	}
}

// WithRunID overrides the generated run identifier
func WithRunID(id string) Option {
	return func(o *Orchestrator) {
		o.status.RunID = id
	}
}

// New creates an Orchestrator. cfg must already be validated.
func New(
	cfg *config.Config,
	launcher Launcher,
	prober ReadinessProber,
	runner MigrationRunner,
	opts ...Option,
) (*Orchestrator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if launcher == nil || prober == nil || runner == nil {
		return nil, fmt.Errorf("launcher, prober and runner are required")
	}

	o := &Orchestrator{
		cfg:      cfg,
		launcher: launcher,
		prober:   prober,
		runner:   runner,
		tracer:   noop.NewTracerProvider().Tracer(TracerName),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.status.RunID == "" {
		o.status.RunID = uuid.NewString()
	}
	o.logger = slog.With("run_id", o.status.RunID)
	o.status.Phase = PhaseStarting
	o.status.StartedAt = o.now()
	o.status.UpdatedAt = o.status.StartedAt

	return o, nil
}

// Snapshot returns the current status. It is safe for concurrent use.
func (o *Orchestrator) Snapshot() Status {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.snapshotLocked()
}

// snapshotLocked copies the status with the live state of the service
// process. The caller must hold o.mu.
func (o *Orchestrator) snapshotLocked() Status {
	s := o.status
	if o.service != nil {
		state := o.service.State()
		s.Service = &state
	}
	return s
}

// Run drives the lifecycle to completion and returns the process exit code:
// the service's exit status once it has been supervised, or ExitCodeFailure
// when the entrypoint gives up earlier. Run must be called only once.
func (o *Orchestrator) Run(ctx context.Context) int {
	ctx, span := o.tracer.Start(ctx, "entrypoint.run",
		trace.WithAttributes(telemetry.AttrRunID.String(o.Snapshot().RunID)))
	defer span.End()

	o.logger.Info("Starting entrypoint",
		"launch_order", o.cfg.Service.LaunchOrder,
		"fail_on_migration_error", o.cfg.Migration.FailOnError)
	o.transition(ctx, PhaseStarting, nil)

	var svc Service
	if o.cfg.Service.LaunchOrder != config.LaunchAfterMigration {
		var err error
		if svc, err = o.launch(); err != nil {
			return o.fail(ctx, nil, "failed to launch service", err)
		}
	}

	o.transition(ctx, PhaseProbing, nil)
	probeCtx, probeSpan := o.tracer.Start(ctx, "readiness.probe",
		trace.WithAttributes(telemetry.AttrDBTarget.String(o.cfg.Database.ConnectionTarget.String())))
	readiness := o.prober.Probe(probeCtx, o.cfg.Database.ConnectionTarget, o.cfg.ReadinessPolicy())
	endStage(probeSpan, readiness)
	o.update(func(s *Status) { s.Readiness = readiness.String() })
	if ctx.Err() != nil {
		return o.fail(ctx, svc, "cancelled while waiting for database", errCancelled)
	}
	if readiness != retry.Success {
		o.logger.Error("Cannot connect to database", "target", o.cfg.Database.ConnectionTarget.String())
		return o.fail(ctx, svc, "cannot connect to database", nil)
	}

	o.transition(ctx, PhaseMigrating, nil)
	migrateCtx, migrateSpan := o.tracer.Start(ctx, "migration.run")
	migration := o.runner.Run(migrateCtx, o.cfg.MigrationPolicy())
	endStage(migrateSpan, migration)
	o.update(func(s *Status) { s.Migration = migration.String() })
	if ctx.Err() != nil {
		return o.fail(ctx, svc, "cancelled while applying migrations", errCancelled)
	}
	if migration != retry.Success {
		if o.cfg.Migration.FailOnError {
			return o.fail(ctx, svc, "migrations failed", nil)
		}
		o.logger.Warn("Migrations failed, starting service anyway")
	}

	if svc == nil {
		var err error
		if svc, err = o.launch(); err != nil {
			return o.fail(ctx, nil, "failed to launch service", err)
		}
	}

	o.transition(ctx, PhaseSupervising, nil)
	return o.supervise(ctx, svc)
}

func (o *Orchestrator) launch() (Service, error) {
	svc, err := o.launcher.Launch()
	if err != nil {
		return nil, err
	}
	o.mu.Lock()
	o.service = svc
	o.status.UpdatedAt = o.now()
	o.mu.Unlock()
	return svc, nil
}

// supervise waits for the service to exit. Cancellation stops the service
// within the shutdown grace period and still reports its exit status.
func (o *Orchestrator) supervise(ctx context.Context, svc Service) int {
	_, span := o.tracer.Start(ctx, "service.supervise",
		trace.WithAttributes(telemetry.AttrServicePID.Int(svc.PID())))
	defer span.End()

	code, err := svc.Wait(ctx)
	if err != nil {
		o.logger.Info("Shutdown requested, stopping service",
			"pid", svc.PID(),
			"grace", o.cfg.Service.ShutdownGrace)

		code, err = svc.Stop(o.cfg.Service.ShutdownGrace)
		if err != nil {
			return o.fail(ctx, nil, "failed to stop service", err)
		}
	}

	o.logger.Info("Service exited", "pid", svc.PID(), "exit_code", code)
	span.SetAttributes(telemetry.AttrServiceExitCode.Int(code))
	if code != 0 {
		span.SetStatus(codes.Error, fmt.Sprintf("service exited with status %d", code))
	}
	o.metrics.RecordServiceExit(context.WithoutCancel(ctx), code)
	o.transition(ctx, PhaseTerminated, func(s *Status) {
		s.ExitCode = &code
		s.Message = fmt.Sprintf("service exited with status %d", code)
	})
	return code
}

// fail stops a launched service and ends the run in PhaseFailedFatally
func (o *Orchestrator) fail(ctx context.Context, svc Service, reason string, err error) int {
	if err != nil {
		o.logger.Error("Entrypoint failed", "reason", reason, "error", err)
	} else {
		o.logger.Error("Entrypoint failed", "reason", reason)
	}

	if svc != nil {
		o.logger.Info("Stopping service", "pid", svc.PID(), "grace", o.cfg.Service.ShutdownGrace)
		if code, stopErr := svc.Stop(o.cfg.Service.ShutdownGrace); stopErr != nil {
			o.logger.Error("Failed to stop service", "pid", svc.PID(), "error", stopErr)
		} else {
			o.logger.Debug("Service stopped", "pid", svc.PID(), "exit_code", code)
		}
	}

	span := trace.SpanFromContext(ctx)
	telemetry.RecordError(span, err)
	span.SetStatus(codes.Error, reason)

	code := ExitCodeFailure
	o.transition(ctx, PhaseFailedFatally, func(s *Status) {
		s.ExitCode = &code
		s.Message = reason
	})
	return code
}

func endStage(span trace.Span, outcome retry.Outcome) {
	span.SetAttributes(telemetry.AttrOutcome.String(outcome.String()))
	if outcome != retry.Success {
		span.SetStatus(codes.Error, "stage failed")
	}
	span.End()
}

func (o *Orchestrator) update(mutate func(*Status)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	mutate(&o.status)
	o.status.UpdatedAt = o.now()
}

func (o *Orchestrator) transition(ctx context.Context, to Phase, mutate func(*Status)) {
	o.mu.Lock()
	from := o.status.Phase
	o.status.Phase = to
	o.status.UpdatedAt = o.now()
	if mutate != nil {
		mutate(&o.status)
	}
	snapshot := o.snapshotLocked()
	o.mu.Unlock()

	o.logger.Debug("Phase transition", "from", from, "to", to)
	o.metrics.RecordPhaseTransition(context.WithoutCancel(ctx), string(from), string(to))
	for _, observer := range o.observers {
		observer.PhaseChanged(from, snapshot)
	}
}
