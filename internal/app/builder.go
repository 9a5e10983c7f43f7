package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/stacklok/toolhive-entrypoint/internal/api"
	"github.com/stacklok/toolhive-entrypoint/internal/config"
	"github.com/stacklok/toolhive-entrypoint/internal/migration"
	"github.com/stacklok/toolhive-entrypoint/internal/orchestrator"
	"github.com/stacklok/toolhive-entrypoint/internal/readiness"
	"github.com/stacklok/toolhive-entrypoint/internal/retry"
	"github.com/stacklok/toolhive-entrypoint/internal/supervisor"
	"github.com/stacklok/toolhive-entrypoint/internal/telemetry"
	"github.com/stacklok/toolhive-entrypoint/internal/versions"
)

const (
	defaultRequestTimeout  = 10 * time.Second
	defaultReadTimeout     = 10 * time.Second
	defaultWriteTimeout    = 15 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 5 * time.Second
)

// EntrypointAppOptions is a function that configures the entrypoint app builder
type EntrypointAppOptions func(*entrypointAppConfig) error

// entrypointAppConfig collects everything NewEntrypointApp needs.
// Components left nil are built from the configuration.
type entrypointAppConfig struct {
	config *config.Config

	// Optional component overrides (primarily for testing)
	launcher  orchestrator.Launcher
	prober    orchestrator.ReadinessProber
	runner    orchestrator.MigrationRunner
	sleeper   retry.Sleeper
	observers []orchestrator.StateObserver

	// Output of the service and migration processes
	stdout io.Writer
	stderr io.Writer

	// HTTP server options
	middlewares     []func(http.Handler) http.Handler
	requestTimeout  time.Duration
	readTimeout     time.Duration
	writeTimeout    time.Duration
	idleTimeout     time.Duration
	shutdownTimeout time.Duration
}

func baseConfig(opts ...EntrypointAppOptions) (*entrypointAppConfig, error) {
	cfg := &entrypointAppConfig{
		stdout:          os.Stdout,
		stderr:          os.Stderr,
		requestTimeout:  defaultRequestTimeout,
		readTimeout:     defaultReadTimeout,
		writeTimeout:    defaultWriteTimeout,
		idleTimeout:     defaultIdleTimeout,
		shutdownTimeout: defaultShutdownTimeout,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	return cfg, nil
}

// NewEntrypointApp builds the components of one entrypoint run
func NewEntrypointApp(ctx context.Context, opts ...EntrypointAppOptions) (*EntrypointApp, error) {
	b, err := baseConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build base configuration: %w", err)
	}

	if b.launcher == nil {
		if err := b.config.ValidateService(); err != nil {
			return nil, err
		}
		b.launcher = orchestrator.ProcessLauncher(
			supervisor.New(b.config.Service.Command, supervisor.WithOutput(b.stdout, b.stderr)))
	}

	tel, err := telemetry.New(ctx,
		telemetry.WithTelemetryConfig(&b.config.Telemetry),
		telemetry.WithServiceVersion(versions.GetVersionInfo().Version),
		telemetry.WithPrometheusEndpoint(b.config.Status.Address != ""),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	// Ensure cleanup happens on error
	cleanupNeeded := true
	defer func() {
		if cleanupNeeded {
			_ = tel.Shutdown(context.WithoutCancel(ctx))
		}
	}()

	metrics, err := telemetry.NewEntrypointMetrics(tel.MeterProvider())
	if err != nil {
		return nil, fmt.Errorf("failed to create entrypoint metrics: %w", err)
	}

	if err := buildStages(b, metrics); err != nil {
		return nil, err
	}

	orch, err := orchestrator.New(b.config, b.launcher, b.prober, b.runner,
		orchestrator.WithObservers(b.observers...),
		orchestrator.WithMetrics(metrics),
		orchestrator.WithTracerProvider(tel.TracerProvider()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create orchestrator: %w", err)
	}

	app := &EntrypointApp{
		components: &AppComponents{
			Orchestrator: orch,
			Telemetry:    tel,
		},
		shutdownTimeout: b.shutdownTimeout,
	}

	if b.config.Status.Address != "" {
		app.httpServer, err = buildHTTPServer(b, orch, tel)
		if err != nil {
			return nil, fmt.Errorf("failed to build HTTP server: %w", err)
		}

		// Bind now so that a taken port fails the run before anything starts
		app.listener, err = net.Listen("tcp", b.config.Status.Address)
		if err != nil {
			return nil, fmt.Errorf("failed to listen on %s: %w", b.config.Status.Address, err)
		}
	}

	cleanupNeeded = false
	return app, nil
}

// WithConfig sets the configuration
func WithConfig(c *config.Config) EntrypointAppOptions {
	return func(cfg *entrypointAppConfig) error {
		cfg.config = c
		return nil
	}
}

// WithOutput redirects the output of the service and migration processes
func WithOutput(stdout, stderr io.Writer) EntrypointAppOptions {
	return func(cfg *entrypointAppConfig) error {
		if stdout == nil || stderr == nil {
			return fmt.Errorf("output writers cannot be nil")
		}
		cfg.stdout = stdout
		cfg.stderr = stderr
		return nil
	}
}

// WithMiddlewares sets custom HTTP middlewares for the status server
func WithMiddlewares(mw ...func(http.Handler) http.Handler) EntrypointAppOptions {
	return func(cfg *entrypointAppConfig) error {
		cfg.middlewares = mw
		return nil
	}
}

// WithShutdownTimeout bounds the status server and telemetry shutdown
func WithShutdownTimeout(d time.Duration) EntrypointAppOptions {
	return func(cfg *entrypointAppConfig) error {
		if d <= 0 {
			return fmt.Errorf("shutdown timeout must be positive, got %s", d)
		}
		cfg.shutdownTimeout = d
		return nil
	}
}

// WithObservers registers observers notified on every phase transition
func WithObservers(observers ...orchestrator.StateObserver) EntrypointAppOptions {
	return func(cfg *entrypointAppConfig) error {
		cfg.observers = append(cfg.observers, observers...)
		return nil
	}
}

// WithLauncher allows injecting a custom service launcher (for testing)
func WithLauncher(l orchestrator.Launcher) EntrypointAppOptions {
	return func(cfg *entrypointAppConfig) error {
		cfg.launcher = l
		return nil
	}
}

// WithReadinessProber allows injecting a custom readiness prober (for testing)
func WithReadinessProber(p orchestrator.ReadinessProber) EntrypointAppOptions {
	return func(cfg *entrypointAppConfig) error {
		cfg.prober = p
		return nil
	}
}

// WithMigrationRunner allows injecting a custom migration runner (for testing)
func WithMigrationRunner(r orchestrator.MigrationRunner) EntrypointAppOptions {
	return func(cfg *entrypointAppConfig) error {
		cfg.runner = r
		return nil
	}
}

// WithSleeper replaces the sleep between probe and migration attempts
func WithSleeper(s retry.Sleeper) EntrypointAppOptions {
	return func(cfg *entrypointAppConfig) error {
		cfg.sleeper = s
		return nil
	}
}

// NewProber builds the PostgreSQL readiness prober described by cfg
func NewProber(cfg *config.Config, opts ...readiness.Option) *readiness.Prober {
	return readiness.NewProber(
		readiness.NewPostgresChecker(cfg.Database.SSLMode),
		append([]readiness.Option{readiness.WithCheckTimeout(cfg.Readiness.CheckTimeout)}, opts...)...,
	)
}

// NewApplier builds the migration applier described by cfg: golang-migrate
// when a migration source is set, the external command otherwise
func NewApplier(cfg *config.Config, stdout, stderr io.Writer) (migration.Applier, error) {
	if cfg.Migration.UsesMigrateSource() {
		databaseURL, err := cfg.Database.GetConnectionString()
		if err != nil {
			return nil, fmt.Errorf("failed to build migration connection string: %w", err)
		}
		return migration.NewMigrateApplier(cfg.Migration.Source, databaseURL), nil
	}
	return migration.NewCommandApplier(cfg.Migration.Command, migration.WithOutput(stdout, stderr)), nil
}

// buildStages builds the readiness prober and migration runner unless injected
func buildStages(b *entrypointAppConfig, metrics *telemetry.EntrypointMetrics) error {
	if b.prober == nil {
		proberOpts := []readiness.Option{readiness.WithMetrics(metrics)}
		if b.sleeper != nil {
			proberOpts = append(proberOpts, readiness.WithSleeper(b.sleeper))
		}
		b.prober = NewProber(b.config, proberOpts...)
	}

	if b.runner == nil {
		applier, err := NewApplier(b.config, b.stdout, b.stderr)
		if err != nil {
			return err
		}
		runnerOpts := []migration.Option{migration.WithMetrics(metrics)}
		if b.sleeper != nil {
			runnerOpts = append(runnerOpts, migration.WithSleeper(b.sleeper))
		}
		b.runner = migration.NewRunner(applier, runnerOpts...)
	}

	return nil
}

// buildHTTPServer builds the status server with router and middleware
func buildHTTPServer(
	b *entrypointAppConfig,
	provider api.StatusProvider,
	tel *telemetry.Telemetry,
) (*http.Server, error) {
	slog.Info("Initializing status server")

	// Use default middlewares if not provided
	if b.middlewares == nil {
		b.middlewares = []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Recoverer,
			middleware.Timeout(b.requestTimeout),
			api.LoggingMiddleware,
		}
	}

	// Metrics and tracing go first to capture every request
	httpMetrics, err := telemetry.NewHTTPMetrics(tel.MeterProvider())
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP metrics: %w", err)
	}
	instrumentation := []func(http.Handler) http.Handler{telemetry.TracingMiddleware(tel.TracerProvider())}
	if httpMetrics != nil {
		instrumentation = append(instrumentation, httpMetrics.Middleware)
	}

	router := api.NewServer(provider,
		api.WithMiddlewares(instrumentation...),
		api.WithMiddlewares(b.middlewares...),
		api.WithMetricsHandler(tel.MetricsHandler()),
	)

	return &http.Server{
		Addr:         b.config.Status.Address,
		Handler:      router,
		ReadTimeout:  b.readTimeout,
		WriteTimeout: b.writeTimeout,
		IdleTimeout:  b.idleTimeout,
	}, nil
}
