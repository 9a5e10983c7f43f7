// Package migration applies database schema migrations with retries.
//
// What a migration does is opaque here: an Applier either succeeds or fails.
// Two appliers are provided, one running an external migration tool and one
// running golang-migrate in-process from a migration source URL.
package migration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"

	"github.com/golang-migrate/migrate/v4"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file" // file:// migration sources
	_ "github.com/jackc/pgx/v5/stdlib"                   // Needs to be imported for Postgres driver
)

//go:generate mockgen -destination=mocks/mock_applier.go -package=mocks -source=applier.go Applier

// Applier applies all pending migrations once
type Applier interface {
	Apply(ctx context.Context) error
}

// CommandApplier runs an external migration tool. A zero exit status is success.
type CommandApplier struct {
	command []string
	env     []string
	stdout  io.Writer
	stderr  io.Writer
}

// CommandOption configures a CommandApplier
type CommandOption func(*CommandApplier)

// WithOutput redirects the tool's stdout and stderr
func WithOutput(stdout, stderr io.Writer) CommandOption {
	return func(a *CommandApplier) {
		a.stdout = stdout
		a.stderr = stderr
	}
}

// WithEnv appends variables to the inherited environment of the tool
func WithEnv(env ...string) CommandOption {
	return func(a *CommandApplier) {
		a.env = append(a.env, env...)
	}
}

// NewCommandApplier creates an applier running command, e.g. ["alembic", "upgrade", "head"]
func NewCommandApplier(command []string, opts ...CommandOption) *CommandApplier {
	a := &CommandApplier{
		command: command,
		stdout:  os.Stdout,
		stderr:  os.Stderr,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Apply runs the tool to completion. The tool is killed if ctx is done.
func (a *CommandApplier) Apply(ctx context.Context) error {
	if len(a.command) == 0 {
		return fmt.Errorf("migration command is empty")
	}

	//nolint:gosec // G204: the command comes from trusted configuration
	cmd := exec.CommandContext(ctx, a.command[0], a.command[1:]...)
	cmd.Stdout = a.stdout
	cmd.Stderr = a.stderr
	if len(a.env) > 0 {
		cmd.Env = append(os.Environ(), a.env...)
	}

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("migration command exited with status %d: %w", exitErr.ExitCode(), err)
		}
		return fmt.Errorf("failed to run migration command: %w", err)
	}
	return nil
}

// MigrateApplier runs golang-migrate Up from a source URL against a database URL
type MigrateApplier struct {
	sourceURL   string
	databaseURL string
}

// NewMigrateApplier creates an in-process applier
func NewMigrateApplier(sourceURL, databaseURL string) *MigrateApplier {
	return &MigrateApplier{sourceURL: sourceURL, databaseURL: databaseURL}
}

// Apply migrates the database to the latest version. Having nothing to
// apply is a success.
func (a *MigrateApplier) Apply(ctx context.Context) error {
	db, err := sql.Open("pgx", a.databaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}
	defer func() {
		_ = db.Close()
	}()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	driver, err := migratepgx.WithInstance(db, &migratepgx.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(a.sourceURL, "pgx5", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer func() {
		if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
			slog.Debug("Error closing migrate instance", "source_error", srcErr, "database_error", dbErr)
		}
	}()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			m.GracefulStop <- true
		case <-done:
		}
	}()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	version, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		slog.Info("No migrations found in source", "source", a.sourceURL)
	case err != nil:
		slog.Warn("Unable to get migration version", "error", err)
	case dirty:
		return fmt.Errorf("database is in a dirty state at version %d", version)
	default:
		slog.Info("Database schema is up to date", "version", version)
	}

	return nil
}
