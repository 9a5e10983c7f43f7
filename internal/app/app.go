// Package app provides application lifecycle management for the entrypoint.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/stacklok/toolhive-entrypoint/internal/orchestrator"
)

// EntrypointApp encapsulates all components needed for one entrypoint run:
// the orchestrator and, when configured, the status HTTP server.
type EntrypointApp struct {
	components *AppComponents
	httpServer *http.Server
	listener   net.Listener

	shutdownTimeout time.Duration
}

// Run drives the orchestrator to completion and returns its exit code. The
// status server, if any, serves for the duration of the run and is shut down
// once the orchestrator returns. Run must be called only once.
func (app *EntrypointApp) Run(ctx context.Context) int {
	var g errgroup.Group
	exitCode := orchestrator.ExitCodeFailure

	g.Go(func() error {
		exitCode = app.components.Orchestrator.Run(ctx)
		return app.stopServer()
	})

	if app.httpServer != nil {
		g.Go(app.serve)
	}

	// The status server is auxiliary: its failures never change the exit code
	if err := g.Wait(); err != nil {
		slog.Error("Status server failed", "error", err)
	}

	app.shutdownTelemetry()
	return exitCode
}

// StatusAddr returns the address the status server listens on, or an empty
// string when the server is disabled
func (app *EntrypointApp) StatusAddr() string {
	if app.listener == nil {
		return ""
	}
	return app.listener.Addr().String()
}

func (app *EntrypointApp) serve() error {
	slog.Info("Status server listening", "address", app.StatusAddr())
	if err := app.httpServer.Serve(app.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server failed: %w", err)
	}
	return nil
}

func (app *EntrypointApp) stopServer() error {
	if app.httpServer == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), app.shutdownTimeout)
	defer cancel()

	if err := app.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	slog.Debug("Status server shutdown complete")
	return nil
}

func (app *EntrypointApp) shutdownTelemetry() {
	if app.components.Telemetry == nil {
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), app.shutdownTimeout)
	defer cancel()

	if err := app.components.Telemetry.Shutdown(shutdownCtx); err != nil {
		slog.Warn("Failed to flush telemetry", "error", err)
	}
}
