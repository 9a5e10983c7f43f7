package app

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	entrypoint "github.com/stacklok/toolhive-entrypoint/internal/app"
	"github.com/stacklok/toolhive-entrypoint/internal/versions"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run [flags] [-- command [args...]]",
		Short: "Wait for the database, migrate, then run the service",
		Long: `Wait for PostgreSQL to accept connections, apply migrations and supervise
the service until it exits. The service command is taken from the
arguments after "--", or from SERVICE__COMMAND or the configuration file.

The exit status is the service's exit status, 1 when the entrypoint gives up
before the service is supervised, or 2 on a configuration error.`,
		RunE: runEntrypoint,
	}
}

func runEntrypoint(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if len(args) > 0 {
		cfg.Service.Command = args
	}
	if err := cfg.ValidateService(); err != nil {
		return configError(err)
	}

	ctx, stop := runContext(cmd)
	defer stop()

	slog.Info("Starting thv-entrypoint", "version", versions.GetVersionInfo().Version)

	app, err := entrypoint.NewEntrypointApp(ctx,
		entrypoint.WithConfig(cfg),
		entrypoint.WithOutput(cmd.OutOrStdout(), cmd.ErrOrStderr()),
	)
	if err != nil {
		return fmt.Errorf("failed to build entrypoint: %w", err)
	}

	return exitStatus(app.Run(ctx))
}

// runContext returns a context cancelled by SIGINT or SIGTERM
func runContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
}
