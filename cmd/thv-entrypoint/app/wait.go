package app

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	entrypoint "github.com/stacklok/toolhive-entrypoint/internal/app"
	"github.com/stacklok/toolhive-entrypoint/internal/retry"
)

func newWaitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "wait",
		Short: "Wait until the database accepts connections",
		Long: `Probe PostgreSQL with the configured readiness policy and exit 0 once it
accepts connections, or 1 when every attempt failed.`,
		RunE: runWait,
	}
}

func runWait(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := runContext(cmd)
	defer stop()

	if entrypoint.NewProber(cfg).Probe(ctx, cfg.Database.ConnectionTarget, cfg.ReadinessPolicy()) != retry.Success {
		return fmt.Errorf("cannot connect to database %s", cfg.Database.String())
	}

	slog.Info("Database is ready", "target", cfg.Database.String())
	return nil
}
