package app

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	entrypoint "github.com/stacklok/toolhive-entrypoint/internal/app"
	"github.com/stacklok/toolhive-entrypoint/internal/migration"
	"github.com/stacklok/toolhive-entrypoint/internal/retry"
)

func newMigrateCmd() *cobra.Command {
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migration tool",
		Long:  `Database migration tool. Use with the 'up' subcommand.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Usage()
		},
	}

	migrateUpCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending database migrations",
		Long: `Apply all pending migrations with the configured retry policy, using the
migration command or, when a migration source is configured, golang-migrate.
Exits 1 when every attempt failed.`,
		RunE: runMigrateUp,
	}
	migrateUpCmd.Flags().Bool("once", false, "Make a single attempt without retries")

	migrateCmd.AddCommand(migrateUpCmd)
	return migrateCmd
}

func runMigrateUp(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	once, err := cmd.Flags().GetBool("once")
	if err != nil {
		return fmt.Errorf("failed to get once flag: %w", err)
	}

	policy := cfg.MigrationPolicy()
	if once {
		policy.Retries = 0
	}

	applier, err := entrypoint.NewApplier(cfg, cmd.OutOrStdout(), cmd.ErrOrStderr())
	if err != nil {
		return configError(err)
	}

	ctx, stop := runContext(cmd)
	defer stop()

	if migration.NewRunner(applier).Run(ctx, policy) != retry.Success {
		return fmt.Errorf("migrations failed after %d attempts", policy.TotalAttempts())
	}

	slog.Info("Migrations applied successfully")
	return nil
}
