package cli

import (
	"context"
	"fmt"
	"time"

	mongomigrations "slotkeeper/internal/migrations/mongo"
	pgmigrations "slotkeeper/internal/migrations/postgres"
	"slotkeeper/pkg/config"

	"github.com/spf13/cobra"
)

func NewMigrateCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the schema of the configured store",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}
			defer cfg.GracefulShutdown(context.Background())

			switch cfg.StoreDriver {
			case config.StorePostgres:
				err = pgmigrations.RunMigration(ctx, cfg.Client.Postgres, cfg.Log)
			case config.StoreMongo:
				err = mongomigrations.RunMigration(ctx, cfg.Client.Mongo, cfg.MongoDatabaseName, cfg.Log)
			default:
				cfg.Log.Info("Nothing to migrate", "store", cfg.StoreDriver)
				return nil
			}
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Migration completed successfully.")
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "overall deadline for the migration")
	return cmd
}
