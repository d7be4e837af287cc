// Package cli holds the slotkeeper command tree.
package cli

import (
	"context"
	"fmt"

	"slotkeeper/pkg/config"

	"github.com/spf13/cobra"
)

const ServiceName = "slotkeeper"

func NewRoot() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "slotkeeper",
		Short:         "Booking reservation core",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewSweepCmd())
	cmd.AddCommand(NewHashTokenCmd())
	return cmd
}

// loadConfig reads the environment and opens the connections it names.
func loadConfig(ctx context.Context) (*config.Config, error) {
	cfg, err := config.LoadFromEnv(ServiceName)
	if err != nil {
		return nil, err
	}
	cfg.LogConfiguration()

	if err := cfg.Connect(ctx); err != nil {
		cfg.GracefulShutdown(context.Background())
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	return cfg, nil
}
