package cli

import (
	"context"
	"encoding/json"
	"time"

	"slotkeeper/pkg/app"
	"slotkeeper/pkg/config"

	"github.com/spf13/cobra"
)

func NewSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one expiry pass over holds and unpaid bookings",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
			defer cancel()

			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}
			defer cfg.GracefulShutdown(context.Background())

			if cfg.StoreDriver == config.StoreMemory {
				cfg.Log.Warn("Sweeping a fresh in-memory store finds nothing")
			}

			application, err := app.New(cfg)
			if err != nil {
				return err
			}
			defer application.Close()

			res := application.Services().Sweeper.SweepOnce(ctx)
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
}
