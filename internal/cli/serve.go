package cli

import (
	"context"
	"time"

	"slotkeeper/pkg/app"

	"github.com/spf13/cobra"
)

func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and run the background workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			connectCtx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			cfg, err := loadConfig(connectCtx)
			if err != nil {
				return err
			}

			application, err := app.New(cfg)
			if err != nil {
				cfg.GracefulShutdown(context.Background())
				return err
			}

			cfg.Log.Info("Starting slotkeeper", "store", application.Store().Name())
			return application.Run(cmd.Context())
		},
	}
}
