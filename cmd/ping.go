package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"restaurant-storefront/internal/config"
	"restaurant-storefront/internal/erp"
	"restaurant-storefront/internal/logger"
)

func newPingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Verify ERP connectivity and credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}

			log := logger.New("storefront-ping")
			client := erp.New(cfg.ERP, log)

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			if err := client.Ping(ctx); err != nil {
				return fmt.Errorf("erp ping failed: %w", err)
			}
			fmt.Println("erp: ok")
			return nil
		},
	}
}
