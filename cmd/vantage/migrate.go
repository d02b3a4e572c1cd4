package main

import (
	"fmt"

	"github.com/boddenberg/vantage-api/internal/infra/store"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var flagSteps int

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the database schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := store.RunMigrations(cfg.DBDriver, cfg.DatabaseURL); err != nil {
			return err
		}
		logger.Info("migrations applied", zap.String("driver", cfg.DBDriver))
		return nil
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		if flagSteps < 1 {
			return fmt.Errorf("--steps must be at least 1")
		}
		if err := store.MigrateDown(cfg.DBDriver, cfg.DatabaseURL, flagSteps); err != nil {
			return err
		}
		logger.Info("migrations rolled back", zap.String("driver", cfg.DBDriver), zap.Int("steps", flagSteps))
		return nil
	},
}

func init() {
	migrateDownCmd.Flags().IntVar(&flagSteps, "steps", 1, "Number of migrations to roll back")
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd)
}
