package main

import (
	"fmt"
	"os"

	"github.com/boddenberg/vantage-api/internal/config"
	"github.com/boddenberg/vantage-api/internal/infra/observability"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	flagConfig   string
	flagLogLevel string

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:           "vantage",
	Short:         "Vantage personal finance API",
	Long:          "Vantage tracks income, expenses, budgets, recurring transactions and savings goals.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if flagConfig != "" {
			os.Setenv("VANTAGE_CONFIG", flagConfig)
		}
		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}
		if flagLogLevel != "" {
			cfg.LogLevel = flagLogLevel
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		logger = observability.NewLogger(cfg.LogLevel)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// Execute is the main entry point called from main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "Path to a TOML config file (overrides VANTAGE_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(serveCmd, workerCmd, migrateCmd)
}
