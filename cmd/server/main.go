package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Brownie44l1/waste-api/internal/config"
	"github.com/Brownie44l1/waste-api/internal/logging"
)

type app struct {
	configPath string
	settings   *config.Settings
	logger     *zap.Logger
}

func main() {
	if err := rootCommand(&app{}).Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "waste-api",
		Short:         "Waste image classifier",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.Load(a.configPath)
			if err != nil {
				return err
			}
			logger, err := logging.NewLogger(settings.Log.Level, settings.Log.Development)
			if err != nil {
				return fmt.Errorf("failed to build logger: %w", err)
			}
			a.settings = settings
			a.logger = logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "Path to a YAML config file (default ./config.yaml)")

	root.AddCommand(serveCommand(a), classifyCommand(a))
	return root
}
