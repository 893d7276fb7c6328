package main

import (
	"github.com/spf13/cobra"

	"trading-chartsv1/config"
	"trading-chartsv1/internal/logger"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:          "chartengine",
	Short:        "Time-series chart and indicator engine",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default ./config.yaml)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(backtestCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func loadConfig() (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	log, err := logger.New(cfg.Log.Level, cfg.Log.Encoding)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}
