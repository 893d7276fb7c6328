package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"trading-chartsv1/internal/chart"
	"trading-chartsv1/internal/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Consume the bar feed and serve charts over HTTP and WebSocket",
	RunE:  serve,
}

func serve(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := chart.New(cfg, log)
	if err != nil {
		log.Error("init failed", logger.ErrorField(err))
		return err
	}
	return svc.Run(ctx)
}
