package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/Guntherdrb30/TrendsTech.com-sub000/internal/app"
	"github.com/Guntherdrb30/TrendsTech.com-sub000/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.LoadConfig()
	logger, closeLog := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
	defer closeLog()

	application, err := app.NewApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer application.Close()

	worker, err := application.NewWorker()
	if err != nil {
		logger.Error("worker setup failed", "error", err)
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil {
		logger.Error("worker stopped", "error", err)
		os.Exit(1)
	}
	s := worker.Stats()
	logger.Info("worker stopped", "succeeded", s.Succeeded, "failed", s.Failed, "panics", s.Panics)
}
