package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

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
	defer func() {
		if err := application.Close(); err != nil {
			logger.Error("close failed", "error", err)
		}
	}()

	server := application.HTTPServer()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(server.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	// The embedded worker is meant for single-process deployments.
	if cfg.EmbeddedWorker {
		worker, err := application.NewWorker()
		if err != nil {
			logger.Error("worker setup failed", "error", err)
			os.Exit(1)
		}
		g.Go(func() error { return worker.Run(gctx) })
	}

	logger.Info("api running", "port", cfg.Port, "embedded_worker", cfg.EmbeddedWorker)
	if err := g.Wait(); err != nil {
		logger.Error("api stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}
