package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"meetingsattendance/internal/app"
	"meetingsattendance/internal/config"
	"meetingsattendance/internal/logging"
	"meetingsattendance/internal/worker"
)

// Worker consumes queued sync jobs and runs them against the platform APIs.
func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("load config")
	}
	logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logging.Info().Msg("shutdown signal received")
		cancel()
	}()

	rt, err := app.Build(ctx, cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("backend setup failed")
	}
	defer rt.Close()

	if rt.LocalQueue() {
		logging.Fatal().Msg("worker needs queue_backend=redis; the memory queue is served by the api process")
	}

	if err := worker.Run(ctx, rt.Queue, rt.Service); err != nil {
		logging.Error().Err(err).Msg("worker failed")
	}
}
