package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"meetingsattendance/internal/app"
	"meetingsattendance/internal/auth"
	"meetingsattendance/internal/config"
	"meetingsattendance/internal/httpapi"
	"meetingsattendance/internal/logging"
	"meetingsattendance/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("load config")
	}
	logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	// Set Gin mode based on environment
	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		logging.Fatal().Err(err).Msg("http server failed")
	}
}

func runHTTP(cfg config.App) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := app.Build(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			logging.Warn().Err(err).Msg("closing backends")
		}
	}()

	// A memory queue is invisible to a separate worker process.
	if rt.LocalQueue() {
		go func() {
			if err := worker.Run(ctx, rt.Queue, rt.Service); err != nil {
				logging.Error().Err(err).Msg("in-process worker stopped")
			}
		}()
	}

	srv := httpapi.New(httpapi.Options{
		Service: rt.Service,
		Queue:   rt.Queue,
		Users:   rt.Users,
		Audit:   rt.Audit,
		Issuer: auth.Issuer{
			Name:       cfg.JWTIssuer,
			Key:        []byte(cfg.JWTSigningKey),
			AccessTTL:  cfg.AccessTTL,
			RefreshTTL: cfg.RefreshTTL,
		},
		OperatorKey: cfg.OperatorAPIKey,
		RatePerMin:  cfg.RateLimitPerMin,
		Health:      rt.Health,
	})

	// Graceful shutdown
	server := &http.Server{
		Addr:        ":" + cfg.HTTPPort,
		Handler:     srv.Router(),
		ReadTimeout: 15 * time.Second,
		// Synchronous syncs wait on the platform API.
		WriteTimeout: cfg.Platforms.HTTPTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", server.Addr).Str("env", cfg.Env).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logging.Info().Msg("shutting down server")

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logging.Warn().Err(err).Msg("server forced shutdown")
	}

	logging.Info().Msg("server exited")
	return nil
}
