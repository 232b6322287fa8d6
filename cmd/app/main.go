package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/VmalRaj-Dev/limetto/internal/api/v1/router"
	"github.com/VmalRaj-Dev/limetto/internal/config"
	"github.com/VmalRaj-Dev/limetto/internal/logger"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

// @title Limetto API
// @version 1.0
// @description Limetto subscription backend
// @host localhost:8080
// @BasePath /v1
// @Schemes http https

func main() {
	// 1. Load configuration
	dotenvErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		bootstrap := logger.New("", "")
		bootstrap.Fatal().Msgf("Error loading config: %v", err)
	}

	logger := logger.New(cfg.Environment, cfg.LogLevel)
	if dotenvErr != nil {
		logger.Warn().Msg("Warning: no .env file found")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cfg.ResolveFromSecretManager(ctx); err != nil {
		logger.Fatal().Msgf("Error resolving secrets: %v", err)
	}

	// 2. Build router (and open the profile store)
	r, cleanup, err := router.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Msgf("Failed to build router: %v", err)
	}
	defer cleanup()

	// 3. Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: time.Duration(cfg.CheckoutTimeoutSec)*time.Second + 10*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// 4. Serve until a shutdown signal arrives
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Msgf("Server starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("Shutdown signal received, exiting...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("Server stopped with error")
		return
	}
	logger.Info().Msg("Server shut down gracefully")
}
