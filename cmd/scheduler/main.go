package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"
	"time"

	"github.com/VmalRaj-Dev/limetto/internal/config"
	"github.com/VmalRaj-Dev/limetto/internal/logger"
	"github.com/VmalRaj-Dev/limetto/internal/pubsub"
	"github.com/VmalRaj-Dev/limetto/internal/repository"
	"github.com/VmalRaj-Dev/limetto/internal/scheduler"
	"github.com/VmalRaj-Dev/limetto/internal/service"

	"github.com/joho/godotenv"
)

func main() {
	// Parse flags
	mode := flag.String("mode", "all", "Scheduler mode: trials|reminders|all")
	once := flag.Bool("once", false, "Run the selected jobs once and exit")
	flag.Parse()

	// Load environment variables and config
	dotenvErr := godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		bootstrap := logger.New("", "")
		bootstrap.Fatal().Msgf("Error loading config: %v", err)
	}

	// Initialize logger
	logger := logger.New(cfg.Environment, cfg.LogLevel)
	if dotenvErr != nil {
		logger.Warn().Msg("Warning: no .env file found")
	}

	// Set up context with graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.ResolveFromSecretManager(ctx); err != nil {
		logger.Fatal().Msgf("Error resolving secrets: %v", err)
	}

	profiles, closeDB, err := repository.Open(ctx, cfg.DBConnectionString, cfg.IsDevelopment(), logger)
	if err != nil {
		logger.Fatal().Msgf("Failed to open profile store: %v", err)
	}
	defer closeDB()

	publisher, closePublisher, err := pubsub.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Msgf("Failed to create publisher: %v", err)
	}
	defer closePublisher()

	notificationSvc := service.NewNotificationService(publisher, cfg.PubSubNotificationsTopic, logger)
	trialSvc := service.NewTrialService(profiles, notificationSvc, service.ReminderSettings{
		Amount:   cfg.ReminderAmount,
		Currency: cfg.ReminderCurrency,
	}, logger)

	jobs, err := scheduler.Jobs(*mode, trialSvc,
		time.Duration(cfg.TrialSweepIntervalMin)*time.Minute,
		time.Duration(cfg.ReminderIntervalHours)*time.Hour)
	if err != nil {
		logger.Fatal().Msgf("Invalid mode: %v", err)
	}

	if err := scheduler.RunAll(ctx, logger, jobs, *once); err != nil {
		closePublisher()
		closeDB()
		logger.Fatal().Err(err).Msgf("%s scheduler failed", *mode)
	}
	logger.Info().Msgf("%s scheduler stopped gracefully", *mode)
}
