package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"forex-smc-engine/config"
	"forex-smc-engine/internal/analyzer"
	"forex-smc-engine/internal/api"
	"forex-smc-engine/internal/calibrator"
	"forex-smc-engine/internal/database"
	"forex-smc-engine/internal/logging"
	"forex-smc-engine/internal/sequence"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logging
	logger := logging.New(cfg.LoggingConfig.Level, cfg.LoggingConfig.Format)
	logger.Info().Msg("Structured logging initialized")

	// Initialize database
	db, err := database.NewDB(database.Config{
		Host:     cfg.DatabaseConfig.Host,
		Port:     cfg.DatabaseConfig.Port,
		User:     cfg.DatabaseConfig.User,
		Password: cfg.DatabaseConfig.Password,
		Database: cfg.DatabaseConfig.Database,
		SSLMode:  cfg.DatabaseConfig.SSLMode,
	})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	if err := db.RunMigrations(ctx); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	repo := database.NewRepository(db)
	seqRepo := database.NewSequenceRepository(db)
	calRepo := database.NewCalibrationRepository(db)

	// Redis cache for hot sequence state; nil client means memory-only
	var redisClient *redis.Client
	if cfg.RedisConfig.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisConfig.Address,
			Password: cfg.RedisConfig.Password,
			DB:       cfg.RedisConfig.DB,
			PoolSize: cfg.RedisConfig.PoolSize,
		})
	}
	seqCache := database.NewRedisSequenceCache(redisClient)

	// Analysis pipeline
	smcAnalyzer := analyzer.NewWithConfig(analyzer.Config{
		MinM5Candles:            cfg.AnalysisConfig.MinM5Candles,
		EqualLevelTolerancePips: cfg.AnalysisConfig.EqualLevelTolerance,
	}, logger)

	tracker := sequence.NewTracker(seqRepo, logger)
	if err := tracker.Load(ctx); err != nil {
		logger.Warn().Err(err).Msg("could not restore sequence states, starting fresh")
	}

	cal := calibrator.NewWithConfig(calRepo, calRepo, calibrator.Config{
		MinTradesToFit: cfg.CalibratorConfig.MinTradesToFit,
		RefitInterval:  cfg.CalibratorConfig.RefitInterval,
	}, logger)
	if err := cal.Load(ctx); err != nil {
		logger.Warn().Err(err).Msg("could not restore calibration parameters, using identity")
	}

	// API server
	server := api.NewServer(
		api.ServerConfig{
			Host:           cfg.ServerConfig.Host,
			Port:           cfg.ServerConfig.Port,
			AllowedOrigins: cfg.ServerConfig.AllowedOrigins,
			ReadTimeout:    time.Duration(cfg.ServerConfig.ReadTimeout) * time.Second,
			WriteTimeout:   time.Duration(cfg.ServerConfig.WriteTimeout) * time.Second,
			ProductionMode: cfg.LoggingConfig.Format != "console",
		},
		smcAnalyzer, tracker, cal, repo, seqRepo, seqCache, logger,
	)

	go func() {
		if err := server.Start(); err != nil {
			log.Fatalf("API server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info().Msg("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.ServerConfig.ShutdownTimeout)*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server shutdown error")
	}
	if redisClient != nil {
		redisClient.Close()
	}

	logger.Info().Msg("Shutdown complete")
}
