// Package setup wires configuration, logging, storage and Redis into an App.
package setup

import (
	"context"
	"fmt"
	"log"

	"github.com/robalyx/repbot/internal/database"
	"github.com/robalyx/repbot/internal/forum"
	"github.com/robalyx/repbot/internal/redis"
	"github.com/robalyx/repbot/internal/setup/config"
	"github.com/robalyx/repbot/internal/setup/telemetry"
	"go.uber.org/zap"
)

// Options selects what InitializeApp builds.
type Options struct {
	// Component names the log stream ("bot", "db").
	Component string
	// LogDir is the base directory for session logs.
	LogDir string
	// Console mirrors the main log to stderr.
	Console bool
	// AutoMigrate applies pending PostgreSQL migrations on connect.
	AutoMigrate bool
	// WithStore opens the reputation store.
	WithStore bool
	// WithLedger builds the forum notification ledger.
	WithLedger bool
}

// App bundles all core dependencies and services needed by the application.
// Each field represents a major subsystem that needs initialization and cleanup.
type App struct {
	Config       *config.Config     // Application configuration
	ConfigPath   string             // Directory the config was loaded from
	Logger       *zap.Logger        // Main application logger
	DBLogger     *zap.Logger        // Database-specific logger
	Store        database.Store     // Reputation store, nil unless requested
	Ledger       forum.Ledger       // Notification ledger, nil unless requested
	RedisManager *redis.Manager     // Redis connection manager
	LogManager   *telemetry.Manager // Log management system
}

// InitializeApp bootstraps all application dependencies in the correct order,
// ensuring each component has its required dependencies available.
func InitializeApp(ctx context.Context, opts Options) (*App, error) {
	cfg, configPath, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}

	return InitializeWithConfig(ctx, cfg, configPath, opts)
}

// InitializeWithConfig is InitializeApp with an already loaded config.
func InitializeWithConfig(ctx context.Context, cfg *config.Config, configPath string, opts Options) (*App, error) {
	// Logging system is initialized next to capture setup issues
	logManager := telemetry.NewManager(ctx, opts.Component, opts.LogDir, &cfg.Common.Debug, &cfg.Common.Loki, opts.Console)

	logger, dbLogger, err := logManager.GetLoggers()
	if err != nil {
		logManager.Stop()
		return nil, err
	}

	logger.Info("Configuration loaded",
		zap.String("path", configPath),
		zap.String("storage", cfg.Common.Storage.Driver),
		zap.Bool("redis", cfg.Common.Redis.Enabled))

	app := &App{
		Config:       cfg,
		ConfigPath:   configPath,
		Logger:       logger,
		DBLogger:     dbLogger,
		RedisManager: redis.NewManager(&cfg.Common.Redis, logger),
		LogManager:   logManager,
	}

	if opts.WithStore {
		store, err := database.Open(ctx, &cfg.Common, dbLogger, opts.AutoMigrate)
		if err != nil {
			app.Cleanup(ctx)
			return nil, err
		}

		app.Store = store
	}

	if opts.WithLedger {
		ledger, err := app.newLedger()
		if err != nil {
			app.Cleanup(ctx)
			return nil, err
		}

		app.Ledger = ledger
	}

	return app, nil
}

// newLedger picks the Redis ledger when Redis is enabled and the in-memory one otherwise.
func (s *App) newLedger() (forum.Ledger, error) {
	ttl := s.Config.Bot.Forum.NotificationTTL

	if !s.Config.Common.Redis.Enabled {
		s.Logger.Info("Using in-memory notification ledger", zap.Duration("ttl", ttl))
		return forum.NewMemoryLedger(ttl), nil
	}

	client, err := s.RedisManager.GetClient(redis.ForumDBIndex)
	if err != nil {
		return nil, fmt.Errorf("failed to create notification ledger: %w", err)
	}

	s.Logger.Info("Using Redis notification ledger", zap.Duration("ttl", ttl))

	return forum.NewRedisLedger(client, ttl, s.Logger), nil
}

// Cleanup ensures graceful shutdown of all components in reverse initialization order.
// Logs but does not fail on cleanup errors to ensure all components get cleanup attempts.
func (s *App) Cleanup(_ context.Context) {
	if s.Store != nil {
		if err := s.Store.Close(); err != nil {
			s.Logger.Error("Failed to close store", zap.Error(err))
		}
	}

	// Close Redis connections after the components that use them
	s.RedisManager.Close()

	// Sync buffered logs before shutdown
	if err := s.Logger.Sync(); err != nil {
		log.Printf("Failed to sync logger: %v", err)
	}

	if err := s.DBLogger.Sync(); err != nil {
		log.Printf("Failed to sync DB logger: %v", err)
	}

	// Stop telemetry manager to flush Loki logs
	s.LogManager.Stop()
}
