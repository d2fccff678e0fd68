package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/boosterlab/packdrop/internal/adapter"
	"github.com/boosterlab/packdrop/internal/api/server"
	"github.com/boosterlab/packdrop/internal/config"
	"github.com/boosterlab/packdrop/internal/engine"
	"github.com/boosterlab/packdrop/internal/ledger"
	"github.com/boosterlab/packdrop/internal/logger"
	"github.com/boosterlab/packdrop/internal/messaging"
	"github.com/boosterlab/packdrop/internal/providers/jetstream"
	"github.com/boosterlab/packdrop/internal/store"
)

var (
	configFile = flag.String("config", "", "Path to configuration file")
	envPath    = flag.String("env", "config/", "Path to environment files")
)

func main() {
	flag.Parse()

	// Load configuration
	config.ChdirRepoRoot()
	cfg, err := config.LoadAPIConfig(*configFile, *envPath)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize logger with sentry integration
	err = logger.Initialize(logger.Config{
		Debug:           cfg.Debug,
		SentryDSN:       cfg.SentryDSN,
		BreadcrumbLevel: zapcore.InfoLevel,
		Tags: map[string]string{
			"service": "api-server",
		},
	})
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Flush(2 * time.Second)
	logger.InfoCtx(ctx, "Starting Packdrop API")

	// Connect to database
	db, err := gorm.Open(postgres.Open(cfg.Database.DSN()), &gorm.Config{})
	if err != nil {
		logger.FatalCtx(ctx, "Failed to connect to database", zap.Error(err))
	}

	// Configure connection pool
	if err := store.ConfigureConnectionPool(db, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnMaxLifetime, cfg.Database.ConnMaxIdleTime); err != nil {
		logger.FatalCtx(ctx, "Failed to configure connection pool", zap.Error(err))
	}
	logger.InfoCtx(ctx, "Connected to database",
		zap.Int("max_open_conns", cfg.Database.MaxOpenConns),
		zap.Int("max_idle_conns", cfg.Database.MaxIdleConns),
	)

	if cfg.Database.AutoMigrate {
		if err := store.Migrate(db); err != nil {
			logger.FatalCtx(ctx, "Failed to migrate database", zap.Error(err))
		}
		logger.InfoCtx(ctx, "Database schema migrated")
	}

	// Initialize store, engine and ledger
	dataStore := store.NewPGStore(db)
	clock := adapter.NewClock()

	inventoryEngine := engine.New(engine.Config{
		ShardCount:       cfg.Engine.ShardCount,
		MaxClaimAttempts: cfg.Engine.MaxClaimAttempts,
	}, dataStore)

	ledgerService := ledger.NewService(dataStore)

	// Claim event publisher, optional
	var publisher messaging.Publisher = messaging.NoopPublisher{}
	if cfg.NATS.URL != "" {
		publisher, err = jetstream.NewPublisher(ctx, jetstream.Config{
			URL:            cfg.NATS.URL,
			StreamName:     cfg.NATS.StreamName,
			MaxReconnects:  cfg.NATS.MaxReconnects,
			ReconnectWait:  cfg.NATS.ReconnectWait,
			ConnectionName: cfg.NATS.ConnectionName,
		})
		if err != nil {
			logger.FatalCtx(ctx, "Failed to connect to NATS", zap.Error(err))
		}
		defer publisher.Close()
		logger.InfoCtx(ctx, "Connected to NATS", zap.String("url", cfg.NATS.URL))
	} else {
		logger.WarnCtx(ctx, "NATS URL not configured, claim events will not be published")
	}

	// Create server config
	serverConfig := server.Config{
		Debug:              cfg.Debug,
		Host:               cfg.Server.Host,
		Port:               cfg.Server.Port,
		ReadTimeout:        time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:       time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:        time.Duration(cfg.Server.IdleTimeout) * time.Second,
		AdminSecret:        cfg.Auth.AdminSecret,
		RateLimitMax:       cfg.RateLimit.MaxRequests,
		RateLimitWindow:    cfg.RateLimit.Window,
		BatchMaxRequests:   cfg.Batch.MaxRequests,
		TimestampTolerance: cfg.Batch.TimestampTolerance,
		NonceTTL:           cfg.Batch.NonceTTL,
	}

	// Create and start server
	srv := server.New(serverConfig, dataStore, inventoryEngine, ledgerService, publisher, clock)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			errCh <- err
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.InfoCtx(ctx, "Received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	case err := <-errCh:
		logger.ErrorCtx(ctx, err, zap.String("component", "server"))
		cancel()
	}

	// Create shutdown context with timeout (don't use canceled ctx)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	logger.InfoCtx(shutdownCtx, "Shutting down server...")

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.FatalCtx(shutdownCtx, "Server forced to shutdown", zap.Error(err))
	}

	logger.Info("API server stopped")
}
