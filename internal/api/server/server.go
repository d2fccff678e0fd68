package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/boosterlab/packdrop/internal/adapter"
	"github.com/boosterlab/packdrop/internal/api/middleware"
	"github.com/boosterlab/packdrop/internal/api/rest"
	"github.com/boosterlab/packdrop/internal/api/shared/executor"
	"github.com/boosterlab/packdrop/internal/ledger"
	"github.com/boosterlab/packdrop/internal/logger"
	"github.com/boosterlab/packdrop/internal/messaging"
	"github.com/boosterlab/packdrop/internal/replay"
	"github.com/boosterlab/packdrop/internal/store"
)

// Config holds the server configuration
type Config struct {
	Debug        bool
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	AdminSecret string

	RateLimitMax    int
	RateLimitWindow time.Duration

	BatchMaxRequests   int
	TimestampTolerance time.Duration
	NonceTTL           time.Duration
}

// Server wraps the HTTP server
type Server struct {
	config     Config
	store      store.Store
	engine     executor.InventoryEngine
	ledger     *ledger.Service
	publisher  messaging.Publisher
	clock      adapter.Clock
	httpServer *http.Server
}

// New creates a new API server
func New(cfg Config, s store.Store, engine executor.InventoryEngine, ledgerSvc *ledger.Service, publisher messaging.Publisher, clock adapter.Clock) *Server {
	return &Server{
		config:    cfg,
		store:     s,
		engine:    engine,
		ledger:    ledgerSvc,
		publisher: publisher,
		clock:     clock,
	}
}

// Start initializes and starts the HTTP server
func (s *Server) Start() error {
	// Set Gin mode based on debug flag
	if s.config.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// Create Gin router
	router := gin.New()

	// Setup middleware
	router.Use(middleware.Recovery())
	router.Use(middleware.Logger())
	router.Use(middleware.SetupCORS())

	// Create shared executor (business logic shared between REST and batch)
	exec := executor.NewExecutor(s.store, s.engine, s.ledger, s.publisher, s.clock)

	// Request-boundary collaborators
	guard := replay.NewGuard(s.clock, s.config.TimestampTolerance, s.config.NonceTTL)
	limiter := middleware.NewRateLimiter(s.clock, s.config.RateLimitMax, s.config.RateLimitWindow)

	// Create REST handler and routes
	restHandler := rest.NewHandler(exec, guard, s.store, s.clock, s.config.BatchMaxRequests)
	rest.SetupRoutes(router, restHandler, s.store, s.clock, limiter, s.config.AdminSecret)

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	logger.Info("Starting API server",
		zap.String("address", addr),
	)

	// Start server
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	logger.Info("Shutting down API server")

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown server: %w", err)
		}
	}

	return nil
}
