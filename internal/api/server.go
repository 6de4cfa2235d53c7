package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/eshaffer321/tablesplit-backend/internal/api/handlers"
	"github.com/eshaffer321/tablesplit-backend/internal/api/middleware"
	"github.com/eshaffer321/tablesplit-backend/internal/application/service"
	"github.com/eshaffer321/tablesplit-backend/internal/infrastructure/storage"
	"github.com/eshaffer321/tablesplit-backend/internal/observability"
)

// Config holds API server configuration.
type Config struct {
	Port           int
	AllowedOrigins []string
}

// DefaultConfig returns sensible defaults for the API server.
func DefaultConfig() Config {
	return Config{
		Port:           8080,
		AllowedOrigins: middleware.DefaultCORSConfig().AllowedOrigins,
	}
}

// Server is the HTTP API server.
type Server struct {
	config       Config
	router       chi.Router
	httpServer   *http.Server
	logger       *slog.Logger
	repo         storage.Repository
	splitService *service.SplitService
	metrics      *observability.Metrics
}

// NewServer creates a new API server.
// If splitService is nil, split session endpoints are not mounted; if metrics
// is nil, /metrics is not mounted.
func NewServer(cfg Config, repo storage.Repository, splitService *service.SplitService, metrics *observability.Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		config:       cfg,
		router:       chi.NewRouter(),
		logger:       logger,
		repo:         repo,
		splitService: splitService,
		metrics:      metrics,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// setupMiddleware configures global middleware.
func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(chimw.Recoverer)

	// CORS
	corsConfig := middleware.DefaultCORSConfig()
	corsConfig.AllowedOrigins = s.config.AllowedOrigins
	s.router.Use(middleware.CORS(corsConfig))

	// Request logging
	s.router.Use(middleware.Logging(s.logger))
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	// Health check (no /api prefix - for load balancers)
	var counter handlers.SessionCounter
	if s.splitService != nil {
		counter = s.splitService
	}
	healthHandler := handlers.NewHealthHandler(counter)
	s.router.Get("/health", healthHandler.ServeHTTP)

	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler())
	}

	// API routes
	s.router.Route("/api", func(r chi.Router) {
		// Orders
		ordersHandler := handlers.NewOrdersHandler(s.repo)
		r.Get("/orders", ordersHandler.List)
		r.Get("/orders/{id}", ordersHandler.Get)
		r.Get("/orders/{id}/splits", ordersHandler.ListSplits)

		// Split sessions
		if s.splitService != nil {
			splitsHandler := handlers.NewSplitsHandler(s.splitService)
			r.Post("/orders/{id}/split-sessions", splitsHandler.Start)
			r.Route("/split-sessions", func(r chi.Router) {
				r.Get("/", splitsHandler.List)
				r.Get("/{sid}", splitsHandler.Get)
				r.Delete("/{sid}", splitsHandler.Cancel)
				r.Post("/{sid}/buckets", splitsHandler.AddBucket)
				r.Delete("/{sid}/buckets/{index}", splitsHandler.RemoveBucket)
				r.Post("/{sid}/moves", splitsHandler.Move)
				r.Post("/{sid}/returns", splitsHandler.Return)
				r.Get("/{sid}/preview", splitsHandler.Preview)
				r.Post("/{sid}/finalize", splitsHandler.Finalize)
			})
		}
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting API server", "addr", addr)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")

	if s.httpServer == nil {
		return nil
	}

	return s.httpServer.Shutdown(ctx)
}

// Router returns the chi router for testing.
func (s *Server) Router() chi.Router {
	return s.router
}
