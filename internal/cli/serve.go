package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/eshaffer321/tablesplit-backend/internal/api"
	"github.com/eshaffer321/tablesplit-backend/internal/application/service"
	"github.com/eshaffer321/tablesplit-backend/internal/infrastructure/config"
	"github.com/eshaffer321/tablesplit-backend/internal/infrastructure/events"
	"github.com/eshaffer321/tablesplit-backend/internal/infrastructure/storage"
	"github.com/eshaffer321/tablesplit-backend/internal/observability"
)

// shutdownTimeout bounds how long in-flight requests get on shutdown
const shutdownTimeout = 30 * time.Second

func serveCmd(a *app) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("port") {
				a.cfg.Server.Port = port
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return RunServe(ctx, a.cfg, a.logger)
		},
	}
	cmd.Flags().IntVar(&port, "port", config.DefaultPort, "port to listen on (overrides config)")
	return cmd
}

// RunServe runs the API server until ctx is cancelled, then shuts down
// gracefully.
func RunServe(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	store, err := openStorage(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	var metrics *observability.Metrics
	if cfg.Observability.Metrics.Enabled {
		metrics = observability.NewMetrics()
	}

	publisher, err := newPublisher(cfg.Events, logger)
	if err != nil {
		return err
	}
	defer func() { _ = publisher.Close() }()

	splitService := service.NewSplitService(store, publisher, metrics, logger.With("system", "splits"), cfg.Sessions)
	splitService.StartBackgroundCleanup(cfg.Sessions.CleanupInterval)
	defer splitService.StopBackgroundCleanup()

	apiCfg := api.Config{
		Port:           cfg.Server.Port,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}
	if len(apiCfg.AllowedOrigins) == 0 {
		apiCfg.AllowedOrigins = api.DefaultConfig().AllowedOrigins
	}
	server := api.NewServer(apiCfg, store, splitService, metrics, logger.With("system", "api"))

	// Handle graceful shutdown
	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		logger.Info("received shutdown signal")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", slog.Any("error", err))
		}
	}()

	// Start server (blocks until shutdown)
	if err := server.Start(); err != nil {
		return err
	}

	<-done
	logger.Info("server stopped")
	return nil
}

func openStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*storage.Storage, error) {
	store, err := storage.Open(ctx, storage.Options{
		Driver: cfg.Storage.Driver,
		DSN:    cfg.Storage.DSN,
		Logger: logger.With("system", "storage"),
	})
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	return store, nil
}

func newPublisher(cfg config.EventsConfig, logger *slog.Logger) (events.Publisher, error) {
	if !cfg.Enabled {
		return events.NopPublisher{}, nil
	}
	p, err := events.DialAMQP(cfg.AMQPURL, cfg.Exchange, logger.With("system", "events"))
	if err != nil {
		return nil, fmt.Errorf("connect event broker: %w", err)
	}
	return p, nil
}
