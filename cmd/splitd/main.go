package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/stemsplit/stemsplit/internal/api/handler"
	"github.com/stemsplit/stemsplit/internal/api/router"
	"github.com/stemsplit/stemsplit/internal/config"
	"github.com/stemsplit/stemsplit/internal/jobdir"
	"github.com/stemsplit/stemsplit/internal/split"
	"github.com/stemsplit/stemsplit/internal/store"
	"github.com/stemsplit/stemsplit/internal/version"
	"github.com/stemsplit/stemsplit/internal/worker"
	"github.com/stemsplit/stemsplit/shared/logger"
	"github.com/stemsplit/stemsplit/shared/sqlite"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	// Parse command-line flags
	defaultConfigPath := os.Getenv("SPLITD_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/splitd.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateServerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	appLogger.Info("Starting splitd",
		slog.String("app", cfg.App.Name),
		slog.String("version", version.Version),
		slog.String("environment", cfg.App.Environment),
	)

	// Prepare the per-job storage area
	dirs, err := jobdir.NewAllocator(cfg.Server.DataDir)
	if err != nil {
		return fmt.Errorf("failed to prepare data directory: %w", err)
	}

	// Initialize the job store backend
	jobStore, dbClient, err := initStore(cfg, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize job store: %w", err)
	}
	if dbClient != nil {
		defer dbClient.Close()
	}

	appLogger.Info("Job store ready",
		slog.String("backend", cfg.Store.Backend),
	)

	// The worker owns the machine's separation capacity; one per process.
	w := worker.NewWorker(&worker.Config{
		Logger: appLogger.Logger,
		Store:  jobStore,
		Dirs:   dirs,
		Separator: split.NewDemucs(
			cfg.Separator.Binary,
			cfg.Separator.Bitrate,
			cfg.Separator.Jobs,
			appLogger.Logger,
		),
	})

	// Create HTTP server
	r := initRouter(cfg, appLogger.Logger, jobStore, dirs)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		appLogger.Info("Starting HTTP server",
			slog.String("address", addr),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return w.Run(ctx)
	})

	g.Go(func() error {
		<-ctx.Done()
		appLogger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	appLogger.Info("Server shutdown complete")
	return nil
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	loggerCfg := &logger.Config{
		Level:      cfg.Level,
		Format:     cfg.Format,
		Output:     cfg.Output,
		AddSource:  cfg.AddSource,
		TimeFormat: time.RFC3339,
	}

	return logger.New(loggerCfg)
}

// initStore builds the configured job store backend. The returned
// client is non-nil only for sqlite and must be closed by the caller.
func initStore(cfg *config.Config, logger *slog.Logger) (store.JobStore, *sqlite.Client, error) {
	switch cfg.Store.Backend {
	case "sqlite":
		client, err := sqlite.NewClient(&sqlite.Config{
			Path:        cfg.Store.Path,
			BusyTimeout: cfg.Store.BusyTimeout,
		}, logger)
		if err != nil {
			return nil, nil, err
		}

		s, err := store.NewSQLite(client.GetDB(), logger)
		if err != nil {
			client.Close()
			return nil, nil, err
		}
		return s, client, nil

	default:
		return store.NewMemory(), nil, nil
	}
}

// initRouter initializes the Gin router with all routes and middleware
func initRouter(cfg *config.Config, logger *slog.Logger, jobStore store.JobStore, dirs *jobdir.Allocator) *gin.Engine {
	// Set Gin mode based on environment
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	return router.SetupRouter(&handler.Dependencies{
		Logger:       logger,
		Store:        jobStore,
		Dirs:         dirs,
		Models:       cfg.Separator.Models,
		DefaultModel: cfg.Separator.DefaultModel,
	})
}
