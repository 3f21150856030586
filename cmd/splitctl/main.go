package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/stemsplit/stemsplit/internal/client"
	"github.com/stemsplit/stemsplit/internal/config"
	"github.com/stemsplit/stemsplit/shared/logger"
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
	defaultConfigPath := os.Getenv("SPLITCTL_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/splitctl.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	serverURL := flag.String("server", "", "Server base URL (overrides config)")
	model := flag.String("model", "", "Separation model to request (overrides config)")
	outDir := flag.String("out", "", "Directory for the output stems (default: next to the input file)")
	listModels := flag.Bool("list-models", false, "List the models the server offers and exit")
	flag.Parse()

	// The config file is optional here; flags and env cover everything.
	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if *serverURL != "" {
		cfg.Client.BaseURL = *serverURL
	}
	if *model != "" {
		cfg.Client.Model = *model
	}

	if err := cfg.ValidateClientConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	c, err := client.New(client.Options{
		BaseURL:           cfg.Client.BaseURL,
		Model:             cfg.Client.Model,
		SubmitTimeout:     cfg.Client.SubmitTimeout,
		WarmupDelay:       cfg.Client.WarmupDelay,
		PollInterval:      cfg.Client.PollInterval,
		PollFailureBudget: cfg.Client.PollFailureBudget,
		DownloadAttempts:  cfg.Client.DownloadAttempts,
		DownloadDelay:     cfg.Client.DownloadDelay,
		Logger:            appLogger.Logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *listModels {
		models, err := c.Models(ctx)
		if err != nil {
			return fmt.Errorf("failed to list models: %w", err)
		}
		for _, m := range models {
			fmt.Println(m)
		}
		return nil
	}

	input := flag.Arg(0)
	if input == "" {
		return errors.New("usage: splitctl [flags] <audio file>")
	}

	vocalsDest, instrumentalDest := stemPaths(input, *outDir)

	appLogger.Info("Splitting",
		slog.String("input", input),
		slog.String("server", cfg.Client.BaseURL),
	)

	start := time.Now()
	jobID, err := c.Split(ctx, input, vocalsDest, instrumentalDest)
	if err != nil {
		return fmt.Errorf("split failed: %w", err)
	}

	appLogger.Info("Split complete",
		slog.String("job_id", jobID),
		slog.String("vocals", vocalsDest),
		slog.String("instrumental", instrumentalDest),
		slog.Duration("took", time.Since(start)),
	)
	return nil
}

// stemPaths derives the output file names from the input track. Stems
// land next to the input unless outDir redirects them.
func stemPaths(input, outDir string) (vocals, instrumental string) {
	dir := filepath.Dir(input)
	if outDir != "" {
		dir = outDir
	}

	base := filepath.Base(input)
	stem := strings.TrimSuffix(base, filepath.Ext(base))

	vocals = filepath.Join(dir, stem+" [VOC].mp3")
	instrumental = filepath.Join(dir, stem+" [INSTR].mp3")
	return vocals, instrumental
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	loggerCfg := &logger.Config{
		Level:      cfg.Level,
		Format:     cfg.Format,
		Output:     cfg.Output,
		AddSource:  cfg.AddSource,
		TimeFormat: time.Kitchen,
	}

	return logger.New(loggerCfg)
}
