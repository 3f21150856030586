package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535

	// MinBitrate and MaxBitrate bound the mp3 output bitrate in kbps
	MinBitrate = 32
	MaxBitrate = 320
)

// Config represents the complete application configuration. Values come
// from the YAML file first; STEMSPLIT_-prefixed environment variables
// override individual fields.
type Config struct {
	App       AppConfig       `yaml:"app"`
	Server    ServerConfig    `yaml:"server"`
	Store     StoreConfig     `yaml:"store"`
	Separator SeparatorConfig `yaml:"separator"`
	Client    ClientConfig    `yaml:"client"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name" env:"STEMSPLIT_APP_NAME"`
	Environment string `yaml:"environment" env:"STEMSPLIT_ENVIRONMENT"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port" env:"STEMSPLIT_SERVER_PORT"`
	DataDir         string        `yaml:"data_dir" env:"STEMSPLIT_DATA_DIR"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// StoreConfig selects and configures the job store backend
type StoreConfig struct {
	// Backend is "memory" or "sqlite". The memory backend forgets all
	// jobs on restart; sqlite keeps queue and status across restarts.
	Backend     string        `yaml:"backend" env:"STEMSPLIT_STORE_BACKEND"`
	Path        string        `yaml:"path" env:"STEMSPLIT_STORE_PATH"`
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// SeparatorConfig configures the demucs invocation
type SeparatorConfig struct {
	Binary       string   `yaml:"binary" env:"STEMSPLIT_DEMUCS_BINARY"`
	DefaultModel string   `yaml:"default_model" env:"STEMSPLIT_DEFAULT_MODEL"`
	Models       []string `yaml:"models"`
	Bitrate      int      `yaml:"bitrate" env:"STEMSPLIT_BITRATE"`
	Jobs         int      `yaml:"jobs" env:"STEMSPLIT_DEMUCS_JOBS"`
}

// ClientConfig holds the lifecycle client settings
type ClientConfig struct {
	BaseURL           string        `yaml:"base_url" env:"STEMSPLIT_SERVER_URL"`
	Model             string        `yaml:"model" env:"STEMSPLIT_MODEL"`
	SubmitTimeout     time.Duration `yaml:"submit_timeout"`
	WarmupDelay       time.Duration `yaml:"warmup_delay"`
	PollInterval      time.Duration `yaml:"poll_interval"`
	PollFailureBudget int           `yaml:"poll_failure_budget"`
	DownloadAttempts  int           `yaml:"download_attempts"`
	DownloadDelay     time.Duration `yaml:"download_delay"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `yaml:"level" env:"STEMSPLIT_LOG_LEVEL"`
	Format    string `yaml:"format" env:"STEMSPLIT_LOG_FORMAT"`
	Output    string `yaml:"output"`
	AddSource bool   `yaml:"add_source"`
}

// DefaultModels are the demucs variants accepted when the config names none.
func DefaultModels() []string {
	return []string{
		"htdemucs",
		"htdemucs_ft",
		"htdemucs_6s",
		"hdemucs_mmi",
		"mdx",
		"mdx_extra",
		"mdx_q",
		"mdx_extra_q",
	}
}

// Load reads the configuration file, applies environment overrides and
// fills defaults.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := env.Parse(&config); err != nil {
		return nil, fmt.Errorf("failed to apply env overrides: %w", err)
	}

	config.applyDefaults()
	return &config, nil
}

// Default returns a configuration with every default filled in, for
// callers that run without a config file.
func Default() *Config {
	var config Config
	config.applyDefaults()
	return &config
}

// LoadOrDefault behaves like Load but substitutes built-in defaults when
// the file does not exist. Environment overrides apply either way, so a
// config file is optional for flag-driven tools.
func LoadOrDefault(configPath string) (*Config, error) {
	cfg, err := Load(configPath)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	var config Config
	if err := env.Parse(&config); err != nil {
		return nil, fmt.Errorf("failed to apply env overrides: %w", err)
	}
	config.applyDefaults()
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "stemsplit"
	}
	if c.App.Environment == "" {
		c.App.Environment = "development"
	}

	if c.Server.Port == 0 {
		c.Server.Port = 5000
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}

	if c.Store.Backend == "" {
		c.Store.Backend = "memory"
	}
	if c.Store.BusyTimeout == 0 {
		c.Store.BusyTimeout = 5 * time.Second
	}

	if c.Separator.Binary == "" {
		c.Separator.Binary = "demucs"
	}
	if c.Separator.DefaultModel == "" {
		c.Separator.DefaultModel = "htdemucs_ft"
	}
	if len(c.Separator.Models) == 0 {
		c.Separator.Models = DefaultModels()
	}
	if c.Separator.Bitrate == 0 {
		c.Separator.Bitrate = 128
	}
	if c.Separator.Jobs == 0 {
		c.Separator.Jobs = 2
	}

	if c.Client.SubmitTimeout == 0 {
		c.Client.SubmitTimeout = 2 * time.Second
	}
	if c.Client.WarmupDelay == 0 {
		c.Client.WarmupDelay = 15 * time.Second
	}
	if c.Client.PollInterval == 0 {
		c.Client.PollInterval = 5 * time.Second
	}
	if c.Client.PollFailureBudget == 0 {
		c.Client.PollFailureBudget = 5
	}
	if c.Client.DownloadAttempts == 0 {
		c.Client.DownloadAttempts = 3
	}
	if c.Client.DownloadDelay == 0 {
		c.Client.DownloadDelay = 5 * time.Second
	}
}

// ValidateServerConfig checks the fields splitd needs
func (c *Config) ValidateServerConfig() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if c.Server.DataDir == "" {
		return fmt.Errorf("server data_dir is required")
	}

	switch c.Store.Backend {
	case "memory":
	case "sqlite":
		if c.Store.Path == "" {
			return fmt.Errorf("store path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("unknown store backend: %q", c.Store.Backend)
	}

	if c.Separator.Bitrate < MinBitrate || c.Separator.Bitrate > MaxBitrate {
		return fmt.Errorf("invalid bitrate: %d (must be between %d and %d)", c.Separator.Bitrate, MinBitrate, MaxBitrate)
	}

	if c.Separator.Jobs <= 0 {
		return fmt.Errorf("separator jobs must be greater than 0")
	}

	found := false
	for _, m := range c.Separator.Models {
		if m == c.Separator.DefaultModel {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("default model %q is not in the model list", c.Separator.DefaultModel)
	}

	return nil
}

// ValidateClientConfig checks the fields splitctl needs
func (c *Config) ValidateClientConfig() error {
	if c.Client.BaseURL == "" {
		return fmt.Errorf("client base_url is required")
	}

	if c.Client.PollFailureBudget <= 0 {
		return fmt.Errorf("client poll_failure_budget must be greater than 0")
	}

	if c.Client.DownloadAttempts <= 0 {
		return fmt.Errorf("client download_attempts must be greater than 0")
	}

	return nil
}
