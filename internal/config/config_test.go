package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name      string
		filePath  string
		wantErr   bool
		errString string
	}{
		{
			name:     "valid config file",
			filePath: "testdata/valid_config.yaml",
			wantErr:  false,
		},
		{
			name:      "non-existent file",
			filePath:  "testdata/nonexistent.yaml",
			wantErr:   true,
			errString: "failed to read config file",
		},
		{
			name:      "malformed yaml",
			filePath:  "testdata/malformed.yaml",
			wantErr:   true,
			errString: "failed to parse config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(tt.filePath)

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
				assert.Nil(t, cfg)
			} else {
				require.NoError(t, err)
				require.NotNil(t, cfg)

				// Verify some key fields are populated
				assert.Equal(t, 5000, cfg.Server.Port)
				assert.Equal(t, "/var/lib/stemsplit/jobs", cfg.Server.DataDir)
				assert.Equal(t, "sqlite", cfg.Store.Backend)
				assert.Equal(t, "/var/lib/stemsplit/stemsplit.db", cfg.Store.Path)
				assert.Equal(t, "htdemucs_ft", cfg.Separator.DefaultModel)
				assert.Equal(t, 192, cfg.Separator.Bitrate)
				assert.Equal(t, "http://localhost:5000", cfg.Client.BaseURL)
				assert.Equal(t, 15*time.Second, cfg.Client.WarmupDelay)
				assert.Equal(t, "stemsplit", cfg.App.Name)
			}
		})
	}
}

func TestLoad_Defaults(t *testing.T) {
	// missing_data_dir.yaml names almost nothing, so the defaults show.
	cfg, err := Load("testdata/missing_data_dir.yaml")
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, "demucs", cfg.Separator.Binary)
	assert.Equal(t, "htdemucs_ft", cfg.Separator.DefaultModel)
	assert.Equal(t, DefaultModels(), cfg.Separator.Models)
	assert.Equal(t, 128, cfg.Separator.Bitrate)
	assert.Equal(t, 2*time.Second, cfg.Client.SubmitTimeout)
	assert.Equal(t, 15*time.Second, cfg.Client.WarmupDelay)
	assert.Equal(t, 5*time.Second, cfg.Client.PollInterval)
	assert.Equal(t, 5, cfg.Client.PollFailureBudget)
	assert.Equal(t, 3, cfg.Client.DownloadAttempts)
	assert.Equal(t, 5*time.Second, cfg.Client.DownloadDelay)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("STEMSPLIT_SERVER_PORT", "9090")
	t.Setenv("STEMSPLIT_DEFAULT_MODEL", "mdx_extra")
	t.Setenv("STEMSPLIT_SERVER_URL", "http://splitter.internal:9090")

	cfg, err := Load("testdata/valid_config.yaml")
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "mdx_extra", cfg.Separator.DefaultModel)
	assert.Equal(t, "http://splitter.internal:9090", cfg.Client.BaseURL)
	// Untouched fields keep their file values
	assert.Equal(t, "/var/lib/stemsplit/jobs", cfg.Server.DataDir)
}

func TestLoadOrDefault(t *testing.T) {
	t.Run("existing file loads normally", func(t *testing.T) {
		cfg, err := LoadOrDefault("testdata/valid_config.yaml")
		require.NoError(t, err)
		assert.Equal(t, "sqlite", cfg.Store.Backend)
	})

	t.Run("missing file falls back to defaults", func(t *testing.T) {
		cfg, err := LoadOrDefault("testdata/nonexistent.yaml")
		require.NoError(t, err)
		assert.Equal(t, "memory", cfg.Store.Backend)
		assert.Equal(t, 5*time.Second, cfg.Client.PollInterval)
	})

	t.Run("env overrides apply without a file", func(t *testing.T) {
		t.Setenv("STEMSPLIT_SERVER_URL", "http://splitter.internal:9090")

		cfg, err := LoadOrDefault("testdata/nonexistent.yaml")
		require.NoError(t, err)
		assert.Equal(t, "http://splitter.internal:9090", cfg.Client.BaseURL)
	})

	t.Run("malformed file is still an error", func(t *testing.T) {
		_, err := LoadOrDefault("testdata/malformed.yaml")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to parse config file")
	})
}

func TestConfig_ValidateServerConfig(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.Server.DataDir = "/var/lib/stemsplit/jobs"
		return cfg
	}

	tests := []struct {
		name      string
		mutate    func(*Config)
		wantErr   bool
		errString string
	}{
		{
			name:    "valid config",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name:      "invalid server port - too low",
			mutate:    func(c *Config) { c.Server.Port = 0 },
			wantErr:   true,
			errString: "invalid server port",
		},
		{
			name:      "invalid server port - too high",
			mutate:    func(c *Config) { c.Server.Port = 70000 },
			wantErr:   true,
			errString: "invalid server port",
		},
		{
			name:      "empty data dir",
			mutate:    func(c *Config) { c.Server.DataDir = "" },
			wantErr:   true,
			errString: "data_dir is required",
		},
		{
			name:      "unknown store backend",
			mutate:    func(c *Config) { c.Store.Backend = "redis" },
			wantErr:   true,
			errString: "unknown store backend",
		},
		{
			name: "sqlite backend without path",
			mutate: func(c *Config) {
				c.Store.Backend = "sqlite"
				c.Store.Path = ""
			},
			wantErr:   true,
			errString: "store path is required",
		},
		{
			name:      "bitrate too low",
			mutate:    func(c *Config) { c.Separator.Bitrate = 16 },
			wantErr:   true,
			errString: "invalid bitrate",
		},
		{
			name:      "bitrate too high",
			mutate:    func(c *Config) { c.Separator.Bitrate = 400 },
			wantErr:   true,
			errString: "invalid bitrate",
		},
		{
			name:      "non-positive separator jobs",
			mutate:    func(c *Config) { c.Separator.Jobs = 0 },
			wantErr:   true,
			errString: "separator jobs must be greater than 0",
		},
		{
			name:      "default model not in list",
			mutate:    func(c *Config) { c.Separator.DefaultModel = "made_up" },
			wantErr:   true,
			errString: "not in the model list",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.ValidateServerConfig()

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestConfig_ValidateClientConfig(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantErr   bool
		errString string
	}{
		{
			name:    "valid config",
			mutate:  func(c *Config) { c.Client.BaseURL = "http://localhost:5000" },
			wantErr: false,
		},
		{
			name:      "missing base url",
			mutate:    func(*Config) {},
			wantErr:   true,
			errString: "base_url is required",
		},
		{
			name: "non-positive poll failure budget",
			mutate: func(c *Config) {
				c.Client.BaseURL = "http://localhost:5000"
				c.Client.PollFailureBudget = -1
			},
			wantErr:   true,
			errString: "poll_failure_budget",
		},
		{
			name: "non-positive download attempts",
			mutate: func(c *Config) {
				c.Client.BaseURL = "http://localhost:5000"
				c.Client.DownloadAttempts = 0
			},
			wantErr:   true,
			errString: "download_attempts",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.ValidateClientConfig()

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestLoad_ValidateIntegration(t *testing.T) {
	t.Run("load and validate valid config", func(t *testing.T) {
		cfg, err := Load("testdata/valid_config.yaml")
		require.NoError(t, err)
		require.NotNil(t, cfg)

		require.NoError(t, cfg.ValidateServerConfig())
		require.NoError(t, cfg.ValidateClientConfig())
	})

	t.Run("load config with invalid port", func(t *testing.T) {
		cfg, err := Load("testdata/invalid_port.yaml")
		require.NoError(t, err)
		require.NotNil(t, cfg)

		err = cfg.ValidateServerConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid server port")
	})

	t.Run("load config with missing data dir", func(t *testing.T) {
		cfg, err := Load("testdata/missing_data_dir.yaml")
		require.NoError(t, err)
		require.NotNil(t, cfg)

		err = cfg.ValidateServerConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "data_dir is required")
	})
}

func TestDefaultModels(t *testing.T) {
	models := DefaultModels()

	assert.Len(t, models, 8)
	assert.Contains(t, models, "htdemucs_ft")
	assert.Contains(t, models, "htdemucs")
	assert.Contains(t, models, "mdx_extra_q")
}
