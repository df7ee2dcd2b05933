package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	// Create temporary config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configData := `
database:
  url: "postgres://localhost:5432/test"
  vector_dim: 1536

bodies:
  dir: "/var/lib/reanchor/bodies"

chunker:
  chunk_size: 500

match:
  context_threshold: 0.8
  chunk_window: 3

recovery:
  success_threshold: 0.9
  workers: 4

pipeline:
  min_recovery_rate: 0.6
  rate_limit: 2.5
`
	err := os.WriteFile(configPath, []byte(configData), 0644)
	require.NoError(t, err)

	// Test loading config
	config, err := LoadConfig(configPath)
	require.NoError(t, err)

	// Verify loaded values
	assert.Equal(t, "postgres://localhost:5432/test", config.Database.URL)
	assert.Equal(t, 1536, config.Database.VectorDim)
	assert.Equal(t, "/var/lib/reanchor/bodies", config.Bodies.Dir)
	assert.Equal(t, 500, config.Chunker.ChunkSize)
	assert.Equal(t, 0.8, config.Match.ContextThreshold)
	assert.Equal(t, 3, config.Match.ChunkWindow)
	assert.Equal(t, 0.9, config.Recovery.SuccessThreshold)
	assert.Equal(t, 4, config.Recovery.Workers)
	assert.Equal(t, 0.6, config.Pipeline.MinRecoveryRate)
	assert.Equal(t, 2.5, config.Pipeline.RateLimit)

	// Unset values fall back to defaults
	assert.Equal(t, 0.75, config.Match.ChunkThreshold)
	assert.Equal(t, 0.5, config.Recovery.ReviewThreshold)
	assert.Equal(t, 100, config.Pipeline.BudgetPerAnnotation)
}

func TestConfigDefaults(t *testing.T) {
	config, err := getDefaultConfig()
	require.NoError(t, err)

	assert.Equal(t, 768, config.Database.VectorDim)
	assert.Equal(t, 1000, config.Chunker.ChunkSize)
	assert.Equal(t, 0.85, config.Match.ContextThreshold)
	assert.Equal(t, 0.90, config.Match.ShortNeedleThreshold)
	assert.Equal(t, 50, config.Match.ShortNeedleLen)
	assert.Equal(t, 2000, config.Match.ContextRadius)
	assert.Equal(t, 2, config.Match.ChunkWindow)
	assert.Equal(t, 0.85, config.Recovery.SuccessThreshold)
	assert.Equal(t, 0.5, config.Pipeline.MinRecoveryRate)
	assert.Equal(t, 2000, config.Pipeline.BudgetFloor)

	// Defaults must pass their own validation
	assert.Empty(t, config.Validate())
}

func TestConfigValidation(t *testing.T) {
	valid, err := getDefaultConfig()
	require.NoError(t, err)

	tests := []struct {
		name         string
		mutate       func(*Config)
		expectedErrs []string
	}{
		{
			name:         "valid config",
			mutate:       func(*Config) {},
			expectedErrs: nil,
		},
		{
			name: "out of range thresholds",
			mutate: func(c *Config) {
				c.Match.ContextThreshold = 1.5
				c.Match.ChunkThreshold = -0.1
				c.Recovery.ReviewThreshold = 0.95 // above success_threshold
			},
			expectedErrs: []string{
				"match.context_threshold",
				"match.short_needle_threshold", // dragged below context_threshold
				"match.chunk_threshold",
				"recovery.review_threshold",
			},
		},
		{
			name: "bad sizes and budgets",
			mutate: func(c *Config) {
				c.Database.VectorDim = -1
				c.Chunker.ChunkSize = 0
				c.Pipeline.BudgetFloor = 0
				c.Pipeline.RateLimit = 0
			},
			expectedErrs: []string{
				"database.vector_dim",
				"chunker.chunk_size",
				"pipeline.budget_floor_ms",
				"pipeline.rate_limit",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := *valid
			tt.mutate(&config)

			errors := config.Validate()
			assert.Len(t, errors, len(tt.expectedErrs))

			for i, field := range tt.expectedErrs {
				assert.Contains(t, errors[i].Error(), field)
			}
		})
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	// Set environment variables
	os.Setenv("DATABASE_URL", "postgres://env-db:5432/test")
	os.Setenv("BODY_DIR", "/tmp/bodies")
	defer func() {
		os.Unsetenv("DATABASE_URL")
		os.Unsetenv("BODY_DIR")
	}()

	config := &Config{}
	mergeWithEnv(config)

	assert.Equal(t, "postgres://env-db:5432/test", config.Database.URL)
	assert.Equal(t, "/tmp/bodies", config.Bodies.Dir)
}
