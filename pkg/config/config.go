package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Database struct {
		URL       string `yaml:"url"`
		VectorDim int    `yaml:"vector_dim"`
	} `yaml:"database"`

	Bodies struct {
		Dir string `yaml:"dir"`
	} `yaml:"bodies"`

	Chunker struct {
		ChunkSize int    `yaml:"chunk_size"`
		Encoding  string `yaml:"encoding"`
	} `yaml:"chunker"`

	Match struct {
		ContextThreshold     float64 `yaml:"context_threshold"`
		ShortNeedleThreshold float64 `yaml:"short_needle_threshold"`
		ShortNeedleLen       int     `yaml:"short_needle_len"`
		ContextRadius        int     `yaml:"context_radius"`
		ChunkThreshold       float64 `yaml:"chunk_threshold"`
		ChunkWindow          int     `yaml:"chunk_window"`
	} `yaml:"match"`

	Recovery struct {
		SuccessThreshold float64 `yaml:"success_threshold"`
		ReviewThreshold  float64 `yaml:"review_threshold"`
		Workers          int     `yaml:"workers"`
	} `yaml:"recovery"`

	Pipeline struct {
		MinRecoveryRate     float64 `yaml:"min_recovery_rate"`
		BudgetPerAnnotation int     `yaml:"budget_per_annotation_ms"`
		BudgetFloor         int     `yaml:"budget_floor_ms"`
		RateLimit           float64 `yaml:"rate_limit"`
	} `yaml:"pipeline"`
}

func LoadConfig(path string) (*Config, error) {
	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/reanchor/config.yaml"),
			"/etc/reanchor/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %v", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %v", err)
	}

	// Merge with environment variables
	mergeWithEnv(&config)

	// Apply defaults for unset values
	applyDefaults(&config)

	return &config, nil
}

func getDefaultConfig() (*Config, error) {
	config := &Config{}
	applyDefaults(config)
	mergeWithEnv(config)
	return config, nil
}

func applyDefaults(config *Config) {
	if config.Database.VectorDim == 0 {
		config.Database.VectorDim = 768
	}

	if config.Bodies.Dir == "" {
		config.Bodies.Dir = "bodies"
	}

	if config.Chunker.ChunkSize == 0 {
		config.Chunker.ChunkSize = 1000
	}

	if config.Match.ContextThreshold == 0 {
		config.Match.ContextThreshold = 0.85
	}
	if config.Match.ShortNeedleThreshold == 0 {
		config.Match.ShortNeedleThreshold = 0.90
	}
	if config.Match.ShortNeedleLen == 0 {
		config.Match.ShortNeedleLen = 50
	}
	if config.Match.ContextRadius == 0 {
		config.Match.ContextRadius = 2000
	}
	if config.Match.ChunkThreshold == 0 {
		config.Match.ChunkThreshold = 0.75
	}
	if config.Match.ChunkWindow == 0 {
		config.Match.ChunkWindow = 2
	}

	if config.Recovery.SuccessThreshold == 0 {
		config.Recovery.SuccessThreshold = 0.85
	}
	if config.Recovery.ReviewThreshold == 0 {
		config.Recovery.ReviewThreshold = 0.5
	}

	if config.Pipeline.MinRecoveryRate == 0 {
		config.Pipeline.MinRecoveryRate = 0.5
	}
	if config.Pipeline.BudgetPerAnnotation == 0 {
		config.Pipeline.BudgetPerAnnotation = 100
	}
	if config.Pipeline.BudgetFloor == 0 {
		config.Pipeline.BudgetFloor = 2000
	}
	if config.Pipeline.RateLimit == 0 {
		config.Pipeline.RateLimit = 1.0
	}
}

func mergeWithEnv(config *Config) {
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Database.URL = dbURL
	}
	if bodyDir := os.Getenv("BODY_DIR"); bodyDir != "" {
		config.Bodies.Dir = bodyDir
	}
}
