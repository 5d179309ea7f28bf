// Package config provides configuration loading and validation for the price feed.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from a YAML file, expanding environment variables.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	absPath, err := filepath.Abs(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("invalid config path: %w", err)
	}

	data, err := os.ReadFile(absPath) // #nosec G304 -- Path sanitized with filepath.Clean and filepath.Abs
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyDefaults(&cfg)

	return &cfg, nil
}

// applyDefaults sets default values for optional fields.
func applyDefaults(cfg *Config) {
	// Engine defaults
	if cfg.Engine.StaleAfter.ToDuration() == 0 {
		cfg.Engine.StaleAfter = Duration(10 * time.Second)
	}
	if cfg.Engine.QueueSize == 0 {
		cfg.Engine.QueueSize = 1024
	}
	if cfg.Engine.Confidence.SourceTarget == 0 {
		cfg.Engine.Confidence.SourceTarget = 4
	}
	if cfg.Engine.Confidence.SourceScoreMax == 0 {
		cfg.Engine.Confidence.SourceScoreMax = 50
	}
	if cfg.Engine.Confidence.SpreadScoreMax == 0 {
		cfg.Engine.Confidence.SpreadScoreMax = 50
	}
	if cfg.Engine.Confidence.SpreadPenalty == 0 {
		cfg.Engine.Confidence.SpreadPenalty = 10
	}

	// History defaults
	if cfg.History.Capacity == 0 {
		cfg.History.Capacity = 1000
	}

	// Venue defaults
	for i := range cfg.Venues {
		if cfg.Venues[i].Weight == 0 {
			cfg.Venues[i].Weight = 1.0
		}
		if cfg.Venues[i].Kind == "poll" && cfg.Venues[i].PollInterval.ToDuration() == 0 {
			cfg.Venues[i].PollInterval = Duration(30 * time.Second)
		}
	}

	// Hub defaults
	if cfg.Hub.Addr == "" {
		cfg.Hub.Addr = ":8080"
	}
	if cfg.Hub.ClientBuffer == 0 {
		cfg.Hub.ClientBuffer = 256
	}

	// API defaults
	if cfg.API.Addr == "" {
		cfg.API.Addr = ":8081"
	}
	if len(cfg.API.CORSOrigins) == 0 {
		cfg.API.CORSOrigins = []string{"*"}
	}

	// Chain defaults
	if cfg.Chain.PublishInterval.ToDuration() == 0 {
		cfg.Chain.PublishInterval = Duration(5 * time.Second)
	}
	if cfg.Chain.TxTimeout.ToDuration() == 0 {
		cfg.Chain.TxTimeout = Duration(30 * time.Second)
	}
	if cfg.Chain.PrivateKeyEnv == "" {
		cfg.Chain.PrivateKeyEnv = "ORACLE_PRIVATE_KEY"
	}

	// Cache defaults
	if cfg.Cache.Addr == "" {
		cfg.Cache.Addr = "localhost:6379"
	}
	if cfg.Cache.TTL.ToDuration() == 0 {
		cfg.Cache.TTL = Duration(60 * time.Second)
	}

	// Storage defaults
	if cfg.Storage.SSLMode == "" {
		cfg.Storage.SSLMode = "disable"
	}
	if cfg.Storage.BatchSize == 0 {
		cfg.Storage.BatchSize = 100
	}
	if cfg.Storage.FlushPeriod.ToDuration() == 0 {
		cfg.Storage.FlushPeriod = Duration(10 * time.Second)
	}

	// Metrics defaults
	if cfg.Metrics.Enabled && cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = ":9091"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
}
