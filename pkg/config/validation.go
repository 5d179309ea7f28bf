package config

import (
	"fmt"
	"os"
	"strings"
)

// Validate checks configuration for errors. Only startup configuration
// errors abort the service; everything downstream recovers at runtime.
func Validate(cfg *Config) error {
	if len(cfg.Venues) == 0 {
		return ErrNoVenuesConfigured
	}

	enabled := 0
	for i := range cfg.Venues {
		v := &cfg.Venues[i]
		if !v.Enabled {
			continue
		}
		enabled++
		if err := validateVenue(v); err != nil {
			return fmt.Errorf("venue %d (%s): %w", i, v.Name, err)
		}
	}
	if enabled == 0 {
		return ErrNoVenuesConfigured
	}

	if cfg.Chain.Enabled {
		if err := validateChain(&cfg.Chain); err != nil {
			return fmt.Errorf("chain config: %w", err)
		}
	}

	if err := validateLogging(&cfg.Logging); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

func validateVenue(v *VenueConfig) error {
	if v.Name == "" {
		return fmt.Errorf("name must be specified")
	}

	kind := strings.ToLower(v.Kind)
	if kind != "websocket" && kind != "poll" {
		return fmt.Errorf("%w: %s (must be 'websocket' or 'poll')", ErrInvalidVenueKind, v.Kind)
	}

	if v.URL == "" {
		return fmt.Errorf("url must be specified")
	}

	if v.Weight <= 0 {
		return fmt.Errorf("%w: %f", ErrInvalidWeight, v.Weight)
	}

	if len(v.Pairs) == 0 {
		return ErrNoPairsConfigured
	}
	for asset, venueSymbol := range v.Pairs {
		if asset == "" || venueSymbol == "" {
			return fmt.Errorf("%w: empty mapping", ErrNoPairsConfigured)
		}
	}

	return nil
}

func validateChain(cfg *ChainConfig) error {
	if cfg.RPCURL == "" || cfg.OracleAddress == "" {
		return ErrChainConfigIncomplete
	}
	if len(cfg.Tokens) == 0 {
		return fmt.Errorf("%w: at least one token address is required", ErrChainConfigIncomplete)
	}
	if os.Getenv(cfg.PrivateKeyEnv) == "" {
		return fmt.Errorf("environment variable %s not set (required for signing)", cfg.PrivateKeyEnv)
	}
	return nil
}

func validateLogging(cfg *LoggingConfig) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	levelValid := false
	for _, l := range validLevels {
		if strings.ToLower(cfg.Level) == l {
			levelValid = true
			break
		}
	}
	if !levelValid {
		return fmt.Errorf("%w: %s (must be one of: %s)", ErrInvalidLogLevel, cfg.Level, strings.Join(validLevels, ", "))
	}

	format := strings.ToLower(cfg.Format)
	if format != "json" && format != "text" {
		return fmt.Errorf("%w: %s (must be 'json' or 'text')", ErrInvalidLogFormat, cfg.Format)
	}

	return nil
}
