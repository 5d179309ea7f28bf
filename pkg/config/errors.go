// Package config provides configuration loading and validation for the price feed.
package config

import "errors"

var (
	// ErrNoVenuesConfigured indicates that no price venues are configured.
	ErrNoVenuesConfigured = errors.New("at least one venue must be configured")
	// ErrInvalidVenueKind indicates an unknown venue transport kind.
	ErrInvalidVenueKind = errors.New("invalid venue kind")
	// ErrInvalidWeight indicates a non-positive venue weight.
	ErrInvalidWeight = errors.New("venue weight must be > 0")
	// ErrNoPairsConfigured indicates a venue without symbol mappings.
	ErrNoPairsConfigured = errors.New("venue has no pairs configured")
	// ErrChainConfigIncomplete indicates missing on-chain publisher settings.
	ErrChainConfigIncomplete = errors.New("chain publisher enabled but rpc_url and oracle_address are required")
	// ErrInvalidLogLevel indicates an unknown log level.
	ErrInvalidLogLevel = errors.New("invalid log level")
	// ErrInvalidLogFormat indicates an unknown log format.
	ErrInvalidLogFormat = errors.New("invalid log format")
)
