package venues

import "errors"

var (
	// ErrUnknownVenue indicates that no factory is registered for the name.
	ErrUnknownVenue = errors.New("unknown venue")
	// ErrNoPairsConfigured indicates a venue without symbol mappings.
	ErrNoPairsConfigured = errors.New("no pairs configured")
	// ErrURLRequired indicates a venue without an endpoint.
	ErrURLRequired = errors.New("venue url required")
	// ErrConnection indicates a transport-level failure; recovered by the
	// reconnect loop, never fatal to the process.
	ErrConnection = errors.New("connection error")
)
