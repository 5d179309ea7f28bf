package chain

import "errors"

var (
	// ErrIncompleteConfig indicates a missing RPC URL, oracle address or
	// token mapping.
	ErrIncompleteConfig = errors.New("chain publisher config incomplete")

	// ErrNoSigningKey indicates the signing key env var is unset.
	ErrNoSigningKey = errors.New("no signing key")

	// ErrTransactionReverted indicates a mined but failed transaction.
	ErrTransactionReverted = errors.New("transaction reverted")
)
