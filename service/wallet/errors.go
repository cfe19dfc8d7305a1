package wallet

import (
	"errors"
	"fmt"
)

// ErrNotInstalled indicates no wallet agent is reachable.
var ErrNotInstalled = errors.New("wallet agent is not installed")

// ConnectionDeniedError indicates the wallet agent refused the access request.
type ConnectionDeniedError struct {
	Reason string
}

func (e *ConnectionDeniedError) Error() string {
	if e.Reason == "" {
		return "wallet connection denied"
	}
	return fmt.Sprintf("wallet connection denied: %s", e.Reason)
}

// SigningError indicates the wallet agent failed to sign a transaction.
type SigningError struct {
	Reason string
}

func (e *SigningError) Error() string {
	if e.Reason == "" {
		return "wallet signing failed"
	}
	return fmt.Sprintf("wallet signing failed: %s", e.Reason)
}
