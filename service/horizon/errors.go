package horizon

import (
	"errors"
	"fmt"
	"strings"
)

// ErrAccountNotFound indicates the requested account does not exist on the ledger.
var ErrAccountNotFound = errors.New("account not found")

// ErrAlreadyFunded indicates the faucet refused because the account already exists.
var ErrAlreadyFunded = errors.New("account already funded")

// SubmissionError is a ledger-level rejection of a submitted transaction,
// carrying the Horizon result codes.
type SubmissionError struct {
	TransactionCode string
	OperationCodes  []string
}

func (e *SubmissionError) Error() string {
	if len(e.OperationCodes) > 0 {
		return fmt.Sprintf("transaction rejected: %s (%s)", e.TransactionCode, strings.Join(e.OperationCodes, ", "))
	}
	return fmt.Sprintf("transaction rejected: %s", e.TransactionCode)
}

// Code returns the most specific result code available: the first operation
// code when present, otherwise the transaction-level code.
func (e *SubmissionError) Code() string {
	if len(e.OperationCodes) > 0 {
		return e.OperationCodes[0]
	}
	return e.TransactionCode
}

// FaucetError is a friendbot failure other than the idempotent double-fund case.
type FaucetError struct {
	Detail string
}

func (e *FaucetError) Error() string {
	if e.Detail == "" {
		return "friendbot request failed"
	}
	return fmt.Sprintf("friendbot request failed: %s", e.Detail)
}
