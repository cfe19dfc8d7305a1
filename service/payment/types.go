package payment

import (
	"errors"
	"fmt"
)

// Request describes one payment submission attempt. It is constructed fresh
// per attempt and not mutated after validation.
type Request struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount string `json:"amount"` // decimal string, up to 7 fractional digits
	Memo   string `json:"memo,omitempty"`
}

// Result is the outcome of an accepted submission.
type Result struct {
	Hash           string `json:"hash"`
	Ledger         int32  `json:"ledger"`
	CreatedAccount bool   `json:"created_account"`
}

// Validation failures; each aborts the procedure before any further
// network call is made.
var (
	ErrInvalidDestination  = errors.New("invalid destination address")
	ErrInvalidAmount       = errors.New("amount must be a positive number")
	ErrBelowMinimumReserve = errors.New("destination account does not exist; minimum 1 XLM required to create it")
)

// RejectedError is a ledger-level rejection normalized to a user-facing
// message. Code is the most specific Horizon result code available.
type RejectedError struct {
	Code    string
	Message string
}

func (e *RejectedError) Error() string {
	return e.Message
}

// MaxMemoLength is the ledger's text memo limit in bytes.
const MaxMemoLength = 28

// resultCodeMessages maps known Horizon result codes to user-facing messages.
// Unknown codes surface the raw code.
var resultCodeMessages = map[string]string{
	"tx_insufficient_balance": "Insufficient balance for this transaction (including fees).",
	"op_underfunded":          "Insufficient balance.",
	"op_no_destination":       "Destination account does not exist.",
	"op_low_reserve":          "Destination account needs at least 1 XLM to be created.",
	"tx_bad_seq":              "Sequence number mismatch. Please retry.",
	"tx_failed":               "Transaction failed.",
}

// messageForCode returns the user-facing message for a Horizon result code.
func messageForCode(code string) string {
	if msg, ok := resultCodeMessages[code]; ok {
		return msg
	}
	return fmt.Sprintf("Transaction error: %s", code)
}
