package events

import "time"

// PaymentEvent is published to the subject "payments.{from_address}" after a
// transaction is accepted by the ledger.
type PaymentEvent struct {
	// Transaction identifiers
	Hash   string `json:"hash"`
	Ledger int32  `json:"ledger"`

	// Parties
	FromAddress string `json:"from_address"`
	ToAddress   string `json:"to_address"`

	// Payment details
	Amount         string `json:"amount"` // decimal string, 7 fractional digits
	Memo           string `json:"memo,omitempty"`
	CreatedAccount bool   `json:"created_account"`

	// Metadata
	PublishedAt time.Time `json:"published_at"`
}

// BalanceEvent is published to the subject "balances.{address}" after a
// balance refresh resolves. Subscribers render whatever arrives last; late
// events overwriting newer ones is an accepted limitation of the refresh flow.
type BalanceEvent struct {
	Address   string    `json:"address"`
	Balance   string    `json:"balance"` // decimal string, 7 fractional digits
	FetchedAt time.Time `json:"fetched_at"`
}
