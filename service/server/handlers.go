package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/stellar/go-stellar-sdk/strkey"

	"github.com/brojonat/lumenboard/service/config"
	"github.com/brojonat/lumenboard/service/events"
	"github.com/brojonat/lumenboard/service/format"
	"github.com/brojonat/lumenboard/service/horizon"
	"github.com/brojonat/lumenboard/service/metrics"
	"github.com/brojonat/lumenboard/service/payment"
	"github.com/brojonat/lumenboard/service/wallet"
)

const (
	maxRequestBodySize = 1 << 20 // 1MB - plenty for payment requests
)

// WalletSession is the wallet surface the handlers need.
type WalletSession interface {
	State() wallet.State
	CheckStatus(ctx context.Context) (wallet.State, error)
	Connect(ctx context.Context) (wallet.State, error)
	Disconnect() wallet.State
	Sign(ctx context.Context, envelopeXDR, networkPassphrase string) (string, error)
}

// Ledger is the Horizon surface the handlers need.
type Ledger interface {
	NativeBalance(ctx context.Context, address string) (string, error)
	Fund(ctx context.Context, address string) error
}

// PaymentSender submits signed payments to the ledger.
type PaymentSender interface {
	Send(ctx context.Context, req payment.Request, signer payment.Signer) (*payment.Result, error)
}

// BalancePublisher emits balance snapshots to the event stream.
type BalancePublisher interface {
	PublishBalance(ctx context.Context, event *events.BalanceEvent) error
}

// balanceSnapshot is the most recent balance fetched for an address.
type balanceSnapshot struct {
	Balance   string
	FetchedAt time.Time
}

// balanceCache keeps the latest balance per address. Concurrent refreshes
// race and the last write wins; the event stream carries every snapshot.
type balanceCache struct {
	mu     sync.Mutex
	latest map[string]balanceSnapshot
}

func newBalanceCache() *balanceCache {
	return &balanceCache{latest: make(map[string]balanceSnapshot)}
}

func (c *balanceCache) store(address string, snap balanceSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.latest[address] = snap
}

func (c *balanceCache) load(address string) (balanceSnapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap, ok := c.latest[address]
	return snap, ok
}

// clear drops the snapshot for an address. A failed refresh must not leave a
// stale balance behind.
func (c *balanceCache) clear(address string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.latest, address)
}

// handleWalletStatus returns a handler that reports the current wallet state.
// GET /api/v1/wallet/status
func handleWalletStatus(session WalletSession, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		state, err := session.CheckStatus(r.Context())
		if err != nil {
			// The state carries the error detail; the check itself succeeded
			// in determining that the wallet is unusable.
			logger.Debug("wallet status check failed", "error", err)
		}

		writeJSON(w, map[string]interface{}{
			"wallet": state,
		}, http.StatusOK)
	})
}

// handleWalletConnect returns a handler that requests wallet access.
// POST /api/v1/wallet/connect
func handleWalletConnect(session WalletSession, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		state, err := session.Connect(r.Context())
		if err != nil {
			var denied *wallet.ConnectionDeniedError
			switch {
			case errors.Is(err, wallet.ErrNotInstalled):
				logger.Debug("wallet not installed")
				writeError(w, "wallet is not installed", http.StatusServiceUnavailable)
			case errors.As(err, &denied):
				logger.Debug("wallet connection denied", "reason", denied.Reason)
				writeError(w, "wallet connection was denied", http.StatusForbidden)
			default:
				logger.Error("failed to connect wallet", "error", err)
				writeError(w, "failed to connect wallet", http.StatusInternalServerError)
			}
			return
		}

		logger.Info("wallet connected", "address", state.Address, "network", state.Network)
		writeJSON(w, map[string]interface{}{
			"wallet": state,
		}, http.StatusOK)
	})
}

// handleWalletDisconnect returns a handler that clears the local session.
// The wallet itself keeps its authorization; only this service forgets it.
// POST /api/v1/wallet/disconnect
func handleWalletDisconnect(session WalletSession, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		state := session.Disconnect()
		logger.Info("wallet disconnected")
		writeJSON(w, map[string]interface{}{
			"wallet": state,
		}, http.StatusOK)
	})
}

// handleGetBalance returns a handler that fetches the native XLM balance.
// GET /api/v1/balance/{address}
func handleGetBalance(ledger Ledger, publisher BalancePublisher, cache *balanceCache, m *metrics.Metrics, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		address := r.PathValue("address")

		if err := validateAddress(address); err != nil {
			logger.Debug("invalid address", "address", address, "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		balance, err := ledger.NativeBalance(r.Context(), address)
		if err != nil {
			cache.clear(address)
			if errors.Is(err, horizon.ErrAccountNotFound) {
				if m != nil {
					m.RecordBalanceRefresh("not_found")
				}
				writeJSON(w, map[string]interface{}{
					"address": address,
					"funded":  false,
					"error":   "account not found",
				}, http.StatusNotFound)
				return
			}
			logger.Error("failed to fetch balance", "address", address, "error", err)
			if m != nil {
				m.RecordBalanceRefresh("error")
			}
			writeError(w, "failed to fetch balance", http.StatusBadGateway)
			return
		}

		snap := balanceSnapshot{Balance: balance, FetchedAt: time.Now().UTC()}
		cache.store(address, snap)
		if m != nil {
			m.RecordBalanceRefresh("ok")
		}

		if publisher != nil {
			event := &events.BalanceEvent{
				Address:   address,
				Balance:   balance,
				FetchedAt: snap.FetchedAt,
			}
			if err := publisher.PublishBalance(r.Context(), event); err != nil {
				logger.Warn("failed to publish balance event", "address", address, "error", err)
			}
		}

		logger.Debug("balance fetched", "address", address, "balance", balance)
		writeJSON(w, map[string]interface{}{
			"address":    address,
			"balance":    balance,
			"asset":      "XLM",
			"funded":     true,
			"fetched_at": snap.FetchedAt,
		}, http.StatusOK)
	})
}

// handleFundAccount returns a handler that requests testnet funds from the
// friendbot faucet.
// POST /api/v1/fund
func handleFundAccount(ledger Ledger, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req struct {
			Address string `json:"address"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Debug("failed to decode fund request", "error", err)
			writeError(w, "invalid request body: must be valid JSON", http.StatusBadRequest)
			return
		}

		if err := validateAddress(req.Address); err != nil {
			logger.Debug("invalid address", "address", req.Address, "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		if err := ledger.Fund(r.Context(), req.Address); err != nil {
			var faucetErr *horizon.FaucetError
			switch {
			case errors.Is(err, horizon.ErrAlreadyFunded):
				writeError(w, "account is already funded", http.StatusConflict)
			case errors.As(err, &faucetErr):
				logger.Error("faucet rejected funding request", "address", req.Address, "detail", faucetErr.Detail)
				writeError(w, "faucet rejected the funding request", http.StatusBadGateway)
			default:
				logger.Error("failed to fund account", "address", req.Address, "error", err)
				writeError(w, "failed to fund account", http.StatusBadGateway)
			}
			return
		}

		logger.Info("account funded", "address", req.Address)
		writeJSON(w, map[string]interface{}{
			"address": req.Address,
			"funded":  true,
		}, http.StatusOK)
	})
}

// handleSendPayment returns a handler that builds, signs, and submits a
// payment. The wallet session signs; an existing destination gets a payment
// operation and a missing one gets a create-account operation.
// POST /api/v1/payments
func handleSendPayment(sender PaymentSender, session WalletSession, cfg *config.Config, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req struct {
			To     string `json:"to"`
			Amount string `json:"amount"`
			Memo   string `json:"memo"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Debug("failed to decode payment request", "error", err)
			writeError(w, "invalid request body: must be valid JSON", http.StatusBadRequest)
			return
		}

		state := session.State()
		if !state.Connected || state.Address == "" {
			writeError(w, "wallet is not connected", http.StatusPreconditionFailed)
			return
		}

		result, err := sender.Send(r.Context(), payment.Request{
			From:   state.Address,
			To:     req.To,
			Amount: req.Amount,
			Memo:   req.Memo,
		}, session)
		if err != nil {
			writePaymentError(w, logger, err)
			return
		}

		logger.Info("payment submitted",
			"hash", result.Hash,
			"ledger", result.Ledger,
			"to", req.To,
			"created_account", result.CreatedAccount,
		)

		writeJSON(w, map[string]interface{}{
			"hash":            result.Hash,
			"ledger":          result.Ledger,
			"created_account": result.CreatedAccount,
			"explorer_url":    format.ExplorerTxURL(cfg.ExplorerBaseURL, result.Hash),
		}, http.StatusOK)
	})
}

// writePaymentError maps payment pipeline failures onto HTTP responses.
func writePaymentError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var rejected *payment.RejectedError
	var signing *wallet.SigningError

	switch {
	case errors.Is(err, payment.ErrInvalidDestination):
		writeError(w, "invalid destination address", http.StatusBadRequest)
	case errors.Is(err, payment.ErrInvalidAmount):
		writeError(w, "amount must be a positive number", http.StatusBadRequest)
	case errors.Is(err, payment.ErrBelowMinimumReserve):
		writeError(w, "new accounts require a minimum of 1 XLM", http.StatusBadRequest)
	case errors.As(err, &rejected):
		logger.Debug("payment rejected by ledger", "code", rejected.Code)
		writeJSON(w, map[string]interface{}{
			"error": rejected.Message,
			"code":  rejected.Code,
		}, http.StatusUnprocessableEntity)
	case errors.As(err, &signing):
		logger.Debug("payment signing failed", "reason", signing.Reason)
		writeError(w, "transaction signing was rejected", http.StatusForbidden)
	default:
		logger.Error("payment failed", "error", err)
		writeError(w, "payment failed", http.StatusBadGateway)
	}
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// validateAddress validates a Stellar account address.
func validateAddress(address string) error {
	if address == "" {
		return errors.New("address is required")
	}
	if strings.TrimSpace(address) != address {
		return errors.New("address must not contain whitespace")
	}
	if !strkey.IsValidEd25519PublicKey(address) {
		return errors.New("address is not a valid Stellar public key")
	}
	return nil
}
