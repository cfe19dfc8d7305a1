package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/stellar/go-stellar-sdk/strkey"
	"github.com/stellar/go-stellar-sdk/txnbuild"

	"github.com/brojonat/lumenboard/service/events"
	"github.com/brojonat/lumenboard/service/format"
	"github.com/brojonat/lumenboard/service/horizon"
	"github.com/brojonat/lumenboard/service/metrics"
)

// Ledger is the capability set the orchestrator needs from the ledger client.
// This allows substituting fakes in tests.
type Ledger interface {
	LoadAccount(ctx context.Context, address string) (*horizon.Account, error)
	Submit(ctx context.Context, signedEnvelopeXDR string) (*horizon.SubmitResult, error)
}

// Signer is the bound signing capability sourced from the wallet session.
type Signer interface {
	Sign(ctx context.Context, envelopeXDR, networkPassphrase string) (string, error)
}

// Sender runs the payment submission procedure. Every step is a potential
// early exit; there are no automatic retries anywhere. tx_bad_seq is
// surfaced for the user to retry manually.
type Sender struct {
	ledger            Ledger
	publisher         events.Publisher // optional
	networkPassphrase string
	txTimeout         time.Duration
	logger            *slog.Logger
	metrics           *metrics.Metrics
}

// NewSender creates a payment sender.
// The publisher and metrics are optional; if nil, no events/metrics are emitted.
func NewSender(ledger Ledger, networkPassphrase string, txTimeout time.Duration, publisher events.Publisher, m *metrics.Metrics, logger *slog.Logger) *Sender {
	return &Sender{
		ledger:            ledger,
		publisher:         publisher,
		networkPassphrase: networkPassphrase,
		txTimeout:         txTimeout,
		logger:            logger,
		metrics:           m,
	}
}

// Send validates the request, determines whether the destination exists,
// builds the appropriate operation (payment vs. account creation), has the
// signer sign the envelope, submits it, and normalizes the outcome.
func (s *Sender) Send(ctx context.Context, req Request, signer Signer) (*Result, error) {
	start := time.Now()

	// Destination syntax validation, before any network call.
	if !strkey.IsValidEd25519PublicKey(req.To) {
		return nil, ErrInvalidDestination
	}

	// Amount validation, before any network call.
	amount, err := format.ParseAmount(req.Amount)
	if err != nil {
		return nil, ErrInvalidAmount
	}

	// Destination existence lookup. Only AccountNotFound means "does not
	// exist"; any other failure aborts the procedure.
	destinationExists := true
	if _, err := s.ledger.LoadAccount(ctx, req.To); err != nil {
		if !errors.Is(err, horizon.ErrAccountNotFound) {
			s.record("error", "lookup", start)
			return nil, err
		}
		destinationExists = false
	}

	// Creating an account requires funding the base reserve.
	if !destinationExists && amount < 1 {
		return nil, ErrBelowMinimumReserve
	}

	// Source account load for the current sequence number.
	source, err := s.ledger.LoadAccount(ctx, req.From)
	if err != nil {
		s.record("error", "source_load", start)
		return nil, err
	}

	operation, opLabel := buildOperation(req.To, amount, destinationExists)

	memo := buildMemo(req.Memo)

	tx, err := txnbuild.NewTransaction(txnbuild.TransactionParams{
		SourceAccount: &txnbuild.SimpleAccount{
			AccountID: source.Address,
			Sequence:  source.Sequence,
		},
		IncrementSequenceNum: true,
		Operations:           []txnbuild.Operation{operation},
		BaseFee:              txnbuild.MinBaseFee,
		Memo:                 memo,
		Preconditions: txnbuild.Preconditions{
			TimeBounds: txnbuild.NewTimeout(int64(s.txTimeout.Seconds())),
		},
	})
	if err != nil {
		s.record("error", opLabel, start)
		return nil, fmt.Errorf("failed to build transaction: %w", err)
	}

	envelope, err := tx.Base64()
	if err != nil {
		s.record("error", opLabel, start)
		return nil, fmt.Errorf("failed to encode transaction: %w", err)
	}

	// Signing; on failure, do not submit.
	signedEnvelope, err := signer.Sign(ctx, envelope, s.networkPassphrase)
	if err != nil {
		s.logger.InfoContext(ctx, "signing failed, not submitting",
			"from", req.From,
			"error", err,
		)
		s.record("signing_failed", opLabel, start)
		return nil, err
	}

	result, err := s.ledger.Submit(ctx, signedEnvelope)
	if err != nil {
		var subErr *horizon.SubmissionError
		if errors.As(err, &subErr) {
			s.record("rejected", opLabel, start)
			return nil, &RejectedError{
				Code:    subErr.Code(),
				Message: messageForCode(subErr.Code()),
			}
		}
		s.record("error", opLabel, start)
		return nil, err
	}

	s.logger.InfoContext(ctx, "payment submitted",
		"hash", result.Hash,
		"ledger", result.Ledger,
		"operation", opLabel,
		"created_account", !destinationExists,
	)
	s.record("success", opLabel, start)

	s.publishPayment(ctx, req, result, !destinationExists, amount)

	return &Result{
		Hash:           result.Hash,
		Ledger:         result.Ledger,
		CreatedAccount: !destinationExists,
	}, nil
}

// buildOperation selects a payment or create-account operation depending on
// whether the destination already exists on the ledger.
func buildOperation(destination string, amount float64, destinationExists bool) (txnbuild.Operation, string) {
	if destinationExists {
		return &txnbuild.Payment{
			Destination: destination,
			Amount:      format.Amount(amount),
			Asset:       txnbuild.NativeAsset{},
		}, "payment"
	}
	return &txnbuild.CreateAccount{
		Destination: destination,
		Amount:      format.Amount(amount),
	}, "create_account"
}

// buildMemo trims the memo and truncates it to the ledger's 28-byte text
// memo limit, backing off to a rune boundary so a multi-byte character is
// never split. Empty or whitespace-only memos produce no memo at all.
func buildMemo(memo string) txnbuild.Memo {
	trimmed := strings.TrimSpace(memo)
	if trimmed == "" {
		return nil
	}
	if len(trimmed) > MaxMemoLength {
		cut := MaxMemoLength
		for cut > 0 && !utf8.RuneStart(trimmed[cut]) {
			cut--
		}
		trimmed = trimmed[:cut]
	}
	return txnbuild.MemoText(trimmed)
}

func (s *Sender) record(outcome, operation string, start time.Time) {
	if s.metrics != nil {
		s.metrics.RecordPaymentSubmitted(outcome, operation, time.Since(start).Seconds())
	}
}

func (s *Sender) publishPayment(ctx context.Context, req Request, result *horizon.SubmitResult, createdAccount bool, amount float64) {
	if s.publisher == nil {
		return
	}

	event := &events.PaymentEvent{
		Hash:           result.Hash,
		Ledger:         result.Ledger,
		FromAddress:    req.From,
		ToAddress:      req.To,
		Amount:         format.Amount(amount),
		Memo:           strings.TrimSpace(req.Memo),
		CreatedAccount: createdAccount,
		PublishedAt:    time.Now().UTC(),
	}
	if err := s.publisher.PublishPayment(ctx, event); err != nil {
		// The payment already succeeded; a publish failure only degrades
		// streaming consumers.
		s.logger.WarnContext(ctx, "failed to publish payment event",
			"hash", result.Hash,
			"error", err,
		)
	}
}
