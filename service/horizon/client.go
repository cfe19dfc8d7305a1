package horizon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/stellar/go-stellar-sdk/clients/horizonclient"
	hProtocol "github.com/stellar/go-stellar-sdk/protocols/horizon"

	"github.com/brojonat/lumenboard/service/format"
	"github.com/brojonat/lumenboard/service/metrics"
)

// API is an interface for the Horizon operations we need.
// This allows us to mock the Horizon layer in tests without hitting real servers.
type API interface {
	AccountDetail(request horizonclient.AccountRequest) (hProtocol.Account, error)
	SubmitTransactionXDR(transactionXdr string) (hProtocol.Transaction, error)
}

// Account is the slice of a ledger account the dashboard cares about.
type Account struct {
	Address  string
	Sequence int64
	Balances []Balance
}

// Balance is a single balance line on an account.
type Balance struct {
	AssetType string
	Amount    string
}

// SubmitResult is the outcome of a successful transaction submission.
type SubmitResult struct {
	Hash   string
	Ledger int32
}

// Client wraps Horizon account lookups, transaction submission, and the
// friendbot faucet with domain error mapping.
type Client struct {
	api          API
	friendbotURL string
	httpClient   *http.Client
	logger       *slog.Logger
	metrics      *metrics.Metrics
	endpoint     string // Horizon endpoint identifier for metrics (e.g., "testnet", horizon host)
}

// NewClient creates a new ledger client.
// The endpoint parameter is used for metrics labeling.
// If m is nil, no metrics will be recorded.
func NewClient(api API, friendbotURL, endpoint string, m *metrics.Metrics, logger *slog.Logger) *Client {
	return &Client{
		api:          api,
		friendbotURL: friendbotURL,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		logger:       logger,
		metrics:      m,
		endpoint:     endpoint,
	}
}

// LoadAccount fetches an account snapshot (sequence number and balances).
// Returns ErrAccountNotFound when Horizon reports the account missing;
// any other transport failure is wrapped and propagated.
func (c *Client) LoadAccount(ctx context.Context, address string) (*Account, error) {
	start := time.Now()
	detail, err := c.api.AccountDetail(horizonclient.AccountRequest{AccountID: address})
	duration := time.Since(start).Seconds()

	status := "success"
	if err != nil {
		status = "error"
		if isNotFound(err) {
			status = "not_found"
		}
	}
	if c.metrics != nil {
		c.metrics.RecordHorizonCall("AccountDetail", status, c.endpoint, duration)
	}

	if err != nil {
		if isNotFound(err) {
			c.logger.DebugContext(ctx, "account not found on ledger", "address", address)
			return nil, ErrAccountNotFound
		}
		c.logger.ErrorContext(ctx, "failed to load account",
			"address", address,
			"error", err,
		)
		return nil, fmt.Errorf("horizon account request failed: %w", err)
	}

	acct := &Account{
		Address:  detail.AccountID,
		Sequence: detail.Sequence,
		Balances: make([]Balance, 0, len(detail.Balances)),
	}
	for _, b := range detail.Balances {
		acct.Balances = append(acct.Balances, Balance{
			AssetType: b.Asset.Type,
			Amount:    b.Balance,
		})
	}

	return acct, nil
}

// NativeBalance returns the account's native-asset (XLM) balance formatted
// with 7 fractional digits. An existing account always has a native balance
// line; "0.0000000" is returned defensively if it is missing.
func (c *Client) NativeBalance(ctx context.Context, address string) (string, error) {
	acct, err := c.LoadAccount(ctx, address)
	if err != nil {
		return "", err
	}

	for _, b := range acct.Balances {
		if b.AssetType == "native" {
			v, err := format.ParseAmount(b.Amount)
			if err != nil {
				// Horizon returned a non-positive or malformed balance string;
				// pass it through untouched rather than failing the refresh.
				return b.Amount, nil
			}
			return format.Amount(v), nil
		}
	}

	return "0.0000000", nil
}

// Submit posts a signed transaction envelope to Horizon.
// Ledger-level rejections are returned as *SubmissionError with the
// Horizon result codes; transport failures are wrapped and propagated.
func (c *Client) Submit(ctx context.Context, signedEnvelopeXDR string) (*SubmitResult, error) {
	start := time.Now()
	resp, err := c.api.SubmitTransactionXDR(signedEnvelopeXDR)
	duration := time.Since(start).Seconds()

	status := "success"
	if err != nil {
		status = "error"
	}
	if c.metrics != nil {
		c.metrics.RecordHorizonCall("SubmitTransaction", status, c.endpoint, duration)
	}

	if err != nil {
		if herr := asHorizonError(err); herr != nil {
			if subErr := submissionErrorFromHorizon(herr); subErr != nil {
				c.logger.InfoContext(ctx, "transaction rejected by ledger",
					"transaction_code", subErr.TransactionCode,
					"operation_codes", subErr.OperationCodes,
				)
				return nil, subErr
			}
		}
		c.logger.ErrorContext(ctx, "failed to submit transaction", "error", err)
		return nil, fmt.Errorf("horizon submission failed: %w", err)
	}

	c.logger.InfoContext(ctx, "transaction accepted",
		"hash", resp.Hash,
		"ledger", resp.Ledger,
	)

	return &SubmitResult{
		Hash:   resp.Hash,
		Ledger: resp.Ledger,
	}, nil
}

// Fund requests testnet funding for an address from friendbot.
// Returns ErrAlreadyFunded when friendbot reports the account already exists,
// *FaucetError for other friendbot failures, and a wrapped error for
// transport failures.
func (c *Client) Fund(ctx context.Context, address string) error {
	u := format.FriendbotURL(c.friendbotURL, address)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("failed to create friendbot request: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if c.metrics != nil {
			c.metrics.RecordFaucetRequest("error")
			c.metrics.RecordHorizonCall("Friendbot", "error", c.endpoint, time.Since(start).Seconds())
		}
		c.logger.ErrorContext(ctx, "friendbot request failed", "address", address, "error", err)
		return fmt.Errorf("friendbot request failed: %w", err)
	}
	defer resp.Body.Close()

	if c.metrics != nil {
		c.metrics.RecordHorizonCall("Friendbot", httpStatusLabel(resp.StatusCode), c.endpoint, time.Since(start).Seconds())
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if c.metrics != nil {
			c.metrics.RecordFaucetRequest("success")
		}
		c.logger.InfoContext(ctx, "account funded by friendbot", "address", address)
		return nil
	}

	// Friendbot failures come back as a problem document with a detail field.
	var body struct {
		Detail string `json:"detail"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&body)

	if strings.Contains(body.Detail, "createAccountAlreadyExist") {
		if c.metrics != nil {
			c.metrics.RecordFaucetRequest("already_funded")
		}
		c.logger.DebugContext(ctx, "account already funded", "address", address)
		return ErrAlreadyFunded
	}

	if c.metrics != nil {
		c.metrics.RecordFaucetRequest("error")
	}
	c.logger.WarnContext(ctx, "friendbot refused funding",
		"address", address,
		"status", resp.StatusCode,
		"detail", body.Detail,
	)
	return &FaucetError{Detail: body.Detail}
}

// isNotFound reports whether err is a Horizon 404 response.
func isNotFound(err error) bool {
	if herr := asHorizonError(err); herr != nil {
		return herr.Problem.Status == http.StatusNotFound
	}
	return false
}

// asHorizonError extracts a Horizon problem error from err, whether the SDK
// surfaced it by value or by pointer.
func asHorizonError(err error) *horizonclient.Error {
	var perr *horizonclient.Error
	if errors.As(err, &perr) {
		return perr
	}
	var verr horizonclient.Error
	if errors.As(err, &verr) {
		return &verr
	}
	return nil
}

// submissionErrorFromHorizon extracts result codes from a Horizon error.
// Returns nil when the error carries no result codes (i.e. it was not a
// ledger-level rejection).
func submissionErrorFromHorizon(herr *horizonclient.Error) *SubmissionError {
	codes, err := herr.ResultCodes()
	if err != nil || codes == nil {
		return nil
	}
	return &SubmissionError{
		TransactionCode: codes.TransactionCode,
		OperationCodes:  codes.OperationCodes,
	}
}

func httpStatusLabel(code int) string {
	if code >= 200 && code < 300 {
		return "success"
	}
	return "error"
}
