package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// WalletState is the wallet session as reported by the server.
type WalletState struct {
	Installed bool   `json:"installed"`
	Connected bool   `json:"connected"`
	Address   string `json:"address,omitempty"`
	Network   string `json:"network,omitempty"`
	Loading   bool   `json:"loading"`
	Error     string `json:"error,omitempty"`
}

// Balance is a native XLM balance snapshot for an account.
type Balance struct {
	Address   string    `json:"address"`
	Balance   string    `json:"balance"`
	Asset     string    `json:"asset"`
	Funded    bool      `json:"funded"`
	FetchedAt time.Time `json:"fetched_at"`
}

// PaymentReceipt is the result of a submitted payment.
type PaymentReceipt struct {
	Hash           string `json:"hash"`
	Ledger         int32  `json:"ledger"`
	CreatedAccount bool   `json:"created_account"`
	ExplorerURL    string `json:"explorer_url"`
}

// Client is the HTTP client for the lumenboard dashboard service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new dashboard service client.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Status fetches the current wallet session state from the server.
func (c *Client) Status(ctx context.Context) (*WalletState, error) {
	return c.walletRequest(ctx, "GET", "/api/v1/wallet/status")
}

// Connect asks the server to request wallet access.
func (c *Client) Connect(ctx context.Context) (*WalletState, error) {
	state, err := c.walletRequest(ctx, "POST", "/api/v1/wallet/connect")
	if err != nil {
		return nil, err
	}
	c.logger.Debug("wallet connected", "address", state.Address, "network", state.Network)
	return state, nil
}

// Disconnect clears the server's local wallet session.
func (c *Client) Disconnect(ctx context.Context) (*WalletState, error) {
	state, err := c.walletRequest(ctx, "POST", "/api/v1/wallet/disconnect")
	if err != nil {
		return nil, err
	}
	c.logger.Debug("wallet disconnected")
	return state, nil
}

// Balance fetches the native XLM balance for an account. Funded reports
// whether the account exists on the ledger.
func (c *Client) Balance(ctx context.Context, address string) (*Balance, error) {
	u := fmt.Sprintf("%s/api/v1/balance/%s", c.baseURL, url.PathEscape(address))
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	// A 404 is a well-formed "unfunded account" response, not a failure
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNotFound {
		return nil, c.parseErrorResponse(resp)
	}

	var balance Balance
	if err := json.NewDecoder(resp.Body).Decode(&balance); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &balance, nil
}

// Fund requests testnet funds for an account from the friendbot faucet.
func (c *Client) Fund(ctx context.Context, address string) error {
	body, err := json.Marshal(map[string]string{"address": address})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/v1/fund", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.parseErrorResponse(resp)
	}

	c.logger.Debug("account funded", "address", address)
	return nil
}

// SendPayment builds, signs, and submits a payment through the server's
// connected wallet. Memo may be empty.
func (c *Client) SendPayment(ctx context.Context, to, amount, memo string) (*PaymentReceipt, error) {
	body, err := json.Marshal(map[string]string{
		"to":     to,
		"amount": amount,
		"memo":   memo,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/v1/payments", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	var receipt PaymentReceipt
	if err := json.NewDecoder(resp.Body).Decode(&receipt); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	c.logger.Debug("payment submitted", "hash", receipt.Hash, "ledger", receipt.Ledger)
	return &receipt, nil
}

// Health checks the server's health endpoint.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// walletRequest issues a wallet session request and unwraps the state.
func (c *Client) walletRequest(ctx context.Context, method, path string) (*WalletState, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	var response struct {
		Wallet WalletState `json:"wallet"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &response.Wallet, nil
}

// parseErrorResponse attempts to parse an error response from the server.
func (c *Client) parseErrorResponse(resp *http.Response) error {
	var errResp struct {
		Error string `json:"error"`
	}

	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
	}

	return fmt.Errorf("request failed: %s", errResp.Error)
}
