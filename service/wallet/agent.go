package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/brojonat/lumenboard/service/metrics"
)

// Agent is the external wallet boundary: the six operations the browser
// extension exposes. Key custody and signing live entirely on the other
// side of this interface.
type Agent interface {
	// IsConnected reports whether a wallet agent is installed and reachable.
	IsConnected(ctx context.Context) (bool, error)

	// IsAllowed reports whether this application has been granted access.
	IsAllowed(ctx context.Context) (bool, error)

	// RequestAccess asks the agent to grant access. The agent may prompt
	// the user; denial is returned as an error.
	RequestAccess(ctx context.Context) error

	// Address returns the agent's current account address.
	Address(ctx context.Context) (string, error)

	// Network returns the agent's current network name (e.g. "TESTNET").
	Network(ctx context.Context) (string, error)

	// SignTransaction signs a base64 transaction envelope for the given
	// network passphrase and returns the signed envelope.
	SignTransaction(ctx context.Context, envelopeXDR, networkPassphrase string) (string, error)
}

// AgentClient is an Agent backed by an HTTP wallet agent (the service-side
// analogue of a browser extension).
type AgentClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewAgentClient creates a new wallet agent client.
func NewAgentClient(baseURL string, httpClient *http.Client, m *metrics.Metrics, logger *slog.Logger) *AgentClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &AgentClient{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
		metrics:    m,
	}
}

// IsConnected reports whether the wallet agent is reachable at all.
// An unreachable agent means "not installed", not an error.
func (c *AgentClient) IsConnected(ctx context.Context) (bool, error) {
	var resp struct {
		IsConnected bool `json:"is_connected"`
	}
	err := c.get(ctx, "/v1/is-connected", &resp)
	if err != nil {
		if isUnreachable(err) {
			c.logger.DebugContext(ctx, "wallet agent unreachable", "error", err)
			return false, nil
		}
		return false, err
	}
	return resp.IsConnected, nil
}

// IsAllowed reports whether access has been granted.
func (c *AgentClient) IsAllowed(ctx context.Context) (bool, error) {
	var resp struct {
		IsAllowed bool `json:"is_allowed"`
	}
	if err := c.get(ctx, "/v1/is-allowed", &resp); err != nil {
		return false, err
	}
	return resp.IsAllowed, nil
}

// RequestAccess asks the agent to grant access to this application.
func (c *AgentClient) RequestAccess(ctx context.Context) error {
	var resp struct {
		Error string `json:"error"`
	}
	if err := c.post(ctx, "/v1/request-access", nil, &resp); err != nil {
		return err
	}
	if resp.Error != "" {
		return &ConnectionDeniedError{Reason: resp.Error}
	}
	return nil
}

// Address returns the agent's current account address.
func (c *AgentClient) Address(ctx context.Context) (string, error) {
	var resp struct {
		Address string `json:"address"`
	}
	if err := c.get(ctx, "/v1/address", &resp); err != nil {
		return "", err
	}
	return resp.Address, nil
}

// Network returns the agent's current network name.
func (c *AgentClient) Network(ctx context.Context) (string, error) {
	var resp struct {
		Network string `json:"network"`
	}
	if err := c.get(ctx, "/v1/network", &resp); err != nil {
		return "", err
	}
	return resp.Network, nil
}

// SignTransaction delegates envelope signing to the agent.
func (c *AgentClient) SignTransaction(ctx context.Context, envelopeXDR, networkPassphrase string) (string, error) {
	reqBody := map[string]string{
		"transaction_xdr":    envelopeXDR,
		"network_passphrase": networkPassphrase,
	}

	var resp struct {
		SignedTxXDR string `json:"signed_tx_xdr"`
		Error       string `json:"error"`
	}
	if err := c.post(ctx, "/v1/sign-transaction", reqBody, &resp); err != nil {
		status := "error"
		if c.metrics != nil {
			c.metrics.RecordWalletAgentCall("SignTransaction", status)
		}
		return "", &SigningError{Reason: err.Error()}
	}
	if resp.Error != "" {
		if c.metrics != nil {
			c.metrics.RecordWalletAgentCall("SignTransaction", "denied")
		}
		return "", &SigningError{Reason: resp.Error}
	}
	if c.metrics != nil {
		c.metrics.RecordWalletAgentCall("SignTransaction", "success")
	}
	return resp.SignedTxXDR, nil
}

func (c *AgentClient) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req, out)
}

func (c *AgentClient) post(ctx context.Context, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *AgentClient) do(req *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("wallet agent request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		body, _ := io.ReadAll(resp.Body)
		if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
			return fmt.Errorf("wallet agent returned status %d: %s", resp.StatusCode, string(body))
		}
		return fmt.Errorf("wallet agent error: %s", errResp.Error)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode wallet agent response: %w", err)
	}
	return nil
}

// isUnreachable reports whether err looks like a transport-level failure to
// reach the agent (as opposed to an agent-side error response).
func isUnreachable(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
