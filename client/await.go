package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// PaymentEvent is a payment notification from the server's SSE stream.
type PaymentEvent struct {
	Hash           string    `json:"hash"`
	Ledger         int32     `json:"ledger"`
	FromAddress    string    `json:"from_address"`
	ToAddress      string    `json:"to_address"`
	Amount         string    `json:"amount"`
	Memo           string    `json:"memo,omitempty"`
	CreatedAccount bool      `json:"created_account"`
	PublishedAt    time.Time `json:"published_at"`
}

// AwaitPayment blocks until a payment event involving the given address
// matches the provided matcher, the context is cancelled, or the stream ends.
// The matcher is called for every payment event on the stream.
func (c *Client) AwaitPayment(ctx context.Context, address string, match func(*PaymentEvent) bool) (*PaymentEvent, error) {
	u := fmt.Sprintf("%s/api/v1/stream/payments/%s", c.baseURL, url.PathEscape(address))
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	// SSE connections outlive any client-level timeout; rely on ctx instead
	httpClient := &http.Client{Transport: c.httpClient.Transport}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	c.logger.Debug("awaiting payment", "address", address)

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var eventName string
	var data strings.Builder

	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case strings.HasPrefix(line, ":"):
			// keepalive comment
			continue
		case strings.HasPrefix(line, "event:"):
			eventName = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		case line == "":
			// blank line terminates the event
			if eventName == "payment" && data.Len() > 0 {
				var event PaymentEvent
				if err := json.Unmarshal([]byte(data.String()), &event); err != nil {
					c.logger.Warn("failed to parse payment event", "error", err)
				} else if match(&event) {
					return &event, nil
				}
			}
			eventName = ""
			data.Reset()
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("stream read failed: %w", err)
	}
	return nil, fmt.Errorf("stream closed before a matching payment arrived")
}
