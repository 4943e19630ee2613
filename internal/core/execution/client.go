// Package execution implements the wallet execution port against an HTTP
// transfer-submission API.
package execution

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/floorlens/floorlens/internal/core"
)

// Client submits purchase transfers to a wallet service. It satisfies
// core.ExecutionPort.
type Client struct {
	HTTP    *http.Client
	BaseURL string
	APIKey  string
}

// Submit posts a transfer request. Validation failures and declined
// submissions surface as *core.APIError carrying the HTTP status so the
// retry policy can tell transient rejections from permanent ones.
func (c *Client) Submit(ctx context.Context, req core.TransferRequest) (*core.TransferReceipt, error) {
	if c == nil {
		return nil, errors.New("execution client is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if strings.TrimSpace(req.Destination) == "" {
		return nil, errors.New("transfer destination is required")
	}
	if req.Amount <= 0 {
		return nil, fmt.Errorf("transfer amount must be positive, got %v", req.Amount)
	}

	base, err := c.baseURL()
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode transfer request: %w", err)
	}

	endpoint := base.ResolveReference(&url.URL{Path: "transfers"})
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if c.APIKey != "" {
		httpReq.Header.Set("X-API-Key", c.APIKey)
	}

	resp, err := c.client().Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("submit transfer: %w", err)
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup on HTTP response body

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, &core.APIError{
			StatusCode: resp.StatusCode,
			Message:    readErrorBody(resp),
		}
	}

	var receipt core.TransferReceipt
	if err := json.NewDecoder(resp.Body).Decode(&receipt); err != nil {
		return nil, fmt.Errorf("decode transfer receipt: %w", err)
	}
	if strings.TrimSpace(receipt.TxHash) == "" {
		return nil, errors.New("transfer receipt is missing a transaction hash")
	}

	return &receipt, nil
}

func (c *Client) baseURL() (*url.URL, error) {
	raw := strings.TrimSpace(c.BaseURL)
	if raw == "" {
		return nil, errors.New("execution base url is required")
	}
	if !strings.HasSuffix(raw, "/") {
		raw += "/"
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid execution base url: %w", err)
	}
	return parsed, nil
}

func (c *Client) client() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return &http.Client{Timeout: 30 * time.Second}
}

func readErrorBody(resp *http.Response) string {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 512))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(body))
}
