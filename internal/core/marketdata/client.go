// Package marketdata implements the market-data port against an HTTP
// listings API.
package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/floorlens/floorlens/internal/core"
)

// Client fetches collection listings over HTTP. It satisfies
// core.MarketDataPort.
type Client struct {
	HTTP    *http.Client
	BaseURL string
	APIKey  string
}

type listingsResponse struct {
	Listings []core.Listing `json:"listings"`
}

// FetchListings returns the current listings for a collection, cheapest
// first as returned by the service. Rate-limit responses surface as a
// *core.APIError with status 429 so the retry policy can classify them.
func (c *Client) FetchListings(ctx context.Context, collection string) ([]core.Listing, error) {
	if c == nil {
		return nil, errors.New("market data client is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	collection = strings.TrimSpace(collection)
	if collection == "" {
		return nil, errors.New("collection is required")
	}

	base, err := c.baseURL()
	if err != nil {
		return nil, err
	}

	endpoint := base.ResolveReference(&url.URL{
		Path: fmt.Sprintf("collections/%s/listings", url.PathEscape(collection)),
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.APIKey != "" {
		req.Header.Set("X-API-Key", c.APIKey)
	}

	resp, err := c.client().Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch listings for %s: %w", collection, err)
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup on HTTP response body

	switch resp.StatusCode {
	case http.StatusOK:
		var payload listingsResponse
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			return nil, fmt.Errorf("decode listings for %s: %w", collection, err)
		}
		return payload.Listings, nil
	case http.StatusTooManyRequests:
		return nil, &core.APIError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("rate limited, retry in %s", retryAfterHeader(resp)),
		}
	default:
		return nil, &core.APIError{
			StatusCode: resp.StatusCode,
			Message:    readErrorBody(resp),
		}
	}
}

func (c *Client) baseURL() (*url.URL, error) {
	raw := strings.TrimSpace(c.BaseURL)
	if raw == "" {
		return nil, errors.New("market data base url is required")
	}
	if !strings.HasSuffix(raw, "/") {
		raw += "/"
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid market data base url: %w", err)
	}
	return parsed, nil
}

func (c *Client) client() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return &http.Client{Timeout: 10 * time.Second}
}

// retryAfterHeader parses a Retry-After header as seconds, defaulting to
// one minute when absent or malformed.
func retryAfterHeader(resp *http.Response) time.Duration {
	raw := strings.TrimSpace(resp.Header.Get("Retry-After"))
	if raw == "" {
		return time.Minute
	}
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds < 0 {
		return time.Minute
	}
	return time.Duration(seconds) * time.Second
}

// readErrorBody extracts a short error message from a non-2xx response.
func readErrorBody(resp *http.Response) string {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 512))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(body))
}
