package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// CEXSignal reports whether a token has been listed on a centralized exchange.
// Implementations are best-effort; an error means "no signal right now".
type CEXSignal interface {
	IsListed(ctx context.Context, tokenAddress string) (bool, error)
}

// CEXFeedClient implements CEXSignal against an HTTP feed:
// GET {endpoint}/{address} -> {"listed": bool}.
type CEXFeedClient struct {
	endpoint   string
	httpClient *http.Client
}

// NewCEXFeedClient creates a CEX listing signal client.
func NewCEXFeedClient(endpoint string, timeout time.Duration) *CEXFeedClient {
	return &CEXFeedClient{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

var _ CEXSignal = (*CEXFeedClient)(nil)

// IsListed queries the feed for a listing announcement.
func (c *CEXFeedClient) IsListed(ctx context.Context, tokenAddress string) (bool, error) {
	url := fmt.Sprintf("%s/%s", c.endpoint, tokenAddress)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, fmt.Errorf("build cex signal request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("cex signal %s: %w", tokenAddress, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("cex signal %s: status %d", tokenAddress, resp.StatusCode)
	}

	var parsed struct {
		Listed bool `json:"listed"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return false, fmt.Errorf("cex signal %s: decode: %w", tokenAddress, err)
	}
	return parsed.Listed, nil
}
