package assess

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// RugCheckClient assesses token reputation against a RugCheck-style scoring
// API: GET {endpoint}/{address} -> {"score": <0..100>}.
type RugCheckClient struct {
	endpoint   string
	minScore   float64
	httpClient *http.Client

	checkCount atomic.Int64
	errorCount atomic.Int64
}

// NewRugCheckClient creates a reputation assessor. A token passes when its
// score is at least minScore.
func NewRugCheckClient(endpoint string, minScore float64, timeout time.Duration) *RugCheckClient {
	return &RugCheckClient{
		endpoint: endpoint,
		minScore: minScore,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

var _ ReputationAssessor = (*RugCheckClient)(nil)

type rugCheckResponse struct {
	Score float64 `json:"score"`
}

// Assess fetches the reputation score for a token address.
// Transport failures and non-2xx responses map to ErrUnavailable.
func (c *RugCheckClient) Assess(ctx context.Context, tokenAddress string) (bool, error) {
	c.checkCount.Add(1)

	url := fmt.Sprintf("%s/%s", c.endpoint, tokenAddress)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, fmt.Errorf("build rugcheck request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.errorCount.Add(1)
		log.Warn().Err(err).Str("token", tokenAddress).Msg("rugcheck: request failed")
		return false, fmt.Errorf("rugcheck %s: %w", tokenAddress, ErrUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.errorCount.Add(1)
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		log.Warn().
			Int("status", resp.StatusCode).
			Str("token", tokenAddress).
			Str("body", string(body)).
			Msg("rugcheck: unexpected status")
		return false, fmt.Errorf("rugcheck %s: status %d: %w", tokenAddress, resp.StatusCode, ErrUnavailable)
	}

	var parsed rugCheckResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		c.errorCount.Add(1)
		return false, fmt.Errorf("rugcheck %s: decode: %w", tokenAddress, ErrUnavailable)
	}

	ok := parsed.Score >= c.minScore
	log.Debug().
		Str("token", tokenAddress).
		Float64("score", parsed.Score).
		Float64("min_score", c.minScore).
		Bool("ok", ok).
		Msg("rugcheck: score fetched")

	return ok, nil
}
