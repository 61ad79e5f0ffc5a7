package assess

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// HolderDistributionClient assesses supply concentration against a holder
// distribution API: GET {endpoint}/{address} ->
// {"holders": [{"address": ..., "percentage": ...}, ...]}.
//
// The supply counts as bundled when the combined percentage of the top
// maxTopHolders wallets exceeds maxTopHolderPct.
type HolderDistributionClient struct {
	endpoint        string
	maxTopHolderPct float64
	maxTopHolders   int
	httpClient      *http.Client

	checkCount atomic.Int64
	errorCount atomic.Int64
}

// NewHolderDistributionClient creates a supply concentration assessor.
func NewHolderDistributionClient(endpoint string, maxTopHolderPct float64, maxTopHolders int, timeout time.Duration) *HolderDistributionClient {
	return &HolderDistributionClient{
		endpoint:        endpoint,
		maxTopHolderPct: maxTopHolderPct,
		maxTopHolders:   maxTopHolders,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

var _ ConcentrationAssessor = (*HolderDistributionClient)(nil)

type holderDistributionResponse struct {
	Holders []struct {
		Address    string  `json:"address"`
		Percentage float64 `json:"percentage"`
	} `json:"holders"`
}

// Assess fetches the holder distribution and checks top-holder concentration.
// Transport failures and non-2xx responses map to ErrUnavailable.
func (c *HolderDistributionClient) Assess(ctx context.Context, tokenAddress string) (bool, error) {
	c.checkCount.Add(1)

	url := fmt.Sprintf("%s/%s", c.endpoint, tokenAddress)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, fmt.Errorf("build holders request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.errorCount.Add(1)
		log.Warn().Err(err).Str("token", tokenAddress).Msg("holders: request failed")
		return false, fmt.Errorf("holders %s: %w", tokenAddress, ErrUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.errorCount.Add(1)
		return false, fmt.Errorf("holders %s: status %d: %w", tokenAddress, resp.StatusCode, ErrUnavailable)
	}

	var parsed holderDistributionResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		c.errorCount.Add(1)
		return false, fmt.Errorf("holders %s: decode: %w", tokenAddress, ErrUnavailable)
	}

	pcts := make([]float64, len(parsed.Holders))
	for i, h := range parsed.Holders {
		pcts[i] = h.Percentage
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(pcts)))

	var topPct float64
	for i, pct := range pcts {
		if i >= c.maxTopHolders {
			break
		}
		topPct += pct
	}

	bundled := topPct > c.maxTopHolderPct
	log.Debug().
		Str("token", tokenAddress).
		Float64("top_holders_pct", topPct).
		Float64("max_pct", c.maxTopHolderPct).
		Int("holders", len(parsed.Holders)).
		Bool("bundled", bundled).
		Msg("holders: distribution fetched")

	return bundled, nil
}
