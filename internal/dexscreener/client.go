package dexscreener

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/tokenwatch/tokenwatch/internal/domain"
)

// ---------------------------------------------------------------------------
// DexScreener API Client — latest pair state for a token address
// https://docs.dexscreener.com/api/reference
// ---------------------------------------------------------------------------

const (
	maxRetries   = 2
	retryBackoff = 500 * time.Millisecond
)

var (
	// ErrUnavailable marks a transport failure or upstream error.
	ErrUnavailable = errors.New("market data unavailable")

	// ErrNoPairs is returned when the feed knows no pairs for the address.
	ErrNoPairs = errors.New("no pairs for token")
)

// Client fetches raw listings from a DexScreener-compatible endpoint.
// Transient failures (transport errors, 429, 5xx) are retried with
// exponential backoff before reporting ErrUnavailable.
type Client struct {
	endpoint   string
	httpClient *http.Client
	backoff    time.Duration

	fetchCount atomic.Int64
	errorCount atomic.Int64
}

// NewClient creates a market data client.
func NewClient(endpoint string, timeout time.Duration) *Client {
	return &Client{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		backoff: retryBackoff,
	}
}

// pairsResponse mirrors the subset of the DexScreener token endpoint we
// consume. Numeric fields arrive as mixed string/number JSON (priceUsd is a
// quoted string, liquidity.usd a plain number), so they decode through
// usdAmount and reach decimals without a float detour.
type pairsResponse struct {
	Pairs []pairPayload `json:"pairs"`
}

type pairPayload struct {
	ChainID   string `json:"chainId"`
	DexID     string `json:"dexId"`
	PairAddr  string `json:"pairAddress"`
	BaseToken struct {
		Address string `json:"address"`
		Name    string `json:"name"`
	} `json:"baseToken"`
	QuoteToken struct {
		Address string `json:"address"`
	} `json:"quoteToken"`
	PriceUSD  usdAmount `json:"priceUsd"`
	Liquidity struct {
		USD usdAmount `json:"usd"`
	} `json:"liquidity"`
	Volume struct {
		H24 usdAmount `json:"h24"`
	} `json:"volume"`
	PairCreatedAt int64 `json:"pairCreatedAt"` // epoch milliseconds
}

// usdAmount is a decimal that tolerates both quoted and bare JSON numbers.
// Absent or malformed values decode as zero; shape validation belongs to the
// pipeline.
type usdAmount struct {
	decimal.Decimal
}

func (a *usdAmount) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	if s == "" || s == "null" {
		a.Decimal = decimal.Zero
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		a.Decimal = decimal.Zero
		return nil
	}
	a.Decimal = d
	return nil
}

// Fetch returns the raw listing for a token address. When the feed reports
// several pairs, the deepest-liquidity one wins.
func (c *Client) Fetch(ctx context.Context, tokenAddress string) (domain.RawListing, error) {
	c.fetchCount.Add(1)

	url := fmt.Sprintf("%s/latest/dex/tokens/%s", c.endpoint, tokenAddress)

	var parsed pairsResponse
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(c.backoff * time.Duration(1<<uint(attempt-1))):
			case <-ctx.Done():
				return domain.RawListing{}, ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return domain.RawListing{}, fmt.Errorf("build dexscreener request: %w", err)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.errorCount.Add(1)
			lastErr = err
			log.Warn().Err(err).Str("token", tokenAddress).Int("attempt", attempt).Msg("dexscreener: request failed")
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			resp.Body.Close()
			c.errorCount.Add(1)
			lastErr = fmt.Errorf("status %d", resp.StatusCode)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			c.errorCount.Add(1)
			return domain.RawListing{}, fmt.Errorf("dexscreener %s: status %d: %w", tokenAddress, resp.StatusCode, ErrUnavailable)
		}

		err = json.NewDecoder(resp.Body).Decode(&parsed)
		resp.Body.Close()
		if err != nil {
			c.errorCount.Add(1)
			return domain.RawListing{}, fmt.Errorf("dexscreener %s: decode: %w", tokenAddress, ErrUnavailable)
		}
		lastErr = nil
		break
	}

	if lastErr != nil {
		return domain.RawListing{}, fmt.Errorf("dexscreener %s: %v: %w", tokenAddress, lastErr, ErrUnavailable)
	}

	if len(parsed.Pairs) == 0 {
		return domain.RawListing{}, fmt.Errorf("dexscreener %s: %w", tokenAddress, ErrNoPairs)
	}

	best := parsed.Pairs[0]
	for _, p := range parsed.Pairs[1:] {
		if p.Liquidity.USD.GreaterThan(best.Liquidity.USD.Decimal) {
			best = p
		}
	}

	raw := domain.RawListing{
		ChainID:           best.ChainID,
		PairAddress:       best.PairAddr,
		BaseTokenAddress:  best.BaseToken.Address,
		BaseTokenName:     best.BaseToken.Name,
		QuoteTokenAddress: best.QuoteToken.Address,
		Exchange:          best.DexID,
		PriceUSD:          best.PriceUSD.Decimal,
		LiquidityUSD:      best.Liquidity.USD.Decimal,
		Volume24hUSD:      best.Volume.H24.Decimal,
	}
	if best.PairCreatedAt > 0 {
		raw.PairCreatedAt = time.UnixMilli(best.PairCreatedAt)
	}

	log.Debug().
		Str("token", tokenAddress).
		Str("pair", raw.PairAddress).
		Str("chain", raw.ChainID).
		Str("liquidity_usd", raw.LiquidityUSD.String()).
		Int("pairs", len(parsed.Pairs)).
		Msg("dexscreener: listing fetched")

	return raw, nil
}
