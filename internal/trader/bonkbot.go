package trader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// BonkBotClient executes trades through the BonkBot HTTP API:
// POST {endpoint}/trade {"token_address": ..., "action": "buy"|"sell"}.
type BonkBotClient struct {
	endpoint   string
	httpClient *http.Client

	tradeCount atomic.Int64
	errorCount atomic.Int64
}

// NewBonkBotClient creates a trade execution client.
func NewBonkBotClient(endpoint string, timeout time.Duration) *BonkBotClient {
	return &BonkBotClient{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

var _ TradeExecutor = (*BonkBotClient)(nil)

type tradeRequest struct {
	TokenAddress string `json:"token_address"`
	Action       string `json:"action"`
}

// Execute places a buy or sell order for the token.
func (c *BonkBotClient) Execute(ctx context.Context, tokenAddress string, action Action) error {
	c.tradeCount.Add(1)

	payload, err := json.Marshal(tradeRequest{
		TokenAddress: tokenAddress,
		Action:       string(action),
	})
	if err != nil {
		return fmt.Errorf("marshal trade request: %w", err)
	}

	url := c.endpoint + "/trade"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build trade request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.errorCount.Add(1)
		return fmt.Errorf("bonkbot trade %s %s: %w", action, tokenAddress, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.errorCount.Add(1)
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("bonkbot trade %s %s: status %d: %s", action, tokenAddress, resp.StatusCode, string(body))
	}

	log.Info().
		Str("token", tokenAddress).
		Str("action", string(action)).
		Int64("latency_ms", time.Since(start).Milliseconds()).
		Msg("bonkbot: trade accepted")

	return nil
}
