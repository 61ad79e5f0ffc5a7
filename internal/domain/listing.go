package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle classification of a monitored trading pair.
// At most one status holds at a time; the latest classification wins.
type Status string

const (
	// StatusNone means no classification has been derived yet.
	StatusNone Status = ""

	// StatusPumped marks a large positive price move versus the prior observation.
	StatusPumped Status = "pumped"

	// StatusRugged marks a liquidity or price collapse versus the prior observation.
	StatusRugged Status = "rugged"

	// StatusCEXListed marks a token reported as listed on a centralized exchange.
	StatusCEXListed Status = "cex_listed"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusNone, StatusPumped, StatusRugged, StatusCEXListed:
		return true
	}
	return false
}

// RawListing is one observed state of a trading pair as returned by the
// market-data feed, before any evaluation.
type RawListing struct {
	ChainID           string
	PairAddress       string
	BaseTokenAddress  string
	BaseTokenName     string
	QuoteTokenAddress string
	Exchange          string
	PriceUSD          decimal.Decimal
	LiquidityUSD      decimal.Decimal
	Volume24hUSD      decimal.Decimal
	PairCreatedAt     time.Time // on-chain pair creation time, not observation time
}

// ListingSnapshot is the persisted latest-known state of a trading pair.
//
// PairAddress is the identity. The identity block (name, addresses, chain,
// exchange, creation time) is immutable after first insert; price, liquidity,
// volume and status are refreshed on every accepted observation.
type ListingSnapshot struct {
	PairAddress       string          `json:"pair_address"`
	BaseTokenName     string          `json:"base_token_name"`
	BaseTokenAddress  string          `json:"base_token_address"`
	QuoteTokenAddress string          `json:"quote_token_address"`
	Chain             string          `json:"chain"`
	Exchange          string          `json:"exchange"`
	CreatedAt         time.Time       `json:"created_at"`
	Price             decimal.Decimal `json:"price"`
	Liquidity         decimal.Decimal `json:"liquidity"`
	Volume24h         decimal.Decimal `json:"volume_24h"`
	Status            Status          `json:"status,omitempty"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// SnapshotFromRaw builds a ListingSnapshot from an accepted raw listing.
// Status is left for the classifier; UpdatedAt is assigned by the store.
func SnapshotFromRaw(raw RawListing) ListingSnapshot {
	return ListingSnapshot{
		PairAddress:       raw.PairAddress,
		BaseTokenName:     raw.BaseTokenName,
		BaseTokenAddress:  raw.BaseTokenAddress,
		QuoteTokenAddress: raw.QuoteTokenAddress,
		Chain:             raw.ChainID,
		Exchange:          raw.Exchange,
		CreatedAt:         raw.PairCreatedAt,
		Price:             raw.PriceUSD,
		Liquidity:         raw.LiquidityUSD,
		Volume24h:         raw.Volume24hUSD,
	}
}
