package pipeline

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/tokenwatch/tokenwatch/internal/domain"
)

// ---------------------------------------------------------------------------
// Status Classifier — derives the lifecycle status of an accepted listing
// ---------------------------------------------------------------------------

// ClassifierConfig holds the movement thresholds, all in percent.
type ClassifierConfig struct {
	// PumpThresholdPct is the minimum price gain versus the prior observation.
	PumpThresholdPct float64

	// RugLiquidityDropPct and RugPriceDropPct are the collapse thresholds
	// versus the prior observation. Either one alone marks a rug.
	RugLiquidityDropPct float64
	RugPriceDropPct     float64
}

// Classifier derives a status from the current snapshot and its predecessor.
//
// It is total: it always returns one of pumped, rugged, cex_listed or none,
// and never fails. Rug beats everything (a collapsing token must trigger the
// sell path even if a CEX listing was just announced), the CEX signal beats
// pump, and a first observation without signals is none.
type Classifier struct {
	cfg ClassifierConfig
	cex CEXSignal // optional, nil disables the cex_listed outcome
}

// NewClassifier creates a status classifier. cex may be nil.
func NewClassifier(cfg ClassifierConfig, cex CEXSignal) *Classifier {
	return &Classifier{cfg: cfg, cex: cex}
}

// Classify derives the status for current. previous is nil on the first
// observation of a pair.
func (c *Classifier) Classify(ctx context.Context, current *domain.ListingSnapshot, previous *domain.ListingSnapshot) domain.Status {
	if previous != nil {
		if c.isRugged(current, previous) {
			return domain.StatusRugged
		}
	}

	if c.cexListed(ctx, current) {
		return domain.StatusCEXListed
	}

	if previous != nil && c.isPumped(current, previous) {
		return domain.StatusPumped
	}

	return domain.StatusNone
}

// isRugged checks for a liquidity or price collapse versus the prior observation.
func (c *Classifier) isRugged(current, previous *domain.ListingSnapshot) bool {
	if dropExceeds(previous.Liquidity, current.Liquidity, c.cfg.RugLiquidityDropPct) {
		return true
	}
	return dropExceeds(previous.Price, current.Price, c.cfg.RugPriceDropPct)
}

// isPumped checks for a price gain above the pump threshold.
func (c *Classifier) isPumped(current, previous *domain.ListingSnapshot) bool {
	if !previous.Price.IsPositive() {
		return false
	}
	gain := current.Price.Sub(previous.Price).
		Div(previous.Price).
		Mul(decimal.NewFromInt(100))
	return gain.GreaterThanOrEqual(decimal.NewFromFloat(c.cfg.PumpThresholdPct))
}

// cexListed consults the external listing signal. Signal errors mean no
// signal; the classifier stays total either way.
func (c *Classifier) cexListed(ctx context.Context, current *domain.ListingSnapshot) bool {
	if c.cex == nil {
		return false
	}
	listed, err := c.cex.IsListed(ctx, current.BaseTokenAddress)
	if err != nil {
		log.Debug().Err(err).
			Str("token", current.BaseTokenAddress).
			Msg("classifier: cex signal unavailable")
		return false
	}
	return listed
}

// dropExceeds reports whether the fall from prev to cur is at least pct percent.
func dropExceeds(prev, cur decimal.Decimal, pct float64) bool {
	if !prev.IsPositive() {
		return false
	}
	drop := prev.Sub(cur).
		Div(prev).
		Mul(decimal.NewFromInt(100))
	return drop.GreaterThanOrEqual(decimal.NewFromFloat(pct))
}
