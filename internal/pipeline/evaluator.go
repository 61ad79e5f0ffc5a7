package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/tokenwatch/tokenwatch/internal/assess"
	"github.com/tokenwatch/tokenwatch/internal/domain"
	"github.com/tokenwatch/tokenwatch/internal/observability"
	"github.com/tokenwatch/tokenwatch/internal/storage"
)

// ---------------------------------------------------------------------------
// Evaluation Pipeline — ordered filter chain over raw listings
// ---------------------------------------------------------------------------

// Step identifies the filter that produced a rejection.
type Step string

const (
	StepShape         Step = "shape"
	StepChain         Step = "chain_eligibility"
	StepLiquidity     Step = "liquidity_floor"
	StepAge           Step = "minimum_age"
	StepDenyList      Step = "denylist"
	StepReputation    Step = "reputation"
	StepConcentration Step = "concentration"
)

// Decision is the outcome of evaluating one raw listing.
type Decision struct {
	Accepted bool   `json:"accepted"`
	Step     Step   `json:"step,omitempty"`   // filter that rejected, empty on accept
	Reason   string `json:"reason,omitempty"` // human-readable rejection reason
}

func reject(step Step, reason string) Decision {
	return Decision{Step: step, Reason: reason}
}

// Config holds the evaluation thresholds and policies.
type Config struct {
	AllowedChains []string

	// MinLiquidityUSD is compared as a decimal, never as a binary float.
	MinLiquidityUSD decimal.Decimal

	// MinAge is measured from the pair's on-chain creation time.
	MinAge time.Duration

	// MatchDenyListByName also matches the display name against the token
	// deny list (legacy compatibility policy).
	MatchDenyListByName bool

	// ReputationFailOpen accepts the reputation step when the assessor is
	// unavailable. Default false: fail closed.
	ReputationFailOpen bool
}

// Evaluator applies the ordered filter chain to raw listings. Filters
// short-circuit: once one rejects, the rest are never consulted.
//
// The concentration filter is the only one with a durable side effect: a
// bundled-supply verdict writes the token address to both deny-list
// categories, permanently changing how future evaluations of that address go.
type Evaluator struct {
	cfg           Config
	chains        map[string]struct{}
	denyList      storage.DenyListStore
	reputation    assess.ReputationAssessor
	concentration assess.ConcentrationAssessor

	now func() time.Time

	evaluations *observability.Counter
	accepts     *observability.Counter
	denyWrites  *observability.Counter
	registry    *observability.Registry
}

// NewEvaluator creates an evaluation pipeline.
func NewEvaluator(
	cfg Config,
	denyList storage.DenyListStore,
	reputation assess.ReputationAssessor,
	concentration assess.ConcentrationAssessor,
	registry *observability.Registry,
) *Evaluator {
	chains := make(map[string]struct{}, len(cfg.AllowedChains))
	for _, c := range cfg.AllowedChains {
		chains[c] = struct{}{}
	}

	return &Evaluator{
		cfg:           cfg,
		chains:        chains,
		denyList:      denyList,
		reputation:    reputation,
		concentration: concentration,
		now:           time.Now,
		evaluations:   registry.NewCounter("tokenwatch_evaluations_total", "Raw listings evaluated", nil),
		accepts:       registry.NewCounter("tokenwatch_evaluations_accepted_total", "Listings that passed all filters", nil),
		denyWrites:    registry.NewCounter("tokenwatch_denylist_autowrites_total", "Deny-list entries written by the pipeline", nil),
		registry:      registry,
	}
}

// Evaluate runs the filter chain over one raw listing.
func (e *Evaluator) Evaluate(ctx context.Context, raw domain.RawListing) Decision {
	e.evaluations.Inc()

	d := e.evaluate(ctx, raw)
	if d.Accepted {
		e.accepts.Inc()
		log.Debug().
			Str("pair", raw.PairAddress).
			Str("token", raw.BaseTokenAddress).
			Msg("pipeline: listing accepted")
	} else {
		e.rejectCounter(d.Step).Inc()
		log.Debug().
			Str("pair", raw.PairAddress).
			Str("token", raw.BaseTokenAddress).
			Str("step", string(d.Step)).
			Str("reason", d.Reason).
			Msg("pipeline: listing rejected")
	}
	return d
}

func (e *Evaluator) evaluate(ctx context.Context, raw domain.RawListing) Decision {
	// Shape check first: a malformed listing must never panic a filter.
	if reason := malformedReason(raw); reason != "" {
		log.Warn().
			Str("pair", raw.PairAddress).
			Str("reason", reason).
			Msg("pipeline: malformed listing")
		return reject(StepShape, reason)
	}

	// 1. Chain eligibility.
	if _, ok := e.chains[raw.ChainID]; !ok {
		return reject(StepChain, fmt.Sprintf("chain %q not in allowed set", raw.ChainID))
	}

	// 2. Liquidity floor.
	if raw.LiquidityUSD.LessThan(e.cfg.MinLiquidityUSD) {
		return reject(StepLiquidity, fmt.Sprintf(
			"liquidity %s below floor %s", raw.LiquidityUSD, e.cfg.MinLiquidityUSD))
	}

	// 3. Minimum age, from on-chain creation time.
	if age := e.now().Sub(raw.PairCreatedAt); age < e.cfg.MinAge {
		return reject(StepAge, fmt.Sprintf("pair age %s below minimum %s", age.Truncate(time.Second), e.cfg.MinAge))
	}

	// 4. Deny-list membership.
	if d, ok := e.checkDenyList(ctx, raw); !ok {
		return d
	}

	// 5. Reputation score.
	if d, ok := e.checkReputation(ctx, raw); !ok {
		return d
	}

	// 6. Supply concentration. The only filter with a durable side effect.
	if d, ok := e.checkConcentration(ctx, raw); !ok {
		return d
	}

	return Decision{Accepted: true}
}

// checkDenyList rejects listings whose base token is banned. The token
// category matches the address and, under the legacy policy, the display
// name; the developer category matches the address only.
func (e *Evaluator) checkDenyList(ctx context.Context, raw domain.RawListing) (Decision, bool) {
	denied, err := e.denyList.IsDenied(ctx, domain.CategoryToken, raw.BaseTokenAddress)
	if err != nil {
		return reject(StepDenyList, fmt.Sprintf("denylist lookup failed: %v", err)), false
	}
	if denied {
		return reject(StepDenyList, "token address is deny-listed"), false
	}

	if e.cfg.MatchDenyListByName && raw.BaseTokenName != "" {
		denied, err = e.denyList.IsDenied(ctx, domain.CategoryToken, raw.BaseTokenName)
		if err != nil {
			return reject(StepDenyList, fmt.Sprintf("denylist lookup failed: %v", err)), false
		}
		if denied {
			// Name matches are the legacy behavior worth telling apart from
			// address matches when auditing rejections.
			log.Warn().
				Str("token", raw.BaseTokenAddress).
				Str("name", raw.BaseTokenName).
				Msg("pipeline: token denied by display-name match")
			return reject(StepDenyList, "token name is deny-listed"), false
		}
	}

	denied, err = e.denyList.IsDenied(ctx, domain.CategoryDeveloper, raw.BaseTokenAddress)
	if err != nil {
		return reject(StepDenyList, fmt.Sprintf("denylist lookup failed: %v", err)), false
	}
	if denied {
		return reject(StepDenyList, "developer address is deny-listed"), false
	}

	return Decision{}, true
}

// checkReputation consults the external reputation score. Unavailable
// assessors fail closed unless the fail-open policy is set.
func (e *Evaluator) checkReputation(ctx context.Context, raw domain.RawListing) (Decision, bool) {
	ok, err := e.reputation.Assess(ctx, raw.BaseTokenAddress)
	if err != nil {
		if errors.Is(err, assess.ErrUnavailable) && e.cfg.ReputationFailOpen {
			log.Warn().
				Str("token", raw.BaseTokenAddress).
				Msg("pipeline: reputation assessor unavailable, fail-open policy active")
			return Decision{}, true
		}
		return reject(StepReputation, fmt.Sprintf("reputation check failed closed: %v", err)), false
	}
	if !ok {
		return reject(StepReputation, "reputation score below minimum"), false
	}
	return Decision{}, true
}

// checkConcentration consults the holder-distribution assessor. A bundled
// verdict rejects AND deny-lists the address under both categories, so every
// future evaluation of this token short-circuits at the deny-list filter.
// Always fail-closed: writing deny entries on a guess would be unsafe, but so
// would accepting a token whose distribution cannot be seen.
func (e *Evaluator) checkConcentration(ctx context.Context, raw domain.RawListing) (Decision, bool) {
	bundled, err := e.concentration.Assess(ctx, raw.BaseTokenAddress)
	if err != nil {
		return reject(StepConcentration, fmt.Sprintf("concentration check failed closed: %v", err)), false
	}
	if !bundled {
		return Decision{}, true
	}

	log.Warn().
		Str("token", raw.BaseTokenAddress).
		Str("name", raw.BaseTokenName).
		Msg("pipeline: bundled supply detected, deny-listing token and developer")

	for _, category := range []domain.Category{domain.CategoryToken, domain.CategoryDeveloper} {
		entry := &domain.DenyListEntry{
			Address:  raw.BaseTokenAddress,
			Category: category,
			Reason:   "concentrated supply",
		}
		if err := e.denyList.Upsert(ctx, entry); err != nil {
			// The rejection stands either way; the upsert is idempotent and
			// the next evaluation of this address retries it.
			log.Error().Err(err).
				Str("token", raw.BaseTokenAddress).
				Str("category", string(category)).
				Msg("pipeline: deny-list write failed")
			continue
		}
		e.denyWrites.Inc()
	}

	return reject(StepConcentration, "supply concentrated in top holders"), false
}

// rejectCounter returns the per-step rejection counter, creating it on first use.
func (e *Evaluator) rejectCounter(step Step) *observability.Counter {
	return e.registry.NewCounter(
		"tokenwatch_evaluations_rejected_"+string(step)+"_total",
		"Listings rejected at the "+string(step)+" filter", nil)
}

// malformedReason reports why a raw listing cannot be evaluated, or "".
func malformedReason(raw domain.RawListing) string {
	switch {
	case raw.PairAddress == "":
		return "missing pair address"
	case raw.BaseTokenAddress == "":
		return "missing base token address"
	case raw.ChainID == "":
		return "missing chain id"
	case raw.PairCreatedAt.IsZero():
		return "missing pair creation time"
	}
	return ""
}
