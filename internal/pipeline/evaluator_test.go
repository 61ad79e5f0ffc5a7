package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokenwatch/tokenwatch/internal/assess"
	"github.com/tokenwatch/tokenwatch/internal/domain"
	"github.com/tokenwatch/tokenwatch/internal/observability"
	"github.com/tokenwatch/tokenwatch/internal/storage/memory"
)

// ---------------------------------------------------------------------------
// Evaluator Tests
// ---------------------------------------------------------------------------

// stubAssessor is a call-recording assess.ReputationAssessor / ConcentrationAssessor.
type stubAssessor struct {
	result bool
	err    error
	calls  int
}

func (s *stubAssessor) Assess(_ context.Context, _ string) (bool, error) {
	s.calls++
	return s.result, s.err
}

func testConfig() Config {
	return Config{
		AllowedChains:       []string{"solana", "ethereum", "binance-smart-chain"},
		MinLiquidityUSD:     decimal.NewFromInt(5000),
		MinAge:              3 * 24 * time.Hour,
		MatchDenyListByName: true,
	}
}

func goodListing() domain.RawListing {
	return domain.RawListing{
		ChainID:           "solana",
		PairAddress:       "pair-1",
		BaseTokenAddress:  "token-1",
		BaseTokenName:     "Good Token",
		QuoteTokenAddress: "quote-1",
		Exchange:          "raydium",
		PriceUSD:          decimal.NewFromFloat(0.002),
		LiquidityUSD:      decimal.NewFromInt(10000),
		Volume24hUSD:      decimal.NewFromInt(30000),
		PairCreatedAt:     time.Now().Add(-10 * 24 * time.Hour),
	}
}

type evaluatorFixture struct {
	evaluator     *Evaluator
	denyList      *memory.DenyListStore
	reputation    *stubAssessor
	concentration *stubAssessor
}

func newFixture(cfg Config) *evaluatorFixture {
	f := &evaluatorFixture{
		denyList:      memory.NewDenyListStore(),
		reputation:    &stubAssessor{result: true},
		concentration: &stubAssessor{result: false},
	}
	f.evaluator = NewEvaluator(cfg, f.denyList, f.reputation, f.concentration, observability.NewRegistry())
	return f
}

func TestEvaluator_AcceptsCleanListing(t *testing.T) {
	f := newFixture(testConfig())

	d := f.evaluator.Evaluate(context.Background(), goodListing())

	assert.True(t, d.Accepted)
	assert.Empty(t, d.Step)
	assert.Equal(t, 1, f.reputation.calls)
	assert.Equal(t, 1, f.concentration.calls)
}

func TestEvaluator_RejectsUnknownChain(t *testing.T) {
	f := newFixture(testConfig())

	raw := goodListing()
	raw.ChainID = "tron"
	d := f.evaluator.Evaluate(context.Background(), raw)

	assert.False(t, d.Accepted)
	assert.Equal(t, StepChain, d.Step)
	assert.Equal(t, 0, f.reputation.calls, "later filters must not run")
	assert.Equal(t, 0, f.concentration.calls)

	// No store mutation on rejection.
	entries, err := f.denyList.List(context.Background(), domain.CategoryToken)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestEvaluator_LiquidityFloorIsExclusive(t *testing.T) {
	f := newFixture(testConfig())

	raw := goodListing()
	raw.LiquidityUSD = decimal.NewFromInt(100)
	d := f.evaluator.Evaluate(context.Background(), raw)
	assert.False(t, d.Accepted)
	assert.Equal(t, StepLiquidity, d.Step)

	// Exactly at the floor passes.
	raw.LiquidityUSD = decimal.NewFromInt(5000)
	d = f.evaluator.Evaluate(context.Background(), raw)
	assert.True(t, d.Accepted)

	// A hair below rejects, even where binary floats would round up.
	raw.LiquidityUSD, _ = decimal.NewFromString("4999.999999999999")
	d = f.evaluator.Evaluate(context.Background(), raw)
	assert.False(t, d.Accepted)
	assert.Equal(t, StepLiquidity, d.Step)
}

func TestEvaluator_RejectsYoungPair(t *testing.T) {
	f := newFixture(testConfig())

	raw := goodListing()
	raw.PairCreatedAt = time.Now().Add(-24 * time.Hour)
	d := f.evaluator.Evaluate(context.Background(), raw)

	assert.False(t, d.Accepted)
	assert.Equal(t, StepAge, d.Step)
}

func TestEvaluator_RejectsDenyListedToken(t *testing.T) {
	f := newFixture(testConfig())
	ctx := context.Background()

	require.NoError(t, f.denyList.Upsert(ctx, &domain.DenyListEntry{
		Address: "token-1", Category: domain.CategoryToken, Reason: "rugged before",
	}))

	d := f.evaluator.Evaluate(ctx, goodListing())

	assert.False(t, d.Accepted)
	assert.Equal(t, StepDenyList, d.Step)
	assert.Equal(t, 0, f.reputation.calls, "assessors must never be consulted for banned tokens")
	assert.Equal(t, 0, f.concentration.calls)
}

func TestEvaluator_RejectsDenyListedDeveloper(t *testing.T) {
	f := newFixture(testConfig())
	ctx := context.Background()

	require.NoError(t, f.denyList.Upsert(ctx, &domain.DenyListEntry{
		Address: "token-1", Category: domain.CategoryDeveloper, Reason: "serial rugger",
	}))

	d := f.evaluator.Evaluate(ctx, goodListing())

	assert.False(t, d.Accepted)
	assert.Equal(t, StepDenyList, d.Step)
}

func TestEvaluator_NameMatchPolicy(t *testing.T) {
	ctx := context.Background()

	ban := &domain.DenyListEntry{
		Address: "Good Token", Category: domain.CategoryToken, Reason: "banned symbol",
	}

	// Policy on: display name collides with a banned value.
	f := newFixture(testConfig())
	require.NoError(t, f.denyList.Upsert(ctx, ban))
	d := f.evaluator.Evaluate(ctx, goodListing())
	assert.False(t, d.Accepted)
	assert.Equal(t, StepDenyList, d.Step)

	// Policy off: the same listing passes.
	cfg := testConfig()
	cfg.MatchDenyListByName = false
	f = newFixture(cfg)
	require.NoError(t, f.denyList.Upsert(ctx, ban))
	d = f.evaluator.Evaluate(ctx, goodListing())
	assert.True(t, d.Accepted)
}

func TestEvaluator_ReputationBelowMinimum(t *testing.T) {
	f := newFixture(testConfig())
	f.reputation.result = false

	d := f.evaluator.Evaluate(context.Background(), goodListing())

	assert.False(t, d.Accepted)
	assert.Equal(t, StepReputation, d.Step)
	assert.Equal(t, 0, f.concentration.calls)
}

func TestEvaluator_ReputationUnavailableFailsClosed(t *testing.T) {
	f := newFixture(testConfig())
	f.reputation.err = assess.ErrUnavailable

	d := f.evaluator.Evaluate(context.Background(), goodListing())

	assert.False(t, d.Accepted)
	assert.Equal(t, StepReputation, d.Step)
}

func TestEvaluator_ReputationFailOpenPolicy(t *testing.T) {
	cfg := testConfig()
	cfg.ReputationFailOpen = true
	f := newFixture(cfg)
	f.reputation.err = assess.ErrUnavailable

	d := f.evaluator.Evaluate(context.Background(), goodListing())

	assert.True(t, d.Accepted, "fail-open policy accepts on unavailability")

	// Fail-open covers unavailability only, not a definitive failure.
	f.reputation.err = errors.New("malformed response")
	d = f.evaluator.Evaluate(context.Background(), goodListing())
	assert.False(t, d.Accepted)
	assert.Equal(t, StepReputation, d.Step)
}

func TestEvaluator_ConcentrationUnavailableFailsClosed(t *testing.T) {
	cfg := testConfig()
	cfg.ReputationFailOpen = true // the policy must not leak into concentration
	f := newFixture(cfg)
	f.concentration.err = assess.ErrUnavailable

	d := f.evaluator.Evaluate(context.Background(), goodListing())

	assert.False(t, d.Accepted)
	assert.Equal(t, StepConcentration, d.Step)

	// No deny-list writes on a mere unavailability.
	entries, err := f.denyList.List(context.Background(), domain.CategoryToken)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestEvaluator_BundledSupplyDenyListsBothCategories(t *testing.T) {
	f := newFixture(testConfig())
	f.concentration.result = true
	ctx := context.Background()

	d := f.evaluator.Evaluate(ctx, goodListing())

	assert.False(t, d.Accepted)
	assert.Equal(t, StepConcentration, d.Step)

	tokens, err := f.denyList.List(ctx, domain.CategoryToken)
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	assert.Equal(t, "token-1", tokens[0].Address)
	assert.Equal(t, "concentrated supply", tokens[0].Reason)

	devs, err := f.denyList.List(ctx, domain.CategoryDeveloper)
	require.NoError(t, err)
	require.Len(t, devs, 1)
	assert.Equal(t, "token-1", devs[0].Address)

	// The next evaluation short-circuits at the deny list.
	f.reputation.calls = 0
	f.concentration.calls = 0
	d = f.evaluator.Evaluate(ctx, goodListing())
	assert.False(t, d.Accepted)
	assert.Equal(t, StepDenyList, d.Step)
	assert.Equal(t, 0, f.reputation.calls)
	assert.Equal(t, 0, f.concentration.calls)
}

func TestEvaluator_MalformedListing(t *testing.T) {
	f := newFixture(testConfig())
	ctx := context.Background()

	for _, mutate := range []func(*domain.RawListing){
		func(r *domain.RawListing) { r.PairAddress = "" },
		func(r *domain.RawListing) { r.BaseTokenAddress = "" },
		func(r *domain.RawListing) { r.ChainID = "" },
		func(r *domain.RawListing) { r.PairCreatedAt = time.Time{} },
	} {
		raw := goodListing()
		mutate(&raw)
		d := f.evaluator.Evaluate(ctx, raw)
		assert.False(t, d.Accepted)
		assert.Equal(t, StepShape, d.Step)
	}
	assert.Equal(t, 0, f.reputation.calls)
}

func TestEvaluator_CountsAcceptsAndRejects(t *testing.T) {
	registry := observability.NewRegistry()
	f := &evaluatorFixture{
		denyList:      memory.NewDenyListStore(),
		reputation:    &stubAssessor{result: true},
		concentration: &stubAssessor{result: false},
	}
	f.evaluator = NewEvaluator(testConfig(), f.denyList, f.reputation, f.concentration, registry)
	ctx := context.Background()

	f.evaluator.Evaluate(ctx, goodListing())

	rejected := goodListing()
	rejected.ChainID = "tron"
	f.evaluator.Evaluate(ctx, rejected)

	assert.Equal(t, float64(2), registry.GetCounter("tokenwatch_evaluations_total").Value())
	assert.Equal(t, float64(1), registry.GetCounter("tokenwatch_evaluations_accepted_total").Value())
	assert.Equal(t, float64(1), registry.GetCounter("tokenwatch_evaluations_rejected_chain_eligibility_total").Value())
}
