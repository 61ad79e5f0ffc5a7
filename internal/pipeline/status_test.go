package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/tokenwatch/tokenwatch/internal/domain"
)

// ---------------------------------------------------------------------------
// Classifier Tests
// ---------------------------------------------------------------------------

type stubCEXSignal struct {
	listed bool
	err    error
}

func (s *stubCEXSignal) IsListed(_ context.Context, _ string) (bool, error) {
	return s.listed, s.err
}

func classifierConfig() ClassifierConfig {
	return ClassifierConfig{
		PumpThresholdPct:    50,
		RugLiquidityDropPct: 80,
		RugPriceDropPct:     80,
	}
}

func snapshotAt(price, liquidity float64) *domain.ListingSnapshot {
	return &domain.ListingSnapshot{
		PairAddress:      "pair-1",
		BaseTokenAddress: "token-1",
		Chain:            "solana",
		Price:            decimal.NewFromFloat(price),
		Liquidity:        decimal.NewFromFloat(liquidity),
		UpdatedAt:        time.Now(),
	}
}

func TestClassifier_FirstObservationIsNone(t *testing.T) {
	c := NewClassifier(classifierConfig(), nil)

	status := c.Classify(context.Background(), snapshotAt(0.001, 10000), nil)
	assert.Equal(t, domain.StatusNone, status)
}

func TestClassifier_DetectsPump(t *testing.T) {
	c := NewClassifier(classifierConfig(), nil)
	ctx := context.Background()

	prev := snapshotAt(0.001, 10000)

	// +50% exactly hits the threshold.
	status := c.Classify(ctx, snapshotAt(0.0015, 10000), prev)
	assert.Equal(t, domain.StatusPumped, status)

	// +49% does not.
	status = c.Classify(ctx, snapshotAt(0.00149, 10000), prev)
	assert.Equal(t, domain.StatusNone, status)
}

func TestClassifier_DetectsRugByLiquidity(t *testing.T) {
	c := NewClassifier(classifierConfig(), nil)

	prev := snapshotAt(0.001, 10000)
	status := c.Classify(context.Background(), snapshotAt(0.001, 1500), prev)
	assert.Equal(t, domain.StatusRugged, status)
}

func TestClassifier_DetectsRugByPrice(t *testing.T) {
	c := NewClassifier(classifierConfig(), nil)

	prev := snapshotAt(0.001, 10000)
	status := c.Classify(context.Background(), snapshotAt(0.0001, 10000), prev)
	assert.Equal(t, domain.StatusRugged, status)
}

func TestClassifier_RugBeatsEverything(t *testing.T) {
	cex := &stubCEXSignal{listed: true}
	c := NewClassifier(classifierConfig(), cex)

	// Liquidity collapsed while the CEX feed says listed: the sell path wins.
	prev := snapshotAt(0.001, 10000)
	status := c.Classify(context.Background(), snapshotAt(0.001, 100), prev)
	assert.Equal(t, domain.StatusRugged, status)
}

func TestClassifier_CEXSignalBeatsPump(t *testing.T) {
	cex := &stubCEXSignal{listed: true}
	c := NewClassifier(classifierConfig(), cex)

	prev := snapshotAt(0.001, 10000)
	status := c.Classify(context.Background(), snapshotAt(0.01, 10000), prev)
	assert.Equal(t, domain.StatusCEXListed, status)
}

func TestClassifier_CEXSignalAppliesToFirstObservation(t *testing.T) {
	cex := &stubCEXSignal{listed: true}
	c := NewClassifier(classifierConfig(), cex)

	status := c.Classify(context.Background(), snapshotAt(0.001, 10000), nil)
	assert.Equal(t, domain.StatusCEXListed, status)
}

func TestClassifier_CEXSignalErrorMeansNoSignal(t *testing.T) {
	cex := &stubCEXSignal{err: errors.New("feed down")}
	c := NewClassifier(classifierConfig(), cex)

	prev := snapshotAt(0.001, 10000)
	status := c.Classify(context.Background(), snapshotAt(0.001, 10000), prev)
	assert.Equal(t, domain.StatusNone, status)
}

func TestClassifier_ZeroPriorPriceNeverDividesByZero(t *testing.T) {
	c := NewClassifier(classifierConfig(), nil)

	prev := snapshotAt(0, 0)
	status := c.Classify(context.Background(), snapshotAt(0.001, 10000), prev)
	assert.Equal(t, domain.StatusNone, status)
}

func TestClassifier_StableObservationIsNone(t *testing.T) {
	c := NewClassifier(classifierConfig(), nil)

	prev := snapshotAt(0.001, 10000)
	status := c.Classify(context.Background(), snapshotAt(0.00102, 9800), prev)
	assert.Equal(t, domain.StatusNone, status)
}
