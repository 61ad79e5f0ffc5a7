package assess

import (
	"context"
	"errors"
)

// ---------------------------------------------------------------------------
// Risk Assessors — external boolean risk determinations for a token address
// ---------------------------------------------------------------------------

// ErrUnavailable marks an assessment that could not be completed (network
// failure, timeout, upstream 5xx). The evaluation pipeline decides what an
// unavailable assessor means; assessors only report it.
var ErrUnavailable = errors.New("assessor unavailable")

// ReputationAssessor reports whether a token clears the reputation bar.
// ok is only meaningful when err is nil.
type ReputationAssessor interface {
	Assess(ctx context.Context, tokenAddress string) (ok bool, err error)
}

// ConcentrationAssessor reports whether a token's supply is bundled in the
// hands of too few holders. bundled is only meaningful when err is nil.
type ConcentrationAssessor interface {
	Assess(ctx context.Context, tokenAddress string) (bundled bool, err error)
}
