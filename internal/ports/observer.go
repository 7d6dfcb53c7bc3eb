package ports

import (
	"context"

	"github.com/ahrav/go-conclave/internal/domain"
)

// RoundObserver receives lifecycle notifications around a decision
// round. Implementations add tracing, auditing, or external
// notification without the engine knowing about them.
// Observers must not block; the engine calls them inline.
type RoundObserver interface {
	// PreRound is called when a round opens, before any scores are
	// collected. The returned context is threaded through the rest
	// of the round and back into PostRound, letting implementations
	// carry spans or deadlines across the pipeline.
	PreRound(ctx context.Context, decisionID string, committee domain.CommitteeConfig) context.Context

	// PostRound is called when the round completes, with the result
	// when it succeeded and the error when it did not.
	PostRound(ctx context.Context, decisionID string, result domain.DecisionResult, err error)
}
