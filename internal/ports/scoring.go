// Package ports defines the core interfaces that form the contract between
// the domain/application layers and the infrastructure layer.
// These interfaces enable dependency inversion and make the system testable.
package ports

import (
	"github.com/ahrav/go-conclave/internal/domain"
)

// ScoreAggregator collapses a committee's weighted scores into a
// consensus summary: weighted mean, corrected spread, and the
// divergence-penalized enhanced score.
// Implementations must be stateless and safe for concurrent use;
// every statistical computation is a total function over valid input
// and must never panic.
type ScoreAggregator interface {
	// Name returns a unique identifier for this aggregator.
	// The name is used for metrics, debugging, and configuration.
	Name() string

	// Aggregate combines per-expert composite scores with their
	// resolved effective weights. Both slices must have the same
	// length and be ordered consistently.
	//
	// Implementations must reject:
	//   - fewer than domain.MinCommitteeSize scores
	//   - NaN or infinite scores or weights
	//   - non-positive total weight
	//
	// The returned stats carry the weighted mean, the biased and
	// small-sample-corrected standard deviations, the divergence
	// penalty, and the enhanced score. The enhanced score is never
	// clamped into the ordinal scale.
	Aggregate(scores []float64, weights []float64) (domain.ConsensusStats, error)

	// Validate checks if the aggregator is properly configured.
	// Return nil if validation passes, or an error describing what
	// is invalid.
	Validate() error
}

// UncertaintyEstimator turns a consensus summary into a confidence
// interval. Small samples and correlated raters must widen the
// interval; a fixed normal-approximation width is never acceptable.
type UncertaintyEstimator interface {
	// Name returns a unique identifier for this estimator.
	Name() string

	// Estimate computes the corrected standard error, the
	// t-distribution confidence interval around the enhanced score,
	// and the information sufficiency derived from interval width.
	// The composition profile selects the correlation widening:
	// the exact design-effect form when pairwise coefficients are
	// known, the bucketed category multiplier otherwise.
	Estimate(stats domain.ConsensusStats, comp domain.CompositionProfile) (domain.UncertaintyStats, error)

	// Validate checks if the estimator is properly configured.
	Validate() error
}

// VerdictPolicy maps a (score, interval) pair onto a categorical
// verdict and audits the devil's-advocate dossier. Policies hold no
// state between decisions; the same inputs always produce the same
// verdict.
type VerdictPolicy interface {
	// Name returns a unique identifier for this policy.
	Name() string

	// Decide evaluates the decision rules in their fixed order and
	// returns the first verdict whose condition holds.
	Decide(enhanced float64, u domain.UncertaintyStats) domain.Verdict

	// Review returns the remediation items the dossier is missing.
	// An empty return means the dossier satisfies the
	// devil's-advocate requirement; otherwise the decision is
	// downgraded to provisional.
	Review(d domain.DevilsAdvocateDossier) []string

	// Validate checks if the policy is properly configured.
	Validate() error
}
