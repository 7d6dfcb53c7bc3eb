package domain

// ConsensusStats is the aggregator's output: the location and spread
// of the committee's judgment after weighting, small-sample
// correction, and the divergence penalty.
type ConsensusStats struct {
	// WeightedMean is the effective-weight average of the scores.
	WeightedMean float64 `json:"weighted_mean"`

	// BiasedStdev is the weighted population standard deviation.
	BiasedStdev float64 `json:"biased_stdev"`

	// CorrectedStdev is BiasedStdev scaled by the small-sample factor.
	CorrectedStdev float64 `json:"corrected_stdev"`

	// PenaltyCoefficient is lambda(n), the divergence coefficient.
	PenaltyCoefficient float64 `json:"penalty_coefficient"`

	// DivergencePenalty is PenaltyCoefficient times CorrectedStdev.
	DivergencePenalty float64 `json:"divergence_penalty"`

	// EnhancedScore is WeightedMean minus DivergencePenalty.
	EnhancedScore float64 `json:"enhanced_score"`

	// SampleSize is the number of scores aggregated.
	SampleSize int `json:"sample_size"`

	// Winsorized is true when outlier clipping was applied.
	Winsorized bool `json:"winsorized,omitempty"`
}

// CompositionProfile describes the domain overlap of a responding
// committee, as consumed by the uncertainty estimator.
type CompositionProfile struct {
	// Category is the bucketed overlap classification.
	Category Composition `json:"category"`

	// MeanRho is the average pairwise correlation coefficient, valid
	// only when PairwiseKnown is true.
	MeanRho float64 `json:"mean_rho,omitempty"`

	// PairwiseKnown is true when a correlation table was available
	// and MeanRho was computed from it. When false the estimator
	// falls back to the bucketed category multiplier.
	PairwiseKnown bool `json:"pairwise_known,omitempty"`
}

// UncertaintyStats quantifies how much the enhanced score should be
// trusted: the corrected standard error, the confidence interval, and
// the information sufficiency derived from its width.
type UncertaintyStats struct {
	// StandardError is CorrectedStdev over sqrt(n).
	StandardError float64 `json:"standard_error"`

	// Multiplier is the correlation widening applied to the standard
	// error.
	Multiplier float64 `json:"multiplier"`

	// CorrectedStandardError is StandardError times Multiplier.
	CorrectedStandardError float64 `json:"corrected_standard_error"`

	// TCritical is the t-distribution critical value for the sample
	// size.
	TCritical float64 `json:"t_critical"`

	// Lower and Upper bound the confidence interval.
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`

	// Width is Upper minus Lower.
	Width float64 `json:"width"`

	// InformationSufficiency maps Width into [0,1].
	InformationSufficiency float64 `json:"information_sufficiency"`
}
