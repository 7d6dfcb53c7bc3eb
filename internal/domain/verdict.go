package domain

import (
	"fmt"
	"time"
)

// Verdict is the categorical outcome a decision round resolves to.
type Verdict string

// Verdicts ordered from strongest endorsement to weakest. The policy
// evaluates its rules in a fixed order; the first match wins.
const (
	// VerdictStrongApprove: even the pessimistic bound clears the bar.
	VerdictStrongApprove Verdict = "strong_approve"

	// VerdictConditionalApprove: the score clears the bar and the
	// pessimistic bound is acceptable.
	VerdictConditionalApprove Verdict = "conditional_approve"

	// VerdictStrongReject: even the optimistic bound is poor.
	VerdictStrongReject Verdict = "strong_reject"

	// VerdictNeedMoreInfo: the interval is too wide to decide.
	VerdictNeedMoreInfo Verdict = "need_more_info"

	// VerdictRevise: the default when no decisive rule fires.
	VerdictRevise Verdict = "revise"
)

// Valid reports whether v is one of the defined verdicts.
func (v Verdict) Valid() bool {
	switch v {
	case VerdictStrongApprove, VerdictConditionalApprove, VerdictStrongReject,
		VerdictNeedMoreInfo, VerdictRevise:
		return true
	}
	return false
}

// Composition categorizes how a committee's domains overlap. It
// selects the correlation multiplier applied to the standard error
// when pairwise coefficients are unavailable.
type Composition string

const (
	// CompositionMixed: no domain holds more than half the seats.
	CompositionMixed Composition = "mixed"

	// CompositionMajoritySame: one domain holds a strict majority.
	CompositionMajoritySame Composition = "majority_same"

	// CompositionAllSame: every responding expert shares one domain.
	CompositionAllSame Composition = "all_same"
)

// Outcome is the real-world result of a decision, observed after the
// fact and used to grade the experts who scored it.
type Outcome string

const (
	// OutcomeSuccess: the decision proved correct in practice.
	OutcomeSuccess Outcome = "success"

	// OutcomeFailure: the decision proved wrong in practice.
	OutcomeFailure Outcome = "failure"
)

// Valid reports whether o is a defined outcome.
func (o Outcome) Valid() bool {
	return o == OutcomeSuccess || o == OutcomeFailure
}

// AggregationResult is the statistical output of one aggregation run.
// It is derived, never mutated after creation.
type AggregationResult struct {
	// WeightedMean is the effective-weight average of the (possibly
	// winsorized) per-expert scores.
	WeightedMean float64 `json:"weighted_mean"`

	// BiasedStdev is the weighted population standard deviation.
	BiasedStdev float64 `json:"biased_stdev"`

	// CorrectedStdev is BiasedStdev after the small-sample factor.
	CorrectedStdev float64 `json:"corrected_stdev"`

	// PenaltyCoefficient is the divergence coefficient lambda(n).
	PenaltyCoefficient float64 `json:"penalty_coefficient"`

	// DivergencePenalty is the amount subtracted from the weighted
	// mean: PenaltyCoefficient times CorrectedStdev.
	DivergencePenalty float64 `json:"divergence_penalty"`

	// EnhancedScore is WeightedMean minus DivergencePenalty. It is
	// never clamped into the ordinal scale; readings outside [1,5]
	// mean very poor or excellent with high disagreement.
	EnhancedScore float64 `json:"enhanced_score"`

	// StandardError is CorrectedStdev over sqrt(n), before the
	// correlation correction.
	StandardError float64 `json:"standard_error"`

	// CorrectedStandardError is StandardError widened for rater
	// correlation.
	CorrectedStandardError float64 `json:"corrected_standard_error"`

	// TCritical is the t-distribution critical value used for the
	// interval, looked up by committee size.
	TCritical float64 `json:"t_critical"`

	// CILower and CIUpper bound the confidence interval around the
	// enhanced score.
	CILower float64 `json:"ci_lower"`
	CIUpper float64 `json:"ci_upper"`

	// CIWidth is CIUpper minus CILower.
	CIWidth float64 `json:"ci_width"`

	// InformationSufficiency maps interval width into [0,1]: 1 means
	// a point estimate, 0 means the interval spans the whole scale.
	InformationSufficiency float64 `json:"information_sufficiency"`

	// EffectiveN is the number of distinct experts whose scores were
	// aggregated.
	EffectiveN int `json:"effective_n"`

	// Composition describes the domain overlap of the responding
	// committee.
	Composition Composition `json:"composition"`

	// Winsorized is true when outlier clipping was applied before
	// weighting.
	Winsorized bool `json:"winsorized,omitempty"`
}

// Validate checks the structural invariants every aggregation result
// must satisfy regardless of inputs.
func (r AggregationResult) Validate() error {
	if r.CILower > r.EnhancedScore || r.EnhancedScore > r.CIUpper {
		return fmt.Errorf("%w: enhanced score %.4f outside interval [%.4f, %.4f]",
			ErrInvalidResult, r.EnhancedScore, r.CILower, r.CIUpper)
	}
	if r.InformationSufficiency < 0 || r.InformationSufficiency > 1 {
		return fmt.Errorf("%w: information sufficiency %.4f outside [0,1]",
			ErrInvalidResult, r.InformationSufficiency)
	}
	if r.EffectiveN < MinCommitteeSize {
		return fmt.Errorf("%w: effective committee size %d below %d",
			ErrInvalidResult, r.EffectiveN, MinCommitteeSize)
	}
	return nil
}

// Dissent is one recorded disagreement with the emerging consensus.
type Dissent struct {
	// ExpertID identifies who dissented, when attributable.
	ExpertID ExpertID `json:"expert_id,omitempty"`

	// Summary states the substance of the disagreement.
	Summary string `json:"summary"`
}

// DevilsAdvocateDossier collects the adversarial artifacts a decision
// must carry before it may be finalized: recorded dissent, enumerated
// risks, and at least one alternative proposal.
type DevilsAdvocateDossier struct {
	Dissents     []Dissent `json:"dissents,omitempty"`
	Risks        []string  `json:"risks,omitempty"`
	Alternatives []string  `json:"alternatives,omitempty"`
}

// Gaps returns the remediation items still required for the dossier
// to satisfy the given minimums. An empty return means the dossier is
// complete.
func (d DevilsAdvocateDossier) Gaps(minDissents, minRisks, minAlternatives int) []string {
	var gaps []string
	if len(d.Dissents) < minDissents {
		gaps = append(gaps, fmt.Sprintf("record at least %d dissenting opinion(s), have %d",
			minDissents, len(d.Dissents)))
	}
	if len(d.Risks) < minRisks {
		gaps = append(gaps, fmt.Sprintf("enumerate at least %d risk(s), have %d",
			minRisks, len(d.Risks)))
	}
	if len(d.Alternatives) < minAlternatives {
		gaps = append(gaps, fmt.Sprintf("propose at least %d alternative(s), have %d",
			minAlternatives, len(d.Alternatives)))
	}
	return gaps
}

// DecisionResult is the full outcome of one decision round: the
// aggregation statistics, the verdict, and the audit trail of how
// each expert's weight was produced.
type DecisionResult struct {
	// DecisionID identifies the round this result belongs to.
	DecisionID string `json:"decision_id"`

	// Aggregation holds the statistical output.
	Aggregation AggregationResult `json:"aggregation"`

	// Verdict is the categorical decision.
	Verdict Verdict `json:"verdict"`

	// Provisional is true when the devil's-advocate requirement was
	// not met. The verdict stands but finalization is blocked until
	// the dossier is completed or explicitly overridden.
	Provisional bool `json:"provisional,omitempty"`

	// RequiredRemediation lists what the dossier is missing.
	RequiredRemediation []string `json:"required_remediation,omitempty"`

	// Weights traces every responding expert's weight resolution.
	Weights []ResolvedWeight `json:"weights"`

	// Missing lists configured experts who never submitted.
	Missing []ExpertID `json:"missing,omitempty"`

	// Timestamp records when the round closed.
	Timestamp time.Time `json:"timestamp"`
}

// DecisionRecord is the persisted form of a decision round, created
// at decision time and updated exactly once when the real-world
// outcome is observed. After that update the record is immutable.
type DecisionRecord struct {
	// DecisionID identifies the round.
	DecisionID string `json:"decision_id"`

	// Committee is the configuration snapshot the round ran with.
	Committee CommitteeConfig `json:"committee"`

	// Judgments holds every accepted submission.
	Judgments []ExpertJudgment `json:"judgments"`

	// Result is the derived decision output.
	Result DecisionResult `json:"result"`

	// ActualOutcome is populated once, later, when reality reports
	// back. Nil until then.
	ActualOutcome *Outcome `json:"actual_outcome,omitempty"`

	// Correctness flags, per participating expert, derived when the
	// outcome is recorded. Empty until then.
	Correctness map[ExpertID]bool `json:"correctness,omitempty"`

	// CreatedAt is when the round closed; OutcomeAt is when the
	// outcome was recorded.
	CreatedAt time.Time  `json:"created_at"`
	OutcomeAt *time.Time `json:"outcome_at,omitempty"`

	// FinalizedAt is set when the decision was finalized, either
	// with a complete dossier or an explicit override.
	FinalizedAt *time.Time `json:"finalized_at,omitempty"`
}

// OutcomeRecorded reports whether the real-world outcome has been
// recorded, after which the record is immutable.
func (r DecisionRecord) OutcomeRecorded() bool { return r.ActualOutcome != nil }
