package scoring

import (
	"fmt"
	"math"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-conclave/internal/domain"
	"github.com/ahrav/go-conclave/internal/ports"
)

// Compile-time verification that ConsensusAggregator satisfies the
// ScoreAggregator interface.
var _ ports.ScoreAggregator = (*ConsensusAggregator)(nil)

// ConsensusConfig controls outlier damping before aggregation.
type ConsensusConfig struct {
	// WinsorFraction is the share of scores clipped at each tail.
	// The clip count is max(1, floor(fraction*n)) once winsorization
	// triggers.
	WinsorFraction float64 `yaml:"winsor_fraction" json:"winsor_fraction" validate:"gte=0,lte=0.25"`

	// WinsorMinCommittee is the smallest committee winsorization
	// applies to. Below it, every score stands as given.
	WinsorMinCommittee int `yaml:"winsor_min_committee" json:"winsor_min_committee" validate:"gte=3"`

	// WinsorMinRange is the score spread (max-min) required before
	// clipping. Tight committees are left untouched.
	WinsorMinRange float64 `yaml:"winsor_min_range" json:"winsor_min_range" validate:"gte=0"`
}

// DefaultConsensusConfig returns the standard aggregation settings:
// clip 10% per tail once five or more experts respond and their
// scores span at least three points.
func DefaultConsensusConfig() ConsensusConfig {
	return ConsensusConfig{
		WinsorFraction:     0.10,
		WinsorMinCommittee: 5,
		WinsorMinRange:     3.0,
	}
}

// ConsensusAggregator condenses a committee's weighted scores into a
// single pessimistic consensus estimate.
//
// The aggregator implements the ScoreAggregator interface and is the
// first statistical stage of a decision round. Given per-expert scores
// and their resolved weights it:
//
//  1. Winsorizes the scores when the committee is large enough and
//     spread wide enough, clipping each tail to the nearest surviving
//     value so a single extremist cannot drag the mean.
//  2. Computes the weighted mean S = sum(w*s)/sum(w).
//  3. Computes the biased weighted standard deviation
//     sigma = sqrt(sum(w*(s-S)^2)/sum(w)) and corrects it for small
//     samples with the bucketed Bessel-style factor f(n).
//  4. Applies the divergence penalty lambda(n)*sigma_corrected,
//     yielding the enhanced score S - lambda(n)*sigma_corrected.
//
// The enhanced score is deliberately never clamped to the score scale:
// a strongly divergent committee can push it below the minimum score,
// and that is signal, not noise.
//
// Concurrency: the aggregator is stateless after construction and safe
// for concurrent use.
//
// Error Conditions:
//   - ErrNoScores: the score slice is empty
//   - ErrScoreMismatch: scores and weights differ in length
//   - ErrInvalidScore: a score is NaN or infinite
//   - ErrInvalidWeight: a weight is NaN, infinite, or negative
//   - ErrZeroWeight: all weights are zero, leaving nothing to average
type ConsensusAggregator struct {
	name   string
	config ConsensusConfig
	tables *LookupTables
}

// NewConsensusAggregator creates a ConsensusAggregator with the given
// identifier, configuration, and lookup tables.
func NewConsensusAggregator(name string, config ConsensusConfig, tables *LookupTables) (*ConsensusAggregator, error) {
	if name == "" {
		return nil, ErrEmptyComponentName
	}
	if tables == nil {
		return nil, ErrMissingTables
	}
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &ConsensusAggregator{name: name, config: config, tables: tables}, nil
}

// Name returns the aggregator's unique identifier.
func (a *ConsensusAggregator) Name() string { return a.name }

// Aggregate computes the consensus statistics for one decision round.
// Scores and weights are parallel slices, one entry per responding
// expert; the weights are the correlation- and accuracy-adjusted
// values produced upstream.
func (a *ConsensusAggregator) Aggregate(scores, weights []float64) (domain.ConsensusStats, error) {
	if len(scores) == 0 {
		return domain.ConsensusStats{}, ErrNoScores
	}
	if len(scores) != len(weights) {
		return domain.ConsensusStats{}, fmt.Errorf("%w: %d scores, %d weights",
			ErrScoreMismatch, len(scores), len(weights))
	}

	var totalWeight float64
	for i, s := range scores {
		if math.IsNaN(s) || math.IsInf(s, 0) {
			return domain.ConsensusStats{}, fmt.Errorf("%w: index %d", ErrInvalidScore, i)
		}
		w := weights[i]
		if math.IsNaN(w) || math.IsInf(w, 0) || w < 0 {
			return domain.ConsensusStats{}, fmt.Errorf("%w: index %d", ErrInvalidWeight, i)
		}
		totalWeight += w
	}
	if totalWeight == 0 {
		return domain.ConsensusStats{}, ErrZeroWeight
	}

	n := len(scores)
	working, winsorized := a.winsorize(scores)

	var weightedSum float64
	for i, s := range working {
		weightedSum += weights[i] * s
	}
	mean := weightedSum / totalWeight

	var weightedSquares float64
	for i, s := range working {
		d := s - mean
		weightedSquares += weights[i] * d * d
	}
	biasedStdev := math.Sqrt(weightedSquares / totalWeight)

	bessel := a.tables.BesselFactor(n)
	correctedStdev := biasedStdev * bessel

	lambda := a.tables.PenaltyCoefficient(n)
	penalty := lambda * correctedStdev

	return domain.ConsensusStats{
		WeightedMean:       mean,
		BiasedStdev:        biasedStdev,
		CorrectedStdev:     correctedStdev,
		PenaltyCoefficient: lambda,
		DivergencePenalty:  penalty,
		EnhancedScore:      mean - penalty,
		SampleSize:         n,
		Winsorized:         winsorized,
	}, nil
}

// winsorize clips the tails of the score distribution when the
// committee size and spread cross the configured thresholds. It
// returns the (possibly clipped) scores in original order and whether
// any clipping was applied. Committees of two or fewer are never
// winsorized regardless of configuration: clipping both members of a
// pair erases the disagreement entirely.
func (a *ConsensusAggregator) winsorize(scores []float64) ([]float64, bool) {
	n := len(scores)
	if n <= 2 || n < a.config.WinsorMinCommittee || a.config.WinsorFraction == 0 {
		return scores, false
	}

	lo, hi := scores[0], scores[0]
	for _, s := range scores[1:] {
		if s < lo {
			lo = s
		}
		if s > hi {
			hi = s
		}
	}
	if hi-lo < a.config.WinsorMinRange {
		return scores, false
	}

	k := int(a.config.WinsorFraction * float64(n))
	if k < 1 {
		k = 1
	}
	// Clipping k from each tail must leave at least one untouched
	// score to clip toward.
	if 2*k >= n {
		k = (n - 1) / 2
	}
	if k < 1 {
		return scores, false
	}

	sorted := make([]float64, n)
	copy(sorted, scores)
	sort.Float64s(sorted)
	lowerBound := sorted[k]
	upperBound := sorted[n-1-k]

	clipped := make([]float64, n)
	changed := false
	for i, s := range scores {
		switch {
		case s < lowerBound:
			clipped[i] = lowerBound
			changed = true
		case s > upperBound:
			clipped[i] = upperBound
			changed = true
		default:
			clipped[i] = s
		}
	}
	return clipped, changed
}

// Validate checks that the aggregator is properly configured.
func (a *ConsensusAggregator) Validate() error {
	if a.name == "" {
		return ErrEmptyComponentName
	}
	if a.tables == nil {
		return ErrMissingTables
	}
	if err := validate.Struct(a.config); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	return nil
}

// UnmarshalParameters updates the aggregator's configuration from YAML.
// The decoded configuration replaces the current one only if valid.
func (a *ConsensusAggregator) UnmarshalParameters(params yaml.Node) error {
	var config ConsensusConfig
	if err := params.Decode(&config); err != nil {
		return fmt.Errorf("failed to decode parameters: %w", err)
	}
	if err := validate.Struct(config); err != nil {
		return fmt.Errorf("invalid parameters: %w", err)
	}

	a.config = config
	return nil
}

// NewConsensusAggregatorFromConfig creates a ConsensusAggregator from
// a generic configuration map. Missing keys fall back to defaults, so
// partial overrides are safe.
func NewConsensusAggregatorFromConfig(id string, config map[string]any, tables *LookupTables) (*ConsensusAggregator, error) {
	cfg := DefaultConsensusConfig()

	if len(config) > 0 {
		raw, err := yaml.Marshal(config)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}

	return NewConsensusAggregator(id, cfg, tables)
}
