package scoring

import (
	"fmt"
	"math"

	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-conclave/internal/domain"
	"github.com/ahrav/go-conclave/internal/ports"
)

// Compile-time verification that IntervalEstimator satisfies the
// UncertaintyEstimator interface.
var _ ports.UncertaintyEstimator = (*IntervalEstimator)(nil)

// IntervalConfig controls how interval width maps to information
// sufficiency.
type IntervalConfig struct {
	// SufficiencySpan is the interval width at which information
	// sufficiency bottoms out at zero. On a 1-5 scale the full span
	// is 4: an interval that wide says nothing.
	SufficiencySpan float64 `yaml:"sufficiency_span" json:"sufficiency_span" validate:"gt=0"`
}

// DefaultIntervalConfig returns the standard interval settings for a
// 1-5 ordinal scale.
func DefaultIntervalConfig() IntervalConfig {
	return IntervalConfig{SufficiencySpan: 4.0}
}

// IntervalEstimator turns consensus statistics into a confidence
// interval and an information-sufficiency score.
//
// The estimator implements the UncertaintyEstimator interface and is
// the second statistical stage of a decision round:
//
//  1. The basic standard error is sigma_corrected/sqrt(n).
//  2. Correlated experts carry less independent information than n
//     suggests, so the SE is widened. When the mean pairwise
//     correlation is known the exact factor sqrt(1+(n-1)*rho_mean) is
//     used; otherwise the bucketed composition multiplier stands in
//     for it.
//  3. The interval is enhanced +/- t(n)*SE_corrected, with t(n) drawn
//     from the bucketed 95% t table. The critical value is always
//     size-dependent: a fixed normal quantile would fake precision
//     for small committees.
//  4. Information sufficiency is max(0, 1 - width/span), a unitless
//     gauge of how much of the score scale the interval leaves open.
//
// Concurrency: the estimator is stateless after construction and safe
// for concurrent use.
//
// Error Conditions:
//   - ErrInvalidScore: a consensus statistic is NaN or infinite
//   - sample size below the domain minimum
//   - mean pairwise correlation outside [0, 1] when marked known
type IntervalEstimator struct {
	name   string
	config IntervalConfig
	tables *LookupTables
}

// NewIntervalEstimator creates an IntervalEstimator with the given
// identifier, configuration, and lookup tables.
func NewIntervalEstimator(name string, config IntervalConfig, tables *LookupTables) (*IntervalEstimator, error) {
	if name == "" {
		return nil, ErrEmptyComponentName
	}
	if tables == nil {
		return nil, ErrMissingTables
	}
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &IntervalEstimator{name: name, config: config, tables: tables}, nil
}

// Name returns the estimator's unique identifier.
func (e *IntervalEstimator) Name() string { return e.name }

// Estimate computes the uncertainty statistics for the given consensus
// stats and committee composition.
func (e *IntervalEstimator) Estimate(stats domain.ConsensusStats, comp domain.CompositionProfile) (domain.UncertaintyStats, error) {
	if stats.SampleSize < domain.MinCommitteeSize {
		return domain.UncertaintyStats{}, fmt.Errorf("%w: sample size %d below minimum %d",
			domain.ErrInsufficientExperts, stats.SampleSize, domain.MinCommitteeSize)
	}
	for _, v := range []float64{stats.CorrectedStdev, stats.EnhancedScore} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return domain.UncertaintyStats{}, fmt.Errorf("%w: consensus statistic", ErrInvalidScore)
		}
	}

	n := stats.SampleSize
	basicSE := stats.CorrectedStdev / math.Sqrt(float64(n))

	multiplier, err := e.multiplier(n, comp)
	if err != nil {
		return domain.UncertaintyStats{}, err
	}
	correctedSE := basicSE * multiplier

	tCrit := e.tables.TCritical(n)
	margin := tCrit * correctedSE

	lower := stats.EnhancedScore - margin
	upper := stats.EnhancedScore + margin
	width := upper - lower

	sufficiency := 1 - width/e.config.SufficiencySpan
	if sufficiency < 0 {
		sufficiency = 0
	}

	return domain.UncertaintyStats{
		StandardError:          basicSE,
		Multiplier:             multiplier,
		CorrectedStandardError: correctedSE,
		TCritical:              tCrit,
		Lower:                  lower,
		Upper:                  upper,
		Width:                  width,
		InformationSufficiency: sufficiency,
	}, nil
}

// multiplier resolves the SE widening factor, preferring the exact
// correlation form over the composition buckets.
func (e *IntervalEstimator) multiplier(n int, comp domain.CompositionProfile) (float64, error) {
	if !comp.PairwiseKnown {
		return e.tables.Multiplier(comp.Category), nil
	}
	if math.IsNaN(comp.MeanRho) || comp.MeanRho < 0 || comp.MeanRho > 1 {
		return 0, fmt.Errorf("mean pairwise correlation %.4f outside [0, 1]", comp.MeanRho)
	}
	return math.Sqrt(1 + float64(n-1)*comp.MeanRho), nil
}

// Validate checks that the estimator is properly configured.
func (e *IntervalEstimator) Validate() error {
	if e.name == "" {
		return ErrEmptyComponentName
	}
	if e.tables == nil {
		return ErrMissingTables
	}
	if err := validate.Struct(e.config); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	return nil
}

// UnmarshalParameters updates the estimator's configuration from YAML.
// The decoded configuration replaces the current one only if valid.
func (e *IntervalEstimator) UnmarshalParameters(params yaml.Node) error {
	var config IntervalConfig
	if err := params.Decode(&config); err != nil {
		return fmt.Errorf("failed to decode parameters: %w", err)
	}
	if err := validate.Struct(config); err != nil {
		return fmt.Errorf("invalid parameters: %w", err)
	}

	e.config = config
	return nil
}

// NewIntervalEstimatorFromConfig creates an IntervalEstimator from a
// generic configuration map. Missing keys fall back to defaults.
func NewIntervalEstimatorFromConfig(id string, config map[string]any, tables *LookupTables) (*IntervalEstimator, error) {
	cfg := DefaultIntervalConfig()

	if len(config) > 0 {
		raw, err := yaml.Marshal(config)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}

	return NewIntervalEstimator(id, cfg, tables)
}
