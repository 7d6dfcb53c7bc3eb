// Package scoring provides the statistical components of the decision
// engine: bucketed lookup tables, the consensus aggregator, the
// uncertainty estimator, and the verdict policy. Each component
// implements its corresponding port and is constructed from validated
// configuration.
package scoring

import (
	"errors"

	"github.com/go-playground/validator/v10"
)

// Common errors returned by scoring components.
// These errors provide consistent error handling across all implementations.
var (
	// ErrNoScores is returned when no scores are provided for aggregation.
	ErrNoScores = errors.New("no scores provided for aggregation")

	// ErrScoreMismatch is returned when the number of scores doesn't match the number of weights.
	ErrScoreMismatch = errors.New("scores and weights length mismatch")

	// ErrInvalidScore is returned when a score or weight is NaN or infinite.
	ErrInvalidScore = errors.New("score is not a finite number")

	// ErrInvalidWeight is returned when a weight is negative, NaN, or infinite.
	ErrInvalidWeight = errors.New("invalid weight")

	// ErrZeroWeight is returned when the weights sum to zero and no mean can be formed.
	ErrZeroWeight = errors.New("total weight is zero")

	// ErrEmptyComponentName is returned when attempting to create a component with an empty name.
	ErrEmptyComponentName = errors.New("component name cannot be empty")

	// ErrMissingTables is returned when a component is constructed without lookup tables.
	ErrMissingTables = errors.New("lookup tables are required")
)

// Package-level validator instance for configuration validation.
// Uses go-playground/validator v10 for struct tag-based validation.
var validate = validator.New()
