package domain

import (
	"errors"
	"fmt"
)

// Common domain errors surfaced during collection, aggregation, and
// outcome recording.
var (
	// ErrInsufficientExperts indicates a committee below the minimum
	// size. The round is rejected; more experts are required.
	ErrInsufficientExperts = errors.New("insufficient experts")

	// ErrInvalidScore indicates a score outside the ordinal scale.
	ErrInvalidScore = errors.New("invalid score")

	// ErrDuplicateSubmission indicates a second score for the same
	// (expert, angle) in one decision.
	ErrDuplicateSubmission = errors.New("duplicate submission")

	// ErrUnknownExpert indicates a submission from someone not seated
	// on the committee.
	ErrUnknownExpert = errors.New("unknown expert")

	// ErrUnknownAngle indicates a submission against an angle not
	// active for the round.
	ErrUnknownAngle = errors.New("unknown angle")

	// ErrRoundClosed indicates a submission after the round closed.
	ErrRoundClosed = errors.New("round closed")

	// ErrRoundOpen indicates an attempt to read judgments before the
	// round closed. Scores stay invisible until then.
	ErrRoundOpen = errors.New("round still open")

	// ErrOutcomeRecorded indicates a second outcome for a decision
	// whose record is already immutable.
	ErrOutcomeRecorded = errors.New("outcome already recorded")

	// ErrRecordNotFound indicates an unknown decision ID.
	ErrRecordNotFound = errors.New("decision record not found")

	// ErrRemediationRequired indicates a finalization attempt on a
	// provisional decision whose dossier gaps are still open.
	ErrRemediationRequired = errors.New("remediation required")

	// ErrAlreadyFinalized indicates a second finalization attempt.
	ErrAlreadyFinalized = errors.New("decision already finalized")

	// ErrNoJudgments indicates a round that closed with no scores at
	// all.
	ErrNoJudgments = errors.New("no judgments submitted")

	// ErrInvalidConfiguration indicates a structurally invalid
	// committee, profile, or engine configuration.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrInvalidResult indicates an aggregation result violating its
	// own invariants; it signals a defect, not bad input.
	ErrInvalidResult = errors.New("invalid aggregation result")
)

// SubmissionError carries the identity context of a rejected score
// submission.
type SubmissionError struct {
	// ExpertID is the submitting rater.
	ExpertID ExpertID

	// AngleID is the angle the score was submitted against.
	AngleID AngleID

	// Err is the underlying rejection cause.
	Err error
}

// Error implements the error interface for SubmissionError.
func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submission rejected: expert=%s, angle=%s, err=%v", e.ExpertID, e.AngleID, e.Err)
}

// Unwrap returns the underlying error, supporting errors.Is matching
// against the sentinel causes.
func (e *SubmissionError) Unwrap() error { return e.Err }

// NewSubmissionError creates a SubmissionError with the given details.
func NewSubmissionError(expert ExpertID, angle AngleID, err error) *SubmissionError {
	return &SubmissionError{ExpertID: expert, AngleID: angle, Err: err}
}

// ValidationError represents an error that occurred during validation.
// It can contain multiple validation failures.
type ValidationError struct {
	// Entity is the name of the entity that failed validation.
	Entity string

	// Errors contains the list of validation error messages.
	Errors []string
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("validation error for %s: %s", e.Entity, e.Errors[0])
	}
	return fmt.Sprintf("validation errors for %s: %v", e.Entity, e.Errors)
}

// AddError adds a new error message to the validation error.
func (e *ValidationError) AddError(msg string) { e.Errors = append(e.Errors, msg) }

// HasErrors returns true if there are any validation errors.
func (e *ValidationError) HasErrors() bool { return len(e.Errors) > 0 }

// NewValidationError creates a new ValidationError for the given entity.
func NewValidationError(entity string) *ValidationError {
	return &ValidationError{
		Entity: entity,
		Errors: make([]string, 0),
	}
}
