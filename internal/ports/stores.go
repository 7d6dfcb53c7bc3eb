package ports

import (
	"context"

	"github.com/ahrav/go-conclave/internal/domain"
)

// AccuracyStore holds each expert's sliding correctness window.
// The window is written exclusively by the weight learner and read by
// the weight resolver; implementations must make an append atomic
// with respect to concurrent reads for other in-flight decisions.
type AccuracyStore interface {
	// LastOutcomes returns a snapshot of the expert's accuracy
	// window. Experts with no recorded history get an empty window,
	// not an error. The returned window is a copy; mutating it does
	// not affect the store.
	LastOutcomes(ctx context.Context, expertID domain.ExpertID) (*domain.AccuracyWindow, error)

	// AppendOutcome records one correctness outcome for the expert,
	// evicting the oldest entry once the window is at capacity.
	AppendOutcome(ctx context.Context, expertID domain.ExpertID, correct bool) error
}

// DecisionLedger persists decision records through their lifecycle:
// created at decision time, updated exactly once when the real-world
// outcome is observed, optionally finalized. After the outcome update
// a record is immutable.
type DecisionLedger interface {
	// SaveRecord stores a freshly closed decision record.
	SaveRecord(ctx context.Context, record domain.DecisionRecord) error

	// GetRecord returns the record for the given decision, or an
	// error wrapping domain.ErrRecordNotFound.
	GetRecord(ctx context.Context, decisionID string) (domain.DecisionRecord, error)

	// ListRecords returns all stored records, most recent first.
	ListRecords(ctx context.Context) ([]domain.DecisionRecord, error)

	// RecordOutcome stores the observed outcome and the per-expert
	// correctness flags derived from it. A second call for the same
	// decision fails wrapping domain.ErrOutcomeRecorded: the record
	// is immutable once graded.
	RecordOutcome(ctx context.Context, decisionID string, outcome domain.Outcome, correctness map[domain.ExpertID]bool) error

	// Finalize stamps the record as finalized. It fails wrapping
	// domain.ErrAlreadyFinalized on a second call. Enforcement of
	// the devil's-advocate remediation happens above this port; the
	// ledger only records the transition.
	Finalize(ctx context.Context, decisionID string) error
}

// WeightSource supplies the weight profile for a decision round.
// Profiles are read-mostly; administrative updates are adapter
// specific and must never race readers holding an earlier snapshot.
type WeightSource interface {
	// Profile returns the current weight profile.
	Profile(ctx context.Context) (domain.WeightProfile, error)
}
