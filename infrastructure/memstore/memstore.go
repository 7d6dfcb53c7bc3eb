// Package memstore provides in-memory implementations of the storage
// ports. They are the default backing for tests, examples, and
// single-process deployments that do not need durability.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ahrav/go-conclave/internal/domain"
	"github.com/ahrav/go-conclave/internal/ports"
)

// Compile-time verification of port compliance.
var (
	_ ports.AccuracyStore  = (*AccuracyStore)(nil)
	_ ports.DecisionLedger = (*DecisionLedger)(nil)
	_ ports.WeightSource   = (*WeightSource)(nil)
)

// AccuracyStore keeps per-expert accuracy windows in memory.
// Reads return snapshots, so a window fetched for one round is
// unaffected by outcomes recorded concurrently for another.
type AccuracyStore struct {
	mu       sync.RWMutex
	capacity int
	windows  map[domain.ExpertID]*domain.AccuracyWindow
}

// NewAccuracyStore creates an accuracy store whose windows hold the
// given number of outcomes. A non-positive capacity uses the default
// window size.
func NewAccuracyStore(capacity int) *AccuracyStore {
	if capacity <= 0 {
		capacity = domain.DefaultAccuracyWindowSize
	}
	return &AccuracyStore{
		capacity: capacity,
		windows:  make(map[domain.ExpertID]*domain.AccuracyWindow),
	}
}

// LastOutcomes returns a snapshot of the expert's accuracy window.
// Unknown experts get an empty window, never an error.
func (s *AccuracyStore) LastOutcomes(ctx context.Context, expertID domain.ExpertID) (*domain.AccuracyWindow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	window, ok := s.windows[expertID]
	if !ok {
		return domain.NewAccuracyWindow(s.capacity), nil
	}
	return window.Clone(), nil
}

// AppendOutcome records one correctness flag for the expert, evicting
// the oldest entry once the window is full.
func (s *AccuracyStore) AppendOutcome(ctx context.Context, expertID domain.ExpertID, correct bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	window, ok := s.windows[expertID]
	if !ok {
		window = domain.NewAccuracyWindow(s.capacity)
		s.windows[expertID] = window
	}
	window.Append(correct)
	return nil
}

// DecisionLedger keeps decision records in memory, ordered by
// creation time for listing.
type DecisionLedger struct {
	mu      sync.RWMutex
	records map[string]domain.DecisionRecord
	order   []string
}

// NewDecisionLedger creates an empty in-memory ledger.
func NewDecisionLedger() *DecisionLedger {
	return &DecisionLedger{records: make(map[string]domain.DecisionRecord)}
}

// SaveRecord stores a decision record, replacing any existing record
// with the same decision ID that has no outcome yet. Records with a
// recorded outcome are immutable.
func (l *DecisionLedger) SaveRecord(ctx context.Context, record domain.DecisionRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if record.DecisionID == "" {
		return ports.NewStoreError("memory", "save", "", fmt.Errorf("decision ID is required"))
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if existing, ok := l.records[record.DecisionID]; ok {
		if existing.OutcomeRecorded() {
			return fmt.Errorf("%w: %s", domain.ErrOutcomeRecorded, record.DecisionID)
		}
	} else {
		l.order = append(l.order, record.DecisionID)
	}
	l.records[record.DecisionID] = record
	return nil
}

// GetRecord fetches one record by decision ID.
func (l *DecisionLedger) GetRecord(ctx context.Context, decisionID string) (domain.DecisionRecord, error) {
	if err := ctx.Err(); err != nil {
		return domain.DecisionRecord{}, err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	record, ok := l.records[decisionID]
	if !ok {
		return domain.DecisionRecord{}, fmt.Errorf("%w: %s", domain.ErrRecordNotFound, decisionID)
	}
	return record, nil
}

// ListRecords returns every record, most recently created first.
func (l *DecisionLedger) ListRecords(ctx context.Context) ([]domain.DecisionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	records := make([]domain.DecisionRecord, 0, len(l.order))
	for _, id := range l.order {
		records = append(records, l.records[id])
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	return records, nil
}

// RecordOutcome attaches the real-world outcome and per-expert
// correctness flags to a record, exactly once.
func (l *DecisionLedger) RecordOutcome(
	ctx context.Context,
	decisionID string,
	outcome domain.Outcome,
	correctness map[domain.ExpertID]bool,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	record, ok := l.records[decisionID]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrRecordNotFound, decisionID)
	}
	if record.OutcomeRecorded() {
		return fmt.Errorf("%w: %s", domain.ErrOutcomeRecorded, decisionID)
	}

	o := outcome
	record.ActualOutcome = &o
	record.Correctness = make(map[domain.ExpertID]bool, len(correctness))
	for id, correct := range correctness {
		record.Correctness[id] = correct
	}
	now := time.Now()
	record.OutcomeAt = &now
	l.records[decisionID] = record
	return nil
}

// Finalize stamps the record as final, exactly once.
func (l *DecisionLedger) Finalize(ctx context.Context, decisionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	record, ok := l.records[decisionID]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrRecordNotFound, decisionID)
	}
	if record.FinalizedAt != nil {
		return fmt.Errorf("%w: %s", domain.ErrAlreadyFinalized, decisionID)
	}

	now := time.Now()
	record.FinalizedAt = &now
	l.records[decisionID] = record
	return nil
}

// WeightSource serves a weight profile from memory. The profile is
// read-mostly; Replace swaps it atomically for administrative
// updates.
type WeightSource struct {
	mu      sync.RWMutex
	profile domain.WeightProfile
	set     bool
}

// NewWeightSource creates a weight source holding the given profile.
func NewWeightSource(profile domain.WeightProfile) *WeightSource {
	return &WeightSource{profile: profile, set: true}
}

// NewEmptyWeightSource creates a weight source with no profile
// configured; Profile reports not found until Replace is called.
func NewEmptyWeightSource() *WeightSource {
	return &WeightSource{}
}

// Profile returns a copy of the current weight profile. When none has
// been configured it wraps ErrRecordNotFound, which resolvers treat
// as "use the default weight".
func (s *WeightSource) Profile(ctx context.Context) (domain.WeightProfile, error) {
	if err := ctx.Err(); err != nil {
		return domain.WeightProfile{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.set {
		return domain.WeightProfile{}, fmt.Errorf("%w: weight profile", domain.ErrRecordNotFound)
	}
	return s.profile.Clone(), nil
}

// Replace swaps the stored profile.
func (s *WeightSource) Replace(profile domain.WeightProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profile = profile
	s.set = true
}
