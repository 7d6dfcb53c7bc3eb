package application

import (
	"context"
	"fmt"
	"sort"

	"github.com/ahrav/go-conclave/internal/domain"
	"github.com/ahrav/go-conclave/internal/ports"
)

// LearnerConfig tunes how real-world outcomes are translated into
// per-expert correctness.
type LearnerConfig struct {
	// FavorableScoreFloor is the composite score above which an
	// expert is treated as having predicted success.
	FavorableScoreFloor float64 `yaml:"favorable_score_floor" json:"favorable_score_floor" validate:"gt=0"`

	// UnfavorableScoreCeiling is the composite score below which an
	// expert is treated as having predicted failure. Experts scoring
	// between the ceiling and the floor took no position and receive
	// no correctness datum.
	UnfavorableScoreCeiling float64 `yaml:"unfavorable_score_ceiling" json:"unfavorable_score_ceiling" validate:"gt=0"`
}

// DefaultLearnerConfig returns the standard thresholds for a 1-5
// scale, mirroring the approve/reject bounds of the verdict rules.
func DefaultLearnerConfig() LearnerConfig {
	return LearnerConfig{
		FavorableScoreFloor:     3.5,
		UnfavorableScoreCeiling: 2.5,
	}
}

// WeightLearner feeds recorded decision outcomes back into each
// participating expert's accuracy window.
//
// Learning is strictly forward-looking: recording an outcome never
// recomputes the original aggregation, it only changes the weights
// future rounds will resolve. The ledger enforces that an outcome is
// recorded at most once per decision, and the correctness flags are
// persisted atomically with the outcome before any window is touched.
type WeightLearner struct {
	ledger   ports.DecisionLedger
	accuracy ports.AccuracyStore
	config   LearnerConfig
}

// NewWeightLearner creates a learner over the given ledger and
// accuracy store.
func NewWeightLearner(ledger ports.DecisionLedger, accuracy ports.AccuracyStore, config LearnerConfig) (*WeightLearner, error) {
	if ledger == nil {
		return nil, fmt.Errorf("decision ledger must not be nil")
	}
	if accuracy == nil {
		return nil, fmt.Errorf("accuracy store must not be nil")
	}
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	if config.UnfavorableScoreCeiling >= config.FavorableScoreFloor {
		return nil, fmt.Errorf("unfavorable ceiling %.2f must be below favorable floor %.2f",
			config.UnfavorableScoreCeiling, config.FavorableScoreFloor)
	}

	return &WeightLearner{ledger: ledger, accuracy: accuracy, config: config}, nil
}

// RecordOutcome stores the real-world outcome of a decision and
// appends a correctness flag to the window of every expert who took a
// position. It returns the derived correctness map. Recording a
// second outcome for the same decision fails with ErrOutcomeRecorded.
func (l *WeightLearner) RecordOutcome(
	ctx context.Context,
	decisionID string,
	outcome domain.Outcome,
) (map[domain.ExpertID]bool, error) {
	if !outcome.Valid() {
		return nil, fmt.Errorf("invalid outcome %q", outcome)
	}

	record, err := l.ledger.GetRecord(ctx, decisionID)
	if err != nil {
		return nil, err
	}
	if record.OutcomeRecorded() {
		return nil, fmt.Errorf("%w: %s", domain.ErrOutcomeRecorded, decisionID)
	}

	correctness := l.deriveCorrectness(record.Judgments, outcome)

	if err := l.ledger.RecordOutcome(ctx, decisionID, outcome, correctness); err != nil {
		return nil, err
	}

	ids := make([]domain.ExpertID, 0, len(correctness))
	for id := range correctness {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		if err := l.accuracy.AppendOutcome(ctx, id, correctness[id]); err != nil {
			return nil, fmt.Errorf("appending outcome for %s: %w", id, err)
		}
	}

	return correctness, nil
}

// deriveCorrectness compares each expert's score direction against
// the observed outcome. The composite is the plain mean of the
// expert's angle scores; experts in the neutral band between the
// thresholds are skipped.
func (l *WeightLearner) deriveCorrectness(
	collected []domain.ExpertJudgment,
	outcome domain.Outcome,
) map[domain.ExpertID]bool {
	correctness := make(map[domain.ExpertID]bool)

	set := domain.JudgmentSet{Judgments: collected}
	for id, judgments := range set.ByExpert() {
		var sum float64
		for _, j := range judgments {
			sum += float64(j.Score)
		}
		composite := sum / float64(len(judgments))

		var predictedSuccess bool
		switch {
		case composite > l.config.FavorableScoreFloor:
			predictedSuccess = true
		case composite < l.config.UnfavorableScoreCeiling:
			predictedSuccess = false
		default:
			continue
		}

		correctness[id] = predictedSuccess == (outcome == domain.OutcomeSuccess)
	}

	return correctness
}
