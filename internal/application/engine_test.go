package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-conclave/infrastructure/memstore"
	"github.com/ahrav/go-conclave/infrastructure/scoring"
	"github.com/ahrav/go-conclave/internal/domain"
	"github.com/ahrav/go-conclave/internal/ports"
	"github.com/ahrav/go-conclave/internal/testutils"
)

var engineEpoch = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type engineFixture struct {
	engine   *DecisionEngine
	ledger   *memstore.DecisionLedger
	accuracy *memstore.AccuracyStore
	metrics  *testutils.RecordingMetrics
	observer *testutils.RecordingObserver
}

func newStatisticalComponents(t *testing.T) (ports.ScoreAggregator, ports.UncertaintyEstimator, ports.VerdictPolicy) {
	t.Helper()
	tables := scoring.DefaultLookupTables()

	aggregator, err := scoring.NewConsensusAggregator("consensus", scoring.DefaultConsensusConfig(), tables)
	require.NoError(t, err)
	estimator, err := scoring.NewIntervalEstimator("interval", scoring.DefaultIntervalConfig(), tables)
	require.NoError(t, err)
	policy, err := scoring.NewDecisionPolicy("decision_rules", scoring.DefaultDecisionRulesConfig())
	require.NoError(t, err)

	return aggregator, estimator, policy
}

func newTestEngine(t *testing.T, profile domain.WeightProfile, table *domain.CorrelationTable, ledger ports.DecisionLedger) *engineFixture {
	t.Helper()

	aggregator, estimator, policy := newStatisticalComponents(t)

	accuracy := memstore.NewAccuracyStore(domain.DefaultAccuracyWindowSize)
	resolver, err := NewWeightResolver(memstore.NewWeightSource(profile), accuracy, table, DefaultResolverConfig())
	require.NoError(t, err)

	memLedger, _ := ledger.(*memstore.DecisionLedger)
	if ledger == nil {
		memLedger = memstore.NewDecisionLedger()
		ledger = memLedger
	}

	learner, err := NewWeightLearner(ledger, accuracy, DefaultLearnerConfig())
	require.NoError(t, err)

	metrics := testutils.NewRecordingMetrics()
	observer := testutils.NewRecordingObserver()

	engine, err := NewDecisionEngine(
		aggregator, estimator, policy, resolver, learner, ledger,
		DefaultEngineConfig(),
		WithMetrics(metrics),
		WithObserver(observer),
		WithClock(testutils.FixedClock(engineEpoch)),
	)
	require.NoError(t, err)

	return &engineFixture{
		engine:   engine,
		ledger:   memLedger,
		accuracy: accuracy,
		metrics:  metrics,
		observer: observer,
	}
}

func TestNewDecisionEngine_Validation(t *testing.T) {
	aggregator, estimator, policy := newStatisticalComponents(t)
	accuracy := memstore.NewAccuracyStore(0)
	ledger := memstore.NewDecisionLedger()
	resolver, err := NewWeightResolver(memstore.NewEmptyWeightSource(), accuracy, nil, DefaultResolverConfig())
	require.NoError(t, err)
	learner, err := NewWeightLearner(ledger, accuracy, DefaultLearnerConfig())
	require.NoError(t, err)

	tests := []struct {
		name    string
		build   func() (*DecisionEngine, error)
		wantErr string
	}{
		{
			name: "nil aggregator",
			build: func() (*DecisionEngine, error) {
				return NewDecisionEngine(nil, estimator, policy, resolver, learner, ledger, DefaultEngineConfig())
			},
			wantErr: "statistical components must not be nil",
		},
		{
			name: "nil estimator",
			build: func() (*DecisionEngine, error) {
				return NewDecisionEngine(aggregator, nil, policy, resolver, learner, ledger, DefaultEngineConfig())
			},
			wantErr: "statistical components must not be nil",
		},
		{
			name: "nil policy",
			build: func() (*DecisionEngine, error) {
				return NewDecisionEngine(aggregator, estimator, nil, resolver, learner, ledger, DefaultEngineConfig())
			},
			wantErr: "statistical components must not be nil",
		},
		{
			name: "nil resolver",
			build: func() (*DecisionEngine, error) {
				return NewDecisionEngine(aggregator, estimator, policy, nil, learner, ledger, DefaultEngineConfig())
			},
			wantErr: "weight resolver must not be nil",
		},
		{
			name: "nil learner",
			build: func() (*DecisionEngine, error) {
				return NewDecisionEngine(aggregator, estimator, policy, resolver, nil, ledger, DefaultEngineConfig())
			},
			wantErr: "weight learner must not be nil",
		},
		{
			name: "nil ledger",
			build: func() (*DecisionEngine, error) {
				return NewDecisionEngine(aggregator, estimator, policy, resolver, learner, nil, DefaultEngineConfig())
			},
			wantErr: "decision ledger must not be nil",
		},
		{
			name: "zero collection timeout",
			build: func() (*DecisionEngine, error) {
				return NewDecisionEngine(aggregator, estimator, policy, resolver, learner, ledger, EngineConfig{})
			},
			wantErr: "configuration validation failed",
		},
		{
			name: "valid",
			build: func() (*DecisionEngine, error) {
				return NewDecisionEngine(aggregator, estimator, policy, resolver, learner, ledger, DefaultEngineConfig())
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, err := tt.build()
			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.NotNil(t, engine)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

// The reference round: four experts in distinct domains, weights
// 0.9/0.7/0.7/0.3, scores 4/4/3/5, no pairwise correlation data.
// Every downstream statistic is known in closed form.
func TestDecisionEngine_RoundLifecycle(t *testing.T) {
	fx := newTestEngine(t, testutils.WorkedExampleProfile(), nil, nil)
	ctx := context.Background()

	round, err := fx.engine.OpenRound(ctx, testutils.WorkedExampleCommittee())
	require.NoError(t, err)

	for id, score := range testutils.WorkedExampleScores() {
		require.NoError(t, round.Submit(id, "viability", score))
	}

	require.NoError(t, round.Await(ctx))
	submitted, expected := round.Progress()
	assert.Equal(t, 4, submitted)
	assert.Equal(t, 4, expected)

	result, err := round.Close(ctx, testutils.CompleteDossier())
	require.NoError(t, err)

	assert.Equal(t, "adr-042", result.DecisionID)
	assert.Equal(t, domain.VerdictNeedMoreInfo, result.Verdict,
		"interval width 2.856 exceeds the wide-interval threshold")
	assert.False(t, result.Provisional)
	assert.Empty(t, result.RequiredRemediation)
	assert.Empty(t, result.Missing)
	assert.Equal(t, engineEpoch, result.Timestamp)

	agg := result.Aggregation
	// S = 10.0 / 2.6
	assert.InDelta(t, 3.846154, agg.WeightedMean, 0.0001)
	assert.InDelta(t, 0.600788, agg.BiasedStdev, 0.0001)
	// sigma_c = 0.600788 * 1.15
	assert.InDelta(t, 0.690907, agg.CorrectedStdev, 0.0001)
	assert.InDelta(t, 0.9, agg.PenaltyCoefficient, 0.0001)
	assert.InDelta(t, 3.224338, agg.EnhancedScore, 0.0001)
	// SE corrected by the mixed-composition multiplier 1.3, t(4)=3.18.
	assert.InDelta(t, 0.449089, agg.CorrectedStandardError, 0.0001)
	assert.InDelta(t, 3.18, agg.TCritical, 0.0001)
	assert.InDelta(t, 1.796234, agg.CILower, 0.001)
	assert.InDelta(t, 4.652442, agg.CIUpper, 0.001)
	assert.InDelta(t, 0.285948, agg.InformationSufficiency, 0.001)
	assert.Equal(t, 4, agg.EffectiveN)
	assert.Equal(t, domain.CompositionMixed, agg.Composition)
	assert.False(t, agg.Winsorized)

	require.Len(t, result.Weights, 4)
	wantWeights := []float64{0.9, 0.7, 0.7, 0.3}
	for i, rw := range result.Weights {
		assert.InDelta(t, wantWeights[i], rw.Effective, 0.0001)
	}

	record, err := fx.engine.Record(ctx, "adr-042")
	require.NoError(t, err)
	assert.Equal(t, domain.VerdictNeedMoreInfo, record.Result.Verdict)
	assert.Len(t, record.Judgments, 4)
	assert.Equal(t, engineEpoch, record.CreatedAt)

	assert.Equal(t, float64(1), fx.metrics.CounterValue("rounds_opened_total"))
	assert.Equal(t, float64(4), fx.metrics.CounterValue("judgments_received_total"))
	assert.Equal(t, float64(1), fx.metrics.CounterValue("decisions_total"))
	assert.Equal(t, []map[string]string{{"verdict": "need_more_info"}},
		fx.metrics.Labels("decisions_total"))
	require.Len(t, fx.metrics.HistogramValues("information_sufficiency"), 1)
	assert.Equal(t, 1, fx.metrics.LatencyCount("round_close"))

	assert.Equal(t, []string{"adr-042"}, fx.observer.PreRounds())
	posts := fx.observer.PostRounds()
	require.Len(t, posts, 1)
	assert.NoError(t, posts[0].Err)
	assert.True(t, posts[0].MarkerSeen, "PreRound context must reach PostRound")
	assert.Equal(t, domain.VerdictNeedMoreInfo, posts[0].Result.Verdict)
}

func TestDecisionEngine_OpenRound_RejectsInvalidCommittee(t *testing.T) {
	fx := newTestEngine(t, domain.NewWeightProfile(), nil, nil)

	committee := testutils.PairCommittee()
	committee.Experts = committee.Experts[:1]

	_, err := fx.engine.OpenRound(context.Background(), committee)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInsufficientExperts)
	assert.Empty(t, fx.observer.PreRounds(), "no observer event for a rejected round")
	assert.Zero(t, fx.metrics.CounterValue("rounds_opened_total"))
}

func TestDecisionEngine_OpenRound_AppliesDefaultTimeout(t *testing.T) {
	fx := newTestEngine(t, domain.NewWeightProfile(), nil, nil)

	committee := testutils.PairCommittee()
	committee.CollectionTimeout = 0

	round, err := fx.engine.OpenRound(context.Background(), committee)
	require.NoError(t, err)
	assert.Equal(t, DefaultEngineConfig().CollectionTimeout, round.Committee().CollectionTimeout)
}

func TestDecisionEngine_Round_CountsRejections(t *testing.T) {
	fx := newTestEngine(t, domain.NewWeightProfile(), nil, nil)

	round, err := fx.engine.OpenRound(context.Background(), testutils.PairCommittee())
	require.NoError(t, err)

	require.NoError(t, round.Submit("erin", "feasibility", 4))

	err = round.Submit("erin", "feasibility", 2)
	assert.ErrorIs(t, err, domain.ErrDuplicateSubmission)

	err = round.Submit("mallory", "feasibility", 3)
	assert.ErrorIs(t, err, domain.ErrUnknownExpert)

	err = round.Submit("frank", "feasibility", 9)
	assert.ErrorIs(t, err, domain.ErrInvalidScore)

	assert.Equal(t, float64(1), fx.metrics.CounterValue("judgments_received_total"))
	assert.Equal(t, float64(3), fx.metrics.CounterValue("judgments_rejected_total"))
	assert.ElementsMatch(t,
		[]map[string]string{
			{"reason": "duplicate"},
			{"reason": "unknown_expert"},
			{"reason": "invalid_score"},
		},
		fx.metrics.Labels("judgments_rejected_total"))
}

func TestDecisionEngine_Close_PartialQuorumProceeds(t *testing.T) {
	fx := newTestEngine(t, testutils.WorkedExampleProfile(), nil, nil)
	ctx := context.Background()

	round, err := fx.engine.OpenRound(ctx, testutils.WorkedExampleCommittee())
	require.NoError(t, err)

	// Two of four respond, in agreement.
	require.NoError(t, round.Submit("alice", "viability", 4))
	require.NoError(t, round.Submit("bob", "viability", 4))

	result, err := round.Close(ctx, testutils.CompleteDossier())
	require.NoError(t, err, "a quorum timeout shrinks the committee, it does not fail the round")

	assert.Equal(t, 2, result.Aggregation.EffectiveN)
	assert.Equal(t, []domain.ExpertID{"carol", "dave"}, result.Missing)

	// Unanimous pair: zero spread, point interval, floor confidence in
	// the score itself.
	assert.InDelta(t, 4.0, result.Aggregation.WeightedMean, 0.0001)
	assert.Zero(t, result.Aggregation.CIWidth)
	assert.InDelta(t, 1.0, result.Aggregation.InformationSufficiency, 0.0001)
	assert.Equal(t, domain.VerdictStrongApprove, result.Verdict)
}

func TestDecisionEngine_Close_BelowMinimumFails(t *testing.T) {
	fx := newTestEngine(t, testutils.WorkedExampleProfile(), nil, nil)
	ctx := context.Background()

	round, err := fx.engine.OpenRound(ctx, testutils.WorkedExampleCommittee())
	require.NoError(t, err)
	require.NoError(t, round.Submit("alice", "viability", 4))

	_, err = round.Close(ctx, testutils.CompleteDossier())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInsufficientExperts)
	assert.Contains(t, err.Error(), "only 1 of 4 experts responded")

	posts := fx.observer.PostRounds()
	require.Len(t, posts, 1)
	assert.Error(t, posts[0].Err)
	assert.Zero(t, fx.metrics.CounterValue("decisions_total"))
}

func TestDecisionEngine_Close_NoJudgmentsFails(t *testing.T) {
	fx := newTestEngine(t, testutils.WorkedExampleProfile(), nil, nil)
	ctx := context.Background()

	round, err := fx.engine.OpenRound(ctx, testutils.WorkedExampleCommittee())
	require.NoError(t, err)

	_, err = round.Close(ctx, testutils.CompleteDossier())
	assert.ErrorIs(t, err, domain.ErrNoJudgments)
}

func TestDecisionEngine_CloseTwiceFails(t *testing.T) {
	fx := newTestEngine(t, testutils.WorkedExampleProfile(), nil, nil)
	ctx := context.Background()

	round, err := fx.engine.OpenRound(ctx, testutils.WorkedExampleCommittee())
	require.NoError(t, err)
	for id, score := range testutils.WorkedExampleScores() {
		require.NoError(t, round.Submit(id, "viability", score))
	}

	_, err = round.Close(ctx, testutils.CompleteDossier())
	require.NoError(t, err)

	_, err = round.Close(ctx, testutils.CompleteDossier())
	assert.ErrorIs(t, err, domain.ErrRoundClosed)
}

func TestDecisionEngine_Evaluate_Batch(t *testing.T) {
	fx := newTestEngine(t, testutils.WorkedExampleProfile(), nil, nil)

	submissions := []Submission{
		{Expert: "alice", Angle: "viability", Score: 4},
		{Expert: "bob", Angle: "viability", Score: 4},
		{Expert: "carol", Angle: "viability", Score: 3},
		{Expert: "dave", Angle: "viability", Score: 5},
	}

	result, err := fx.engine.Evaluate(context.Background(),
		testutils.WorkedExampleCommittee(), submissions, testutils.CompleteDossier())
	require.NoError(t, err)

	assert.Equal(t, domain.VerdictNeedMoreInfo, result.Verdict)
	assert.InDelta(t, 3.224338, result.Aggregation.EnhancedScore, 0.0001)
}

func TestDecisionEngine_Evaluate_RejectedSubmissionAborts(t *testing.T) {
	fx := newTestEngine(t, testutils.WorkedExampleProfile(), nil, nil)

	submissions := []Submission{
		{Expert: "alice", Angle: "viability", Score: 4},
		{Expert: "alice", Angle: "viability", Score: 5},
	}

	_, err := fx.engine.Evaluate(context.Background(),
		testutils.WorkedExampleCommittee(), submissions, testutils.CompleteDossier())
	assert.ErrorIs(t, err, domain.ErrDuplicateSubmission)
}

func TestDecisionEngine_ProvisionalWorkflow(t *testing.T) {
	fx := newTestEngine(t, testutils.WorkedExampleProfile(), nil, nil)
	ctx := context.Background()

	round, err := fx.engine.OpenRound(ctx, testutils.WorkedExampleCommittee())
	require.NoError(t, err)
	for id, score := range testutils.WorkedExampleScores() {
		require.NoError(t, round.Submit(id, "viability", score))
	}

	// Risks alone do not satisfy the dossier.
	result, err := round.Close(ctx, domain.DevilsAdvocateDossier{
		Risks: []string{"rollback path untested", "budget overrun", "vendor lock-in"},
	})
	require.NoError(t, err)

	assert.True(t, result.Provisional, "missing dissent and alternatives force a provisional result")
	assert.Equal(t, []string{
		"record at least 1 dissenting opinion(s), have 0",
		"propose at least 1 alternative(s), have 0",
	}, result.RequiredRemediation)
	assert.Equal(t, domain.VerdictNeedMoreInfo, result.Verdict,
		"the verdict itself still stands")

	err = fx.engine.Finalize(ctx, "adr-042", false)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrRemediationRequired)
	assert.Contains(t, err.Error(), "dissenting opinion")

	require.NoError(t, fx.engine.Finalize(ctx, "adr-042", true))

	record, err := fx.engine.Record(ctx, "adr-042")
	require.NoError(t, err)
	assert.NotNil(t, record.FinalizedAt)

	err = fx.engine.Finalize(ctx, "adr-042", true)
	assert.ErrorIs(t, err, domain.ErrAlreadyFinalized)
}

func TestDecisionEngine_FinalizeCompleteDossier(t *testing.T) {
	fx := newTestEngine(t, testutils.WorkedExampleProfile(), nil, nil)
	ctx := context.Background()

	round, err := fx.engine.OpenRound(ctx, testutils.WorkedExampleCommittee())
	require.NoError(t, err)
	for id, score := range testutils.WorkedExampleScores() {
		require.NoError(t, round.Submit(id, "viability", score))
	}
	_, err = round.Close(ctx, testutils.CompleteDossier())
	require.NoError(t, err)

	assert.NoError(t, fx.engine.Finalize(ctx, "adr-042", false),
		"a complete dossier needs no override")
}

func TestDecisionEngine_OutcomeFeedback(t *testing.T) {
	fx := newTestEngine(t, testutils.WorkedExampleProfile(), nil, nil)
	ctx := context.Background()

	round, err := fx.engine.OpenRound(ctx, testutils.WorkedExampleCommittee())
	require.NoError(t, err)
	for id, score := range testutils.WorkedExampleScores() {
		require.NoError(t, round.Submit(id, "viability", score))
	}
	_, err = round.Close(ctx, testutils.CompleteDossier())
	require.NoError(t, err)

	correctness, err := fx.engine.RecordOutcome(ctx, "adr-042", domain.OutcomeSuccess)
	require.NoError(t, err)
	// alice 4, bob 4, dave 5 predicted success; carol's 3 is neutral.
	assert.Equal(t, map[domain.ExpertID]bool{
		"alice": true,
		"bob":   true,
		"dave":  true,
	}, correctness)

	window, err := fx.accuracy.LastOutcomes(ctx, "dave")
	require.NoError(t, err)
	assert.Equal(t, []bool{true}, window.Values())

	assert.Equal(t, float64(1), fx.metrics.CounterValue("outcomes_recorded_total"))
	assert.Equal(t, []map[string]string{{"outcome": "success"}},
		fx.metrics.Labels("outcomes_recorded_total"))

	_, err = fx.engine.RecordOutcome(ctx, "adr-042", domain.OutcomeSuccess)
	assert.ErrorIs(t, err, domain.ErrOutcomeRecorded)
	assert.Equal(t, float64(1), fx.metrics.CounterValue("outcomes_recorded_total"),
		"a rejected recording must not count")
}

func TestDecisionEngine_PersistenceFailureSurfaces(t *testing.T) {
	failing := &testutils.FailingLedger{Err: assert.AnError}
	fx := newTestEngine(t, testutils.WorkedExampleProfile(), nil, failing)
	ctx := context.Background()

	round, err := fx.engine.OpenRound(ctx, testutils.WorkedExampleCommittee())
	require.NoError(t, err)
	for id, score := range testutils.WorkedExampleScores() {
		require.NoError(t, round.Submit(id, "viability", score))
	}

	_, err = round.Close(ctx, testutils.CompleteDossier())
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Contains(t, err.Error(), "persisting decision record")

	posts := fx.observer.PostRounds()
	require.Len(t, posts, 1)
	assert.Error(t, posts[0].Err)
}
