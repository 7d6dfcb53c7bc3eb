package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ahrav/go-conclave/internal/domain"
	"github.com/ahrav/go-conclave/internal/ports"
)

// Submission is one expert's score for one angle, the input shape of
// the batch evaluation path.
type Submission struct {
	Expert domain.ExpertID `yaml:"expert" json:"expert" validate:"required"`
	Angle  domain.AngleID  `yaml:"angle" json:"angle" validate:"required"`
	Score  int             `yaml:"score" json:"score" validate:"gte=1,lte=5"`
}

// DecisionEngine runs decision rounds end to end: it opens rounds,
// collects judgments, resolves weights, drives the injected
// statistical components, persists the resulting record, and feeds
// recorded outcomes back into future weights.
//
// The engine owns no statistics of its own. Aggregation, uncertainty
// estimation, and verdict selection are injected behind their ports,
// so every stage can be swapped or tightened without touching the
// orchestration.
//
// Concurrency: the engine is safe for concurrent use. Each round has
// its own collector; shared state lives behind the injected stores.
type DecisionEngine struct {
	aggregator ports.ScoreAggregator
	estimator  ports.UncertaintyEstimator
	policy     ports.VerdictPolicy
	resolver   *WeightResolver
	learner    *WeightLearner
	ledger     ports.DecisionLedger

	metrics  ports.MetricsCollector
	observer ports.RoundObserver

	config EngineConfig
	now    func() time.Time
}

// EngineOption customizes a DecisionEngine at construction.
type EngineOption func(*DecisionEngine)

// WithMetrics attaches a metrics collector. Without it, metrics are
// discarded.
func WithMetrics(m ports.MetricsCollector) EngineOption {
	return func(e *DecisionEngine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// WithObserver attaches a round observer, typically a tracing
// middleware. Without it, round lifecycle events are discarded.
func WithObserver(o ports.RoundObserver) EngineOption {
	return func(e *DecisionEngine) {
		if o != nil {
			e.observer = o
		}
	}
}

// WithClock overrides the engine's time source.
func WithClock(now func() time.Time) EngineOption {
	return func(e *DecisionEngine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewDecisionEngine creates an engine from its injected components.
// Every component is validated before the engine is returned.
func NewDecisionEngine(
	aggregator ports.ScoreAggregator,
	estimator ports.UncertaintyEstimator,
	policy ports.VerdictPolicy,
	resolver *WeightResolver,
	learner *WeightLearner,
	ledger ports.DecisionLedger,
	config EngineConfig,
	opts ...EngineOption,
) (*DecisionEngine, error) {
	if aggregator == nil || estimator == nil || policy == nil {
		return nil, fmt.Errorf("statistical components must not be nil")
	}
	if resolver == nil {
		return nil, fmt.Errorf("weight resolver must not be nil")
	}
	if learner == nil {
		return nil, fmt.Errorf("weight learner must not be nil")
	}
	if ledger == nil {
		return nil, fmt.Errorf("decision ledger must not be nil")
	}
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	for _, component := range []interface{ Validate() error }{aggregator, estimator, policy} {
		if err := component.Validate(); err != nil {
			return nil, fmt.Errorf("component validation failed: %w", err)
		}
	}

	e := &DecisionEngine{
		aggregator: aggregator,
		estimator:  estimator,
		policy:     policy,
		resolver:   resolver,
		learner:    learner,
		ledger:     ledger,
		metrics:    noopMetrics{},
		observer:   noopObserver{},
		config:     config,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}

	return e, nil
}

// Round is one open decision round. Experts submit against it
// concurrently; Close seals it and produces the decision.
type Round struct {
	engine    *DecisionEngine
	committee domain.CommitteeConfig
	collector *ScoreCollector
	obsCtx    context.Context
	openedAt  time.Time
}

// OpenRound validates the committee and opens a collection round for
// it. A committee with fewer than two experts is rejected here,
// before any scoring happens. Committees that do not specify a
// collection timeout inherit the engine default.
func (e *DecisionEngine) OpenRound(ctx context.Context, committee domain.CommitteeConfig) (*Round, error) {
	if err := committee.Validate(); err != nil {
		return nil, err
	}
	if committee.CollectionTimeout <= 0 {
		committee.CollectionTimeout = e.config.CollectionTimeout
	}

	obsCtx := e.observer.PreRound(ctx, committee.DecisionID, committee)
	e.metrics.RecordCounter("rounds_opened_total", 1, nil)

	return &Round{
		engine:    e,
		committee: committee,
		collector: NewScoreCollector(committee),
		obsCtx:    obsCtx,
		openedAt:  e.now(),
	}, nil
}

// Committee returns the round's validated committee configuration.
func (r *Round) Committee() domain.CommitteeConfig { return r.committee }

// Submit records one expert's score for one angle. Safe for
// concurrent use by many experts.
func (r *Round) Submit(expertID domain.ExpertID, angleID domain.AngleID, score int) error {
	if err := r.collector.Submit(expertID, angleID, score); err != nil {
		r.engine.metrics.RecordCounter("judgments_rejected_total", 1,
			map[string]string{"reason": rejectionReason(err)})
		return err
	}
	r.engine.metrics.RecordCounter("judgments_received_total", 1, nil)
	return nil
}

// Await blocks until every expert has scored every angle or the
// collection timeout elapses. Cancellation of ctx is the only error.
func (r *Round) Await(ctx context.Context) error {
	return r.collector.Await(ctx)
}

// Progress reports filled versus expected judgment slots.
func (r *Round) Progress() (submitted, expected int) {
	return r.collector.Progress()
}

// Close seals the round, runs the statistical pipeline over whatever
// was collected, persists the decision record, and returns the
// result. Closing an already-closed round returns ErrRoundClosed.
func (r *Round) Close(ctx context.Context, dossier domain.DevilsAdvocateDossier) (domain.DecisionResult, error) {
	set, err := r.collector.Close()
	if err != nil {
		return domain.DecisionResult{}, err
	}

	result, err := r.engine.evaluate(ctx, r.committee, set, dossier)

	r.engine.observer.PostRound(r.obsCtx, r.committee.DecisionID, result, err)
	r.engine.metrics.RecordLatency("round_close", r.engine.now().Sub(r.openedAt), nil)
	if err == nil {
		r.engine.metrics.RecordCounter("decisions_total", 1,
			map[string]string{"verdict": string(result.Verdict)})
		r.engine.metrics.RecordHistogram("information_sufficiency",
			result.Aggregation.InformationSufficiency, nil)
	}

	return result, err
}

// Evaluate runs a full round over pre-gathered submissions: open,
// submit each, close. It is the batch path used when judgments arrive
// from a file rather than live experts. Submission rejections surface
// exactly as they would on a live round.
func (e *DecisionEngine) Evaluate(
	ctx context.Context,
	committee domain.CommitteeConfig,
	submissions []Submission,
	dossier domain.DevilsAdvocateDossier,
) (domain.DecisionResult, error) {
	round, err := e.OpenRound(ctx, committee)
	if err != nil {
		return domain.DecisionResult{}, err
	}

	for _, s := range submissions {
		if err := round.Submit(s.Expert, s.Angle, s.Score); err != nil {
			return domain.DecisionResult{}, err
		}
	}

	return round.Close(ctx, dossier)
}

// evaluate is the shared pipeline behind Close and Evaluate: resolve
// weights, aggregate, estimate uncertainty, select the verdict, audit
// the dossier, persist.
func (e *DecisionEngine) evaluate(
	ctx context.Context,
	committee domain.CommitteeConfig,
	set domain.JudgmentSet,
	dossier domain.DevilsAdvocateDossier,
) (domain.DecisionResult, error) {
	effective := set.EffectiveSize()
	if effective == 0 {
		return domain.DecisionResult{}, fmt.Errorf("%w: no judgments collected for %s",
			domain.ErrNoJudgments, committee.DecisionID)
	}
	if effective < domain.MinCommitteeSize {
		return domain.DecisionResult{}, fmt.Errorf("%w: only %d of %d experts responded",
			domain.ErrInsufficientExperts, effective, len(committee.Experts))
	}

	resolved, comp, err := e.resolver.Resolve(ctx, committee, set)
	if err != nil {
		return domain.DecisionResult{}, err
	}

	byExpert := set.ByExpert()
	scores := make([]float64, len(resolved))
	weights := make([]float64, len(resolved))
	for i, rw := range resolved {
		scores[i] = compositeScore(byExpert[rw.ExpertID])
		weights[i] = rw.Effective
	}

	stats, err := e.aggregator.Aggregate(scores, weights)
	if err != nil {
		return domain.DecisionResult{}, fmt.Errorf("aggregation failed: %w", err)
	}

	uncertainty, err := e.estimator.Estimate(stats, comp)
	if err != nil {
		return domain.DecisionResult{}, fmt.Errorf("uncertainty estimation failed: %w", err)
	}

	verdict := e.policy.Decide(stats.EnhancedScore, uncertainty)
	gaps := e.policy.Review(dossier)

	aggregation := domain.AggregationResult{
		WeightedMean:           stats.WeightedMean,
		BiasedStdev:            stats.BiasedStdev,
		CorrectedStdev:         stats.CorrectedStdev,
		PenaltyCoefficient:     stats.PenaltyCoefficient,
		DivergencePenalty:      stats.DivergencePenalty,
		EnhancedScore:          stats.EnhancedScore,
		StandardError:          uncertainty.StandardError,
		CorrectedStandardError: uncertainty.CorrectedStandardError,
		TCritical:              uncertainty.TCritical,
		CILower:                uncertainty.Lower,
		CIUpper:                uncertainty.Upper,
		CIWidth:                uncertainty.Width,
		InformationSufficiency: uncertainty.InformationSufficiency,
		EffectiveN:             stats.SampleSize,
		Composition:            comp.Category,
		Winsorized:             stats.Winsorized,
	}
	if err := aggregation.Validate(); err != nil {
		return domain.DecisionResult{}, fmt.Errorf("aggregation produced inconsistent result: %w", err)
	}

	result := domain.DecisionResult{
		DecisionID:          committee.DecisionID,
		Aggregation:         aggregation,
		Verdict:             verdict,
		Provisional:         len(gaps) > 0,
		RequiredRemediation: gaps,
		Weights:             resolved,
		Missing:             set.Missing,
		Timestamp:           e.now(),
	}

	record := domain.DecisionRecord{
		DecisionID: committee.DecisionID,
		Committee:  committee,
		Judgments:  set.Judgments,
		Result:     result,
		CreatedAt:  e.now(),
	}
	if err := e.ledger.SaveRecord(ctx, record); err != nil {
		return domain.DecisionResult{}, fmt.Errorf("persisting decision record: %w", err)
	}

	return result, nil
}

// RecordOutcome stores the observed real-world outcome for a past
// decision and updates each positioned expert's accuracy window. The
// returned map shows which experts were judged correct.
func (e *DecisionEngine) RecordOutcome(
	ctx context.Context,
	decisionID string,
	outcome domain.Outcome,
) (map[domain.ExpertID]bool, error) {
	correctness, err := e.learner.RecordOutcome(ctx, decisionID, outcome)
	if err != nil {
		return nil, err
	}
	e.metrics.RecordCounter("outcomes_recorded_total", 1,
		map[string]string{"outcome": string(outcome)})
	return correctness, nil
}

// Finalize marks a decision's verdict as final. A provisional result
// refuses finalization until the devil's-advocate gaps are remediated
// or an explicit override is given.
func (e *DecisionEngine) Finalize(ctx context.Context, decisionID string, override bool) error {
	record, err := e.ledger.GetRecord(ctx, decisionID)
	if err != nil {
		return err
	}
	if record.Result.Provisional && !override {
		return fmt.Errorf("%w: %s", domain.ErrRemediationRequired,
			strings.Join(record.Result.RequiredRemediation, "; "))
	}
	return e.ledger.Finalize(ctx, decisionID)
}

// Record fetches one persisted decision record.
func (e *DecisionEngine) Record(ctx context.Context, decisionID string) (domain.DecisionRecord, error) {
	return e.ledger.GetRecord(ctx, decisionID)
}

// Records lists all persisted decision records, most recent first.
func (e *DecisionEngine) Records(ctx context.Context) ([]domain.DecisionRecord, error) {
	return e.ledger.ListRecords(ctx)
}

// compositeScore folds an expert's angle scores into one value, the
// plain mean over the angles they actually scored.
func compositeScore(judgments []domain.ExpertJudgment) float64 {
	var sum float64
	for _, j := range judgments {
		sum += float64(j.Score)
	}
	return sum / float64(len(judgments))
}

// rejectionReason maps a submission error to a low-cardinality metric
// label.
func rejectionReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidScore):
		return "invalid_score"
	case errors.Is(err, domain.ErrDuplicateSubmission):
		return "duplicate"
	case errors.Is(err, domain.ErrUnknownExpert):
		return "unknown_expert"
	case errors.Is(err, domain.ErrUnknownAngle):
		return "unknown_angle"
	case errors.Is(err, domain.ErrRoundClosed):
		return "round_closed"
	default:
		return "other"
	}
}

// noopMetrics discards all metrics.
type noopMetrics struct{}

func (noopMetrics) RecordLatency(string, time.Duration, map[string]string) {}
func (noopMetrics) RecordCounter(string, float64, map[string]string)       {}
func (noopMetrics) RecordGauge(string, float64, map[string]string)         {}
func (noopMetrics) RecordHistogram(string, float64, map[string]string)     {}

// noopObserver ignores round lifecycle events.
type noopObserver struct{}

func (noopObserver) PreRound(ctx context.Context, _ string, _ domain.CommitteeConfig) context.Context {
	return ctx
}
func (noopObserver) PostRound(context.Context, string, domain.DecisionResult, error) {}
