package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/go-conclave/internal/domain"
	"github.com/ahrav/go-conclave/internal/ports"
)

var _ ports.RoundObserver = (*OTelRoundObserver)(nil)

// OTelRoundObserver implements observability for decision rounds
// using OpenTelemetry tracing. It opens a span per round, carries it
// through the context the engine threads from PreRound to PostRound,
// and annotates it with the committee shape and the statistical
// outcome. The span lives in the returned context rather than on the
// observer, so one observer instance serves concurrent rounds.
type OTelRoundObserver struct {
	tracer trace.Tracer
}

// NewOTelRoundObserver creates a new OpenTelemetry round observer.
func NewOTelRoundObserver() *OTelRoundObserver {
	return &OTelRoundObserver{
		tracer: otel.Tracer("decision-engine"),
	}
}

// PreRound implements the RoundObserver interface. It starts a span
// for the round and records the committee configuration.
func (o *OTelRoundObserver) PreRound(ctx context.Context, decisionID string, committee domain.CommitteeConfig) context.Context {
	ctx, span := o.tracer.Start(ctx, "DecisionEngine.Round")
	span.SetAttributes(
		attribute.String("decision.id", decisionID),
		attribute.Int("committee.size", len(committee.Experts)),
		attribute.Int("committee.level", committee.Level),
		attribute.Int("committee.angles", len(committee.Angles)),
	)
	return ctx
}

// PostRound implements the RoundObserver interface. It finalizes the
// round span with the verdict and the interval statistics, recording
// events for partial quorum, winsorization, and provisional results.
func (o *OTelRoundObserver) PostRound(ctx context.Context, decisionID string, result domain.DecisionResult, err error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return
	}

	span.SetAttributes(
		attribute.String("decision.verdict", string(result.Verdict)),
		attribute.Bool("decision.provisional", result.Provisional),
		attribute.Float64("decision.enhanced_score", result.Aggregation.EnhancedScore),
		attribute.Float64("decision.ci_width", result.Aggregation.CIWidth),
		attribute.Float64("decision.information_sufficiency", result.Aggregation.InformationSufficiency),
		attribute.Int("decision.effective_n", result.Aggregation.EffectiveN),
		attribute.String("decision.composition", string(result.Aggregation.Composition)),
	)

	if len(result.Missing) > 0 {
		span.AddEvent("round.partial_quorum", trace.WithAttributes(
			attribute.Int("missing_experts", len(result.Missing)),
		))
	}
	if result.Aggregation.Winsorized {
		span.AddEvent("round.winsorized")
	}
	if result.Provisional {
		span.AddEvent("round.provisional", trace.WithAttributes(
			attribute.Int("remediation_items", len(result.RequiredRemediation)),
		))
	}

	span.SetStatus(codes.Ok, "decision round completed")
}
