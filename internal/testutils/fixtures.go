// Package testutils provides shared fixtures and test doubles for
// exercising the decision pipeline: reference committees with known
// statistical outcomes, recording metrics and observer
// implementations, and failing store wedges for error paths.
package testutils

import (
	"time"

	"github.com/ahrav/go-conclave/internal/domain"
)

// WorkedExampleCommittee returns the four-expert committee whose
// aggregation arithmetic is known in closed form: resolved weights
// [0.9, 0.7, 0.7, 0.3] when paired with WorkedExampleProfile, four
// distinct domains so no correlation adjustment fires, and a fresh
// accuracy store so every expert is in cold start.
func WorkedExampleCommittee() domain.CommitteeConfig {
	return domain.CommitteeConfig{
		DecisionID: "adr-042",
		Level:      3,
		Experts: []domain.ExpertSeat{
			{ExpertID: "alice", Role: "architect", Domain: "platform"},
			{ExpertID: "bob", Role: "reviewer", Domain: "storage"},
			{ExpertID: "carol", Role: "security-lead", Domain: "edge"},
			{ExpertID: "dave", Role: "analyst", Domain: "data"},
		},
		Angles:            []domain.AngleID{"viability"},
		CollectionTimeout: 30 * time.Second,
	}
}

// WorkedExampleProfile grades the worked-example committee so the
// resolved base weights come out [0.9, 0.7, 0.7, 0.3] in expert-ID
// order (alice, bob, carol, dave).
func WorkedExampleProfile() domain.WeightProfile {
	profile := domain.NewWeightProfile()
	profile.DomainWeights[domain.RoleDomain{Role: "architect", Domain: "platform"}] = 0.9
	profile.DomainWeights[domain.RoleDomain{Role: "reviewer", Domain: "storage"}] = 0.7
	profile.DomainWeights[domain.RoleDomain{Role: "security-lead", Domain: "edge"}] = 0.7
	profile.DomainWeights[domain.RoleDomain{Role: "analyst", Domain: "data"}] = 0.3
	return profile
}

// WorkedExampleScores maps each worked-example expert to their
// reference score.
func WorkedExampleScores() map[domain.ExpertID]int {
	return map[domain.ExpertID]int{
		"alice": 4,
		"bob":   4,
		"carol": 3,
		"dave":  5,
	}
}

// PairCommittee returns a minimal two-expert committee sharing one
// angle, useful for boundary tests.
func PairCommittee() domain.CommitteeConfig {
	return domain.CommitteeConfig{
		DecisionID: "rfc-007",
		Level:      2,
		Experts: []domain.ExpertSeat{
			{ExpertID: "erin", Role: "operator", Domain: "run"},
			{ExpertID: "frank", Role: "builder", Domain: "build"},
		},
		Angles:            []domain.AngleID{"feasibility"},
		CollectionTimeout: 5 * time.Second,
	}
}

// CompleteDossier returns a devil's-advocate dossier that satisfies
// the default review thresholds.
func CompleteDossier() domain.DevilsAdvocateDossier {
	return domain.DevilsAdvocateDossier{
		Dissents: []domain.Dissent{
			{ExpertID: "carol", Summary: "threat model for the new edge ingress is unfinished"},
		},
		Risks: []string{
			"rollback requires a coordinated schema downgrade",
			"peak load estimates are extrapolated from one region",
			"on-call coverage gap during the migration window",
		},
		Alternatives: []string{
			"phase the rollout behind the existing gateway",
		},
	}
}

// Judgment builds an ExpertJudgment with a fixed timestamp for
// deterministic assertions.
func Judgment(expert domain.ExpertID, role domain.Role, dom domain.Domain, angle domain.AngleID, score int) domain.ExpertJudgment {
	return domain.ExpertJudgment{
		ExpertID:    expert,
		Role:        role,
		Domain:      dom,
		AngleID:     angle,
		Score:       score,
		SubmittedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}
