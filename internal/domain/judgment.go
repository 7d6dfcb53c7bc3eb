// Package domain contains pure, dependency-free domain models for
// expert-committee decision aggregation. Types here carry no behavior
// beyond validation and simple derivations; orchestration lives in the
// application layer and statistical machinery in infrastructure.
package domain

import (
	"fmt"
	"time"
)

// Score bounds for a single expert judgment. Judgments are ordinal:
// 1 (strong concern) through 5 (strong endorsement).
const (
	MinScore = 1
	MaxScore = 5
)

// MinCommitteeSize is the smallest committee that can produce a decision.
// A single rater has no disagreement to measure, so the standard
// deviation is undefined and aggregation must be rejected upstream.
const MinCommitteeSize = 2

// Committee levels bound how consequential a decision round is.
// Level is descriptive metadata carried through to the decision record.
const (
	MinCommitteeLevel = 1
	MaxCommitteeLevel = 5
)

// ExpertID uniquely identifies a rater across decision rounds.
type ExpertID string

// Role names the professional capacity an expert holds (for example
// "architect" or "reviewer"). Roles key into the weight profile.
type Role string

// Domain names a broad problem area (for example "build", "run",
// "secure") used to group experts and derive rater correlation.
type Domain string

// AngleID names an evaluation dimension a decision is scored against
// (for example "correctness" or "security").
type AngleID string

// ExpertSeat describes one expert's membership in a committee:
// who they are and the capacity they judge in.
type ExpertSeat struct {
	// ExpertID uniquely identifies the seated expert.
	ExpertID ExpertID `json:"expert_id"`

	// Role is the capacity this expert judges in for this round.
	Role Role `json:"role"`

	// Domain is the problem area this expert represents.
	Domain Domain `json:"domain"`
}

// CommitteeConfig describes one decision round: who judges, along
// which angles, and how long collection may run. It is produced by an
// external composition process and is immutable once scoring starts.
type CommitteeConfig struct {
	// DecisionID uniquely identifies the decision round.
	DecisionID string `json:"decision_id"`

	// Level grades how consequential the decision is (1-5).
	Level int `json:"level"`

	// Experts lists the seated committee members. At least two are
	// required; duplicate expert IDs are rejected.
	Experts []ExpertSeat `json:"experts"`

	// Angles lists the active evaluation dimensions for this round.
	Angles []AngleID `json:"angles"`

	// CollectionTimeout bounds how long the round waits for scores
	// before aggregating with whatever has been submitted.
	// Zero means wait indefinitely (until all scores arrive or the
	// caller closes the round).
	CollectionTimeout time.Duration `json:"collection_timeout,omitempty"`
}

// Validate checks the structural invariants of a committee
// configuration. It returns ErrInsufficientExperts when fewer than
// MinCommitteeSize experts are seated, and ErrInvalidConfiguration for
// other defects (no angles, duplicate seats, out-of-range level).
func (c CommitteeConfig) Validate() error {
	if c.DecisionID == "" {
		return fmt.Errorf("%w: decision ID is required", ErrInvalidConfiguration)
	}
	if len(c.Experts) < MinCommitteeSize {
		return fmt.Errorf("%w: committee has %d expert(s), need at least %d",
			ErrInsufficientExperts, len(c.Experts), MinCommitteeSize)
	}
	if len(c.Angles) == 0 {
		return fmt.Errorf("%w: committee has no active angles", ErrInvalidConfiguration)
	}
	if c.Level < MinCommitteeLevel || c.Level > MaxCommitteeLevel {
		return fmt.Errorf("%w: committee level %d outside [%d,%d]",
			ErrInvalidConfiguration, c.Level, MinCommitteeLevel, MaxCommitteeLevel)
	}

	seen := make(map[ExpertID]struct{}, len(c.Experts))
	for _, seat := range c.Experts {
		if seat.ExpertID == "" {
			return fmt.Errorf("%w: expert seat with empty ID", ErrInvalidConfiguration)
		}
		if _, dup := seen[seat.ExpertID]; dup {
			return fmt.Errorf("%w: expert %q seated twice", ErrInvalidConfiguration, seat.ExpertID)
		}
		seen[seat.ExpertID] = struct{}{}
	}

	angles := make(map[AngleID]struct{}, len(c.Angles))
	for _, a := range c.Angles {
		if a == "" {
			return fmt.Errorf("%w: empty angle ID", ErrInvalidConfiguration)
		}
		if _, dup := angles[a]; dup {
			return fmt.Errorf("%w: angle %q listed twice", ErrInvalidConfiguration, a)
		}
		angles[a] = struct{}{}
	}
	return nil
}

// Seat returns the seat for the given expert and whether the expert
// is a member of this committee.
func (c CommitteeConfig) Seat(id ExpertID) (ExpertSeat, bool) {
	for _, seat := range c.Experts {
		if seat.ExpertID == id {
			return seat, true
		}
	}
	return ExpertSeat{}, false
}

// HasAngle reports whether the given angle is active for this round.
func (c CommitteeConfig) HasAngle(id AngleID) bool {
	for _, a := range c.Angles {
		if a == id {
			return true
		}
	}
	return false
}

// ExpertJudgment is one expert's score for one angle in one decision.
// At most one judgment may exist per (expert, angle, decision).
type ExpertJudgment struct {
	// ExpertID identifies the rater who submitted the score.
	ExpertID ExpertID `json:"expert_id"`

	// Role is the capacity the expert judged in, copied from the seat.
	Role Role `json:"role"`

	// Domain is the expert's problem area, copied from the seat.
	Domain Domain `json:"domain"`

	// AngleID is the evaluation dimension this score applies to.
	AngleID AngleID `json:"angle_id"`

	// Score is the ordinal judgment, MinScore through MaxScore.
	Score int `json:"score"`

	// SubmittedAt records when the score entered the collector.
	SubmittedAt time.Time `json:"submitted_at"`
}

// Validate checks that the judgment's score is within the ordinal
// scale and its identifiers are present.
func (j ExpertJudgment) Validate() error {
	if j.ExpertID == "" {
		return fmt.Errorf("%w: judgment with empty expert ID", ErrInvalidConfiguration)
	}
	if j.AngleID == "" {
		return fmt.Errorf("%w: judgment with empty angle ID", ErrInvalidConfiguration)
	}
	if j.Score < MinScore || j.Score > MaxScore {
		return fmt.Errorf("%w: score %d outside [%d,%d]", ErrInvalidScore, j.Score, MinScore, MaxScore)
	}
	return nil
}

// JudgmentSet is the complete collection output for one round.
type JudgmentSet struct {
	// Judgments holds every accepted submission, in submission order.
	Judgments []ExpertJudgment `json:"judgments"`

	// Missing lists configured experts who submitted nothing before
	// the round closed. Partial collection is allowed; it lowers the
	// effective committee size.
	Missing []ExpertID `json:"missing,omitempty"`
}

// ByExpert groups judgments by rater, preserving submission order
// within each group.
func (s JudgmentSet) ByExpert() map[ExpertID][]ExpertJudgment {
	grouped := make(map[ExpertID][]ExpertJudgment)
	for _, j := range s.Judgments {
		grouped[j.ExpertID] = append(grouped[j.ExpertID], j)
	}
	return grouped
}

// EffectiveSize returns the number of distinct experts who submitted
// at least one judgment. This is the n used by every small-sample
// correction downstream.
func (s JudgmentSet) EffectiveSize() int {
	seen := make(map[ExpertID]struct{})
	for _, j := range s.Judgments {
		seen[j.ExpertID] = struct{}{}
	}
	return len(seen)
}
