// Package application orchestrates decision rounds: collecting expert
// judgments, resolving weights, running the statistical pipeline, and
// feeding recorded outcomes back into future weights.
// The package depends on domain models and ports only; concrete
// statistical components and stores are injected by callers.
package application

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ahrav/go-conclave/internal/domain"
)

// submissionKey identifies one judgment slot within a round.
type submissionKey struct {
	expert domain.ExpertID
	angle  domain.AngleID
}

// ScoreCollector gathers expert judgments for a single decision round.
//
// Experts submit independently and concurrently; the collector accepts
// at most one judgment per (expert, angle) slot and rejects duplicates
// atomically. Submitted scores stay invisible until Close: nothing on
// the collector exposes another expert's judgment while the round is
// open, which is what keeps the scoring anchor-free.
//
// Await implements the quorum barrier: it returns once every
// configured slot is filled or the collection timeout elapses,
// whichever comes first. A timeout is not an error; the round simply
// proceeds with the judgments it has.
//
// ScoreCollector is safe for concurrent use.
type ScoreCollector struct {
	committee domain.CommitteeConfig

	mu        sync.Mutex
	judgments map[submissionKey]domain.ExpertJudgment
	closed    bool

	// expected is the total slot count, len(experts) * len(angles).
	expected int
	// done is closed exactly once, when the last slot fills.
	done chan struct{}

	now func() time.Time
}

// NewScoreCollector creates a collector for one decision round.
// The committee is assumed to be validated by the caller.
func NewScoreCollector(committee domain.CommitteeConfig) *ScoreCollector {
	return &ScoreCollector{
		committee: committee,
		judgments: make(map[submissionKey]domain.ExpertJudgment),
		expected:  len(committee.Experts) * len(committee.Angles),
		done:      make(chan struct{}),
		now:       time.Now,
	}
}

// Submit records one expert's score for one angle. It rejects scores
// outside the ordinal scale, submissions from experts or for angles
// not in the committee, second submissions for an already-filled slot,
// and any submission after the round closed. All rejections are
// wrapped in a SubmissionError naming the offending slot.
func (c *ScoreCollector) Submit(expertID domain.ExpertID, angleID domain.AngleID, score int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return domain.NewSubmissionError(expertID, angleID, domain.ErrRoundClosed)
	}

	seat, ok := c.committee.Seat(expertID)
	if !ok {
		return domain.NewSubmissionError(expertID, angleID, domain.ErrUnknownExpert)
	}
	if !c.committee.HasAngle(angleID) {
		return domain.NewSubmissionError(expertID, angleID, domain.ErrUnknownAngle)
	}
	if score < domain.MinScore || score > domain.MaxScore {
		return domain.NewSubmissionError(expertID, angleID,
			fmt.Errorf("%w: %d outside [%d, %d]", domain.ErrInvalidScore, score, domain.MinScore, domain.MaxScore))
	}

	key := submissionKey{expert: expertID, angle: angleID}
	if _, exists := c.judgments[key]; exists {
		return domain.NewSubmissionError(expertID, angleID, domain.ErrDuplicateSubmission)
	}

	c.judgments[key] = domain.ExpertJudgment{
		ExpertID:    expertID,
		Role:        seat.Role,
		Domain:      seat.Domain,
		AngleID:     angleID,
		Score:       score,
		SubmittedAt: c.now(),
	}

	if len(c.judgments) == c.expected {
		close(c.done)
	}

	return nil
}

// Await blocks until every slot is filled, the committee's collection
// timeout elapses, or ctx is done. Only context cancellation is an
// error; a timeout means the round proceeds with partial judgments.
func (c *ScoreCollector) Await(ctx context.Context) error {
	c.mu.Lock()
	complete := len(c.judgments) == c.expected
	c.mu.Unlock()
	if complete {
		return nil
	}

	// A zero timeout leaves the channel nil, blocking that arm forever.
	var timeout <-chan time.Time
	if d := c.committee.CollectionTimeout; d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-c.done:
		return nil
	case <-timeout:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Progress reports how many slots are filled out of the total.
// It deliberately exposes counts only; scores remain sealed until
// Close.
func (c *ScoreCollector) Progress() (submitted, expected int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.judgments), c.expected
}

// Close seals the round and returns every collected judgment together
// with the experts who never submitted anything. Judgments are ordered
// by expert then angle so downstream processing is deterministic.
// A second Close returns ErrRoundClosed.
func (c *ScoreCollector) Close() (domain.JudgmentSet, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return domain.JudgmentSet{}, domain.ErrRoundClosed
	}
	c.closed = true

	set := domain.JudgmentSet{
		Judgments: make([]domain.ExpertJudgment, 0, len(c.judgments)),
	}

	responded := make(map[domain.ExpertID]bool, len(c.committee.Experts))
	for _, seat := range c.committee.Experts {
		for _, angle := range c.committee.Angles {
			if j, ok := c.judgments[submissionKey{expert: seat.ExpertID, angle: angle}]; ok {
				set.Judgments = append(set.Judgments, j)
				responded[seat.ExpertID] = true
			}
		}
	}

	for _, seat := range c.committee.Experts {
		if !responded[seat.ExpertID] {
			set.Missing = append(set.Missing, seat.ExpertID)
		}
	}

	return set, nil
}
