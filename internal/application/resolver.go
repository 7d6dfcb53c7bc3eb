package application

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/ahrav/go-conclave/internal/domain"
	"github.com/ahrav/go-conclave/internal/ports"
)

// ResolverConfig tunes weight resolution.
type ResolverConfig struct {
	// ColdStartMinimum is the number of recorded outcomes an expert
	// needs before accuracy starts adjusting their weight. Below it
	// the base weight stands unmodified.
	ColdStartMinimum int `yaml:"cold_start_minimum" json:"cold_start_minimum" validate:"gte=0"`

	// MaxConcurrentFetches bounds parallel accuracy-window reads.
	MaxConcurrentFetches int `yaml:"max_concurrent_fetches" json:"max_concurrent_fetches" validate:"gte=1,lte=64"`
}

// DefaultResolverConfig returns the standard resolver settings.
func DefaultResolverConfig() ResolverConfig {
	return ResolverConfig{
		ColdStartMinimum:     domain.DefaultColdStartMinimum,
		MaxConcurrentFetches: 5,
	}
}

// WeightResolver turns committee seats and their submitted judgments
// into the per-expert weights the aggregator consumes.
//
// Resolution runs in three stages per responding expert:
//
//  1. Base weight: the higher of the (role, domain) and best
//     submitted (role, angle) profile entries. The two tables grade
//     different kinds of authority and are never summed. Experts with
//     no profile entry fall back to the profile default; a missing
//     profile altogether falls back to a default-only profile rather
//     than failing the round.
//  2. Correlation adjustment, applied only when at least two experts
//     share a domain: w'_i = w_i / (1 + sum_{j!=i} rho_ij * w_j),
//     with rho looked up pairwise from the correlation table. Without
//     a table, a tiered fallback discounts each same-domain group
//     (x0.85 for a pair, x0.75 for three or more, x0.70 when the
//     group holds a committee majority) and the composition is
//     assumed mixed.
//  3. Accuracy adjustment: the correlated weight is scaled by
//     (correct + capacity/2) / (1.5 * capacity) over the expert's
//     sliding outcome window. Experts still in cold start keep the
//     correlated weight unmodified.
//
// Accuracy windows are fetched concurrently, bounded by
// MaxConcurrentFetches.
type WeightResolver struct {
	weights      ports.WeightSource
	accuracy     ports.AccuracyStore
	correlations *domain.CorrelationTable
	config       ResolverConfig
}

// NewWeightResolver creates a resolver over the given stores.
// A nil correlation table selects the tiered fallback adjustment.
func NewWeightResolver(
	weights ports.WeightSource,
	accuracy ports.AccuracyStore,
	correlations *domain.CorrelationTable,
	config ResolverConfig,
) (*WeightResolver, error) {
	if weights == nil {
		return nil, fmt.Errorf("weight source must not be nil")
	}
	if accuracy == nil {
		return nil, fmt.Errorf("accuracy store must not be nil")
	}
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &WeightResolver{
		weights:      weights,
		accuracy:     accuracy,
		correlations: correlations,
		config:       config,
	}, nil
}

// Resolve computes the effective weight for every responding expert,
// ordered by expert ID, together with the committee's composition
// profile. The returned weights carry the full audit trail of how
// each stage changed them.
func (r *WeightResolver) Resolve(
	ctx context.Context,
	committee domain.CommitteeConfig,
	set domain.JudgmentSet,
) ([]domain.ResolvedWeight, domain.CompositionProfile, error) {
	byExpert := set.ByExpert()
	if len(byExpert) == 0 {
		return nil, domain.CompositionProfile{}, domain.ErrNoJudgments
	}

	profile, err := r.loadProfile(ctx)
	if err != nil {
		return nil, domain.CompositionProfile{}, err
	}

	ids := make([]domain.ExpertID, 0, len(byExpert))
	for id := range byExpert {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	resolved := make([]domain.ResolvedWeight, len(ids))
	domains := make([]domain.Domain, len(ids))
	for i, id := range ids {
		judgments := byExpert[id]
		role, dom := judgments[0].Role, judgments[0].Domain
		domains[i] = dom

		base, miss := baseWeight(profile, role, dom, judgments)
		resolved[i] = domain.ResolvedWeight{
			ExpertID:    id,
			Base:        base,
			ProfileMiss: miss,
			Correlated:  base,
			Effective:   base,
		}
	}

	comp := r.adjustForCorrelation(resolved, domains)

	if err := r.adjustForAccuracy(ctx, resolved); err != nil {
		return nil, domain.CompositionProfile{}, err
	}

	return resolved, comp, nil
}

// loadProfile fetches the weight profile, substituting a default-only
// profile when none has been configured. Only infrastructure failures
// propagate.
func (r *WeightResolver) loadProfile(ctx context.Context) (domain.WeightProfile, error) {
	profile, err := r.weights.Profile(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) {
			return domain.NewWeightProfile(), nil
		}
		return domain.WeightProfile{}, fmt.Errorf("loading weight profile: %w", err)
	}
	return profile, nil
}

// baseWeight resolves an expert's starting weight from the profile:
// the higher of the domain-authority entry and the best entry among
// the angles the expert actually scored.
func baseWeight(
	profile domain.WeightProfile,
	role domain.Role,
	dom domain.Domain,
	judgments []domain.ExpertJudgment,
) (weight float64, profileMiss bool) {
	best, found := profile.DomainWeight(role, dom)

	for _, j := range judgments {
		if w, ok := profile.AngleWeight(role, j.AngleID); ok {
			if !found || w > best {
				best = w
			}
			found = true
		}
	}

	if !found {
		return profile.Default, true
	}
	return best, false
}

// adjustForCorrelation dampens the weights of domain-correlated
// experts and derives the committee's composition profile. The
// adjustment only activates when at least two experts share a domain.
func (r *WeightResolver) adjustForCorrelation(
	resolved []domain.ResolvedWeight,
	domains []domain.Domain,
) domain.CompositionProfile {
	n := len(resolved)

	groups := make(map[domain.Domain]int, n)
	largest := 0
	for _, d := range domains {
		groups[d]++
		if groups[d] > largest {
			largest = groups[d]
		}
	}

	category := domain.CompositionMixed
	switch {
	case n >= domain.MinCommitteeSize && largest == n:
		category = domain.CompositionAllSame
	case 2*largest > n:
		category = domain.CompositionMajoritySame
	}

	if r.correlations == nil {
		r.tieredFallback(resolved, domains, groups, n)
		// Without pairwise data the composition is assumed mixed.
		return domain.CompositionProfile{Category: domain.CompositionMixed}
	}

	var rhoSum float64
	pairs := 0
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			rhoSum += r.correlations.Rho(domains[i], domains[j])
			pairs++
		}
	}

	comp := domain.CompositionProfile{Category: category}
	if pairs > 0 {
		comp.MeanRho = rhoSum / float64(pairs)
		comp.PairwiseKnown = true
	}

	if largest >= 2 {
		bases := make([]float64, n)
		for i := range resolved {
			bases[i] = resolved[i].Base
		}
		for i := range resolved {
			var sum float64
			for j := range resolved {
				if j == i {
					continue
				}
				sum += r.correlations.Rho(domains[i], domains[j]) * bases[j]
			}
			resolved[i].Correlated = bases[i] / (1 + sum)
			resolved[i].Effective = resolved[i].Correlated
		}
	}

	return comp
}

// tieredFallback applies the per-group discount used when pairwise
// correlation data is unavailable. Singleton domains keep their base
// weight.
func (r *WeightResolver) tieredFallback(
	resolved []domain.ResolvedWeight,
	domains []domain.Domain,
	groups map[domain.Domain]int,
	n int,
) {
	for i := range resolved {
		size := groups[domains[i]]
		var factor float64
		switch {
		case 2*size > n && size >= 2:
			factor = 0.70
		case size >= 3:
			factor = 0.75
		case size == 2:
			factor = 0.85
		default:
			continue
		}
		resolved[i].Correlated = resolved[i].Base * factor
		resolved[i].Effective = resolved[i].Correlated
	}
}

// adjustForAccuracy scales each correlated weight by the expert's
// recent track record. Windows are fetched concurrently, each
// goroutine writing only its own slice element.
func (r *WeightResolver) adjustForAccuracy(ctx context.Context, resolved []domain.ResolvedWeight) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.config.MaxConcurrentFetches)

	for i := range resolved {
		g.Go(func() error {
			window, err := r.accuracy.LastOutcomes(ctx, resolved[i].ExpertID)
			if err != nil {
				return fmt.Errorf("loading accuracy window for %s: %w", resolved[i].ExpertID, err)
			}

			rw := &resolved[i]
			rw.CorrectInWindow = window.CorrectCount()
			rw.WindowSize = window.Size()
			rw.ColdStart = window.ColdStart(r.config.ColdStartMinimum)
			if rw.ColdStart {
				return nil
			}

			capacity := float64(window.Capacity())
			factor := (float64(window.CorrectCount()) + capacity/2) / (1.5 * capacity)
			rw.Effective = rw.Correlated * factor
			return nil
		})
	}

	return g.Wait()
}
