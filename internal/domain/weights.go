package domain

// DefaultWeight is the fallback applied when the weight profile has no
// entry for a (role, domain) or (role, angle) pair. Profiles are
// sparse; most cells resolve here.
const DefaultWeight = 0.2

// Named weight tiers. Profile cells reference tiers rather than raw
// numbers so that recalibrating a tier moves every cell graded at it.
const (
	PrimaryTierWeight   = 0.9
	SecondaryTierWeight = 0.6
)

// RoleDomain keys the domain-authority half of a weight profile.
type RoleDomain struct {
	Role   Role   `json:"role"`
	Domain Domain `json:"domain"`
}

// RoleAngle keys the angle-expertise half of a weight profile.
type RoleAngle struct {
	Role  Role    `json:"role"`
	Angle AngleID `json:"angle"`
}

// WeightProfile is a sparse role-by-domain and role-by-angle weight
// matrix. The full weight space is hundreds of cells with only a small
// fraction graded above the default, so only non-default cells are
// stored. The two maps serve different decision types (domain
// authority versus angle expertise) and are never summed.
type WeightProfile struct {
	// DomainWeights maps (role, domain) to a base weight in [0,1].
	DomainWeights map[RoleDomain]float64 `json:"domain_weights,omitempty"`

	// AngleWeights maps (role, angle) to a base weight in [0,1].
	AngleWeights map[RoleAngle]float64 `json:"angle_weights,omitempty"`

	// Default resolves any cell absent from both maps.
	Default float64 `json:"default"`
}

// NewWeightProfile returns an empty profile resolving every cell to
// DefaultWeight.
func NewWeightProfile() WeightProfile {
	return WeightProfile{
		DomainWeights: make(map[RoleDomain]float64),
		AngleWeights:  make(map[RoleAngle]float64),
		Default:       DefaultWeight,
	}
}

// DomainWeight resolves the base weight for a role judging in a
// domain. The second return reports whether an explicit cell existed;
// callers treat a miss as recovered, not an error.
func (p WeightProfile) DomainWeight(role Role, domain Domain) (float64, bool) {
	if w, ok := p.DomainWeights[RoleDomain{Role: role, Domain: domain}]; ok {
		return w, true
	}
	return p.Default, false
}

// AngleWeight resolves the base weight for a role judging an angle.
func (p WeightProfile) AngleWeight(role Role, angle AngleID) (float64, bool) {
	if w, ok := p.AngleWeights[RoleAngle{Role: role, Angle: angle}]; ok {
		return w, true
	}
	return p.Default, false
}

// Clone returns a deep copy so administrative updates never race
// concurrent readers holding an earlier snapshot.
func (p WeightProfile) Clone() WeightProfile {
	out := WeightProfile{
		DomainWeights: make(map[RoleDomain]float64, len(p.DomainWeights)),
		AngleWeights:  make(map[RoleAngle]float64, len(p.AngleWeights)),
		Default:       p.Default,
	}
	for k, v := range p.DomainWeights {
		out.DomainWeights[k] = v
	}
	for k, v := range p.AngleWeights {
		out.AngleWeights[k] = v
	}
	return out
}

// Pairwise rater-correlation coefficients by domain relationship.
// Raters sharing a domain see the same evidence and training, so their
// errors correlate most strongly.
const (
	SameDomainRho      = 0.35
	AdjacentDomainRho  = 0.15
	DifferentDomainRho = 0.05
)

// CorrelationTable resolves the correlation coefficient between two
// raters from their domains. Adjacency is explicit configuration, not
// inferred; a nil table means no correlation data is available and
// callers fall back to the mixed-domain default.
type CorrelationTable struct {
	// Same is the coefficient for two raters in the same domain.
	Same float64 `json:"same"`

	// Adjacent is the coefficient for raters in adjacent domains.
	Adjacent float64 `json:"adjacent"`

	// Different is the coefficient for unrelated domains.
	Different float64 `json:"different"`

	// Adjacency records which domain pairs count as adjacent.
	// The relation is symmetric; entries are stored both ways.
	Adjacency map[Domain]map[Domain]struct{} `json:"-"`
}

// NewCorrelationTable returns a table with the standard coefficients
// and no adjacency entries.
func NewCorrelationTable() *CorrelationTable {
	return &CorrelationTable{
		Same:      SameDomainRho,
		Adjacent:  AdjacentDomainRho,
		Different: DifferentDomainRho,
		Adjacency: make(map[Domain]map[Domain]struct{}),
	}
}

// AddAdjacency marks two domains as adjacent in both directions.
func (t *CorrelationTable) AddAdjacency(a, b Domain) {
	if t.Adjacency == nil {
		t.Adjacency = make(map[Domain]map[Domain]struct{})
	}
	if t.Adjacency[a] == nil {
		t.Adjacency[a] = make(map[Domain]struct{})
	}
	if t.Adjacency[b] == nil {
		t.Adjacency[b] = make(map[Domain]struct{})
	}
	t.Adjacency[a][b] = struct{}{}
	t.Adjacency[b][a] = struct{}{}
}

// Rho returns the correlation coefficient between raters in the two
// given domains.
func (t *CorrelationTable) Rho(a, b Domain) float64 {
	if a == b {
		return t.Same
	}
	if peers, ok := t.Adjacency[a]; ok {
		if _, adj := peers[b]; adj {
			return t.Adjacent
		}
	}
	return t.Different
}

// ResolvedWeight traces one expert's weight through each adjustment
// stage so callers can audit how the final weight was produced.
type ResolvedWeight struct {
	// ExpertID identifies the rater this weight applies to.
	ExpertID ExpertID `json:"expert_id"`

	// Base is the profile lookup result before any adjustment.
	Base float64 `json:"base"`

	// ProfileMiss is true when no explicit profile cell matched and
	// the default weight was used.
	ProfileMiss bool `json:"profile_miss,omitempty"`

	// Correlated is the weight after the shared-domain redundancy
	// discount.
	Correlated float64 `json:"correlated"`

	// Effective is the final weight after dynamic accuracy
	// adjustment. This is the w used by aggregation.
	Effective float64 `json:"effective"`

	// ColdStart is true when the expert had too few recorded
	// decisions for accuracy adjustment to apply.
	ColdStart bool `json:"cold_start,omitempty"`

	// CorrectInWindow is the number of correct calls in the expert's
	// sliding accuracy window at resolution time.
	CorrectInWindow int `json:"correct_in_window"`

	// WindowSize is how many outcomes the window held.
	WindowSize int `json:"window_size"`
}
