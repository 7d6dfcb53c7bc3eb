package application

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/go-playground/validator/v10"
	"golang.org/x/text/cases"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-conclave/internal/domain"
)

// RoundSetup is a fully resolved committee file: the validated
// committee, its weight profile, and the correlation table when one
// was configured.
type RoundSetup struct {
	Committee    domain.CommitteeConfig
	Weights      domain.WeightProfile
	Correlations *domain.CorrelationTable
}

// RoundLoader parses and validates the YAML documents that configure
// decision rounds, transforming declarative committee and submission
// files into domain types.
//
// Parsing is strict: unknown fields fail the load instead of being
// silently dropped. Identifiers are canonicalized with Unicode case
// folding, so "Architect" and "architect" name the same role; a
// committee file that distinguishes seats only by case is rejected as
// a duplicate. References to unknown tiers, roles, domains, or angles
// fail with an edit-distance suggestion for the likely intended name.
type RoundLoader struct {
	// validator enforces struct tags plus the identifier rule for
	// fields that pass through canonicalization.
	validator *validator.Validate
}

// NewRoundLoader creates a loader with the custom validation rules
// registered.
func NewRoundLoader() (*RoundLoader, error) {
	v := validator.New()
	if err := registerCustomValidators(v); err != nil {
		return nil, fmt.Errorf("failed to register validators: %w", err)
	}
	return &RoundLoader{validator: v}, nil
}

// LoadCommitteeFromFile reads, parses, and resolves a committee file.
func (rl *RoundLoader) LoadCommitteeFromFile(path string) (*RoundSetup, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return rl.LoadCommittee(bytes.NewReader(data))
}

// LoadCommittee parses and resolves a committee file from a reader.
func (rl *RoundLoader) LoadCommittee(r io.Reader) (*RoundSetup, error) {
	var file CommitteeFile
	if err := strictDecode(r, &file); err != nil {
		return nil, err
	}
	if err := rl.validator.Struct(file); err != nil {
		return nil, fmt.Errorf("struct validation failed: %w", err)
	}
	return rl.resolve(&file)
}

// LoadSubmissionsFromFile reads and parses a submissions file,
// returning the judgments to submit and the accompanying dossier.
func (rl *RoundLoader) LoadSubmissionsFromFile(path string) ([]Submission, domain.DevilsAdvocateDossier, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, domain.DevilsAdvocateDossier{}, fmt.Errorf("failed to read file: %w", err)
	}
	return rl.LoadSubmissions(bytes.NewReader(data))
}

// LoadSubmissions parses a submissions file from a reader.
func (rl *RoundLoader) LoadSubmissions(r io.Reader) ([]Submission, domain.DevilsAdvocateDossier, error) {
	var file SubmissionsFile
	if err := strictDecode(r, &file); err != nil {
		return nil, domain.DevilsAdvocateDossier{}, err
	}
	if err := rl.validator.Struct(file); err != nil {
		return nil, domain.DevilsAdvocateDossier{}, fmt.Errorf("struct validation failed: %w", err)
	}

	submissions := make([]Submission, len(file.Judgments))
	for i, j := range file.Judgments {
		submissions[i] = Submission{
			Expert: domain.ExpertID(canonical(string(j.Expert))),
			Angle:  domain.AngleID(canonical(string(j.Angle))),
			Score:  j.Score,
		}
	}

	dossier := domain.DevilsAdvocateDossier{
		Risks:        file.Dossier.Risks,
		Alternatives: file.Dossier.Alternatives,
	}
	for _, d := range file.Dossier.Dissents {
		dossier.Dissents = append(dossier.Dissents, domain.Dissent{
			ExpertID: domain.ExpertID(canonical(d.Expert)),
			Summary:  d.Summary,
		})
	}

	return submissions, dossier, nil
}

// strictDecode decodes YAML with unknown fields rejected.
func strictDecode(r io.Reader, out any) error {
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("YAML decode failed: %w", err)
	}
	return nil
}

// canonical normalizes an identifier: trimmed and Unicode case
// folded.
func canonical(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}

// resolve converts a validated committee file into domain types,
// accumulating every semantic error so a broken file is reported in
// one pass.
func (rl *RoundLoader) resolve(file *CommitteeFile) (*RoundSetup, error) {
	committee := domain.CommitteeConfig{
		DecisionID:        file.Decision.ID,
		Level:             file.Decision.Level,
		CollectionTimeout: file.Decision.Timeout.Std(),
	}

	roles := make(map[string]struct{})
	domains := make(map[string]struct{})
	angles := make(map[string]struct{})

	for _, e := range file.Experts {
		seat := domain.ExpertSeat{
			ExpertID: domain.ExpertID(canonical(e.ID)),
			Role:     domain.Role(canonical(e.Role)),
			Domain:   domain.Domain(canonical(e.Domain)),
		}
		committee.Experts = append(committee.Experts, seat)
		roles[string(seat.Role)] = struct{}{}
		domains[string(seat.Domain)] = struct{}{}
	}
	for _, a := range file.Angles {
		angle := domain.AngleID(canonical(a))
		committee.Angles = append(committee.Angles, angle)
		angles[string(angle)] = struct{}{}
	}

	if err := committee.Validate(); err != nil {
		return nil, err
	}

	ve := domain.NewValidationError("committee file")

	profile := rl.resolveWeights(&file.Weights, roles, domains, angles, ve)

	var table *domain.CorrelationTable
	if file.Correlation != nil {
		table = rl.resolveCorrelation(file.Correlation, domains, ve)
	}

	if ve.HasErrors() {
		return nil, ve
	}

	return &RoundSetup{Committee: committee, Weights: profile, Correlations: table}, nil
}

// resolveWeights builds the sparse weight profile from the weights
// section, resolving named tiers and checking every reference against
// the committee.
func (rl *RoundLoader) resolveWeights(
	ws *WeightsSection,
	roles, domains, angles map[string]struct{},
	ve *domain.ValidationError,
) domain.WeightProfile {
	profile := domain.NewWeightProfile()
	if ws.Default > 0 {
		profile.Default = ws.Default
	}

	tiers := make(map[string]float64, len(ws.Tiers))
	tierNames := make([]string, 0, len(ws.Tiers))
	for name, w := range ws.Tiers {
		folded := canonical(name)
		tiers[folded] = w
		tierNames = append(tierNames, folded)
	}

	for _, entry := range ws.Domains {
		where := fmt.Sprintf("weights.domains[%s/%s]", entry.Role, entry.Domain)
		role, dom := canonical(entry.Role), canonical(entry.Domain)
		rl.checkRef(ve, where, "role", role, roles)
		rl.checkRef(ve, where, "domain", dom, domains)

		w, err := resolveTier(entry.Tier, entry.Weight, tiers, tierNames)
		if err != nil {
			ve.AddError(fmt.Sprintf("%s: %s", where, err))
			continue
		}
		profile.DomainWeights[domain.RoleDomain{Role: domain.Role(role), Domain: domain.Domain(dom)}] = w
	}

	for _, entry := range ws.Angles {
		where := fmt.Sprintf("weights.angles[%s/%s]", entry.Role, entry.Angle)
		role, angle := canonical(entry.Role), canonical(entry.Angle)
		rl.checkRef(ve, where, "role", role, roles)
		rl.checkRef(ve, where, "angle", angle, angles)

		w, err := resolveTier(entry.Tier, entry.Weight, tiers, tierNames)
		if err != nil {
			ve.AddError(fmt.Sprintf("%s: %s", where, err))
			continue
		}
		profile.AngleWeights[domain.RoleAngle{Role: domain.Role(role), Angle: domain.AngleID(angle)}] = w
	}

	return profile
}

// resolveCorrelation builds the correlation table from its section,
// checking adjacency pairs against the committee's domains.
func (rl *RoundLoader) resolveCorrelation(
	cs *CorrelationSection,
	domains map[string]struct{},
	ve *domain.ValidationError,
) *domain.CorrelationTable {
	table := domain.NewCorrelationTable()
	if cs.Same != nil {
		table.Same = *cs.Same
	}
	if cs.Adjacent != nil {
		table.Adjacent = *cs.Adjacent
	}
	if cs.Different != nil {
		table.Different = *cs.Different
	}

	for i, pair := range cs.AdjacentPairs {
		where := fmt.Sprintf("correlation.adjacent_pairs[%d]", i)
		a, b := canonical(pair[0]), canonical(pair[1])
		if a == b {
			ve.AddError(fmt.Sprintf("%s: domain %q cannot be adjacent to itself", where, a))
			continue
		}
		rl.checkRef(ve, where, "domain", a, domains)
		rl.checkRef(ve, where, "domain", b, domains)
		table.AddAdjacency(domain.Domain(a), domain.Domain(b))
	}

	return table
}

// checkRef records an error when name is not among the known set,
// attaching a suggestion when a close match exists.
func (rl *RoundLoader) checkRef(ve *domain.ValidationError, where, kind, name string, known map[string]struct{}) {
	if _, ok := known[name]; ok {
		return
	}
	candidates := make([]string, 0, len(known))
	for k := range known {
		candidates = append(candidates, k)
	}
	ve.AddError(fmt.Sprintf("%s: %s", where, unknownName(kind, name, candidates)))
}

// resolveTier turns a tier reference or an explicit weight into the
// cell's value. Exactly one of the two must be present.
func resolveTier(tier string, weight *float64, tiers map[string]float64, tierNames []string) (float64, error) {
	switch {
	case tier != "" && weight != nil:
		return 0, fmt.Errorf("specify either a tier or a weight, not both")
	case tier == "" && weight == nil:
		return 0, fmt.Errorf("a tier or a weight is required")
	case weight != nil:
		return *weight, nil
	}

	folded := canonical(tier)
	if w, ok := tiers[folded]; ok {
		return w, nil
	}
	return 0, fmt.Errorf("%s", unknownName("tier", folded, tierNames))
}

// unknownName formats an unknown-reference message, with a "did you
// mean" hint when a candidate is within edit distance two.
func unknownName(kind, name string, candidates []string) string {
	const maxDistance = 3
	best, bestDist := "", maxDistance
	for _, c := range candidates {
		if d := levenshtein.ComputeDistance(name, c); d < bestDist {
			best, bestDist = c, d
		}
	}
	if best != "" {
		return fmt.Sprintf("unknown %s %q (did you mean %q?)", kind, name, best)
	}
	return fmt.Sprintf("unknown %s %q", kind, name)
}
