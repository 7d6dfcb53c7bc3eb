package scoring

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-conclave/internal/domain"
	"github.com/ahrav/go-conclave/internal/ports"
)

// Compile-time verification that DecisionPolicy satisfies the
// VerdictPolicy interface.
var _ ports.VerdictPolicy = (*DecisionPolicy)(nil)

// DecisionRulesConfig holds the thresholds for verdict selection and
// the devil's-advocate review.
type DecisionRulesConfig struct {
	// StrongApproveFloor is the interval lower bound above which the
	// whole plausible range is favorable.
	StrongApproveFloor float64 `yaml:"strong_approve_floor" json:"strong_approve_floor" validate:"gt=0"`

	// ConditionalScore is the enhanced-score floor for a conditional
	// approval.
	ConditionalScore float64 `yaml:"conditional_score" json:"conditional_score" validate:"gt=0"`

	// ConditionalFloor is the interval lower bound a conditional
	// approval must also clear.
	ConditionalFloor float64 `yaml:"conditional_floor" json:"conditional_floor" validate:"gt=0"`

	// StrongRejectCeiling is the interval upper bound below which the
	// whole plausible range is unfavorable.
	StrongRejectCeiling float64 `yaml:"strong_reject_ceiling" json:"strong_reject_ceiling" validate:"gt=0"`

	// WideIntervalThreshold is the interval width beyond which the
	// committee is asked for more information instead of a revision.
	WideIntervalThreshold float64 `yaml:"wide_interval_threshold" json:"wide_interval_threshold" validate:"gt=0"`

	// MinDissents is the number of recorded dissenting opinions a
	// dossier must carry.
	MinDissents int `yaml:"min_dissents" json:"min_dissents" validate:"gte=0"`

	// MinRisks is the number of enumerated risks a dossier must carry.
	MinRisks int `yaml:"min_risks" json:"min_risks" validate:"gte=0"`

	// MinAlternatives is the number of alternative proposals a dossier
	// must carry.
	MinAlternatives int `yaml:"min_alternatives" json:"min_alternatives" validate:"gte=0"`
}

// DefaultDecisionRulesConfig returns the standard verdict thresholds
// for a 1-5 ordinal scale: approve above 3.5, reject below 2.5, and
// demand at least one dissent, three risks, and one alternative before
// any verdict may be finalized.
func DefaultDecisionRulesConfig() DecisionRulesConfig {
	return DecisionRulesConfig{
		StrongApproveFloor:    3.5,
		ConditionalScore:      3.5,
		ConditionalFloor:      2.5,
		StrongRejectCeiling:   2.5,
		WideIntervalThreshold: 2.0,
		MinDissents:           1,
		MinRisks:              3,
		MinAlternatives:       1,
	}
}

// DecisionPolicy maps an enhanced score and its confidence interval
// onto a verdict, and audits the devil's-advocate dossier.
//
// The policy implements the VerdictPolicy interface and is the final
// stage of a decision round. Verdict rules are evaluated strictly in
// order; the first matching rule wins:
//
//  1. interval lower bound above the strong-approve floor
//  2. enhanced score above the conditional floor with the lower bound
//     clear of the reject zone
//  3. interval upper bound below the strong-reject ceiling
//  4. interval wider than the wide-interval threshold
//  5. otherwise, revise
//
// The ordering matters: a wide interval whose lower bound still clears
// the strong-approve floor is an approval, not a request for more
// information.
//
// Review is intentionally separate from Decide. A missing dissent
// never changes which verdict the statistics support; it only blocks
// finalizing that verdict until the dossier is completed or expressly
// overridden.
//
// Concurrency: the policy is stateless after construction and safe
// for concurrent use.
type DecisionPolicy struct {
	name   string
	config DecisionRulesConfig
}

// NewDecisionPolicy creates a DecisionPolicy with the given identifier
// and configuration.
func NewDecisionPolicy(name string, config DecisionRulesConfig) (*DecisionPolicy, error) {
	if name == "" {
		return nil, ErrEmptyComponentName
	}
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &DecisionPolicy{name: name, config: config}, nil
}

// Name returns the policy's unique identifier.
func (p *DecisionPolicy) Name() string { return p.name }

// Decide maps the enhanced score and its confidence interval to a
// verdict. Rules are checked in declaration order; the first match
// wins.
func (p *DecisionPolicy) Decide(enhanced float64, u domain.UncertaintyStats) domain.Verdict {
	switch {
	case u.Lower > p.config.StrongApproveFloor:
		return domain.VerdictStrongApprove
	case enhanced > p.config.ConditionalScore && u.Lower > p.config.ConditionalFloor:
		return domain.VerdictConditionalApprove
	case u.Upper < p.config.StrongRejectCeiling:
		return domain.VerdictStrongReject
	case u.Width > p.config.WideIntervalThreshold:
		return domain.VerdictNeedMoreInfo
	default:
		return domain.VerdictRevise
	}
}

// Review audits the devil's-advocate dossier against the configured
// thresholds. It returns a human-readable description of each unmet
// requirement; an empty slice means the dossier is complete.
func (p *DecisionPolicy) Review(d domain.DevilsAdvocateDossier) []string {
	return d.Gaps(p.config.MinDissents, p.config.MinRisks, p.config.MinAlternatives)
}

// Validate checks that the policy is properly configured.
func (p *DecisionPolicy) Validate() error {
	if p.name == "" {
		return ErrEmptyComponentName
	}
	if err := validate.Struct(p.config); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	return nil
}

// UnmarshalParameters updates the policy's configuration from YAML.
// The decoded configuration replaces the current one only if valid.
func (p *DecisionPolicy) UnmarshalParameters(params yaml.Node) error {
	var config DecisionRulesConfig
	if err := params.Decode(&config); err != nil {
		return fmt.Errorf("failed to decode parameters: %w", err)
	}
	if err := validate.Struct(config); err != nil {
		return fmt.Errorf("invalid parameters: %w", err)
	}

	p.config = config
	return nil
}

// NewDecisionPolicyFromConfig creates a DecisionPolicy from a generic
// configuration map. Missing keys fall back to defaults.
func NewDecisionPolicyFromConfig(id string, config map[string]any) (*DecisionPolicy, error) {
	cfg := DefaultDecisionRulesConfig()

	if len(config) > 0 {
		raw, err := yaml.Marshal(config)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}

	return NewDecisionPolicy(id, cfg)
}
