package application

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// validate performs struct-tag validation for the package's
// configuration types. Custom identifier rules are registered by the
// RoundLoader on its own instance.
var validate = validator.New()

// Duration is a time.Duration that decodes from YAML duration strings
// ("45s", "2m") or plain integers interpreted as seconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	switch value.Tag {
	case "!!int":
		var secs int64
		if err := value.Decode(&secs); err != nil {
			return err
		}
		*d = Duration(time.Duration(secs) * time.Second)
		return nil
	case "!!str":
		parsed, err := time.ParseDuration(value.Value)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", value.Value, err)
		}
		*d = Duration(parsed)
		return nil
	default:
		return fmt.Errorf("duration must be a string or integer seconds, got %s", value.Tag)
	}
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// EngineConfig holds the engine-level tunables that apply across
// rounds.
type EngineConfig struct {
	// CollectionTimeout is the default quorum deadline for committees
	// that do not specify their own.
	CollectionTimeout time.Duration `yaml:"collection_timeout" json:"collection_timeout" validate:"gt=0"`
}

// DefaultEngineConfig returns the standard engine settings.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{CollectionTimeout: 30 * time.Second}
}

// CommitteeFile is the YAML document describing one decision round:
// the committee, the weight profile, and the correlation structure.
// It is the primary configuration entry point for the system.
type CommitteeFile struct {
	// Version is the configuration schema version.
	Version string `yaml:"version" validate:"required,oneof=1 1.0"`
	// Decision identifies and scopes the round being configured.
	Decision DecisionMeta `yaml:"decision" validate:"required"`
	// Experts lists the committee seats. At least two are required.
	Experts []ExpertEntry `yaml:"experts" validate:"required,min=2,dive"`
	// Angles lists the evaluation angles every expert scores.
	Angles []string `yaml:"angles" validate:"required,min=1,dive,identifier"`
	// Weights configures the sparse weight profile. When omitted,
	// every lookup resolves to the default weight.
	Weights WeightsSection `yaml:"weights"`
	// Correlation configures the pairwise domain-correlation table.
	// When omitted, the tiered fallback adjustment is used.
	Correlation *CorrelationSection `yaml:"correlation"`
}

// DecisionMeta identifies the decision under evaluation.
type DecisionMeta struct {
	// ID is the unique identifier of the decision.
	ID string `yaml:"id" validate:"required,min=1,max=255"`
	// Level is the committee level, grading how consequential the
	// decision is on a 1-5 scale.
	Level int `yaml:"level" validate:"required,min=1,max=5"`
	// Timeout bounds the collection phase. Zero inherits the engine
	// default.
	Timeout Duration `yaml:"timeout" validate:"gte=0"`
}

// ExpertEntry is one committee seat.
type ExpertEntry struct {
	// ID uniquely identifies the expert within the committee.
	ID string `yaml:"id" validate:"required,identifier"`
	// Role is the expert's function, the row key of both weight
	// tables.
	Role string `yaml:"role" validate:"required,identifier"`
	// Domain is the expert's home domain, used for weight lookup and
	// correlation grouping.
	Domain string `yaml:"domain" validate:"required,identifier"`
}

// WeightsSection configures the sparse weight profile. Cells are
// specified either through a named tier or an explicit weight; the
// vast majority of the role-domain-angle space stays unspecified and
// resolves to the default.
type WeightsSection struct {
	// Default is the weight for unspecified cells. Zero means the
	// built-in default.
	Default float64 `yaml:"default" validate:"gte=0,lte=1"`
	// Tiers names reusable weight levels, such as primary or
	// secondary, so entries reference a tier instead of repeating
	// magic numbers.
	Tiers map[string]float64 `yaml:"tiers" validate:"dive,gte=0,lte=1"`
	// Domains grades (role, domain) authority.
	Domains []DomainWeightEntry `yaml:"domains" validate:"dive"`
	// Angles grades (role, angle) expertise.
	Angles []AngleWeightEntry `yaml:"angles" validate:"dive"`
}

// DomainWeightEntry grades one (role, domain) cell. Exactly one of
// Tier or Weight must be set.
type DomainWeightEntry struct {
	Role   string   `yaml:"role" validate:"required,identifier"`
	Domain string   `yaml:"domain" validate:"required,identifier"`
	Tier   string   `yaml:"tier" validate:"omitempty,identifier"`
	Weight *float64 `yaml:"weight" validate:"omitempty,gte=0,lte=1"`
}

// AngleWeightEntry grades one (role, angle) cell. Exactly one of
// Tier or Weight must be set.
type AngleWeightEntry struct {
	Role   string   `yaml:"role" validate:"required,identifier"`
	Angle  string   `yaml:"angle" validate:"required,identifier"`
	Tier   string   `yaml:"tier" validate:"omitempty,identifier"`
	Weight *float64 `yaml:"weight" validate:"omitempty,gte=0,lte=1"`
}

// CorrelationSection configures the pairwise domain-correlation
// coefficients. Omitted coefficients keep their built-in defaults.
type CorrelationSection struct {
	// Same is rho for two experts in the same domain.
	Same *float64 `yaml:"same" validate:"omitempty,gte=0,lte=1"`
	// Adjacent is rho for experts in declared-adjacent domains.
	Adjacent *float64 `yaml:"adjacent" validate:"omitempty,gte=0,lte=1"`
	// Different is rho for unrelated domains.
	Different *float64 `yaml:"different" validate:"omitempty,gte=0,lte=1"`
	// AdjacentPairs declares which domains count as adjacent. Each
	// pair is symmetric.
	AdjacentPairs [][]string `yaml:"adjacent_pairs" validate:"dive,len=2,dive,identifier"`
}

// SubmissionsFile is the YAML document carrying pre-gathered
// judgments and the devil's-advocate dossier for the batch evaluation
// path.
type SubmissionsFile struct {
	// Judgments lists the (expert, angle, score) triples to submit.
	Judgments []Submission `yaml:"judgments" validate:"required,min=1,dive"`
	// Dossier carries the dissents, risks, and alternatives recorded
	// during deliberation.
	Dossier DossierSection `yaml:"dossier"`
}

// DossierSection is the YAML shape of the devil's-advocate dossier.
type DossierSection struct {
	Dissents     []DissentEntry `yaml:"dissents" validate:"dive"`
	Risks        []string       `yaml:"risks"`
	Alternatives []string       `yaml:"alternatives"`
}

// DissentEntry records one expert's dissenting opinion.
type DissentEntry struct {
	Expert  string `yaml:"expert" validate:"required,identifier"`
	Summary string `yaml:"summary" validate:"required,min=1,max=1000"`
}
