package scoring

import (
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-conclave/internal/domain"
)

// Bucket maps a minimum committee size onto a constant. Tables are
// ordered threshold arrays: a lookup for n resolves to the last bucket
// whose MinSize does not exceed n. Keeping the constants data-driven
// makes each table overridable and testable in isolation.
type Bucket struct {
	// MinSize is the smallest committee size this bucket applies to.
	MinSize int `yaml:"min_size" json:"min_size" validate:"gte=2"`

	// Value is the constant for committees in this bucket.
	Value float64 `yaml:"value" json:"value" validate:"gt=0"`
}

// CompositionMultipliers widens the standard error by committee
// domain overlap when pairwise correlation coefficients are not
// available. Values below 1 would shrink uncertainty and are rejected.
type CompositionMultipliers struct {
	// Mixed applies when no domain holds more than half the seats.
	Mixed float64 `yaml:"mixed" json:"mixed" validate:"gte=1"`

	// MajoritySame applies when one domain holds a strict majority.
	MajoritySame float64 `yaml:"majority_same" json:"majority_same" validate:"gte=1"`

	// AllSame applies when every responding expert shares one domain.
	AllSame float64 `yaml:"all_same" json:"all_same" validate:"gte=1"`
}

// LookupTablesConfig defines the bucketed constants the statistical
// components draw from. All four tables must be present; bucket lists
// must be ascending by MinSize and start at the minimum committee
// size so every valid n resolves.
type LookupTablesConfig struct {
	// Penalty is the divergence-penalty coefficient lambda(n).
	// Small committees are penalized harder: a disagreement among
	// three experts says more than the same spread among twenty.
	Penalty []Bucket `yaml:"penalty" json:"penalty" validate:"required,min=1,dive"`

	// Bessel is the small-sample standard-deviation correction f(n).
	// Values below 1 would understate spread and are rejected.
	Bessel []Bucket `yaml:"bessel" json:"bessel" validate:"required,min=1,dive"`

	// TCritical is the two-sided 95% t-distribution critical value
	// by committee size. Never a fixed normal z: small n must widen
	// the interval.
	TCritical []Bucket `yaml:"t_critical" json:"t_critical" validate:"required,min=1,dive"`

	// Multipliers holds the composition-based SE widening factors.
	Multipliers CompositionMultipliers `yaml:"multipliers" json:"multipliers"`
}

// DefaultLookupTablesConfig returns the standard table set.
func DefaultLookupTablesConfig() LookupTablesConfig {
	return LookupTablesConfig{
		Penalty: []Bucket{
			{MinSize: 2, Value: 1.2},
			{MinSize: 4, Value: 0.9},
			{MinSize: 6, Value: 0.7},
			{MinSize: 10, Value: 0.6},
			{MinSize: 15, Value: 0.5},
			{MinSize: 20, Value: 0.4},
		},
		Bessel: []Bucket{
			{MinSize: 2, Value: 1.3},
			{MinSize: 4, Value: 1.15},
			{MinSize: 6, Value: 1.1},
			{MinSize: 11, Value: 1.05},
			{MinSize: 16, Value: 1.0},
		},
		TCritical: []Bucket{
			{MinSize: 2, Value: 12.71},
			{MinSize: 3, Value: 4.30},
			{MinSize: 4, Value: 3.18},
			{MinSize: 5, Value: 2.78},
			{MinSize: 6, Value: 2.57},
			{MinSize: 7, Value: 2.45},
			{MinSize: 8, Value: 2.36},
			{MinSize: 9, Value: 2.31},
			{MinSize: 10, Value: 2.26},
			{MinSize: 11, Value: 2.23},
			{MinSize: 12, Value: 2.20},
			{MinSize: 13, Value: 2.18},
			{MinSize: 14, Value: 2.16},
			{MinSize: 15, Value: 2.14},
			{MinSize: 16, Value: 2.09},
			{MinSize: 21, Value: 2.06},
			{MinSize: 25, Value: 2.00},
		},
		Multipliers: CompositionMultipliers{
			Mixed:        1.3,
			MajoritySame: 1.7,
			AllSame:      2.0,
		},
	}
}

// LookupTables resolves the bucketed statistical constants for a
// committee size or composition. Tables are immutable after creation
// and safe for concurrent use.
type LookupTables struct {
	config LookupTablesConfig
}

// NewLookupTables creates lookup tables from the given configuration.
// It validates struct tags plus the ordering invariants: each bucket
// list ascending by MinSize, starting at domain.MinCommitteeSize, and
// Bessel values never below 1.
func NewLookupTables(config LookupTablesConfig) (*LookupTables, error) {
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	for _, tbl := range []struct {
		name    string
		buckets []Bucket
	}{
		{"penalty", config.Penalty},
		{"bessel", config.Bessel},
		{"t_critical", config.TCritical},
	} {
		if tbl.buckets[0].MinSize != domain.MinCommitteeSize {
			return nil, fmt.Errorf("%s table must start at committee size %d, starts at %d",
				tbl.name, domain.MinCommitteeSize, tbl.buckets[0].MinSize)
		}
		if !sort.SliceIsSorted(tbl.buckets, func(i, j int) bool {
			return tbl.buckets[i].MinSize < tbl.buckets[j].MinSize
		}) {
			return nil, fmt.Errorf("%s table buckets must be ascending by min_size", tbl.name)
		}
		for i := 1; i < len(tbl.buckets); i++ {
			if tbl.buckets[i].MinSize == tbl.buckets[i-1].MinSize {
				return nil, fmt.Errorf("%s table has duplicate min_size %d", tbl.name, tbl.buckets[i].MinSize)
			}
		}
	}

	for _, b := range config.Bessel {
		if b.Value < 1 {
			return nil, fmt.Errorf("bessel factor %.3f for size %d would understate spread", b.Value, b.MinSize)
		}
	}

	return &LookupTables{config: config}, nil
}

// DefaultLookupTables returns tables built from the standard
// configuration. The defaults always validate.
func DefaultLookupTables() *LookupTables {
	tables, err := NewLookupTables(DefaultLookupTablesConfig())
	if err != nil {
		// The default configuration is a compile-time constant; if it
		// fails validation the package itself is broken.
		panic(fmt.Sprintf("default lookup tables invalid: %v", err))
	}
	return tables
}

// lookup resolves the last bucket whose MinSize does not exceed n.
// Callers guarantee n >= the first bucket's MinSize.
func lookup(buckets []Bucket, n int) float64 {
	value := buckets[0].Value
	for _, b := range buckets {
		if n < b.MinSize {
			break
		}
		value = b.Value
	}
	return value
}

// PenaltyCoefficient returns lambda(n), the divergence-penalty
// coefficient for a committee of n responding experts.
func (t *LookupTables) PenaltyCoefficient(n int) float64 {
	return lookup(t.config.Penalty, n)
}

// BesselFactor returns the small-sample correction factor f(n).
func (t *LookupTables) BesselFactor(n int) float64 {
	return lookup(t.config.Bessel, n)
}

// TCritical returns the two-sided 95% t critical value for a
// committee of n responding experts.
func (t *LookupTables) TCritical(n int) float64 {
	return lookup(t.config.TCritical, n)
}

// Multiplier returns the SE widening factor for the given committee
// composition. Unknown categories fall back to the mixed-domain
// multiplier, the weakest widening.
func (t *LookupTables) Multiplier(c domain.Composition) float64 {
	switch c {
	case domain.CompositionAllSame:
		return t.config.Multipliers.AllSame
	case domain.CompositionMajoritySame:
		return t.config.Multipliers.MajoritySame
	default:
		return t.config.Multipliers.Mixed
	}
}

// Validate re-checks the table configuration. Tables are immutable,
// so this only fails if construction was bypassed.
func (t *LookupTables) Validate() error {
	if err := validate.Struct(t.config); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	return nil
}

// UnmarshalConfig decodes a YAML table override into a config,
// starting from the defaults so partial overrides keep the standard
// values for the tables they do not mention.
func UnmarshalConfig(params yaml.Node) (LookupTablesConfig, error) {
	config := DefaultLookupTablesConfig()
	if err := params.Decode(&config); err != nil {
		return LookupTablesConfig{}, fmt.Errorf("failed to decode parameters: %w", err)
	}
	return config, nil
}
