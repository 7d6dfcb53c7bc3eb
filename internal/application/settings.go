package application

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-conclave/infrastructure/scoring"
)

// SettingsFile is the optional YAML document that overrides the
// statistical constants and component parameters. Every section may
// be omitted; missing values keep their defaults, so a settings file
// only ever states what it changes.
type SettingsFile struct {
	// Tables overrides the bucketed lookup tables (penalty, bessel,
	// t-critical, composition multipliers).
	Tables yaml.Node `yaml:"tables"`
	// Aggregator overrides the consensus aggregator parameters.
	Aggregator map[string]any `yaml:"aggregator"`
	// Estimator overrides the interval estimator parameters.
	Estimator map[string]any `yaml:"estimator"`
	// Rules overrides the verdict thresholds and dossier minimums.
	Rules map[string]any `yaml:"rules"`
	// Engine overrides engine-level settings.
	Engine EngineSection `yaml:"engine"`
	// Resolver overrides weight resolution settings.
	Resolver map[string]any `yaml:"resolver"`
	// Learner overrides outcome learning settings.
	Learner map[string]any `yaml:"learner"`
}

// EngineSection is the engine part of a settings file.
type EngineSection struct {
	// CollectionTimeout is the default quorum deadline.
	CollectionTimeout Duration `yaml:"collection_timeout"`
}

// ComponentSet bundles every configured component needed to assemble
// a DecisionEngine.
type ComponentSet struct {
	Tables     *scoring.LookupTables
	Aggregator *scoring.ConsensusAggregator
	Estimator  *scoring.IntervalEstimator
	Policy     *scoring.DecisionPolicy
	Engine     EngineConfig
	Resolver   ResolverConfig
	Learner    LearnerConfig
}

// LoadSettingsFromFile reads and parses a settings file. A missing
// path is not an error; it yields an empty settings document.
func LoadSettingsFromFile(path string) (*SettingsFile, error) {
	if path == "" {
		return &SettingsFile{}, nil
	}
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return LoadSettings(bytes.NewReader(data))
}

// LoadSettings parses a settings document from a reader.
func LoadSettings(r io.Reader) (*SettingsFile, error) {
	var file SettingsFile
	if err := strictDecode(r, &file); err != nil {
		return nil, err
	}
	return &file, nil
}

// BuildComponents constructs the statistical components and
// application configs described by a settings file, falling back to
// defaults for everything the file does not mention.
func BuildComponents(settings *SettingsFile) (*ComponentSet, error) {
	if settings == nil {
		settings = &SettingsFile{}
	}

	tablesConfig := scoring.DefaultLookupTablesConfig()
	if !settings.Tables.IsZero() {
		cfg, err := scoring.UnmarshalConfig(settings.Tables)
		if err != nil {
			return nil, fmt.Errorf("tables: %w", err)
		}
		tablesConfig = cfg
	}
	tables, err := scoring.NewLookupTables(tablesConfig)
	if err != nil {
		return nil, fmt.Errorf("tables: %w", err)
	}

	aggregator, err := scoring.NewConsensusAggregatorFromConfig("consensus", settings.Aggregator, tables)
	if err != nil {
		return nil, fmt.Errorf("aggregator: %w", err)
	}

	estimator, err := scoring.NewIntervalEstimatorFromConfig("interval", settings.Estimator, tables)
	if err != nil {
		return nil, fmt.Errorf("estimator: %w", err)
	}

	policy, err := scoring.NewDecisionPolicyFromConfig("decision_rules", settings.Rules)
	if err != nil {
		return nil, fmt.Errorf("rules: %w", err)
	}

	engineConfig := DefaultEngineConfig()
	if settings.Engine.CollectionTimeout > 0 {
		engineConfig.CollectionTimeout = settings.Engine.CollectionTimeout.Std()
	}

	resolverConfig, err := resolverConfigFromMap(settings.Resolver)
	if err != nil {
		return nil, fmt.Errorf("resolver: %w", err)
	}

	learnerConfig, err := learnerConfigFromMap(settings.Learner)
	if err != nil {
		return nil, fmt.Errorf("learner: %w", err)
	}

	return &ComponentSet{
		Tables:     tables,
		Aggregator: aggregator,
		Estimator:  estimator,
		Policy:     policy,
		Engine:     engineConfig,
		Resolver:   resolverConfig,
		Learner:    learnerConfig,
	}, nil
}

// resolverConfigFromMap overlays a generic override map onto the
// default resolver configuration.
func resolverConfigFromMap(config map[string]any) (ResolverConfig, error) {
	cfg := DefaultResolverConfig()
	if err := overlayConfig(config, &cfg); err != nil {
		return ResolverConfig{}, err
	}
	if err := validate.Struct(cfg); err != nil {
		return ResolverConfig{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// learnerConfigFromMap overlays a generic override map onto the
// default learner configuration.
func learnerConfigFromMap(config map[string]any) (LearnerConfig, error) {
	cfg := DefaultLearnerConfig()
	if err := overlayConfig(config, &cfg); err != nil {
		return LearnerConfig{}, err
	}
	if err := validate.Struct(cfg); err != nil {
		return LearnerConfig{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// overlayConfig applies a generic map onto a typed config through a
// YAML round trip, so overrides use the same field names as the file
// format.
func overlayConfig(config map[string]any, out any) error {
	if len(config) == 0 {
		return nil
	}
	raw, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := yaml.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return nil
}
