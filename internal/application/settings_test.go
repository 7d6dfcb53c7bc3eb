package application

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-conclave/internal/domain"
)

func TestLoadSettingsFromFile_EmptyPath(t *testing.T) {
	settings, err := LoadSettingsFromFile("")
	require.NoError(t, err)
	assert.NotNil(t, settings, "no settings file means all defaults, not an error")
}

func TestLoadSettingsFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("engine:\n  collection_timeout: 2m\n"), 0o644))

	settings, err := LoadSettingsFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, settings.Engine.CollectionTimeout.Std())

	_, err = LoadSettingsFromFile(filepath.Join(dir, "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read file")
}

func TestLoadSettings_RejectsUnknownFields(t *testing.T) {
	_, err := LoadSettings(strings.NewReader("aggregater:\n  winsor_fraction: 0.2\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "YAML decode failed")
}

func TestBuildComponents_Defaults(t *testing.T) {
	for _, settings := range []*SettingsFile{nil, {}} {
		components, err := BuildComponents(settings)
		require.NoError(t, err)

		require.NotNil(t, components.Tables)
		assert.InDelta(t, 0.9, components.Tables.PenaltyCoefficient(4), 0.0001)
		assert.InDelta(t, 1.15, components.Tables.BesselFactor(4), 0.0001)
		assert.InDelta(t, 3.18, components.Tables.TCritical(4), 0.0001)

		require.NotNil(t, components.Aggregator)
		require.NotNil(t, components.Estimator)
		require.NotNil(t, components.Policy)

		assert.Equal(t, 30*time.Second, components.Engine.CollectionTimeout)
		assert.Equal(t, domain.DefaultColdStartMinimum, components.Resolver.ColdStartMinimum)
		assert.Equal(t, 5, components.Resolver.MaxConcurrentFetches)
		assert.InDelta(t, 3.5, components.Learner.FavorableScoreFloor, 0.0001)
		assert.InDelta(t, 2.5, components.Learner.UnfavorableScoreCeiling, 0.0001)
	}
}

func TestBuildComponents_Overrides(t *testing.T) {
	yamlDoc := `
tables:
  penalty:
    - {min_size: 2, value: 1.0}
    - {min_size: 8, value: 0.5}
aggregator:
  winsor_fraction: 0.2
estimator:
  sufficiency_span: 5.0
rules:
  wide_interval_threshold: 3.0
engine:
  collection_timeout: 2m
resolver:
  cold_start_minimum: 3
learner:
  favorable_score_floor: 4.0
`
	settings, err := LoadSettings(strings.NewReader(yamlDoc))
	require.NoError(t, err)

	components, err := BuildComponents(settings)
	require.NoError(t, err)

	assert.InDelta(t, 1.0, components.Tables.PenaltyCoefficient(4), 0.0001,
		"overridden penalty table")
	assert.InDelta(t, 0.5, components.Tables.PenaltyCoefficient(9), 0.0001)
	assert.InDelta(t, 1.15, components.Tables.BesselFactor(4), 0.0001,
		"untouched tables keep their defaults")

	assert.Equal(t, 2*time.Minute, components.Engine.CollectionTimeout)
	assert.Equal(t, 3, components.Resolver.ColdStartMinimum)
	assert.Equal(t, 5, components.Resolver.MaxConcurrentFetches,
		"unmentioned resolver fields keep their defaults")
	assert.InDelta(t, 4.0, components.Learner.FavorableScoreFloor, 0.0001)
	assert.InDelta(t, 2.5, components.Learner.UnfavorableScoreCeiling, 0.0001)
}

func TestBuildComponents_InvalidOverrides(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name: "penalty table not starting at the minimum committee",
			yaml: "tables:\n  penalty:\n    - {min_size: 3, value: 1.0}\n",
			wantErr: "tables:",
		},
		{
			name:    "winsor fraction above the cap",
			yaml:    "aggregator:\n  winsor_fraction: 0.5\n",
			wantErr: "aggregator:",
		},
		{
			name:    "negative sufficiency span",
			yaml:    "estimator:\n  sufficiency_span: -1\n",
			wantErr: "estimator:",
		},
		{
			name:    "zero wide interval threshold",
			yaml:    "rules:\n  wide_interval_threshold: 0\n",
			wantErr: "rules:",
		},
		{
			name:    "negative cold start minimum",
			yaml:    "resolver:\n  cold_start_minimum: -1\n",
			wantErr: "resolver:",
		},
		{
			name:    "zero favorable floor",
			yaml:    "learner:\n  favorable_score_floor: 0\n",
			wantErr: "learner:",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings, err := LoadSettings(strings.NewReader(tt.yaml))
			require.NoError(t, err)

			_, err = BuildComponents(settings)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
