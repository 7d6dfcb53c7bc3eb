package ports

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-conclave/internal/domain"
)

// Test that our interfaces can be implemented correctly

// mockAccuracyStore implements AccuracyStore interface
type mockAccuracyStore struct {
	windows map[domain.ExpertID]*domain.AccuracyWindow
}

func newMockAccuracyStore() *mockAccuracyStore {
	return &mockAccuracyStore{windows: make(map[domain.ExpertID]*domain.AccuracyWindow)}
}

func (m *mockAccuracyStore) LastOutcomes(ctx context.Context, expertID domain.ExpertID) (*domain.AccuracyWindow, error) {
	if w, ok := m.windows[expertID]; ok {
		return w.Clone(), nil
	}
	return domain.NewAccuracyWindow(domain.DefaultAccuracyWindowSize), nil
}

func (m *mockAccuracyStore) AppendOutcome(ctx context.Context, expertID domain.ExpertID, correct bool) error {
	w, ok := m.windows[expertID]
	if !ok {
		w = domain.NewAccuracyWindow(domain.DefaultAccuracyWindowSize)
		m.windows[expertID] = w
	}
	w.Append(correct)
	return nil
}

// mockWeightSource implements WeightSource interface
type mockWeightSource struct{ profile domain.WeightProfile }

func (m *mockWeightSource) Profile(ctx context.Context) (domain.WeightProfile, error) {
	return m.profile.Clone(), nil
}

// mockMetricsCollector implements MetricsCollector interface
type mockMetricsCollector struct {
	latencies  []time.Duration
	counters   map[string]float64
	gauges     map[string]float64
	histograms map[string][]float64
}

// newMockMetricsCollector creates a new mock metrics collector for testing.
func newMockMetricsCollector() *mockMetricsCollector {
	return &mockMetricsCollector{
		latencies:  []time.Duration{},
		counters:   make(map[string]float64),
		gauges:     make(map[string]float64),
		histograms: make(map[string][]float64),
	}
}

func (m *mockMetricsCollector) RecordLatency(operation string, duration time.Duration, labels map[string]string) {
	m.latencies = append(m.latencies, duration)
}

func (m *mockMetricsCollector) RecordCounter(metric string, value float64, labels map[string]string) {
	m.counters[metric] += value
}

func (m *mockMetricsCollector) RecordGauge(metric string, value float64, labels map[string]string) {
	m.gauges[metric] = value
}

func (m *mockMetricsCollector) RecordHistogram(metric string, value float64, labels map[string]string) {
	m.histograms[metric] = append(m.histograms[metric], value)
}

// Compile-time checks that the mocks satisfy the ports.
var (
	_ AccuracyStore    = (*mockAccuracyStore)(nil)
	_ WeightSource     = (*mockWeightSource)(nil)
	_ MetricsCollector = (*mockMetricsCollector)(nil)
)

func TestAccuracyStoreContract(t *testing.T) {
	ctx := context.Background()
	store := newMockAccuracyStore()

	// Unknown experts get an empty window, never an error.
	w, err := store.LastOutcomes(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 0, w.Size())

	require.NoError(t, store.AppendOutcome(ctx, "alice", true))
	require.NoError(t, store.AppendOutcome(ctx, "alice", false))

	w, err = store.LastOutcomes(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, w.Size())
	assert.Equal(t, 1, w.CorrectCount())

	// The returned window is a snapshot.
	w.Append(true)
	again, err := store.LastOutcomes(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, again.Size(), "mutating a snapshot must not touch the store")
}

func TestWeightSourceContract(t *testing.T) {
	ctx := context.Background()
	profile := domain.NewWeightProfile()
	profile.DomainWeights[domain.RoleDomain{Role: "architect", Domain: "build"}] = 0.9

	src := &mockWeightSource{profile: profile}

	got, err := src.Profile(ctx)
	require.NoError(t, err)

	w, ok := got.DomainWeight("architect", "build")
	assert.True(t, ok)
	assert.InDelta(t, 0.9, w, 0.0001)

	// Mutating the returned profile must not leak back.
	got.DomainWeights[domain.RoleDomain{Role: "architect", Domain: "build"}] = 0.1
	again, err := src.Profile(ctx)
	require.NoError(t, err)
	w, _ = again.DomainWeight("architect", "build")
	assert.InDelta(t, 0.9, w, 0.0001)
}

func TestMetricsCollectorContract(t *testing.T) {
	collector := newMockMetricsCollector()

	collector.RecordLatency("round", 125*time.Millisecond, map[string]string{"verdict": "revise"})
	collector.RecordCounter("rounds_total", 1, nil)
	collector.RecordCounter("rounds_total", 1, nil)
	collector.RecordGauge("open_rounds", 3, nil)
	collector.RecordHistogram("information_sufficiency", 0.37, nil)

	assert.Len(t, collector.latencies, 1)
	assert.Equal(t, float64(2), collector.counters["rounds_total"])
	assert.Equal(t, float64(3), collector.gauges["open_rounds"])
	assert.Len(t, collector.histograms["information_sufficiency"], 1)
}
