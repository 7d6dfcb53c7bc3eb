package testutils

import (
	"context"
	"sync"
	"time"

	"github.com/ahrav/go-conclave/internal/domain"
	"github.com/ahrav/go-conclave/internal/ports"
)

// RecordingMetrics captures every metric emitted during a test so
// assertions can verify names, values, and labels without a metrics
// backend. It is safe for concurrent use.
type RecordingMetrics struct {
	mu         sync.Mutex
	counters   map[string]float64
	gauges     map[string]float64
	histograms map[string][]float64
	latencies  map[string]int
	labels     map[string][]map[string]string
}

var _ ports.MetricsCollector = (*RecordingMetrics)(nil)

// NewRecordingMetrics returns an empty recorder.
func NewRecordingMetrics() *RecordingMetrics {
	return &RecordingMetrics{
		counters:   make(map[string]float64),
		gauges:     make(map[string]float64),
		histograms: make(map[string][]float64),
		latencies:  make(map[string]int),
		labels:     make(map[string][]map[string]string),
	}
}

// RecordLatency implements ports.MetricsCollector.
func (r *RecordingMetrics) RecordLatency(operation string, duration time.Duration, labels map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.latencies[operation]++
	r.labels[operation] = append(r.labels[operation], cloneLabels(labels))
}

// RecordCounter implements ports.MetricsCollector.
func (r *RecordingMetrics) RecordCounter(metric string, value float64, labels map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters[metric] += value
	r.labels[metric] = append(r.labels[metric], cloneLabels(labels))
}

// RecordGauge implements ports.MetricsCollector.
func (r *RecordingMetrics) RecordGauge(metric string, value float64, labels map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gauges[metric] = value
	r.labels[metric] = append(r.labels[metric], cloneLabels(labels))
}

// RecordHistogram implements ports.MetricsCollector.
func (r *RecordingMetrics) RecordHistogram(metric string, value float64, labels map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.histograms[metric] = append(r.histograms[metric], value)
	r.labels[metric] = append(r.labels[metric], cloneLabels(labels))
}

// CounterValue returns the accumulated value for a counter, zero if
// the counter was never recorded.
func (r *RecordingMetrics) CounterValue(metric string) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counters[metric]
}

// GaugeValue returns the last recorded gauge value.
func (r *RecordingMetrics) GaugeValue(metric string) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gauges[metric]
}

// HistogramValues returns all values recorded for a histogram.
func (r *RecordingMetrics) HistogramValues(metric string) []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]float64, len(r.histograms[metric]))
	copy(out, r.histograms[metric])
	return out
}

// LatencyCount returns how many times an operation's latency was
// recorded.
func (r *RecordingMetrics) LatencyCount(operation string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.latencies[operation]
}

// Labels returns the label sets recorded for a metric, in emission
// order.
func (r *RecordingMetrics) Labels(metric string) []map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]map[string]string, len(r.labels[metric]))
	copy(out, r.labels[metric])
	return out
}

func cloneLabels(labels map[string]string) map[string]string {
	if labels == nil {
		return nil
	}
	out := make(map[string]string, len(labels))
	for k, v := range labels {
		out[k] = v
	}
	return out
}

// RecordingObserver captures round lifecycle notifications and lets
// tests verify that the context returned by PreRound is threaded back
// into PostRound.
type RecordingObserver struct {
	mu         sync.Mutex
	preRounds  []string
	postRounds []ObservedRound
	marker     any
}

// ObservedRound is one PostRound notification.
type ObservedRound struct {
	DecisionID string
	Result     domain.DecisionResult
	Err        error
	// MarkerSeen reports whether the context carried the value
	// installed by PreRound, proving context propagation.
	MarkerSeen bool
}

var _ ports.RoundObserver = (*RecordingObserver)(nil)

type observerMarkerKey struct{}

// NewRecordingObserver returns an empty observer.
func NewRecordingObserver() *RecordingObserver {
	return &RecordingObserver{marker: "round-marker"}
}

// PreRound implements ports.RoundObserver.
func (r *RecordingObserver) PreRound(ctx context.Context, decisionID string, committee domain.CommitteeConfig) context.Context {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.preRounds = append(r.preRounds, decisionID)
	return context.WithValue(ctx, observerMarkerKey{}, r.marker)
}

// PostRound implements ports.RoundObserver.
func (r *RecordingObserver) PostRound(ctx context.Context, decisionID string, result domain.DecisionResult, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.postRounds = append(r.postRounds, ObservedRound{
		DecisionID: decisionID,
		Result:     result,
		Err:        err,
		MarkerSeen: ctx.Value(observerMarkerKey{}) == r.marker,
	})
}

// PreRounds returns the decision IDs seen by PreRound, in order.
func (r *RecordingObserver) PreRounds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.preRounds))
	copy(out, r.preRounds)
	return out
}

// PostRounds returns the PostRound notifications, in order.
func (r *RecordingObserver) PostRounds() []ObservedRound {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ObservedRound, len(r.postRounds))
	copy(out, r.postRounds)
	return out
}

// FailingAccuracyStore returns Err from every method. It drives the
// resolver and learner error paths.
type FailingAccuracyStore struct{ Err error }

var _ ports.AccuracyStore = (*FailingAccuracyStore)(nil)

// LastOutcomes implements ports.AccuracyStore.
func (f *FailingAccuracyStore) LastOutcomes(context.Context, domain.ExpertID) (*domain.AccuracyWindow, error) {
	return nil, f.Err
}

// AppendOutcome implements ports.AccuracyStore.
func (f *FailingAccuracyStore) AppendOutcome(context.Context, domain.ExpertID, bool) error {
	return f.Err
}

// FailingLedger returns Err from every method. It drives the engine
// persistence error paths.
type FailingLedger struct{ Err error }

var _ ports.DecisionLedger = (*FailingLedger)(nil)

// SaveRecord implements ports.DecisionLedger.
func (f *FailingLedger) SaveRecord(context.Context, domain.DecisionRecord) error { return f.Err }

// GetRecord implements ports.DecisionLedger.
func (f *FailingLedger) GetRecord(context.Context, string) (domain.DecisionRecord, error) {
	return domain.DecisionRecord{}, f.Err
}

// ListRecords implements ports.DecisionLedger.
func (f *FailingLedger) ListRecords(context.Context) ([]domain.DecisionRecord, error) {
	return nil, f.Err
}

// RecordOutcome implements ports.DecisionLedger.
func (f *FailingLedger) RecordOutcome(context.Context, string, domain.Outcome, map[domain.ExpertID]bool) error {
	return f.Err
}

// Finalize implements ports.DecisionLedger.
func (f *FailingLedger) Finalize(context.Context, string) error { return f.Err }

// FailingWeightSource returns Err from Profile.
type FailingWeightSource struct{ Err error }

var _ ports.WeightSource = (*FailingWeightSource)(nil)

// Profile implements ports.WeightSource.
func (f *FailingWeightSource) Profile(context.Context) (domain.WeightProfile, error) {
	return domain.WeightProfile{}, f.Err
}

// FixedClock returns a clock function pinned to the given instant.
func FixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}
