package domain

// DefaultAccuracyWindowSize caps the per-expert correctness history.
// Dynamic weighting only ever looks at the most recent decisions, so
// history beyond the window is evicted rather than retained.
const DefaultAccuracyWindowSize = 10

// DefaultColdStartMinimum is how many recorded decisions an expert
// needs before accuracy starts adjusting their weight. Below it the
// sample is too thin to reward or penalize.
const DefaultColdStartMinimum = 5

// AccuracyWindow is a fixed-capacity ring buffer of correctness
// outcomes for one expert, oldest evicted first. It is written
// exclusively by the weight learner and read by the weight resolver;
// stores guard that hand-off.
type AccuracyWindow struct {
	outcomes []bool
	head     int // index of the oldest entry
	size     int
	recorded int // lifetime count, drives cold-start detection
}

// NewAccuracyWindow returns an empty window holding at most capacity
// outcomes. Capacities below one fall back to
// DefaultAccuracyWindowSize.
func NewAccuracyWindow(capacity int) *AccuracyWindow {
	if capacity < 1 {
		capacity = DefaultAccuracyWindowSize
	}
	return &AccuracyWindow{outcomes: make([]bool, capacity)}
}

// RestoreAccuracyWindow rebuilds a window from persisted state:
// values holds the surviving outcomes oldest first, recorded the
// lifetime count including evicted entries. Values beyond capacity
// keep only the most recent; recorded is raised to at least the
// number of values kept.
func RestoreAccuracyWindow(capacity int, values []bool, recorded int) *AccuracyWindow {
	w := NewAccuracyWindow(capacity)
	if len(values) > len(w.outcomes) {
		values = values[len(values)-len(w.outcomes):]
	}
	for _, v := range values {
		w.Append(v)
	}
	if recorded > w.recorded {
		w.recorded = recorded
	}
	return w
}

// Append records one correctness outcome, evicting the oldest entry
// once the window is full.
func (w *AccuracyWindow) Append(correct bool) {
	tail := (w.head + w.size) % len(w.outcomes)
	w.outcomes[tail] = correct
	if w.size < len(w.outcomes) {
		w.size++
	} else {
		w.head = (w.head + 1) % len(w.outcomes)
	}
	w.recorded++
}

// CorrectCount returns how many outcomes currently in the window were
// correct.
func (w *AccuracyWindow) CorrectCount() int {
	n := 0
	for i := 0; i < w.size; i++ {
		if w.outcomes[(w.head+i)%len(w.outcomes)] {
			n++
		}
	}
	return n
}

// Size returns how many outcomes the window currently holds.
func (w *AccuracyWindow) Size() int { return w.size }

// Capacity returns the fixed window capacity.
func (w *AccuracyWindow) Capacity() int { return len(w.outcomes) }

// Recorded returns the lifetime outcome count, including evicted
// entries.
func (w *AccuracyWindow) Recorded() int { return w.recorded }

// ColdStart reports whether fewer than minimum decisions have ever
// been recorded for this expert.
func (w *AccuracyWindow) ColdStart(minimum int) bool { return w.recorded < minimum }

// Values returns the window contents oldest first. The slice is a
// copy; mutating it does not affect the window.
func (w *AccuracyWindow) Values() []bool {
	out := make([]bool, w.size)
	for i := 0; i < w.size; i++ {
		out[i] = w.outcomes[(w.head+i)%len(w.outcomes)]
	}
	return out
}

// Clone returns an independent copy of the window.
func (w *AccuracyWindow) Clone() *AccuracyWindow {
	out := &AccuracyWindow{
		outcomes: make([]bool, len(w.outcomes)),
		head:     w.head,
		size:     w.size,
		recorded: w.recorded,
	}
	copy(out.outcomes, w.outcomes)
	return out
}
