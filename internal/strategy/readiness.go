package strategy

import "math"

// Tracker gates instruments on accumulated history and indicator validity.
// Membership in the tradeable set is monotonic: once an instrument has been
// observed ready it stays counted for the rest of the run, while IsReady
// still reflects the current step's data so a later malformed step is
// skipped rather than acted on.
type Tracker struct {
	minPeriod  int
	firstReady map[string]int
}

// NewTracker creates a tracker requiring minPeriod bars of history.
func NewTracker(minPeriod int) *Tracker {
	return &Tracker{
		minPeriod:  minPeriod,
		firstReady: make(map[string]int),
	}
}

// IsReady reports whether the instrument can be traded on this step: enough
// history, a valid positive close, and defined fast/slow/crossover values.
func (t *Tracker) IsReady(step StepContext) bool {
	if step.BarCount < t.minPeriod {
		return false
	}
	if step.Close <= 0 || math.IsNaN(step.Close) {
		return false
	}
	if math.IsNaN(step.FastMA) || math.IsNaN(step.SlowMA) || math.IsNaN(step.Crossover) {
		return false
	}
	return true
}

// Observe evaluates readiness and records, once per instrument, the step at
// which it first became ready. first is true only on that transition.
func (t *Tracker) Observe(instrument string, step StepContext) (ready, first bool) {
	ready = t.IsReady(step)
	if ready {
		if _, seen := t.firstReady[instrument]; !seen {
			t.firstReady[instrument] = step.Step
			first = true
		}
	}
	return ready, first
}

// FirstReadyStep returns the step at which the instrument first became ready.
func (t *Tracker) FirstReadyStep(instrument string) (int, bool) {
	step, ok := t.firstReady[instrument]
	return step, ok
}

// ReadyCount returns the size of the tradeable set.
func (t *Tracker) ReadyCount() int {
	return len(t.firstReady)
}

// EverReady reports monotonic tradeable-set membership.
func (t *Tracker) EverReady(instrument string) bool {
	_, ok := t.firstReady[instrument]
	return ok
}
