package strategy

import (
	"github.com/helmquant/helm/internal/core"
)

// Evaluate interprets the signed crossover value of a step into a signal.
// Callers must only act on the result when the instrument is ready at this
// step; crossover values computed before readiness are not numerically
// meaningful.
func Evaluate(instrument string, step StepContext) core.Signal {
	action := core.ActionHold
	switch {
	case step.Crossover > 0:
		action = core.ActionBuy
	case step.Crossover < 0:
		action = core.ActionSell
	}

	return core.Signal{
		Instrument:  instrument,
		Action:      action,
		Crossover:   step.Crossover,
		FastMA:      step.FastMA,
		SlowMA:      step.SlowMA,
		Price:       step.Close,
		Step:        step.Step,
		GeneratedAt: step.Time,
	}
}
