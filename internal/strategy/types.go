// Package strategy implements the crossover decision core: per-instrument
// readiness gating, shared capital allocation, signal interpretation, and the
// FLAT/LONG position state machine.
package strategy

import (
	"context"
	"fmt"
	"time"

	"github.com/helmquant/helm/internal/core"
)

// Params configures the crossover position controller.
type Params struct {
	FastPeriod         int
	SlowPeriod         int
	AllocationFraction float64 // fraction of the per-instrument budget used for sizing
	MinSize            int64   // smallest position worth opening
}

// DefaultParams returns the stock parameter set.
func DefaultParams() Params {
	return Params{
		FastPeriod:         20,
		SlowPeriod:         50,
		AllocationFraction: 0.90,
		MinSize:            1,
	}
}

// MinPeriod returns the history length required before indicators are defined.
func (p Params) MinPeriod() int {
	if p.FastPeriod > p.SlowPeriod {
		return p.FastPeriod
	}
	return p.SlowPeriod
}

// Validate checks the parameter set for usable values.
func (p Params) Validate() error {
	if p.FastPeriod < 1 || p.SlowPeriod < 1 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("periods must be >= 1, got fast=%d slow=%d", p.FastPeriod, p.SlowPeriod))
	}
	if p.FastPeriod >= p.SlowPeriod {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("fast period must be shorter than slow, got fast=%d slow=%d", p.FastPeriod, p.SlowPeriod))
	}
	if p.AllocationFraction <= 0 || p.AllocationFraction > 1 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("allocation_fraction must be in (0, 1], got %f", p.AllocationFraction))
	}
	if p.MinSize < 1 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("min_size must be >= 1, got %d", p.MinSize))
	}
	return nil
}

// StepContext carries everything the driving engine knows about one
// instrument at one global step. Indicator fields are NaN while undefined.
type StepContext struct {
	Step           int
	Time           time.Time
	BarCount       int
	Close          float64
	FastMA         float64
	SlowMA         float64
	Crossover      float64
	FreeCash       float64
	TradeableCount int
	PositionSize   int64
}

// IntentSink receives open/close intents from the controller. Submission is
// decoupled from confirmation: fills or rejections arrive later through
// FillDetails. The controller transitions state optimistically on submission;
// an implementation that gates on confirmed fills only needs a different
// sink and fill handling.
type IntentSink interface {
	SubmitBuy(ctx context.Context, instrument string, size int64) (intentID string, err error)
	SubmitClose(ctx context.Context, instrument string) (intentID string, err error)
}

// FillDetails is the broker's asynchronous answer to a submitted intent.
type FillDetails struct {
	IntentID   string
	Instrument string
	Filled     bool
	Size       int64
	Price      float64
	Reason     string // populated on rejection
	Time       time.Time
}

// Recorder counts controller activity for observability. Implementations
// must be safe for reuse across instruments; nil disables recording.
type Recorder interface {
	RecordSignal(action string)
	RecordIntent(side, outcome string)
}

// State is the per-instrument position state.
type State int

const (
	Flat State = iota
	Long
)

func (s State) String() string {
	switch s {
	case Long:
		return "LONG"
	default:
		return "FLAT"
	}
}
