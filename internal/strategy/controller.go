package strategy

import (
	"context"
	"fmt"
	"math"

	"github.com/helmquant/helm/internal/core"
	"github.com/helmquant/helm/internal/execlog"
	"go.uber.org/zap"
)

// Skip reasons recorded in the execution log.
const (
	SkipDataUnavailable  = "data unavailable"
	SkipSizingInfeasible = "size below minimum"
)

// Controller is the per-instrument FLAT/LONG state machine. It converts
// crossover signals into buy/close intents sized from the shared capital
// pool, transitioning state optimistically on submission. A failure on one
// instrument's step never affects siblings.
type Controller struct {
	params    Params
	readiness *Tracker
	allocator *Allocator
	sink      IntentSink
	journal   *execlog.Log
	rec       Recorder
	states    map[string]State
	log       *zap.Logger
}

// NewController wires the decision core together. A nil logger disables
// logging; a nil recorder disables metrics.
func NewController(params Params, readiness *Tracker, allocator *Allocator, sink IntentSink, journal *execlog.Log, rec Recorder, log *zap.Logger) *Controller {
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{
		params:    params,
		readiness: readiness,
		allocator: allocator,
		sink:      sink,
		journal:   journal,
		rec:       rec,
		states:    make(map[string]State),
		log:       log,
	}
}

// State returns the current position state for an instrument.
func (c *Controller) State(instrument string) State {
	return c.states[instrument]
}

// OnStep processes one instrument's step: readiness gate, signal
// interpretation, and the state-machine transition. Errors are per-step and
// per-instrument; the caller logs and moves on.
func (c *Controller) OnStep(ctx context.Context, instrument string, step StepContext) error {
	if !c.readiness.IsReady(step) {
		// An instrument that was tradeable before but delivers malformed
		// data this step is skipped for this step only. One that has never
		// been ready is simply not tradeable yet.
		if c.readiness.EverReady(instrument) {
			c.journal.Skip(step.Step, instrument, core.ActionHold, SkipDataUnavailable, step.Time)
			return core.WrapError(core.ErrDataUnavailable,
				fmt.Errorf("%s at step %d", instrument, step.Step))
		}
		return nil
	}

	sig := Evaluate(instrument, step)
	c.journal.Signal(sig)
	if c.rec != nil {
		c.rec.RecordSignal(string(sig.Action))
	}

	switch {
	case c.states[instrument] == Flat && sig.Action == core.ActionBuy:
		return c.openLong(ctx, instrument, step)
	case c.states[instrument] == Long && sig.Action == core.ActionSell:
		return c.closeLong(ctx, instrument, step)
	}
	// +1 while LONG and -1 while FLAT are deliberate no-ops: the machine
	// neither pyramids nor shorts.
	return nil
}

func (c *Controller) openLong(ctx context.Context, instrument string, step StepContext) error {
	alloc := c.allocator.PerInstrument(step.TradeableCount, step.FreeCash)
	budget := alloc * c.params.AllocationFraction
	size := int64(math.Floor(budget / step.Close))

	if size < c.params.MinSize {
		// Not retried: the next +1 crossover is a fresh decision.
		c.journal.Skip(step.Step, instrument, core.ActionBuy, SkipSizingInfeasible, step.Time)
		if c.rec != nil {
			c.rec.RecordIntent("buy", "skipped")
		}
		c.log.Debug("buy skipped",
			zap.String("instrument", instrument),
			zap.Float64("budget", budget),
			zap.Float64("close", step.Close),
			zap.Int64("size", size),
		)
		return nil
	}

	intentID, err := c.sink.SubmitBuy(ctx, instrument, size)
	if err != nil {
		c.journal.Skip(step.Step, instrument, core.ActionBuy, err.Error(), step.Time)
		return core.WrapError(core.ErrOrderRejected, err)
	}

	c.journal.Intent(step.Step, instrument, core.ActionBuy, size, step.Close, intentID, step.Time)
	if c.rec != nil {
		c.rec.RecordIntent("buy", "submitted")
	}
	c.states[instrument] = Long
	c.log.Info("buy intent submitted",
		zap.String("instrument", instrument),
		zap.Int64("size", size),
		zap.Float64("close", step.Close),
		zap.Float64("budget", budget),
	)
	return nil
}

func (c *Controller) closeLong(ctx context.Context, instrument string, step StepContext) error {
	intentID, err := c.sink.SubmitClose(ctx, instrument)
	if err != nil {
		c.journal.Skip(step.Step, instrument, core.ActionSell, err.Error(), step.Time)
		return core.WrapError(core.ErrOrderRejected, err)
	}

	c.journal.Intent(step.Step, instrument, core.ActionSell, step.PositionSize, step.Close, intentID, step.Time)
	if c.rec != nil {
		c.rec.RecordIntent("sell", "submitted")
	}
	c.states[instrument] = Flat
	c.log.Info("close intent submitted",
		zap.String("instrument", instrument),
		zap.Int64("size", step.PositionSize),
		zap.Float64("close", step.Close),
	)
	return nil
}

// OnFill feeds the broker's asynchronous fill or rejection notification
// into the execution log.
func (c *Controller) OnFill(details FillDetails) {
	if details.Filled {
		c.journal.Fill(details.IntentID, details.Size, details.Price, details.Time)
		return
	}
	c.journal.Reject(details.IntentID, details.Reason, details.Time)
	c.log.Warn("intent rejected",
		zap.String("instrument", details.Instrument),
		zap.String("intent_id", details.IntentID),
		zap.String("reason", details.Reason),
	)
}
