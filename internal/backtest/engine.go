// Package backtest drives a bounded historical replay: it merges
// per-instrument bar histories into a global step loop, feeds indicators,
// derives the tradeable set once per step, and hands each instrument's step
// to the position controller.
package backtest

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/helmquant/helm/internal/analyzer"
	"github.com/helmquant/helm/internal/broker"
	"github.com/helmquant/helm/internal/core"
	"github.com/helmquant/helm/internal/execlog"
	"github.com/helmquant/helm/internal/indicator"
	"github.com/helmquant/helm/internal/metrics"
	"github.com/helmquant/helm/internal/strategy"
	"go.uber.org/zap"
)

// StrategyName identifies the built-in crossover strategy in results and
// reports.
const StrategyName = "sma_crossover"

// Config holds everything a replay needs.
type Config struct {
	Params     strategy.Params
	Analyzer   analyzer.Config
	StartCash  float64
	Commission float64
}

// Engine wires the decision core, the simulated broker, and the audit log
// into a step-driven replay.
type Engine struct {
	cfg        Config
	broker     *broker.Sim
	tracker    *strategy.Tracker
	controller *strategy.Controller
	journal    *execlog.Log
	metrics    *metrics.Registry
	log        *zap.Logger
}

// New creates a replay engine. A nil registry or logger disables the
// respective concern.
func New(cfg Config, journal *execlog.Log, reg *metrics.Registry, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	if journal == nil {
		journal = execlog.New()
	}

	sim := broker.NewSim(cfg.StartCash, cfg.Commission, log.Named("broker"))
	tracker := strategy.NewTracker(cfg.Params.MinPeriod())
	alloc := strategy.NewAllocator(log.Named("allocator"))

	var rec strategy.Recorder
	if reg != nil {
		rec = reg
	}
	ctrl := strategy.NewController(cfg.Params, tracker, alloc, sim, journal, rec, log.Named("controller"))

	e := &Engine{
		cfg:        cfg,
		broker:     sim,
		tracker:    tracker,
		controller: ctrl,
		journal:    journal,
		metrics:    reg,
		log:        log,
	}
	sim.Subscribe(e.onUpdate)
	return e
}

// Broker exposes the simulated broker, mainly for inspection after a run.
func (e *Engine) Broker() *broker.Sim {
	return e.broker
}

// Journal exposes the execution log.
func (e *Engine) Journal() *execlog.Log {
	return e.journal
}

// onUpdate feeds broker fill/rejection notifications back into the core.
func (e *Engine) onUpdate(u broker.Update) {
	e.controller.OnFill(strategy.FillDetails{
		IntentID:   u.Order.ID,
		Instrument: u.Order.Instrument,
		Filled:     u.Order.IsFilled(),
		Size:       u.Order.Size,
		Price:      u.Order.Price,
		Reason:     u.Order.RejectionReason,
		Time:       u.Time,
	})
	if e.metrics != nil {
		if u.Order.IsFilled() {
			e.metrics.RecordFill()
		} else {
			e.metrics.RecordRejection()
		}
	}
}

// cursor tracks one instrument's replay position and indicator state.
type cursor struct {
	instrument string
	bars       []core.Bar
	idx        int
	barCount   int
	fast       *indicator.Stream
	slow       *indicator.Stream
	cross      *indicator.Cross
}

// delivery is one instrument's step, staged so that the tradeable set and
// free cash are snapshotted once before any intent is issued.
type delivery struct {
	instrument string
	step       strategy.StepContext
}

// Run replays the series to completion. A malformed instrument step is
// logged and skipped; it never aborts the run or affects siblings.
func (e *Engine) Run(ctx context.Context, series []Series) (*Result, error) {
	started := time.Now()

	cursors := make([]*cursor, 0, len(series))
	instruments := make([]string, 0, len(series))
	for _, s := range series {
		if len(s.Bars) == 0 {
			continue
		}
		cursors = append(cursors, &cursor{
			instrument: s.Instrument,
			bars:       s.Bars,
			fast:       indicator.NewStream(e.cfg.Params.FastPeriod),
			slow:       indicator.NewStream(e.cfg.Params.SlowPeriod),
			cross:      indicator.NewCross(),
		})
		instruments = append(instruments, s.Instrument)
	}
	if len(cursors) == 0 {
		return nil, core.ErrNoData
	}

	timeline := mergeTimeline(cursors)
	equity := make([]core.EquitySample, 0, len(timeline))

	for step, ts := range timeline {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		// First pass: deliver bars, advance indicators, observe readiness.
		var deliveries []delivery
		for _, c := range cursors {
			if c.idx >= len(c.bars) || !c.bars[c.idx].Time.Equal(ts) {
				continue
			}
			bar := c.bars[c.idx]
			c.idx++
			c.barCount++

			fast, slow, cross := math.NaN(), math.NaN(), math.NaN()
			if bar.IsValid() {
				fast = c.fast.Update(bar.Close)
				slow = c.slow.Update(bar.Close)
				cross = c.cross.Update(fast, slow)
				e.broker.MarkPrice(c.instrument, bar.Close, ts)
			}

			stepCtx := strategy.StepContext{
				Step:      step,
				Time:      ts,
				BarCount:  c.barCount,
				Close:     bar.Close,
				FastMA:    fast,
				SlowMA:    slow,
				Crossover: cross,
			}

			if _, first := e.tracker.Observe(c.instrument, stepCtx); first {
				e.journal.Activation(step, c.instrument, ts)
				e.log.Info("instrument active",
					zap.String("instrument", c.instrument),
					zap.Int("step", step),
					zap.Time("time", ts),
				)
			}
			if e.metrics != nil {
				e.metrics.RecordBar()
			}
			deliveries = append(deliveries, delivery{instrument: c.instrument, step: stepCtx})
		}

		// The tradeable count and free cash are fixed for the whole step:
		// every instrument evaluated at this timestamp sizes against the
		// same pre-step allocation.
		count := e.tracker.ReadyCount()
		cash := e.broker.Cash()

		for _, d := range deliveries {
			d.step.TradeableCount = count
			d.step.FreeCash = cash
			d.step.PositionSize = e.broker.Position(d.instrument).Size

			if err := e.controller.OnStep(ctx, d.instrument, d.step); err != nil {
				e.log.Warn("instrument step skipped",
					zap.String("instrument", d.instrument),
					zap.Int("step", step),
					zap.Error(err),
				)
			}
		}

		// Outcomes are delivered only after every instrument's intents for
		// this step are journaled, so each fill finds its intent record.
		e.broker.Flush()

		value := e.broker.Value()
		equity = append(equity, core.EquitySample{Step: step, Value: value, Time: ts})
		if e.metrics != nil {
			e.metrics.SetEquity(value)
		}
	}

	perf := analyzer.Finalize(equity, e.cfg.Analyzer)
	trades := tradesFromOrders(e.broker.Orders(), lastCloses(cursors))

	if e.metrics != nil {
		e.metrics.ObserveRunDuration(time.Since(started).Seconds())
	}

	return &Result{
		Strategy:    StrategyName,
		Start:       timeline[0],
		End:         timeline[len(timeline)-1],
		Instruments: instruments,
		Equity:      equity,
		Trades:      trades,
		Stats:       CalculateStats(trades, equity),
		Performance: perf,
	}, nil
}

// mergeTimeline collects the union of bar timestamps across instruments,
// sorted ascending. One entry is one global step.
func mergeTimeline(cursors []*cursor) []time.Time {
	seen := make(map[int64]time.Time)
	for _, c := range cursors {
		for _, b := range c.bars {
			seen[b.Time.UnixNano()] = b.Time
		}
	}

	keys := make([]int64, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	timeline := make([]time.Time, len(keys))
	for i, k := range keys {
		timeline[i] = seen[k]
	}
	return timeline
}

// lastCloses returns each instrument's final valid close, used to value
// positions still open at run end.
func lastCloses(cursors []*cursor) map[string]float64 {
	out := make(map[string]float64, len(cursors))
	for _, c := range cursors {
		for i := len(c.bars) - 1; i >= 0; i-- {
			if c.bars[i].IsValid() {
				out[c.instrument] = c.bars[i].Close
				break
			}
		}
	}
	return out
}

// tradesFromOrders pairs buy and sell fills per instrument into round
// trips. A position still open at run end is marked to the final close.
func tradesFromOrders(orders []broker.Order, finalClose map[string]float64) []Trade {
	var trades []Trade
	open := make(map[string]*Trade)

	for _, o := range orders {
		if !o.IsFilled() {
			continue
		}
		switch o.Side {
		case broker.OrderSideBuy:
			if _, exists := open[o.Instrument]; !exists {
				open[o.Instrument] = &Trade{
					Instrument: o.Instrument,
					Size:       o.Size,
					EntryPrice: o.Price,
					EntryTime:  o.CreatedAt,
				}
			}
		case broker.OrderSideSell:
			if t, exists := open[o.Instrument]; exists {
				t.ExitPrice = o.Price
				t.ExitTime = o.CreatedAt
				t.Return = (t.ExitPrice - t.EntryPrice) / t.EntryPrice
				t.Closed = true
				trades = append(trades, *t)
				delete(open, o.Instrument)
			}
		}
	}

	for inst, t := range open {
		if px, ok := finalClose[inst]; ok {
			t.ExitPrice = px
			t.Return = (t.ExitPrice - t.EntryPrice) / t.EntryPrice
		}
		trades = append(trades, *t)
	}

	sort.Slice(trades, func(i, j int) bool {
		if trades[i].EntryTime.Equal(trades[j].EntryTime) {
			return trades[i].Instrument < trades[j].Instrument
		}
		return trades[i].EntryTime.Before(trades[j].EntryTime)
	})
	return trades
}
