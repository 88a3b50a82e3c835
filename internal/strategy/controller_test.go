package strategy

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/helmquant/helm/internal/core"
	"github.com/helmquant/helm/internal/execlog"
)

type buyRequest struct {
	instrument string
	size       int64
}

// fakeSink captures submitted intents and can be made to fail.
type fakeSink struct {
	buys   []buyRequest
	closes []string
	nextID string
	err    error
}

func (f *fakeSink) SubmitBuy(_ context.Context, instrument string, size int64) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.buys = append(f.buys, buyRequest{instrument, size})
	return f.nextID, nil
}

func (f *fakeSink) SubmitClose(_ context.Context, instrument string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.closes = append(f.closes, instrument)
	return f.nextID, nil
}

type fakeRecorder struct {
	signals []string
	intents []string
}

func (f *fakeRecorder) RecordSignal(action string)        { f.signals = append(f.signals, action) }
func (f *fakeRecorder) RecordIntent(side, outcome string) { f.intents = append(f.intents, side+"/"+outcome) }

func newTestController(sink IntentSink, journal *execlog.Log, rec Recorder) (*Controller, *Tracker) {
	params := DefaultParams()
	tracker := NewTracker(params.MinPeriod())
	return NewController(params, tracker, NewAllocator(nil), sink, journal, rec, nil), tracker
}

func tradeableStep(step int, crossover float64) StepContext {
	return StepContext{
		Step:           step,
		Time:           time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, step),
		BarCount:       50,
		Close:          50,
		FastMA:         51,
		SlowMA:         49,
		Crossover:      crossover,
		FreeCash:       100000,
		TradeableCount: 1,
	}
}

func TestOpenLongOnUpwardCross(t *testing.T) {
	sink := &fakeSink{nextID: "intent-1"}
	journal := execlog.New()
	rec := &fakeRecorder{}
	c, _ := newTestController(sink, journal, rec)

	if err := c.OnStep(context.Background(), "AAPL", tradeableStep(50, 1)); err != nil {
		t.Fatalf("OnStep() error = %v", err)
	}

	// floor(100000 * 0.90 / 50) = 1800
	if len(sink.buys) != 1 {
		t.Fatalf("got %d buys, want 1", len(sink.buys))
	}
	if sink.buys[0].size != 1800 {
		t.Errorf("buy size = %d, want 1800", sink.buys[0].size)
	}
	if c.State("AAPL") != Long {
		t.Errorf("state = %s, want LONG", c.State("AAPL"))
	}
	if n := journal.Count(execlog.Filter{Kind: execlog.KindIntent}); n != 1 {
		t.Errorf("intent records = %d, want 1", n)
	}
	if len(rec.intents) != 1 || rec.intents[0] != "buy/submitted" {
		t.Errorf("recorded intents = %v, want [buy/submitted]", rec.intents)
	}
}

func TestHoldWhileLongIsNoOp(t *testing.T) {
	sink := &fakeSink{nextID: "intent-1"}
	journal := execlog.New()
	c, _ := newTestController(sink, journal, nil)

	ctx := context.Background()
	if err := c.OnStep(ctx, "AAPL", tradeableStep(50, 1)); err != nil {
		t.Fatalf("entry error = %v", err)
	}

	// A second upward cross while LONG must not pyramid.
	if err := c.OnStep(ctx, "AAPL", tradeableStep(51, 1)); err != nil {
		t.Fatalf("repeat cross error = %v", err)
	}
	if len(sink.buys) != 1 {
		t.Errorf("got %d buys after repeated cross, want 1", len(sink.buys))
	}

	// Zero crossover while LONG holds the position.
	if err := c.OnStep(ctx, "AAPL", tradeableStep(52, 0)); err != nil {
		t.Fatalf("hold error = %v", err)
	}
	if c.State("AAPL") != Long {
		t.Errorf("state = %s, want LONG", c.State("AAPL"))
	}
}

func TestCloseLongOnDownwardCross(t *testing.T) {
	sink := &fakeSink{nextID: "intent-1"}
	journal := execlog.New()
	c, _ := newTestController(sink, journal, nil)

	ctx := context.Background()
	if err := c.OnStep(ctx, "AAPL", tradeableStep(50, 1)); err != nil {
		t.Fatalf("entry error = %v", err)
	}

	sink.nextID = "intent-2"
	exit := tradeableStep(51, -1)
	exit.PositionSize = 1800
	if err := c.OnStep(ctx, "AAPL", exit); err != nil {
		t.Fatalf("exit error = %v", err)
	}

	if len(sink.closes) != 1 || sink.closes[0] != "AAPL" {
		t.Errorf("closes = %v, want [AAPL]", sink.closes)
	}
	if c.State("AAPL") != Flat {
		t.Errorf("state = %s, want FLAT", c.State("AAPL"))
	}
}

func TestSellWhileFlatIsNoOp(t *testing.T) {
	sink := &fakeSink{nextID: "intent-1"}
	c, _ := newTestController(sink, execlog.New(), nil)

	if err := c.OnStep(context.Background(), "AAPL", tradeableStep(50, -1)); err != nil {
		t.Fatalf("OnStep() error = %v", err)
	}
	if len(sink.closes) != 0 {
		t.Errorf("got %d closes while FLAT, want 0", len(sink.closes))
	}
	if c.State("AAPL") != Flat {
		t.Errorf("state = %s, want FLAT", c.State("AAPL"))
	}
}

func TestBuySkippedWhenSizeBelowMinimum(t *testing.T) {
	sink := &fakeSink{nextID: "intent-1"}
	journal := execlog.New()
	rec := &fakeRecorder{}
	c, _ := newTestController(sink, journal, rec)

	step := tradeableStep(50, 1)
	step.FreeCash = 10
	step.Close = 1000
	if err := c.OnStep(context.Background(), "AAPL", step); err != nil {
		t.Fatalf("OnStep() error = %v", err)
	}

	if len(sink.buys) != 0 {
		t.Fatalf("got %d buys, want 0", len(sink.buys))
	}
	if c.State("AAPL") != Flat {
		t.Errorf("state = %s, want FLAT", c.State("AAPL"))
	}

	skips := journal.List(execlog.Filter{Kind: execlog.KindSkip})
	if len(skips) != 1 || skips[0].Reason != SkipSizingInfeasible {
		t.Errorf("skip records = %+v, want one with reason %q", skips, SkipSizingInfeasible)
	}
	if len(rec.intents) != 1 || rec.intents[0] != "buy/skipped" {
		t.Errorf("recorded intents = %v, want [buy/skipped]", rec.intents)
	}
}

func TestNotReadyBeforeFirstActivation(t *testing.T) {
	sink := &fakeSink{nextID: "intent-1"}
	journal := execlog.New()
	c, _ := newTestController(sink, journal, nil)

	step := tradeableStep(10, 1)
	step.BarCount = 10
	if err := c.OnStep(context.Background(), "AAPL", step); err != nil {
		t.Fatalf("OnStep() error = %v", err)
	}
	if len(journal.Records()) != 0 {
		t.Errorf("got %d journal records before readiness, want 0", len(journal.Records()))
	}
}

func TestBadStepAfterActivationIsSkipped(t *testing.T) {
	sink := &fakeSink{nextID: "intent-1"}
	journal := execlog.New()
	c, tracker := newTestController(sink, journal, nil)

	good := tradeableStep(50, 0)
	tracker.Observe("AAPL", good)
	if err := c.OnStep(context.Background(), "AAPL", good); err != nil {
		t.Fatalf("good step error = %v", err)
	}

	bad := tradeableStep(51, 1)
	bad.Close = math.NaN()
	bad.FastMA = math.NaN()
	bad.SlowMA = math.NaN()
	bad.Crossover = math.NaN()

	err := c.OnStep(context.Background(), "AAPL", bad)
	if !errors.Is(err, core.ErrDataUnavailable) {
		t.Fatalf("OnStep(bad) error = %v, want ErrDataUnavailable", err)
	}
	skips := journal.List(execlog.Filter{Kind: execlog.KindSkip})
	if len(skips) != 1 || skips[0].Reason != SkipDataUnavailable {
		t.Errorf("skip records = %+v, want one with reason %q", skips, SkipDataUnavailable)
	}
	if len(sink.buys) != 0 {
		t.Errorf("got %d buys on a bad step, want 0", len(sink.buys))
	}
}

func TestSubmitErrorKeepsStateFlat(t *testing.T) {
	sink := &fakeSink{err: errors.New("wire down")}
	journal := execlog.New()
	c, _ := newTestController(sink, journal, nil)

	err := c.OnStep(context.Background(), "AAPL", tradeableStep(50, 1))
	if !errors.Is(err, core.ErrOrderRejected) {
		t.Fatalf("OnStep() error = %v, want ErrOrderRejected", err)
	}
	if c.State("AAPL") != Flat {
		t.Errorf("state = %s after failed submission, want FLAT", c.State("AAPL"))
	}
}

func TestInstrumentsAreIndependent(t *testing.T) {
	sink := &fakeSink{nextID: "intent-1"}
	c, _ := newTestController(sink, execlog.New(), nil)

	ctx := context.Background()
	if err := c.OnStep(ctx, "AAPL", tradeableStep(50, 1)); err != nil {
		t.Fatalf("AAPL entry error = %v", err)
	}
	if c.State("AAPL") != Long {
		t.Fatalf("AAPL state = %s, want LONG", c.State("AAPL"))
	}
	if c.State("MSFT") != Flat {
		t.Errorf("MSFT state = %s, want FLAT", c.State("MSFT"))
	}
}

func TestOnFillRecordsFillAndRejection(t *testing.T) {
	sink := &fakeSink{nextID: "intent-1"}
	journal := execlog.New()
	c, _ := newTestController(sink, journal, nil)

	if err := c.OnStep(context.Background(), "AAPL", tradeableStep(50, 1)); err != nil {
		t.Fatalf("entry error = %v", err)
	}

	now := time.Now()
	c.OnFill(FillDetails{IntentID: "intent-1", Instrument: "AAPL", Filled: true, Size: 1800, Price: 50, Time: now})
	c.OnFill(FillDetails{IntentID: "ghost", Instrument: "AAPL", Filled: false, Reason: "insufficient cash", Time: now})

	fills := journal.List(execlog.Filter{Kind: execlog.KindFill})
	if len(fills) != 1 || fills[0].Instrument != "AAPL" {
		t.Errorf("fill records = %+v, want one correlated to AAPL", fills)
	}
	rejects := journal.List(execlog.Filter{Kind: execlog.KindReject})
	if len(rejects) != 1 || rejects[0].Reason != "insufficient cash" {
		t.Errorf("reject records = %+v", rejects)
	}
}
