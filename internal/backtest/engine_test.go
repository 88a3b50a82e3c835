package backtest

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/helmquant/helm/internal/analyzer"
	"github.com/helmquant/helm/internal/core"
	"github.com/helmquant/helm/internal/execlog"
	"github.com/helmquant/helm/internal/strategy"
)

func dailyBars(instrument string, closes []float64) []core.Bar {
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	bars := make([]core.Bar, len(closes))
	for i, c := range closes {
		bars[i] = core.Bar{
			Instrument: instrument,
			Open:       c,
			High:       c,
			Low:        c,
			Close:      c,
			Volume:     1000,
			Time:       start.AddDate(0, 0, i),
		}
	}
	return bars
}

func testConfig() Config {
	return Config{
		Params: strategy.Params{
			FastPeriod:         2,
			SlowPeriod:         3,
			AllocationFraction: 0.90,
			MinSize:            1,
		},
		Analyzer:  analyzer.DefaultConfig(),
		StartCash: 100000,
	}
}

func TestRunRoundTrip(t *testing.T) {
	// Fast SMA(2) crosses above slow SMA(3) at the 14 bar and back below at
	// the 2 bar.
	closes := []float64{10, 10, 10, 14, 6, 2}
	e := New(testConfig(), nil, nil, nil)

	res, err := e.Run(context.Background(), []Series{{Instrument: "AAPL", Bars: dailyBars("AAPL", closes)}})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(res.Trades) != 1 {
		t.Fatalf("got %d trades, want 1: %+v", len(res.Trades), res.Trades)
	}
	trade := res.Trades[0]
	if !trade.Closed {
		t.Error("trade not closed")
	}
	// floor(100000 * 0.90 / 14) shares on entry.
	if trade.Size != 6428 {
		t.Errorf("trade size = %d, want 6428", trade.Size)
	}
	if trade.EntryPrice != 14 || trade.ExitPrice != 2 {
		t.Errorf("entry/exit = %f/%f, want 14/2", trade.EntryPrice, trade.ExitPrice)
	}

	if len(res.Equity) != len(closes) {
		t.Errorf("got %d equity samples, want %d", len(res.Equity), len(closes))
	}
	// 100000 - 6428*14 + 6428*2
	want := 100000.0 - 6428*14 + 6428*2
	if got := res.Equity[len(res.Equity)-1].Value; math.Abs(got-want) > 1e-9 {
		t.Errorf("final equity = %f, want %f", got, want)
	}

	if res.Stats.TotalTrades != 1 || res.Stats.LosingTrades != 1 {
		t.Errorf("unexpected stats: %+v", res.Stats)
	}
	if res.Strategy != StrategyName {
		t.Errorf("strategy = %q, want %q", res.Strategy, StrategyName)
	}
}

func TestRunJournalsLifecycle(t *testing.T) {
	closes := []float64{10, 10, 10, 14, 6, 2}
	journal := execlog.New()
	e := New(testConfig(), journal, nil, nil)

	if _, err := e.Run(context.Background(), []Series{{Instrument: "AAPL", Bars: dailyBars("AAPL", closes)}}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if n := journal.Count(execlog.Filter{Kind: execlog.KindActivation}); n != 1 {
		t.Errorf("activation records = %d, want 1", n)
	}
	// Signals are evaluated only from the first ready step onward.
	if n := journal.Count(execlog.Filter{Kind: execlog.KindSignal}); n != 3 {
		t.Errorf("signal records = %d, want 3", n)
	}
	intents := journal.List(execlog.Filter{Kind: execlog.KindIntent})
	if len(intents) != 2 {
		t.Fatalf("intent records = %d, want 2", len(intents))
	}
	if intents[0].Action != core.ActionBuy || intents[1].Action != core.ActionSell {
		t.Errorf("intent actions = %s, %s", intents[0].Action, intents[1].Action)
	}

	// Both intents filled, each correlated back to its intent record: same
	// ID, instrument and action carried over, and the fill sequenced after
	// the intent it answers.
	fills := journal.List(execlog.Filter{Kind: execlog.KindFill})
	if len(fills) != 2 {
		t.Fatalf("fill records = %d, want 2", len(fills))
	}
	for i, f := range fills {
		intent := intents[i]
		if f.IntentID == "" || f.IntentID != intent.IntentID {
			t.Errorf("fill %d IntentID = %q, want %q", i, f.IntentID, intent.IntentID)
		}
		if f.Instrument != "AAPL" {
			t.Errorf("fill %d Instrument = %q, want AAPL", i, f.Instrument)
		}
		if f.Action != intent.Action {
			t.Errorf("fill %d Action = %s, want %s", i, f.Action, intent.Action)
		}
		if f.Reason != "" {
			t.Errorf("fill %d flagged %q, want matched", i, f.Reason)
		}
		if f.Seq <= intent.Seq {
			t.Errorf("fill %d Seq = %d, not after its intent Seq %d", i, f.Seq, intent.Seq)
		}
	}
}

func TestRunOpenPositionMarkedToFinalClose(t *testing.T) {
	// Upward cross with no subsequent downward cross: the position stays
	// open and is valued at the final close.
	closes := []float64{10, 10, 10, 14, 16, 18}
	e := New(testConfig(), nil, nil, nil)

	res, err := e.Run(context.Background(), []Series{{Instrument: "AAPL", Bars: dailyBars("AAPL", closes)}})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(res.Trades) != 1 {
		t.Fatalf("got %d trades, want 1", len(res.Trades))
	}
	trade := res.Trades[0]
	if trade.Closed {
		t.Error("trade marked closed, want open")
	}
	if trade.ExitPrice != 18 {
		t.Errorf("ExitPrice = %f, want final close 18", trade.ExitPrice)
	}
	if trade.Return <= 0 {
		t.Errorf("Return = %f, want > 0", trade.Return)
	}
}

func TestRunInvalidBarDoesNotAbort(t *testing.T) {
	bars := dailyBars("AAPL", []float64{10, 10, 10, 14, 6})
	// A malformed bar after activation: the step is skipped for this
	// instrument and the run continues.
	bad := core.Bar{
		Instrument: "AAPL",
		Close:      math.NaN(),
		Time:       bars[4].Time.AddDate(0, 0, 1),
	}
	last := bars[4]
	last.Close, last.Open, last.High, last.Low = 2, 2, 2, 2
	last.Time = bad.Time.AddDate(0, 0, 1)
	bars = append(bars, bad, last)

	journal := execlog.New()
	e := New(testConfig(), journal, nil, nil)

	res, err := e.Run(context.Background(), []Series{{Instrument: "AAPL", Bars: bars}})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(res.Equity) != 7 {
		t.Errorf("got %d equity samples, want 7", len(res.Equity))
	}

	skips := journal.List(execlog.Filter{Kind: execlog.KindSkip})
	if len(skips) != 1 || skips[0].Reason != strategy.SkipDataUnavailable {
		t.Errorf("skip records = %+v, want one data-unavailable skip", skips)
	}
}

func TestRunStaggeredInstruments(t *testing.T) {
	// MSFT starts three days later than AAPL; the timeline is the union and
	// MSFT activates once it has its own history.
	aapl := dailyBars("AAPL", []float64{10, 10, 10, 14, 6, 2, 2, 2})
	msft := dailyBars("MSFT", []float64{50, 50, 50, 70, 80})
	for i := range msft {
		msft[i].Time = msft[i].Time.AddDate(0, 0, 3)
	}

	journal := execlog.New()
	e := New(testConfig(), journal, nil, nil)

	res, err := e.Run(context.Background(), []Series{
		{Instrument: "AAPL", Bars: aapl},
		{Instrument: "MSFT", Bars: msft},
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(res.Equity) != 8 {
		t.Errorf("got %d equity samples, want 8", len(res.Equity))
	}
	if n := journal.Count(execlog.Filter{Kind: execlog.KindActivation}); n != 2 {
		t.Errorf("activation records = %d, want 2", n)
	}
	if len(res.Instruments) != 2 {
		t.Errorf("instruments = %v, want 2 entries", res.Instruments)
	}
}

func TestRunEmptySeries(t *testing.T) {
	e := New(testConfig(), nil, nil, nil)
	if _, err := e.Run(context.Background(), nil); !errors.Is(err, core.ErrNoData) {
		t.Errorf("Run(nil) error = %v, want ErrNoData", err)
	}
}

func TestRunHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := New(testConfig(), nil, nil, nil)
	_, err := e.Run(ctx, []Series{{Instrument: "AAPL", Bars: dailyBars("AAPL", []float64{10, 11})}})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
}
