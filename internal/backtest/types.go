package backtest

import (
	"time"

	"github.com/helmquant/helm/internal/analyzer"
	"github.com/helmquant/helm/internal/core"
)

// Series is one instrument's bar history, time-ordered. Instruments may
// start late, end early, or gap relative to each other.
type Series struct {
	Instrument string
	Bars       []core.Bar
}

// Result holds the complete replay output
type Result struct {
	Strategy    string
	Start       time.Time
	End         time.Time
	Instruments []string
	Equity      []core.EquitySample
	Trades      []Trade
	Stats       Stats
	Performance analyzer.Result
}

// Trade represents a round trip from entry fill to exit fill
type Trade struct {
	Instrument string
	Size       int64
	EntryPrice float64
	ExitPrice  float64
	EntryTime  time.Time
	ExitTime   time.Time
	Return     float64 // fractional return
	Closed     bool    // false if the position was still open at run end
}

// IsWin returns true if the trade was profitable
func (t Trade) IsWin() bool {
	return t.Return > 0
}

// Stats holds performance statistics
type Stats struct {
	TotalTrades   int
	WinningTrades int
	LosingTrades  int
	WinRate       float64 // percentage of profitable closed trades
	TotalReturn   float64 // portfolio return percentage over the run
	MaxDrawdown   float64 // largest peak-to-trough equity decline, percent
}
