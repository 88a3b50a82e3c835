package report

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/helmquant/helm/internal/backtest"
	"go.uber.org/zap"
)

// Render produces the plain-text summary of a completed replay.
func Render(res *backtest.Result) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Strategy:     %s\n", res.Strategy)
	fmt.Fprintf(&b, "Period:       %s to %s\n", res.Start.Format("2006-01-02"), res.End.Format("2006-01-02"))
	fmt.Fprintf(&b, "Instruments:  %s\n", strings.Join(res.Instruments, ", "))
	b.WriteString("\n")

	fmt.Fprintf(&b, "Total return:       %.2f%%\n", res.Stats.TotalReturn)
	fmt.Fprintf(&b, "Max drawdown:       %.2f%%\n", res.Stats.MaxDrawdown)
	fmt.Fprintf(&b, "Annualized return:  %s\n", pct(res.Performance.AnnualizedReturn))
	fmt.Fprintf(&b, "Downside deviation: %s\n", pct(res.Performance.DownsideDeviation))
	fmt.Fprintf(&b, "Sortino ratio:      %s\n", ratio(res.Performance.Ratio))
	b.WriteString("\n")

	fmt.Fprintf(&b, "Trades:   %d total, %d won, %d lost (%.1f%% win rate)\n",
		res.Stats.TotalTrades, res.Stats.WinningTrades, res.Stats.LosingTrades, res.Stats.WinRate)

	if len(res.Trades) > 0 {
		b.WriteString("\n")
		for _, t := range res.Trades {
			status := "closed"
			if !t.Closed {
				status = "open"
			}
			fmt.Fprintf(&b, "  %-8s %6d @ %.2f -> %.2f  %+.2f%%  (%s)\n",
				t.Instrument, t.Size, t.EntryPrice, t.ExitPrice, t.Return*100, status)
		}
	}

	return b.String()
}

func pct(v float64) string {
	if math.IsNaN(v) {
		return "n/a"
	}
	return fmt.Sprintf("%.2f%%", v*100)
}

func ratio(v float64) string {
	switch {
	case math.IsNaN(v):
		return "n/a"
	case math.IsInf(v, 1):
		return "+inf"
	default:
		return fmt.Sprintf("%.3f", v)
	}
}

// Publisher renders results and archives them through a sink.
type Publisher struct {
	sink Sink
	log  *zap.Logger
}

// NewPublisher creates a publisher. A nil logger disables logging.
func NewPublisher(sink Sink, log *zap.Logger) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{sink: sink, log: log}
}

// Publish renders the result and stores it keyed by strategy and run end
// time. Returns the archive key.
func (p *Publisher) Publish(ctx context.Context, res *backtest.Result) (string, error) {
	key := fmt.Sprintf("%s/%s.txt", res.Strategy, res.End.Format("2006-01-02T150405"))
	if err := p.sink.Put(ctx, key, []byte(Render(res))); err != nil {
		return "", fmt.Errorf("archiving report: %w", err)
	}

	p.log.Info("report archived",
		zap.String("key", key),
		zap.Time("run_end", res.End),
	)
	return key, nil
}
