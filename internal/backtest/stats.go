package backtest

import (
	"github.com/helmquant/helm/internal/core"
)

// CalculateStats computes trade and equity-path statistics
func CalculateStats(trades []Trade, equity []core.EquitySample) Stats {
	var winning, losing int
	for _, t := range trades {
		if !t.Closed {
			continue
		}
		if t.IsWin() {
			winning++
		} else {
			losing++
		}
	}

	closed := winning + losing
	var winRate float64
	if closed > 0 {
		winRate = float64(winning) / float64(closed) * 100
	}

	var totalReturn float64
	if len(equity) > 1 && equity[0].Value > 0 {
		totalReturn = (equity[len(equity)-1].Value/equity[0].Value - 1) * 100
	}

	return Stats{
		TotalTrades:   len(trades),
		WinningTrades: winning,
		LosingTrades:  losing,
		WinRate:       winRate,
		TotalReturn:   totalReturn,
		MaxDrawdown:   maxDrawdown(equity) * 100,
	}
}

// maxDrawdown finds the largest peak-to-trough decline of the equity path
func maxDrawdown(equity []core.EquitySample) float64 {
	var maxDD, peak float64
	for _, s := range equity {
		if s.Value > peak {
			peak = s.Value
		}
		if peak > 0 {
			dd := (peak - s.Value) / peak
			if dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}
