// Package analyzer scores a realized equity path with a downside-risk
// adjusted return ratio. It operates on the complete equity sequence at run
// end; there is no incremental form.
package analyzer

import (
	"math"

	"github.com/helmquant/helm/internal/core"
)

// Config holds the annualization inputs.
type Config struct {
	RiskFreeRate        float64 // annual, as a fraction
	PeriodsPerYear      int     // 252 for daily bars
	MinAcceptableReturn float64 // annual MAR, as a fraction
}

// DefaultConfig returns the conventional daily-bar setup.
func DefaultConfig() Config {
	return Config{
		RiskFreeRate:        0.0,
		PeriodsPerYear:      252,
		MinAcceptableReturn: 0.0,
	}
}

// Result is the immutable analyzer output. Undefined values are NaN; a run
// with positive excess return and zero downside risk yields Ratio = +Inf.
// Both are legitimate outcomes, not failures.
type Result struct {
	AnnualizedReturn  float64
	DownsideDeviation float64
	Ratio             float64
	Periods           int
}

// Defined reports whether the ratio is a usable number (finite or +Inf).
func (r Result) Defined() bool {
	return !math.IsNaN(r.Ratio)
}

// Finalize computes the downside-risk-adjusted result from the equity path.
// Fewer than two samples is not an error: the result is undefined with zero
// periods.
func Finalize(samples []core.EquitySample, cfg Config) Result {
	res := Result{
		AnnualizedReturn:  math.NaN(),
		DownsideDeviation: math.NaN(),
		Ratio:             math.NaN(),
	}
	if len(samples) < 2 {
		return res
	}

	ppy := float64(cfg.PeriodsPerYear)
	if ppy < 1 {
		ppy = 252
	}

	returns := make([]float64, 0, len(samples)-1)
	for i := 1; i < len(samples); i++ {
		returns = append(returns, samples[i].Value/samples[i-1].Value-1)
	}
	res.Periods = len(returns)

	// Geometric growth annualized; total-loss paths pin at -1 instead of
	// producing a complex root.
	growth := 1.0
	for _, r := range returns {
		growth *= 1 + r
	}
	if growth > 0 {
		res.AnnualizedReturn = math.Pow(growth, ppy/float64(len(returns))) - 1
	} else {
		res.AnnualizedReturn = -1
	}

	// Downside deviation below the per-period MAR, averaged over the full
	// sample count per the classical Sortino denominator.
	marPeriod := math.Pow(1+cfg.MinAcceptableReturn, 1/ppy) - 1
	var sumSq float64
	for _, r := range returns {
		if d := r - marPeriod; d < 0 {
			sumSq += d * d
		}
	}
	res.DownsideDeviation = math.Sqrt(sumSq / float64(len(returns)) * ppy)

	excess := res.AnnualizedReturn - cfg.RiskFreeRate
	switch {
	case res.DownsideDeviation > 0:
		res.Ratio = excess / res.DownsideDeviation
	case excess > 0:
		res.Ratio = math.Inf(1)
	}
	return res
}
