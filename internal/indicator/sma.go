// Package indicator provides the moving-average primitives behind the
// crossover signal: a batch SMA over a full price history and the streaming
// Stream/Cross trackers the replay engine feeds bar by bar.
package indicator

// SMA computes the simple moving average over prices. The result has
// len(prices) - period + 1 entries, one per fully covered window; it is
// empty when the history is shorter than the period.
func SMA(prices []float64, period int) []float64 {
	if period <= 0 || len(prices) < period {
		return []float64{}
	}

	result := make([]float64, 0, len(prices)-period+1)

	var sum float64
	for i := 0; i < period; i++ {
		sum += prices[i]
	}
	result = append(result, sum/float64(period))

	for i := period; i < len(prices); i++ {
		sum = sum - prices[i-period] + prices[i]
		result = append(result, sum/float64(period))
	}

	return result
}
