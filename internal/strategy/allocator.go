package strategy

import "go.uber.org/zap"

// Allocator divides free cash across the tradeable set. The result is cached
// keyed by the tradeable count: cash drift alone never triggers a
// recomputation, only a change in how many instruments share the pool.
type Allocator struct {
	cachedCount int
	cachedAlloc float64
	valid       bool
	log         *zap.Logger
}

// NewAllocator creates an allocator. A nil logger disables logging.
func NewAllocator(log *zap.Logger) *Allocator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Allocator{log: log}
}

// PerInstrument returns freeCash / max(1, tradeableCount). A non-positive
// freeCash yields a non-positive allocation, which downstream sizing treats
// as "no trade".
func (a *Allocator) PerInstrument(tradeableCount int, freeCash float64) float64 {
	n := tradeableCount
	if n < 1 {
		n = 1
	}
	if a.valid && a.cachedCount == n {
		return a.cachedAlloc
	}

	a.cachedAlloc = freeCash / float64(n)
	a.cachedCount = n
	a.valid = true
	a.log.Debug("capital allocation recomputed",
		zap.Float64("free_cash", freeCash),
		zap.Int("tradeable", n),
		zap.Float64("per_instrument", a.cachedAlloc),
	)
	return a.cachedAlloc
}

// Invalidate drops the cache so the next call recomputes regardless of count.
func (a *Allocator) Invalidate() {
	a.valid = false
}
