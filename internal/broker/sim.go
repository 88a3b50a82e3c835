package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Sim is a simulated broker for bounded historical replay. Market orders
// fill at the last marked close with a proportional commission; a buy that
// exceeds free cash is rejected, which is how aggregate over-allocation
// across simultaneous signals resolves. Outcomes are queued at submission
// and reach the subscribed handler only on Flush, so a caller can finish
// recording the submission before its fill or rejection is delivered.
type Sim struct {
	mu         sync.RWMutex
	cash       float64
	commission float64
	positions  map[string]*Position
	lastPrice  map[string]float64
	lastTime   time.Time
	orders     []Order
	pending    []Update
	handler    UpdateHandler
	log        *zap.Logger
}

// NewSim creates a simulated broker with the given starting cash and
// proportional commission rate (e.g. 0.001 for 0.1%).
func NewSim(startCash, commission float64, log *zap.Logger) *Sim {
	if log == nil {
		log = zap.NewNop()
	}
	return &Sim{
		cash:       startCash,
		commission: commission,
		positions:  make(map[string]*Position),
		lastPrice:  make(map[string]float64),
		log:        log,
	}
}

// Subscribe registers the handler that receives order outcomes.
func (s *Sim) Subscribe(h UpdateHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
}

// MarkPrice records the latest close for an instrument; fills and portfolio
// valuation use marked prices.
func (s *Sim) MarkPrice(instrument string, price float64, at time.Time) {
	if price <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastPrice[instrument] = price
	s.lastTime = at
}

// SubmitBuy places a market buy. The returned ID identifies the intent; the
// fill or rejection arrives via the subscribed handler.
func (s *Sim) SubmitBuy(ctx context.Context, instrument string, size int64) (string, error) {
	if size <= 0 {
		return "", ErrInvalidSize
	}

	s.mu.Lock()
	price, ok := s.lastPrice[instrument]
	if !ok {
		s.mu.Unlock()
		return "", ErrNoPrice
	}

	order := Order{
		ID:         uuid.NewString(),
		Instrument: instrument,
		Side:       OrderSideBuy,
		Size:       size,
		Price:      price,
		CreatedAt:  s.lastTime,
	}

	cost := price * float64(size)
	comm := cost * s.commission
	if cost+comm > s.cash {
		order.Status = OrderStatusRejected
		order.RejectionReason = fmt.Sprintf("insufficient cash: need %.2f, have %.2f", cost+comm, s.cash)
		s.finish(order)
		return order.ID, nil
	}

	order.Status = OrderStatusFilled
	order.Commission = comm
	s.cash -= cost + comm

	pos, exists := s.positions[instrument]
	if !exists {
		pos = &Position{Instrument: instrument}
		s.positions[instrument] = pos
	}
	// Weighted average cost across adds.
	totalCost := pos.AverageCost*float64(pos.Size) + cost
	pos.Size += size
	pos.AverageCost = totalCost / float64(pos.Size)

	s.finish(order)
	return order.ID, nil
}

// SubmitClose places a market sell for the full current position.
func (s *Sim) SubmitClose(ctx context.Context, instrument string) (string, error) {
	s.mu.Lock()
	price, ok := s.lastPrice[instrument]
	if !ok {
		s.mu.Unlock()
		return "", ErrNoPrice
	}

	order := Order{
		ID:         uuid.NewString(),
		Instrument: instrument,
		Side:       OrderSideSell,
		Price:      price,
		CreatedAt:  s.lastTime,
	}

	pos, exists := s.positions[instrument]
	if !exists || pos.Size == 0 {
		order.Status = OrderStatusRejected
		order.RejectionReason = "no open position"
		s.finish(order)
		return order.ID, nil
	}

	proceeds := price * float64(pos.Size)
	comm := proceeds * s.commission

	order.Status = OrderStatusFilled
	order.Size = pos.Size
	order.Commission = comm

	pos.RealizedPL += (price - pos.AverageCost) * float64(pos.Size)
	s.cash += proceeds - comm
	pos.Size = 0

	s.finish(order)
	return order.ID, nil
}

// finish appends the order and queues its outcome for the next Flush.
// Callers hold the lock; finish releases it.
func (s *Sim) finish(order Order) {
	s.orders = append(s.orders, order)
	s.pending = append(s.pending, Update{Order: order, Time: s.lastTime})
	s.mu.Unlock()

	if order.Status == OrderStatusRejected {
		s.log.Warn("order rejected",
			zap.String("instrument", order.Instrument),
			zap.String("side", string(order.Side)),
			zap.String("reason", order.RejectionReason),
		)
	}
}

// Flush delivers all queued order outcomes to the subscribed handler in
// submission order. The queue is drained even when no handler is set.
func (s *Sim) Flush() {
	s.mu.Lock()
	updates := s.pending
	s.pending = nil
	handler := s.handler
	s.mu.Unlock()

	if handler == nil {
		return
	}
	for _, u := range updates {
		handler(u)
	}
}

// Cash returns free cash.
func (s *Sim) Cash() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cash
}

// Value returns cash plus open positions marked at last known closes.
func (s *Sim) Value() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v := s.cash
	for inst, pos := range s.positions {
		if pos.Size != 0 {
			v += float64(pos.Size) * s.lastPrice[inst]
		}
	}
	return v
}

// Position returns the current position for an instrument, zero-valued when
// none exists.
func (s *Sim) Position(instrument string) Position {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if pos, ok := s.positions[instrument]; ok {
		return *pos
	}
	return Position{Instrument: instrument}
}

// Positions returns all positions with non-zero size or realized P&L.
func (s *Sim) Positions() []Position {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Position, 0, len(s.positions))
	for _, pos := range s.positions {
		if pos.Size != 0 || pos.RealizedPL != 0 {
			out = append(out, *pos)
		}
	}
	return out
}

// Orders returns a copy of all processed orders in submission order.
func (s *Sim) Orders() []Order {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Order, len(s.orders))
	copy(out, s.orders)
	return out
}
