// Package broker provides the order types and the simulated broker the
// replay engine trades against.
package broker

import (
	"errors"
	"time"
)

// Broker-specific errors.
var (
	// ErrInvalidSize indicates a non-positive order size.
	ErrInvalidSize = errors.New("broker: invalid size")
	// ErrNoPosition indicates a close request for an instrument with no position.
	ErrNoPosition = errors.New("broker: no open position")
	// ErrNoPrice indicates the instrument has no marked price yet.
	ErrNoPrice = errors.New("broker: no price marked for instrument")
)

// OrderSide represents the direction of an order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// OrderStatus represents the lifecycle status of an order.
type OrderStatus string

const (
	OrderStatusFilled   OrderStatus = "FILLED"
	OrderStatusRejected OrderStatus = "REJECTED"
)

// Order is one processed intent with its outcome.
type Order struct {
	ID              string
	Instrument      string
	Side            OrderSide
	Size            int64
	Price           float64 // execution price for fills
	Commission      float64
	Status          OrderStatus
	RejectionReason string
	CreatedAt       time.Time
}

// IsFilled returns true if the order executed.
func (o Order) IsFilled() bool {
	return o.Status == OrderStatusFilled
}

// Position is a holding in one instrument.
type Position struct {
	Instrument  string
	Size        int64
	AverageCost float64
	RealizedPL  float64
}

// Update is the asynchronous notification for a processed order.
type Update struct {
	Order Order
	Time  time.Time
}

// UpdateHandler receives order updates.
type UpdateHandler func(Update)
