package core

import (
	"math"
	"time"
)

// Bar represents one time-sampled price/volume record for an instrument
type Bar struct {
	Instrument string
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Volume     int64
	Time       time.Time
}

// IsValid checks that the bar carries a usable close price
func (b Bar) IsValid() bool {
	return b.Instrument != "" && b.Close > 0 && !math.IsNaN(b.Close)
}

// Action represents a trading signal action
type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
	ActionHold Action = "hold"
)

// Signal represents a crossover decision for one instrument at one step
type Signal struct {
	Instrument  string
	Action      Action
	Crossover   float64 // +1 fast crossed above slow, -1 crossed below, 0 no cross
	FastMA      float64
	SlowMA      float64
	Price       float64 // Close at signal generation
	Step        int
	GeneratedAt time.Time
}

// EquitySample is one (step, portfolio value) point of the realized equity path.
// Appended once per global step and never mutated afterwards.
type EquitySample struct {
	Step  int
	Value float64
	Time  time.Time
}
