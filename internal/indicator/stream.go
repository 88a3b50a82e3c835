package indicator

import "math"

// Stream is a rolling simple moving average fed one price at a time.
// Value returns NaN until the window has filled, matching the undefined
// region of a batch SMA over a short history.
type Stream struct {
	period int
	window []float64
	head   int
	count  int
	sum    float64
}

// NewStream creates a streaming SMA with the given period.
func NewStream(period int) *Stream {
	if period < 1 {
		period = 1
	}
	return &Stream{
		period: period,
		window: make([]float64, period),
	}
}

// Update pushes the next price and returns the current average.
func (s *Stream) Update(price float64) float64 {
	if s.count == s.period {
		s.sum -= s.window[s.head]
	} else {
		s.count++
	}
	s.window[s.head] = price
	s.sum += price
	s.head = (s.head + 1) % s.period
	return s.Value()
}

// Value returns the current average, NaN until the window is full.
func (s *Stream) Value() float64 {
	if s.count < s.period {
		return math.NaN()
	}
	return s.sum / float64(s.period)
}

// Ready reports whether the window has filled.
func (s *Stream) Ready() bool {
	return s.count == s.period
}

// Cross tracks the sign of (fast - slow) across updates and reports
// crossovers: +1 when fast moves above slow having been at-or-below on the
// prior update, -1 for the symmetric downward move, 0 otherwise. The value
// is NaN until both inputs have produced two defined observations.
type Cross struct {
	prevDiff float64
	hasPrev  bool
	value    float64
}

// NewCross creates a crossover tracker.
func NewCross() *Cross {
	return &Cross{value: math.NaN()}
}

// Update consumes the current fast and slow values and returns the signed
// crossover for this step.
func (c *Cross) Update(fast, slow float64) float64 {
	if math.IsNaN(fast) || math.IsNaN(slow) {
		c.hasPrev = false
		c.value = math.NaN()
		return c.value
	}

	diff := fast - slow
	if !c.hasPrev {
		c.prevDiff = diff
		c.hasPrev = true
		c.value = math.NaN()
		return c.value
	}

	switch {
	case c.prevDiff <= 0 && diff > 0:
		c.value = 1
	case c.prevDiff >= 0 && diff < 0:
		c.value = -1
	default:
		c.value = 0
	}
	c.prevDiff = diff
	return c.value
}

// Value returns the crossover computed by the last Update.
func (c *Cross) Value() float64 {
	return c.value
}
