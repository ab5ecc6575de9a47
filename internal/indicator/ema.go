package indicator

import "trading-forecaster/internal/model"

// EMA calculates Exponential Moving Average, seeded with the SMA of the
// first period closes. O(1) per update.
type EMA struct {
	period     int
	multiplier float64
	current    float64
	count      int
	sum        float64
}

// NewEMA creates a new EMA indicator with the given period.
func NewEMA(period int) *EMA {
	return &EMA{
		period:     period,
		multiplier: 2.0 / float64(period+1),
	}
}

func (e *EMA) Name() string { return "EMA" }
func (e *EMA) Period() int  { return e.period }
func (e *EMA) Warmup() int  { return e.period }

func (e *EMA) Update(candle model.Candle) {
	price := candle.Close
	e.count++

	if e.count <= e.period {
		e.sum += price
		if e.count == e.period {
			e.current = e.sum / float64(e.period)
		}
		return
	}

	e.current = (price * e.multiplier) + (e.current * (1 - e.multiplier))
}

// Peek computes what Value() would be with an additional candle without mutating state.
func (e *EMA) Peek(candle model.Candle) float64 {
	price := candle.Close
	switch n := e.count + 1; {
	case n < e.period:
		return e.current
	case n == e.period:
		return (e.sum + price) / float64(e.period)
	}
	return (price * e.multiplier) + (e.current * (1 - e.multiplier))
}

func (e *EMA) Value() float64 { return e.current }
func (e *EMA) Ready() bool    { return e.count >= e.period }
