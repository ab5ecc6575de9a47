package indicator

import "trading-forecaster/internal/model"

// SMMA calculates Smoothed Moving Average (Wilder-style smoothing).
// First value is SMA(period), then SMMA = (prev*(period-1) + price) / period.
type SMMA struct {
	period  int
	count   int
	sum     float64
	current float64
}

// NewSMMA creates a new SMMA indicator with the given period.
func NewSMMA(period int) *SMMA {
	return &SMMA{period: period}
}

func (s *SMMA) Name() string { return "SMMA" }
func (s *SMMA) Period() int  { return s.period }
func (s *SMMA) Warmup() int  { return s.period }

func (s *SMMA) Update(candle model.Candle) {
	price := candle.Close
	s.count++

	if s.count <= s.period {
		s.sum += price
		if s.count == s.period {
			s.current = s.sum / float64(s.period)
		}
		return
	}

	s.current = (s.current*float64(s.period-1) + price) / float64(s.period)
}

// Peek computes what Value() would be with an additional candle without mutating state.
func (s *SMMA) Peek(candle model.Candle) float64 {
	price := candle.Close
	switch n := s.count + 1; {
	case n < s.period:
		return s.current
	case n == s.period:
		return (s.sum + price) / float64(s.period)
	}
	return (s.current*float64(s.period-1) + price) / float64(s.period)
}

func (s *SMMA) Value() float64 { return s.current }
func (s *SMMA) Ready() bool    { return s.count >= s.period }
