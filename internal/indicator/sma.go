package indicator

import "trading-forecaster/internal/model"

// SMA calculates Simple Moving Average of closes over a rolling window.
// Uses a preallocated circular buffer for zero-allocation hot path.
type SMA struct {
	period  int
	buf     []float64 // preallocated circular buffer
	idx     int       // current write position
	count   int       // total values received
	sum     float64
	current float64
}

// NewSMA creates a new SMA indicator with the given period.
func NewSMA(period int) *SMA {
	return &SMA{
		period: period,
		buf:    make([]float64, period),
	}
}

func (s *SMA) Name() string { return "SMA" }
func (s *SMA) Period() int  { return s.period }
func (s *SMA) Warmup() int  { return s.period }

func (s *SMA) Update(candle model.Candle) {
	price := candle.Close

	if s.count >= s.period {
		// Subtract the oldest value being overwritten
		s.sum -= s.buf[s.idx]
	}

	s.buf[s.idx] = price
	s.sum += price
	s.idx = (s.idx + 1) % s.period
	s.count++

	if s.count >= s.period {
		s.current = s.sum / float64(s.period)
	}
}

// Peek computes what Value() would be with an additional candle without mutating state.
func (s *SMA) Peek(candle model.Candle) float64 {
	price := candle.Close
	if s.count+1 < s.period {
		return s.current
	}
	if s.count >= s.period {
		// the write at idx replaces the oldest value
		return (s.sum - s.buf[s.idx] + price) / float64(s.period)
	}
	return (s.sum + price) / float64(s.period)
}

func (s *SMA) Value() float64 { return s.current }
func (s *SMA) Ready() bool    { return s.count >= s.period }
