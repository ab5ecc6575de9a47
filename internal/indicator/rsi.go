package indicator

import "trading-forecaster/internal/model"

// RSI calculates the Relative Strength Index using Wilder's smoothing method.
// Update is O(1) per candle. Values are bounded to [0, 100].
type RSI struct {
	period    int
	count     int
	prevClose float64
	avgGain   float64
	avgLoss   float64
	current   float64
}

// NewRSI creates a new RSI indicator with the given period (typically 14).
func NewRSI(period int) *RSI {
	return &RSI{period: period}
}

func (r *RSI) Name() string { return "RSI" }
func (r *RSI) Period() int  { return r.period }

// Warmup is period+1: the first candle only seeds prevClose.
func (r *RSI) Warmup() int { return r.period + 1 }

func (r *RSI) Update(candle model.Candle) {
	price := candle.Close
	r.count++

	if r.count == 1 {
		r.prevClose = price
		return
	}

	delta := price - r.prevClose
	r.prevClose = price

	gain, loss := 0.0, 0.0
	if delta > 0 {
		gain = delta
	} else {
		loss = -delta
	}

	if r.count <= r.period+1 {
		// Accumulation phase: build initial averages
		r.avgGain += gain
		r.avgLoss += loss

		if r.count == r.period+1 {
			r.avgGain /= float64(r.period)
			r.avgLoss /= float64(r.period)
			r.current = rsiIndex(r.avgGain, r.avgLoss)
		}
		return
	}

	// Wilder's smoothing: avgGain = (prevAvgGain * (period-1) + gain) / period
	p := float64(r.period)
	r.avgGain = (r.avgGain*(p-1) + gain) / p
	r.avgLoss = (r.avgLoss*(p-1) + loss) / p
	r.current = rsiIndex(r.avgGain, r.avgLoss)
}

// Peek computes what RSI would be with an additional candle without mutating state.
func (r *RSI) Peek(candle model.Candle) float64 {
	n := r.count + 1
	if n == 1 {
		return r.current
	}
	gain, loss := 0.0, 0.0
	if delta := candle.Close - r.prevClose; delta > 0 {
		gain = delta
	} else {
		loss = -delta
	}

	p := float64(r.period)
	switch {
	case n < r.period+1:
		return r.current
	case n == r.period+1:
		return rsiIndex((r.avgGain+gain)/p, (r.avgLoss+loss)/p)
	}
	return rsiIndex((r.avgGain*(p-1)+gain)/p, (r.avgLoss*(p-1)+loss)/p)
}

func rsiIndex(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100.0
	}
	rs := avgGain / avgLoss
	return 100.0 - (100.0 / (1.0 + rs))
}

func (r *RSI) Value() float64 { return r.current }
func (r *RSI) Ready() bool    { return r.count > r.period }
