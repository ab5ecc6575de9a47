// Package indicator provides the auxiliary technical indicators whose
// readings are appended to the forecaster's feature vector.
//
// All indicators implement the Indicator interface, receiving candles and
// producing float64 values. Moving averages are price-denominated; oscillators
// are bounded to [0, 100].
package indicator

import "trading-forecaster/internal/model"

// Indicator is the interface for all technical indicators.
type Indicator interface {
	// Name returns the indicator type (e.g., "SMA", "RSI").
	Name() string

	// Period returns the configured lookback period.
	Period() int

	// Update feeds a new candle and recalculates.
	Update(candle model.Candle)

	// Value returns the current calculated value. Returns 0 if not enough data.
	Value() float64

	// Ready returns true when enough data has been accumulated.
	Ready() bool

	// Warmup returns the number of candles needed before Ready is true.
	Warmup() int

	// Peek returns what Value would be after Update(candle), WITHOUT
	// mutating internal state.
	Peek(candle model.Candle) float64
}
