// Package feature turns candles and indicator readings into the fixed-length
// normalized vectors the predictive model consumes.
//
// Vector layout:
//
//	[open, low, high, close, vwp, averages..., volume, trades, oscillators...]
//
// Price-denominated fields are divided by a fixed price divider and rounded to
// 4 decimals. Volume and trade count are divided by their running maxima,
// oscillators by 100.
package feature

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"trading-forecaster/internal/indicator"
	"trading-forecaster/internal/model"
)

// Positions of the fixed price fields inside a Vector.
const (
	IdxOpen = iota
	IdxLow
	IdxHigh
	IdxClose
	IdxVWP
)

const (
	priceFields   = 5
	activityField = 2 // volume, trades
	pricePlaces   = 4
	oscillatorMax = 100.0
)

var (
	// ErrInvalidDivider is returned when the price divider is not a positive finite number.
	ErrInvalidDivider = errors.New("price divider must be a positive finite number")

	// ErrReadingsMismatch is returned when the indicator readings do not match
	// the widths the Normalizer was built for.
	ErrReadingsMismatch = errors.New("indicator readings do not match vector layout")
)

// Vector is one normalized observation.
type Vector []float64

// Low returns the normalized low price.
func (v Vector) Low() float64 { return v[IdxLow] }

// High returns the normalized high price.
func (v Vector) High() float64 { return v[IdxHigh] }

// Dividers are the normalization denominators.
type Dividers struct {
	Price  float64 `json:"price"`  // fixed: the maximum price ever expected
	Volume float64 `json:"volume"` // running maximum
	Trades float64 `json:"trades"` // running maximum
}

// Normalizer owns the Dividers and mutates them once per accepted candle.
type Normalizer struct {
	div         Dividers
	averages    int
	oscillators int
}

// NewNormalizer creates a Normalizer for vectors carrying the given number of
// averages and oscillators.
func NewNormalizer(maxPossiblePrice float64, averages, oscillators int) (*Normalizer, error) {
	if math.IsNaN(maxPossiblePrice) || math.IsInf(maxPossiblePrice, 0) || maxPossiblePrice <= 0 {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidDivider, maxPossiblePrice)
	}
	if averages < 0 || oscillators < 0 {
		return nil, fmt.Errorf("%w: negative widths", ErrReadingsMismatch)
	}
	return &Normalizer{
		div:         Dividers{Price: maxPossiblePrice},
		averages:    averages,
		oscillators: oscillators,
	}, nil
}

// Width returns the vector length for the given indicator counts.
func Width(averages, oscillators int) int {
	return priceFields + averages + activityField + oscillators
}

// Width returns the length of every vector this Normalizer produces.
func (n *Normalizer) Width() int { return Width(n.averages, n.oscillators) }

// Dividers returns a copy of the current dividers.
func (n *Normalizer) Dividers() Dividers { return n.div }

// Normalize builds the feature vector for c. The running maxima are updated
// to include c before dividing, and only once the whole vector is built: a
// rejected candle leaves the Dividers untouched.
func (n *Normalizer) Normalize(c model.Candle, r indicator.Readings) (Vector, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if len(r.Averages) != n.averages || len(r.Oscillators) != n.oscillators {
		return nil, fmt.Errorf("%w: got %d averages, %d oscillators; want %d, %d",
			ErrReadingsMismatch, len(r.Averages), len(r.Oscillators), n.averages, n.oscillators)
	}
	for _, x := range r.Averages {
		if !finite(x) {
			return nil, fmt.Errorf("%w: non-finite average %v", ErrReadingsMismatch, x)
		}
	}
	for _, x := range r.Oscillators {
		if !finite(x) {
			return nil, fmt.Errorf("%w: non-finite oscillator %v", ErrReadingsMismatch, x)
		}
	}

	volumeDiv := max(n.div.Volume, c.Volume)
	tradesDiv := max(n.div.Trades, float64(c.Trades))

	v := make(Vector, 0, n.Width())
	v = append(v,
		n.price(c.Open),
		n.price(c.Low),
		n.price(c.High),
		n.price(c.Close),
		n.price(c.VWP),
	)
	for _, avg := range r.Averages {
		v = append(v, n.price(avg))
	}
	v = append(v, c.Volume/volumeDiv, float64(c.Trades)/tradesDiv)
	for _, osc := range r.Oscillators {
		v = append(v, osc/oscillatorMax)
	}

	n.div.Volume = volumeDiv
	n.div.Trades = tradesDiv
	return v, nil
}

func (n *Normalizer) price(p float64) float64 {
	return decimal.NewFromFloat(p / n.div.Price).Round(pricePlaces).InexactFloat64()
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
