package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrMalformedCandle is returned by Candle.Validate when a required field is
// missing or out of range.
var ErrMalformedCandle = errors.New("malformed candle")

// Candle is one time-stepped market observation for a single instrument.
// Prices are in quote currency units.
type Candle struct {
	Token    string    `json:"token"`
	Exchange string    `json:"exchange"`
	TS       time.Time `json:"ts"` // bucket start time (UTC)
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	VWP      float64   `json:"vwp"`    // volume-weighted price
	Volume   float64   `json:"volume"` // base-asset quantity traded in the bucket
	Trades   int64     `json:"trades"` // number of trades aggregated
}

// Key returns a unique key for this candle's instrument: "exchange:token".
func (c *Candle) Key() string {
	return c.Exchange + ":" + c.Token
}

// JSON returns the JSON-encoded candle (ignoring errors for hot-path usage).
func (c *Candle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}

// Validate reports whether every field the forecaster reads is present.
// A zero price, volume or trade count means the field never arrived.
func (c *Candle) Validate() error {
	prices := [...]struct {
		name string
		v    float64
	}{
		{"open", c.Open},
		{"high", c.High},
		{"low", c.Low},
		{"close", c.Close},
		{"vwp", c.VWP},
	}
	for _, p := range prices {
		if math.IsNaN(p.v) || math.IsInf(p.v, 0) || p.v <= 0 {
			return fmt.Errorf("%w: %s=%v", ErrMalformedCandle, p.name, p.v)
		}
	}
	if c.High < c.Low {
		return fmt.Errorf("%w: high %v below low %v", ErrMalformedCandle, c.High, c.Low)
	}
	if math.IsNaN(c.Volume) || math.IsInf(c.Volume, 0) || c.Volume <= 0 {
		return fmt.Errorf("%w: volume=%v", ErrMalformedCandle, c.Volume)
	}
	if c.Trades <= 0 {
		return fmt.Errorf("%w: trades=%d", ErrMalformedCandle, c.Trades)
	}
	return nil
}
