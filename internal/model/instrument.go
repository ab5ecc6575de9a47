package model

import "strings"

// Instrument identifies the market a forecaster is bound to,
// e.g. Asset "BTC" quoted in Currency "USDT".
type Instrument struct {
	Asset    string `json:"asset"`
	Currency string `json:"currency"`
}

// Key returns "ASSET_CURRENCY", upper-cased.
func (i Instrument) Key() string {
	return strings.ToUpper(i.Asset) + "_" + strings.ToUpper(i.Currency)
}

// String implements fmt.Stringer.
func (i Instrument) String() string {
	return strings.ToUpper(i.Asset) + "/" + strings.ToUpper(i.Currency)
}
