package indicator

import (
	"fmt"
	"strings"

	"trading-forecaster/internal/model"
)

// Config selects the auxiliary indicators that feed the feature vector.
// Windows and periods are ordered sets: order is preserved in the vector and
// duplicates are rejected.
type Config struct {
	AverageType       string // "SMA", "EMA" or "SMMA"; empty means SMA
	AverageWindows    []int
	OscillatorPeriods []int // RSI periods
}

// Readings holds one value per configured indicator, in configuration order.
type Readings struct {
	Averages    []float64
	Oscillators []float64
}

// Set updates a fixed group of averages and oscillators with every candle.
// Designed for single-goroutine usage — no locks needed.
type Set struct {
	averages    []Indicator
	oscillators []Indicator
}

// NewSet validates cfg and creates fresh indicator instances.
func NewSet(cfg Config) (*Set, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	avgType := cfg.averageType()

	s := &Set{
		averages:    make([]Indicator, len(cfg.AverageWindows)),
		oscillators: make([]Indicator, len(cfg.OscillatorPeriods)),
	}
	for i, w := range cfg.AverageWindows {
		ind, err := New(avgType, w)
		if err != nil {
			return nil, err
		}
		s.averages[i] = ind
	}
	for i, p := range cfg.OscillatorPeriods {
		s.oscillators[i] = NewRSI(p)
	}
	return s, nil
}

// New creates a single indicator by type name.
func New(typ string, period int) (Indicator, error) {
	if period <= 0 {
		return nil, fmt.Errorf("invalid period=%d for %s", period, typ)
	}
	switch strings.ToUpper(typ) {
	case "SMA":
		return NewSMA(period), nil
	case "EMA":
		return NewEMA(period), nil
	case "SMMA":
		return NewSMMA(period), nil
	case "RSI":
		return NewRSI(period), nil
	default:
		return nil, fmt.Errorf("unknown indicator type %q", typ)
	}
}

// Update feeds the candle to every indicator (one pass).
func (s *Set) Update(candle model.Candle) {
	for _, ind := range s.averages {
		ind.Update(candle)
	}
	for _, ind := range s.oscillators {
		ind.Update(candle)
	}
}

// Readings returns the current values. Not-ready indicators read 0.
func (s *Set) Readings() Readings {
	r := Readings{
		Averages:    make([]float64, len(s.averages)),
		Oscillators: make([]float64, len(s.oscillators)),
	}
	for i, ind := range s.averages {
		r.Averages[i] = ind.Value()
	}
	for i, ind := range s.oscillators {
		r.Oscillators[i] = ind.Value()
	}
	return r
}

// Peek returns the readings Update(candle) followed by Readings would
// produce, leaving every indicator untouched.
func (s *Set) Peek(candle model.Candle) Readings {
	r := Readings{
		Averages:    make([]float64, len(s.averages)),
		Oscillators: make([]float64, len(s.oscillators)),
	}
	for i, ind := range s.averages {
		r.Averages[i] = ind.Peek(candle)
	}
	for i, ind := range s.oscillators {
		r.Oscillators[i] = ind.Peek(candle)
	}
	return r
}

// Ready reports whether every indicator has warmed up.
func (s *Set) Ready() bool {
	for _, ind := range s.averages {
		if !ind.Ready() {
			return false
		}
	}
	for _, ind := range s.oscillators {
		if !ind.Ready() {
			return false
		}
	}
	return true
}

// MinHistory is the number of candles after which every indicator is ready.
// Zero when the set is empty.
func (s *Set) MinHistory() int {
	n := 0
	for _, ind := range s.averages {
		n = max(n, ind.Warmup())
	}
	for _, ind := range s.oscillators {
		n = max(n, ind.Warmup())
	}
	return n
}

// Averages returns the number of configured averages.
func (s *Set) Averages() int { return len(s.averages) }

// Oscillators returns the number of configured oscillators.
func (s *Set) Oscillators() int { return len(s.oscillators) }

// Names returns "TYPE_PERIOD" labels in vector order, averages first.
func (s *Set) Names() []string {
	names := make([]string, 0, len(s.averages)+len(s.oscillators))
	for _, ind := range s.averages {
		names = append(names, fmt.Sprintf("%s_%d", ind.Name(), ind.Period()))
	}
	for _, ind := range s.oscillators {
		names = append(names, fmt.Sprintf("%s_%d", ind.Name(), ind.Period()))
	}
	return names
}

// Validate checks the indicator configuration for errors.
func (c Config) Validate() error {
	switch c.averageType() {
	case "SMA", "EMA", "SMMA":
	default:
		return fmt.Errorf("unknown average type %q", c.AverageType)
	}
	if err := validatePeriods("average window", c.AverageWindows); err != nil {
		return err
	}
	return validatePeriods("oscillator period", c.OscillatorPeriods)
}

func (c Config) averageType() string {
	if c.AverageType == "" {
		return "SMA"
	}
	return strings.ToUpper(c.AverageType)
}

func validatePeriods(what string, periods []int) error {
	seen := make(map[int]bool, len(periods))
	for _, p := range periods {
		if p <= 0 {
			return fmt.Errorf("invalid %s=%d: must be positive", what, p)
		}
		if seen[p] {
			return fmt.Errorf("duplicate %s=%d", what, p)
		}
		seen[p] = true
	}
	return nil
}
