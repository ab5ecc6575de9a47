package forecast

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"trading-forecaster/internal/indicator"
	"trading-forecaster/internal/model"
)

// HyperParams configure training. Only HiddenLayers and BatchSize change
// the model identity; the rest only steer the optimizer.
type HyperParams struct {
	HiddenLayers   int     `json:"hidden_layers" validate:"gte=0"`
	BatchSize      int     `json:"batch_size" validate:"gt=0"`
	Iterations     int     `json:"iterations" validate:"gt=0"`
	LearningRate   float64 `json:"learning_rate" validate:"gt=0"`
	Momentum       float64 `json:"momentum" validate:"gte=0,lte=1"`
	Dropout        float64 `json:"dropout" validate:"gte=0,lt=1"`
	ErrorThreshold float64 `json:"error_threshold" validate:"gt=0"`
}

// Config is the full controller configuration.
type Config struct {
	HistoryLength    int     `validate:"gt=0"`
	Lookahead        int     `validate:"gt=0"`
	MaxPossiblePrice float64 `validate:"gt=0"`
	Instrument       model.Instrument
	Indicators       indicator.Config
	HyperParams      HyperParams
}

var validate = validator.New()

// Validate checks field ranges and the cross-field rules that do not depend
// on the indicator warmup. New additionally checks HistoryLength against
// the indicator set.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	if strings.TrimSpace(c.Instrument.Asset) == "" || strings.TrimSpace(c.Instrument.Currency) == "" {
		return fmt.Errorf("%w: instrument asset and currency are required", ErrConfiguration)
	}
	if c.HistoryLength <= c.Lookahead {
		return fmt.Errorf("%w: history length %d must exceed lookahead %d",
			ErrConfiguration, c.HistoryLength, c.Lookahead)
	}
	if err := c.Indicators.Validate(); err != nil {
		return fmt.Errorf("%w: indicators: %v", ErrConfiguration, err)
	}
	return nil
}
