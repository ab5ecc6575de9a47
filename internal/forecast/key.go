package forecast

import (
	"fmt"

	"trading-forecaster/internal/model"
)

// KeyFor derives the persistence key of a model. Two configurations that
// share instrument, batch size and hidden layers share a model state.
// Instrument names are used verbatim so distinct assets never collide.
func KeyFor(inst model.Instrument, hp HyperParams) string {
	return fmt.Sprintf("envelope_%s_%s_bs%d_hl%d", inst.Asset, inst.Currency, hp.BatchSize, hp.HiddenLayers)
}
