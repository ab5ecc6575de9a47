package forecast

import (
	"trading-forecaster/internal/feature"
	"trading-forecaster/internal/label"
)

// Trainer builds predictive models. Implementations live outside this
// package (see internal/network).
type Trainer interface {
	// Train fits a new model on samples. It blocks until training stops.
	Train(samples []label.Sample, hp HyperParams) (Model, error)

	// Restore rebuilds a model from bytes produced by Model.Serialize.
	Restore(data []byte) (Model, error)
}

// Model is a trained predictor. Infer returns the normalized (low, high)
// envelope for the next lookahead observations.
type Model interface {
	Infer(v feature.Vector) ([2]float64, error)
	Serialize() ([]byte, error)

	// InputWidth is the vector length Infer accepts.
	InputWidth() int
}
