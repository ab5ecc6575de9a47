// Package network is the reference predictive model: a feed-forward
// perceptron with sigmoid units, hiddenLayers hidden layers of 4 units each
// and 2 outputs (low, high), trained by mini-batch gradient descent with momentum and dropout.
//
// Weights are seeded deterministically, so equal samples and hyperparameters
// always yield the same model.
package network

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"

	"trading-forecaster/internal/feature"
	"trading-forecaster/internal/forecast"
	"trading-forecaster/internal/label"
)

const (
	outputs        = 2
	unitsPerHidden = 4
	DefaultSeed    = 1
)

var (
	ErrNoSamples  = errors.New("network: no training samples")
	ErrInputWidth = errors.New("network: input width mismatch")
	ErrBadState   = errors.New("network: invalid serialized state")
	ErrNotFinite  = errors.New("network: weights diverged")
)

// Trainer implements forecast.Trainer.
type Trainer struct {
	Seed int64
}

// NewTrainer returns a Trainer seeded with seed.
func NewTrainer(seed int64) *Trainer {
	return &Trainer{Seed: seed}
}

// Network is a trained perceptron.
type Network struct {
	// Layers is the unit count per layer, input first.
	Layers []int `json:"layers"`
	// Weights[l][j] holds the incoming weights of unit j in layer l+1; the
	// last element is the bias.
	Weights [][][]float64 `json:"weights"`
	// Epochs is the number of passes training ran before stopping.
	Epochs int `json:"epochs"`
	// Error is the mean squared error of the last epoch.
	Error float64 `json:"error"`
}

// Train fits a new Network on samples.
func (t *Trainer) Train(samples []label.Sample, hp forecast.HyperParams) (forecast.Model, error) {
	if len(samples) == 0 {
		return nil, ErrNoSamples
	}
	in := len(samples[0].Input)
	for i, s := range samples {
		if len(s.Input) != in {
			return nil, fmt.Errorf("%w: sample %d has %d inputs, want %d", ErrInputWidth, i, len(s.Input), in)
		}
	}

	rng := rand.New(rand.NewSource(t.Seed))
	n := newNetwork(layerPlan(in, hp.HiddenLayers), rng)
	if err := n.fit(samples, hp, rng); err != nil {
		return nil, err
	}
	return n, nil
}

// Restore decodes a Network produced by Serialize.
func (t *Trainer) Restore(data []byte) (forecast.Model, error) {
	var n Network
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadState, err)
	}
	if err := n.validate(); err != nil {
		return nil, err
	}
	return &n, nil
}

func layerPlan(in, hiddenLayers int) []int {
	layers := []int{in}
	for i := 0; i < hiddenLayers; i++ {
		layers = append(layers, unitsPerHidden)
	}
	return append(layers, outputs)
}

func newNetwork(layers []int, rng *rand.Rand) *Network {
	n := &Network{Layers: layers, Weights: make([][][]float64, len(layers)-1)}
	for l := range n.Weights {
		fanIn, fanOut := layers[l], layers[l+1]
		limit := math.Sqrt(6 / float64(fanIn+fanOut))
		n.Weights[l] = make([][]float64, fanOut)
		for j := range n.Weights[l] {
			w := make([]float64, fanIn+1)
			for i := 0; i < fanIn; i++ {
				w[i] = (rng.Float64()*2 - 1) * limit
			}
			n.Weights[l][j] = w
		}
	}
	return n
}

// Infer returns the normalized (low, high) forecast for v.
func (n *Network) Infer(v feature.Vector) ([2]float64, error) {
	if len(v) != n.Layers[0] {
		return [2]float64{}, fmt.Errorf("%w: got %d, want %d", ErrInputWidth, len(v), n.Layers[0])
	}
	acts := n.forward(v, nil)
	out := acts[len(acts)-1]
	return [2]float64{out[0], out[1]}, nil
}

// InputWidth returns the size of the input layer.
func (n *Network) InputWidth() int { return n.Layers[0] }

// Serialize encodes topology and weights as JSON.
func (n *Network) Serialize() ([]byte, error) {
	return json.Marshal(n)
}

// forward returns the activations of every layer, input included. masks,
// when non-nil, holds a dropout scale per hidden unit.
func (n *Network) forward(x []float64, masks [][]float64) [][]float64 {
	acts := make([][]float64, len(n.Layers))
	acts[0] = x
	for l, layer := range n.Weights {
		prev := acts[l]
		out := make([]float64, len(layer))
		for j, w := range layer {
			z := w[len(prev)]
			for i, a := range prev {
				z += w[i] * a
			}
			out[j] = sigmoid(z)
			if masks != nil && masks[l] != nil {
				out[j] *= masks[l][j]
			}
		}
		acts[l+1] = out
	}
	return acts
}

func (n *Network) fit(samples []label.Sample, hp forecast.HyperParams, rng *rand.Rand) error {
	grads := n.zeros()
	velocity := n.zeros()
	order := make([]int, len(samples))
	for i := range order {
		order[i] = i
	}
	batch := max(1, hp.BatchSize)

	for epoch := 1; epoch <= hp.Iterations; epoch++ {
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

		var sse float64
		for start := 0; start < len(order); start += batch {
			end := min(start+batch, len(order))
			clear3(grads)
			for _, idx := range order[start:end] {
				sse += n.backprop(samples[idx], hp.Dropout, rng, grads)
			}
			scale := hp.LearningRate / float64(end-start)
			for l := range n.Weights {
				for j := range n.Weights[l] {
					for i := range n.Weights[l][j] {
						velocity[l][j][i] = hp.Momentum*velocity[l][j][i] - scale*grads[l][j][i]
						n.Weights[l][j][i] += velocity[l][j][i]
					}
				}
			}
		}

		n.Epochs = epoch
		n.Error = sse / float64(len(samples)*outputs)
		if math.IsNaN(n.Error) || math.IsInf(n.Error, 0) {
			return fmt.Errorf("%w at epoch %d", ErrNotFinite, epoch)
		}
		if n.Error < hp.ErrorThreshold {
			break
		}
	}
	return nil
}

// backprop accumulates the gradient of one sample into grads and returns
// its squared error.
func (n *Network) backprop(s label.Sample, dropout float64, rng *rand.Rand, grads [][][]float64) float64 {
	masks := n.dropoutMasks(dropout, rng)
	acts := n.forward(s.Input, masks)

	last := len(n.Weights) - 1
	out := acts[last+1]
	delta := make([]float64, len(out))
	var sqErr float64
	for j, a := range out {
		diff := a - s.Label[j]
		sqErr += diff * diff
		delta[j] = diff * a * (1 - a)
	}

	for l := last; l >= 0; l-- {
		prev := acts[l]
		for j, d := range delta {
			g := grads[l][j]
			for i, a := range prev {
				g[i] += d * a
			}
			g[len(prev)] += d
		}
		if l == 0 {
			break
		}
		// acts[l] are hidden activations already scaled by the mask
		next := make([]float64, len(prev))
		for i := range prev {
			var sum float64
			for j, d := range delta {
				sum += n.Weights[l][j][i] * d
			}
			m := 1.0
			if masks != nil {
				m = masks[l-1][i]
			}
			if m == 0 {
				continue
			}
			a := prev[i] / m
			next[i] = sum * a * (1 - a) * m
		}
		delta = next
	}
	return sqErr
}

// dropoutMasks draws inverted-dropout scales for every hidden layer.
func (n *Network) dropoutMasks(p float64, rng *rand.Rand) [][]float64 {
	if p <= 0 || len(n.Weights) < 2 {
		return nil
	}
	keep := 1 / (1 - p)
	masks := make([][]float64, len(n.Weights))
	for l := 0; l < len(n.Weights)-1; l++ {
		m := make([]float64, len(n.Weights[l]))
		for j := range m {
			if rng.Float64() >= p {
				m[j] = keep
			}
		}
		masks[l] = m
	}
	return masks
}

func (n *Network) zeros() [][][]float64 {
	z := make([][][]float64, len(n.Weights))
	for l := range n.Weights {
		z[l] = make([][]float64, len(n.Weights[l]))
		for j := range n.Weights[l] {
			z[l][j] = make([]float64, len(n.Weights[l][j]))
		}
	}
	return z
}

func (n *Network) validate() error {
	if len(n.Layers) < 2 || n.Layers[len(n.Layers)-1] != outputs {
		return fmt.Errorf("%w: layers %v", ErrBadState, n.Layers)
	}
	if len(n.Weights) != len(n.Layers)-1 {
		return fmt.Errorf("%w: %d weight layers for %d layers", ErrBadState, len(n.Weights), len(n.Layers))
	}
	for l, layer := range n.Weights {
		if n.Layers[l] <= 0 || len(layer) != n.Layers[l+1] {
			return fmt.Errorf("%w: layer %d has %d units, want %d", ErrBadState, l+1, len(layer), n.Layers[l+1])
		}
		for j, w := range layer {
			if len(w) != n.Layers[l]+1 {
				return fmt.Errorf("%w: unit %d/%d has %d weights, want %d", ErrBadState, l+1, j, len(w), n.Layers[l]+1)
			}
			for _, x := range w {
				if math.IsNaN(x) || math.IsInf(x, 0) {
					return fmt.Errorf("%w: unit %d/%d", ErrNotFinite, l+1, j)
				}
			}
		}
	}
	return nil
}

func clear3(g [][][]float64) {
	for _, layer := range g {
		for _, w := range layer {
			clear(w)
		}
	}
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}
