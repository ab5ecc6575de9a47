// Package label builds supervised training samples from a sequence of
// normalized feature vectors. Each sample's label is the envelope of the
// next lookahead vectors: the lowest "low" and the highest "high".
package label

import (
	"errors"
	"fmt"

	"trading-forecaster/internal/feature"
)

// ErrInvalidLookahead is returned when lookahead is not positive.
var ErrInvalidLookahead = errors.New("lookahead must be positive")

// Label seeds. Normalized prices are bounded to [0,1] as long as the price
// divider is respected, so 1 and 0 are neutral for min and max.
const (
	lowSeed  = 1.0
	highSeed = 0.0
)

// Sample is one (input, label) pair. Label[0] is the future low, Label[1]
// the future high, both normalized.
type Sample struct {
	Input feature.Vector `json:"input"`
	Label [2]float64     `json:"label"`
}

// Build returns len(seq)-lookahead samples: sample i pairs seq[i] with the
// extrema of seq[i+1 .. i+lookahead]. The trailing lookahead vectors have no
// complete future window and are returned unconsumed as leftover.
//
// When len(seq) <= lookahead there is not enough data: no samples are
// produced and the whole sequence is returned as leftover.
//
// Extrema are tracked with monotonic deques, so Build is O(n) regardless
// of lookahead.
func Build(seq []feature.Vector, lookahead int) (samples []Sample, leftover []feature.Vector, err error) {
	if lookahead <= 0 {
		return nil, nil, fmt.Errorf("%w: got %d", ErrInvalidLookahead, lookahead)
	}
	n := len(seq)
	if n <= lookahead {
		return nil, seq, nil
	}

	lows := newExtremum(func(a, b float64) bool { return a < b })
	highs := newExtremum(func(a, b float64) bool { return a > b })

	samples = make([]Sample, 0, n-lookahead)
	for j := 1; j < n; j++ {
		lows.push(j, seq[j].Low())
		highs.push(j, seq[j].High())
		if j < lookahead {
			continue
		}
		// window for sample i is (i, j]
		i := j - lookahead
		lows.evictThrough(i)
		highs.evictThrough(i)
		samples = append(samples, Sample{
			Input: seq[i],
			Label: [2]float64{min(lowSeed, lows.front()), max(highSeed, highs.front())},
		})
	}
	return samples, seq[n-lookahead:], nil
}

type point struct {
	idx int
	val float64
}

// extremum is a monotonic deque whose front is the best value of the
// current window under better.
type extremum struct {
	better func(a, b float64) bool
	q      []point
}

func newExtremum(better func(a, b float64) bool) *extremum {
	return &extremum{better: better}
}

func (e *extremum) push(idx int, val float64) {
	for len(e.q) > 0 && !e.better(e.q[len(e.q)-1].val, val) {
		e.q = e.q[:len(e.q)-1]
	}
	e.q = append(e.q, point{idx: idx, val: val})
}

// evictThrough drops every point at or before idx.
func (e *extremum) evictThrough(idx int) {
	k := 0
	for k < len(e.q) && e.q[k].idx <= idx {
		k++
	}
	e.q = e.q[k:]
}

func (e *extremum) front() float64 { return e.q[0].val }
