package label

import (
	"errors"
	"math/rand"
	"testing"

	"trading-forecaster/internal/feature"
)

// vec builds a minimal vector with only the price fields populated.
func vec(low, high float64) feature.Vector {
	return feature.Vector{(low + high) / 2, low, high, (low + high) / 2, (low + high) / 2, 1, 1}
}

// naive is the O(n·lookahead) reference scan.
func naive(seq []feature.Vector, lookahead int) []Sample {
	var out []Sample
	for i := 0; i < len(seq)-lookahead; i++ {
		lo, hi := 1.0, 0.0
		for j := 1; j <= lookahead; j++ {
			lo = min(lo, seq[i+j].Low())
			hi = max(hi, seq[i+j].High())
		}
		out = append(out, Sample{Input: seq[i], Label: [2]float64{lo, hi}})
	}
	return out
}

func TestBuild_HandComputed(t *testing.T) {
	lows := []float64{0.50, 0.40, 0.45, 0.30, 0.35, 0.38}
	highs := []float64{0.60, 0.52, 0.58, 0.41, 0.47, 0.44}
	seq := make([]feature.Vector, len(lows))
	for i := range lows {
		seq[i] = vec(lows[i], highs[i])
	}

	samples, leftover, err := Build(seq, 2)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(samples) != 4 {
		t.Fatalf("samples = %d, want 4", len(samples))
	}

	want := [][2]float64{
		{0.40, 0.58}, // min(0.40,0.45), max(0.52,0.58)
		{0.30, 0.58}, // min(0.45,0.30), max(0.58,0.41)
		{0.30, 0.47}, // min(0.30,0.35), max(0.41,0.47)
		{0.35, 0.47}, // min(0.35,0.38), max(0.47,0.44)
	}
	for i, w := range want {
		if samples[i].Label != w {
			t.Errorf("sample %d label = %v, want %v", i, samples[i].Label, w)
		}
		if &samples[i].Input[0] != &seq[i][0] {
			t.Errorf("sample %d input is not seq[%d]", i, i)
		}
	}

	if len(leftover) != 2 || &leftover[0][0] != &seq[4][0] || &leftover[1][0] != &seq[5][0] {
		t.Errorf("leftover should be the last 2 vectors, got %v", leftover)
	}
}

func TestBuild_InsufficientData(t *testing.T) {
	seq := []feature.Vector{vec(0.1, 0.2), vec(0.2, 0.3)}
	for _, lookahead := range []int{2, 3, 10} {
		samples, leftover, err := Build(seq, lookahead)
		if err != nil {
			t.Fatalf("lookahead %d: unexpected error %v", lookahead, err)
		}
		if len(samples) != 0 {
			t.Errorf("lookahead %d: expected no samples, got %d", lookahead, len(samples))
		}
		if len(leftover) != len(seq) {
			t.Errorf("lookahead %d: leftover = %d, want %d", lookahead, len(leftover), len(seq))
		}
	}

	samples, _, err := Build(nil, 1)
	if err != nil || len(samples) != 0 {
		t.Errorf("empty sequence: samples=%d err=%v", len(samples), err)
	}
}

func TestBuild_InvalidLookahead(t *testing.T) {
	for _, l := range []int{0, -3} {
		if _, _, err := Build([]feature.Vector{vec(0.1, 0.2)}, l); !errors.Is(err, ErrInvalidLookahead) {
			t.Errorf("lookahead %d: expected ErrInvalidLookahead, got %v", l, err)
		}
	}
}

func TestBuild_MatchesNaiveScan(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 50; trial++ {
		n := 1 + rng.Intn(120)
		seq := make([]feature.Vector, n)
		for i := range seq {
			lo := rng.Float64()
			seq[i] = vec(lo, lo+(1-lo)*rng.Float64())
		}
		// repeated values exercise tie handling in the deques
		if n > 3 {
			seq[n/2] = seq[n/3]
		}

		for lookahead := 1; lookahead <= 12; lookahead++ {
			got, _, err := Build(seq, lookahead)
			if err != nil {
				t.Fatalf("Build: %v", err)
			}
			want := naive(seq, lookahead)
			if len(got) != len(want) {
				t.Fatalf("n=%d L=%d: len %d, want %d", n, lookahead, len(got), len(want))
			}
			if n > lookahead && len(got) != n-lookahead {
				t.Fatalf("n=%d L=%d: expected n-L samples, got %d", n, lookahead, len(got))
			}
			for i := range want {
				if got[i].Label != want[i].Label {
					t.Fatalf("n=%d L=%d sample %d: %v, want %v", n, lookahead, i, got[i].Label, want[i].Label)
				}
				for _, x := range got[i].Label {
					if x < 0 || x > 1 {
						t.Fatalf("label component %v outside [0,1]", x)
					}
				}
			}
		}
	}
}
