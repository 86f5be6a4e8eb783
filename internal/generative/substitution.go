package generative

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"
)

const blosumOrder = "ARNDCQEGHILKMFPSTWYV"

var blosum62 = [20][20]float64{
	{4, -1, -2, -2, 0, -1, -1, 0, -2, -1, -1, -1, -1, -2, -1, 1, 0, -3, -2, 0},
	{-1, 5, 0, -2, -3, 1, 0, -2, 0, -3, -2, 2, -1, -3, -2, -1, -1, -3, -2, -3},
	{-2, 0, 6, 1, -3, 0, 0, 0, 1, -3, -3, 0, -2, -3, -2, 1, 0, -4, -2, -3},
	{-2, -2, 1, 6, -3, 0, 2, -1, -1, -3, -4, -1, -3, -3, -1, 0, -1, -4, -3, -3},
	{0, -3, -3, -3, 9, -3, -4, -3, -3, -1, -1, -3, -1, -2, -3, -1, -1, -2, -2, -1},
	{-1, 1, 0, 0, -3, 5, 2, -2, 0, -3, -2, 1, 0, -3, -1, 0, -1, -2, -1, -2},
	{-1, 0, 0, 2, -4, 2, 5, -2, 0, -3, -3, 1, -2, -3, -1, 0, -1, -3, -2, -2},
	{0, -2, 0, -1, -3, -2, -2, 6, -2, -4, -4, -2, -3, -3, -2, 0, -2, -2, -3, -3},
	{-2, 0, 1, -1, -3, 0, 0, -2, 8, -3, -3, -1, -2, -1, -2, -1, -2, -2, 2, -3},
	{-1, -3, -3, -3, -1, -3, -3, -4, -3, 4, 2, -3, 1, 0, -3, -2, -1, -3, -1, 3},
	{-1, -2, -3, -4, -1, -2, -3, -4, -3, 2, 4, -2, 2, 0, -3, -2, -1, -2, -1, 1},
	{-1, 2, 0, -1, -3, 1, 1, -2, -1, -3, -2, 5, -1, -3, -1, 0, -1, -3, -2, -2},
	{-1, -1, -2, -3, -1, 0, -2, -3, -2, 1, 2, -1, 5, 0, -2, -1, -1, -1, -1, 1},
	{-2, -3, -3, -3, -2, -3, -3, -3, -1, 0, 0, -3, 0, 6, -4, -2, -2, 1, 3, -1},
	{-1, -2, -2, -1, -3, -1, -1, -2, -2, -3, -3, -1, -2, -4, 7, -1, -1, -4, -3, -2},
	{1, -1, 1, 0, -1, 0, 0, 0, -1, -2, -2, 0, -1, -2, -1, 4, 1, -3, -2, -2},
	{0, -1, 0, -1, -1, -1, -1, -2, -2, -1, -1, -1, -1, -2, -1, 1, 5, -2, -2, 0},
	{-3, -3, -4, -4, -2, -2, -3, -2, -2, -3, -2, -3, -1, 1, -4, -3, -2, 11, 2, -3},
	{-2, -2, -2, -3, -2, -1, -2, -3, 2, -1, -1, -2, -1, 3, -3, -2, -2, 2, 7, -1},
	{0, -3, -3, -3, -1, -2, -2, -3, -3, 3, 1, -2, 1, -1, -2, -2, 0, -3, -1, 4},
}

// Background residue frequencies in blosumOrder.
var backgroundFrequencies = [20]float64{
	0.074, 0.052, 0.045, 0.054, 0.025, 0.034, 0.054, 0.074, 0.026, 0.068,
	0.099, 0.058, 0.025, 0.047, 0.039, 0.057, 0.051, 0.013, 0.032, 0.073,
}

// SubstitutionModel is an in-process generative model. Masked positions are
// infilled with a residue drawn from softmax(BLOSUM62[original]/T) over
// every residue except the original and the Forbidden set; unconditional
// samples draw from background frequencies.
type SubstitutionModel struct {
	forbidden [256]bool

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSubstitutionModel builds a model seeded explicitly. Residues in
// forbidden are never introduced by infill.
func NewSubstitutionModel(seed int64, forbidden string) *SubstitutionModel {
	m := &SubstitutionModel{rng: rand.New(rand.NewSource(seed))}
	forbidden = strings.ToUpper(forbidden)
	for i := 0; i < len(forbidden); i++ {
		m.forbidden[forbidden[i]] = true
	}
	return m
}

func (m *SubstitutionModel) Name() string {
	return "substitution"
}

func (m *SubstitutionModel) Sample(ctx context.Context, req SampleRequest) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.N <= 0 {
		return nil, nil
	}
	if req.Temperature <= 0 {
		return nil, fmt.Errorf("temperature must be > 0")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, 0, req.N)
	if req.Context == "" {
		if req.Length <= 0 {
			return nil, ErrNoContext
		}
		for i := 0; i < req.N; i++ {
			b := make([]byte, req.Length)
			for j := range b {
				b[j] = blosumOrder[m.draw(backgroundFrequencies[:])]
			}
			out = append(out, string(b))
		}
		return out, nil
	}

	for _, idx := range req.Mask {
		if idx < 0 || idx >= len(req.Context) {
			return nil, fmt.Errorf("mask index %d outside context of length %d", idx, len(req.Context))
		}
	}
	for i := 0; i < req.N; i++ {
		b := []byte(req.Context)
		for _, idx := range req.Mask {
			next, err := m.substitute(b[idx], req.Temperature)
			if err != nil {
				return nil, err
			}
			b[idx] = next
		}
		out = append(out, string(b))
	}
	return out, nil
}

// ScoreLikelihood returns the mean per-residue log background probability.
func (m *SubstitutionModel) ScoreLikelihood(ctx context.Context, raw string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if raw == "" {
		return 0, errors.New("empty sequence")
	}
	total := 0.0
	for i := 0; i < len(raw); i++ {
		j := strings.IndexByte(blosumOrder, raw[i])
		if j < 0 {
			return math.Inf(-1), nil
		}
		total += math.Log(backgroundFrequencies[j])
	}
	return total / float64(len(raw)), nil
}

func (m *SubstitutionModel) substitute(original byte, temperature float64) (byte, error) {
	row := strings.IndexByte(blosumOrder, original)
	weights := make([]float64, len(blosumOrder))
	for j := range weights {
		residue := blosumOrder[j]
		if residue == original || m.forbidden[residue] {
			continue
		}
		score := 0.0
		if row >= 0 {
			score = blosum62[row][j]
		}
		weights[j] = math.Exp(score / temperature)
	}
	total := 0.0
	for _, w := range weights {
		total += w
	}
	if total == 0 {
		return 0, fmt.Errorf("no substitution available for %q", original)
	}
	return blosumOrder[m.draw(weights)], nil
}

func (m *SubstitutionModel) draw(weights []float64) int {
	total := 0.0
	for _, w := range weights {
		total += w
	}
	pick := m.rng.Float64() * total
	acc := 0.0
	for i, w := range weights {
		acc += w
		if pick < acc {
			return i
		}
	}
	for i := len(weights) - 1; i >= 0; i-- {
		if weights[i] > 0 {
			return i
		}
	}
	return len(weights) - 1
}
