package acquisition

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func allFunctions() []Function {
	return []Function{
		UCB{Beta: 0},
		UCB{Beta: 2},
		ExpectedImprovement{Xi: 0},
		ExpectedImprovement{Xi: 0.05},
		Greedy{},
	}
}

func TestScoreMonotoneInMean(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for _, fn := range allFunctions() {
		t.Run(fn.Name(), func(t *testing.T) {
			for i := 0; i < 2000; i++ {
				best := rng.Float64()*2 - 1
				variance := rng.Float64() * 2
				if i%10 == 0 {
					variance = 0
				}
				lo := rng.Float64()*4 - 2
				hi := lo + rng.Float64()*2
				assert.LessOrEqual(t, fn.Score(lo, variance, best), fn.Score(hi, variance, best)+1e-12,
					"mean %v -> %v at variance %v best %v", lo, hi, variance, best)
			}
		})
	}
}

func TestScoreMonotoneInVariance(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for _, fn := range allFunctions() {
		t.Run(fn.Name(), func(t *testing.T) {
			for i := 0; i < 2000; i++ {
				best := rng.Float64()*2 - 1
				mean := rng.Float64()*4 - 2
				lo := rng.Float64()
				if i%10 == 0 {
					lo = 0
				}
				hi := lo + rng.Float64()*2
				assert.LessOrEqual(t, fn.Score(mean, lo, best), fn.Score(mean, hi, best)+1e-12,
					"variance %v -> %v at mean %v best %v", lo, hi, mean, best)
			}
		})
	}
}

func TestExpectedImprovementValues(t *testing.T) {
	ei := ExpectedImprovement{}
	assert.InDelta(t, 1/math.Sqrt(2*math.Pi), ei.Score(0, 1, 0), 1e-12)
	assert.InDelta(t, 0.3, ei.Score(0.8, 0, 0.5), 1e-12)
	assert.Equal(t, 0.0, ei.Score(0.2, 0, 0.5))
}

func TestUCBValue(t *testing.T) {
	assert.InDelta(t, 1.0+2*0.5, UCB{Beta: 2}.Score(1, 0.25, 0), 1e-12)
}

func TestResolve(t *testing.T) {
	fn, err := Resolve(KindUCB, 1.5)
	require.NoError(t, err)
	assert.Equal(t, UCB{Beta: 1.5}, fn)

	fn, err = Resolve(KindEI, 0.01)
	require.NoError(t, err)
	assert.Equal(t, ExpectedImprovement{Xi: 0.01}, fn)

	fn, err = Resolve(KindGreedy, 0)
	require.NoError(t, err)
	assert.Equal(t, KindGreedy, fn.Name())

	_, err = Resolve("pi", 0)
	assert.ErrorIs(t, err, ErrUnknownKind)
	_, err = Resolve(KindUCB, -1)
	assert.Error(t, err)
	assert.Equal(t, []string{"ei", "greedy", "ucb"}, Kinds())
}
