package pool

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clonebo/internal/model"
)

func candidate(seq string, fitness ...float64) model.Candidate {
	c := model.Candidate{ID: seq, Numbered: model.NumberedSequence{Sequence: seq}}
	if len(fitness) > 0 {
		f := fitness[0]
		c.OracleFitness = &f
	}
	return c
}

func TestAddRejectsDuplicates(t *testing.T) {
	p := New()
	assert.True(t, p.Add(candidate("AAA")))
	assert.True(t, p.Add(candidate("CCC", 0.2)))
	assert.False(t, p.Add(candidate("AAA", 0.9)))
	assert.Equal(t, 2, p.Len())

	got, ok := p.Get("AAA")
	require.True(t, ok)
	assert.False(t, got.Evaluated())
	assert.True(t, p.Contains("CCC"))
	assert.False(t, p.Contains("DDD"))
	_, ok = p.Get("DDD")
	assert.False(t, ok)
}

func TestDedupInvariantUnderRandomInserts(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	p := New()
	for i := 0; i < 2000; i++ {
		b := make([]byte, 3)
		for j := range b {
			b[j] = "ACD"[rng.Intn(3)]
		}
		p.Add(candidate(string(b)))
	}
	seen := map[string]bool{}
	for _, c := range p.All() {
		assert.False(t, seen[c.Sequence()])
		seen[c.Sequence()] = true
	}
	assert.Equal(t, 27, p.Len())
}

func TestAllKeepsInsertionOrder(t *testing.T) {
	p := New()
	for _, seq := range []string{"DDD", "AAA", "CCC"} {
		p.Add(candidate(seq))
	}
	var order []string
	for _, c := range p.All() {
		order = append(order, c.Sequence())
	}
	assert.Equal(t, []string{"DDD", "AAA", "CCC"}, order)
}

func TestTopKAndEvaluated(t *testing.T) {
	p := New()
	p.Add(candidate("AAA", 0.3))
	p.Add(candidate("CCC"))
	p.Add(candidate("DDD", 0.7))
	p.Add(candidate("EEE", 0.3))

	assert.Len(t, p.Evaluated(), 3)
	top := p.TopK(2)
	require.Len(t, top, 2)
	assert.Equal(t, "DDD", top[0].Sequence())
	assert.Equal(t, "AAA", top[1].Sequence())
	assert.Len(t, p.TopK(10), 3)
	assert.Empty(t, p.TopK(0))
}

func TestSetFitness(t *testing.T) {
	p := New()
	p.Add(candidate("AAA"))
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, p.SetFitness("AAA", 0.4, at))
	got, _ := p.Get("AAA")
	fitness, ok := got.Fitness()
	require.True(t, ok)
	assert.Equal(t, 0.4, fitness)
	assert.Equal(t, at, got.EvaluatedAt)

	assert.ErrorIs(t, p.SetFitness("CCC", 0.1, at), ErrUnknownCandidate)
}

func TestRunningBestNeverDecreases(t *testing.T) {
	p := New()
	_, ok := p.RunningBest()
	assert.False(t, ok)

	rng := rand.New(rand.NewSource(17))
	prev := 0.0
	for i := 0; i < 500; i++ {
		seq := string([]byte{"ACDEFGHIKL"[i%10], "ACDEFGHIKL"[(i/10)%10], "ACDEFGHIKL"[(i/100)%10]})
		p.Add(candidate(seq, rng.NormFloat64()))
		best, ok := p.RunningBest()
		require.True(t, ok)
		if i > 0 {
			assert.GreaterOrEqual(t, best, prev)
		}
		prev = best
	}
}
