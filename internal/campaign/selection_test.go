package campaign

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"

	"clonebo/internal/model"
)

func indices(items []scored) []int {
	out := make([]int, len(items))
	for i, item := range items {
		out[i] = item.slot
	}
	return out
}

func TestRankByScoreKeepsProposalOrderOnTies(t *testing.T) {
	items := []scored{
		{slot: 0, score: 1},
		{slot: 1, score: 3},
		{slot: 2, score: 1},
		{slot: 3, score: 3},
	}
	assert.Equal(t, []int{1, 3, 0, 2}, indices(rankByScore(items)))
	assert.Equal(t, []int{0, 1, 2, 3}, indices(items), "input must not be reordered")
}

func TestRankRandomIsSeeded(t *testing.T) {
	items := make([]scored, 10)
	for i := range items {
		items[i].slot = i
	}
	a := rankRandom(rand.New(rand.NewSource(3)), items)
	b := rankRandom(rand.New(rand.NewSource(3)), items)
	assert.Equal(t, indices(a), indices(b))
	assert.ElementsMatch(t, indices(items), indices(a))
}

func TestSelectDiverse(t *testing.T) {
	ranked := []scored{
		{slot: 0, sequence: "AAAAAA"},
		{slot: 1, sequence: "AAAAAC"},
		{slot: 2, sequence: "AAAACC"},
		{slot: 3, sequence: "CCCCCC"},
	}
	assert.Equal(t, []int{0, 1}, indices(selectDiverse(ranked, 2, 0)))
	assert.Equal(t, []int{0, 2, 3}, indices(selectDiverse(ranked, 4, 1)))
	assert.Equal(t, []int{0, 3}, indices(selectDiverse(ranked, 4, 2)))
	assert.Empty(t, selectDiverse(ranked, 0, 1))
}

func TestExhaustedStreak(t *testing.T) {
	rounds := []model.Round{{Exhausted: true}, {}, {Exhausted: true}, {Exhausted: true}}
	assert.Equal(t, 2, exhaustedStreak(rounds))
	assert.Equal(t, 0, exhaustedStreak(rounds[:2]))
	assert.Equal(t, 0, exhaustedStreak(nil))
}

func TestStaleStreak(t *testing.T) {
	evaluated := []string{"x"}
	rounds := []model.Round{
		{RunningBest: 0.6, Evaluated: evaluated},
		{RunningBest: 0.6005, Evaluated: evaluated},
		{RunningBest: 0.6005},
	}
	assert.Equal(t, 2, staleStreak(rounds, 0.5, true, 0.01))
	assert.Equal(t, 0, staleStreak(rounds[:1], 0.5, true, 0.01))
	assert.Equal(t, 0, staleStreak(rounds[:1], 0, false, 0.01), "first evaluated round sets the baseline")
	assert.Equal(t, 1, staleStreak([]model.Round{{}}, 0, false, 0.01), "a round with nothing evaluated is stale")
}
