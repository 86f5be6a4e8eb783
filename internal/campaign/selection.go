package campaign

import (
	"math/rand"
	"sort"

	"github.com/agnivade/levenshtein"

	"clonebo/internal/model"
)

// scored is a round survivor awaiting selection. slot is the survivor's
// position in the round, which follows proposal order.
type scored struct {
	slot       int
	sequence   string
	vector     []float64
	prediction *model.Prediction
	score      float64
}

// rankByScore orders survivors by descending acquisition score. Equal
// scores keep proposal order.
func rankByScore(items []scored) []scored {
	ranked := append([]scored(nil), items...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})
	return ranked
}

// rankRandom is the cold-start order: a seeded permutation.
func rankRandom(rng *rand.Rand, items []scored) []scored {
	ranked := make([]scored, len(items))
	for i, j := range rng.Perm(len(items)) {
		ranked[i] = items[j]
	}
	return ranked
}

// selectDiverse walks ranked and keeps up to k items, skipping any within
// threshold edits of an item already kept. A threshold of 0 disables the
// filter.
func selectDiverse(ranked []scored, k, threshold int) []scored {
	if k <= 0 {
		return nil
	}
	out := make([]scored, 0, k)
	for _, item := range ranked {
		if len(out) >= k {
			break
		}
		if threshold > 0 && tooClose(item.sequence, out, threshold) {
			continue
		}
		out = append(out, item)
	}
	return out
}

func tooClose(seq string, selected []scored, threshold int) bool {
	for _, other := range selected {
		if levenshtein.ComputeDistance(seq, other.sequence) <= threshold {
			return true
		}
	}
	return false
}
