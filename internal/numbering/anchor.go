package numbering

import (
	"fmt"

	"clonebo/internal/model"
)

const (
	SchemeAnchor = "anchor"

	minAnchoredLength = 80
)

// AnchorNumberer numbers a variable domain from its conserved anchors: the
// FR1 cysteine, the first FR2 tryptophan, the FR3 cysteine and the FR4
// J-motif ([WF]G.G). The J-motif residue decides the chain (W heavy, F
// light); CDR boundaries are fixed offsets from the anchors. Positions are
// labelled sequentially with the chain prefix.
type AnchorNumberer struct{}

func (AnchorNumberer) Scheme() string {
	return SchemeAnchor
}

func (AnchorNumberer) Number(raw string) (model.NumberedSequence, error) {
	seq := raw
	if len(seq) < minAnchoredLength {
		return model.NumberedSequence{}, fmt.Errorf("%w: length %d below anchored minimum %d", ErrUnalignable, len(seq), minAnchoredLength)
	}

	c1 := indexWithin(seq, 15, 30, func(i int) bool { return seq[i] == 'C' })
	if c1 < 0 {
		return model.NumberedSequence{}, fmt.Errorf("%w: no FR1 cysteine", ErrUnalignable)
	}
	w1 := indexWithin(seq, c1+10, c1+20, func(i int) bool { return seq[i] == 'W' })
	if w1 < 0 {
		return model.NumberedSequence{}, fmt.Errorf("%w: no FR2 tryptophan", ErrUnalignable)
	}
	c2 := indexWithin(seq, w1+40, w1+75, func(i int) bool { return seq[i] == 'C' })
	if c2 < 0 {
		return model.NumberedSequence{}, fmt.Errorf("%w: no FR3 cysteine", ErrUnalignable)
	}
	j := indexWithin(seq, c2+4, c2+40, func(i int) bool {
		return i+3 < len(seq) && (seq[i] == 'W' || seq[i] == 'F') && seq[i+1] == 'G' && seq[i+3] == 'G'
	})
	if j < 0 {
		return model.NumberedSequence{}, fmt.Errorf("%w: no FR4 J-motif", ErrUnalignable)
	}

	var chain model.Chain
	var bounds [6]int // starts of CDR1, FR2, CDR2, FR3, CDR3, FR4
	if seq[j] == 'W' {
		chain = model.ChainHeavy
		bounds = [6]int{c1 + 4, w1, w1 + 14, c2 - 29, c2 + 3, j}
	} else {
		chain = model.ChainLight
		bounds = [6]int{c1 + 1, w1, w1 + 15, w1 + 22, c2 + 1, j}
	}

	starts := append([]int{0}, bounds[:]...)
	spans := make([]model.RegionSpan, 0, len(model.RegionOrder))
	for i, region := range model.RegionOrder {
		end := len(seq)
		if i+1 < len(starts) {
			end = starts[i+1]
		}
		if end-starts[i] < minRegionLength(region) {
			return model.NumberedSequence{}, fmt.Errorf("%w: %s region %s has length %d", ErrUnalignable, chain, region, end-starts[i])
		}
		spans = append(spans, model.RegionSpan{Region: region, Start: starts[i], End: end})
	}

	positions := make([]model.Position, len(seq))
	for _, span := range spans {
		for i := span.Start; i < span.End; i++ {
			positions[i] = model.Position{
				Label:   fmt.Sprintf("%s%d", chain, i+1),
				Residue: seq[i],
				Region:  span.Region,
			}
		}
	}

	return model.NumberedSequence{
		Sequence:  seq,
		Scheme:    SchemeAnchor,
		Chain:     chain,
		Positions: positions,
		Regions:   spans,
	}, nil
}

func minRegionLength(region model.Region) int {
	switch region {
	case model.RegionCDR2:
		return 3
	case model.RegionFR3:
		return 20
	case model.RegionFR4:
		return 4
	default:
		return 1
	}
}

// indexWithin returns the first index in [lo, hi] satisfying match, or -1.
func indexWithin(seq string, lo, hi int, match func(i int) bool) int {
	if lo < 0 {
		lo = 0
	}
	if hi >= len(seq) {
		hi = len(seq) - 1
	}
	for i := lo; i <= hi; i++ {
		if match(i) {
			return i
		}
	}
	return -1
}
