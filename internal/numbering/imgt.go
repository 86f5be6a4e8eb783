package numbering

import (
	"fmt"
	"strconv"

	"clonebo/internal/model"
)

const SchemeIMGT = "imgt"

// imgtSlots are the IMGT position ranges of each region, inclusive.
var imgtSlots = map[model.Region][2]int{
	model.RegionFR1:  {1, 26},
	model.RegionCDR1: {27, 38},
	model.RegionFR2:  {39, 55},
	model.RegionCDR2: {56, 65},
	model.RegionFR3:  {66, 104},
	model.RegionCDR3: {105, 117},
	model.RegionFR4:  {118, 128},
}

// IMGTNumberer labels the anchor-delimited regions with IMGT-style
// positions. A region shorter than its IMGT range leaves a gap in the
// middle of the range; a longer one takes insertion codes on the two
// central positions, ascending on the left (111.1, 111.2) and descending
// on the right (112.2, 112.1), as IMGT does for CDR3.
type IMGTNumberer struct{}

func (IMGTNumberer) Scheme() string {
	return SchemeIMGT
}

func (IMGTNumberer) Number(raw string) (model.NumberedSequence, error) {
	numbered, err := AnchorNumberer{}.Number(raw)
	if err != nil {
		return model.NumberedSequence{}, err
	}
	numbered.Scheme = SchemeIMGT
	for _, span := range numbered.Regions {
		slots, ok := imgtSlots[span.Region]
		if !ok {
			return model.NumberedSequence{}, fmt.Errorf("%w: no imgt range for %s", ErrUnalignable, span.Region)
		}
		for i, label := range slotLabels(slots[0], slots[1], span.Len()) {
			numbered.Positions[span.Start+i].Label = string(numbered.Chain) + label
		}
	}
	return numbered, nil
}

// slotLabels spreads n residues over positions first..last.
func slotLabels(first, last, n int) []string {
	slots := last - first + 1
	out := make([]string, 0, n)
	if n <= slots {
		head := (n + 1) / 2
		for i := 0; i < head; i++ {
			out = append(out, strconv.Itoa(first+i))
		}
		for i := n - head; i > 0; i-- {
			out = append(out, strconv.Itoa(last-i+1))
		}
		return out
	}

	mid := first + (slots-1)/2
	extra := n - slots
	left := (extra + 1) / 2
	for p := first; p <= mid; p++ {
		out = append(out, strconv.Itoa(p))
	}
	for i := 1; i <= left; i++ {
		out = append(out, fmt.Sprintf("%d.%d", mid, i))
	}
	for i := extra - left; i >= 1; i-- {
		out = append(out, fmt.Sprintf("%d.%d", mid+1, i))
	}
	for p := mid + 1; p <= last; p++ {
		out = append(out, strconv.Itoa(p))
	}
	return out
}
