// Package testutil holds reference antibody sequences and helpers shared
// by package tests.
package testutil

const (
	// TrastuzumabVH is a 120-residue heavy-chain variable domain.
	TrastuzumabVH = "EVQLVESGGGLVQPGGSLRLSCAASGFNIKDTYIHWVRQAPGKGLEWVARIYPTNGYTRYADSVKGRFTISADTSKNTAYLQMNSLRAEDTAVYYCSRWGGDGFYAMDYWGQGTLVTVSS"

	// TrastuzumabVL is a 107-residue kappa light-chain variable domain.
	TrastuzumabVL = "DIQMTQSPSSLSASVGDRVTITCRASQDVNTAVAWYQQKPGKAPKLLIYSASFLYSGVPSRFSGSRSGTDFTLTISSLQPEDFATYYCQQHYTTPPTFGQGTKVEIK"
)

// CDR index ranges of TrastuzumabVH under the anchor scheme, half-open.
var (
	VHCDR1 = [2]int{25, 35}
	VHCDR2 = [2]int{49, 66}
	VHCDR3 = [2]int{98, 109}
)

// Mutate returns seq with residue i replaced by aa.
func Mutate(seq string, i int, aa byte) string {
	b := []byte(seq)
	b[i] = aa
	return string(b)
}

// CDRVariants returns n distinct single-point CDR3 variants of seq, each
// differing from seq and from each other. Substitutions avoid C, W and F so
// the framework anchors are undisturbed.
func CDRVariants(seq string, n int) []string {
	const residues = "ADEGHIKLMNPQRSTVY"
	out := make([]string, 0, n)
	seen := map[string]struct{}{seq: {}}
	for i := VHCDR3[0] + 1; i < VHCDR3[1] && len(out) < n; i++ {
		for j := 0; j < len(residues) && len(out) < n; j++ {
			if residues[j] == seq[i] {
				continue
			}
			v := Mutate(seq, i, residues[j])
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}
