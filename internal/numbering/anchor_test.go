package numbering

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clonebo/internal/model"
	"clonebo/internal/testutil"
)

func TestAnchorNumbererHeavyChainRegions(t *testing.T) {
	numbered, err := AnchorNumberer{}.Number(testutil.TrastuzumabVH)
	require.NoError(t, err)
	require.NoError(t, numbered.Validate())

	assert.Equal(t, model.ChainHeavy, numbered.Chain)
	assert.Equal(t, SchemeAnchor, numbered.Scheme)
	want := map[model.Region]string{
		model.RegionFR1:  "EVQLVESGGGLVQPGGSLRLSCAAS",
		model.RegionCDR1: "GFNIKDTYIH",
		model.RegionFR2:  "WVRQAPGKGLEWVA",
		model.RegionCDR2: "RIYPTNGYTRYADSVKG",
		model.RegionFR3:  "RFTISADTSKNTAYLQMNSLRAEDTAVYYCSR",
		model.RegionCDR3: "WGGDGFYAMDY",
		model.RegionFR4:  "WGQGTLVTVSS",
	}
	for region, residues := range want {
		span, ok := numbered.Span(region)
		require.True(t, ok, "missing region %s", region)
		assert.Equal(t, residues, numbered.Sequence[span.Start:span.End], "region %s", region)
	}
	assert.Equal(t, "H1", numbered.Positions[0].Label)
	assert.Equal(t, "H120", numbered.Positions[119].Label)
}

func TestAnchorNumbererLightChainRegions(t *testing.T) {
	numbered, err := AnchorNumberer{}.Number(testutil.TrastuzumabVL)
	require.NoError(t, err)
	require.NoError(t, numbered.Validate())

	assert.Equal(t, model.ChainLight, numbered.Chain)
	cdr1, _ := numbered.Span(model.RegionCDR1)
	cdr2, _ := numbered.Span(model.RegionCDR2)
	cdr3, _ := numbered.Span(model.RegionCDR3)
	assert.Equal(t, "RASQDVNTAVA", numbered.Sequence[cdr1.Start:cdr1.End])
	assert.Equal(t, "SASFLYS", numbered.Sequence[cdr2.Start:cdr2.End])
	assert.Equal(t, "QQHYTTPPT", numbered.Sequence[cdr3.Start:cdr3.End])
}

func TestAnchorNumbererRejectsUnalignable(t *testing.T) {
	cases := map[string]string{
		"too short":    testutil.TrastuzumabVH[:60],
		"no fr1 cys":   testutil.Mutate(testutil.TrastuzumabVH, 21, 'S'),
		"no fr2 trp":   testutil.Mutate(testutil.TrastuzumabVH, 35, 'F'),
		"no j motif":   testutil.Mutate(testutil.TrastuzumabVH, 110, 'A'),
		"poly alanine": strings.Repeat("A", 120),
		"no fr3 cys":   testutil.Mutate(testutil.TrastuzumabVH, 95, 'A'),
	}
	for name, seq := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := AnchorNumberer{}.Number(seq)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrUnalignable))
		})
	}
}

func TestAnchorNumbererIsDeterministic(t *testing.T) {
	a, errA := AnchorNumberer{}.Number(testutil.TrastuzumabVH)
	b, errB := AnchorNumberer{}.Number(testutil.TrastuzumabVH)
	require.NoError(t, errA)
	require.NoError(t, errB)
	assert.Equal(t, a, b)
}

func TestResolveScheme(t *testing.T) {
	n, err := Resolve(SchemeAnchor)
	require.NoError(t, err)
	assert.Equal(t, SchemeAnchor, n.Scheme())

	_, err = Resolve("kabat-exact")
	assert.ErrorIs(t, err, ErrSchemeNotFound)
	assert.Contains(t, Schemes(), SchemeAnchor)
}
