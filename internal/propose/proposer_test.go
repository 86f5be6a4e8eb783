package propose

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clonebo/internal/generative"
	"clonebo/internal/model"
	"clonebo/internal/numbering"
	"clonebo/internal/testutil"
)

type scriptedModel struct {
	mu       sync.Mutex
	sample   func(req generative.SampleRequest) ([]string, error)
	score    func(raw string) float64
	requests []generative.SampleRequest
}

func (m *scriptedModel) Name() string { return "scripted" }

func (m *scriptedModel) Sample(_ context.Context, req generative.SampleRequest) ([]string, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	return m.sample(req)
}

func (m *scriptedModel) ScoreLikelihood(_ context.Context, raw string) (float64, error) {
	if m.score == nil {
		return 0, nil
	}
	return m.score(raw), nil
}

func seedCandidate(t *testing.T, raw string) model.Candidate {
	t.Helper()
	numbered, err := numbering.AnchorNumberer{}.Number(raw)
	require.NoError(t, err)
	return model.Candidate{Numbered: numbered}
}

func newProposer(t *testing.T, m generative.Model, mutate func(*Config)) *Proposer {
	t.Helper()
	cfg := Config{
		Model:        m,
		Temperature:  1,
		MutationRate: 0.02,
		MaxMutations: 3,
		CDRWeight:    4,
		RetryBudget:  3,
		Seed:         1,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	p, err := New(cfg)
	require.NoError(t, err)
	return p
}

func hamming(a, b string) int {
	d := 0
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			d++
		}
	}
	return d
}

func TestProposeWithSubstitutionModel(t *testing.T) {
	seed := seedCandidate(t, testutil.TrastuzumabVH)
	p := newProposer(t, generative.NewSubstitutionModel(5, "C"), nil)

	proposals, err := p.Propose(context.Background(), []model.Candidate{seed}, 8)
	require.NoError(t, err)
	require.Len(t, proposals, 8)

	seen := map[string]bool{}
	for i, prop := range proposals {
		assert.Equal(t, i, prop.Index)
		assert.Equal(t, testutil.TrastuzumabVH, prop.Parent)
		assert.Equal(t, OperationInfill, prop.Operation)
		assert.NotEqual(t, testutil.TrastuzumabVH, prop.Sequence)
		assert.False(t, seen[prop.Sequence], "duplicate proposal %s", prop.Sequence)
		seen[prop.Sequence] = true
		d := hamming(testutil.TrastuzumabVH, prop.Sequence)
		assert.GreaterOrEqual(t, d, 1)
		assert.LessOrEqual(t, d, 3)
	}
}

func TestMaskFavoursCDRs(t *testing.T) {
	seed := seedCandidate(t, testutil.TrastuzumabVH)
	p := newProposer(t, &scriptedModel{}, func(cfg *Config) {
		cfg.MutationRate = 0.5
		cfg.MaxMutations = 5
		cfg.CDRWeight = 1e9
	})

	for i := 0; i < 50; i++ {
		mask := p.mask(seed.Numbered)
		require.Len(t, mask, 5)
		for j, idx := range mask {
			assert.True(t, seed.Numbered.RegionOf(idx).IsCDR(), "index %d is framework", idx)
			if j > 0 {
				assert.Less(t, mask[j-1], idx)
			}
		}
	}
}

func TestProposeRoundRobinOverSeeds(t *testing.T) {
	seeds := []model.Candidate{
		seedCandidate(t, testutil.TrastuzumabVH),
		seedCandidate(t, testutil.CDRVariants(testutil.TrastuzumabVH, 1)[0]),
	}
	counter := 0
	m := &scriptedModel{sample: func(req generative.SampleRequest) ([]string, error) {
		counter++
		return []string{testutil.Mutate(req.Context, 60+counter, 'A')}, nil
	}}
	p := newProposer(t, m, nil)

	proposals, err := p.Propose(context.Background(), seeds, 4)
	require.NoError(t, err)
	require.Len(t, proposals, 4)
	require.Len(t, m.requests, 4)
	for i, req := range m.requests {
		assert.Equal(t, seeds[i%2].Sequence(), req.Context)
		assert.Equal(t, seeds[i%2].Sequence(), proposals[i].Parent)
	}
}

func TestProposeReturnsFewerWithoutError(t *testing.T) {
	variants := testutil.CDRVariants(testutil.TrastuzumabVH, 2)
	m := &scriptedModel{sample: func(req generative.SampleRequest) ([]string, error) {
		return append([]string{req.Context}, variants...), nil
	}}
	p := newProposer(t, m, nil)

	proposals, err := p.Propose(context.Background(), []model.Candidate{seedCandidate(t, testutil.TrastuzumabVH)}, 10)
	require.NoError(t, err)
	require.Len(t, proposals, 2)
	assert.Equal(t, variants[0], proposals[0].Sequence)
	assert.Equal(t, variants[1], proposals[1].Sequence)
	// one productive attempt then three stale ones
	assert.Len(t, m.requests, 4)
}

func TestProposeExhaustion(t *testing.T) {
	m := &scriptedModel{sample: func(req generative.SampleRequest) ([]string, error) {
		return []string{req.Context, req.Context}, nil
	}}
	p := newProposer(t, m, nil)

	_, err := p.Propose(context.Background(), []model.Candidate{seedCandidate(t, testutil.TrastuzumabVH)}, 4)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExhausted)
	var exhausted *ExhaustionError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)
	assert.Equal(t, 4, exhausted.Requested)
}

func TestProposeExhaustionWrapsModelError(t *testing.T) {
	boom := errors.New("model unavailable")
	m := &scriptedModel{sample: func(generative.SampleRequest) ([]string, error) {
		return nil, boom
	}}
	p := newProposer(t, m, nil)

	_, err := p.Propose(context.Background(), []model.Candidate{seedCandidate(t, testutil.TrastuzumabVH)}, 2)
	assert.ErrorIs(t, err, ErrExhausted)
	assert.ErrorIs(t, err, boom)
}

func TestProposeLikelihoodFilter(t *testing.T) {
	variants := testutil.CDRVariants(testutil.TrastuzumabVH, 4)
	m := &scriptedModel{
		sample: func(generative.SampleRequest) ([]string, error) {
			return variants, nil
		},
		score: func(raw string) float64 {
			if raw == variants[1] || raw == variants[3] {
				return -10
			}
			return -1
		},
	}
	floor := -2.0
	p := newProposer(t, m, func(cfg *Config) { cfg.MinLogLikelihood = &floor })

	proposals, err := p.Propose(context.Background(), []model.Candidate{seedCandidate(t, testutil.TrastuzumabVH)}, 4)
	require.NoError(t, err)
	require.Len(t, proposals, 2)
	assert.Equal(t, variants[0], proposals[0].Sequence)
	assert.Equal(t, variants[2], proposals[1].Sequence)
}

func TestProposeUnconditional(t *testing.T) {
	p := newProposer(t, generative.NewSubstitutionModel(2, ""), func(cfg *Config) { cfg.UnconditionalLength = 110 })
	proposals, err := p.Propose(context.Background(), nil, 3)
	require.NoError(t, err)
	require.Len(t, proposals, 3)
	for _, prop := range proposals {
		assert.Len(t, prop.Sequence, 110)
		assert.Empty(t, prop.Parent)
		assert.Equal(t, OperationSample, prop.Operation)
	}

	bare := newProposer(t, generative.NewSubstitutionModel(2, ""), nil)
	_, err = bare.Propose(context.Background(), nil, 3)
	assert.ErrorIs(t, err, generative.ErrNoContext)
}

func TestProposeCancelled(t *testing.T) {
	p := newProposer(t, generative.NewSubstitutionModel(2, ""), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Propose(ctx, []model.Candidate{seedCandidate(t, testutil.TrastuzumabVH)}, 3)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewRejectsBadConfig(t *testing.T) {
	_, err := New(Config{Temperature: 1, MutationRate: 0.1, RetryBudget: 1})
	assert.Error(t, err)
	_, err = New(Config{Model: &scriptedModel{}, MutationRate: 0.1, RetryBudget: 1})
	assert.Error(t, err)
	_, err = New(Config{Model: &scriptedModel{}, Temperature: 1, MutationRate: 1.5, RetryBudget: 1})
	assert.Error(t, err)
	_, err = New(Config{Model: &scriptedModel{}, Temperature: 1, MutationRate: 0.1})
	assert.Error(t, err)
}
