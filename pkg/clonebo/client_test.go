package clonebo

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clonebo/internal/config"
	"clonebo/internal/model"
	"clonebo/internal/numbering"
	"clonebo/internal/storage"
	"clonebo/internal/testutil"
)

func smallConfig() config.Config {
	cfg := config.Default()
	cfg.Campaign.BatchSize = 4
	cfg.Campaign.OracleBudget = 9
	cfg.Campaign.MinEvaluated = 1
	cfg.Campaign.ProposalMultiplier = 4
	cfg.Campaign.ConvergencePatience = 0
	cfg.Campaign.Seed = 7
	cfg.Oracle.Target = testutil.TrastuzumabVH
	return cfg
}

func newClient(t *testing.T, opts Options) *Client {
	t.Helper()
	client, err := New(context.Background(), opts)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = client.Close()
	})
	return client
}

func wildTypeVariant() string {
	return testutil.Mutate(testutil.TrastuzumabVH, 102, 'A')
}

func TestClientRunAndInspect(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	client := newClient(t, Options{StoreKind: storage.BackendMemory, Registry: reg})

	summary, err := client.Run(ctx, RunRequest{
		Config: smallConfig(),
		Seeds:  []SeedSequence{{Sequence: wildTypeVariant()}},
	})
	require.NoError(t, err)
	require.NotEmpty(t, summary.CampaignID)
	assert.Equal(t, model.StatusBudgetExhausted, summary.Status)
	assert.Equal(t, 9, summary.OracleCalls)
	require.NotNil(t, summary.BestFitness)
	assert.NotEmpty(t, summary.BestSequence)
	assert.Equal(t, 9.0, promtest.ToFloat64(client.metrics.OracleCallsTotal))

	campaigns, err := client.Campaigns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, campaigns, 1)
	assert.Equal(t, summary.CampaignID, campaigns[0].ID)
	assert.Equal(t, summary.PoolSize, campaigns[0].Candidates)

	top, err := client.Top(ctx, Latest, 3)
	require.NoError(t, err)
	require.NotEmpty(t, top)
	first, _ := top[0].Fitness()
	assert.Equal(t, *summary.BestFitness, first)
	for i := 1; i < len(top); i++ {
		prev, _ := top[i-1].Fitness()
		cur, _ := top[i].Fitness()
		assert.GreaterOrEqual(t, prev, cur)
	}

	rounds, err := client.Rounds(ctx, summary.CampaignID)
	require.NoError(t, err)
	assert.Len(t, rounds, summary.Rounds)

	var buf bytes.Buffer
	require.NoError(t, client.Export(ctx, summary.CampaignID, &buf))
	records, err := storage.ReadCandidatesJSONL(&buf)
	require.NoError(t, err)
	assert.Len(t, records, summary.PoolSize)
}

func TestClientResumeWithRaisedBudget(t *testing.T) {
	ctx := context.Background()
	client := newClient(t, Options{StoreKind: storage.BackendBadger})

	cfg := smallConfig()
	first, err := client.Run(ctx, RunRequest{Config: cfg, Seeds: []SeedSequence{{Sequence: wildTypeVariant()}}})
	require.NoError(t, err)

	cfg.Campaign.OracleBudget = 13
	resumed, err := client.Run(ctx, RunRequest{Config: cfg, ResumeID: Latest})
	require.NoError(t, err)
	assert.Equal(t, first.CampaignID, resumed.CampaignID)
	assert.Equal(t, 13, resumed.OracleCalls)
	assert.Greater(t, resumed.Rounds, first.Rounds)
	assert.GreaterOrEqual(t, *resumed.BestFitness, *first.BestFitness)
}

func TestClientRunRejectsBadRequests(t *testing.T) {
	ctx := context.Background()
	client := newClient(t, Options{})

	_, err := client.Run(ctx, RunRequest{Config: smallConfig()})
	assert.ErrorIs(t, err, config.ErrInvalidConfig)

	cfg := smallConfig()
	cfg.Campaign.BatchSize = 20
	_, err = client.Run(ctx, RunRequest{Config: cfg, Seeds: []SeedSequence{{Sequence: wildTypeVariant()}}})
	var cfgErr *config.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "campaign.batch_size", cfgErr.Field)

	cfg = smallConfig()
	cfg.Oracle.Target = "NOTANANTIBODY"
	_, err = client.Run(ctx, RunRequest{Config: cfg, Seeds: []SeedSequence{{Sequence: wildTypeVariant()}}})
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "oracle.target", cfgErr.Field)

	_, err = client.Run(ctx, RunRequest{Config: smallConfig(), ResumeID: "missing"})
	assert.ErrorContains(t, err, "campaign not found")
}

func TestClientLookupsNeedCampaign(t *testing.T) {
	ctx := context.Background()
	client := newClient(t, Options{})

	_, err := client.Top(ctx, Latest, 1)
	assert.ErrorContains(t, err, "no campaigns available")
	_, err = client.Rounds(ctx, "")
	assert.Error(t, err)
	_, err = client.Top(ctx, "x", 0)
	assert.Error(t, err)
	_, err = client.Campaigns(ctx, -1)
	assert.Error(t, err)
}

func TestClientDelete(t *testing.T) {
	ctx := context.Background()
	client := newClient(t, Options{})
	summary, err := client.Run(ctx, RunRequest{Config: smallConfig(), Seeds: []SeedSequence{{Sequence: wildTypeVariant()}}})
	require.NoError(t, err)

	require.NoError(t, client.Delete(ctx, summary.CampaignID))
	campaigns, err := client.Campaigns(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, campaigns)
}

func TestNewValidatorRejectsUnknownScheme(t *testing.T) {
	cfg := config.Default().Sequence
	cfg.Scheme = "kabat-ish"
	_, err := NewValidator(cfg)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestOneHotEmbedderUsesCanonicalAlphabet(t *testing.T) {
	cfg := config.Default()
	cfg.Sequence.Alphabet = strings.ToLower(cfg.Sequence.Alphabet)
	validator, err := NewValidator(cfg.Sequence)
	require.NoError(t, err)
	numbered, err := validator.Validate(testutil.TrastuzumabVH)
	require.NoError(t, err)

	embedder, err := buildEmbedder(cfg, validator, nil)
	require.NoError(t, err)
	vec, err := embedder.Embed(context.Background(), numbered)
	require.NoError(t, err)
	assert.Len(t, vec, embedder.Dim())
}

func TestNewValidatorAcceptsIMGTScheme(t *testing.T) {
	cfg := config.Default().Sequence
	cfg.Scheme = numbering.SchemeIMGT
	v, err := NewValidator(cfg)
	require.NoError(t, err)
	numbered, err := v.Validate(testutil.TrastuzumabVH)
	require.NoError(t, err)
	assert.Equal(t, numbering.SchemeIMGT, numbered.Scheme)
	assert.Equal(t, "H1", numbered.Positions[0].Label)
}
