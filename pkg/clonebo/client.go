// Package clonebo is the embedding API for running and inspecting antibody
// design campaigns.
package clonebo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"

	"clonebo/internal/campaign"
	"clonebo/internal/config"
	"clonebo/internal/metrics"
	"clonebo/internal/model"
	"clonebo/internal/pool"
	"clonebo/internal/storage"
)

// Latest selects the most recently updated campaign wherever a campaign id
// is accepted.
const Latest = "latest"

const defaultDBPath = "clonebo.db"

type Options struct {
	StoreKind string
	// DBPath is the sqlite file or badger directory.
	DBPath string
	Logger *slog.Logger
	// Registry receives campaign metrics; nil disables them.
	Registry prometheus.Registerer
	Tracer   trace.TracerProvider
}

type Client struct {
	store   storage.Store
	logger  *slog.Logger
	metrics *metrics.Campaign
	tracer  trace.TracerProvider
}

// SeedSequence is a starting sequence with an optional measured fitness.
type SeedSequence struct {
	Sequence string
	Fitness  *float64
}

type RunRequest struct {
	Config config.Config
	Seeds  []SeedSequence
	// ResumeID continues a stored campaign instead of starting from Seeds.
	ResumeID string
}

type RunSummary struct {
	CampaignID     string
	Status         model.CampaignStatus
	TerminalReason string
	Rounds         int
	OracleCalls    int
	PoolSize       int
	BestSequence   string
	BestFitness    *float64
}

func New(ctx context.Context, opts Options) (*Client, error) {
	kind := opts.StoreKind
	if kind == "" {
		kind = storage.BackendMemory
	}
	dbPath := opts.DBPath
	if dbPath == "" && kind == storage.BackendSQLite {
		dbPath = defaultDBPath
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	var store storage.Store
	if kind == storage.BackendBadger {
		store = storage.NewBadgerStore(storage.BadgerOptions{Path: dbPath, InMemory: dbPath == "", Logger: logger.With("component", "badger")})
	} else {
		var err error
		store, err = storage.NewStore(kind, dbPath)
		if err != nil {
			return nil, err
		}
	}
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("init %s store: %w", kind, err)
	}

	c := &Client{store: store, logger: logger, tracer: opts.Tracer}
	if opts.Registry != nil {
		c.metrics = metrics.New(opts.Registry)
	}
	return c, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

// Run starts a campaign from req.Seeds, or resumes req.ResumeID, and drives
// it to a terminal state. A cancelled ctx returns the summary of the
// checkpointed campaign together with the context error.
func (c *Client) Run(ctx context.Context, req RunRequest) (RunSummary, error) {
	if err := req.Config.Validate(); err != nil {
		return RunSummary{}, err
	}
	if req.ResumeID == "" && len(req.Seeds) == 0 {
		return RunSummary{}, config.Errorf("seeds", "run requires seed sequences or a campaign to resume")
	}

	checkpointer, err := storage.NewCheckpointer(c.store)
	if err != nil {
		return RunSummary{}, err
	}
	controller, err := buildController(req.Config, campaign.Config{
		Checkpointer: checkpointer,
		Metrics:      c.metrics,
		Tracer:       c.tracer,
	}, c.logger)
	if err != nil {
		return RunSummary{}, err
	}

	var res campaign.Result
	if req.ResumeID != "" {
		snapshot, err := c.snapshot(ctx, req.ResumeID)
		if err != nil {
			return RunSummary{}, err
		}
		res, err = controller.Resume(ctx, snapshot)
		if err != nil && res.ID == "" {
			return RunSummary{}, err
		}
		return summarize(res), err
	}

	seeds := make([]campaign.Seed, len(req.Seeds))
	for i, s := range req.Seeds {
		seeds[i] = campaign.Seed{Sequence: s.Sequence, Fitness: s.Fitness}
	}
	res, err = controller.Run(ctx, seeds)
	return summarize(res), err
}

func summarize(res campaign.Result) RunSummary {
	summary := RunSummary{
		CampaignID:     res.ID,
		Status:         res.State.Status(),
		TerminalReason: res.TerminalReason,
		Rounds:         len(res.Rounds),
		OracleCalls:    res.OracleCalls,
		PoolSize:       len(res.Snapshot.Candidates),
	}
	if res.Best != nil {
		summary.BestSequence = res.Best.Sequence()
		if f, ok := res.Best.Fitness(); ok {
			summary.BestFitness = &f
		}
	}
	return summary
}

// Campaigns lists stored campaigns, most recently updated first. A limit
// of 0 returns all of them.
func (c *Client) Campaigns(ctx context.Context, limit int) ([]model.CampaignSummary, error) {
	if limit < 0 {
		return nil, errors.New("limit must be >= 0")
	}
	summaries, err := c.store.ListCampaigns(ctx)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(summaries) > limit {
		summaries = summaries[:limit]
	}
	return summaries, nil
}

// Top returns the k best oracle-evaluated candidates of a campaign.
func (c *Client) Top(ctx context.Context, id string, k int) ([]model.Candidate, error) {
	if k <= 0 {
		return nil, errors.New("k must be > 0")
	}
	snapshot, err := c.snapshot(ctx, id)
	if err != nil {
		return nil, err
	}
	p := pool.New()
	for _, rec := range snapshot.Candidates {
		cand, err := model.CandidateFromRecord(rec)
		if err != nil {
			return nil, err
		}
		p.Add(cand)
	}
	return p.TopK(k), nil
}

// Rounds returns the round history of a campaign in order.
func (c *Client) Rounds(ctx context.Context, id string) ([]model.Round, error) {
	snapshot, err := c.snapshot(ctx, id)
	if err != nil {
		return nil, err
	}
	return snapshot.Rounds, nil
}

// Export writes every candidate of a campaign to w as JSON lines.
func (c *Client) Export(ctx context.Context, id string, w io.Writer) error {
	snapshot, err := c.snapshot(ctx, id)
	if err != nil {
		return err
	}
	return storage.WriteCandidatesJSONL(w, snapshot.Candidates)
}

// Delete removes a stored campaign.
func (c *Client) Delete(ctx context.Context, id string) error {
	resolved, err := c.resolveID(ctx, id)
	if err != nil {
		return err
	}
	return c.store.DeleteCampaign(ctx, resolved)
}

func (c *Client) snapshot(ctx context.Context, id string) (model.CampaignSnapshot, error) {
	resolved, err := c.resolveID(ctx, id)
	if err != nil {
		return model.CampaignSnapshot{}, err
	}
	snapshot, ok, err := c.store.GetCampaign(ctx, resolved)
	if err != nil {
		return model.CampaignSnapshot{}, err
	}
	if !ok {
		return model.CampaignSnapshot{}, fmt.Errorf("campaign not found: %s", resolved)
	}
	return snapshot, nil
}

func (c *Client) resolveID(ctx context.Context, id string) (string, error) {
	if id == "" {
		return "", errors.New("campaign id or latest is required")
	}
	if id != Latest {
		return id, nil
	}
	summaries, err := c.store.ListCampaigns(ctx)
	if err != nil {
		return "", err
	}
	if len(summaries) == 0 {
		return "", errors.New("no campaigns available")
	}
	return summaries[0].ID, nil
}
