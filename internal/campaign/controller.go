// Package campaign drives the closed design loop: propose, validate,
// score, select, evaluate and update, round after round, until the
// campaign converges or spends its budget.
package campaign

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"clonebo/internal/acquisition"
	"clonebo/internal/config"
	"clonebo/internal/embed"
	"clonebo/internal/metrics"
	"clonebo/internal/model"
	"clonebo/internal/oracle"
	"clonebo/internal/pool"
	"clonebo/internal/propose"
	"clonebo/internal/surrogate"
	"clonebo/internal/validate"
)

const (
	RefitFull   = "full"
	RefitWindow = "window"

	tracerName = "clonebo/internal/campaign"

	oracleGrace = 250 * time.Millisecond
)

// SequenceValidator numbers raw sequences and rejects invalid ones.
type SequenceValidator interface {
	Validate(raw model.Sequence) (model.NumberedSequence, error)
	ValidateBatch(ctx context.Context, raws []string, workers int) ([]validate.Result, error)
}

// Proposer produces raw candidate sequences from seeds.
type Proposer interface {
	Propose(ctx context.Context, seeds []model.Candidate, n int) ([]propose.Proposal, error)
}

// Checkpointer persists campaign snapshots.
type Checkpointer interface {
	Checkpoint(ctx context.Context, snapshot model.CampaignSnapshot) error
}

// Seed is an initial sequence with an optional known fitness. Seeds without
// fitness are evaluated during initialization and count against the
// budget.
type Seed struct {
	Sequence string
	Fitness  *float64
}

type Config struct {
	Validator    SequenceValidator
	Embedder     embed.Embedder
	Surrogate    surrogate.Model
	Acquisition  acquisition.Function
	Proposer     Proposer
	Oracle       oracle.Oracle
	Checkpointer Checkpointer
	Metrics      *metrics.Campaign
	Logger       *slog.Logger
	Tracer       trace.TracerProvider

	BatchSize    int
	OracleBudget int
	// MaxRounds caps the number of rounds; 0 means no cap.
	MaxRounds int
	// MinEvaluated is the number of oracle-evaluated candidates needed
	// before the surrogate is consulted.
	MinEvaluated         int
	DiversityThreshold   int
	ConvergencePatience  int
	ConvergenceThreshold float64
	ProposalMultiplier   int
	SeedCount            int
	ExhaustionTolerance  int
	OracleTimeout        time.Duration
	Workers              int
	RefitPolicy          string
	RefitWindow          int
	Seed                 int64
	// Settings is stored with every snapshot.
	Settings map[string]any
}

// Result is the outcome of a finished campaign.
type Result struct {
	ID             string
	State          State
	TerminalReason string
	Rounds         []model.Round
	Best           *model.Candidate
	OracleCalls    int
	Snapshot       model.CampaignSnapshot
}

// Controller owns the candidate pool and runs the loop on one goroutine.
// Validation and scoring fan out to workers and merge by proposal index.
type Controller struct {
	cfg    Config
	rng    *rand.Rand
	logger *slog.Logger
	tracer trace.Tracer

	id          string
	createdAt   time.Time
	state       State
	reason      string
	pool        *pool.Pool
	rounds      []model.Round
	oracleCalls int
	features    map[string][]float64
	fitted      bool
	initialBest float64
	hasInitial  bool
}

func New(cfg Config) (*Controller, error) {
	if cfg.Validator == nil {
		return nil, config.Errorf("validator", "is required")
	}
	if cfg.Embedder == nil {
		return nil, config.Errorf("embedder", "is required")
	}
	if cfg.Surrogate == nil {
		return nil, config.Errorf("surrogate", "is required")
	}
	if cfg.Acquisition == nil {
		return nil, config.Errorf("acquisition", "is required")
	}
	if cfg.Proposer == nil {
		return nil, config.Errorf("proposer", "is required")
	}
	if cfg.Oracle == nil {
		return nil, config.Errorf("oracle", "is required")
	}
	if cfg.BatchSize <= 0 {
		return nil, config.Errorf("campaign.batch_size", "must be > 0")
	}
	if cfg.OracleBudget <= 0 {
		return nil, config.Errorf("campaign.oracle_budget", "must be > 0")
	}
	if cfg.BatchSize > cfg.OracleBudget {
		return nil, config.Errorf("campaign.batch_size", "batch size %d larger than oracle budget %d", cfg.BatchSize, cfg.OracleBudget)
	}
	if cfg.MaxRounds < 0 {
		return nil, config.Errorf("campaign.max_rounds", "must be >= 0")
	}
	if cfg.MinEvaluated <= 0 {
		cfg.MinEvaluated = 1
	}
	if cfg.DiversityThreshold < 0 {
		return nil, config.Errorf("campaign.diversity_threshold", "must be >= 0")
	}
	if cfg.ConvergencePatience < 0 || cfg.ConvergenceThreshold < 0 {
		return nil, config.Errorf("campaign.convergence_patience", "patience and threshold must be >= 0")
	}
	if cfg.ProposalMultiplier <= 0 {
		cfg.ProposalMultiplier = 1
	}
	if cfg.SeedCount <= 0 {
		cfg.SeedCount = 1
	}
	if cfg.ExhaustionTolerance < 0 {
		return nil, config.Errorf("campaign.exhaustion_tolerance", "must be >= 0")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	switch cfg.RefitPolicy {
	case "":
		cfg.RefitPolicy = RefitFull
	case RefitFull:
	case RefitWindow:
		if cfg.RefitWindow <= 0 {
			return nil, config.Errorf("campaign.refit_window", "must be > 0 with the window refit policy")
		}
	default:
		return nil, config.Errorf("campaign.refit_policy", "unknown policy %q", cfg.RefitPolicy)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	tp := cfg.Tracer
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	return &Controller{
		cfg:      cfg,
		rng:      rand.New(rand.NewSource(cfg.Seed)),
		logger:   logger,
		tracer:   tp.Tracer(tracerName),
		state:    StateInitializing,
		pool:     pool.New(),
		features: make(map[string][]float64),
	}, nil
}

// Run starts a new campaign from seeds and drives it to a terminal state.
// A cancelled context stops the loop between rounds; the returned error is
// then the context error and the Result is still populated.
func (c *Controller) Run(ctx context.Context, seeds []Seed) (Result, error) {
	if c.id != "" {
		return Result{}, errors.New("controller already started")
	}
	c.id = uuid.NewString()
	c.createdAt = time.Now().UTC()
	c.logger = c.logger.With("campaign", c.id)

	if err := c.initialize(ctx, seeds); err != nil {
		var cfgErr *config.ConfigurationError
		if errors.As(err, &cfgErr) {
			c.transition(StateFailed)
			return Result{ID: c.id, State: StateFailed, TerminalReason: err.Error()}, err
		}
		return c.fail(ctx, err)
	}
	return c.loop(ctx)
}

// Resume restores the pool and round history from snapshot and continues
// the loop. Terminal conditions are re-checked first, so a converged or
// exhausted campaign stops again unless its limits were raised.
func (c *Controller) Resume(ctx context.Context, snapshot model.CampaignSnapshot) (Result, error) {
	if c.id != "" {
		return Result{}, errors.New("controller already started")
	}
	if snapshot.ID == "" {
		return Result{}, errors.New("snapshot has no campaign id")
	}
	for _, rec := range snapshot.Candidates {
		cand, err := model.CandidateFromRecord(rec)
		if err != nil {
			return Result{}, fmt.Errorf("restore pool: %w", err)
		}
		if !c.pool.Add(cand) {
			return Result{}, fmt.Errorf("restore pool: duplicate sequence %s", cand.Sequence())
		}
		if rec.Round == 0 && rec.OracleFitness != nil && (!c.hasInitial || *rec.OracleFitness > c.initialBest) {
			c.initialBest, c.hasInitial = *rec.OracleFitness, true
		}
	}
	c.id = snapshot.ID
	c.createdAt = snapshot.CreatedAt
	c.rounds = append([]model.Round(nil), snapshot.Rounds...)
	c.oracleCalls = snapshot.OracleCalls
	c.logger = c.logger.With("campaign", c.id)
	c.logger.Info("campaign resumed", "rounds", len(c.rounds), "pool", c.pool.Len(), "oracle_calls", c.oracleCalls)

	if err := c.refit(ctx); err != nil {
		return c.fail(ctx, err)
	}
	return c.loop(ctx)
}

// State returns the controller's current phase.
func (c *Controller) State() State {
	return c.state
}

func (c *Controller) initialize(ctx context.Context, seeds []Seed) error {
	c.transition(StateInitializing)
	if len(seeds) == 0 {
		return config.Errorf("seeds", "at least one seed sequence is required")
	}

	var pending []string
	for i, seed := range seeds {
		numbered, err := c.cfg.Validator.Validate(seed.Sequence)
		if err != nil {
			return &config.ConfigurationError{Field: fmt.Sprintf("seeds[%d]", i), Reason: "invalid seed sequence", Err: err}
		}
		cand := model.Candidate{
			ID:         uuid.NewString(),
			Numbered:   numbered,
			Provenance: model.Provenance{Round: 0, Operation: "seed", ProposalIndex: i},
		}
		if seed.Fitness != nil {
			f := *seed.Fitness
			cand.OracleFitness = &f
			cand.EvaluatedAt = c.createdAt
		}
		if !c.pool.Add(cand) {
			c.logger.Warn("duplicate seed ignored", "index", i)
			continue
		}
		if seed.Fitness == nil {
			pending = append(pending, numbered.Sequence)
		}
	}
	if len(pending) > c.cfg.OracleBudget {
		return config.Errorf("seeds", "%d seeds need evaluation but the oracle budget is %d", len(pending), c.cfg.OracleBudget)
	}

	if len(pending) > 0 {
		results, partial, err := c.evaluate(ctx, pending)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		for _, seq := range pending {
			if f, ok := results[seq]; ok {
				if err := c.pool.SetFitness(seq, f, now); err != nil {
					return err
				}
			}
		}
		c.logger.Info("seeds evaluated", "requested", len(pending), "returned", len(results), "partial", partial)
	}

	if best, ok := c.pool.RunningBest(); ok {
		c.initialBest, c.hasInitial = best, true
		c.cfg.Metrics.Best(best)
	}
	if err := c.refit(ctx); err != nil {
		return err
	}
	c.checkpoint(ctx)
	c.logger.Info("campaign initialized", "seeds", c.pool.Len(), "evaluated", len(c.pool.Evaluated()), "oracle_calls", c.oracleCalls)
	return nil
}

func (c *Controller) loop(ctx context.Context) (Result, error) {
	for {
		if state, reason := c.terminalCheck(); state != "" {
			return c.finish(ctx, state, reason)
		}

		c.transition(StateProposing)
		if err := ctx.Err(); err != nil {
			res, _ := c.finish(context.WithoutCancel(ctx), StateCancelled, "cancelled")
			return res, err
		}

		round, err := c.runRound(ctx)
		if err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				res, _ := c.finish(context.WithoutCancel(ctx), StateCancelled, "cancelled")
				return res, err
			}
			return c.fail(ctx, err)
		}
		c.logger.Info("round complete",
			"round", round.Index,
			"proposed", round.Proposed,
			"invalid", round.Invalid,
			"duplicates", round.Duplicates,
			"encoding_failures", round.EncodingFailures,
			"evaluated", len(round.Evaluated),
			"partial", round.Partial,
			"cold_start", round.ColdStart,
			"running_best", round.RunningBest,
			"oracle_calls", c.oracleCalls,
		)
	}
}

// terminalCheck returns the terminal state the campaign has reached, if
// any, with a human-readable reason.
func (c *Controller) terminalCheck() (State, string) {
	if c.oracleCalls >= c.cfg.OracleBudget {
		return StateBudgetExhausted, fmt.Sprintf("oracle budget of %d spent", c.cfg.OracleBudget)
	}
	if c.cfg.MaxRounds > 0 && len(c.rounds) >= c.cfg.MaxRounds {
		return StateBudgetExhausted, fmt.Sprintf("round limit of %d reached", c.cfg.MaxRounds)
	}
	if streak := exhaustedStreak(c.rounds); streak > c.cfg.ExhaustionTolerance {
		return StateBudgetExhausted, fmt.Sprintf("proposer exhausted for %d consecutive rounds", streak)
	}
	if c.cfg.ConvergencePatience > 0 {
		if stale := staleStreak(c.rounds, c.initialBest, c.hasInitial, c.cfg.ConvergenceThreshold); stale >= c.cfg.ConvergencePatience {
			return StateConverged, fmt.Sprintf("running best improved by less than %g for %d rounds", c.cfg.ConvergenceThreshold, stale)
		}
	}
	return "", ""
}

func (c *Controller) runRound(ctx context.Context) (model.Round, error) {
	round := model.Round{Index: len(c.rounds) + 1, StartedAt: time.Now().UTC()}
	ctx, span := c.tracer.Start(ctx, "campaign.round", trace.WithAttributes(
		attribute.String("campaign.id", c.id),
		attribute.Int("round.index", round.Index),
	))
	defer span.End()

	slots := c.cfg.BatchSize
	if remaining := c.cfg.OracleBudget - c.oracleCalls; remaining < slots {
		slots = remaining
	}

	// Proposing
	seeds := c.pool.TopK(c.cfg.SeedCount)
	if len(seeds) == 0 {
		seeds = c.pool.All()
		if len(seeds) > c.cfg.SeedCount {
			seeds = seeds[:c.cfg.SeedCount]
		}
	}
	proposals, err := c.propose(ctx, seeds, slots*c.cfg.ProposalMultiplier)
	if err != nil {
		var exhausted *propose.ExhaustionError
		if !errors.As(err, &exhausted) {
			span.RecordError(err)
			span.SetStatus(codes.Error, "propose")
			return model.Round{}, err
		}
		c.logger.Warn("proposer exhausted", "round", round.Index, "error", err)
		round.Exhausted = true
		return c.commit(context.WithoutCancel(ctx), round, nil, nil)
	}
	round.Proposed = len(proposals)
	round.ProposedBatch = make([]string, len(proposals))
	for i, p := range proposals {
		round.ProposedBatch[i] = p.Sequence
	}
	c.cfg.Metrics.Candidates(metrics.OutcomeProposed, len(proposals))

	// Everything after proposing completes even if ctx is cancelled, so
	// that an in-flight oracle batch is never thrown away.
	work := context.WithoutCancel(ctx)

	survivors, err := c.validateProposals(work, proposals, &round)
	if err != nil {
		return model.Round{}, err
	}

	items, err := c.score(work, survivors, &round)
	if err != nil {
		return model.Round{}, err
	}

	c.transition(StateSelecting)
	var ranked []scored
	if round.ColdStart {
		ranked = rankRandom(c.rng, items)
	} else {
		ranked = rankByScore(items)
	}
	chosen := selectDiverse(ranked, slots, c.cfg.DiversityThreshold)
	selected := make([]candidateDraft, 0, len(chosen))
	batch := make([]string, 0, len(chosen))
	for _, item := range chosen {
		draft := survivors[item.slot]
		draft.vector = item.vector
		draft.prediction = item.prediction
		selected = append(selected, draft)
		batch = append(batch, draft.numbered.Sequence)
	}
	round.Selected = batch
	c.cfg.Metrics.Candidates(metrics.OutcomeSelected, len(batch))
	if len(batch) == 0 {
		c.logger.Warn("no new candidates survived the round", "round", round.Index, "proposed", round.Proposed)
		round.Exhausted = true
	}

	var results map[string]float64
	if len(batch) > 0 {
		var partial bool
		results, partial, err = c.evaluate(work, batch)
		round.Partial = partial
		if err != nil {
			// Results already returned are kept before the failure surfaces.
			if _, commitErr := c.commit(work, round, selected, results); commitErr != nil {
				return model.Round{}, errors.Join(err, commitErr)
			}
			return model.Round{}, err
		}
	}
	return c.commit(work, round, selected, results)
}

func (c *Controller) propose(ctx context.Context, seeds []model.Candidate, n int) ([]propose.Proposal, error) {
	ctx, span := c.tracer.Start(ctx, "campaign.propose", trace.WithAttributes(attribute.Int("proposals.requested", n)))
	defer span.End()
	proposals, err := c.cfg.Proposer.Propose(ctx, seeds, n)
	span.SetAttributes(attribute.Int("proposals.returned", len(proposals)))
	if err != nil {
		span.RecordError(err)
	}
	return proposals, err
}

// candidateDraft is a validated, not yet pooled proposal.
type candidateDraft struct {
	proposal   propose.Proposal
	numbered   model.NumberedSequence
	vector     []float64
	prediction *model.Prediction
}

func (c *Controller) validateProposals(ctx context.Context, proposals []propose.Proposal, round *model.Round) ([]candidateDraft, error) {
	c.transition(StateValidating)
	ctx, span := c.tracer.Start(ctx, "campaign.validate")
	defer span.End()

	raws := make([]string, len(proposals))
	for i, p := range proposals {
		raws[i] = p.Sequence
	}
	results, err := c.cfg.Validator.ValidateBatch(ctx, raws, c.cfg.Workers)
	if err != nil {
		return nil, err
	}

	survivors := make([]candidateDraft, 0, len(results))
	inRound := make(map[string]struct{}, len(results))
	for _, res := range results {
		if res.Err != nil {
			round.Invalid++
			c.logger.Debug("proposal rejected", "index", proposals[res.Index].Index, "error", res.Err)
			continue
		}
		key := res.Numbered.Sequence
		if _, dup := inRound[key]; dup || c.pool.Contains(key) {
			round.Duplicates++
			continue
		}
		inRound[key] = struct{}{}
		survivors = append(survivors, candidateDraft{proposal: proposals[res.Index], numbered: res.Numbered})
	}
	c.cfg.Metrics.Candidates(metrics.OutcomeInvalid, round.Invalid)
	c.cfg.Metrics.Candidates(metrics.OutcomeDuplicate, round.Duplicates)
	span.SetAttributes(attribute.Int("valid", len(survivors)), attribute.Int("invalid", round.Invalid), attribute.Int("duplicates", round.Duplicates))
	return survivors, nil
}

// score embeds every survivor and, outside cold start, predicts and
// applies the acquisition function. Survivors that fail to embed are
// dropped. The returned items keep proposal order.
func (c *Controller) score(ctx context.Context, survivors []candidateDraft, round *model.Round) ([]scored, error) {
	c.transition(StateScoring)
	ctx, span := c.tracer.Start(ctx, "campaign.score")
	defer span.End()

	round.ColdStart = !c.fitted || len(c.pool.Evaluated()) < c.cfg.MinEvaluated
	span.SetAttributes(attribute.Bool("cold_start", round.ColdStart))
	best, _ := c.pool.RunningBest()

	type outcome struct {
		vector []float64
		pred   model.Prediction
		err    error
	}
	outcomes := make([]outcome, len(survivors))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Workers)
	for i, s := range survivors {
		g.Go(func() error {
			vec, err := c.cfg.Embedder.Embed(gctx, s.numbered)
			if err != nil {
				if errors.Is(err, embed.ErrEncoding) {
					outcomes[i] = outcome{err: err}
					return nil
				}
				return err
			}
			outcomes[i].vector = vec
			if round.ColdStart {
				return nil
			}
			mean, variance, err := c.cfg.Surrogate.Predict(vec)
			if err != nil {
				return fmt.Errorf("predict: %w", err)
			}
			outcomes[i].pred = model.Prediction{
				Mean:        mean,
				Variance:    variance,
				Acquisition: c.cfg.Acquisition.Score(mean, variance, best),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return nil, err
	}

	items := make([]scored, 0, len(survivors))
	for i, s := range survivors {
		out := outcomes[i]
		if out.err != nil {
			round.EncodingFailures++
			c.logger.Warn("encoding failed", "index", s.proposal.Index, "error", out.err)
			continue
		}
		item := scored{slot: i, sequence: s.numbered.Sequence, vector: out.vector}
		if !round.ColdStart {
			pred := out.pred
			item.prediction = &pred
			item.score = pred.Acquisition
		}
		items = append(items, item)
	}
	round.Scored = len(items)
	c.cfg.Metrics.Candidates(metrics.OutcomeEncodingError, round.EncodingFailures)
	return items, nil
}

// evaluate submits batch in one oracle call bounded by the oracle timeout.
// A timeout yields the partial results and no error.
func (c *Controller) evaluate(ctx context.Context, batch []string) (map[string]float64, bool, error) {
	c.transition(StateEvaluating)
	ctx, span := c.tracer.Start(context.WithoutCancel(ctx), "campaign.evaluate", trace.WithAttributes(attribute.Int("batch", len(batch))))
	defer span.End()
	if c.cfg.OracleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.OracleTimeout)
		defer cancel()
	}

	start := time.Now()
	raw, err := c.callOracle(ctx, batch)
	c.oracleCalls += len(batch)
	c.cfg.Metrics.OracleCalls(len(batch))

	requested := make(map[string]struct{}, len(batch))
	for _, seq := range batch {
		requested[seq] = struct{}{}
	}
	results := make(map[string]float64, len(raw))
	for seq, f := range raw {
		if _, ok := requested[seq]; ok {
			results[seq] = f
		}
	}
	partial := len(results) < len(batch)
	span.SetAttributes(attribute.Int("returned", len(results)), attribute.Bool("partial", partial))

	if err != nil {
		if errors.Is(err, oracle.ErrTimeout) || (errors.Is(err, context.DeadlineExceeded) && ctx.Err() != nil) {
			c.logger.Warn("oracle timed out", "requested", len(batch), "returned", len(results), "elapsed", time.Since(start))
			return results, true, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "oracle")
		return results, partial, fmt.Errorf("oracle %s: %w", c.cfg.Oracle.Name(), err)
	}
	if partial {
		c.logger.Warn("oracle returned a partial batch", "requested", len(batch), "returned", len(results))
	}
	return results, partial, nil
}

// callOracle returns when the oracle does or when ctx expires, whichever
// comes first. After expiry the oracle gets oracleGrace to hand back what
// it has; an oracle still running after that is abandoned.
func (c *Controller) callOracle(ctx context.Context, batch []string) (map[string]float64, error) {
	type response struct {
		results map[string]float64
		err     error
	}
	done := make(chan response, 1)
	go func() {
		results, err := c.cfg.Oracle.Evaluate(ctx, batch)
		done <- response{results: results, err: err}
	}()

	select {
	case res := <-done:
		return res.results, res.err
	case <-ctx.Done():
	}
	grace := time.NewTimer(oracleGrace)
	defer grace.Stop()
	select {
	case res := <-done:
		return res.results, res.err
	case <-grace.C:
		c.logger.Warn("oracle ignored its deadline; abandoning the call", "oracle", c.cfg.Oracle.Name(), "batch", len(batch))
		return nil, ctx.Err()
	}
}

// commit inserts the evaluated candidates, appends the round, refits the
// surrogate and checkpoints.
func (c *Controller) commit(ctx context.Context, round model.Round, selected []candidateDraft, results map[string]float64) (model.Round, error) {
	c.transition(StateUpdating)
	ctx, span := c.tracer.Start(ctx, "campaign.update")
	defer span.End()

	now := time.Now().UTC()
	roundBest, hasRoundBest := 0.0, false
	round.Evaluated = []string{}
	for _, draft := range selected {
		f, ok := results[draft.numbered.Sequence]
		if !ok {
			continue
		}
		fitness := f
		cand := model.Candidate{
			ID:       uuid.NewString(),
			Numbered: draft.numbered,
			Provenance: model.Provenance{
				Round:          round.Index,
				ParentSequence: draft.proposal.Parent,
				Operation:      draft.proposal.Operation,
				ProposalIndex:  draft.proposal.Index,
			},
			Prediction:    draft.prediction,
			OracleFitness: &fitness,
			EvaluatedAt:   now,
		}
		if !c.pool.Add(cand) {
			continue
		}
		if draft.vector != nil {
			c.features[cand.Sequence()] = draft.vector
		}
		round.Evaluated = append(round.Evaluated, cand.Sequence())
		if !hasRoundBest || f > roundBest {
			roundBest, hasRoundBest = f, true
		}
	}
	if round.Selected == nil {
		round.Selected = []string{}
	}
	round.BestFitness = roundBest
	if best, ok := c.pool.RunningBest(); ok {
		round.RunningBest = best
		c.cfg.Metrics.Best(best)
	}
	round.FinishedAt = time.Now().UTC()
	c.rounds = append(c.rounds, round)
	c.cfg.Metrics.Candidates(metrics.OutcomeEvaluated, len(round.Evaluated))
	c.cfg.Metrics.Round(round.ColdStart, round.Partial, round.FinishedAt.Sub(round.StartedAt))

	if len(round.Evaluated) > 0 {
		if err := c.refit(ctx); err != nil {
			return round, err
		}
	}
	c.checkpoint(ctx)
	return round, nil
}

// refit retrains the surrogate on oracle-evaluated candidates. Candidates
// that cannot be embedded are left out of training.
func (c *Controller) refit(ctx context.Context) error {
	evaluated := c.pool.Evaluated()
	if len(evaluated) == 0 {
		return nil
	}
	ctx, span := c.tracer.Start(ctx, "campaign.refit")
	defer span.End()

	points := make([]surrogate.Observation, 0, len(evaluated))
	for _, cand := range evaluated {
		vec, ok := c.features[cand.Sequence()]
		if !ok {
			var err error
			vec, err = c.cfg.Embedder.Embed(ctx, cand.Numbered)
			if err != nil {
				if errors.Is(err, embed.ErrEncoding) {
					c.logger.Warn("evaluated candidate cannot be encoded; excluded from training", "sequence", cand.Sequence(), "error", err)
					continue
				}
				return err
			}
			c.features[cand.Sequence()] = vec
		}
		fitness, _ := cand.Fitness()
		points = append(points, surrogate.Observation{X: vec, Y: fitness})
	}
	if c.cfg.RefitPolicy == RefitWindow {
		points = surrogate.Window(points, c.cfg.RefitWindow)
	}
	if len(points) == 0 {
		return nil
	}
	if err := c.cfg.Surrogate.Fit(points); err != nil {
		if errors.Is(err, surrogate.ErrIllConditioned) {
			c.logger.Warn("surrogate refit failed; falling back to cold start", "error", err)
			c.fitted = false
			return nil
		}
		return fmt.Errorf("refit surrogate: %w", err)
	}
	c.fitted = true
	span.SetAttributes(attribute.Int("training_points", len(points)))
	c.logger.Debug("surrogate refit", "model", c.cfg.Surrogate.Name(), "points", len(points))
	return nil
}

func (c *Controller) transition(next State) {
	if c.state == next {
		return
	}
	c.logger.Debug("state transition", "from", c.state, "to", next)
	c.state = next
}

func (c *Controller) finish(ctx context.Context, state State, reason string) (Result, error) {
	c.transition(state)
	c.reason = reason
	c.logger.Info("campaign finished", "state", state, "reason", reason, "rounds", len(c.rounds), "oracle_calls", c.oracleCalls)
	snapshot := c.checkpoint(ctx)
	return c.result(snapshot), nil
}

// fail checkpoints the last committed pool and rounds before surfacing err.
func (c *Controller) fail(ctx context.Context, err error) (Result, error) {
	c.transition(StateFailed)
	c.reason = err.Error()
	c.logger.Error("campaign failed", "error", err, "rounds", len(c.rounds))
	snapshot := c.checkpoint(context.WithoutCancel(ctx))
	return c.result(snapshot), err
}

func (c *Controller) checkpoint(ctx context.Context) model.CampaignSnapshot {
	snapshot := c.Snapshot()
	if c.cfg.Checkpointer == nil {
		return snapshot
	}
	if err := c.cfg.Checkpointer.Checkpoint(ctx, snapshot); err != nil {
		c.logger.Error("checkpoint failed", "error", err)
	}
	return snapshot
}

// Snapshot captures the pool and round history.
func (c *Controller) Snapshot() model.CampaignSnapshot {
	all := c.pool.All()
	records := make([]model.CandidateRecord, 0, len(all))
	for _, cand := range all {
		records = append(records, cand.ToRecord())
	}
	reason := ""
	if c.state.Terminal() {
		reason = c.reason
	}
	return model.CampaignSnapshot{
		ID:             c.id,
		CreatedAt:      c.createdAt,
		UpdatedAt:      time.Now().UTC(),
		Status:         c.state.Status(),
		TerminalReason: reason,
		OracleCalls:    c.oracleCalls,
		Config:         c.cfg.Settings,
		Candidates:     records,
		Rounds:         append([]model.Round(nil), c.rounds...),
	}
}

func (c *Controller) result(snapshot model.CampaignSnapshot) Result {
	res := Result{
		ID:             c.id,
		State:          c.state,
		TerminalReason: c.reason,
		Rounds:         append([]model.Round(nil), c.rounds...),
		OracleCalls:    c.oracleCalls,
		Snapshot:       snapshot,
	}
	if top := c.pool.TopK(1); len(top) == 1 {
		best := top[0]
		res.Best = &best
	}
	return res
}

func exhaustedStreak(rounds []model.Round) int {
	streak := 0
	for i := len(rounds) - 1; i >= 0 && rounds[i].Exhausted; i-- {
		streak++
	}
	return streak
}

// staleStreak counts the trailing rounds whose running best improved on
// the previous one by less than threshold.
func staleStreak(rounds []model.Round, initialBest float64, hasInitial bool, threshold float64) int {
	streak := 0
	prev, hasPrev := initialBest, hasInitial
	for _, r := range rounds {
		hasCurrent := hasPrev || len(r.Evaluated) > 0
		switch {
		case !hasPrev && hasCurrent:
			streak = 0
		case hasPrev && r.RunningBest > prev && r.RunningBest-prev >= threshold:
			streak = 0
		default:
			streak++
		}
		prev, hasPrev = r.RunningBest, hasCurrent
	}
	return streak
}
