// Package propose turns seed candidates into new sequence proposals by
// masked infill with a generative model.
package propose

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"sort"

	"clonebo/internal/generative"
	"clonebo/internal/model"
)

const (
	OperationInfill = "infill"
	OperationSample = "sample"
)

var ErrExhausted = errors.New("proposer exhausted")

// ExhaustionError reports that no proposal could be produced within the
// retry budget.
type ExhaustionError struct {
	Requested int
	Attempts  int
	Err       error
}

func (e *ExhaustionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("no proposals after %d attempts (requested %d): %v", e.Attempts, e.Requested, e.Err)
	}
	return fmt.Sprintf("no proposals after %d attempts (requested %d)", e.Attempts, e.Requested)
}

func (e *ExhaustionError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrExhausted, e.Err}
	}
	return []error{ErrExhausted}
}

// Proposal is one raw sequence produced from Parent, or from nothing when
// Parent is empty. Index is the order of production within the call.
type Proposal struct {
	Sequence  string
	Parent    string
	Operation string
	Index     int
}

type Config struct {
	Model       generative.Model
	Temperature float64
	// MutationRate is the fraction of residues masked per sample.
	MutationRate float64
	MaxMutations int
	// CDRWeight is the relative chance of masking a CDR residue over a
	// framework residue.
	CDRWeight float64
	// RetryBudget is the number of consecutive attempts without a new
	// distinct proposal before giving up.
	RetryBudget int
	// MinLogLikelihood drops samples scored below it when non-nil.
	MinLogLikelihood *float64
	// UnconditionalLength is the sample length used when there are no seeds.
	UnconditionalLength int
	Seed                int64
	Logger              *slog.Logger
}

// Proposer is not safe for concurrent use.
type Proposer struct {
	cfg    Config
	rng    *rand.Rand
	logger *slog.Logger
}

func New(cfg Config) (*Proposer, error) {
	if cfg.Model == nil {
		return nil, fmt.Errorf("generative model is required")
	}
	if cfg.Temperature <= 0 {
		return nil, fmt.Errorf("temperature must be > 0")
	}
	if cfg.MutationRate <= 0 || cfg.MutationRate > 1 {
		return nil, fmt.Errorf("mutation rate must be in (0, 1]")
	}
	if cfg.MaxMutations <= 0 {
		cfg.MaxMutations = 3
	}
	if cfg.CDRWeight <= 0 {
		cfg.CDRWeight = 1
	}
	if cfg.RetryBudget <= 0 {
		return nil, fmt.Errorf("retry budget must be > 0")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Proposer{
		cfg:    cfg,
		rng:    rand.New(rand.NewSource(cfg.Seed)),
		logger: logger,
	}, nil
}

// Propose returns up to n distinct proposals, none equal to a seed. Seeds
// are used round-robin in the given order. Fewer than n proposals is not an
// error; zero proposals is an *ExhaustionError.
func (p *Proposer) Propose(ctx context.Context, seeds []model.Candidate, n int) ([]Proposal, error) {
	if n <= 0 {
		return nil, nil
	}
	if len(seeds) == 0 && p.cfg.UnconditionalLength <= 0 {
		return nil, fmt.Errorf("%w: no seeds and no unconditional length", generative.ErrNoContext)
	}

	seen := make(map[string]struct{}, n+len(seeds))
	for _, seed := range seeds {
		seen[seed.Sequence()] = struct{}{}
	}

	out := make([]Proposal, 0, n)
	attempts := 0
	stale := 0
	next := 0
	var lastErr error
	for len(out) < n && stale < p.cfg.RetryBudget {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		attempts++

		req := generative.SampleRequest{N: n - len(out), Temperature: p.cfg.Temperature}
		parent := ""
		operation := OperationSample
		if len(seeds) > 0 {
			seed := seeds[next%len(seeds)]
			next++
			parent = seed.Sequence()
			operation = OperationInfill
			req.Context = parent
			req.Mask = p.mask(seed.Numbered)
		} else {
			req.Length = p.cfg.UnconditionalLength
		}

		samples, err := p.cfg.Model.Sample(ctx, req)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			p.logger.Warn("generative model sample failed", "model", p.cfg.Model.Name(), "attempt", attempts, "error", err)
			lastErr = err
			stale++
			continue
		}

		added := 0
		for _, raw := range samples {
			if len(out) >= n {
				break
			}
			if _, dup := seen[raw]; dup {
				continue
			}
			seen[raw] = struct{}{}
			if p.cfg.MinLogLikelihood != nil {
				score, err := p.cfg.Model.ScoreLikelihood(ctx, raw)
				if err != nil {
					if ctxErr := ctx.Err(); ctxErr != nil {
						return nil, ctxErr
					}
					lastErr = err
					continue
				}
				if score < *p.cfg.MinLogLikelihood {
					continue
				}
			}
			out = append(out, Proposal{Sequence: raw, Parent: parent, Operation: operation, Index: len(out)})
			added++
		}
		if added == 0 {
			stale++
		} else {
			stale = 0
		}
	}

	if len(out) == 0 {
		return nil, &ExhaustionError{Requested: n, Attempts: attempts, Err: lastErr}
	}
	if len(out) < n {
		p.logger.Debug("proposer returned fewer than requested", "requested", n, "returned", len(out), "attempts", attempts)
	}
	return out, nil
}

// mask picks residue indices to infill, weighted toward CDR positions and
// drawn without replacement.
func (p *Proposer) mask(seq model.NumberedSequence) []int {
	length := len(seq.Sequence)
	if length == 0 {
		return nil
	}
	count := int(math.Round(p.cfg.MutationRate * float64(length)))
	if count < 1 {
		count = 1
	}
	if count > p.cfg.MaxMutations {
		count = p.cfg.MaxMutations
	}
	if count > length {
		count = length
	}

	weights := make([]float64, length)
	for i := range weights {
		weights[i] = 1
	}
	for _, span := range seq.Regions {
		if !span.Region.IsCDR() {
			continue
		}
		for i := span.Start; i < span.End && i < length; i++ {
			weights[i] = p.cfg.CDRWeight
		}
	}

	picked := make([]int, 0, count)
	for len(picked) < count {
		total := 0.0
		for _, w := range weights {
			total += w
		}
		if total <= 0 {
			break
		}
		target := p.rng.Float64() * total
		acc := 0.0
		chosen := -1
		for i, w := range weights {
			if w <= 0 {
				continue
			}
			acc += w
			chosen = i
			if target < acc {
				break
			}
		}
		if chosen < 0 {
			break
		}
		picked = append(picked, chosen)
		weights[chosen] = 0
	}
	sort.Ints(picked)
	return picked
}
