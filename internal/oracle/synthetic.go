package oracle

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"clonebo/internal/model"
)

// SyntheticOracle scores sequences by weighted positional identity to a
// target, with CDR positions weighted by CDRWeight and framework positions
// by 1, plus seeded Gaussian noise. Fitness lies in [0, 1] before noise.
type SyntheticOracle struct {
	target    model.NumberedSequence
	cdrWeight float64
	noise     float64
	latency   time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

type SyntheticConfig struct {
	Target      model.NumberedSequence
	CDRWeight   float64
	NoiseStdDev float64
	// Latency is spent per sequence and counts against the deadline.
	Latency time.Duration
	Seed    int64
}

func NewSyntheticOracle(cfg SyntheticConfig) (*SyntheticOracle, error) {
	if cfg.Target.Sequence == "" {
		return nil, errors.New("target sequence is required")
	}
	if len(cfg.Target.Positions) != len(cfg.Target.Sequence) {
		return nil, errors.New("target sequence must be numbered")
	}
	if cfg.CDRWeight <= 0 {
		cfg.CDRWeight = 1
	}
	if cfg.NoiseStdDev < 0 {
		return nil, fmt.Errorf("noise stddev must be >= 0")
	}
	return &SyntheticOracle{
		target:    cfg.Target,
		cdrWeight: cfg.CDRWeight,
		noise:     cfg.NoiseStdDev,
		latency:   cfg.Latency,
		rng:       rand.New(rand.NewSource(cfg.Seed)),
	}, nil
}

func (o *SyntheticOracle) Name() string {
	return KindSynthetic
}

func (o *SyntheticOracle) Evaluate(ctx context.Context, batch []string) (map[string]float64, error) {
	out := make(map[string]float64, len(batch))
	for _, seq := range batch {
		if o.latency > 0 {
			timer := time.NewTimer(o.latency)
			select {
			case <-ctx.Done():
				timer.Stop()
				return out, o.interrupted(ctx, len(batch), len(out))
			case <-timer.C:
			}
		} else if ctx.Err() != nil {
			return out, o.interrupted(ctx, len(batch), len(out))
		}
		out[seq] = o.Landscape(seq) + o.sampleNoise()
	}
	return out, nil
}

// Landscape is the noise-free fitness of seq.
func (o *SyntheticOracle) Landscape(seq string) float64 {
	total, matched := 0.0, 0.0
	for i, pos := range o.target.Positions {
		w := 1.0
		if pos.Region.IsCDR() {
			w = o.cdrWeight
		}
		total += w
		if i < len(seq) && seq[i] == pos.Residue {
			matched += w
		}
	}
	if total == 0 {
		return 0
	}
	return matched / total
}

func (o *SyntheticOracle) sampleNoise() float64 {
	if o.noise == 0 {
		return 0
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.rng.NormFloat64() * o.noise
}

func (o *SyntheticOracle) interrupted(ctx context.Context, requested, returned int) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &TimeoutError{Requested: requested, Returned: returned}
	}
	return ctx.Err()
}
