// Package pool holds every candidate a campaign has accepted, keyed by
// canonical sequence.
package pool

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"clonebo/internal/model"
)

var ErrUnknownCandidate = errors.New("candidate not in pool")

// Pool is owned by a single campaign controller and is not safe for
// concurrent mutation.
type Pool struct {
	order       []string
	bySequence  map[string]*model.Candidate
	best        float64
	hasBest     bool
	evaluations int
}

func New() *Pool {
	return &Pool{bySequence: make(map[string]*model.Candidate)}
}

// Add inserts c unless a candidate with the same sequence is present. It
// reports whether c was inserted.
func (p *Pool) Add(c model.Candidate) bool {
	key := c.Sequence()
	if _, ok := p.bySequence[key]; ok {
		return false
	}
	stored := c
	p.bySequence[key] = &stored
	p.order = append(p.order, key)
	if fitness, ok := c.Fitness(); ok {
		p.observe(fitness)
	}
	return true
}

func (p *Pool) Contains(seq string) bool {
	_, ok := p.bySequence[seq]
	return ok
}

func (p *Pool) Get(seq string) (model.Candidate, bool) {
	c, ok := p.bySequence[seq]
	if !ok {
		return model.Candidate{}, false
	}
	return *c, true
}

func (p *Pool) Len() int {
	return len(p.order)
}

// All returns the candidates in insertion order.
func (p *Pool) All() []model.Candidate {
	out := make([]model.Candidate, 0, len(p.order))
	for _, key := range p.order {
		out = append(out, *p.bySequence[key])
	}
	return out
}

// Evaluated returns the candidates with oracle fitness in insertion order.
func (p *Pool) Evaluated() []model.Candidate {
	out := make([]model.Candidate, 0, p.evaluations)
	for _, key := range p.order {
		if c := p.bySequence[key]; c.Evaluated() {
			out = append(out, *c)
		}
	}
	return out
}

// TopK returns up to k evaluated candidates by descending oracle fitness.
// Ties keep insertion order.
func (p *Pool) TopK(k int) []model.Candidate {
	evaluated := p.Evaluated()
	sort.SliceStable(evaluated, func(i, j int) bool {
		return *evaluated[i].OracleFitness > *evaluated[j].OracleFitness
	})
	if k < len(evaluated) {
		evaluated = evaluated[:k]
	}
	return evaluated
}

// SetFitness records an oracle measurement for a pooled candidate.
func (p *Pool) SetFitness(seq string, fitness float64, at time.Time) error {
	c, ok := p.bySequence[seq]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCandidate, seq)
	}
	f := fitness
	c.OracleFitness = &f
	c.EvaluatedAt = at
	p.observe(fitness)
	return nil
}

// RunningBest is the highest oracle fitness ever observed. It never
// decreases.
func (p *Pool) RunningBest() (float64, bool) {
	return p.best, p.hasBest
}

func (p *Pool) observe(fitness float64) {
	p.evaluations++
	if !p.hasBest || fitness > p.best {
		p.best = fitness
		p.hasBest = true
	}
}
