// Package acquisition ranks candidates from surrogate predictions, trading
// predicted fitness against predictive uncertainty.
package acquisition

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat/distuv"
)

const (
	KindUCB    = "ucb"
	KindEI     = "ei"
	KindGreedy = "greedy"
)

var ErrUnknownKind = errors.New("unknown acquisition kind")

// Function scores a prediction. Every implementation is non-decreasing in
// mean at fixed variance and non-decreasing in variance at fixed mean.
type Function interface {
	Name() string
	Score(mean, variance, best float64) float64
}

// UCB is the upper confidence bound mean + Beta*stddev.
type UCB struct {
	Beta float64
}

func (UCB) Name() string {
	return KindUCB
}

func (u UCB) Score(mean, variance, _ float64) float64 {
	return mean + u.Beta*math.Sqrt(math.Max(variance, 0))
}

// ExpectedImprovement is the closed-form expected improvement over
// best+Xi under a Gaussian predictive distribution.
type ExpectedImprovement struct {
	Xi float64
}

func (ExpectedImprovement) Name() string {
	return KindEI
}

func (e ExpectedImprovement) Score(mean, variance, best float64) float64 {
	improvement := mean - best - e.Xi
	sigma := math.Sqrt(math.Max(variance, 0))
	if sigma == 0 {
		return math.Max(improvement, 0)
	}
	z := improvement / sigma
	return improvement*distuv.UnitNormal.CDF(z) + sigma*distuv.UnitNormal.Prob(z)
}

// Greedy ranks by predicted mean only.
type Greedy struct{}

func (Greedy) Name() string {
	return KindGreedy
}

func (Greedy) Score(mean, _, _ float64) float64 {
	return mean
}

// Resolve builds the acquisition function for kind. The coefficient is the
// UCB beta or the EI xi; it is ignored for greedy.
func Resolve(kind string, coefficient float64) (Function, error) {
	if coefficient < 0 {
		return nil, fmt.Errorf("acquisition coefficient must be >= 0, got %v", coefficient)
	}
	switch kind {
	case KindUCB:
		return UCB{Beta: coefficient}, nil
	case KindEI:
		return ExpectedImprovement{Xi: coefficient}, nil
	case KindGreedy:
		return Greedy{}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
}

// Kinds lists the supported acquisition kinds.
func Kinds() []string {
	out := []string{KindUCB, KindEI, KindGreedy}
	sort.Strings(out)
	return out
}
