// Package surrogate predicts oracle fitness with calibrated uncertainty.
package surrogate

import "errors"

var (
	ErrNotFitted      = errors.New("surrogate model is not fitted")
	ErrNoData         = errors.New("surrogate requires at least one observation")
	ErrDimension      = errors.New("feature dimension mismatch")
	ErrIllConditioned = errors.New("kernel matrix is not positive definite")
)

// Observation is one oracle-evaluated training point.
type Observation struct {
	X []float64
	Y float64
}

// Model regresses fitness from features. Predict must return a variance
// >= 0, and exactly 0 only for an input identical to a training point.
type Model interface {
	Name() string
	Fit(points []Observation) error
	Predict(x []float64) (mean, variance float64, err error)
	Trained() int
}

// Window returns the most recent n observations, or all when n <= 0.
func Window(points []Observation, n int) []Observation {
	if n <= 0 || n >= len(points) {
		return points
	}
	return points[len(points)-n:]
}
