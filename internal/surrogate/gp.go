package surrogate

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	minVariance    = 1e-12
	maxJitterTries = 6
)

// GaussianProcess is exact GP regression with a squared-exponential kernel.
// Targets are standardized before fitting. A LengthScale <= 0 selects the
// median pairwise distance of the training inputs at each fit.
type GaussianProcess struct {
	LengthScale    float64
	SignalVariance float64
	NoiseVariance  float64

	x           [][]float64
	chol        mat.Cholesky
	alpha       *mat.VecDense
	yMean       float64
	yScale      float64
	lengthScale float64
	fitted      bool
}

func NewGaussianProcess(lengthScale, signalVariance, noiseVariance float64) (*GaussianProcess, error) {
	if signalVariance <= 0 {
		return nil, fmt.Errorf("signal variance must be > 0")
	}
	if noiseVariance <= 0 {
		return nil, fmt.Errorf("noise variance must be > 0")
	}
	return &GaussianProcess{
		LengthScale:    lengthScale,
		SignalVariance: signalVariance,
		NoiseVariance:  noiseVariance,
	}, nil
}

func (gp *GaussianProcess) Name() string {
	return "gaussian_process"
}

func (gp *GaussianProcess) Trained() int {
	if !gp.fitted {
		return 0
	}
	return len(gp.x)
}

// Fit retrains the model from scratch on points.
func (gp *GaussianProcess) Fit(points []Observation) error {
	if len(points) == 0 {
		return ErrNoData
	}
	dim := len(points[0].X)
	x := make([][]float64, len(points))
	y := make([]float64, len(points))
	for i, p := range points {
		if len(p.X) != dim {
			return fmt.Errorf("%w: point %d has %d features, want %d", ErrDimension, i, len(p.X), dim)
		}
		x[i] = append([]float64(nil), p.X...)
		y[i] = p.Y
	}

	yMean := floats.Sum(y) / float64(len(y))
	yScale := 0.0
	for _, v := range y {
		yScale += (v - yMean) * (v - yMean)
	}
	yScale = math.Sqrt(yScale / float64(len(y)))
	if yScale < 1e-12 {
		yScale = 1
	}
	standardized := make([]float64, len(y))
	for i, v := range y {
		standardized[i] = (v - yMean) / yScale
	}

	lengthScale := gp.LengthScale
	if lengthScale <= 0 {
		lengthScale = medianDistance(x)
	}

	n := len(x)
	var chol mat.Cholesky
	jitter := 0.0
	factorized := false
	for try := 0; try < maxJitterTries; try++ {
		k := mat.NewSymDense(n, nil)
		for i := 0; i < n; i++ {
			for j := i; j < n; j++ {
				v := gp.kernel(x[i], x[j], lengthScale)
				if i == j {
					v += gp.NoiseVariance + jitter
				}
				k.SetSym(i, j, v)
			}
		}
		if chol.Factorize(k) {
			factorized = true
			break
		}
		if jitter == 0 {
			jitter = 1e-8
		} else {
			jitter *= 10
		}
	}
	if !factorized {
		return ErrIllConditioned
	}

	alpha := mat.NewVecDense(n, nil)
	if err := chol.SolveVecTo(alpha, mat.NewVecDense(n, standardized)); err != nil {
		return fmt.Errorf("solve kernel system: %w", err)
	}

	gp.x = x
	gp.chol = chol
	gp.alpha = alpha
	gp.yMean = yMean
	gp.yScale = yScale
	gp.lengthScale = lengthScale
	gp.fitted = true
	return nil
}

// Predict returns the posterior mean and latent variance at x in the
// original fitness units.
func (gp *GaussianProcess) Predict(x []float64) (float64, float64, error) {
	if !gp.fitted {
		return 0, 0, ErrNotFitted
	}
	if len(x) != len(gp.x[0]) {
		return 0, 0, fmt.Errorf("%w: got %d features, want %d", ErrDimension, len(x), len(gp.x[0]))
	}

	n := len(gp.x)
	kStar := mat.NewVecDense(n, nil)
	exact := false
	for i, xi := range gp.x {
		kStar.SetVec(i, gp.kernel(x, xi, gp.lengthScale))
		if !exact && floats.Equal(x, xi) {
			exact = true
		}
	}

	mean := mat.Dot(kStar, gp.alpha)*gp.yScale + gp.yMean

	solved := mat.NewVecDense(n, nil)
	if err := gp.chol.SolveVecTo(solved, kStar); err != nil {
		return 0, 0, fmt.Errorf("solve kernel system: %w", err)
	}
	variance := (gp.SignalVariance - mat.Dot(kStar, solved)) * gp.yScale * gp.yScale
	if variance < minVariance {
		if exact {
			variance = math.Max(variance, 0)
		} else {
			variance = minVariance
		}
	}
	return mean, variance, nil
}

func (gp *GaussianProcess) kernel(a, b []float64, lengthScale float64) float64 {
	d := floats.Distance(a, b, 2)
	return gp.SignalVariance * math.Exp(-(d*d)/(2*lengthScale*lengthScale))
}

func medianDistance(x [][]float64) float64 {
	if len(x) < 2 {
		return 1
	}
	distances := make([]float64, 0, len(x)*(len(x)-1)/2)
	for i := range x {
		for j := i + 1; j < len(x); j++ {
			if d := floats.Distance(x[i], x[j], 2); d > 0 {
				distances = append(distances, d)
			}
		}
	}
	if len(distances) == 0 {
		return 1
	}
	sort.Float64s(distances)
	return distances[len(distances)/2]
}
