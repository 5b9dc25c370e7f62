package calibrator

import (
	"context"
	"errors"
	"math"

	"gonum.org/v1/gonum/optimize"
)

// Solver fits the Platt parameters (A, B) to (confidence, outcome) pairs
// by minimizing logistic log-loss. Implementations honor context
// cancellation so a fit never outlives its wall-clock budget.
type Solver interface {
	Fit(ctx context.Context, xs, ys []float64) (a, b float64, err error)
}

// sigmoid applies the clamped logistic function.
func sigmoid(z float64) float64 {
	if z > 20 {
		z = 20
	} else if z < -20 {
		z = -20
	}
	return 1.0 / (1.0 + math.Exp(-z))
}

// logLoss is the mean cross-entropy of the fit.
func logLoss(xs, ys []float64, a, b float64) float64 {
	loss := 0.0
	for i := range xs {
		p := sigmoid(a*xs[i] + b)
		p = math.Max(1e-7, math.Min(1-1e-7, p))
		loss -= ys[i]*math.Log(p) + (1-ys[i])*math.Log(1-p)
	}
	return loss / float64(len(xs))
}

// LBFGSSolver minimizes log-loss with gonum's L-BFGS. Parameters are
// clamped to [-20, 20] after the fit.
type LBFGSSolver struct{}

func (LBFGSSolver) Fit(ctx context.Context, xs, ys []float64) (float64, float64, error) {
	if len(xs) == 0 || len(xs) != len(ys) {
		return 0, 0, errors.New("calibrator: empty or mismatched training data")
	}
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}

	cancelled := false
	problem := optimize.Problem{
		Func: func(params []float64) float64 {
			if ctx.Err() != nil {
				cancelled = true
			}
			return logLoss(xs, ys, params[0], params[1])
		},
		Grad: func(grad, params []float64) {
			a, b := params[0], params[1]
			var gradA, gradB float64
			for i := range xs {
				err := sigmoid(a*xs[i]+b) - ys[i]
				gradA += err * xs[i]
				gradB += err
			}
			n := float64(len(xs))
			grad[0] = gradA / n
			grad[1] = gradB / n
		},
	}

	result, err := optimize.Minimize(problem, []float64{0, 0}, nil, &optimize.LBFGS{})
	if cancelled || ctx.Err() != nil {
		return 0, 0, ctx.Err()
	}
	if err != nil {
		return 0, 0, err
	}

	return clampParam(result.X[0]), clampParam(result.X[1]), nil
}

// GradientDescentSolver is the dependency-free fallback: fixed-rate batch
// gradient descent on the same loss.
type GradientDescentSolver struct {
	LearningRate float64
	Epochs       int
}

func (g GradientDescentSolver) Fit(ctx context.Context, xs, ys []float64) (float64, float64, error) {
	if len(xs) == 0 || len(xs) != len(ys) {
		return 0, 0, errors.New("calibrator: empty or mismatched training data")
	}

	lr := g.LearningRate
	if lr <= 0 {
		lr = 0.1
	}
	epochs := g.Epochs
	if epochs <= 0 {
		epochs = 1000
	}

	a, b := 0.0, 0.0
	n := float64(len(xs))

	for epoch := 0; epoch < epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return 0, 0, err
		}
		var gradA, gradB float64
		for i := range xs {
			err := sigmoid(a*xs[i]+b) - ys[i]
			gradA += err * xs[i]
			gradB += err
		}
		a -= lr * gradA / n
		b -= lr * gradB / n
	}

	return a, b, nil
}

func clampParam(v float64) float64 {
	if v > 20 {
		return 20
	}
	if v < -20 {
		return -20
	}
	return v
}
