package training

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"

	"github.com/mimir-aip/iris-mlops/pkg/models"
)

const logisticMaxIterations = 1000

// LogisticRegression is a multinomial softmax classifier with an L2 penalty.
// The objective is 0.5*||W||^2 + C * sum of cross-entropy; intercepts are not penalised.
type LogisticRegression struct {
	C          float64
	Weights    [][]float64 // classes x features
	Intercepts []float64
}

// NewLogisticRegression creates an unfitted estimator
func NewLogisticRegression(c float64) *LogisticRegression {
	return &LogisticRegression{C: c}
}

// Kind returns the model kind
func (m *LogisticRegression) Kind() models.ModelKind {
	return models.ModelKindLogReg
}

// Fit minimises the penalised negative log-likelihood with L-BFGS
func (m *LogisticRegression) Fit(X [][]float64, y []int, numClasses int) error {
	if len(X) == 0 || len(X) != len(y) {
		return fmt.Errorf("invalid training data: %d rows, %d labels", len(X), len(y))
	}

	d := len(X[0])
	width := d + 1

	// Parameter layout: class k occupies [k*width, (k+1)*width), intercept last
	objective := func(theta []float64) float64 {
		loss := 0.0
		for k := 0; k < numClasses; k++ {
			w := theta[k*width : k*width+d]
			loss += 0.5 * floats.Dot(w, w)
		}
		z := make([]float64, numClasses)
		for i, x := range X {
			scores(theta, x, d, z)
			loss += m.C * (logSumExp(z) - z[y[i]])
		}
		return loss
	}

	gradient := func(grad, theta []float64) {
		for i := range grad {
			grad[i] = 0
		}
		for k := 0; k < numClasses; k++ {
			copy(grad[k*width:k*width+d], theta[k*width:k*width+d])
		}
		z := make([]float64, numClasses)
		for i, x := range X {
			scores(theta, x, d, z)
			softmax(z)
			for k := 0; k < numClasses; k++ {
				r := z[k]
				if y[i] == k {
					r -= 1
				}
				r *= m.C
				g := grad[k*width : (k+1)*width]
				floats.AddScaled(g[:d], r, x)
				g[d] += r
			}
		}
	}

	problem := optimize.Problem{Func: objective, Grad: gradient}
	settings := &optimize.Settings{MajorIterations: logisticMaxIterations}
	initial := make([]float64, numClasses*width)

	result, err := optimize.Minimize(problem, initial, settings, &optimize.LBFGS{})
	if result == nil {
		return fmt.Errorf("failed to fit logistic regression: %w", err)
	}
	// A line search stall near the optimum still leaves a usable location
	if err != nil && !allFinite(result.X) {
		return fmt.Errorf("failed to fit logistic regression: %w", err)
	}

	m.Weights = make([][]float64, numClasses)
	m.Intercepts = make([]float64, numClasses)
	for k := 0; k < numClasses; k++ {
		m.Weights[k] = append([]float64{}, result.X[k*width:k*width+d]...)
		m.Intercepts[k] = result.X[k*width+d]
	}
	return nil
}

// Predict returns the class with the highest score
func (m *LogisticRegression) Predict(x []float64) (int, error) {
	if len(m.Weights) == 0 {
		return 0, fmt.Errorf("logistic regression is not fitted")
	}
	if len(x) != len(m.Weights[0]) {
		return 0, fmt.Errorf("expected %d features, got %d", len(m.Weights[0]), len(x))
	}
	best, bestScore := 0, math.Inf(-1)
	for k, w := range m.Weights {
		s := floats.Dot(w, x) + m.Intercepts[k]
		if s > bestScore {
			best, bestScore = k, s
		}
	}
	return best, nil
}

func scores(theta, x []float64, d int, z []float64) {
	width := d + 1
	for k := range z {
		z[k] = floats.Dot(theta[k*width:k*width+d], x) + theta[k*width+d]
	}
}

func logSumExp(z []float64) float64 {
	hi := floats.Max(z)
	sum := 0.0
	for _, v := range z {
		sum += math.Exp(v - hi)
	}
	return hi + math.Log(sum)
}

// softmax replaces z with its probabilities in place
func softmax(z []float64) {
	lse := logSumExp(z)
	for k := range z {
		z[k] = math.Exp(z[k] - lse)
	}
}

func allFinite(x []float64) bool {
	for _, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
