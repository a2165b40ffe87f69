package training

import (
	"fmt"
	"math"

	"github.com/mimir-aip/iris-mlops/pkg/models"
)

// Solver settings, as in libsvm
const (
	smoTolerance     = 1e-3
	smoMaxIterations = 100000
	smoMinCurvature  = 1e-12
)

// SVC is a kernel support vector classifier trained one-vs-one. Each pair of
// classes gets a binary machine and prediction is by majority vote, ties going to
// the lowest class index.
type SVC struct {
	C        float64
	Kernel   KernelSpec
	Classes  int
	Machines []BinaryMachine
}

// BinaryMachine separates class Positive (+1) from class Negative (-1)
type BinaryMachine struct {
	Positive       int
	Negative       int
	SupportVectors [][]float64
	DualCoef       []float64 // alpha_i * y_i
	Bias           float64
}

// NewSVC creates an unfitted estimator
func NewSVC(c float64, kernel models.Kernel) *SVC {
	return &SVC{C: c, Kernel: KernelSpec{Type: kernel}}
}

// Kind returns the model kind
func (m *SVC) Kind() models.ModelKind {
	return models.ModelKindSVM
}

// Fit trains one binary machine per class pair
func (m *SVC) Fit(X [][]float64, y []int, numClasses int) error {
	if len(X) == 0 || len(X) != len(y) {
		return fmt.Errorf("invalid training data: %d rows, %d labels", len(X), len(y))
	}

	kernel, err := newKernelSpec(m.Kernel.Type, X)
	if err != nil {
		return err
	}
	m.Kernel = kernel
	m.Classes = numClasses
	m.Machines = nil

	for a := 0; a < numClasses; a++ {
		for b := a + 1; b < numClasses; b++ {
			var pairX [][]float64
			var pairY []float64
			for i, label := range y {
				switch label {
				case a:
					pairX = append(pairX, X[i])
					pairY = append(pairY, 1)
				case b:
					pairX = append(pairX, X[i])
					pairY = append(pairY, -1)
				}
			}
			if len(pairX) == 0 {
				continue
			}
			machine := m.smo(pairX, pairY)
			machine.Positive, machine.Negative = a, b
			m.Machines = append(m.Machines, machine)
		}
	}

	if len(m.Machines) == 0 {
		return fmt.Errorf("training data must contain at least two classes")
	}
	return nil
}

// smo solves the binary dual problem by sequential minimal optimisation. Each step
// updates the maximal violating pair (second order selection) until the KKT gap is
// below smoTolerance.
func (m *SVC) smo(X [][]float64, y []float64) BinaryMachine {
	n := len(X)
	gram := make([][]float64, n)
	for i := range gram {
		gram[i] = make([]float64, n)
		for j := 0; j <= i; j++ {
			v := m.Kernel.Eval(X[i], X[j])
			gram[i][j] = v
			gram[j][i] = v
		}
	}

	alpha := make([]float64, n)
	// grad[i] is the gradient of the dual objective: y_i * sum_j alpha_j y_j K_ij - 1
	grad := make([]float64, n)
	for i := range grad {
		grad[i] = -1
	}

	for iter := 0; iter < smoMaxIterations; iter++ {
		i, j, ok := m.selectPair(alpha, y, grad, gram)
		if !ok {
			break
		}

		ai, aj := alpha[i], alpha[j]
		curvature := gram[i][i] + gram[j][j] - 2*gram[i][j]
		if curvature <= 0 {
			curvature = smoMinCurvature
		}
		alpha[i], alpha[j] = m.updatePair(ai, aj, y[i] != y[j], grad[i], grad[j], curvature)

		di, dj := alpha[i]-ai, alpha[j]-aj
		for k := 0; k < n; k++ {
			grad[k] += y[k]*y[i]*gram[k][i]*di + y[k]*y[j]*gram[k][j]*dj
		}
	}

	machine := BinaryMachine{Bias: m.bias(alpha, y, grad)}
	for i, a := range alpha {
		if a > 0 {
			machine.SupportVectors = append(machine.SupportVectors, X[i])
			machine.DualCoef = append(machine.DualCoef, a*y[i])
		}
	}
	return machine
}

// selectPair returns the working set, or false once the solution is optimal
func (m *SVC) selectPair(alpha, y, grad []float64, gram [][]float64) (int, int, bool) {
	i := -1
	gmax := math.Inf(-1)
	for t := range alpha {
		if m.inUpSet(alpha[t], y[t]) && -y[t]*grad[t] >= gmax {
			gmax = -y[t] * grad[t]
			i = t
		}
	}
	if i < 0 {
		return 0, 0, false
	}

	j := -1
	gmax2 := math.Inf(-1)
	best := math.Inf(1)
	for t := range alpha {
		if !m.inLowSet(alpha[t], y[t]) {
			continue
		}
		if y[t]*grad[t] >= gmax2 {
			gmax2 = y[t] * grad[t]
		}
		diff := gmax + y[t]*grad[t]
		if diff <= 0 {
			continue
		}
		curvature := gram[i][i] + gram[t][t] - 2*gram[i][t]
		if curvature <= 0 {
			curvature = smoMinCurvature
		}
		if gain := -diff * diff / curvature; gain <= best {
			best = gain
			j = t
		}
	}

	if gmax+gmax2 < smoTolerance || j < 0 {
		return 0, 0, false
	}
	return i, j, true
}

func (m *SVC) inUpSet(a, y float64) bool {
	return (y > 0 && a < m.C) || (y < 0 && a > 0)
}

func (m *SVC) inLowSet(a, y float64) bool {
	return (y > 0 && a > 0) || (y < 0 && a < m.C)
}

// updatePair solves the two-variable subproblem and clips it to the box [0, C]
// while keeping sum(alpha_i * y_i) unchanged
func (m *SVC) updatePair(ai, aj float64, opposite bool, gi, gj, curvature float64) (float64, float64) {
	c := m.C
	if opposite {
		delta := (-gi - gj) / curvature
		diff := ai - aj
		ai += delta
		aj += delta
		if diff > 0 {
			if aj < 0 {
				aj, ai = 0, diff
			}
			if ai > c {
				ai, aj = c, c-diff
			}
		} else {
			if ai < 0 {
				ai, aj = 0, -diff
			}
			if aj > c {
				aj, ai = c, c+diff
			}
		}
		return ai, aj
	}

	delta := (gi - gj) / curvature
	sum := ai + aj
	ai -= delta
	aj += delta
	if sum > c {
		if ai > c {
			ai, aj = c, sum-c
		}
		if aj > c {
			aj, ai = c, sum-c
		}
	} else {
		if aj < 0 {
			aj, ai = 0, sum
		}
		if ai < 0 {
			ai, aj = 0, sum
		}
	}
	return ai, aj
}

// bias recomputes the intercept from the KKT conditions: the mean over free
// support vectors, or the midpoint of the feasible interval when every alpha sits
// at a bound
func (m *SVC) bias(alpha, y, grad []float64) float64 {
	upper, lower := math.Inf(1), math.Inf(-1)
	sum, free := 0.0, 0
	for t, a := range alpha {
		yg := y[t] * grad[t]
		switch {
		case a >= m.C:
			if y[t] < 0 {
				upper = math.Min(upper, yg)
			} else {
				lower = math.Max(lower, yg)
			}
		case a <= 0:
			if y[t] > 0 {
				upper = math.Min(upper, yg)
			} else {
				lower = math.Max(lower, yg)
			}
		default:
			sum += yg
			free++
		}
	}

	var rho float64
	switch {
	case free > 0:
		rho = sum / float64(free)
	case math.IsInf(upper, 0):
		rho = lower
	case math.IsInf(lower, 0):
		rho = upper
	default:
		rho = (upper + lower) / 2
	}
	return -rho
}

// Predict returns the class with the most one-vs-one votes
func (m *SVC) Predict(x []float64) (int, error) {
	if len(m.Machines) == 0 {
		return 0, fmt.Errorf("svc is not fitted")
	}

	votes := make([]int, m.Classes)
	for _, machine := range m.Machines {
		if m.decision(machine, x) > 0 {
			votes[machine.Positive]++
		} else {
			votes[machine.Negative]++
		}
	}

	best := 0
	for k, v := range votes {
		if v > votes[best] {
			best = k
		}
	}
	return best, nil
}

func (m *SVC) decision(machine BinaryMachine, x []float64) float64 {
	f := machine.Bias
	for i, sv := range machine.SupportVectors {
		f += machine.DualCoef[i] * m.Kernel.Eval(sv, x)
	}
	return f
}
