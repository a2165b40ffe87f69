package training

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/mimir-aip/iris-mlops/pkg/models"
)

// Kernel parameters that are not exposed as training params
const (
	polyDegree = 3
	polyCoef0  = 0.0
)

// KernelSpec is a fitted kernel function
type KernelSpec struct {
	Type   models.Kernel
	Gamma  float64
	Degree int
	Coef0  float64
}

// newKernelSpec resolves gamma as 1/(n_features * Var(X)) over the whole training matrix
func newKernelSpec(kernel models.Kernel, X [][]float64) (KernelSpec, error) {
	if !models.IsValidKernel(kernel) {
		return KernelSpec{}, &models.ConfigurationError{Field: "kernel", Value: string(kernel), Reason: fmt.Sprintf("must be one of %v", models.ValidKernels)}
	}

	flat := make([]float64, 0, len(X)*len(X[0]))
	for _, row := range X {
		flat = append(flat, row...)
	}
	_, std := stat.PopMeanStdDev(flat, nil)
	variance := std * std

	gamma := 1.0
	if variance > 0 {
		gamma = 1 / (float64(len(X[0])) * variance)
	}

	return KernelSpec{
		Type:   kernel,
		Gamma:  gamma,
		Degree: polyDegree,
		Coef0:  polyCoef0,
	}, nil
}

// Eval computes K(a, b)
func (k KernelSpec) Eval(a, b []float64) float64 {
	switch k.Type {
	case models.KernelRBF:
		d := floats.Distance(a, b, 2)
		return math.Exp(-k.Gamma * d * d)
	case models.KernelPoly:
		return math.Pow(k.Gamma*floats.Dot(a, b)+k.Coef0, float64(k.Degree))
	default:
		return floats.Dot(a, b)
	}
}
