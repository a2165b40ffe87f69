package training

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// StandardScaler centres every feature on its training mean and divides by its
// population standard deviation. Constant features are divided by 1.
type StandardScaler struct {
	Mean  []float64
	Scale []float64
}

// FitStandardScaler computes the per-column statistics of X
func FitStandardScaler(X [][]float64) (*StandardScaler, error) {
	if len(X) == 0 {
		return nil, fmt.Errorf("no training data provided")
	}

	m := toMatrix(X)
	_, cols := m.Dims()
	s := &StandardScaler{
		Mean:  make([]float64, cols),
		Scale: make([]float64, cols),
	}
	for j := 0; j < cols; j++ {
		col := mat.Col(nil, j, m)
		mean, std := stat.PopMeanStdDev(col, nil)
		s.Mean[j] = mean
		if std == 0 {
			std = 1
		}
		s.Scale[j] = std
	}
	return s, nil
}

// Transform returns a scaled copy of one feature vector
func (s *StandardScaler) Transform(x []float64) ([]float64, error) {
	if len(x) != len(s.Mean) {
		return nil, fmt.Errorf("expected %d features, got %d", len(s.Mean), len(x))
	}
	out := make([]float64, len(x))
	for j, v := range x {
		out[j] = (v - s.Mean[j]) / s.Scale[j]
	}
	return out, nil
}

// TransformAll scales every row of X
func (s *StandardScaler) TransformAll(X [][]float64) ([][]float64, error) {
	out := make([][]float64, len(X))
	for i, row := range X {
		scaled, err := s.Transform(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = scaled
	}
	return out, nil
}

// toMatrix copies row-major data into a gonum matrix
func toMatrix(data [][]float64) *mat.Dense {
	rows := len(data)
	cols := len(data[0])
	flat := make([]float64, 0, rows*cols)
	for _, row := range data {
		flat = append(flat, row...)
	}
	return mat.NewDense(rows, cols, flat)
}
