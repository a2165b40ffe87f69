package training

import (
	"fmt"

	"github.com/mimir-aip/iris-mlops/pkg/models"
)

// Estimator defines the contract for a classifier fitted on scaled features
type Estimator interface {
	// Fit trains the estimator; labels are in [0, numClasses)
	Fit(X [][]float64, y []int, numClasses int) error

	// Predict returns the class index for one scaled feature vector
	Predict(x []float64) (int, error)

	// Kind returns the model kind this estimator implements
	Kind() models.ModelKind
}

// NewEstimator returns an unfitted estimator for the given parameters
func NewEstimator(params models.TrainingParams) (Estimator, error) {
	switch params.Model {
	case models.ModelKindLogReg:
		return NewLogisticRegression(params.C), nil
	case models.ModelKindSVM:
		if !models.IsValidKernel(params.Kernel) {
			return nil, &models.ConfigurationError{Field: "kernel", Value: string(params.Kernel), Reason: fmt.Sprintf("must be one of %v", models.ValidKernels)}
		}
		return NewSVC(params.C, params.Kernel), nil
	default:
		return nil, &models.ConfigurationError{Field: "model", Value: string(params.Model), Reason: fmt.Sprintf("unsupported model type, must be one of %v", models.ValidModelKinds)}
	}
}
