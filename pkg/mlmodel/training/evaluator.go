package training

import (
	"fmt"
	"math"

	"github.com/sjwhitworth/golearn/evaluation"

	"github.com/mimir-aip/iris-mlops/pkg/models"
)

// Evaluate scores the pipeline on a held-out partition: accuracy, unweighted mean F1
// over every class, and the confusion matrix
func Evaluate(p *Pipeline, X [][]float64, y []int) (*models.PerformanceMetrics, error) {
	if len(X) == 0 || len(X) != len(y) {
		return nil, fmt.Errorf("invalid evaluation data: %d rows, %d labels", len(X), len(y))
	}

	predicted, err := p.PredictAll(X)
	if err != nil {
		return nil, fmt.Errorf("failed to predict test partition: %w", err)
	}

	classNames := p.Metadata.ClassNames
	if len(classNames) == 0 {
		classNames = models.ClassNames
	}
	return score(classNames, y, predicted), nil
}

func score(classNames []string, actual, predicted []int) *models.PerformanceMetrics {
	numClasses := len(classNames)

	// golearn keys the matrix by reference class, then predicted class
	cm := make(evaluation.ConfusionMatrix, numClasses)
	for _, name := range classNames {
		cm[name] = make(map[string]int, numClasses)
	}
	matrix := make([][]int, numClasses)
	for i := range matrix {
		matrix[i] = make([]int, numClasses)
	}
	for i := range actual {
		cm[classNames[actual[i]]][classNames[predicted[i]]]++
		matrix[actual[i]][predicted[i]]++
	}

	metrics := &models.PerformanceMetrics{
		Accuracy:        evaluation.GetAccuracy(cm),
		PerClassF1:      make([]float64, numClasses),
		ConfusionMatrix: matrix,
		TestSamples:     len(actual),
	}

	sum := 0.0
	for k, name := range classNames {
		f1 := evaluation.GetF1Score(name, cm)
		// Undefined precision or recall counts as zero
		if math.IsNaN(f1) || math.IsInf(f1, 0) {
			f1 = 0
		}
		metrics.PerClassF1[k] = f1
		sum += f1
	}
	metrics.F1Macro = sum / float64(numClasses)
	return metrics
}
