package training

import (
	"fmt"
	"time"

	"github.com/mimir-aip/iris-mlops/pkg/models"
)

// ArtifactMetadata describes how a pipeline was produced
type ArtifactMetadata struct {
	ModelKind    models.ModelKind
	Params       models.TrainingParams
	FeatureNames []string
	ClassNames   []string
	CreatedAt    time.Time
}

// Pipeline is a fitted scaler followed by one estimator. It is the unit persisted
// as a model artifact and the only thing the serving layer needs.
type Pipeline struct {
	Scaler    *StandardScaler
	Estimator Estimator
	Metadata  ArtifactMetadata
}

var _ models.Classifier = (*Pipeline)(nil)

// FitPipeline validates params, fits the scaler on X only, then fits the estimator on
// the scaled rows
func FitPipeline(params models.TrainingParams, X [][]float64, y []int, classNames []string) (*Pipeline, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	estimator, err := NewEstimator(params)
	if err != nil {
		return nil, err
	}

	scaler, err := FitStandardScaler(X)
	if err != nil {
		return nil, fmt.Errorf("failed to fit scaler: %w", err)
	}
	scaled, err := scaler.TransformAll(X)
	if err != nil {
		return nil, fmt.Errorf("failed to scale training data: %w", err)
	}

	numClasses := len(classNames)
	for _, label := range y {
		if label < 0 || label >= numClasses {
			return nil, fmt.Errorf("label %d out of range for %d classes", label, numClasses)
		}
	}

	if err := estimator.Fit(scaled, y, numClasses); err != nil {
		return nil, fmt.Errorf("failed to fit %s: %w", params.Model, err)
	}

	return &Pipeline{
		Scaler:    scaler,
		Estimator: estimator,
		Metadata: ArtifactMetadata{
			ModelKind:    estimator.Kind(),
			Params:       params,
			FeatureNames: append([]string{}, models.FeatureNames...),
			ClassNames:   append([]string{}, classNames...),
			CreatedAt:    time.Now().UTC(),
		},
	}, nil
}

// Predict scales one raw feature vector and classifies it
func (p *Pipeline) Predict(features []float64) (models.ClassIndex, error) {
	scaled, err := p.Scaler.Transform(features)
	if err != nil {
		return 0, err
	}
	label, err := p.Estimator.Predict(scaled)
	if err != nil {
		return 0, err
	}
	return models.ClassIndex(label), nil
}

// PredictAll classifies every row of X
func (p *Pipeline) PredictAll(X [][]float64) ([]int, error) {
	out := make([]int, len(X))
	for i, row := range X {
		label, err := p.Predict(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = int(label)
	}
	return out, nil
}
