package models

import (
	"fmt"
	"math"
	"strconv"
)

// ModelKind represents the classifier family used by a pipeline
type ModelKind string

const (
	ModelKindLogReg ModelKind = "logreg" // Multinomial logistic regression
	ModelKindSVM    ModelKind = "svm"    // Kernel support vector classifier
)

// Kernel represents the kernel function of the support vector classifier
type Kernel string

const (
	KernelLinear Kernel = "linear"
	KernelRBF    Kernel = "rbf"
	KernelPoly   Kernel = "poly"
)

// Training defaults
const (
	DefaultC               = 1.0
	DefaultKernel          = KernelRBF
	DefaultTestSize        = 0.2
	DefaultRandomState     = 42
	DefaultExperimentName  = "iris-mlflow-runs"
	DefaultRegisteredModel = "iris-model"
)

// ValidModelKinds lists every model kind the trainer can build
var ValidModelKinds = []ModelKind{ModelKindLogReg, ModelKindSVM}

// ValidKernels lists every kernel the support vector classifier accepts
var ValidKernels = []Kernel{KernelLinear, KernelRBF, KernelPoly}

// TrainingParams holds the inputs of a single training run
type TrainingParams struct {
	Model           ModelKind `json:"model" yaml:"model"`
	C               float64   `json:"C" yaml:"C"`
	Kernel          Kernel    `json:"kernel" yaml:"kernel"`
	TestSize        float64   `json:"test_size" yaml:"test_size"`
	RandomState     int64     `json:"random_state" yaml:"random_state"`
	DataPath        string    `json:"data_path" yaml:"data_path"`
	Experiment      string    `json:"experiment" yaml:"experiment"`
	RegisteredModel string    `json:"registered_model,omitempty" yaml:"registered_model,omitempty"`
}

// DefaultTrainingParams returns the parameters used when none are given
func DefaultTrainingParams() TrainingParams {
	return TrainingParams{
		Model:       ModelKindLogReg,
		C:           DefaultC,
		Kernel:      DefaultKernel,
		TestSize:    DefaultTestSize,
		RandomState: DefaultRandomState,
		Experiment:  DefaultExperimentName,
	}
}

// Validate checks the enumerated choices and numeric ranges.
// Every failure is a *ConfigurationError.
func (p *TrainingParams) Validate() error {
	if !IsValidModelKind(p.Model) {
		return &ConfigurationError{Field: "model", Value: string(p.Model), Reason: fmt.Sprintf("must be one of %v", ValidModelKinds)}
	}
	if p.C <= 0 || math.IsNaN(p.C) || math.IsInf(p.C, 0) {
		return &ConfigurationError{Field: "C", Value: formatFloat(p.C), Reason: "must be a positive finite number"}
	}
	if p.Model == ModelKindSVM && !IsValidKernel(p.Kernel) {
		return &ConfigurationError{Field: "kernel", Value: string(p.Kernel), Reason: fmt.Sprintf("must be one of %v", ValidKernels)}
	}
	if !(p.TestSize > 0 && p.TestSize < 1) {
		return &ConfigurationError{Field: "test_size", Value: formatFloat(p.TestSize), Reason: "must be in the open interval (0, 1)"}
	}
	return nil
}

// RunName returns the tracker run name for these parameters
func (p *TrainingParams) RunName() string {
	return fmt.Sprintf("%s-C%s-kernel%s", p.Model, formatFloat(p.C), p.Kernel)
}

// KernelParam returns the kernel as logged to the tracker; it only applies to svm
func (p *TrainingParams) KernelParam() string {
	if p.Model != ModelKindSVM {
		return "N/A"
	}
	return string(p.Kernel)
}

// IsValidModelKind reports whether kind is in ValidModelKinds
func IsValidModelKind(kind ModelKind) bool {
	for _, k := range ValidModelKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// IsValidKernel reports whether kernel is in ValidKernels
func IsValidKernel(kernel Kernel) bool {
	for _, k := range ValidKernels {
		if k == kernel {
			return true
		}
	}
	return false
}

// PerformanceMetrics holds held-out evaluation metrics
type PerformanceMetrics struct {
	Accuracy        float64   `json:"accuracy"`
	F1Macro         float64   `json:"f1_macro"`
	PerClassF1      []float64 `json:"per_class_f1,omitempty"`
	ConfusionMatrix [][]int   `json:"confusion_matrix,omitempty"` // rows are true classes, columns predictions
	TestSamples     int       `json:"test_samples"`
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
