package models

import (
	"fmt"
	"math"
)

// ClassIndex is the integer label produced by a classifier
type ClassIndex int

// NumFeatures is the width of the fixed feature schema
const NumFeatures = 4

// FeatureNames is the training-time column order. Every feature vector handed to a
// classifier must follow it exactly.
var FeatureNames = []string{
	"sepal length (cm)",
	"sepal width (cm)",
	"petal length (cm)",
	"petal width (cm)",
}

// ClassNames maps class indices to species names
var ClassNames = []string{"setosa", "versicolor", "virginica"}

// NumClasses is the number of output classes the serving layer accepts
const NumClasses = 3

// ClassName returns the species name for idx
func ClassName(idx ClassIndex) (string, bool) {
	if idx < 0 || int(idx) >= len(ClassNames) {
		return "", false
	}
	return ClassNames[idx], true
}

// Record is one iris measurement
type Record struct {
	SepalLength float64 `json:"sepal_length"`
	SepalWidth  float64 `json:"sepal_width"`
	PetalLength float64 `json:"petal_length"`
	PetalWidth  float64 `json:"petal_width"`
}

// Features returns the record as a vector in FeatureNames order
func (r Record) Features() []float64 {
	return []float64{r.SepalLength, r.SepalWidth, r.PetalLength, r.PetalWidth}
}

// PredictRequest is the wire form of a prediction request. Pointer fields let
// validation tell a missing field apart from a zero value.
type PredictRequest struct {
	SepalLength *float64 `json:"sepal_length"`
	SepalWidth  *float64 `json:"sepal_width"`
	PetalLength *float64 `json:"petal_length"`
	PetalWidth  *float64 `json:"petal_width"`
}

// Validate checks the request against the 4-field numeric schema
func (r *PredictRequest) Validate() error {
	fields := []struct {
		name  string
		value *float64
	}{
		{"sepal_length", r.SepalLength},
		{"sepal_width", r.SepalWidth},
		{"petal_length", r.PetalLength},
		{"petal_width", r.PetalWidth},
	}
	for _, f := range fields {
		if f.value == nil {
			return fmt.Errorf("%s is required", f.name)
		}
		if math.IsNaN(*f.value) || math.IsInf(*f.value, 0) {
			return fmt.Errorf("%s must be a finite number", f.name)
		}
	}
	return nil
}

// Record converts a validated request to a Record
func (r *PredictRequest) Record() Record {
	return Record{
		SepalLength: *r.SepalLength,
		SepalWidth:  *r.SepalWidth,
		PetalLength: *r.PetalLength,
		PetalWidth:  *r.PetalWidth,
	}
}

// Classifier is the capability every served artifact exposes
type Classifier interface {
	Predict(features []float64) (ClassIndex, error)
}

// PredictResponse is the success payload of a prediction
type PredictResponse struct {
	Prediction ClassIndex `json:"prediction"`
	ClassName  string     `json:"class_name"`
}
