// Package dataset materialises the reference iris table on disk and loads it back
// for training.
package dataset

import (
	"bytes"
	_ "embed"
	"fmt"
	"sort"
)

//go:embed iris.csv
var irisCSV []byte

// IrisDatasetName is the name the embedded source serves the reference table under
const IrisDatasetName = "iris"

// Dataset is a labelled feature matrix. Features rows follow FeatureNames order.
type Dataset struct {
	FeatureNames []string
	Features     [][]float64
	Labels       []int
	LabelNames   []string // indexed by label
}

// Len returns the number of rows
func (d *Dataset) Len() int {
	return len(d.Labels)
}

// ClassCounts returns the support of every label present in the dataset
func (d *Dataset) ClassCounts() map[int]int {
	counts := make(map[int]int)
	for _, l := range d.Labels {
		counts[l]++
	}
	return counts
}

// Classes returns the distinct labels in ascending order
func (d *Dataset) Classes() []int {
	counts := d.ClassCounts()
	classes := make([]int, 0, len(counts))
	for c := range counts {
		classes = append(classes, c)
	}
	sort.Ints(classes)
	return classes
}

// Subset returns a dataset holding the rows at idx, in that order
func (d *Dataset) Subset(idx []int) *Dataset {
	sub := &Dataset{
		FeatureNames: d.FeatureNames,
		LabelNames:   d.LabelNames,
		Features:     make([][]float64, len(idx)),
		Labels:       make([]int, len(idx)),
	}
	for i, j := range idx {
		sub.Features[i] = d.Features[j]
		sub.Labels[i] = d.Labels[j]
	}
	return sub
}

// Source supplies named datasets
type Source interface {
	Load(name string) (*Dataset, error)
}

// EmbeddedSource serves the reference iris table compiled into the binary
type EmbeddedSource struct{}

// NewEmbeddedSource creates a source backed by the embedded table
func NewEmbeddedSource() *EmbeddedSource {
	return &EmbeddedSource{}
}

// Load returns the named dataset
func (s *EmbeddedSource) Load(name string) (*Dataset, error) {
	if name != IrisDatasetName {
		return nil, fmt.Errorf("unknown dataset %q: only %q is available", name, IrisDatasetName)
	}
	ds, err := decode(bytes.NewReader(irisCSV))
	if err != nil {
		return nil, fmt.Errorf("failed to decode embedded %s table: %w", name, err)
	}
	return ds, nil
}
