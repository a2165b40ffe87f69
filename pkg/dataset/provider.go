package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"go.uber.org/zap"

	"github.com/mimir-aip/iris-mlops/pkg/models"
)

// Column names following the feature columns
const (
	TargetColumn     = "target"
	TargetNameColumn = "target_name"
)

// Provider materialises datasets from a Source onto the filesystem
type Provider struct {
	source Source
	logger *zap.Logger
}

// NewProvider creates a new dataset provider
func NewProvider(source Source, logger *zap.Logger) *Provider {
	return &Provider{
		source: source,
		logger: logger.Named("dataset"),
	}
}

// Prepare loads the named dataset and writes it as CSV to path, creating parent
// directories. An existing file is overwritten.
func (p *Provider) Prepare(name, path string) (*Dataset, error) {
	ds, err := p.source.Load(name)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create dataset directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create dataset file: %w", err)
	}
	defer f.Close()

	if err := encode(f, ds); err != nil {
		return nil, fmt.Errorf("failed to write dataset: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close dataset file: %w", err)
	}

	p.logger.Info("Dataset prepared",
		zap.String("dataset", name),
		zap.String("path", path),
		zap.Int("rows", ds.Len()))
	return ds, nil
}

// Load reads a prepared dataset from path
func Load(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s (run prepare-data first)", models.ErrDatasetNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer f.Close()

	ds, err := decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset %s: %w", path, err)
	}
	return ds, nil
}

func encode(w io.Writer, ds *Dataset) error {
	cw := csv.NewWriter(w)
	header := append(append([]string{}, ds.FeatureNames...), TargetColumn, TargetNameColumn)
	if err := cw.Write(header); err != nil {
		return err
	}
	for i, row := range ds.Features {
		record := make([]string, 0, len(row)+2)
		for _, v := range row {
			record = append(record, strconv.FormatFloat(v, 'f', -1, 64))
		}
		label := ds.Labels[i]
		name := ""
		if label >= 0 && label < len(ds.LabelNames) {
			name = ds.LabelNames[label]
		}
		record = append(record, strconv.Itoa(label), name)
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// decode parses the prepared CSV layout: the fixed feature columns, then target and
// an optional target_name column
func decode(r io.Reader) (*Dataset, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if len(header) < models.NumFeatures+1 {
		return nil, fmt.Errorf("expected at least %d columns, got %d", models.NumFeatures+1, len(header))
	}
	for i, name := range models.FeatureNames {
		if header[i] != name {
			return nil, fmt.Errorf("column %d is %q, expected %q", i, header[i], name)
		}
	}
	if header[models.NumFeatures] != TargetColumn {
		return nil, fmt.Errorf("column %d is %q, expected %q", models.NumFeatures, header[models.NumFeatures], TargetColumn)
	}
	hasNames := len(header) > models.NumFeatures+1 && header[models.NumFeatures+1] == TargetNameColumn

	ds := &Dataset{FeatureNames: append([]string{}, models.FeatureNames...)}
	names := make(map[int]string)
	line := 1
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		row := make([]float64, models.NumFeatures)
		for i := 0; i < models.NumFeatures; i++ {
			v, err := strconv.ParseFloat(record[i], 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid %s: %w", line, models.FeatureNames[i], err)
			}
			row[i] = v
		}
		label, err := strconv.Atoi(record[models.NumFeatures])
		if err != nil || label < 0 {
			return nil, fmt.Errorf("line %d: invalid target %q", line, record[models.NumFeatures])
		}
		if hasNames {
			names[label] = record[models.NumFeatures+1]
		}

		ds.Features = append(ds.Features, row)
		ds.Labels = append(ds.Labels, label)
	}

	if ds.Len() == 0 {
		return nil, fmt.Errorf("dataset has no rows")
	}

	ds.LabelNames = labelNames(ds.Classes(), names)
	return ds, nil
}

// labelNames builds the index-to-name table, falling back to the canonical species names
func labelNames(classes []int, names map[int]string) []string {
	size := len(models.ClassNames)
	if n := classes[len(classes)-1] + 1; n > size {
		size = n
	}
	out := make([]string, size)
	for i := range out {
		if name, ok := names[i]; ok && name != "" {
			out[i] = name
		} else if name, ok := models.ClassName(models.ClassIndex(i)); ok {
			out[i] = name
		}
	}
	return out
}
