package training

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/mimir-aip/iris-mlops/pkg/models"
)

// ArtifactFormatVersion is bumped whenever the encoded layout changes
const ArtifactFormatVersion = 1

// ArtifactType is reported by the serving metrics for gob pipelines
const ArtifactType = "gob-pipeline"

type artifactEnvelope struct {
	FormatVersion int
	Metadata      ArtifactMetadata
	Scaler        *StandardScaler
	LogReg        *LogisticRegression
	SVC           *SVC
}

// Save writes the pipeline to w
func (p *Pipeline) Save(w io.Writer) error {
	env := artifactEnvelope{
		FormatVersion: ArtifactFormatVersion,
		Metadata:      p.Metadata,
		Scaler:        p.Scaler,
	}
	switch est := p.Estimator.(type) {
	case *LogisticRegression:
		env.LogReg = est
	case *SVC:
		env.SVC = est
	default:
		return fmt.Errorf("unsupported estimator type %T", p.Estimator)
	}

	if err := gob.NewEncoder(w).Encode(&env); err != nil {
		return fmt.Errorf("failed to encode pipeline: %w", err)
	}
	return nil
}

// Encode returns the serialized pipeline
func (p *Pipeline) Encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := p.Save(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// SaveFile writes the pipeline to path, creating parent directories and replacing
// any existing file
func (p *Pipeline) SaveFile(path string) error {
	data, err := p.Encode()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create artifact directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write artifact: %w", err)
	}
	return nil
}

// Load reads a pipeline from r
func Load(r io.Reader) (*Pipeline, error) {
	var env artifactEnvelope
	if err := gob.NewDecoder(r).Decode(&env); err != nil {
		return nil, fmt.Errorf("failed to decode pipeline: %w", err)
	}
	if env.FormatVersion != ArtifactFormatVersion {
		return nil, fmt.Errorf("unsupported artifact format version %d", env.FormatVersion)
	}
	if env.Scaler == nil {
		return nil, fmt.Errorf("artifact has no scaler")
	}

	p := &Pipeline{Scaler: env.Scaler, Metadata: env.Metadata}
	switch {
	case env.LogReg != nil && env.Metadata.ModelKind == models.ModelKindLogReg:
		p.Estimator = env.LogReg
	case env.SVC != nil && env.Metadata.ModelKind == models.ModelKindSVM:
		p.Estimator = env.SVC
	default:
		return nil, fmt.Errorf("artifact has no estimator for model kind %q", env.Metadata.ModelKind)
	}
	return p, nil
}

// Decode parses serialized pipeline bytes
func Decode(data []byte) (*Pipeline, error) {
	return Load(bytes.NewReader(data))
}

// LoadFile reads a pipeline from path
func LoadFile(path string) (*Pipeline, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open artifact: %w", err)
	}
	defer f.Close()
	return Load(f)
}
