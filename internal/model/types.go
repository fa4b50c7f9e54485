package model

import (
	"encoding/json"
	"fmt"
	"os"
	"slices"

	"github.com/Brownie44l1/waste-api/internal/classify"
	"github.com/Brownie44l1/waste-api/internal/imaging"
)

type Metadata struct {
	InputShape  []int64  `json:"input_shape"`
	OutputShape []int64  `json:"output_shape"`
	Classes     []string `json:"classes"`
	ImageSize   int      `json:"image_size"`
	InputName   string   `json:"input_name,omitempty"`
	OutputName  string   `json:"output_name,omitempty"`
}

type PredictionRequest struct {
	Image []float32 `json:"image"`
}

type PredictionResponse struct {
	Class       string             `json:"class"`
	Confidence  float32            `json:"confidence"`
	Predictions map[string]float32 `json:"predictions"`
	Lines       []string           `json:"lines"`
}

// LoadMetadata reads and validates the JSON description shipped next to the
// model file.
func LoadMetadata(path string) (Metadata, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to read metadata: %w", err)
	}

	var md Metadata
	if err := json.Unmarshal(raw, &md); err != nil {
		return Metadata{}, fmt.Errorf("failed to parse metadata: %w", err)
	}
	if md.InputName == "" {
		md.InputName = "input"
	}
	if md.OutputName == "" {
		md.OutputName = "output"
	}
	if err := md.Validate(); err != nil {
		return Metadata{}, err
	}
	return md, nil
}

// Validate checks the metadata against the fixed input size and label table.
func (m Metadata) Validate() error {
	if m.ImageSize != imaging.Size {
		return fmt.Errorf("model image_size %d does not match required %d", m.ImageSize, imaging.Size)
	}
	if !slices.Equal(m.InputShape, imaging.Shape) {
		return fmt.Errorf("model input shape %v does not match required %v", m.InputShape, imaging.Shape)
	}
	if n := elements(m.OutputShape); n != classify.NumClasses {
		return fmt.Errorf("model output shape %v holds %d values, want %d", m.OutputShape, n, classify.NumClasses)
	}
	if len(m.Classes) != classify.NumClasses {
		return fmt.Errorf("model lists %d classes, want %d", len(m.Classes), classify.NumClasses)
	}
	for i, c := range m.Classes {
		if c != classify.Labels[i] {
			return fmt.Errorf("model class %d is %q, want %q", i, c, classify.Labels[i])
		}
	}
	return nil
}

// InputSize is the number of float32 values one prediction consumes.
func (m Metadata) InputSize() int {
	return elements(m.InputShape)
}

func elements(shape []int64) int {
	if len(shape) == 0 {
		return 0
	}
	n := 1
	for _, d := range shape {
		n *= int(d)
	}
	return n
}
