package onnx

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/teslashibe/go-elephant/pkg/classify"
)

// Head is one classification output of the model.
type Head struct {
	// Name is "species", "gender" or "age".
	Name string `json:"name"`
	// Output is the graph output name.
	Output string   `json:"output"`
	Labels []string `json:"labels"`
}

// Metadata describes the model's tensors and preprocessing.
type Metadata struct {
	Input      string    `json:"input"`
	InputShape []int64   `json:"input_shape"`
	ImageSize  int       `json:"image_size"`
	Mean       []float32 `json:"mean"`
	Std        []float32 `json:"std"`
	// Logits is true when outputs need a softmax.
	Logits bool   `json:"logits"`
	Heads  []Head `json:"heads"`
}

// DefaultMetadata matches a three-head model exported with the label
// sets in classify order and ImageNet normalization.
func DefaultMetadata() Metadata {
	return Metadata{
		Input:      "input",
		InputShape: []int64{1, 3, 224, 224},
		ImageSize:  224,
		Mean:       []float32{0.485, 0.456, 0.406},
		Std:        []float32{0.229, 0.224, 0.225},
		Logits:     true,
		Heads: []Head{
			{Name: "species", Output: "species", Labels: classify.SpeciesLabels},
			{Name: "gender", Output: "gender", Labels: classify.GenderLabels},
			{Name: "age", Output: "age", Labels: classify.AgeLabels},
		},
	}
}

// LoadMetadata reads a metadata JSON file. An empty path yields
// DefaultMetadata.
func LoadMetadata(path string) (Metadata, error) {
	if path == "" {
		return DefaultMetadata(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to read metadata: %w", err)
	}
	var m Metadata
	if err := json.Unmarshal(data, &m); err != nil {
		return Metadata{}, fmt.Errorf("failed to parse metadata: %w", err)
	}
	return m, m.Validate()
}

// Validate checks shapes and that every head maps onto a known label set.
func (m *Metadata) Validate() error {
	if len(m.InputShape) != 4 || m.InputShape[1] != 3 {
		return fmt.Errorf("input_shape must be [N,3,H,W], got %v", m.InputShape)
	}
	if m.ImageSize <= 0 || int64(m.ImageSize) != m.InputShape[2] || int64(m.ImageSize) != m.InputShape[3] {
		return fmt.Errorf("image_size %d does not match input_shape %v", m.ImageSize, m.InputShape)
	}
	if len(m.Mean) != 3 || len(m.Std) != 3 {
		return fmt.Errorf("mean and std need 3 values")
	}
	for _, s := range m.Std {
		if s == 0 {
			return fmt.Errorf("std must be non-zero")
		}
	}

	seen := make(map[string]bool)
	for _, h := range m.Heads {
		set, ok := labelSet(h.Name)
		if !ok {
			return fmt.Errorf("unknown head %q", h.Name)
		}
		if h.Output == "" || len(h.Labels) == 0 {
			return fmt.Errorf("head %q needs an output and labels", h.Name)
		}
		for _, l := range h.Labels {
			if _, ok := classify.CanonicalLabel(set, l); !ok {
				return fmt.Errorf("head %q: unknown label %q", h.Name, l)
			}
		}
		seen[h.Name] = true
	}
	for _, name := range []string{"species", "gender", "age"} {
		if !seen[name] {
			return fmt.Errorf("missing head %q", name)
		}
	}
	return nil
}

func labelSet(head string) ([]string, bool) {
	switch head {
	case "species":
		return classify.SpeciesLabels, true
	case "gender":
		return classify.GenderLabels, true
	case "age":
		return classify.AgeLabels, true
	}
	return nil, false
}
