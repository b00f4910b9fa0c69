// Package onnx runs a local three-head elephant classifier with ONNX Runtime.
package onnx

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/teslashibe/go-elephant/internal/log"
	"github.com/teslashibe/go-elephant/pkg/classify"
	"github.com/teslashibe/go-elephant/pkg/imagesource"
	"github.com/teslashibe/go-elephant/pkg/predict"
)

const backendONNX = "onnx"

// Config locates the model files.
type Config struct {
	ModelPath    string
	MetadataPath string
	// LibraryPath points at libonnxruntime; empty uses the platform default.
	LibraryPath string
	Logger      *slog.Logger
}

// Predictor runs inference on a single ONNX session.
// Runs are serialized because the session binds fixed tensors.
type Predictor struct {
	mu       sync.Mutex
	session  *ort.AdvancedSession
	input    *ort.Tensor[float32]
	outputs  []*ort.Tensor[float32]
	metadata Metadata
	logger   *slog.Logger
}

// New loads the model and allocates its tensors.
func New(cfg Config) (*Predictor, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Discard()
	}

	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("%w: model file: %v", predict.ErrNoBackend, err)
	}
	metadata, err := LoadMetadata(cfg.MetadataPath)
	if err != nil {
		return nil, err
	}

	if cfg.LibraryPath != "" {
		ort.SetSharedLibraryPath(cfg.LibraryPath)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
		}
	}

	input, err := ort.NewEmptyTensor[float32](ort.NewShape(metadata.InputShape...))
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	p := &Predictor{
		input:    input,
		metadata: metadata,
		logger:   logger.With("component", "predict.onnx"),
	}

	outputNames := make([]string, len(metadata.Heads))
	outputValues := make([]ort.ArbitraryTensor, len(metadata.Heads))
	for i, h := range metadata.Heads {
		t, err := ort.NewEmptyTensor[float32](ort.NewShape(metadata.InputShape[0], int64(len(h.Labels))))
		if err != nil {
			p.destroy()
			return nil, fmt.Errorf("failed to create output tensor %s: %w", h.Output, err)
		}
		p.outputs = append(p.outputs, t)
		outputNames[i] = h.Output
		outputValues[i] = t
	}

	session, err := ort.NewAdvancedSession(cfg.ModelPath,
		[]string{metadata.Input}, outputNames,
		[]ort.ArbitraryTensor{input}, outputValues,
		nil)
	if err != nil {
		p.destroy()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}
	p.session = session

	p.logger.Info("onnx model loaded",
		"model", cfg.ModelPath,
		"image_size", metadata.ImageSize,
	)
	return p, nil
}

// Predict decodes, preprocesses and runs the model.
func (p *Predictor) Predict(ctx context.Context, payload imagesource.Payload) (*classify.Result, error) {
	img, err := DecodeImage(payload)
	if err != nil {
		return nil, predict.WrapError(backendONNX, err)
	}
	data := Preprocess(img, p.metadata)

	if err := ctx.Err(); err != nil {
		return nil, predict.Normalize(backendONNX, err)
	}

	start := time.Now()
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.session == nil {
		return nil, predict.WrapError(backendONNX, fmt.Errorf("%w: predictor closed", predict.ErrServiceUnavailable))
	}

	copy(p.input.GetData(), data)
	if err := p.session.Run(); err != nil {
		return nil, predict.WrapError(backendONNX, fmt.Errorf("%w: inference failed: %v", predict.ErrServiceUnavailable, err))
	}

	result := &classify.Result{}
	for i, h := range p.metadata.Heads {
		o, err := Outcome(h, p.outputs[i].GetData(), p.metadata.Logits)
		if err != nil {
			return nil, predict.WrapError(backendONNX, fmt.Errorf("%w: %v", predict.ErrServiceUnavailable, err))
		}
		switch h.Name {
		case "species":
			result.Species = o
		case "gender":
			result.Gender = o
		case "age":
			result.Age = o
		}
	}

	p.logger.Debug("onnx prediction complete",
		"species", result.Species.Class,
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}

// Health reports whether the session is loaded.
func (p *Predictor) Health(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session == nil {
		return predict.WrapError(backendONNX, predict.ErrServiceUnavailable)
	}
	return nil
}

// Name returns "onnx".
func (p *Predictor) Name() string { return backendONNX }

// Close releases the session, its tensors and the runtime environment.
func (p *Predictor) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session == nil {
		return nil
	}
	p.destroy()
	return ort.DestroyEnvironment()
}

func (p *Predictor) destroy() {
	if p.session != nil {
		p.session.Destroy()
		p.session = nil
	}
	if p.input != nil {
		p.input.Destroy()
		p.input = nil
	}
	for _, t := range p.outputs {
		t.Destroy()
	}
	p.outputs = nil
}

// Verify Predictor implements predict.Predictor at compile time.
var _ predict.Predictor = (*Predictor)(nil)
