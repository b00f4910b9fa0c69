// Package backend builds the prediction pipeline from configuration:
// each configured backend is instrumented, the fallbacks are chained, the
// optional elephant detector runs in front and the whole is guarded by the
// timeout and confidence floor.
package backend

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/teslashibe/go-elephant/internal/config"
	"github.com/teslashibe/go-elephant/internal/log"
	"github.com/teslashibe/go-elephant/pkg/detect"
	"github.com/teslashibe/go-elephant/pkg/predict"
	"github.com/teslashibe/go-elephant/pkg/predict/onnx"
)

// Build creates the predictor described by cfg. obs may be nil.
func Build(cfg *config.Config, logger *slog.Logger, obs predict.Observer) (predict.Predictor, error) {
	if logger == nil {
		logger = log.Discard()
	}

	names := append([]string{cfg.Predict.Backend}, cfg.Predict.Fallback...)
	backends := make([]predict.Predictor, 0, len(names))
	for _, name := range names {
		p, err := New(name, cfg, logger)
		if err != nil {
			closeAll(backends)
			return nil, fmt.Errorf("backend %s: %w", name, err)
		}
		backends = append(backends, predict.Instrument(p, obs))
	}

	var p predict.Predictor = backends[0]
	if len(backends) > 1 {
		chain, err := predict.NewChainWithLogger(logger, backends...)
		if err != nil {
			closeAll(backends)
			return nil, err
		}
		p = chain
	}

	if path := cfg.Predict.Gate.ModelPath; path != "" {
		det, err := detect.NewYOLO(detect.YOLOConfig{
			ModelPath:        path,
			ConfidenceThresh: float32(cfg.Predict.Gate.Confidence),
			Logger:           logger,
		})
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("elephant detector: %w", err)
		}
		p = detect.NewGate(p, det, detect.GateConfig{
			MinArea: cfg.Predict.Gate.MinArea,
			Logger:  logger,
		})
		logger.Info("elephant detector enabled", "model", path, "min_area", cfg.Predict.Gate.MinArea)
	}

	logger.Info("prediction backend ready",
		"backend", p.Name(),
		"timeout", cfg.Predict.Timeout,
		"min_confidence", cfg.Predict.MinConfidence,
	)
	return predict.Guard(p, cfg.Predict.Timeout, cfg.Predict.MinConfidence), nil
}

// New creates a single backend by name.
func New(name string, cfg *config.Config, logger *slog.Logger) (predict.Predictor, error) {
	if logger == nil {
		logger = log.Discard()
	}
	pc := cfg.Predict
	switch name {
	case config.BackendHTTP:
		c, err := predict.NewClient(
			predict.WithBaseURL(pc.HTTP.URL),
			predict.WithAPIKey(pc.HTTP.APIKey),
			predict.WithTimeout(pc.Timeout),
			predict.WithRetry(pc.HTTP.MaxRetries, pc.HTTP.RetryDelay),
			predict.WithLogger(logger),
		)
		if err != nil {
			return nil, err
		}
		return c, nil
	case config.BackendOpenAI:
		v, err := predict.NewVision(
			predict.WithAPIKey(pc.OpenAI.APIKey),
			predict.WithBaseURL(pc.OpenAI.BaseURL),
			predict.WithModel(pc.OpenAI.Model),
			predict.WithTimeout(pc.Timeout),
			predict.WithLogger(logger),
		)
		if err != nil {
			return nil, err
		}
		return v, nil
	case config.BackendONNX:
		m, err := onnx.New(onnx.Config{
			ModelPath:    pc.ONNX.ModelPath,
			MetadataPath: pc.ONNX.MetadataPath,
			LibraryPath:  pc.ONNX.LibraryPath,
			Logger:       logger,
		})
		if err != nil {
			return nil, err
		}
		return m, nil
	case config.BackendSample:
		return predict.NewSample(pc.Sample.Delay), nil
	default:
		return nil, fmt.Errorf("%w: unknown backend %q", predict.ErrNoBackend, name)
	}
}

func closeAll(backends []predict.Predictor) {
	var errs []error
	for _, b := range backends {
		errs = append(errs, b.Close())
	}
	if err := errors.Join(errs...); err != nil {
		log.Warn("failed to close backend", "error", err)
	}
}
