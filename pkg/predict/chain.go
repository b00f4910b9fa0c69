package predict

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/teslashibe/go-elephant/pkg/classify"
	"github.com/teslashibe/go-elephant/pkg/imagesource"
)

// Chain tries multiple backends in order until one succeeds.
// A rejected image or an unclassifiable answer ends the chain: another
// backend would see the same image.
type Chain struct {
	backends []Predictor
	logger   *slog.Logger
}

// NewChain creates a backend chain.
// At least one backend is required.
func NewChain(backends ...Predictor) (*Chain, error) {
	if len(backends) == 0 {
		return nil, ErrNoBackend
	}
	return &Chain{
		backends: backends,
		logger:   slog.Default().With("component", "predict.chain"),
	}, nil
}

// NewChainWithLogger creates a backend chain with a custom logger.
func NewChainWithLogger(logger *slog.Logger, backends ...Predictor) (*Chain, error) {
	chain, err := NewChain(backends...)
	if err != nil {
		return nil, err
	}
	chain.logger = logger.With("component", "predict.chain")
	return chain, nil
}

// Predict tries each backend until one returns a valid result.
func (c *Chain) Predict(ctx context.Context, payload imagesource.Payload) (*classify.Result, error) {
	var errs []error

	for i, b := range c.backends {
		result, err := b.Predict(ctx, payload)
		if err == nil {
			err = result.Validate()
		}
		if err == nil {
			if i > 0 {
				c.logger.Info("fallback backend succeeded",
					"backend", b.Name(),
					"backend_index", i,
				)
			}
			return result, nil
		}

		err = Normalize(b.Name(), err)
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		errs = append(errs, err)

		if errors.Is(err, ErrInvalidImage) || errors.Is(err, ErrUnclassifiable) {
			return nil, err
		}

		c.logger.Warn("backend failed, trying next",
			"backend", b.Name(),
			"backend_index", i,
			"error", err,
		)

		if ctx.Err() != nil {
			return nil, Normalize("chain", ctx.Err())
		}
	}

	return nil, &ChainError{Errors: errs}
}

// Health checks all backends and returns error if all are unhealthy.
func (c *Chain) Health(ctx context.Context) error {
	var healthy int
	var lastErr error

	for _, b := range c.backends {
		if err := b.Health(ctx); err != nil {
			lastErr = err
		} else {
			healthy++
		}
	}

	if healthy == 0 {
		return WrapError("chain", lastErr)
	}

	c.logger.Debug("health check complete",
		"healthy", healthy,
		"total", len(c.backends),
	)
	return nil
}

// Name joins the backend names, e.g. "http>sample".
func (c *Chain) Name() string {
	names := make([]string, len(c.backends))
	for i, b := range c.backends {
		names[i] = b.Name()
	}
	return strings.Join(names, ">")
}

// Close closes all backends.
func (c *Chain) Close() error {
	var lastErr error
	for _, b := range c.backends {
		if err := b.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// Backends returns the list of backends in the chain.
func (c *Chain) Backends() []Predictor {
	return c.backends
}

// Verify Chain implements Predictor at compile time.
var _ Predictor = (*Chain)(nil)
