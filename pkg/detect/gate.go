package detect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/teslashibe/go-elephant/internal/log"
	"github.com/teslashibe/go-elephant/pkg/classify"
	"github.com/teslashibe/go-elephant/pkg/imagesource"
	"github.com/teslashibe/go-elephant/pkg/predict"
)

// ErrNoElephant is returned when the detector finds no elephant.
var ErrNoElephant = errors.New("detect: no elephant in image")

// GateConfig tunes the gate.
type GateConfig struct {
	// MinArea is the smallest box, as a fraction of the frame, that counts
	// as an elephant worth classifying. 0 accepts any box.
	MinArea float64
	Logger  *slog.Logger
}

// Gate runs a detector before the wrapped predictor and rejects images
// without a prominent elephant as unclassifiable.
type Gate struct {
	next     predict.Predictor
	detector Detector
	minArea  float64
	logger   *slog.Logger
}

// NewGate wraps p. The gate owns d and closes it with p.
func NewGate(p predict.Predictor, d Detector, cfg GateConfig) *Gate {
	if cfg.Logger == nil {
		cfg.Logger = log.Discard()
	}
	return &Gate{
		next:     p,
		detector: d,
		minArea:  cfg.MinArea,
		logger:   cfg.Logger.With("component", "gate"),
	}
}

// Predict checks for an elephant, then classifies.
func (g *Gate) Predict(ctx context.Context, payload imagesource.Payload) (*classify.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dets, err := g.detector.Detect(payload.Bytes())
	if err != nil {
		if errors.Is(err, ErrDecode) {
			return nil, predict.WrapError(g.Name(), fmt.Errorf("%w: %w", predict.ErrInvalidImage, err))
		}
		return nil, predict.WrapError(g.Name(), fmt.Errorf("%w: %w", predict.ErrServiceUnavailable, err))
	}
	best := SelectBest(Filter(dets, ClassElephant))
	if best == nil {
		return nil, predict.WrapError(g.Name(), fmt.Errorf("%w: %w", predict.ErrUnclassifiable, ErrNoElephant))
	}
	if best.Area() < g.minArea {
		return nil, predict.WrapError(g.Name(), fmt.Errorf("%w: %w: box covers %.1f%% of the frame",
			predict.ErrUnclassifiable, ErrNoElephant, best.Area()*100))
	}

	cx, cy := best.Center()
	g.logger.Debug("elephant detected",
		"confidence", best.Confidence,
		"area", best.Area(),
		"center_x", cx,
		"center_y", cy,
	)
	return g.next.Predict(ctx, payload)
}

// Health reports the wrapped predictor's health.
func (g *Gate) Health(ctx context.Context) error {
	return g.next.Health(ctx)
}

// Name is the wrapped predictor's name.
func (g *Gate) Name() string {
	return g.next.Name()
}

// Close releases the detector and the wrapped predictor.
func (g *Gate) Close() error {
	return errors.Join(g.detector.Close(), g.next.Close())
}

var _ predict.Predictor = (*Gate)(nil)
