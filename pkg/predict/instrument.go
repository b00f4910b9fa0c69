package predict

import (
	"context"
	"errors"
	"time"

	"github.com/teslashibe/go-elephant/pkg/classify"
	"github.com/teslashibe/go-elephant/pkg/imagesource"
)

// Outcome labels reported to observers.
const (
	OutcomeOK                 = "ok"
	OutcomeInvalidImage       = "invalid_image"
	OutcomeServiceUnavailable = "service_unavailable"
	OutcomeUnclassifiable     = "unclassifiable"
	OutcomeCanceled           = "canceled"
)

// Observer receives one call per finished prediction.
type Observer interface {
	ObservePrediction(backend, outcome string, elapsed time.Duration)
}

// OutcomeOf maps a prediction error onto an outcome label.
func OutcomeOf(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, context.Canceled):
		return OutcomeCanceled
	case errors.Is(err, ErrInvalidImage):
		return OutcomeInvalidImage
	case errors.Is(err, ErrUnclassifiable):
		return OutcomeUnclassifiable
	default:
		return OutcomeServiceUnavailable
	}
}

type instrumented struct {
	next Predictor
	obs  Observer
}

// Instrument reports every prediction made through p to obs.
func Instrument(p Predictor, obs Observer) Predictor {
	if obs == nil {
		return p
	}
	return &instrumented{next: p, obs: obs}
}

func (i *instrumented) Predict(ctx context.Context, payload imagesource.Payload) (*classify.Result, error) {
	start := time.Now()
	result, err := i.next.Predict(ctx, payload)
	i.obs.ObservePrediction(i.next.Name(), OutcomeOf(err), time.Since(start))
	return result, err
}

func (i *instrumented) Health(ctx context.Context) error { return i.next.Health(ctx) }
func (i *instrumented) Name() string                     { return i.next.Name() }
func (i *instrumented) Close() error                     { return i.next.Close() }

// Verify instrumented implements Predictor at compile time.
var _ Predictor = (*instrumented)(nil)
