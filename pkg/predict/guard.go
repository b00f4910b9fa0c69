package predict

import (
	"context"
	"fmt"
	"time"

	"github.com/teslashibe/go-elephant/pkg/classify"
	"github.com/teslashibe/go-elephant/pkg/imagesource"
)

// Finalize validates a backend result, checks every class against the
// label sets and applies the confidence floor. A species confidence below
// floor is ErrUnclassifiable; floor 0 disables the check.
func Finalize(result *classify.Result, floor float64) (*classify.Result, error) {
	if err := result.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrServiceUnavailable, err)
	}
	if err := result.CheckLabels(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrServiceUnavailable, err)
	}
	if floor > 0 && result.Species.Confidence < floor {
		return nil, fmt.Errorf("%w: species confidence %.1f below %.1f",
			ErrUnclassifiable, result.Species.Confidence, floor)
	}
	return result, nil
}

// guarded wraps a predictor with the policies every caller expects.
type guarded struct {
	next    Predictor
	timeout time.Duration
	floor   float64
}

// Guard wraps p so each prediction runs under timeout (0 leaves only the
// caller's deadline), errors are normalized and results pass Finalize.
func Guard(p Predictor, timeout time.Duration, floor float64) Predictor {
	return &guarded{next: p, timeout: timeout, floor: floor}
}

func (g *guarded) Predict(ctx context.Context, payload imagesource.Payload) (*classify.Result, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	result, err := g.next.Predict(ctx, payload)
	if err != nil {
		return nil, Normalize(g.next.Name(), err)
	}
	// a result that arrives after cancellation is not delivered
	if err := ctx.Err(); err != nil {
		return nil, Normalize(g.next.Name(), err)
	}

	result, err = Finalize(result, g.floor)
	if err != nil {
		return nil, WrapError(g.next.Name(), err)
	}
	return result, nil
}

func (g *guarded) Health(ctx context.Context) error { return g.next.Health(ctx) }
func (g *guarded) Name() string                     { return g.next.Name() }
func (g *guarded) Close() error                     { return g.next.Close() }

// Unwrap returns the wrapped predictor.
func (g *guarded) Unwrap() Predictor { return g.next }

// Verify guarded implements Predictor at compile time.
var _ Predictor = (*guarded)(nil)
