package predict

import (
	"context"
	"fmt"
	"time"

	"github.com/teslashibe/go-elephant/pkg/classify"
	"github.com/teslashibe/go-elephant/pkg/imagesource"
)

const backendSample = "sample"

// DefaultSampleDelay matches the pause the demo showed before its result.
const DefaultSampleDelay = 1500 * time.Millisecond

// Sample answers every image with classify.SampleResult after a fixed
// delay. It must be selected explicitly and is never used as a fallback.
type Sample struct {
	Delay time.Duration
}

// NewSample creates the sample backend.
func NewSample(delay time.Duration) *Sample {
	return &Sample{Delay: delay}
}

// Predict waits for the delay, honoring cancellation.
func (s *Sample) Predict(ctx context.Context, payload imagesource.Payload) (*classify.Result, error) {
	if payload.IsZero() {
		return nil, WrapError(backendSample, fmt.Errorf("%w: empty payload", ErrInvalidImage))
	}
	if s.Delay > 0 {
		timer := time.NewTimer(s.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, Normalize(backendSample, ctx.Err())
		case <-timer.C:
		}
	}
	return classify.SampleResult(), nil
}

// Health always succeeds.
func (s *Sample) Health(ctx context.Context) error { return nil }

// Name returns "sample".
func (s *Sample) Name() string { return backendSample }

// Close is a no-op.
func (s *Sample) Close() error { return nil }

// Verify Sample implements Predictor at compile time.
var _ Predictor = (*Sample)(nil)
