// Package predict turns an image payload into a classification result.
//
// Every backend satisfies Predictor: an HTTP prediction service, an
// OpenAI-compatible vision model, a local ONNX model and the fixed sample.
// Backends can be stacked in a Chain for failover and wrapped with Guard,
// which applies the timeout, result validation and confidence floor that
// every caller relies on.
//
// Example usage:
//
//	client, _ := predict.NewClient(
//	    predict.WithBaseURL("http://classifier:8000"),
//	    predict.WithRetry(2, 200*time.Millisecond),
//	)
//	p := predict.Guard(client, 30*time.Second, 40)
//	defer p.Close()
//
//	result, err := p.Predict(ctx, payload)
package predict

import (
	"context"

	"github.com/teslashibe/go-elephant/pkg/classify"
	"github.com/teslashibe/go-elephant/pkg/imagesource"
)

// Predictor is the unified prediction interface.
// All implementations must satisfy this interface.
type Predictor interface {
	// Predict classifies one image. It returns exactly one of a result or
	// an error; it never substitutes placeholder data on failure.
	Predict(ctx context.Context, payload imagesource.Payload) (*classify.Result, error)

	// Health checks backend connectivity.
	Health(ctx context.Context) error

	// Name identifies the backend in logs and metrics.
	Name() string

	// Close releases any resources held by the backend.
	Close() error
}
