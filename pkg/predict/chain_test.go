package predict

import (
	"context"
	"errors"
	"testing"

	"github.com/teslashibe/go-elephant/pkg/classify"
	"github.com/teslashibe/go-elephant/pkg/imagesource"
)

func TestChainFallback(t *testing.T) {
	ctx := context.Background()

	failing := WithError(&APIError{StatusCode: 503, Message: "down", Backend: "http"})
	working := NewMock()
	working.MockName = "sample"

	chain, err := NewChain(failing, working)
	if err != nil {
		t.Fatalf("Failed to create chain: %v", err)
	}
	defer chain.Close()

	result, err := chain.Predict(ctx, testPayload(t))
	if err != nil {
		t.Fatalf("Chain predict failed: %v", err)
	}
	if result.Species.Class != classify.AfricanBushElephant {
		t.Errorf("Unexpected result: %s", result.Species.Class)
	}
	if working.CallCount("Predict") != 1 {
		t.Errorf("Expected fallback to be called once, got %d", working.CallCount("Predict"))
	}
	if chain.Name() != "mock>sample" {
		t.Errorf("Unexpected chain name %q", chain.Name())
	}
}

func TestChainAllFail(t *testing.T) {
	p1 := WithError(errors.New("connection refused"))
	p2 := WithError(&APIError{StatusCode: 500, Message: "boom"})

	chain, _ := NewChain(p1, p2)
	defer chain.Close()

	_, err := chain.Predict(context.Background(), testPayload(t))
	if err == nil {
		t.Fatal("Expected error when all backends fail")
	}

	var chainErr *ChainError
	if !errors.As(err, &chainErr) {
		t.Fatalf("Expected ChainError, got %T", err)
	}
	if len(chainErr.Errors) != 2 {
		t.Errorf("Expected 2 errors, got %d", len(chainErr.Errors))
	}
	if !errors.Is(err, ErrServiceUnavailable) {
		t.Errorf("Expected ErrServiceUnavailable, got %v", err)
	}
}

func TestChainStopsOnImageErrors(t *testing.T) {
	for _, stop := range []error{ErrInvalidImage, ErrUnclassifiable} {
		t.Run(stop.Error(), func(t *testing.T) {
			first := WithError(WrapError("http", stop))
			second := NewMock()

			chain, _ := NewChain(first, second)
			_, err := chain.Predict(context.Background(), testPayload(t))
			if !errors.Is(err, stop) {
				t.Fatalf("Expected %v, got %v", stop, err)
			}
			if second.CallCount("Predict") != 0 {
				t.Error("Chain should not try the next backend")
			}
		})
	}
}

func TestChainSkipsInvalidResult(t *testing.T) {
	broken := NewMock()
	broken.PredictFunc = func(ctx context.Context, payload imagesource.Payload) (*classify.Result, error) {
		r := classify.SampleResult()
		r.Gender.Probabilities = nil
		return r, nil
	}
	working := NewMock()

	chain, _ := NewChain(broken, working)
	result, err := chain.Predict(context.Background(), testPayload(t))
	if err != nil {
		t.Fatalf("Expected fallback result, got %v", err)
	}
	if len(result.Gender.Probabilities) != 2 {
		t.Error("Expected result from the second backend")
	}
}

func TestChainCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	first := Blocking(make(chan struct{}))
	second := NewMock()

	chain, _ := NewChain(first, second)
	_, err := chain.Predict(ctx, testPayload(t))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	if second.CallCount("Predict") != 0 {
		t.Error("Canceled chain should stop")
	}
}

func TestChainHealth(t *testing.T) {
	chain, _ := NewChain(WithError(errors.New("down")), NewMock())
	if err := chain.Health(context.Background()); err != nil {
		t.Errorf("Expected healthy chain, got %v", err)
	}

	chain, _ = NewChain(WithError(errors.New("down")))
	if err := chain.Health(context.Background()); err == nil {
		t.Error("Expected unhealthy chain")
	}
}

func TestNewChainEmpty(t *testing.T) {
	if _, err := NewChain(); !errors.Is(err, ErrNoBackend) {
		t.Errorf("Expected ErrNoBackend, got %v", err)
	}
}
