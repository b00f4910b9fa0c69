package predict

import (
	"context"
	"sync"
	"time"

	"github.com/teslashibe/go-elephant/pkg/classify"
	"github.com/teslashibe/go-elephant/pkg/imagesource"
)

// Mock implements Predictor for testing.
type Mock struct {
	// PredictFunc is called when Predict is invoked.
	PredictFunc func(ctx context.Context, payload imagesource.Payload) (*classify.Result, error)

	// HealthFunc is called when Health is invoked.
	HealthFunc func(ctx context.Context) error

	// CloseFunc is called when Close is invoked.
	CloseFunc func() error

	// MockName overrides the name reported by Name.
	MockName string

	mu    sync.Mutex
	calls []MockCall
}

// MockCall records a method invocation.
type MockCall struct {
	Method  string
	Time    time.Time
	Payload imagesource.Payload
}

// NewMock creates a mock returning the sample result immediately.
func NewMock() *Mock {
	return &Mock{
		PredictFunc: func(ctx context.Context, payload imagesource.Payload) (*classify.Result, error) {
			return classify.SampleResult(), nil
		},
		HealthFunc: func(ctx context.Context) error {
			return nil
		},
	}
}

// Predict calls PredictFunc and records the call.
func (m *Mock) Predict(ctx context.Context, payload imagesource.Payload) (*classify.Result, error) {
	m.record("Predict", payload)
	if m.PredictFunc != nil {
		return m.PredictFunc(ctx, payload)
	}
	return nil, WrapError(m.Name(), ErrServiceUnavailable)
}

// Health calls HealthFunc and records the call.
func (m *Mock) Health(ctx context.Context) error {
	m.record("Health", imagesource.Payload{})
	if m.HealthFunc != nil {
		return m.HealthFunc(ctx)
	}
	return nil
}

// Name returns MockName or "mock".
func (m *Mock) Name() string {
	if m.MockName != "" {
		return m.MockName
	}
	return "mock"
}

// Close calls CloseFunc and records the call.
func (m *Mock) Close() error {
	m.record("Close", imagesource.Payload{})
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

func (m *Mock) record(method string, payload imagesource.Payload) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockCall{
		Method:  method,
		Time:    time.Now(),
		Payload: payload,
	})
}

// Calls returns all recorded method calls.
func (m *Mock) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]MockCall, len(m.calls))
	copy(result, m.calls)
	return result
}

// CallCount returns the number of times a method was called.
func (m *Mock) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, c := range m.calls {
		if c.Method == method {
			count++
		}
	}
	return count
}

// LastCall returns the most recent call, or nil if none.
func (m *Mock) LastCall() *MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return nil
	}
	call := m.calls[len(m.calls)-1]
	return &call
}

// Reset clears all recorded calls.
func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

// WithError returns a mock that always returns the given error.
func WithError(err error) *Mock {
	return &Mock{
		PredictFunc: func(ctx context.Context, payload imagesource.Payload) (*classify.Result, error) {
			return nil, err
		},
		HealthFunc: func(ctx context.Context) error {
			return err
		},
	}
}

// Blocking returns a mock whose Predict waits for release or for ctx.
// Closing release lets pending calls return the sample result.
func Blocking(release <-chan struct{}) *Mock {
	return &Mock{
		PredictFunc: func(ctx context.Context, payload imagesource.Payload) (*classify.Result, error) {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-release:
				return classify.SampleResult(), nil
			}
		},
	}
}

// Verify Mock implements Predictor at compile time.
var _ Predictor = (*Mock)(nil)
