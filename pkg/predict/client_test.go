package predict

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"

	"github.com/teslashibe/go-elephant/pkg/classify"
	"github.com/teslashibe/go-elephant/pkg/imagesource"
)

func testPayload(t *testing.T) imagesource.Payload {
	t.Helper()
	p, err := imagesource.FromReader("herd.jpg", "image/jpeg", strings.NewReader("\xff\xd8\xff-jpeg"), 0)
	if err != nil {
		t.Fatalf("payload: %v", err)
	}
	return p
}

func TestClientPredict(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/predict" {
			t.Errorf("Expected /predict, got %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "image/jpeg" {
			t.Errorf("Expected image/jpeg, got %s", ct)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("Expected Bearer test-key, got %s", auth)
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != "\xff\xd8\xff-jpeg" {
			t.Errorf("Unexpected body %q", body)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(classify.SampleResult())
	}))
	defer server.Close()

	client, err := NewClient(
		WithBaseURL(server.URL+"/"),
		WithAPIKey("test-key"),
	)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	defer client.Close()

	result, err := client.Predict(context.Background(), testPayload(t))
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}
	if result.Species.Class != classify.AfricanBushElephant {
		t.Errorf("Unexpected species: %s", result.Species.Class)
	}
	if result.Age.Confidence != 88.9 {
		t.Errorf("Expected age confidence 88.9, got %v", result.Age.Confidence)
	}
}

func TestClientStatusMapping(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
		code    string
		message string
	}{
		{"bad request", 400, `{"detail":"cannot decode image"}`, ErrInvalidImage, "", "cannot decode image"},
		{"too large", 413, ``, ErrInvalidImage, "", "Request Entity Too Large"},
		{"unsupported", 415, `{"error":"unsupported_media_type","message":"heic not supported"}`, ErrInvalidImage, "unsupported_media_type", "heic not supported"},
		{"unprocessable", 422, `{"error":{"message":"corrupt","code":"bad_image"}}`, ErrInvalidImage, "bad_image", "corrupt"},
		{"not found", 404, `not here`, ErrServiceUnavailable, "", "not here"},
		{"unauthorized", 401, `{"error":{"message":"bad key"}}`, ErrServiceUnavailable, "", "bad key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client, _ := NewClient(WithBaseURL(server.URL), WithRetry(0, 0))
			_, err := client.Predict(context.Background(), testPayload(t))
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Expected %v, got %v", tt.wantErr, err)
			}

			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("Expected APIError, got %T", err)
			}
			if apiErr.StatusCode != tt.status {
				t.Errorf("Expected status %d, got %d", tt.status, apiErr.StatusCode)
			}
			if apiErr.Code != tt.code {
				t.Errorf("Expected code %q, got %q", tt.code, apiErr.Code)
			}
			if apiErr.Message != tt.message {
				t.Errorf("Expected message %q, got %q", tt.message, apiErr.Message)
			}
		})
	}
}

func TestClientRetry(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&attempts, 1)
		if n < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"detail":"warming up"}`))
			return
		}
		json.NewEncoder(w).Encode(classify.SampleResult())
	}))
	defer server.Close()

	client, _ := NewClient(
		WithBaseURL(server.URL),
		WithRetry(3, 10*time.Millisecond),
	)

	_, err := client.Predict(context.Background(), testPayload(t))
	if err != nil {
		t.Fatalf("Predict failed after retries: %v", err)
	}
	if atomic.LoadInt32(&attempts) != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
}

func TestClientRetryExhausted(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client, _ := NewClient(WithBaseURL(server.URL), WithRetry(2, time.Millisecond))

	_, err := client.Predict(context.Background(), testPayload(t))
	if !errors.Is(err, ErrServiceUnavailable) {
		t.Fatalf("Expected ErrServiceUnavailable, got %v", err)
	}
	if !Retryable(err) {
		t.Error("Expected retryable error")
	}
	if atomic.LoadInt32(&attempts) != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
}

func TestClientMalformedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"species": [`))
	}))
	defer server.Close()

	client, _ := NewClient(WithBaseURL(server.URL))
	_, err := client.Predict(context.Background(), testPayload(t))
	if !errors.Is(err, ErrServiceUnavailable) {
		t.Errorf("Expected ErrServiceUnavailable, got %v", err)
	}
	if !errors.Is(err, classify.ErrInvalidResult) {
		t.Errorf("Expected ErrInvalidResult, got %v", err)
	}
}

func TestClientDeadlineIsServiceUnavailable(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	client, _ := NewClient(WithBaseURL(server.URL), WithRetry(0, 0))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.Predict(ctx, testPayload(t))
	if !errors.Is(err, ErrServiceUnavailable) {
		t.Fatalf("Expected ErrServiceUnavailable, got %v", err)
	}
}

func TestClientCancelIsNotAResult(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	client, _ := NewClient(WithBaseURL(server.URL), WithRetry(2, time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	result, err := client.Predict(ctx, testPayload(t))
	if result != nil {
		t.Error("Expected no result after cancel")
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
}

func TestClientWithHTTPMock(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder(http.MethodPost, "http://classifier.local/predict",
		func(req *http.Request) (*http.Response, error) {
			if req.Header.Get("Content-Type") != "image/jpeg" {
				return httpmock.NewStringResponse(http.StatusUnsupportedMediaType, "want jpeg"), nil
			}
			return httpmock.NewJsonResponse(http.StatusOK, classify.SampleResult())
		})
	transport.RegisterResponder(http.MethodGet, "http://classifier.local/health",
		httpmock.NewStringResponder(http.StatusOK, `{"status":"ok"}`))

	client, err := NewClient(
		WithBaseURL("http://classifier.local"),
		WithHTTPClient(&http.Client{Transport: transport}),
	)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	if err := client.Health(context.Background()); err != nil {
		t.Fatalf("Health failed: %v", err)
	}

	result, err := client.Predict(context.Background(), testPayload(t))
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}
	if err := result.Validate(); err != nil {
		t.Errorf("Invalid result: %v", err)
	}

	info := transport.GetCallCountInfo()
	if info["POST http://classifier.local/predict"] != 1 {
		t.Errorf("Expected one predict call, got %v", info)
	}
}

func TestClientHealthUnreachable(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterNoResponder(httpmock.ConnectionFailure)

	client, _ := NewClient(
		WithBaseURL("http://classifier.local"),
		WithHTTPClient(&http.Client{Transport: transport}),
	)

	err := client.Health(context.Background())
	if !errors.Is(err, ErrServiceUnavailable) {
		t.Errorf("Expected ErrServiceUnavailable, got %v", err)
	}
}

func TestNewClientRequiresURL(t *testing.T) {
	_, err := NewClient(WithBaseURL(""))
	if !errors.Is(err, ErrNoBackend) {
		t.Errorf("Expected ErrNoBackend, got %v", err)
	}
}
