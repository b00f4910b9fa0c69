package predict

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/teslashibe/go-elephant/internal/httpc"
	"github.com/teslashibe/go-elephant/pkg/classify"
	"github.com/teslashibe/go-elephant/pkg/imagesource"
)

const backendHTTP = "http"

// maxErrorBody caps how much of an error response is read.
const maxErrorBody = 64 << 10

// Client is the HTTP prediction backend.
// It posts the encoded image as the request body and expects the
// classification result as JSON.
type Client struct {
	baseURL string
	apiKey  string
	config  *Config
	http    *http.Client
	logger  *slog.Logger
}

// NewClient creates a new prediction client.
func NewClient(opts ...Option) (*Client, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		return nil, fmt.Errorf("%w: http backend needs a base URL", ErrNoBackend)
	}

	hc := cfg.HTTPClient
	if hc == nil {
		hc = httpc.NewClient(cfg.Timeout)
	}

	return &Client{
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
		config:  cfg,
		http:    hc,
		logger:  cfg.Logger.With("component", "predict.client"),
	}, nil
}

// Predict sends the image to {base}/predict.
func (c *Client) Predict(ctx context.Context, payload imagesource.Payload) (*classify.Result, error) {
	if payload.IsZero() {
		return nil, WrapError(backendHTTP, fmt.Errorf("%w: empty payload", ErrInvalidImage))
	}
	start := time.Now()

	body := payload.Bytes()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/predict", bytes.NewReader(body))
	if err != nil {
		return nil, WrapError(backendHTTP, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", payload.MIMEType())
	req.Header.Set("Accept", "application/json")
	if name := payload.Name(); name != "" {
		req.Header.Set("X-Filename", name)
	}
	c.authorize(req)

	resp, err := c.doWithRetry(ctx, req, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseError(resp)
	}

	var result classify.Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, WrapError(backendHTTP, fmt.Errorf("%w: %w: decode response: %v",
			ErrServiceUnavailable, classify.ErrInvalidResult, err))
	}

	c.logger.Debug("prediction complete",
		"species", result.Species.Class,
		"confidence", result.Species.Confidence,
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return &result, nil
}

// Health checks {base}/health.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return WrapError(backendHTTP, fmt.Errorf("create request: %w", err))
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return Normalize(backendHTTP, fmt.Errorf("health check: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.parseError(resp)
	}
	return nil
}

// Name returns "http".
func (c *Client) Name() string { return backendHTTP }

// Close releases idle connections.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

// doWithRetry performs the request, retrying transport failures, 429 and
// 5xx with a linear back-off.
func (c *Client) doWithRetry(ctx context.Context, req *http.Request, body []byte) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, Normalize(backendHTTP, ctx.Err())
			case <-time.After(c.config.RetryDelay * time.Duration(attempt)):
			}
			req.Body = io.NopCloser(bytes.NewReader(body))
		}

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, Normalize(backendHTTP, ctx.Err())
			}
			lastErr = Normalize(backendHTTP, err)
			c.logger.Warn("request failed, retrying",
				"attempt", attempt+1,
				"error", err,
			)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = c.parseError(resp)
			resp.Body.Close()
			c.logger.Warn("retrying request",
				"attempt", attempt+1,
				"status", resp.StatusCode,
			)
			continue
		}

		return resp, nil
	}

	return nil, lastErr
}

// parseError reads an error response. It understands {"error":{"message"}},
// {"error":"code","message":"..."} and {"detail":"..."} bodies.
func (c *Client) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var errResp struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
		Detail  string          `json:"detail"`
	}

	message := strings.TrimSpace(string(body))
	code := ""
	if json.Unmarshal(body, &errResp) == nil {
		var nested struct {
			Message string `json:"message"`
			Code    string `json:"code"`
		}
		var flat string
		switch {
		case json.Unmarshal(errResp.Error, &nested) == nil && nested.Message != "":
			message, code = nested.Message, nested.Code
		case json.Unmarshal(errResp.Error, &flat) == nil && flat != "":
			code = flat
			if errResp.Message != "" {
				message = errResp.Message
			}
		case errResp.Detail != "":
			message = errResp.Detail
		case errResp.Message != "":
			message = errResp.Message
		}
	}
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    message,
		Code:       code,
		Backend:    backendHTTP,
	}
}

// Verify Client implements Predictor at compile time.
var _ Predictor = (*Client)(nil)
