package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-elephant/internal/config"
	"github.com/teslashibe/go-elephant/internal/metrics"
	"github.com/teslashibe/go-elephant/pkg/classify"
	"github.com/teslashibe/go-elephant/pkg/detect"
	"github.com/teslashibe/go-elephant/pkg/imagesource"
	"github.com/teslashibe/go-elephant/pkg/predict"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Chdir(t.TempDir())
	cfg, err := config.Load(config.New(), "")
	require.NoError(t, err)
	cfg.Predict.Sample.Delay = 0
	cfg.Predict.HTTP.MaxRetries = 0
	return cfg
}

func payload(t *testing.T) imagesource.Payload {
	t.Helper()
	p, err := imagesource.FromReader("herd.jpg", "image/jpeg", strings.NewReader("jpeg"), 0)
	require.NoError(t, err)
	return p
}

func TestBuildSample(t *testing.T) {
	cfg := testConfig(t)
	cfg.Predict.Backend = config.BackendSample

	p, err := Build(cfg, nil, nil)
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, "sample", p.Name())
	result, err := p.Predict(context.Background(), payload(t))
	require.NoError(t, err)
	assert.Equal(t, classify.AfricanBushElephant, result.Species.Class)
}

func TestBuildFallbackChain(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"detail": "model loading"})
	}))
	defer server.Close()

	cfg := testConfig(t)
	cfg.Predict.HTTP.URL = server.URL
	cfg.Predict.Fallback = []string{config.BackendSample}

	m, err := metrics.New(prometheus.NewRegistry(), nil)
	require.NoError(t, err)

	p, err := Build(cfg, nil, m)
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, "http>sample", p.Name())

	result, err := p.Predict(context.Background(), payload(t))
	require.NoError(t, err)
	assert.Equal(t, 92.3, result.Species.Confidence)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.PredictionsTotal.WithLabelValues("http", predict.OutcomeServiceUnavailable)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PredictionsTotal.WithLabelValues("sample", predict.OutcomeOK)))
}

func TestBuildAppliesFloorAndTimeout(t *testing.T) {
	cfg := testConfig(t)
	cfg.Predict.Backend = config.BackendSample
	cfg.Predict.MinConfidence = 95

	p, err := Build(cfg, nil, nil)
	require.NoError(t, err)
	_, err = p.Predict(context.Background(), payload(t))
	assert.ErrorIs(t, err, predict.ErrUnclassifiable)

	cfg.Predict.MinConfidence = 0
	cfg.Predict.Sample.Delay = time.Second
	cfg.Predict.Timeout = 20 * time.Millisecond
	p, err = Build(cfg, nil, nil)
	require.NoError(t, err)
	_, err = p.Predict(context.Background(), payload(t))
	assert.ErrorIs(t, err, predict.ErrServiceUnavailable)
}

func TestNewErrors(t *testing.T) {
	cfg := testConfig(t)
	cfg.Predict.ONNX.ModelPath = filepath.Join(t.TempDir(), "missing.onnx")

	tests := []string{"carrier-pigeon", config.BackendOpenAI, config.BackendONNX}
	for _, name := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := New(name, cfg, nil)
			assert.ErrorIs(t, err, predict.ErrNoBackend)
		})
	}

	cfg.Predict.Backend = config.BackendSample
	cfg.Predict.Fallback = []string{config.BackendOpenAI}
	_, err := Build(cfg, nil, nil)
	assert.ErrorIs(t, err, predict.ErrNoBackend)
}

func TestNewOpenAI(t *testing.T) {
	cfg := testConfig(t)
	cfg.Predict.OpenAI.APIKey = "sk-test"

	p, err := New(config.BackendOpenAI, cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, "openai", p.Name())
}

func TestBuildGateMissingModel(t *testing.T) {
	cfg := testConfig(t)
	cfg.Predict.Backend = config.BackendSample
	cfg.Predict.Gate.ModelPath = filepath.Join(t.TempDir(), "yolov8n.onnx")

	_, err := Build(cfg, nil, nil)
	assert.ErrorIs(t, err, detect.ErrNoModel)
}
