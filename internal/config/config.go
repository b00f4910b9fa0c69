// Package config loads service settings from an optional YAML file,
// ELEPHANT_* environment variables and a .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/teslashibe/go-elephant/pkg/camera"
	"github.com/teslashibe/go-elephant/pkg/imagesource"
	"github.com/teslashibe/go-elephant/pkg/predict"
	"github.com/teslashibe/go-elephant/pkg/session"
)

// EnvPrefix prefixes every environment override, e.g. ELEPHANT_SERVER_PORT.
const EnvPrefix = "ELEPHANT"

// Backend names accepted by predict.backend and predict.fallback.
const (
	BackendHTTP   = "http"
	BackendOpenAI = "openai"
	BackendONNX   = "onnx"
	BackendSample = "sample"
)

// Config is the full service configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Log     LogConfig     `mapstructure:"log"`
	Upload  UploadConfig  `mapstructure:"upload"`
	Predict PredictConfig `mapstructure:"predict"`
	Camera  CameraConfig  `mapstructure:"camera"`
	Session SessionConfig `mapstructure:"session"`
	Species SpeciesConfig `mapstructure:"species"`
}

type ServerConfig struct {
	Port        int    `mapstructure:"port"`
	StaticDir   string `mapstructure:"static_dir"`
	BodyLimitMB int    `mapstructure:"body_limit_mb"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type UploadConfig struct {
	MaxBytes int64 `mapstructure:"max_bytes"`
}

type PredictConfig struct {
	Backend       string        `mapstructure:"backend"`
	Fallback      []string      `mapstructure:"fallback"`
	Timeout       time.Duration `mapstructure:"timeout"`
	MinConfidence float64       `mapstructure:"min_confidence"`
	HTTP          HTTPBackend   `mapstructure:"http"`
	OpenAI        OpenAIBackend `mapstructure:"openai"`
	ONNX          ONNXBackend   `mapstructure:"onnx"`
	Sample        SampleBackend `mapstructure:"sample"`
	Gate          GateConfig    `mapstructure:"gate"`
}

type HTTPBackend struct {
	URL        string        `mapstructure:"url"`
	APIKey     string        `mapstructure:"api_key"`
	MaxRetries int           `mapstructure:"max_retries"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
}

type OpenAIBackend struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
}

type ONNXBackend struct {
	ModelPath    string `mapstructure:"model_path"`
	MetadataPath string `mapstructure:"metadata_path"`
	LibraryPath  string `mapstructure:"library_path"`
}

type SampleBackend struct {
	Delay time.Duration `mapstructure:"delay"`
}

// GateConfig enables the elephant detector in front of the backends when
// ModelPath is set.
type GateConfig struct {
	ModelPath  string  `mapstructure:"model_path"`
	Confidence float64 `mapstructure:"confidence"`
	// MinArea is the smallest elephant box, as a fraction of the frame.
	MinArea float64 `mapstructure:"min_area"`
}

type CameraConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	Preset       string `mapstructure:"preset"`
	Device       int    `mapstructure:"device"`
	Facing       string `mapstructure:"facing"`
	Width        int    `mapstructure:"width"`
	Height       int    `mapstructure:"height"`
	Quality      int    `mapstructure:"quality"`
	WarmupFrames int    `mapstructure:"warmup_frames"`
	MaxDevices   int    `mapstructure:"max_devices"`
	// FacingMap labels device indexes, e.g. {"0": "environment", "1": "user"}.
	FacingMap map[string]string `mapstructure:"facing_map"`
}

type SessionConfig struct {
	TTL             time.Duration `mapstructure:"ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

type SpeciesConfig struct {
	Catalog string `mapstructure:"catalog"`
}

// ValidationError collects every configuration problem found.
type ValidationError struct {
	Errors []string
}

func (ve ValidationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s", strings.Join(ve.Errors, "; "))
}

// New returns a viper instance with defaults and environment bindings.
// Callers may bind command-line flags to it before Load.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func setDefaults(v *viper.Viper) {
	cam := camera.DefaultConfig()

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.static_dir", "")
	v.SetDefault("server.body_limit_mb", 12)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "")

	v.SetDefault("upload.max_bytes", imagesource.DefaultMaxBytes)

	v.SetDefault("predict.backend", BackendHTTP)
	v.SetDefault("predict.fallback", []string{})
	v.SetDefault("predict.timeout", 30*time.Second)
	v.SetDefault("predict.min_confidence", 0.0)

	httpDefaults := predict.DefaultConfig()
	v.SetDefault("predict.http.url", httpDefaults.BaseURL)
	v.SetDefault("predict.http.api_key", "")
	v.SetDefault("predict.http.max_retries", httpDefaults.MaxRetries)
	v.SetDefault("predict.http.retry_delay", httpDefaults.RetryDelay)

	v.SetDefault("predict.openai.api_key", "")
	v.SetDefault("predict.openai.base_url", "")
	v.SetDefault("predict.openai.model", httpDefaults.Model)

	v.SetDefault("predict.onnx.model_path", "")
	v.SetDefault("predict.onnx.metadata_path", "")
	v.SetDefault("predict.onnx.library_path", "")

	v.SetDefault("predict.sample.delay", predict.DefaultSampleDelay)

	v.SetDefault("predict.gate.model_path", "")
	v.SetDefault("predict.gate.confidence", 0.4)
	v.SetDefault("predict.gate.min_area", 0.01)

	v.SetDefault("camera.enabled", true)
	v.SetDefault("camera.preset", "")
	// zero values defer to the preset; see CameraConfig
	v.SetDefault("camera.device", cam.DeviceID)
	v.SetDefault("camera.facing", "")
	v.SetDefault("camera.width", 0)
	v.SetDefault("camera.height", 0)
	v.SetDefault("camera.quality", 0)
	v.SetDefault("camera.warmup_frames", -1)
	v.SetDefault("camera.max_devices", 4)
	v.SetDefault("camera.facing_map", map[string]string{})

	v.SetDefault("session.ttl", session.DefaultTTL)
	v.SetDefault("session.cleanup_interval", session.DefaultCleanupInterval)

	v.SetDefault("species.catalog", "")
}

// Load reads .env, then path (or ./elephant.yaml when path is empty and
// the file exists), and returns a validated Config.
func Load(v *viper.Viper, path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("elephant")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	// comma-separated env values arrive as a single element
	cfg.Predict.Fallback = splitList(cfg.Predict.Fallback)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports all problems at once.
func (c *Config) Validate() error {
	ve := ValidationError{}
	add := func(format string, args ...any) {
		ve.Errors = append(ve.Errors, fmt.Sprintf(format, args...))
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		add("server.port %d out of range", c.Server.Port)
	}
	if c.Server.BodyLimitMB < 1 {
		add("server.body_limit_mb must be positive")
	}
	if c.Upload.MaxBytes < 1 {
		add("upload.max_bytes must be positive")
	} else if int64(c.Server.BodyLimitMB)<<20 < c.Upload.MaxBytes {
		add("server.body_limit_mb is smaller than upload.max_bytes")
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		add("log.level %q unknown", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		add("log.format %q unknown", c.Log.Format)
	}

	backends := append([]string{c.Predict.Backend}, c.Predict.Fallback...)
	for _, b := range backends {
		switch b {
		case BackendHTTP:
			if c.Predict.HTTP.URL == "" {
				add("predict.http.url is required for the http backend")
			}
		case BackendOpenAI:
			if c.Predict.OpenAI.APIKey == "" && c.Predict.OpenAI.BaseURL == "" {
				add("predict.openai.api_key or predict.openai.base_url is required for the openai backend")
			}
		case BackendONNX:
			if c.Predict.ONNX.ModelPath == "" {
				add("predict.onnx.model_path is required for the onnx backend")
			}
		case BackendSample:
		default:
			add("predict backend %q unknown", b)
		}
	}
	if c.Predict.Timeout <= 0 {
		add("predict.timeout must be positive")
	}
	if c.Predict.MinConfidence < 0 || c.Predict.MinConfidence > 100 {
		add("predict.min_confidence must be within 0..100")
	}
	if c.Predict.HTTP.MaxRetries < 0 {
		add("predict.http.max_retries must not be negative")
	}
	if c.Predict.Gate.Confidence <= 0 || c.Predict.Gate.Confidence >= 1 {
		add("predict.gate.confidence must be within (0, 1)")
	}
	if c.Predict.Gate.MinArea < 0 || c.Predict.Gate.MinArea >= 1 {
		add("predict.gate.min_area must be within [0, 1)")
	}

	if c.Camera.Preset != "" {
		if camera.GetPreset(c.Camera.Preset) == nil {
			add("camera.preset %q unknown", c.Camera.Preset)
		}
	}
	if _, err := c.FacingMap(); err != nil {
		add("%v", err)
	}
	cam := c.CameraConfig()
	for _, msg := range cam.Validate() {
		add("camera: %s", msg)
	}

	if c.Session.TTL <= 0 {
		add("session.ttl must be positive")
	}
	if c.Session.CleanupInterval < 0 {
		add("session.cleanup_interval must not be negative")
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

// CameraConfig builds capture settings: the preset (or the default) first,
// then every key that was given a value.
func (c *Config) CameraConfig() camera.Config {
	cfg := camera.DefaultConfig()
	if p := camera.GetPreset(c.Camera.Preset); p != nil {
		cfg = *p
	}
	if c.Camera.Device >= 0 {
		cfg.DeviceID = c.Camera.Device
	}
	if c.Camera.Facing != "" {
		cfg.Facing = camera.Facing(c.Camera.Facing)
	}
	if c.Camera.Width > 0 {
		cfg.Width = c.Camera.Width
	}
	if c.Camera.Height > 0 {
		cfg.Height = c.Camera.Height
	}
	if c.Camera.Quality > 0 {
		cfg.Quality = c.Camera.Quality
	}
	if c.Camera.WarmupFrames >= 0 {
		cfg.WarmupFrames = c.Camera.WarmupFrames
	}
	return cfg
}

// FacingMap parses camera.facing_map into device index to facing.
func (c *Config) FacingMap() (map[int]camera.Facing, error) {
	out := make(map[int]camera.Facing, len(c.Camera.FacingMap))
	for k, v := range c.Camera.FacingMap {
		id, err := strconv.Atoi(k)
		if err != nil {
			return nil, fmt.Errorf("camera.facing_map key %q is not a device index", k)
		}
		f := camera.Facing(strings.ToLower(v))
		switch f {
		case camera.FacingEnvironment, camera.FacingUser, camera.FacingAny:
		default:
			return nil, fmt.Errorf("camera.facing_map[%s] facing %q unknown", k, v)
		}
		out[id] = f
	}
	return out, nil
}

// BodyLimit returns the HTTP body limit in bytes.
func (c *Config) BodyLimit() int {
	return c.Server.BodyLimitMB << 20
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return ":" + strconv.Itoa(c.Server.Port)
}

func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.FieldsFunc(item, func(r rune) bool { return r == ',' || r == ' ' }) {
			out = append(out, part)
		}
	}
	return out
}
