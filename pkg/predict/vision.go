package predict

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/teslashibe/go-elephant/internal/httpc"
	"github.com/teslashibe/go-elephant/pkg/classify"
	"github.com/teslashibe/go-elephant/pkg/imagesource"
)

const backendVision = "openai"

const visionPrompt = `You classify photographs of elephants.
Answer with a single JSON object and nothing else, in this shape:
{"species": {"African Bush Elephant": 0-100, "Asian Elephant": 0-100, "African Forest Elephant": 0-100},
 "gender": {"Female": 0-100, "Male": 0-100},
 "age": {"Adult": 0-100, "Juvenile": 0-100, "Calf": 0-100}}
Each number is your confidence in percent. Use exactly these labels.
If the photo shows no elephant, answer {"unclassifiable": true}.`

// Vision classifies images with an OpenAI-compatible vision model.
type Vision struct {
	client *openai.Client
	config *Config
	logger *slog.Logger
}

// NewVision creates a vision-model backend. An API key is required unless
// a custom base URL points at a local server.
func NewVision(opts ...Option) (*Vision, error) {
	cfg := DefaultConfig()
	cfg.BaseURL = ""
	cfg.Apply(opts...)

	if cfg.APIKey == "" && cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: openai backend needs an API key", ErrNoBackend)
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	}
	if cfg.HTTPClient != nil {
		clientConfig.HTTPClient = cfg.HTTPClient
	} else {
		clientConfig.HTTPClient = httpc.NewClient(cfg.Timeout)
	}

	return &Vision{
		client: openai.NewClientWithConfig(clientConfig),
		config: cfg,
		logger: cfg.Logger.With("component", "predict.vision"),
	}, nil
}

// Predict asks the model for a JSON distribution over each label set.
func (v *Vision) Predict(ctx context.Context, payload imagesource.Payload) (*classify.Result, error) {
	if payload.IsZero() {
		return nil, WrapError(backendVision, fmt.Errorf("%w: empty payload", ErrInvalidImage))
	}
	start := time.Now()

	resp, err := v.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       v.config.Model,
		MaxTokens:   v.config.MaxTokens,
		Temperature: float32(v.config.Temperature),
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: visionPrompt,
			},
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type: openai.ChatMessagePartTypeText,
						Text: "Classify the elephant in this photo.",
					},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    payload.DataURL(),
							Detail: openai.ImageURLDetailLow,
						},
					},
				},
			},
		},
	})
	if err != nil {
		return nil, v.mapError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, WrapError(backendVision, fmt.Errorf("%w: no choices returned", ErrServiceUnavailable))
	}

	result, err := ParseVisionAnswer(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, WrapError(backendVision, err)
	}

	v.logger.Debug("vision prediction complete",
		"model", resp.Model,
		"species", result.Species.Class,
		"tokens", resp.Usage.TotalTokens,
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}

// Health lists models to confirm connectivity and credentials.
func (v *Vision) Health(ctx context.Context) error {
	if _, err := v.client.ListModels(ctx); err != nil {
		return v.mapError(err)
	}
	return nil
}

// Name returns "openai".
func (v *Vision) Name() string { return backendVision }

// Close is a no-op.
func (v *Vision) Close() error { return nil }

func (v *Vision) mapError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		e := &APIError{
			StatusCode: apiErr.HTTPStatusCode,
			Message:    apiErr.Message,
			Backend:    backendVision,
		}
		if apiErr.Code != nil {
			e.Code = fmt.Sprint(apiErr.Code)
		}
		return e
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return &APIError{
			StatusCode: reqErr.HTTPStatusCode,
			Message:    fmt.Sprint(reqErr.Err),
			Backend:    backendVision,
		}
	}
	return Normalize(backendVision, err)
}

// visionAnswer is the JSON object the model is asked for.
type visionAnswer struct {
	Species        map[string]float64 `json:"species"`
	Gender         map[string]float64 `json:"gender"`
	Age            map[string]float64 `json:"age"`
	Unclassifiable bool               `json:"unclassifiable"`
}

// ParseVisionAnswer turns a model reply into a result. Anything that is not
// a complete answer over the known labels is ErrUnclassifiable.
func ParseVisionAnswer(content string) (*classify.Result, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var answer visionAnswer
	if err := json.Unmarshal([]byte(content), &answer); err != nil {
		return nil, fmt.Errorf("%w: unreadable answer: %v", ErrUnclassifiable, err)
	}
	if answer.Unclassifiable {
		return nil, fmt.Errorf("%w: model found no elephant", ErrUnclassifiable)
	}

	species, err := outcomeFrom(classify.SpeciesLabels, answer.Species)
	if err != nil {
		return nil, fmt.Errorf("%w: species: %v", ErrUnclassifiable, err)
	}
	gender, err := outcomeFrom(classify.GenderLabels, answer.Gender)
	if err != nil {
		return nil, fmt.Errorf("%w: gender: %v", ErrUnclassifiable, err)
	}
	age, err := outcomeFrom(classify.AgeLabels, answer.Age)
	if err != nil {
		return nil, fmt.Errorf("%w: age: %v", ErrUnclassifiable, err)
	}

	return &classify.Result{Species: species, Gender: gender, Age: age}, nil
}

// outcomeFrom builds a distribution in label-set order. Missing labels
// count as 0; unknown labels are rejected.
func outcomeFrom(labels []string, scores map[string]float64) (classify.Outcome, error) {
	if len(scores) == 0 {
		return classify.Outcome{}, errors.New("no scores")
	}

	canonical := make(map[string]float64, len(scores))
	for name, score := range scores {
		label, ok := classify.CanonicalLabel(labels, name)
		if !ok {
			return classify.Outcome{}, fmt.Errorf("unknown label %q", name)
		}
		if score < 0 || score > 100 || math.IsNaN(score) {
			return classify.Outcome{}, fmt.Errorf("score %v for %q out of range", score, name)
		}
		canonical[label] = math.Round(score*10) / 10
	}

	probs := make([]classify.Probability, len(labels))
	for i, label := range labels {
		probs[i] = classify.Probability{Class: label, Probability: canonical[label]}
	}
	return classify.NewOutcome(probs), nil
}

// Verify Vision implements Predictor at compile time.
var _ Predictor = (*Vision)(nil)
