// Package llm is the text-generation client used to answer questions
// and run whole-document tasks.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	apperrors "github.com/lphhien112-gif/NOTEBOOKLM/internal/errors"
)

// Default configuration values.
const (
	DefaultBaseURL = "http://localhost:11434"
	DefaultModel   = "gemma3:1b"
	DefaultAPIKey  = "ollama"
	DefaultTimeout = 2 * time.Minute
)

// Request is one chat completion: an optional system message, a user
// prompt and a sampling temperature.
type Request struct {
	System      string
	Prompt      string
	Temperature float64
}

// Generator produces text from a prompt.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
	Model() string
}

// Config configures OpenAIClient.
type Config struct {
	// BaseURL is the server root; "/v1" is appended (default: Ollama on localhost).
	BaseURL string
	Model   string
	APIKey  string
	Timeout time.Duration
	// MaxRetries is passed to the client; 0 disables retries.
	MaxRetries int
}

// OpenAIClient talks to any OpenAI-compatible chat completions endpoint,
// Ollama's /v1 API by default.
type OpenAIClient struct {
	client  openai.Client
	model   string
	timeout time.Duration
}

var _ Generator = (*OpenAIClient)(nil)

// NewOpenAIClient creates a client. It does not contact the server.
func NewOpenAIClient(cfg Config) *OpenAIClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.APIKey == "" {
		cfg.APIKey = DefaultAPIKey
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	base := strings.TrimRight(cfg.BaseURL, "/")
	if !strings.HasSuffix(base, "/v1") {
		base += "/v1"
	}

	return &OpenAIClient{
		client: openai.NewClient(
			option.WithBaseURL(base+"/"),
			option.WithAPIKey(cfg.APIKey),
			option.WithMaxRetries(cfg.MaxRetries),
		),
		model:   cfg.Model,
		timeout: cfg.Timeout,
	}
}

// Model returns the configured model name.
func (c *OpenAIClient) Model() string {
	return c.model
}

// Generate sends one chat completion and returns the first choice.
func (c *OpenAIClient) Generate(ctx context.Context, req Request) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	start := time.Now()
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(c.model),
		Messages:    messages,
		Temperature: openai.Float(req.Temperature),
	})
	if err != nil {
		return "", c.wrapError(ctx, err)
	}
	if len(resp.Choices) == 0 {
		return "", apperrors.New(apperrors.ErrCodeGenerationUnavailable, "model returned no choices", nil).
			WithDetail("model", c.model)
	}

	slog.Debug("generation_completed",
		slog.String("model", c.model),
		slog.Float64("temperature", req.Temperature),
		slog.Int("prompt_chars", len(req.Prompt)),
		slog.Duration("duration", time.Since(start)))
	return resp.Choices[0].Message.Content, nil
}

func (c *OpenAIClient) wrapError(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return apperrors.New(apperrors.ErrCodeNetworkTimeout,
			fmt.Sprintf("generation timed out after %s", c.timeout), err).
			WithDetail("model", c.model)
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apperrors.New(apperrors.ErrCodeGenerationUnavailable,
			fmt.Sprintf("generation failed with status %d", apiErr.StatusCode), err).
			WithDetail("model", c.model).
			WithSuggestion(fmt.Sprintf("Check that the model is available: ollama pull %s", c.model))
	}
	return apperrors.New(apperrors.ErrCodeGenerationUnavailable, "generation service unreachable", err).
		WithDetail("model", c.model).
		WithSuggestion("Start Ollama with 'ollama serve' or set llm.base_url")
}
