package classifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/rcliao/element-memory/internal/model"
)

const (
	ollamaBaseURL = "http://localhost:11434/v1"
	groqBaseURL   = "https://api.groq.com/openai/v1"
)

var defaultModels = map[string]string{
	ProviderOpenAI: "gpt-4o",
	ProviderOllama: "llama3.1",
	ProviderGroq:   "llama-3.1-8b-instant",
}

// LLM classifies elements through an OpenAI-compatible chat completion API.
type LLM struct {
	client      openai.Client
	model       string
	maxTokens   int
	temperature float64
	log         *slog.Logger
}

// NewLLM creates an LLM classifier for the openai, ollama or groq provider.
func NewLLM(cfg Config) (*LLM, error) {
	cfg.defaults()

	baseURL := cfg.BaseURL
	apiKey := cfg.APIKey
	switch cfg.Provider {
	case ProviderOpenAI:
		if apiKey == "" {
			return nil, errors.New("openai provider requires an API key")
		}
	case ProviderGroq:
		if apiKey == "" {
			return nil, errors.New("groq provider requires an API key")
		}
		if baseURL == "" {
			baseURL = groqBaseURL
		}
	case ProviderOllama:
		if baseURL == "" {
			baseURL = ollamaBaseURL
		}
		if apiKey == "" {
			apiKey = "ollama"
		}
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	name := cfg.Model
	if name == "" {
		name = defaultModels[cfg.Provider]
	}

	return &LLM{
		client:      openai.NewClient(opts...),
		model:       name,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		log:         cfg.Logger,
	}, nil
}

// Model returns the model name sent with each request.
func (c *LLM) Model() string {
	return c.model
}

func (c *LLM) Classify(ctx context.Context, d model.ElementDescriptor) (model.Classification, error) {
	params := openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(BuildPrompt(d)),
		},
		MaxTokens:   openai.Int(int64(c.maxTokens)),
		Temperature: openai.Float(c.temperature),
	}

	start := time.Now()
	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices in response", ErrUnusableResponse)
	}

	c.log.DebugContext(ctx, "classifier: chat completed",
		"model", c.model,
		"duration_ms", time.Since(start).Milliseconds(),
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
		"finish_reason", resp.Choices[0].FinishReason)

	return ParseResponse(resp.Choices[0].Message.Content)
}
