// Package classifier produces natural-language understanding of page
// elements. Retries, if any, happen inside the provider client.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rcliao/element-memory/internal/model"
)

// Provider constants for classifier selection.
const (
	ProviderOpenAI    = "openai"
	ProviderOllama    = "ollama"
	ProviderGroq      = "groq"
	ProviderHeuristic = "heuristic"
)

// ErrUnusableResponse is returned when a model reply carries no usable
// classification.
var ErrUnusableResponse = errors.New("unusable classifier response")

// Classifier describes one element. The returned payload must contain an
// "understanding" string; "purpose" and "confidence" are optional and any
// other keys are kept verbatim.
type Classifier interface {
	Classify(ctx context.Context, d model.ElementDescriptor) (model.Classification, error)
}

// Config holds classifier configuration.
type Config struct {
	Provider    string  // openai, ollama, groq or heuristic
	APIKey      string  // required for openai and groq
	BaseURL     string  // optional: custom OpenAI-compatible endpoint
	Model       string  // model name; provider default when empty
	MaxTokens   int     // default 400
	Temperature float64 // default 0.3

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.MaxTokens <= 0 {
		c.MaxTokens = 400
	}
	if c.Temperature == 0 {
		c.Temperature = 0.3
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// New creates the Classifier selected by cfg.Provider. An empty provider
// selects the heuristic classifier.
func New(cfg Config) (Classifier, error) {
	cfg.defaults()
	switch cfg.Provider {
	case "", ProviderHeuristic:
		return NewHeuristic(), nil
	case ProviderOpenAI, ProviderOllama, ProviderGroq:
		return NewLLM(cfg)
	default:
		return nil, fmt.Errorf("unsupported classifier provider: %s", cfg.Provider)
	}
}
