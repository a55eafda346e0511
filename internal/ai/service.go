// Package ai provides the LLM provider clients backing the `llm`
// policy predicate. The interpreter only sees the Classifier interface;
// the concrete provider is chosen by configuration.
package ai

import (
	"context"
	"time"
)

// Classifier answers a classification prompt against a text payload.
type Classifier interface {
	// Classify sends the system/user prompt pair and returns the raw
	// model output, trimmed.
	Classify(ctx context.Context, systemPrompt, userPrompt string) (string, error)

	// IsAvailable returns true if the provider is configured.
	IsAvailable() bool
}

// Config configures a provider client.
type Config struct {
	// Provider is the LLM provider (openai, anthropic, gemini).
	Provider string
	// APIKey is the API key for the provider.
	APIKey string
	// BaseURL overrides the provider endpoint.
	BaseURL string
	// Model is the model to use.
	Model string
	// MaxTokens is the maximum tokens for responses.
	MaxTokens int
	// Temperature controls randomness.
	Temperature float64
	// Timeout is the request timeout.
	Timeout time.Duration
	// RetryAttempts is the number of retry attempts.
	RetryAttempts int
	// RateLimitRPM is the rate limit in requests per minute (0 = none).
	RateLimitRPM int
}

// DefaultConfig returns the default provider configuration.
func DefaultConfig() Config {
	return Config{
		Provider:      "openai",
		MaxTokens:     256,
		Temperature:   0,
		Timeout:       30 * time.Second,
		RetryAttempts: 3,
		RateLimitRPM:  60,
	}
}

// New creates a classifier for the configured provider. An empty API
// key yields a noop classifier that reports itself unavailable instead
// of an error, so policies without LLM predicates keep working.
func New(cfg Config) (Classifier, error) {
	switch cfg.Provider {
	case "anthropic", "claude":
		return newAnthropicClassifier(cfg)
	case "gemini":
		return newGeminiClassifier(cfg)
	default:
		return newOpenAIClassifier(cfg)
	}
}

// noopClassifier is used when no provider is configured.
type noopClassifier struct{}

func (noopClassifier) Classify(context.Context, string, string) (string, error) {
	return "", nil
}

func (noopClassifier) IsAvailable() bool { return false }
