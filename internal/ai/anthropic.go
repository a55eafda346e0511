package ai

import (
	"context"
	"regexp"
	"strings"

	"github.com/liushuangls/go-anthropic/v2"

	"github.com/invariantlabs-ai/invariant-go/internal/errors"
)

// DefaultAnthropicModel is the default model for Anthropic.
const DefaultAnthropicModel = "claude-sonnet-4-20250514"

// Pre-compiled regex for API key validation. Anthropic keys start with
// "sk-ant-".
var anthropicKeyPattern = regexp.MustCompile(`^sk-ant-[a-zA-Z0-9_-]{20,}$`)

type anthropicClassifier struct {
	client     *anthropic.Client
	config     Config
	resilience *Resilience
}

func newAnthropicClassifier(cfg Config) (Classifier, error) {
	if cfg.APIKey == "" {
		return noopClassifier{}, nil
	}

	if !anthropicKeyPattern.MatchString(cfg.APIKey) {
		return nil, errors.AI("ai.newAnthropicClassifier", "invalid Anthropic API key format (expected sk-ant-...)")
	}

	if cfg.Model == "" {
		cfg.Model = DefaultAnthropicModel
	}

	var clientOptions []anthropic.ClientOption
	if cfg.BaseURL != "" {
		clientOptions = append(clientOptions, anthropic.WithBaseURL(cfg.BaseURL))
	}

	return &anthropicClassifier{
		client:     anthropic.NewClient(cfg.APIKey, clientOptions...),
		config:     cfg,
		resilience: resilienceFor(cfg),
	}, nil
}

func (c *anthropicClassifier) IsAvailable() bool { return true }

func (c *anthropicClassifier) Classify(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	temperature := float32(c.config.Temperature)
	result, err := c.resilience.Execute(ctx, func(ctx context.Context) (string, error) {
		resp, err := c.client.CreateMessages(
			ctx,
			anthropic.MessagesRequest{
				Model:     anthropic.Model(c.config.Model),
				MaxTokens: c.config.MaxTokens,
				System:    systemPrompt,
				Messages: []anthropic.Message{
					anthropic.NewUserTextMessage(userPrompt),
				},
				Temperature: &temperature,
			},
		)
		if err != nil {
			return "", err
		}
		if len(resp.Content) == 0 {
			return "", errors.AI("ai.Classify", "no response from Anthropic model")
		}
		return strings.TrimSpace(resp.GetFirstContentText()), nil
	})
	if err != nil {
		return "", errors.AIWrapSafe(err, "ai.Classify", "anthropic classification failed")
	}
	return result, nil
}
