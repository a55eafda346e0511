package ai

import (
	"context"
	"regexp"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/invariantlabs-ai/invariant-go/internal/errors"
)

// DefaultOpenAIModel is the default model for OpenAI.
const DefaultOpenAIModel = "gpt-4o-mini"

// Pre-compiled regex for API key validation. OpenAI keys start with
// "sk-"; newer project-scoped (sk-proj-) and service keys are accepted.
var openaiKeyPattern = regexp.MustCompile(`^sk-(?:proj-|svc-)?[a-zA-Z0-9_-]{20,}$`)

type openAIClassifier struct {
	client     *openai.Client
	config     Config
	resilience *Resilience
}

func newOpenAIClassifier(cfg Config) (Classifier, error) {
	if cfg.APIKey == "" {
		return noopClassifier{}, nil
	}

	// Validate the key format to fail fast without leaking the key in
	// provider error messages.
	if !openaiKeyPattern.MatchString(cfg.APIKey) {
		return nil, errors.AI("ai.newOpenAIClassifier", "invalid OpenAI API key format")
	}

	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &openAIClassifier{
		client:     openai.NewClientWithConfig(clientConfig),
		config:     cfg,
		resilience: resilienceFor(cfg),
	}, nil
}

func (c *openAIClassifier) IsAvailable() bool { return true }

func (c *openAIClassifier) Classify(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	result, err := c.resilience.Execute(ctx, func(ctx context.Context) (string, error) {
		resp, err := c.client.CreateChatCompletion(
			ctx,
			openai.ChatCompletionRequest{
				Model: c.config.Model,
				Messages: []openai.ChatCompletionMessage{
					{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
					{Role: openai.ChatMessageRoleUser, Content: userPrompt},
				},
				MaxTokens:   c.config.MaxTokens,
				Temperature: float32(c.config.Temperature),
			},
		)
		if err != nil {
			return "", err
		}
		if len(resp.Choices) == 0 {
			return "", errors.AI("ai.Classify", "no response from OpenAI model")
		}
		return strings.TrimSpace(resp.Choices[0].Message.Content), nil
	})
	if err != nil {
		return "", errors.AIWrapSafe(err, "ai.Classify", "openai classification failed")
	}
	return result, nil
}
