package ai

import (
	"context"
	"regexp"
	"strings"

	"google.golang.org/genai"

	"github.com/invariantlabs-ai/invariant-go/internal/errors"
)

// DefaultGeminiModel is the default model for Gemini.
const DefaultGeminiModel = "gemini-2.0-flash-exp"

// Pre-compiled regex for API key validation. Gemini keys start with
// "AIza".
var geminiKeyPattern = regexp.MustCompile(`^AIza[a-zA-Z0-9_-]{35,}$`)

type geminiClassifier struct {
	client     *genai.Client
	config     Config
	resilience *Resilience
}

func newGeminiClassifier(cfg Config) (Classifier, error) {
	if cfg.APIKey == "" {
		return noopClassifier{}, nil
	}

	if !geminiKeyPattern.MatchString(cfg.APIKey) {
		return nil, errors.AI("ai.newGeminiClassifier", "invalid Gemini API key format (expected AIza...)")
	}

	if cfg.Model == "" {
		cfg.Model = DefaultGeminiModel
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, errors.AIWrapSafe(err, "ai.newGeminiClassifier", "failed to create Gemini client")
	}

	return &geminiClassifier{
		client:     client,
		config:     cfg,
		resilience: resilienceFor(cfg),
	}, nil
}

func (c *geminiClassifier) IsAvailable() bool { return true }

func (c *geminiClassifier) Classify(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	result, err := c.resilience.Execute(ctx, func(ctx context.Context) (string, error) {
		// Gemini takes a single prompt, so fold the system prompt in.
		fullPrompt := systemPrompt + "\n\n" + userPrompt
		temperature := float32(c.config.Temperature)

		resp, err := c.client.Models.GenerateContent(
			ctx,
			c.config.Model,
			[]*genai.Content{{Parts: []*genai.Part{{Text: fullPrompt}}}},
			&genai.GenerateContentConfig{
				Temperature:     &temperature,
				MaxOutputTokens: int32(c.config.MaxTokens),
			},
		)
		if err != nil {
			return "", err
		}

		if len(resp.Candidates) == 0 {
			return "", errors.AI("ai.Classify", "no response from Gemini model")
		}
		candidate := resp.Candidates[0]
		if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
			return "", errors.AI("ai.Classify", "empty response from Gemini model")
		}

		var text strings.Builder
		for _, part := range candidate.Content.Parts {
			if part.Text != "" {
				text.WriteString(part.Text)
			}
		}
		if text.Len() == 0 {
			return "", errors.AI("ai.Classify", "no text in response from Gemini model")
		}
		return strings.TrimSpace(text.String()), nil
	})
	if err != nil {
		return "", errors.AIWrapSafe(err, "ai.Classify", "gemini classification failed")
	}
	return result, nil
}
