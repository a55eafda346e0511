package ai

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/invariantlabs-ai/invariant-go/internal/errors"
)

func TestNewClassifier(t *testing.T) {
	t.Run("empty key yields unavailable noop", func(t *testing.T) {
		for _, provider := range []string{"openai", "anthropic", "claude", "gemini", ""} {
			c, err := New(Config{Provider: provider})
			require.NoError(t, err, provider)
			assert.False(t, c.IsAvailable(), provider)

			out, err := c.Classify(context.Background(), "sys", "user")
			require.NoError(t, err)
			assert.Empty(t, out)
		}
	})

	t.Run("openai key format", func(t *testing.T) {
		c, err := New(Config{Provider: "openai", APIKey: "sk-proj-" + strings.Repeat("a", 24)})
		require.NoError(t, err)
		assert.True(t, c.IsAvailable())

		_, err = New(Config{Provider: "openai", APIKey: "not-a-key"})
		require.Error(t, err)
		assert.True(t, errors.IsKind(err, errors.KindAI))
	})

	t.Run("anthropic key format", func(t *testing.T) {
		c, err := New(Config{Provider: "anthropic", APIKey: "sk-ant-" + strings.Repeat("a", 24)})
		require.NoError(t, err)
		assert.True(t, c.IsAvailable())

		_, err = New(Config{Provider: "claude", APIKey: "sk-wrong"})
		require.Error(t, err)
		assert.True(t, errors.IsKind(err, errors.KindAI))
	})

	t.Run("gemini key format", func(t *testing.T) {
		c, err := New(Config{Provider: "gemini", APIKey: "AIza" + strings.Repeat("b", 35)})
		require.NoError(t, err)
		assert.True(t, c.IsAvailable())

		_, err = New(Config{Provider: "gemini", APIKey: "bogus"})
		require.Error(t, err)
		assert.True(t, errors.IsKind(err, errors.KindAI))
	})
}

func TestResilienceExecute(t *testing.T) {
	t.Run("nil wrapper runs the operation", func(t *testing.T) {
		var r *Resilience
		out, err := r.Execute(context.Background(), func(context.Context) (string, error) {
			return "ok", nil
		})
		require.NoError(t, err)
		assert.Equal(t, "ok", out)
	})

	t.Run("retries transient failures", func(t *testing.T) {
		r := NewResilience(ResilienceConfig{
			RetryAttempts:    3,
			RetryInitialWait: time.Millisecond,
			RetryMaxWait:     5 * time.Millisecond,
		})

		calls := 0
		out, err := r.Execute(context.Background(), func(context.Context) (string, error) {
			calls++
			if calls < 3 {
				return "", fmt.Errorf("503 service unavailable")
			}
			return "recovered", nil
		})
		require.NoError(t, err)
		assert.Equal(t, "recovered", out)
		assert.Equal(t, 3, calls)
	})

	t.Run("does not retry client errors", func(t *testing.T) {
		r := NewResilience(ResilienceConfig{
			RetryAttempts:    3,
			RetryInitialWait: time.Millisecond,
			RetryMaxWait:     5 * time.Millisecond,
		})

		calls := 0
		_, err := r.Execute(context.Background(), func(context.Context) (string, error) {
			calls++
			return "", fmt.Errorf("401 unauthorized")
		})
		require.Error(t, err)
		assert.Equal(t, 1, calls)
	})
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{context.Canceled, false},
		{context.DeadlineExceeded, false},
		{fmt.Errorf("429 too many requests"), true},
		{fmt.Errorf("rate limit exceeded"), true},
		{fmt.Errorf("502 bad gateway"), true},
		{fmt.Errorf("connection refused"), true},
		{fmt.Errorf("404 not found"), false},
		{fmt.Errorf("403 forbidden"), false},
	}
	for _, tt := range tests {
		name := "nil"
		if tt.err != nil {
			name = tt.err.Error()
		}
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.want, isRetryableError(tt.err))
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "openai", cfg.Provider)
	assert.Equal(t, 256, cfg.MaxTokens)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
}
