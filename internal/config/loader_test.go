package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/invariantlabs-ai/invariant-go/internal/errors"
)

// clearProviderEnv blanks the conventional provider key variables so
// auto-detection starts from a clean slate.
func clearProviderEnv(t *testing.T) {
	t.Helper()
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")
}

func TestLoadDefaults(t *testing.T) {
	clearProviderEnv(t)

	l := NewLoader()
	l.searchPaths = []string{t.TempDir()}
	cfg, err := l.Load()
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.AI.Provider)
	assert.Equal(t, 256, cfg.AI.MaxTokens)
	assert.Equal(t, 30, cfg.AI.TimeoutSeconds)
	assert.Equal(t, 3, cfg.AI.RetryAttempts)
	assert.Equal(t, 60, cfg.AI.RateLimitRPM)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.False(t, cfg.Eval.CollectAll)
}

func TestLoadFromFile(t *testing.T) {
	clearProviderEnv(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
ai:
  provider: anthropic
  api_key: sk-ant-test
  max_tokens: 512
eval:
  collect_all: true
log:
  level: debug
`), 0o600))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "anthropic", cfg.AI.Provider)
	assert.Equal(t, "sk-ant-test", cfg.AI.APIKey)
	assert.Equal(t, 512, cfg.AI.MaxTokens)
	assert.True(t, cfg.Eval.CollectAll)
	assert.Equal(t, "debug", cfg.Log.Level)
	// Unset keys keep their defaults.
	assert.Equal(t, 30, cfg.AI.TimeoutSeconds)
}

func TestLoadSearchPaths(t *testing.T) {
	clearProviderEnv(t)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "invariant.yaml"), []byte("log:\n  level: warn\n"), 0o600))

	// Search the temp dir only, not the working directory.
	l := NewLoader()
	l.searchPaths = []string{dir}
	cfg, err := l.Load()
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, filepath.Join(dir, "invariant.yaml"), l.GetConfigPath())
}

func TestLoadMissingExplicitFile(t *testing.T) {
	clearProviderEnv(t)

	_, err := LoadFromFile(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindConfig))
}

func TestLoadEnvOverride(t *testing.T) {
	clearProviderEnv(t)
	t.Setenv("INVARIANT_LOG_LEVEL", "error")
	t.Setenv("INVARIANT_AI_PROVIDER", "gemini")

	l := NewLoader()
	l.searchPaths = []string{t.TempDir()}
	cfg, err := l.Load()
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.Log.Level)
	assert.Equal(t, "gemini", cfg.AI.Provider)
}

func TestAutoDetectProvider(t *testing.T) {
	t.Run("anthropic key", func(t *testing.T) {
		clearProviderEnv(t)
		t.Setenv("ANTHROPIC_API_KEY", "sk-ant-detected")

		l := NewLoader()
		l.searchPaths = []string{t.TempDir()}
		cfg, err := l.Load()
		require.NoError(t, err)
		assert.Equal(t, "anthropic", cfg.AI.Provider)
		assert.Equal(t, "sk-ant-detected", cfg.AI.APIKey)
	})

	t.Run("openai wins over gemini", func(t *testing.T) {
		clearProviderEnv(t)
		t.Setenv("OPENAI_API_KEY", "sk-detected")
		t.Setenv("GEMINI_API_KEY", "AIza-detected")

		l := NewLoader()
		l.searchPaths = []string{t.TempDir()}
		cfg, err := l.Load()
		require.NoError(t, err)
		assert.Equal(t, "openai", cfg.AI.Provider)
		assert.Equal(t, "sk-detected", cfg.AI.APIKey)
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"bad provider", func(c *Config) { c.AI.Provider = "cohere" }, true},
		{"negative max tokens", func(c *Config) { c.AI.MaxTokens = -1 }, true},
		{"temperature too high", func(c *Config) { c.AI.Temperature = 2.5 }, true},
		{"bad log level", func(c *Config) { c.Log.Level = "trace" }, true},
		{"claude alias ok", func(c *Config) { c.AI.Provider = "claude" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsKind(err, errors.KindConfig))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestClassifierConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AI.APIKey = "sk-test"
	cfg.AI.TimeoutSeconds = 10

	ac := cfg.ClassifierConfig()
	assert.Equal(t, "openai", ac.Provider)
	assert.Equal(t, "sk-test", ac.APIKey)
	assert.Equal(t, int64(10), int64(ac.Timeout.Seconds()))
}
