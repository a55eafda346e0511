// Package config provides configuration management for the analyzer.
package config

import (
	"time"

	"github.com/invariantlabs-ai/invariant-go/internal/ai"
	"github.com/invariantlabs-ai/invariant-go/internal/errors"
)

// ConfigFileNames are the base names searched for a config file.
var ConfigFileNames = []string{"invariant", ".invariant"}

// ConfigFileExtensions are the extensions searched for a config file.
var ConfigFileExtensions = []string{"yaml", "yml"}

// Config is the root configuration.
type Config struct {
	AI   AIConfig   `mapstructure:"ai"`
	Eval EvalConfig `mapstructure:"eval"`
	Log  LogConfig  `mapstructure:"log"`
}

// AIConfig configures the LLM provider backing the llm predicate.
type AIConfig struct {
	Provider       string  `mapstructure:"provider"`
	APIKey         string  `mapstructure:"api_key"`
	BaseURL        string  `mapstructure:"base_url"`
	Model          string  `mapstructure:"model"`
	MaxTokens      int     `mapstructure:"max_tokens"`
	Temperature    float64 `mapstructure:"temperature"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	RetryAttempts  int     `mapstructure:"retry_attempts"`
	RateLimitRPM   int     `mapstructure:"rate_limit_rpm"`
}

// EvalConfig configures evaluation behavior.
type EvalConfig struct {
	// CollectAll reports every violation instead of stopping at the
	// first satisfying binding per rule.
	CollectAll bool `mapstructure:"collect_all"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	aiDefaults := ai.DefaultConfig()
	return &Config{
		AI: AIConfig{
			Provider:       aiDefaults.Provider,
			MaxTokens:      aiDefaults.MaxTokens,
			Temperature:    aiDefaults.Temperature,
			TimeoutSeconds: int(aiDefaults.Timeout / time.Second),
			RetryAttempts:  aiDefaults.RetryAttempts,
			RateLimitRPM:   aiDefaults.RateLimitRPM,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	const op = "config.Validate"
	switch c.AI.Provider {
	case "", "openai", "anthropic", "claude", "gemini":
	default:
		return errors.Config(op, "unknown ai.provider "+c.AI.Provider)
	}
	if c.AI.MaxTokens < 0 {
		return errors.Config(op, "ai.max_tokens must not be negative")
	}
	if c.AI.Temperature < 0 || c.AI.Temperature > 2 {
		return errors.Config(op, "ai.temperature must be within [0, 2]")
	}
	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return errors.Config(op, "unknown log.level "+c.Log.Level)
	}
	return nil
}

// ClassifierConfig renders the AI section as a provider client config.
func (c *Config) ClassifierConfig() ai.Config {
	return ai.Config{
		Provider:      c.AI.Provider,
		APIKey:        c.AI.APIKey,
		BaseURL:       c.AI.BaseURL,
		Model:         c.AI.Model,
		MaxTokens:     c.AI.MaxTokens,
		Temperature:   c.AI.Temperature,
		Timeout:       time.Duration(c.AI.TimeoutSeconds) * time.Second,
		RetryAttempts: c.AI.RetryAttempts,
		RateLimitRPM:  c.AI.RateLimitRPM,
	}
}
