package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/invariantlabs-ai/invariant-go/internal/errors"
)

// Loader handles configuration loading and merging.
type Loader struct {
	v           *viper.Viper
	configPath  string
	searchPaths []string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	v := viper.New()
	v.SetEnvPrefix("INVARIANT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	return &Loader{
		v:           v,
		searchPaths: []string{"."},
	}
}

// WithConfigPath sets an explicit config file path.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithSearchPaths adds directories to search for config files.
func (l *Loader) WithSearchPaths(paths ...string) *Loader {
	l.searchPaths = append(l.searchPaths, paths...)
	return l
}

// Load loads the configuration: defaults, then provider auto-detection
// from the conventional key variables, then the config file, then
// INVARIANT_* environment variables.
func (l *Loader) Load() (*Config, error) {
	const op = "config.Load"

	l.setDefaults()
	l.autoDetectAI()

	if err := l.loadConfigFile(); err != nil {
		return nil, errors.ConfigWrap(err, op, "failed to load config file")
	}

	cfg := &Config{}
	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, errors.ConfigWrap(err, op, "failed to unmarshal config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (l *Loader) setDefaults() {
	defaults := DefaultConfig()

	l.v.SetDefault("ai.provider", defaults.AI.Provider)
	l.v.SetDefault("ai.max_tokens", defaults.AI.MaxTokens)
	l.v.SetDefault("ai.temperature", defaults.AI.Temperature)
	l.v.SetDefault("ai.timeout_seconds", defaults.AI.TimeoutSeconds)
	l.v.SetDefault("ai.retry_attempts", defaults.AI.RetryAttempts)
	l.v.SetDefault("ai.rate_limit_rpm", defaults.AI.RateLimitRPM)

	l.v.SetDefault("eval.collect_all", defaults.Eval.CollectAll)

	l.v.SetDefault("log.level", defaults.Log.Level)
	l.v.SetDefault("log.format", defaults.Log.Format)
}

// autoDetectAI picks up provider API keys from their conventional
// environment variables so the llm predicate works without a config
// file. Priority order: OpenAI, Anthropic, Gemini.
func (l *Loader) autoDetectAI() {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		l.v.SetDefault("ai.api_key", key)
		return
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		l.v.SetDefault("ai.provider", "anthropic")
		l.v.SetDefault("ai.api_key", key)
		return
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		l.v.SetDefault("ai.provider", "gemini")
		l.v.SetDefault("ai.api_key", key)
	}
}

func (l *Loader) loadConfigFile() error {
	if l.configPath != "" {
		l.v.SetConfigFile(l.configPath)
		if err := l.v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config file %s: %w", l.configPath, err)
		}
		return nil
	}

	for _, searchPath := range l.searchPaths {
		for _, name := range ConfigFileNames {
			for _, ext := range ConfigFileExtensions {
				configFile := filepath.Join(searchPath, name+"."+ext)
				if _, err := os.Stat(configFile); err == nil {
					l.v.SetConfigFile(configFile)
					if err := l.v.ReadInConfig(); err != nil {
						return fmt.Errorf("reading config file %s: %w", configFile, err)
					}
					return nil
				}
			}
		}
	}

	// No config file found; defaults and environment apply.
	return nil
}

// GetConfigPath returns the path of the loaded config file.
func (l *Loader) GetConfigPath() string {
	return l.v.ConfigFileUsed()
}

// LoadFromFile loads configuration from an explicit file path.
func LoadFromFile(path string) (*Config, error) {
	return NewLoader().WithConfigPath(path).Load()
}
