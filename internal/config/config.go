// Package config handles Glitch configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/glitch/config.yaml, /etc/glitch/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "glitch", "config.yaml"))
	}

	paths = append(paths, "/etc/glitch/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all Glitch configuration.
type Config struct {
	Listen    ListenConfig `yaml:"listen"`
	OpenAI    OpenAIConfig `yaml:"openai"`
	Chat      ChatConfig   `yaml:"chat"`
	Retry     RetryConfig  `yaml:"retry"`
	DataDir   string       `yaml:"data_dir"`
	LogLevel  string       `yaml:"log_level"`
	LogFormat string       `yaml:"log_format"` // "text" (default) or "json"
}

// ListenConfig defines the API server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// OpenAIConfig defines the completion API connection and sampling
// parameters. APIKey falls back to the OPENAI_API_KEY environment
// variable when empty.
type OpenAIConfig struct {
	APIKey           string  `yaml:"api_key"`
	BaseURL          string  `yaml:"base_url"` // Default: https://api.openai.com/v1
	Model            string  `yaml:"model"`
	Temperature      float64 `yaml:"temperature"`
	FrequencyPenalty float64 `yaml:"frequency_penalty"`
	PresencePenalty  float64 `yaml:"presence_penalty"`
}

// ChatConfig defines conversation bookkeeping limits.
type ChatConfig struct {
	// SystemPrompt seeds every conversation as the first turn.
	SystemPrompt string `yaml:"system_prompt"`
	// MaxTurns bounds conversation length including the system turn.
	// When exceeded after an exchange, the oldest non-system turns are
	// evicted. Minimum and default 4.
	MaxTurns int `yaml:"max_turns"`
	// ChunkTokenLimit is the per-request token ceiling. Input above it
	// is split into sequential chunks. Default 4096.
	ChunkTokenLimit int `yaml:"chunk_token_limit"`
	// ContextTokenBudget bounds the total encoded size of the
	// conversation sent with each request. Default 8192.
	ContextTokenBudget int `yaml:"context_token_budget"`
	// BotName is used in transcripts and the REPL prompt. Default "Glitch".
	BotName string `yaml:"bot_name"`
}

// RetryConfig defines the backoff policy for transient completion failures.
type RetryConfig struct {
	// MaxAttempts caps attempts per remote call. Default 5.
	MaxAttempts int `yaml:"max_attempts"`
	// InitialBackoffMS is the first wait in milliseconds. Default 100.
	// Each subsequent wait is multiplied by 1.5.
	InitialBackoffMS int `yaml:"initial_backoff_ms"`
}

// Load reads and parses the config file at path, applying defaults
// and environment fallbacks.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns a config with all defaults applied and no file read.
// Used by the REPL when no config file exists.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Listen.Port == 0 {
		c.Listen.Port = 8000
	}
	if c.OpenAI.APIKey == "" {
		c.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if c.OpenAI.BaseURL == "" {
		c.OpenAI.BaseURL = "https://api.openai.com/v1"
	}
	if c.OpenAI.Model == "" {
		c.OpenAI.Model = "gpt-4o"
	}
	if c.OpenAI.Temperature == 0 {
		c.OpenAI.Temperature = 0.75
	}
	if c.OpenAI.FrequencyPenalty == 0 {
		c.OpenAI.FrequencyPenalty = 0.2
	}
	if c.Chat.SystemPrompt == "" {
		c.Chat.SystemPrompt = "You are Glitch, a helpful assistant."
	}
	if c.Chat.MaxTurns == 0 {
		c.Chat.MaxTurns = 4
	}
	if c.Chat.ChunkTokenLimit == 0 {
		c.Chat.ChunkTokenLimit = 4096
	}
	if c.Chat.ContextTokenBudget == 0 {
		c.Chat.ContextTokenBudget = 8192
	}
	if c.Chat.BotName == "" {
		c.Chat.BotName = "Glitch"
	}
	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = 5
	}
	if c.Retry.InitialBackoffMS == 0 {
		c.Retry.InitialBackoffMS = 100
	}
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	if c.LogFormat == "" {
		c.LogFormat = "text"
	}
}

// Validate checks that required settings are present.
func (c *Config) Validate() error {
	if c.OpenAI.APIKey == "" {
		return fmt.Errorf("openai.api_key is required (or set OPENAI_API_KEY)")
	}
	if c.Chat.MaxTurns < 4 {
		return fmt.Errorf("chat.max_turns must be at least 4 (system turn, a lead-in, and one exchange)")
	}
	if c.LogLevel != "" {
		if _, err := ParseLogLevel(c.LogLevel); err != nil {
			return fmt.Errorf("log_level: %w", err)
		}
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("log_format must be text or json, got %q", c.LogFormat)
	}
	return nil
}
