package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server                ServerConfig       `yaml:"server"`
	APIKey                string             `yaml:"api_key"`
	OpenAI                OpenAIConfig       `yaml:"openai"`
	Models                ModelsConfig       `yaml:"models"`
	ParameterOverrides    ParameterOverrides `yaml:"parameter_overrides"`
	Logging               LoggingConfig      `yaml:"logging"`
	RequestTimeoutSeconds int                `yaml:"request_timeout_seconds"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// OpenAIConfig describes the upstream OpenAI-compatible endpoint.
type OpenAIConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

// ModelsConfig holds the five routing slots used for model selection.
// An empty Default disables mapping entirely (client model names pass through).
type ModelsConfig struct {
	Default     string `yaml:"default"`
	Small       string `yaml:"small"`
	Think       string `yaml:"think"`
	Tool        string `yaml:"tool"`
	LongContext string `yaml:"longContext"`
}

// ParameterOverrides replace the client-supplied sampling parameters when set.
// Each override is independent; nil means the client value is forwarded.
type ParameterOverrides struct {
	MaxTokens   *int     `yaml:"max_tokens"`
	Temperature *float64 `yaml:"temperature"`
	TopP        *float64 `yaml:"top_p"`
	TopK        *int     `yaml:"top_k"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.Normalize()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Normalize cleans up configuration values and applies defaults.
func (c *Config) Normalize() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8082
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.RequestTimeoutSeconds == 0 {
		c.RequestTimeoutSeconds = 90
	}

	// Trailing slash would produce "//chat/completions" when joining paths.
	c.OpenAI.BaseURL = strings.TrimSuffix(c.OpenAI.BaseURL, "/")

	c.APIKey = resolveEnvString(c.APIKey)
	c.OpenAI.APIKey = resolveEnvString(c.OpenAI.APIKey)
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port: %d", c.Server.Port)
	}

	if c.OpenAI.BaseURL == "" {
		return fmt.Errorf("openai.base_url is required")
	}
	parsedURL, err := url.Parse(c.OpenAI.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid openai.base_url: %w", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("invalid openai.base_url: scheme must be http or https, got %q", parsedURL.Scheme)
	}

	validLevels := map[string]bool{"info": true, "debug": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging.level: %s (must be info, debug, or error)", c.Logging.Level)
	}

	if c.RequestTimeoutSeconds < 0 {
		return fmt.Errorf("invalid request_timeout_seconds: %d", c.RequestTimeoutSeconds)
	}

	if c.ParameterOverrides.Temperature != nil {
		if t := *c.ParameterOverrides.Temperature; t < 0 || t > 1 {
			return fmt.Errorf("invalid parameter_overrides.temperature: %v", t)
		}
	}
	if c.ParameterOverrides.TopP != nil {
		if p := *c.ParameterOverrides.TopP; p < 0 || p > 1 {
			return fmt.Errorf("invalid parameter_overrides.top_p: %v", p)
		}
	}
	if c.ParameterOverrides.MaxTokens != nil && *c.ParameterOverrides.MaxTokens <= 0 {
		return fmt.Errorf("invalid parameter_overrides.max_tokens: %d", *c.ParameterOverrides.MaxTokens)
	}
	if c.ParameterOverrides.TopK != nil && *c.ParameterOverrides.TopK < 1 {
		return fmt.Errorf("invalid parameter_overrides.top_k: %d", *c.ParameterOverrides.TopK)
	}

	return nil
}

// RequestTimeout returns the end-to-end per-request deadline.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}
