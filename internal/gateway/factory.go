package gateway

import (
	"fmt"

	"qoze/internal/config"
)

// NewProvider constructs the adapter selected by configuration.
func NewProvider(cfg config.LLMConfig) (Provider, error) {
	key := cfg.APIKeyFor(cfg.Provider)
	switch cfg.Provider {
	case "anthropic":
		c := DefaultAnthropicConfig(key)
		c.Model = cfg.Model
		c.Timeout = cfg.RequestTimeout.Std()
		if cfg.BaseURL != "" {
			c.BaseURL = cfg.BaseURL
		}
		return NewAnthropicClient(c), nil
	case "openai":
		c := DefaultOpenAIConfig(key)
		c.Model = cfg.Model
		c.Timeout = cfg.RequestTimeout.Std()
		if cfg.BaseURL != "" {
			c.BaseURL = cfg.BaseURL
		}
		return NewOpenAIClient(c), nil
	case "gemini":
		c := DefaultGeminiConfig(key)
		c.Model = cfg.Model
		c.Timeout = cfg.RequestTimeout.Std()
		if cfg.BaseURL != "" {
			c.BaseURL = cfg.BaseURL
		}
		return NewGeminiClient(c), nil
	default:
		return nil, fmt.Errorf("unknown provider: %q", cfg.Provider)
	}
}

// NewFromConfig builds a ready Gateway from configuration.
func NewFromConfig(cfg config.LLMConfig) (*Gateway, error) {
	provider, err := NewProvider(cfg)
	if err != nil {
		return nil, err
	}
	opts := Options{
		MaxRetries:        cfg.MaxRetries,
		BackoffBase:       cfg.RetryBackoffBase.Std(),
		RequestsPerSecond: cfg.RequestsPerSecond,
	}
	return New(provider, opts), nil
}
