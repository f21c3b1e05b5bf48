package config

import "time"

// LLMConfig configures the model gateway.
type LLMConfig struct {
	// Provider selects the default backend: anthropic, openai, gemini.
	Provider string `json:"provider"`

	// Model is the provider-specific model id.
	Model string `json:"model"`

	// BaseURL overrides the provider endpoint (for proxies and
	// OpenAI-compatible gateways). Empty uses the provider default.
	BaseURL string `json:"base_url,omitempty"`

	// Credentials. Environment variables override empty fields.
	AnthropicAPIKey string `json:"anthropic_api_key,omitempty"`
	OpenAIAPIKey    string `json:"openai_api_key,omitempty"`
	GeminiAPIKey    string `json:"gemini_api_key,omitempty"`
	TavilyAPIKey    string `json:"tavily_api_key,omitempty"`

	// MaxOutputTokens caps the response length per call.
	MaxOutputTokens int `json:"max_output_tokens,omitempty"`

	// Temperature for completions.
	Temperature float64 `json:"temperature,omitempty"`

	// RequestTimeout bounds a single HTTP request including the
	// full stream read.
	RequestTimeout Duration `json:"request_timeout,omitempty"`

	// MaxRetries caps transparent retries on rate limiting.
	MaxRetries int `json:"max_retries,omitempty"`

	// RetryBackoffBase is the first backoff delay; doubles per attempt.
	RetryBackoffBase Duration `json:"retry_backoff_base,omitempty"`

	// RequestsPerSecond throttles each provider process-wide across
	// all concurrent sessions. Zero disables throttling.
	RequestsPerSecond float64 `json:"requests_per_second,omitempty"`
}

// DefaultLLMConfig returns sensible defaults.
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Provider:          "anthropic",
		Model:             "claude-sonnet-4-20250514",
		MaxOutputTokens:   8192,
		Temperature:       0.1,
		RequestTimeout:    Duration(120 * time.Second),
		MaxRetries:        3,
		RetryBackoffBase:  Duration(1 * time.Second),
		RequestsPerSecond: 2,
	}
}

// APIKeyFor returns the credential for the given provider id.
func (c LLMConfig) APIKeyFor(provider string) string {
	switch provider {
	case "anthropic":
		return c.AnthropicAPIKey
	case "openai":
		return c.OpenAIAPIKey
	case "gemini":
		return c.GeminiAPIKey
	}
	return ""
}
