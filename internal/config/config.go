// Package config loads qoze configuration from .qoze/config.json with
// environment overrides. All constructors return usable defaults so the
// agent runs with zero configuration beyond an API key.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config holds all qoze configuration.
type Config struct {
	// LLM configures the model gateway.
	LLM LLMConfig `json:"llm"`

	// Context configures the token budget manager.
	Context ContextConfig `json:"context"`

	// Execution configures the orchestrator and tool dispatch.
	Execution ExecutionConfig `json:"execution"`

	// Skills configures skill discovery.
	Skills SkillsConfig `json:"skills"`

	// Logging controls categorized debug logging.
	Logging LoggingConfig `json:"logging"`
}

// SkillsConfig configures skill pack discovery.
type SkillsConfig struct {
	// ExtraPaths are additional skill directories searched after the
	// project and user tiers.
	ExtraPaths []string `json:"extra_paths,omitempty"`

	// Disabled lists skill names excluded from every session.
	Disabled []string `json:"disabled,omitempty"`
}

// LoggingConfig controls the categorized file logger.
type LoggingConfig struct {
	DebugMode  bool            `json:"debug_mode"`
	Level      string          `json:"level,omitempty"`
	Categories map[string]bool `json:"categories,omitempty"`
}

// Default returns the baseline configuration.
func Default() *Config {
	return &Config{
		LLM:       DefaultLLMConfig(),
		Context:   DefaultContextConfig(),
		Execution: DefaultExecutionConfig(),
		Logging:   LoggingConfig{Level: "info"},
	}
}

// Load reads configuration from <workspace>/.qoze/config.json, falling
// back to defaults when the file is absent, then applies environment
// overrides. A malformed file is an error, not a silent fallback.
func Load(workspace string) (*Config, error) {
	cfg := Default()

	path := filepath.Join(workspace, ".qoze", "config.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides lets environment variables win over file values.
// Only credentials and provider selection are overridable; structural
// settings stay in the file.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("QOZE_PROVIDER"); v != "" {
		c.LLM.Provider = v
	}
	if v := os.Getenv("QOZE_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" && c.LLM.AnthropicAPIKey == "" {
		c.LLM.AnthropicAPIKey = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" && c.LLM.OpenAIAPIKey == "" {
		c.LLM.OpenAIAPIKey = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" && c.LLM.GeminiAPIKey == "" {
		c.LLM.GeminiAPIKey = v
	}
	if v := os.Getenv("TAVILY_API_KEY"); v != "" && c.LLM.TavilyAPIKey == "" {
		c.LLM.TavilyAPIKey = v
	}
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if err := c.Context.Validate(); err != nil {
		return err
	}
	if err := c.Execution.Validate(); err != nil {
		return err
	}
	return nil
}

// Save writes the configuration back to <workspace>/.qoze/config.json.
func (c *Config) Save(workspace string) error {
	dir := filepath.Join(workspace, ".qoze")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, "config.json"), data, 0o644)
}
