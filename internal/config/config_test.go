package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultValidates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.LLM.Provider != "anthropic" {
		t.Errorf("default provider = %q", cfg.LLM.Provider)
	}
	if cfg.Execution.StepCeiling != 40 {
		t.Errorf("default step ceiling = %d", cfg.Execution.StepCeiling)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, ".qoze"), 0o755); err != nil {
		t.Fatal(err)
	}
	raw := `{
		"llm": {"provider": "openai", "model": "gpt-4o"},
		"execution": {"step_ceiling": 12, "max_tool_calls_per_turn": 8, "tool_timeout": "90s", "max_parallel_tools": 2, "cancel_grace": "3s"},
		"context": {"token_budget": 50000, "recent_turn_window": 4, "compression_threshold": 0.7}
	}`
	if err := os.WriteFile(filepath.Join(dir, ".qoze", "config.json"), []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.LLM.Provider != "openai" || cfg.LLM.Model != "gpt-4o" {
		t.Errorf("llm = %+v", cfg.LLM)
	}
	if cfg.Execution.ToolTimeout.Std() != 90*time.Second {
		t.Errorf("tool_timeout = %v", cfg.Execution.ToolTimeout.Std())
	}
	if cfg.Context.TokenBudget != 50000 {
		t.Errorf("token_budget = %d", cfg.Context.TokenBudget)
	}
}

func TestLoadMalformedFileFails(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, ".qoze"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".qoze", "config.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(dir); err == nil {
		t.Fatal("malformed config must be an error, not a silent fallback")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("QOZE_PROVIDER", "gemini")
	t.Setenv("GEMINI_API_KEY", "g-key")

	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if cfg.LLM.Provider != "gemini" {
		t.Errorf("provider = %q, want gemini", cfg.LLM.Provider)
	}
	if cfg.LLM.GeminiAPIKey != "g-key" {
		t.Errorf("gemini key not picked up from env")
	}
}

func TestDurationJSON(t *testing.T) {
	var d Duration
	if err := d.UnmarshalJSON([]byte(`"5m"`)); err != nil {
		t.Fatal(err)
	}
	if d.Std() != 5*time.Minute {
		t.Errorf("parsed %v, want 5m", d.Std())
	}
	if err := d.UnmarshalJSON([]byte(`1000000000`)); err != nil {
		t.Fatal(err)
	}
	if d.Std() != time.Second {
		t.Errorf("parsed %v, want 1s", d.Std())
	}
	if err := d.UnmarshalJSON([]byte(`"not a duration"`)); err == nil {
		t.Error("expected error for invalid duration string")
	}
}

func TestValidateRejectsBadLimits(t *testing.T) {
	cfg := Default()
	cfg.Execution.StepCeiling = 0
	if err := cfg.Validate(); err == nil {
		t.Error("step_ceiling 0 must fail validation")
	}

	cfg = Default()
	cfg.Context.CompressionThreshold = 1.5
	if err := cfg.Validate(); err == nil {
		t.Error("compression_threshold > 1 must fail validation")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	cfg.LLM.Model = "custom-model"
	if err := cfg.Save(dir); err != nil {
		t.Fatal(err)
	}

	loaded, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.LLM.Model != "custom-model" {
		t.Errorf("model = %q after round trip", loaded.LLM.Model)
	}
}
