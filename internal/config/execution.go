package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// Duration is a time.Duration that marshals as a string ("90s", "5m").
type Duration time.Duration

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON accepts both "5m" strings and raw nanosecond numbers.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid duration: %s", string(data))
	}
	*d = Duration(time.Duration(n))
	return nil
}

// Std returns the standard library representation.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// ExecutionConfig configures the orchestrator loop and tool dispatch.
type ExecutionConfig struct {
	// StepCeiling is the hard turn limit per session. The loop
	// terminates with StepLimitExceeded when reached.
	StepCeiling int `json:"step_ceiling"`

	// MaxToolCallsPerTurn bounds how many calls one model response
	// may request; extras are dropped and reported back to the model
	// as an observation.
	MaxToolCallsPerTurn int `json:"max_tool_calls_per_turn"`

	// ToolTimeout is the per-call execution limit.
	ToolTimeout Duration `json:"tool_timeout"`

	// MaxParallelTools bounds concurrent read-only tool executions
	// within a single turn.
	MaxParallelTools int `json:"max_parallel_tools"`

	// SandboxRoot bounds all filesystem and shell activity. Empty
	// defaults to the session working directory.
	SandboxRoot string `json:"sandbox_root,omitempty"`

	// CancelGrace is how long cancellation waits for in-flight tool
	// calls to wind down before abandoning them.
	CancelGrace Duration `json:"cancel_grace"`
}

// DefaultExecutionConfig returns sensible defaults.
func DefaultExecutionConfig() ExecutionConfig {
	return ExecutionConfig{
		StepCeiling:         40,
		MaxToolCallsPerTurn: 16,
		ToolTimeout:         Duration(5 * time.Minute),
		MaxParallelTools:    4,
		CancelGrace:         Duration(5 * time.Second),
	}
}

// Validate checks execution limits are within acceptable ranges.
func (c ExecutionConfig) Validate() error {
	if c.StepCeiling < 1 {
		return fmt.Errorf("step_ceiling must be >= 1")
	}
	if c.MaxToolCallsPerTurn < 1 {
		return fmt.Errorf("max_tool_calls_per_turn must be >= 1")
	}
	if c.MaxParallelTools < 1 {
		return fmt.Errorf("max_parallel_tools must be >= 1")
	}
	if c.ToolTimeout.Std() <= 0 {
		return fmt.Errorf("tool_timeout must be positive")
	}
	return nil
}

// ContextConfig configures the context manager's token budget.
type ContextConfig struct {
	// TokenBudget is the maximum estimated tokens per prompt.
	TokenBudget int `json:"token_budget"`

	// RecentTurnWindow is how many recent turns are always kept
	// verbatim (never summarized).
	RecentTurnWindow int `json:"recent_turn_window"`

	// CompressionThreshold triggers summarization at this fraction
	// of the budget (0-1).
	CompressionThreshold float64 `json:"compression_threshold"`
}

// DefaultContextConfig returns sensible defaults.
func DefaultContextConfig() ContextConfig {
	return ContextConfig{
		TokenBudget:          160000,
		RecentTurnWindow:     8,
		CompressionThreshold: 0.8,
	}
}

// Validate checks context limits are within acceptable ranges.
func (c ContextConfig) Validate() error {
	if c.TokenBudget < 1000 {
		return fmt.Errorf("token_budget must be >= 1000")
	}
	if c.RecentTurnWindow < 1 {
		return fmt.Errorf("recent_turn_window must be >= 1")
	}
	if c.CompressionThreshold <= 0 || c.CompressionThreshold > 1 {
		return fmt.Errorf("compression_threshold must be in (0, 1]")
	}
	return nil
}
