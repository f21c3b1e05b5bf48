package types

import "time"

// SessionStatus is the lifecycle state of a session.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
	SessionCancelled SessionStatus = "cancelled"
)

// Terminal reports whether the loop has stopped advancing.
func (s SessionStatus) Terminal() bool {
	return s == SessionCompleted || s == SessionFailed || s == SessionCancelled
}

// SessionContext is the per-session execution context threaded through
// every tool call. It replaces any process-wide mutable state: tools
// receive it explicitly instead of reaching for globals.
type SessionContext struct {
	// SessionID identifies the owning session.
	SessionID string

	// WorkDir is the directory the session operates in.
	WorkDir string

	// SandboxRoot bounds all filesystem and shell activity. Any
	// path resolving outside it is rejected with PermissionDenied.
	SandboxRoot string
}

// Turn is one iteration of the loop: the model response, the parsed
// tool calls and whether it produced a final answer. Turns are
// append-only and immutable once committed.
type Turn struct {
	Seq       int        `json:"seq"`
	Response  string     `json:"response"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	Terminal  bool       `json:"terminal"`
	Usage     Usage      `json:"usage"`
	Started   time.Time  `json:"started"`
	Elapsed   int64      `json:"elapsed_ms"`
}

// Skill is a knowledge pack injected into the session prompt.
// Immutable once loaded for a session.
type Skill struct {
	// Name uniquely identifies the skill within its tier.
	Name string `yaml:"name"`

	// Description is a one-line summary shown in listings.
	Description string `yaml:"description"`

	// Trigger is an optional glob matched against files in the
	// session working directory; empty means always active.
	Trigger string `yaml:"trigger,omitempty"`

	// Content is the injected prompt block (treated as data).
	Content string `yaml:"-"`

	// Location is the SKILL.md path the skill was loaded from.
	Location string `yaml:"-"`

	// Tier is project, user or builtin. Project wins name clashes.
	Tier string `yaml:"-"`
}
