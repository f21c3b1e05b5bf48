// Package types holds the shared data model for the agent loop.
//
// It is a leaf package with no internal dependencies so that gateway,
// tools, context and orchestrator can all exchange the same value types
// without import cycles.
package types

// Role identifies who produced a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one entry in a session's ordered conversation history.
// The ordered sequence of Messages is the canonical context.
type Message struct {
	// Role is one of system/user/assistant/tool.
	Role Role `json:"role"`

	// Content is the text payload. For tool messages this is the
	// observation fed back to the model.
	Content string `json:"content"`

	// ToolCalls carries the calls an assistant message requested.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID back-references the call a tool message answers.
	ToolCallID string `json:"tool_call_id,omitempty"`

	// Tokens is the estimated token cost of this message.
	Tokens int `json:"tokens,omitempty"`

	// Pinned messages are never evicted or summarized by the
	// context manager (system prompt, skill content).
	Pinned bool `json:"pinned,omitempty"`
}

// Usage reports provider token accounting for one model call.
type Usage struct {
	InputTokens     int `json:"input_tokens"`
	OutputTokens    int `json:"output_tokens"`
	CacheReadTokens int `json:"cache_read_tokens,omitempty"`
}

// Add accumulates another usage report into u.
func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.CacheReadTokens += other.CacheReadTokens
}
