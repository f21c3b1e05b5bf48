package orchestrator

import "qoze/internal/types"

// StepEventType discriminates events on the session's step stream.
type StepEventType string

const (
	EventTurnStarted      StepEventType = "turn_started"
	EventTokenDelta       StepEventType = "token_delta"
	EventToolCallDetected StepEventType = "tool_call_detected"
	EventToolStarted      StepEventType = "tool_started"
	EventToolCompleted    StepEventType = "tool_completed"
	EventTurnCompleted    StepEventType = "turn_completed"
	EventSessionDone      StepEventType = "session_done"
	EventSessionFailed    StepEventType = "session_failed"
	EventSessionCancelled StepEventType = "session_cancelled"
)

// Terminal failure reasons carried by EventSessionFailed.
const (
	ReasonStepLimitExceeded = "StepLimitExceeded"
	ReasonAuthError         = "AuthError"
	ReasonProviderError     = "ProviderError"
	ReasonContextBudget     = "ContextBudgetExceeded"
)

// StepEvent is one entry on the ordered per-session event stream the
// UI consumes. Producers push, the supervisor's consumer pulls;
// backpressure comes from the bounded channel.
type StepEvent struct {
	Type StepEventType

	// Turn is the sequence number of the turn the event belongs to.
	// Zero for session-level events.
	Turn int

	// Text carries the incremental chunk for TokenDelta and the final
	// answer for SessionDone.
	Text string

	// ToolCall is set for ToolCallDetected and ToolStarted.
	ToolCall *types.ToolCall

	// ToolResult is set for ToolCompleted.
	ToolResult *types.ToolResult

	// Reason is set for SessionFailed.
	Reason string

	// Usage is set on TurnCompleted with the turn's token accounting.
	Usage *types.Usage
}

// eventBufferSize bounds the per-session event channel.
const eventBufferSize = 256
