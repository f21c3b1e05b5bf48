// Package gateway provides a uniform streaming interface over multiple
// LLM providers. Each provider adapter normalizes its wire format into
// one internal event shape; adding a provider means adding an adapter,
// not touching the orchestrator.
package gateway

import (
	"qoze/internal/types"
)

// Request is the provider-agnostic model call.
type Request struct {
	// System is the pinned prompt prefix (system prompt + skill
	// blocks). Kept byte-identical across calls within a session so
	// providers with prefix caching can reuse it.
	System string

	// Messages is the ordered conversation, oldest first. System
	// content travels in System, not here.
	Messages []types.Message

	// Tools declares the invocable tool schemas for this call.
	Tools []types.ToolDefinition

	// MaxTokens caps the response length. Zero uses the provider
	// adapter default.
	MaxTokens int

	// Temperature for sampling.
	Temperature float64
}

// EventType discriminates normalized stream events.
type EventType string

const (
	// EventTextDelta carries an incremental chunk of assistant text.
	EventTextDelta EventType = "text_delta"

	// EventToolCall carries one syntactically complete tool call.
	// Adapters buffer partial tool-call frames internally and only
	// emit complete calls.
	EventToolCall EventType = "tool_call"

	// EventUsage reports token accounting, typically once per call.
	EventUsage EventType = "usage"

	// EventDone marks a successful end of turn. Always the last
	// event on a successful stream.
	EventDone EventType = "done"

	// EventError marks a mid-stream failure. Always the last event
	// on a failed stream; the call is never retried past this point.
	EventError EventType = "error"
)

// StreamEvent is the single normalized event shape all adapters emit.
type StreamEvent struct {
	Type      EventType
	TextDelta string
	ToolCall  *types.ToolCall
	Usage     *types.Usage
	Err       error
}

// Response is a fully accumulated model turn, used by callers that do
// not need incremental delivery (e.g. the context summarizer).
type Response struct {
	Text      string
	ToolCalls []types.ToolCall
	Usage     types.Usage
}

// streamBufferSize is the adapter-side channel capacity. Bounded so a
// stalled consumer applies backpressure to the network read.
const streamBufferSize = 64
