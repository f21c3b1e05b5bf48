package types

// ToolDefinition describes a tool to the model (name + JSON schema).
// This is the wire-facing shape handed to provider adapters.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema"`
}

// ToolCall is a tool invocation requested by the model.
// Created by parsing model output; never mutated afterwards.
type ToolCall struct {
	// ID uniquely identifies the call. Providers that do not assign
	// ids get a generated one so results can be re-joined.
	ID string `json:"id"`

	// Name is the registered tool name.
	Name string `json:"name"`

	// Args is the schema-validated argument set.
	Args map[string]any `json:"args"`

	// TurnSeq is the sequence number of the originating turn.
	TurnSeq int `json:"turn_seq,omitempty"`
}

// ResultStatus classifies the outcome of a tool execution.
type ResultStatus string

const (
	StatusOk               ResultStatus = "ok"
	StatusError            ResultStatus = "error"
	StatusTimeout          ResultStatus = "timeout"
	StatusPermissionDenied ResultStatus = "permission_denied"
)

// ToolResult is the structured observation produced by executing a
// ToolCall. It back-references the call id but does not own the call.
type ToolResult struct {
	CallID    string       `json:"call_id"`
	ToolName  string       `json:"tool_name"`
	Status    ResultStatus `json:"status"`
	Payload   string       `json:"payload"`
	ElapsedMs int64        `json:"elapsed_ms"`
}

// IsSuccess returns true if the tool executed without error.
func (r *ToolResult) IsSuccess() bool {
	return r.Status == StatusOk
}
