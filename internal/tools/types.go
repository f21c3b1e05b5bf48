// Package tools provides the tool registry, schema validation and the
// dispatcher that executes model-requested calls under resource limits.
//
// Tools are a closed set registered at startup. Each tool declares a
// JSON schema for its arguments and a concurrency class; the dispatcher
// uses the class to decide what may run in parallel within one turn.
package tools

import (
	"context"
	"time"

	"qoze/internal/types"
)

// ConcurrencyClass controls how calls to a tool are scheduled within a
// single turn.
type ConcurrencyClass string

const (
	// ConcurrencyParallel marks read-only tools. Parallel calls may
	// run concurrently with each other, but never alongside a
	// pending mutating call in the same session.
	ConcurrencyParallel ConcurrencyClass = "parallel"

	// ConcurrencySerial marks mutating or order-sensitive tools.
	// Serial calls run strictly one at a time in emission order.
	ConcurrencySerial ConcurrencyClass = "serial"
)

// Property describes a single parameter in a tool schema.
type Property struct {
	Type        string         `json:"type"`
	Description string         `json:"description"`
	Default     any            `json:"default,omitempty"`
	Enum        []any          `json:"enum,omitempty"`
	Items       *PropertyItems `json:"items,omitempty"`
}

// PropertyItems describes the schema for array elements.
type PropertyItems struct {
	Type string `json:"type"`
}

// Schema defines the JSON schema for tool arguments.
type Schema struct {
	// Required lists parameters that must be provided.
	Required []string `json:"required"`

	// Properties describes each parameter.
	Properties map[string]Property `json:"properties"`
}

// ExecuteFunc is the signature for tool execution. The session context
// carries the working directory and sandbox boundary; cancellation
// arrives through ctx.
type ExecuteFunc func(ctx context.Context, sess *types.SessionContext, args map[string]any) (string, error)

// Tool is one invocable capability.
type Tool struct {
	// Name is the unique identifier exposed to the model.
	Name string

	// Description explains what the tool does, for model tool choice.
	Description string

	// Concurrency is the scheduling class. Defaults to serial: a
	// tool must opt in to parallel execution.
	Concurrency ConcurrencyClass

	// Execute runs the tool.
	Execute ExecuteFunc

	// Schema defines the expected arguments.
	Schema Schema

	// Timeout overrides the dispatcher default for this tool.
	// Zero means use the configured default.
	Timeout time.Duration
}

// Validate checks the tool definition is usable.
func (t *Tool) Validate() error {
	if t.Name == "" {
		return ErrToolNameEmpty
	}
	if t.Execute == nil {
		return ErrToolExecuteNil
	}
	return nil
}

// Definition renders the tool's wire-facing schema for the gateway.
func (t *Tool) Definition() types.ToolDefinition {
	props := make(map[string]any, len(t.Schema.Properties))
	for name, p := range t.Schema.Properties {
		prop := map[string]any{"type": p.Type}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		if p.Items != nil {
			prop["items"] = map[string]any{"type": p.Items.Type}
		}
		props[name] = prop
	}
	required := t.Schema.Required
	if required == nil {
		required = []string{}
	}
	return types.ToolDefinition{
		Name:        t.Name,
		Description: t.Description,
		InputSchema: map[string]any{
			"type":       "object",
			"properties": props,
			"required":   required,
		},
	}
}
