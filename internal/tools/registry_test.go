package tools

import (
	"context"
	"errors"
	"testing"

	"qoze/internal/types"
)

func okTool(name string, class ConcurrencyClass) *Tool {
	return &Tool{
		Name:        name,
		Description: "a test tool",
		Concurrency: class,
		Execute: func(ctx context.Context, sess *types.SessionContext, args map[string]any) (string, error) {
			return "ok", nil
		},
	}
}

func TestNewRegistry(t *testing.T) {
	reg := NewRegistry()
	if reg == nil {
		t.Fatal("NewRegistry returned nil")
	}
	if reg.Count() != 0 {
		t.Errorf("new registry should be empty, got %d tools", reg.Count())
	}
}

func TestRegisterAndGet(t *testing.T) {
	reg := NewRegistry()

	if err := reg.Register(okTool("test_tool", ConcurrencyParallel)); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	got := reg.Get("test_tool")
	if got == nil {
		t.Fatal("Get returned nil for registered tool")
	}
	if got.Name != "test_tool" {
		t.Errorf("got name %q, want %q", got.Name, "test_tool")
	}
	if !reg.Has("test_tool") {
		t.Error("Has returned false for registered tool")
	}
}

func TestRegisterDuplicate(t *testing.T) {
	reg := NewRegistry()

	if err := reg.Register(okTool("dupe", ConcurrencySerial)); err != nil {
		t.Fatalf("first Register failed: %v", err)
	}
	err := reg.Register(okTool("dupe", ConcurrencySerial))
	if !errors.Is(err, ErrToolAlreadyRegistered) {
		t.Fatalf("expected ErrToolAlreadyRegistered, got %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	reg := NewRegistry()

	if err := reg.Register(&Tool{Name: "", Execute: okTool("x", "").Execute}); !errors.Is(err, ErrToolNameEmpty) {
		t.Errorf("expected ErrToolNameEmpty, got %v", err)
	}
	if err := reg.Register(&Tool{Name: "no_exec"}); !errors.Is(err, ErrToolExecuteNil) {
		t.Errorf("expected ErrToolExecuteNil, got %v", err)
	}
}

func TestRegisterDefaultsToSerial(t *testing.T) {
	reg := NewRegistry()
	tool := okTool("unclassed", "")
	if err := reg.Register(tool); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if got := reg.Get("unclassed").Concurrency; got != ConcurrencySerial {
		t.Errorf("unclassed tool got concurrency %q, want serial", got)
	}
}

func TestDefinitionsSorted(t *testing.T) {
	reg := NewRegistry()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		reg.MustRegister(okTool(name, ConcurrencyParallel))
	}

	defs := reg.Definitions()
	want := []string{"alpha", "mid", "zeta"}
	if len(defs) != len(want) {
		t.Fatalf("got %d definitions, want %d", len(defs), len(want))
	}
	for i, name := range want {
		if defs[i].Name != name {
			t.Errorf("definitions[%d] = %q, want %q", i, defs[i].Name, name)
		}
	}
}

func TestValidateArgs(t *testing.T) {
	tool := okTool("typed", ConcurrencySerial)
	tool.Schema = Schema{
		Required: []string{"path"},
		Properties: map[string]Property{
			"path":  {Type: "string"},
			"count": {Type: "integer"},
			"deep":  {Type: "boolean"},
		},
	}

	tests := []struct {
		name    string
		args    map[string]any
		wantErr error
	}{
		{"valid", map[string]any{"path": "/tmp", "count": float64(3)}, nil},
		{"whole float as integer", map[string]any{"path": "x", "count": 2.0}, nil},
		{"missing required", map[string]any{"count": 1}, ErrMissingRequiredArg},
		{"wrong type", map[string]any{"path": 42}, ErrInvalidArgType},
		{"fractional integer", map[string]any{"path": "x", "count": 2.5}, ErrInvalidArgType},
		{"unknown arg tolerated", map[string]any{"path": "x", "extra": "y"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateArgs(tool, tt.args)
			if tt.wantErr == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("got %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestDefinitionShape(t *testing.T) {
	tool := okTool("shaped", ConcurrencyParallel)
	tool.Schema = Schema{
		Required:   []string{"query"},
		Properties: map[string]Property{"query": {Type: "string", Description: "the query"}},
	}

	def := tool.Definition()
	if def.InputSchema["type"] != "object" {
		t.Errorf("schema type = %v, want object", def.InputSchema["type"])
	}
	props, ok := def.InputSchema["properties"].(map[string]any)
	if !ok {
		t.Fatal("properties missing")
	}
	if _, ok := props["query"]; !ok {
		t.Error("query property missing from definition")
	}
}
