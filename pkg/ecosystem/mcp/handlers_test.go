package mcp

import (
	"context"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
)

const robot = "../../mission/testdata/robot.yaml"

func call(t *testing.T, h func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), args map[string]any) *mcp.CallToolResult {
	t.Helper()
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	result, err := h(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	return result
}

func text(r *mcp.CallToolResult) string {
	var b strings.Builder
	for _, c := range r.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			b.WriteString(tc.Text)
		}
	}
	return b.String()
}

func TestHandleValidate_MissingPath(t *testing.T) {
	if r := call(t, HandleValidate, map[string]any{}); !r.IsError {
		t.Error("expected error for missing path")
	}
}

func TestHandleValidate(t *testing.T) {
	r := call(t, HandleValidate, map[string]any{"path": robot})
	if r.IsError {
		t.Fatalf("unexpected error: %s", text(r))
	}
	if !strings.Contains(text(r), "warehouse-robot is valid (3 goals") {
		t.Errorf("result = %q", text(r))
	}

	r = call(t, HandleValidate, map[string]any{"path": "../../mission/testdata/invalid.yaml"})
	if !r.IsError || !strings.Contains(text(r), "[domain]") {
		t.Errorf("invalid mission result = %q", text(r))
	}
}

func TestHandleBuild(t *testing.T) {
	tests := []struct {
		format string
		want   string
	}{
		{"", "(conjunction)"},
		{"mermaid", "flowchart TD"},
		{"synthesis", "GUARANTEES"},
	}
	for _, tt := range tests {
		t.Run("format="+tt.format, func(t *testing.T) {
			r := call(t, HandleBuild, map[string]any{"path": robot, "format": tt.format})
			if r.IsError {
				t.Fatalf("unexpected error: %s", text(r))
			}
			if !strings.Contains(text(r), tt.want) {
				t.Errorf("result does not contain %q:\n%s", tt.want, text(r))
			}
		})
	}
}

func TestHandleBuild_Errors(t *testing.T) {
	if r := call(t, HandleBuild, map[string]any{}); !r.IsError {
		t.Error("expected error for missing path")
	}
	if r := call(t, HandleBuild, map[string]any{"path": robot, "format": "svg"}); !r.IsError {
		t.Error("expected error for unsupported format")
	}
	if r := call(t, HandleBuild, map[string]any{"path": robot, "config": "missing.yaml"}); !r.IsError {
		t.Error("expected error for missing config file")
	}
}

func TestHandleSchema(t *testing.T) {
	r := call(t, HandleSchema, map[string]any{"type": "mission"})
	if r.IsError || !strings.Contains(text(r), "mission-v0.json") {
		t.Errorf("schema result = %q", text(r))
	}
	if r := call(t, HandleSchema, map[string]any{"type": "runbook"}); !r.IsError {
		t.Error("expected error for unknown schema type")
	}
}

func TestHandlePatterns(t *testing.T) {
	r := call(t, HandlePatterns, map[string]any{})
	if !strings.Contains(text(r), "Patrolling (locations)") {
		t.Errorf("catalogue = %q", text(r))
	}
}
