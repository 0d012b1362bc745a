package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ormasoftchile/cgt/pkg/config"
	"github.com/ormasoftchile/cgt/pkg/diagram"
	"github.com/ormasoftchile/cgt/pkg/kernel/cgt"
	"github.com/ormasoftchile/cgt/pkg/kernel/patterns"
	"github.com/ormasoftchile/cgt/pkg/mission"
	"github.com/ormasoftchile/cgt/pkg/synthesis"
)

// HandleValidate implements the cgt/validate MCP tool.
func HandleValidate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	path, _ := args["path"].(string)
	if path == "" {
		return errorResult("path argument is required"), nil
	}
	doc, errs := mission.ValidateFile(path)
	if mission.HasErrors(errs) {
		return errorResult(formatErrors(errs)), nil
	}
	return textResult(fmt.Sprintf("✓ %s is valid (%d goals, %d variables)", doc.Meta.Name, len(doc.Goals), len(doc.Variables))), nil
}

// HandleBuild implements the cgt/build MCP tool: it builds the contextual
// goal tree of a mission and renders it.
func HandleBuild(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	path, _ := args["path"].(string)
	if path == "" {
		return errorResult("path argument is required"), nil
	}
	format, _ := args["format"].(string)
	if format == "" {
		format = string(diagram.FormatASCII)
	}
	cfgPath, _ := args["config"].(string)

	doc, errs := mission.ValidateFile(path)
	if mission.HasErrors(errs) {
		return errorResult(formatErrors(errs)), nil
	}
	cfg, err := config.LoadFile(cfgPath)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	tr, err := cfg.NewTree(nil, nil)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	m, err := mission.Build(ctx, doc, tr)
	if err != nil {
		return errorResult(fmt.Sprintf("build: %s", err)), nil
	}
	root, p, err := m.Assemble(ctx)
	if err != nil {
		return errorResult(buildFailure(err)), nil
	}

	response := map[string]any{
		"mission":  doc.Meta.Name,
		"root":     tr.Name(root),
		"nodes":    tr.Len(),
		"contexts": diagram.Contexts(p),
	}
	switch format {
	case "synthesis":
		spec, err := synthesis.Export(ctx, tr, root)
		if err != nil {
			return errorResult(fmt.Sprintf("export: %s", err)), nil
		}
		response["synthesis"] = spec.String()
	default:
		out, err := diagram.Generate(tr, root, diagram.Format(format))
		if err != nil {
			return errorResult(err.Error()), nil
		}
		response["diagram"] = out
	}
	data, _ := json.MarshalIndent(response, "", "  ")
	return textResult(string(data)), nil
}

// buildFailure renders a conflict with both goals' formulas.
func buildFailure(err error) string {
	var conflict *cgt.ConflictError
	if errors.As(err, &conflict) {
		return conflict.Pretty()
	}
	return err.Error()
}

// HandleSchema implements the cgt/schema MCP tool.
func HandleSchema(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	schemaType, _ := args["type"].(string)
	if schemaType == "" {
		schemaType = "mission"
	}
	if schemaType != "mission" {
		return errorResult(fmt.Sprintf("unknown schema type %q: use 'mission'", schemaType)), nil
	}
	data, err := mission.GenerateJSONSchema()
	if err != nil {
		return errorResult(err.Error()), nil
	}
	return textResult(string(data)), nil
}

// HandlePatterns implements the cgt/patterns MCP tool.
func HandlePatterns(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var b strings.Builder
	for _, info := range patterns.Catalogue() {
		fmt.Fprintf(&b, "%s (%s): %s\n", info.Name, info.Arity, info.Doc)
	}
	return textResult(b.String()), nil
}

func formatErrors(errs []*mission.ValidationError) string {
	var msgs []string
	for _, e := range errs {
		if e.Severity == "error" {
			msgs = append(msgs, fmt.Sprintf("[%s] %s: %s", e.Phase, e.Path, e.Message))
		}
	}
	return strings.Join(msgs, "; ")
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(text),
		},
	}
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(msg),
		},
		IsError: true,
	}
}
