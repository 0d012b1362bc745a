package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// NewServer creates a new MCP server with cgt tools registered.
func NewServer(version string) *server.MCPServer {
	s := server.NewMCPServer(
		"cgt",
		version,
		server.WithToolCapabilities(true),
	)

	s.AddTool(
		mcp.NewTool("cgt/validate",
			mcp.WithDescription("Validate a cgt mission YAML file"),
			mcp.WithString("path", mcp.Required(), mcp.Description("Path to the mission YAML file")),
		),
		HandleValidate,
	)

	s.AddTool(
		mcp.NewTool("cgt/build",
			mcp.WithDescription("Build the contextual goal tree of a mission and render it"),
			mcp.WithString("path", mcp.Required(), mcp.Description("Path to the mission YAML file")),
			mcp.WithString("format", mcp.Description("Output: ascii, mermaid or synthesis (default ascii)")),
			mcp.WithString("config", mcp.Description("Path to a cgt config YAML file (optional)")),
		),
		HandleBuild,
	)

	s.AddTool(
		mcp.NewTool("cgt/schema",
			mcp.WithDescription("Export the mission JSON Schema"),
			mcp.WithString("type", mcp.Description("Schema type: 'mission'")),
		),
		HandleSchema,
	)

	s.AddTool(
		mcp.NewTool("cgt/patterns",
			mcp.WithDescription("List the specification patterns goals can be written with"),
		),
		HandlePatterns,
	)

	return s
}
