// Package main provides the cgt-mcp binary: an MCP server exposing mission
// validation, goal tree building and the mission schema to AI agents.
package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"

	cmcp "github.com/ormasoftchile/cgt/pkg/ecosystem/mcp"
)

var version = "dev"

func main() {
	s := cmcp.NewServer(version)
	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
