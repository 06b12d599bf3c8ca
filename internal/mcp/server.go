// Package mcp exposes a visual editor session as Model Context Protocol
// tools, so an agent can read the state, edit options and drive the preview.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/standardbeagle/clangfmt-studio/internal/clangformat"
	"github.com/standardbeagle/clangfmt-studio/internal/formatter"
	"github.com/standardbeagle/clangfmt-studio/internal/host"
	"github.com/standardbeagle/clangfmt-studio/internal/recovery"
	"github.com/standardbeagle/clangfmt-studio/internal/state"
	"github.com/standardbeagle/clangfmt-studio/internal/studio"
)

// Studio is the session surface the tools drive. *studio.Coordinator
// implements it.
type Studio interface {
	ShowEditor(ctx context.Context) error
	State() state.VisualEditorState
	SetOption(ctx context.Context, key string, value clangformat.Value) error
	RunConfigAction(ctx context.Context, a studio.ConfigAction) error
	OpenPreview(ctx context.Context) (host.EditorID, error)
	ClosePreview(ctx context.Context) error
	PreviewText() (string, bool)
	FormatSample(ctx context.Context) (formatter.Result, formatter.Changes)
	RecentErrors(n int) []recovery.Error
	FormatterVersion(ctx context.Context) (string, error)
	FormatterStats() formatter.Stats
}

var _ Studio = (*studio.Coordinator)(nil)

// Server holds the MCP server and the session it drives
type Server struct {
	studio  Studio
	catalog clangformat.Catalog
	srv     *server.MCPServer
}

// NewServer builds an MCP server with every tool registered. A nil catalog
// uses the built-in one.
func NewServer(s Studio, catalog clangformat.Catalog, version string) *Server {
	if catalog == nil {
		catalog = clangformat.DefaultCatalog()
	}
	m := &Server{
		studio:  s,
		catalog: catalog,
		srv: server.NewMCPServer(
			"clangfmt-studio",
			version,
			server.WithToolCapabilities(true),
		),
	}
	m.registerTools()
	return m
}

// MCPServer returns the underlying protocol server
func (s *Server) MCPServer() *server.MCPServer {
	return s.srv
}

// ServeStdio serves the tools over stdin and stdout until stdin closes
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.srv)
}

// jsonResult renders v as indented JSON text content
func jsonResult(v interface{}) (*mcplib.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcplib.NewToolResultError(fmt.Sprintf("Failed to encode result: %v", err)), nil
	}
	return textResult(string(data)), nil
}

func textResult(text string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{
				Type: "text",
				Text: text,
			},
		},
	}
}
