// Package mcpsdk exposes the tool dispatcher over the stdio MCP
// transport using github.com/modelcontextprotocol/go-sdk/mcp, the way
// fyrsmithlabs-contextd's internal/mcp.Server wraps its own services:
// one mcp.Server, tools registered with mcp.AddTool, run over
// &mcp.StdioTransport{}.
//
// Stdio MCP clients (desktop integrations, CLI agents) have no HTTP
// headers to carry the X-API-Key / Authorization / X-Tenant-ID
// credentials the HTTP transport relies on, so this transport takes a
// single API key supplied by the host process at startup and sends the
// same credentials with every tool call on that session, where the
// dispatcher authenticates each call, consistent with how stdio MCP
// servers are normally embedded as a single-principal child process
// rather than a multi-user listener.
package mcpsdk

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ragforge/rag-mcp/internal/dispatcher"
	"github.com/ragforge/rag-mcp/internal/observability"
)

// Config configures the stdio server's identity and session-wide
// credentials.
type Config struct {
	Name       string
	Version    string
	APIKey     string
	TenantID   string // only honored for uber_admin API keys
	SessionID  string
}

// Server wraps an mcp.Server bound to one Dispatcher.
type Server struct {
	mcp    *mcp.Server
	d      *dispatcher.Dispatcher
	creds  dispatcher.Credentials
	logger observability.Logger
}

// NewServer constructs a Server and registers every tool name known to
// registry as an MCP tool, so the stdio surface never drifts from the
// HTTP transport's tool set: both are driven by the same
// dispatcher.Registry.
func NewServer(d *dispatcher.Dispatcher, registry *dispatcher.Registry, cfg Config, logger observability.Logger) *Server {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	name := cfg.Name
	if name == "" {
		name = "rag-mcp"
	}
	version := cfg.Version
	if version == "" {
		version = "dev"
	}

	impl := mcp.NewServer(&mcp.Implementation{Name: name, Version: version}, nil)

	s := &Server{
		mcp: impl,
		d:   d,
		creds: dispatcher.Credentials{
			APIKey:         cfg.APIKey,
			TenantIDHeader: cfg.TenantID,
			SessionID:      cfg.SessionID,
			IPAddress:      "stdio",
		},
		logger: logger,
	}

	for _, name := range registry.Names() {
		s.registerTool(name)
	}

	return s
}

// registerTool wires one dispatcher tool name through mcp.AddTool,
// using an untyped map[string]any for both input and output since the
// tool argument shapes are defined dynamically by
// internal/dispatcher/validate.go rather than by Go structs.
func (s *Server) registerTool(toolName string) {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        toolName,
		Description: fmt.Sprintf("RAG MCP tool %q", toolName),
	}, func(ctx context.Context, req *mcp.CallToolRequest, args map[string]interface{}) (*mcp.CallToolResult, map[string]interface{}, error) {
		result, err := s.d.Dispatch(ctx, toolName, s.creds, dispatcher.Args(args))
		if err != nil {
			s.logger.Error("stdio tool call failed", map[string]interface{}{"tool": toolName, "error": err.Error()})
			return &mcp.CallToolResult{
				IsError: true,
				Content: []mcp.Content{&mcp.TextContent{Text: err.Error()}},
			}, nil, nil
		}
		return nil, map[string]interface{}(result), nil
	})
}

// Run blocks serving tool calls over stdio until ctx is cancelled or
// the transport closes.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting MCP stdio transport", nil)
	if err := s.mcp.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("mcpsdk: stdio server run failed: %w", err)
	}
	return nil
}
