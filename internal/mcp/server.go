// Package mcp publishes the workflow tools over the Model Context Protocol,
// on stdio for local agents and as a streamable HTTP handler for the API server.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"taskline/internal/engine"
	"taskline/internal/tools"
)

type ServerConfig struct {
	Name    string
	Version string
	Logger  *slog.Logger
}

type Server struct {
	cfg       ServerConfig
	registry  *tools.Registry
	mcpServer *mcpserver.MCPServer
}

func NewServer(cfg ServerConfig, registry *tools.Registry) *Server {
	if cfg.Name == "" {
		cfg.Name = "taskline"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	s := &Server{
		cfg:      cfg,
		registry: registry,
		mcpServer: mcpserver.NewMCPServer(
			cfg.Name,
			cfg.Version,
			mcpserver.WithToolCapabilities(true),
			mcpserver.WithRecovery(),
		),
	}
	s.registerTools()
	return s
}

// MCPServer exposes the underlying server for transports and tests.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

// HTTPHandler serves the streamable HTTP transport.
func (s *Server) HTTPHandler() http.Handler {
	return mcpserver.NewStreamableHTTPServer(s.mcpServer)
}

// ServeStdio speaks MCP on in/out until ctx is cancelled or in is closed.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := mcpserver.NewStdioServer(s.mcpServer)
	err := stdio.Listen(ctx, in, out)
	if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func (s *Server) registerTools() {
	list := s.registry.List()
	serverTools := make([]mcpserver.ServerTool, 0, len(list))
	for _, t := range list {
		serverTools = append(serverTools, mcpserver.ServerTool{
			Tool:    mcplib.NewToolWithRawSchema(t.Name, t.Description, t.InputSchema),
			Handler: s.handler(t.Name),
		})
	}
	s.mcpServer.AddTools(serverTools...)
}

func (s *Server) handler(name string) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
		args, err := json.Marshal(req.Params.Arguments)
		if err != nil {
			return mcplib.NewToolResultErrorFromErr("failed to encode arguments", err), nil
		}
		out, err := s.registry.Call(ctx, name, args)
		if err != nil {
			level := slog.LevelWarn
			if !isCallerError(err) {
				level = slog.LevelError
			}
			s.cfg.Logger.Log(ctx, level, "mcp tool call failed", "tool", name, "error", err)
			return mcplib.NewToolResultError(err.Error()), nil
		}
		data, err := json.Marshal(out)
		if err != nil {
			return mcplib.NewToolResultErrorFromErr("failed to marshal result", err), nil
		}
		return mcplib.NewToolResultText(string(data)), nil
	}
}

func isCallerError(err error) bool {
	return errors.Is(err, tools.ErrInvalidParameters) ||
		errors.Is(err, tools.ErrUnknownTool) ||
		errors.Is(err, engine.ErrNotFound) ||
		errors.Is(err, engine.ErrInvalidState)
}
