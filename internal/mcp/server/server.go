// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package server exposes catalog functions as MCP tools over stdio.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"golang.org/x/time/rate"

	"github.com/prakash09/api-connector/internal/connector"
	"github.com/prakash09/api-connector/internal/function"
	"github.com/prakash09/api-connector/internal/log"
)

// Executor is the function surface exposed as tools.
type Executor interface {
	Execute(ctx context.Context, name string, args map[string]any) (*connector.Request, *connector.Response, error)
	Validate(ctx context.Context, name string, args map[string]any) error
	Tools(ctx context.Context) ([]function.Tool, error)
}

// Server wraps the MCP server and keeps one tool per callable function.
type Server struct {
	mcpServer *server.MCPServer
	exec      Executor
	version   string
	limiter   *rate.Limiter
	logger    *slog.Logger

	mu    sync.Mutex
	tools map[string]bool
}

// ServerConfig configures the MCP server
type ServerConfig struct {
	// Name is the server name (default: "apihub")
	Name string

	// Version is the apihub version
	Version string

	// CallsPerMinute limits tool calls (default: 100).
	CallsPerMinute int

	// Logger must not write to stdout, which carries the protocol.
	Logger *slog.Logger
}

// NewServer creates a server and registers the executor's current tools.
func NewServer(ctx context.Context, exec Executor, config ServerConfig) (*Server, error) {
	if config.Name == "" {
		config.Name = "apihub"
	}
	if config.Version == "" {
		config.Version = "dev"
	}
	if config.CallsPerMinute <= 0 {
		config.CallsPerMinute = 100
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		mcpServer: server.NewMCPServer(config.Name, config.Version, server.WithToolCapabilities(true)),
		exec:      exec,
		version:   config.Version,
		limiter:   rate.NewLimiter(rate.Limit(float64(config.CallsPerMinute)/60.0), config.CallsPerMinute),
		logger:    log.WithComponent(logger, "mcp"),
		tools:     make(map[string]bool),
	}

	if err := s.Sync(ctx); err != nil {
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}
	return s, nil
}

// Sync makes the registered tools match the executor's callable functions.
// It is called again after a catalog reload.
func (s *Server) Sync(ctx context.Context) error {
	tools, err := s.exec.Tools(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current := make(map[string]bool, len(tools))
	for _, t := range tools {
		current[t.Name] = true
	}

	var stale []string
	for name := range s.tools {
		if !current[name] {
			stale = append(stale, name)
		}
	}
	if len(stale) > 0 {
		s.mcpServer.DeleteTools(stale...)
	}

	for _, t := range tools {
		s.mcpServer.AddTool(toMCPTool(t), s.handleCall(t.Name))
	}
	s.tools = current

	s.logger.Debug("mcp tools synced", "count", len(tools), "removed", len(stale))
	return nil
}

// ToolNames returns the registered tool names, sorted.
func (s *Server) ToolNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.tools))
	for name := range s.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run serves the MCP protocol on stdio until stdin closes.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("Starting apihub MCP server", slog.String("version", s.version))
	if err := server.ServeStdio(s.mcpServer); err != nil {
		return fmt.Errorf("MCP server error: %w", err)
	}
	return nil
}

// toMCPTool converts a function's JSON Schema into an MCP input schema.
func toMCPTool(t function.Tool) mcp.Tool {
	schema := mcp.ToolInputSchema{
		Type:       "object",
		Properties: map[string]any{},
	}
	if props, ok := t.Parameters["properties"].(map[string]any); ok {
		schema.Properties = props
	}
	switch req := t.Parameters["required"].(type) {
	case []string:
		schema.Required = req
	case []any:
		for _, r := range req {
			if name, ok := r.(string); ok {
				schema.Required = append(schema.Required, name)
			}
		}
	}
	return mcp.Tool{
		Name:        t.Name,
		Description: t.Description,
		InputSchema: schema,
	}
}

// handleCall routes a tool call to the executor.
func (s *Server) handleCall(name string) func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if !s.limiter.Allow() {
			return errorResponse("Rate limit exceeded, retry shortly"), nil
		}

		args := map[string]any{}
		if request.Params.Arguments != nil {
			m, ok := request.Params.Arguments.(map[string]any)
			if !ok {
				return errorResponse("Invalid arguments format"), nil
			}
			args = m
		}

		if err := s.exec.Validate(ctx, name, args); err != nil {
			return errorResponse(fmt.Sprintf("Invalid arguments: %v", err)), nil
		}

		_, resp, err := s.exec.Execute(ctx, name, args)
		switch {
		case errors.Is(err, connector.ErrRateLimited):
			return errorResponse("Upstream API rate limit reached, retry later"), nil
		case err != nil:
			s.logger.Error("tool call failed", log.FunctionKey, name, "error", err)
			return errorResponse(fmt.Sprintf("Call failed: %v", err)), nil
		case !resp.OK():
			return errorResponse(fmt.Sprintf("Call failed with status %d: %s", resp.StatusCode, resp.Error)), nil
		}

		data, err := json.MarshalIndent(resp.Result(), "", "  ")
		if err != nil {
			return textResponse(fmt.Sprintf("%v", resp.Result())), nil
		}
		return textResponse(string(data)), nil
	}
}

// Helper function to create error response
func errorResponse(message string) *mcp.CallToolResult {
	return mcp.NewToolResultError(message)
}

// Helper function to create success response
func textResponse(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(text),
		},
	}
}
