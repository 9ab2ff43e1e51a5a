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

package mcpserver

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/prakash09/api-connector/internal/catalog"
	"github.com/prakash09/api-connector/internal/commands/shared"
	"github.com/prakash09/api-connector/internal/mcp/server"
)

// NewCommand creates the mcp-server command
func NewCommand() *cobra.Command {
	var callsPerMinute int

	cmd := &cobra.Command{
		Use:   "mcp-server",
		Short: "Serve catalog functions as MCP tools",
		Annotations: map[string]string{
			"group": "server",
		},
		Long: `Start an MCP (Model Context Protocol) server on stdio.

Every callable catalog function becomes a tool whose input schema is the
function's parameters schema. Tool calls run through the same mapping,
retry and rate limiting as 'apihub exec'.

Configuration example for an MCP client:
  {
    "mcpServers": {
      "apihub": {
        "command": "apihub",
        "args": ["mcp-server"]
      }
    }
  }

Logs go to stderr; stdout carries the protocol.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMCPServer(cmd, callsPerMinute)
		},
	}

	cmd.Flags().IntVar(&callsPerMinute, "calls-per-minute", 100, "Maximum tool calls per minute")
	return cmd
}

func runMCPServer(cmd *cobra.Command, callsPerMinute int) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := shared.Bootstrap(ctx, shared.AppOptions{LogOutput: os.Stderr})
	if err != nil {
		return err
	}
	defer app.Close(context.Background())

	versionStr, _, _ := shared.GetVersion()
	srv, err := server.NewServer(ctx, app.Executor, server.ServerConfig{
		Name:           "apihub",
		Version:        versionStr,
		CallsPerMinute: callsPerMinute,
		Logger:         app.Logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	app.Catalog.OnReload(func(*catalog.Snapshot) {
		if err := srv.Sync(ctx); err != nil {
			app.Logger.Error("failed to sync MCP tools", "error", err)
		}
	})
	if err := app.WatchCatalog(ctx); err != nil {
		return shared.NewExecutionError("failed to watch catalog", err)
	}

	return srv.Run(ctx)
}
