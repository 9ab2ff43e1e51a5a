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

package serve

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/prakash09/api-connector/internal/commands/shared"
	"github.com/prakash09/api-connector/internal/server"
)

// NewCommand creates the serve command
func NewCommand() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the function execution HTTP API",
		Annotations: map[string]string{
			"group": "server",
		},
		Long: `Serve exposes the catalog over HTTP:

  GET  /v1/functions                  list callable functions
  POST /v1/functions/{name}/execute   execute a function
  GET  /v1/errors                     recent error log entries
  GET  /v1/calls                      recent function calls
  GET  /healthz                       liveness
  GET  /metrics                       Prometheus metrics

The catalog is reloaded on change when catalog.watch is enabled.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default: server.addr from config)")
	return cmd
}

func runServe(cmd *cobra.Command, addr string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := shared.Bootstrap(ctx, shared.AppOptions{Telemetry: true, LogOutput: cmd.ErrOrStderr()})
	if err != nil {
		return err
	}
	defer app.Close(context.Background())

	if err := app.WatchCatalog(ctx); err != nil {
		return shared.NewExecutionError("failed to watch catalog", err)
	}

	settings := app.Settings
	if addr == "" {
		addr = settings.Server.Addr
	}

	handler := server.NewHandler(app.Executor, server.Options{
		Logger:       app.Logger,
		IngressRate:  settings.Server.IngressRate,
		IngressBurst: settings.Server.IngressBurst,
		Errors:       app.Errors,
		Calls:        app.Calls,
	})

	if err := server.Serve(ctx, addr, handler, settings.Server.ShutdownTimeout, app.Logger); err != nil {
		return shared.NewExecutionError("server failed", err)
	}
	return nil
}
