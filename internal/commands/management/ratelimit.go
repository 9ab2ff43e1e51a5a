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

package management

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/prakash09/api-connector/internal/commands/completion"
	"github.com/prakash09/api-connector/internal/commands/shared"
	"github.com/prakash09/api-connector/internal/connector"
)

// Status is the JSON form of an API's current rate-limit window.
type Status struct {
	API         string    `json:"api"`
	Enabled     bool      `json:"enabled"`
	Limit       string    `json:"limit"`
	Count       int       `json:"count"`
	Remaining   int       `json:"remaining"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
}

// NewRateLimitCommand creates the ratelimit command group
func NewRateLimitCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ratelimit",
		Short: "Inspect rate-limit windows",
		Annotations: map[string]string{
			"group": "management",
		},
	}
	cmd.AddCommand(newRateLimitStatusCommand())
	return cmd
}

func newRateLimitStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status <api-id>",
		Short: "Show the current window of an API",
		Long: `Show how many calls the current fixed window of an API has admitted.
Counts come from the configured backend, so they reflect every process
sharing it.`,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completion.CompleteAPIIDs,
		SilenceUsage:      true,
		SilenceErrors:     true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := shared.Bootstrap(ctx, shared.AppOptions{LogOutput: cmd.ErrOrStderr()})
			if err != nil {
				return err
			}
			defer app.Close(ctx)

			api, err := app.Catalog.API(ctx, args[0])
			if err != nil {
				return shared.NewInvalidArgumentsError("unknown API "+args[0], err)
			}

			usage, err := app.Limiter.Usage(ctx, connector.TargetAPIConfig, api.ID, api.RateLimit, time.Now())
			if err != nil {
				return shared.NewExecutionError("failed to read rate-limit window", err)
			}

			status := Status{
				API:         api.ID,
				Enabled:     app.Settings.Connector.RateLimitEnabled && api.RateLimitEnabled,
				Limit:       usage.Limit,
				Count:       usage.Count,
				Remaining:   max(usage.Spec.Limit-usage.Count, 0),
				WindowStart: usage.WindowStart,
				WindowEnd:   usage.WindowEnd,
			}

			if shared.WantJSON() {
				return shared.EmitJSON(cmd.OutOrStdout(), status)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "API:\t%s\n", status.API)
			fmt.Fprintf(w, "Enabled:\t%t\n", status.Enabled)
			fmt.Fprintf(w, "Limit:\t%s\n", status.Limit)
			fmt.Fprintf(w, "Used:\t%d\n", status.Count)
			fmt.Fprintf(w, "Remaining:\t%d\n", status.Remaining)
			fmt.Fprintf(w, "Window:\t%s - %s\n", status.WindowStart.Format(time.RFC3339), status.WindowEnd.Format(time.RFC3339))
			return w.Flush()
		},
	}
}
