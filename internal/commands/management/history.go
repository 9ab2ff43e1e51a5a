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

	"github.com/prakash09/api-connector/internal/commands/shared"
)

// NewErrorsCommand creates the errors command
func NewErrorsCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "errors",
		Short: "Show recent error log entries",
		Annotations: map[string]string{
			"group": "management",
		},
		Long: `Show the most recent failed API calls recorded in the error log, newest
first. Use --json to include the request and response snapshots.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := shared.Bootstrap(ctx, shared.AppOptions{LogOutput: cmd.ErrOrStderr()})
			if err != nil {
				return err
			}
			defer app.Close(ctx)

			entries, err := app.Errors.RecentErrors(ctx, limit)
			if err != nil {
				return shared.NewExecutionError("failed to read error log", err)
			}

			if shared.WantJSON() {
				return shared.EmitJSON(cmd.OutOrStdout(), entries)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tLEVEL\tENDPOINT\tMESSAGE")
			for _, e := range entries {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.CreatedAt.Local().Format(time.DateTime), e.Level, e.RelatedID, e.Message)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of entries to show")
	return cmd
}

// NewCallsCommand creates the calls command
func NewCallsCommand() *cobra.Command {
	var (
		limit    int
		function string
	)

	cmd := &cobra.Command{
		Use:   "calls",
		Short: "Show recent function calls",
		Annotations: map[string]string{
			"group": "management",
		},
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := shared.Bootstrap(ctx, shared.AppOptions{LogOutput: cmd.ErrOrStderr()})
			if err != nil {
				return err
			}
			defer app.Close(ctx)

			records, err := app.Calls.RecentCalls(ctx, function, limit)
			if err != nil {
				return shared.NewExecutionError("failed to read call log", err)
			}

			if shared.WantJSON() {
				return shared.EmitJSON(cmd.OutOrStdout(), records)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tFUNCTION\tSTATUS\tCODE\tDURATION")
			for _, r := range records {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
					r.CreatedAt.Local().Format(time.DateTime), r.Function, r.Status, r.StatusCode, r.Duration.Round(time.Millisecond))
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of records to show")
	cmd.Flags().StringVarP(&function, "function", "f", "", "Only show calls of this function")
	return cmd
}
