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

package run

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/prakash09/api-connector/internal/catalog"
	"github.com/prakash09/api-connector/internal/commands/shared"
	"github.com/prakash09/api-connector/internal/function"
)

// NewFunctionsCommand creates the functions command
func NewFunctionsCommand() *cobra.Command {
	var catalogPath string

	cmd := &cobra.Command{
		Use:   "functions",
		Short: "List callable functions",
		Annotations: map[string]string{
			"group": "execution",
		},
		Long: `List the functions that can be executed: the function, its endpoint and
its API must all be active. With --json the output is the tool definition
list (name, description, JSON Schema parameters).`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFunctions(cmd, catalogPath)
		},
	}

	cmd.Flags().StringVar(&catalogPath, "catalog", "", "Catalog file (default: configured catalog)")
	return cmd
}

func runFunctions(cmd *cobra.Command, catalogPath string) error {
	if catalogPath == "" {
		settings, err := shared.LoadSettings()
		if err != nil {
			return &shared.ExitError{Code: shared.ExitConfigError, Message: "failed to load configuration", Cause: err}
		}
		catalogPath = settings.Catalog.Path
	}

	snap, err := catalog.LoadFile(catalogPath)
	if err != nil {
		return shared.NewInvalidCatalogError("failed to load catalog", err)
	}

	tools, err := function.NewExecutor(snap, nil).Tools(cmd.Context())
	if err != nil {
		return shared.NewExecutionError("failed to list functions", err)
	}

	if shared.WantJSON() {
		return shared.EmitJSON(cmd.OutOrStdout(), tools)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tDESCRIPTION")
	for _, t := range tools {
		fmt.Fprintf(w, "%s\t%s\n", t.Name, t.Description)
	}
	return w.Flush()
}
