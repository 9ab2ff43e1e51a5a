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

package validate

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/prakash09/api-connector/internal/catalog"
	"github.com/prakash09/api-connector/internal/commands/shared"
)

// Summary is the JSON form of a validation result.
type Summary struct {
	Path      string   `json:"path"`
	Valid     bool     `json:"valid"`
	Functions []string `json:"functions"`
	Warnings  []string `json:"warnings,omitempty"`
	Error     string   `json:"error,omitempty"`
}

// NewCommand creates the validate command
func NewCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [catalog]",
		Short: "Validate a function catalog",
		Annotations: map[string]string{
			"group": "execution",
		},
		Long: `Validate loads a catalog file and checks API, endpoint and function
definitions, mapping rules and auth records. It does not contact any API.

Without an argument the configured catalog path is used.`,
		Example: `  # Validate the configured catalog
  apihub validate

  # Validate a specific file with JSON output
  apihub validate ./catalog.yaml --json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runValidate,
	}
}

func runValidate(cmd *cobra.Command, args []string) error {
	var path string
	if len(args) == 1 {
		path = args[0]
	} else {
		settings, err := shared.LoadSettings()
		if err != nil {
			return &shared.ExitError{Code: shared.ExitConfigError, Message: "failed to load configuration", Cause: err}
		}
		path = settings.Catalog.Path
	}

	summary := Summary{Path: path, Functions: []string{}}
	snap, loadErr := catalog.LoadFile(path)
	if loadErr != nil {
		summary.Error = loadErr.Error()
	} else {
		summary.Valid = true
		summary.Warnings = snap.Warnings()
		fns, _ := snap.Functions(cmd.Context())
		for _, fn := range fns {
			summary.Functions = append(summary.Functions, fn.Name)
		}
		sort.Strings(summary.Functions)
	}

	if shared.GetJSON() {
		if err := shared.EmitJSON(cmd.OutOrStdout(), summary); err != nil {
			return err
		}
	} else {
		printSummary(cmd, summary)
	}

	if loadErr != nil {
		return shared.NewInvalidCatalogError("catalog validation failed", loadErr)
	}
	return nil
}

func printSummary(cmd *cobra.Command, s Summary) {
	out := cmd.OutOrStdout()
	if !s.Valid {
		fmt.Fprintf(out, "[FAIL] %s\n  %s\n", s.Path, s.Error)
		return
	}
	fmt.Fprintf(out, "[OK] %s (%d functions)\n", s.Path, len(s.Functions))
	for _, w := range s.Warnings {
		fmt.Fprintf(out, "  warning: %s\n", w)
	}
}
