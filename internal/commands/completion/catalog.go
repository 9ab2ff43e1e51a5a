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

package completion

import (
	"context"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/prakash09/api-connector/internal/catalog"
	"github.com/prakash09/api-connector/internal/commands/shared"
)

// SafeCompletionWrapper wraps a completion function with panic recovery.
func SafeCompletionWrapper(fn func() ([]string, cobra.ShellCompDirective)) (results []string, directive cobra.ShellCompDirective) {
	results = []string{}
	directive = cobra.ShellCompDirectiveNoFileComp

	defer func() {
		if r := recover(); r != nil {
			results = []string{}
			directive = cobra.ShellCompDirectiveNoFileComp
		}
	}()

	results, directive = fn()
	if results == nil {
		return []string{}, cobra.ShellCompDirectiveNoFileComp
	}
	return results, directive
}

// loadCatalog reads the catalog named by --catalog or the configuration.
func loadCatalog(cmd *cobra.Command) (*catalog.Snapshot, error) {
	path := ""
	if f := cmd.Flags().Lookup("catalog"); f != nil {
		path = f.Value.String()
	}
	if path == "" {
		settings, err := shared.LoadSettings()
		if err != nil {
			return nil, err
		}
		path = settings.Catalog.Path
	}
	return catalog.LoadFile(path)
}

// CompleteFunctionNames completes the first argument with callable function
// names and their descriptions.
func CompleteFunctionNames(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return SafeCompletionWrapper(func() ([]string, cobra.ShellCompDirective) {
		if len(args) > 0 {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		snap, err := loadCatalog(cmd)
		if err != nil {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		fns, _ := snap.Functions(context.Background())

		var out []string
		for _, fn := range fns {
			if !fn.Callable() || !strings.HasPrefix(fn.Name, toComplete) {
				continue
			}
			out = append(out, describe(fn.Name, fn.Description))
		}
		sort.Strings(out)
		return out, cobra.ShellCompDirectiveNoFileComp
	})
}

// CompleteAPIIDs completes the first argument with API configuration IDs.
func CompleteAPIIDs(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return SafeCompletionWrapper(func() ([]string, cobra.ShellCompDirective) {
		if len(args) > 0 {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		snap, err := loadCatalog(cmd)
		if err != nil {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}

		var out []string
		for _, api := range snap.APIs() {
			if strings.HasPrefix(api.ID, toComplete) {
				out = append(out, describe(api.ID, api.Name))
			}
		}
		sort.Strings(out)
		return out, cobra.ShellCompDirectiveNoFileComp
	})
}

func describe(value, description string) string {
	if description == "" {
		return value
	}
	return value + "\t" + description
}
