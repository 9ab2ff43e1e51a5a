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
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/prakash09/api-connector/internal/commands/completion"
	"github.com/prakash09/api-connector/internal/commands/shared"
)

// Result is the JSON form of one execution.
type Result struct {
	Function   string         `json:"function"`
	Status     string         `json:"status"`
	StatusCode int            `json:"status_code"`
	Attempts   int            `json:"attempts,omitempty"`
	ElapsedMS  int64          `json:"elapsed_ms"`
	Result     any            `json:"result,omitempty"`
	Error      string         `json:"error,omitempty"`
	Arguments  map[string]any `json:"arguments"`
}

// NewCommand creates the exec command
func NewCommand() *cobra.Command {
	var (
		argsJSON string
		argPairs []string
		catalog  string
	)

	cmd := &cobra.Command{
		Use:   "exec <function>",
		Short: "Execute a catalog function",
		Annotations: map[string]string{
			"group": "execution",
		},
		Long: `Exec maps the arguments through the function's parameter mapping, calls
the bound API endpoint with retries and rate limiting, and prints the
mapped response.

Arguments come from --args (a JSON object) and --arg key=value pairs;
pairs override keys from --args.`,
		Example: `  # Create a Linear issue
  apihub exec create_linear_issue --args '{"title":"Login broken","priority":"high"}'

  # Same with key=value pairs
  apihub exec create_linear_issue --arg title="Login broken" --arg priority=high`,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completion.CompleteFunctionNames,
		SilenceUsage:      true,
		SilenceErrors:     true,
		RunE: func(cmd *cobra.Command, args []string) error {
			arguments, err := parseArguments(argsJSON, argPairs)
			if err != nil {
				return shared.NewInvalidArgumentsError("invalid arguments", err)
			}
			return runExec(cmd, args[0], arguments, catalog)
		},
	}

	cmd.Flags().StringVar(&argsJSON, "args", "", "Function arguments as a JSON object")
	cmd.Flags().StringArrayVar(&argPairs, "arg", nil, "Function argument as key=value (repeatable)")
	cmd.Flags().StringVar(&catalog, "catalog", "", "Catalog file (default: configured catalog)")

	return cmd
}

func runExec(cmd *cobra.Command, name string, arguments map[string]any, catalog string) error {
	ctx := cmd.Context()
	app, err := shared.Bootstrap(ctx, shared.AppOptions{Catalog: catalog, LogOutput: cmd.ErrOrStderr()})
	if err != nil {
		return err
	}
	defer app.Close(ctx)

	if err := app.Executor.Validate(ctx, name, arguments); err != nil {
		return shared.ClassifyValidationError(name, err)
	}

	_, resp, err := app.Executor.Execute(ctx, name, arguments)
	if err != nil {
		return shared.ClassifyCallError(name, err)
	}

	result := Result{
		Function:   name,
		Status:     "success",
		StatusCode: resp.StatusCode,
		Attempts:   resp.Attempts,
		ElapsedMS:  resp.Elapsed.Milliseconds(),
		Arguments:  arguments,
	}
	if resp.OK() {
		result.Result = resp.Result()
	} else {
		result.Status = "failed"
		result.Error = resp.Error
	}

	if err := printResult(cmd, result); err != nil {
		return err
	}
	if !resp.OK() {
		return shared.NewUpstreamError(fmt.Sprintf("%s returned %d", name, resp.StatusCode), fmt.Errorf("%s", resp.Error))
	}
	return nil
}

func printResult(cmd *cobra.Command, r Result) error {
	if shared.WantJSON() {
		return shared.EmitJSON(cmd.OutOrStdout(), r)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s: %s (HTTP %d, %d ms)\n", r.Function, r.Status, r.StatusCode, r.ElapsedMS)
	if r.Error != "" {
		fmt.Fprintf(out, "  error: %s\n", r.Error)
		return nil
	}
	data, err := json.MarshalIndent(r.Result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(out, string(data))
	return nil
}

// parseArguments merges a JSON object with key=value pairs.
func parseArguments(argsJSON string, pairs []string) (map[string]any, error) {
	args := map[string]any{}
	if argsJSON != "" {
		if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
			return nil, fmt.Errorf("--args must be a JSON object: %w", err)
		}
		if args == nil {
			args = map[string]any{}
		}
	}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("--arg %q must be key=value", pair)
		}
		args[key] = value
	}
	return args, nil
}
