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

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/prakash09/api-connector/internal/commands/shared"
	"github.com/prakash09/api-connector/internal/config"
	"github.com/prakash09/api-connector/internal/log"
)

// NewConfigCommand creates the config command with subcommands
func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View configuration",
		Annotations: map[string]string{
			"group": "management",
		},
		Long: `View apihub configuration.

Subcommands:
  show - Display the effective configuration
  path - Show config file location`,
	}

	cmd.AddCommand(newConfigShowCommand())
	cmd.AddCommand(newConfigPathCommand())

	// If no subcommand provided, default to 'show'
	cmd.RunE = runConfigShow

	return cmd
}

func newConfigShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display the effective configuration",
		Long: `Display the configuration apihub runs with: defaults, then the config
file, then .env and environment overrides.

Secrets (redis password, exporter headers) are masked.`,
		Args: cobra.NoArgs,
		RunE: runConfigShow,
	}
}

func newConfigPathCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Show config file location",
		Args:  cobra.NoArgs,
		RunE:  runConfigPath,
	}
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := shared.LoadSettings()
	if err != nil {
		return &shared.ExitError{Code: shared.ExitConfigError, Message: "failed to load configuration", Cause: err}
	}

	masked := maskSensitiveConfig(cfg)

	// Round-trip through YAML so both formats use the file's key names.
	data, err := yaml.Marshal(masked)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if shared.GetJSON() {
		var doc map[string]any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("failed to encode config: %w", err)
		}
		return shared.EmitJSON(cmd.OutOrStdout(), doc)
	}

	out := cmd.OutOrStdout()
	path, _ := resolvePath()
	fmt.Fprintf(out, "Configuration: %s\n", path)
	fmt.Fprintln(out, strings.Repeat("=", 50))
	fmt.Fprintln(out)
	_, err = out.Write(data)
	return err
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	path, err := resolvePath()
	if err != nil {
		return fmt.Errorf("failed to determine config path: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), path)
	return nil
}

func resolvePath() (string, error) {
	if p := shared.GetConfigPath(); p != "" {
		return p, nil
	}
	p, err := config.DefaultConfigPath()
	if err != nil {
		return "", err
	}
	if _, statErr := os.Stat(p); statErr != nil {
		return p + " (not found, using defaults)", nil
	}
	return p, nil
}

// maskSensitiveConfig returns a copy of cfg with secrets masked.
func maskSensitiveConfig(cfg *config.Settings) *config.Settings {
	masked := *cfg
	if masked.Backend.Redis.Password != "" {
		masked.Backend.Redis.Password = log.SanitizeSecret(masked.Backend.Redis.Password)
	}
	if len(cfg.Tracing.Headers) > 0 {
		masked.Tracing.Headers = log.SanitizeHeaders(cfg.Tracing.Headers)
	}
	return &masked
}
