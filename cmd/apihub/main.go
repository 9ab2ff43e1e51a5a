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

package main

import (
	"github.com/prakash09/api-connector/internal/cli"
	configcmd "github.com/prakash09/api-connector/internal/commands/config"
	"github.com/prakash09/api-connector/internal/commands/management"
	"github.com/prakash09/api-connector/internal/commands/mcpserver"
	"github.com/prakash09/api-connector/internal/commands/run"
	"github.com/prakash09/api-connector/internal/commands/serve"
	"github.com/prakash09/api-connector/internal/commands/validate"
	versioncmd "github.com/prakash09/api-connector/internal/commands/version"
)

// Version information (injected via ldflags at build time)
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	cli.SetVersion(version, commit, buildDate)

	rootCmd := cli.NewRootCommand()

	// Execution commands
	rootCmd.AddCommand(run.NewCommand())
	rootCmd.AddCommand(run.NewFunctionsCommand())
	rootCmd.AddCommand(validate.NewCommand())

	// Servers
	rootCmd.AddCommand(serve.NewCommand())
	rootCmd.AddCommand(mcpserver.NewCommand())

	// Management commands
	rootCmd.AddCommand(management.NewRateLimitCommand())
	rootCmd.AddCommand(management.NewErrorsCommand())
	rootCmd.AddCommand(management.NewCallsCommand())
	rootCmd.AddCommand(configcmd.NewConfigCommand())

	rootCmd.AddCommand(versioncmd.NewVersionCommand())

	if err := rootCmd.Execute(); err != nil {
		cli.HandleExitError(err)
	}
}
