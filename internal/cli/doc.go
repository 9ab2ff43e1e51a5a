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

/*
Package cli provides the root command for apihub's CLI.

This package creates the root Cobra command and handles global concerns like
version information, persistent flags and exit codes. Individual commands
are implemented in the internal/commands subpackages.

# Command Tree

	apihub
	├── exec          Execute a catalog function
	├── functions     List callable functions
	├── validate      Validate a catalog file
	├── serve         Serve the HTTP API
	├── mcp-server    Serve functions as MCP tools on stdio
	├── ratelimit     Inspect rate-limit windows
	├── errors        Show recent error log entries
	├── calls         Show recent function calls
	└── version       Show version

# Usage

From main.go:

	cli.SetVersion(version, commit, date)
	rootCmd := cli.NewRootCommand()
	// ... add commands ...
	if err := rootCmd.Execute(); err != nil {
	    cli.HandleExitError(err)
	}

# Global Flags

	--verbose, -v    Debug logging
	--json           Output in JSON format (default when stdout is not a terminal)
	--config         Path to config file
*/
package cli
