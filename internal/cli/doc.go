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
Package cli provides shared root-command configuration for graphcore's CLI:
version information, global persistent flags, and centralized exit-code
handling. The root cobra.Command itself is built in cmd/graphcore/main.go;
this package only supplies the pieces every graphforge-family binary shares.

# Command Tree

	graphcore
	├── compile       Compile a graph without running it
	├── run           Run a compiled graph to completion
	├── trace         Replay a completed run's durable event log
	└── completion    Generate shell completion scripts

# Usage

From main.go:

	cli.SetVersion(version, commit, date)
	rootCmd := &cobra.Command{Use: "graphcore", ...}
	cli.RegisterGlobalFlags(rootCmd)
	rootCmd.AddCommand(graph.NewCompileCommand(), ...)
	if err := rootCmd.Execute(); err != nil {
	    cli.HandleExitError(err)
	}

# Global Flags

All commands inherit these flags:

	--verbose, -v    Enable verbose output
	--quiet, -q      Suppress non-error output
	--json           Output in JSON format
	--config         Path to config file

# Error Handling

Use HandleExitError for consistent exit codes:

  - Exit 0: Success
  - Exit 1: General error
  - Exit 2: Invalid graph or invalid command input (for example a missing --store)
*/
package cli
