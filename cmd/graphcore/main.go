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

// graphcore is the CLI for the graph compiler / orchestrator / runtime
// pipeline: compile validates a graph, run drives it to completion
// locally, and trace replays a completed run's durable event log.
package main

import (
	"github.com/spf13/cobra"

	"github.com/graphforge/core/internal/cli"
	"github.com/graphforge/core/internal/commands/completion"
	"github.com/graphforge/core/internal/commands/graph"
)

// Version information (injected via ldflags at build time)
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	cli.SetVersion(version, commit, buildDate)

	rootCmd := &cobra.Command{
		Use:   "graphcore",
		Short: "graphcore - workflow graph compiler, orchestrator, and runtime",
		Long: `graphcore compiles visual workflow graphs into executable definitions
and drives them through the activity runtime and orchestrator: compile
validates a graph without running it, run executes one to completion
against the built-in reference component catalog, and trace replays a
completed run's durable event log.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cli.RegisterGlobalFlags(rootCmd)

	rootCmd.AddCommand(graph.NewCompileCommand())
	rootCmd.AddCommand(graph.NewRunCommand())
	rootCmd.AddCommand(graph.NewTraceCommand())
	rootCmd.AddCommand(completion.NewCommand())
	rootCmd.AddCommand(cli.NewHelpCommand(rootCmd))

	if err := rootCmd.Execute(); err != nil {
		cli.HandleExitError(err)
	}
}
