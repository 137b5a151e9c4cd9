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

// Package graph wires cmd/graphcore's compile/run/trace subcommands to
// the pkg/engine pipeline. It follows the teacher's
// internal/commands/<verb> package-per-command layout and reuses
// internal/commands/shared for flag state, exit codes, and styled
// output rather than inventing a parallel CLI framework.
package graph

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/graphforge/core/internal/commands/shared"
	"github.com/graphforge/core/pkg/engine/builtins"
	"github.com/graphforge/core/pkg/engine/compiler"
	"github.com/graphforge/core/pkg/engine/registry"
)

// NewCompileCommand creates the "compile" subcommand: it reads a graph
// submission document (spec §6) and reports either the compiled
// definition or the validation error that rejected it.
func NewCompileCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compile <graph.json>",
		Short: "Compile a workflow graph and report validation errors",
		Long: `Compile reads a graph submission document (nodes, edges, viewport) and
runs it through the graph compiler: unique-ref checks, dependency/edge
referential integrity, cycle detection, join-strategy defaulting, and
entrypoint selection. On success it prints the compiled definition; on
failure it reports the rejection reason and exits non-zero.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(args[0])
		},
	}
	return cmd
}

func loadGraph(path string) (compiler.Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return compiler.Graph{}, &shared.ExitError{Code: shared.ExitInvalidWorkflow, Message: fmt.Sprintf("read graph file: %v", err)}
	}
	var g compiler.Graph
	if err := json.Unmarshal(data, &g); err != nil {
		return compiler.Graph{}, &shared.ExitError{Code: shared.ExitInvalidWorkflow, Message: fmt.Sprintf("parse graph JSON: %v", err)}
	}
	return g, nil
}

// defaultRegistry builds a component registry containing just the
// built-in reference components (builtins.RegisterAll); real
// deployments register their own catalog before compiling or running,
// since the catalog is out of this engine's scope.
func defaultRegistry() (*registry.Registry, error) {
	reg := registry.New()
	if err := builtins.RegisterAll(reg); err != nil {
		return nil, &shared.ExitError{Code: shared.ExitExecutionFailed, Message: fmt.Sprintf("register built-in components: %v", err)}
	}
	reg.Build()
	return reg, nil
}

func runCompile(path string) error {
	g, err := loadGraph(path)
	if err != nil {
		return err
	}
	reg, err := defaultRegistry()
	if err != nil {
		return err
	}

	def, err := compiler.Compile(g, reg)
	if err != nil {
		if shared.GetJSON() {
			_ = json.NewEncoder(os.Stdout).Encode(map[string]any{"success": false, "error": err.Error()})
		} else {
			fmt.Fprintln(os.Stderr, shared.RenderError(err.Error()))
		}
		return &shared.ExitError{Code: shared.ExitInvalidWorkflow, Message: "graph did not compile"}
	}

	if shared.GetJSON() {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(def)
	}

	fmt.Println(shared.RenderOK(fmt.Sprintf("%q compiled: %d actions, entrypoint %q", def.Name, def.TotalActions, def.EntrypointRef)))
	for _, a := range def.Actions {
		fmt.Printf("  %s  %-28s deps=%v\n", a.Ref, a.ComponentID, a.DependsOn)
	}
	return nil
}
