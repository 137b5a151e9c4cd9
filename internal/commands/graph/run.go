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

package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/graphforge/core/internal/commands/shared"
	"github.com/graphforge/core/pkg/engine/compiler"
	"github.com/graphforge/core/pkg/engine/orchestrator"
	"github.com/graphforge/core/pkg/engine/registry"
	"github.com/graphforge/core/pkg/engine/runner"
	"github.com/graphforge/core/pkg/engine/runtime"
	"github.com/graphforge/core/pkg/engine/store"
	"github.com/graphforge/core/pkg/engine/store/sqlite"
	"github.com/graphforge/core/pkg/engine/tracebus"

	"github.com/google/uuid"
)

// NewRunCommand creates the "run" subcommand: compile the graph, then
// drive it to completion through the orchestrator against either an
// in-memory store (the default, for a throwaway local run) or a
// durable sqlite file (--store), printing the terminal run status and
// outputs.
func NewRunCommand() *cobra.Command {
	var (
		inputsJSON  string
		workflowID  string
		runID       string
		storePath   string
		timeout     time.Duration
		concurrency int64
	)

	cmd := &cobra.Command{
		Use:   "run <graph.json>",
		Short: "Compile and execute a workflow graph to completion",
		Long: `Run compiles the given graph and drives it through the orchestrator
using the built-in reference component catalog (core.util.*), printing
the terminal run status, any failure reason, and the merged outputs of
the workflow's sink actions.

This is a local development aid, not a production dispatch path: the
orchestrator here is wired with the reference catalog only, and
--store points at a throwaway or local sqlite file rather than a
shared durable backend.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd.Context(), args[0], runOptions{
				inputsJSON:  inputsJSON,
				workflowID:  workflowID,
				runID:       runID,
				storePath:   storePath,
				timeout:     timeout,
				concurrency: concurrency,
			})
		},
	}

	cmd.Flags().StringVar(&inputsJSON, "inputs", "", "JSON object of entrypoint inputs")
	cmd.Flags().StringVar(&workflowID, "workflow-id", "local", "Workflow ID recorded on the run")
	cmd.Flags().StringVar(&runID, "run-id", "", "Run ID to use (default: a generated UUID)")
	cmd.Flags().StringVar(&storePath, "store", "", "Path to a sqlite store file (default: in-memory, discarded on exit)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Run-level timeout (default: unbounded)")
	cmd.Flags().Int64Var(&concurrency, "concurrency", orchestrator.DefaultConcurrency, "Run-wide concurrent-action cap")

	return cmd
}

type runOptions struct {
	inputsJSON  string
	workflowID  string
	runID       string
	storePath   string
	timeout     time.Duration
	concurrency int64
}

// traceSink appends events to the durable store and fans them out to
// a live bus, matching runtime.TraceSink's documented "callers that
// also want live fan-out wrap it" contract.
type traceSink struct {
	store store.EventStore
	bus   *tracebus.Bus
}

func (s *traceSink) AppendEvents(ctx context.Context, runID string, events []store.Event) (uint64, error) {
	cursor, err := s.store.AppendEvents(ctx, runID, events)
	if err != nil {
		return cursor, err
	}
	s.bus.Publish(runID, events)
	return cursor, nil
}

func runRun(ctx context.Context, path string, opts runOptions) error {
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
		return &shared.ExitError{Code: shared.ExitInvalidWorkflow, Message: fmt.Sprintf("graph did not compile: %v", err)}
	}

	var inputs map[string]any
	if opts.inputsJSON != "" {
		if err := json.Unmarshal([]byte(opts.inputsJSON), &inputs); err != nil {
			return &shared.ExitError{Code: shared.ExitInvalidWorkflow, Message: fmt.Sprintf("parse --inputs: %v", err)}
		}
	}

	st, closeStore, err := openStore(opts.storePath)
	if err != nil {
		return err
	}
	defer closeStore()

	bus := tracebus.New()
	rt := runtime.New(reg, &traceSink{store: st, bus: bus})
	if cr, err := runner.NewContainerRunner(); err == nil {
		rt = rt.WithRunner(registry.RunnerContainer, cr)
	}

	orc := orchestrator.New(st, rt).WithConcurrency(opts.concurrency)
	if opts.timeout > 0 {
		orc = orc.WithRunTimeout(opts.timeout)
	}

	runID := opts.runID
	if runID == "" {
		runID = uuid.NewString()
	}

	result, runErr := orc.Run(ctx, def, store.RunDescriptor{
		RunID:      runID,
		WorkflowID: opts.workflowID,
		Inputs:     inputs,
		Trigger:    store.Trigger{Type: "manual", Label: "graphcore run"},
	})

	return reportRunResult(runID, result, runErr)
}

func openStore(path string) (store.Store, func(), error) {
	if path == "" {
		return store.NewMemoryStore(), func() {}, nil
	}
	s, err := sqlite.New(sqlite.Config{Path: path})
	if err != nil {
		return nil, nil, &shared.ExitError{Code: shared.ExitExecutionFailed, Message: fmt.Sprintf("open sqlite store: %v", err)}
	}
	return s, func() { _ = s.Close() }, nil
}

func reportRunResult(runID string, result *orchestrator.RunResult, runErr error) error {
	if shared.GetJSON() {
		resp := map[string]any{"runId": runID}
		if result != nil {
			resp["status"] = result.Run.Status
			resp["outputs"] = result.Outputs
			if result.Run.Failure != nil {
				resp["failure"] = result.Run.Failure
			}
		}
		if runErr != nil {
			resp["error"] = runErr.Error()
		}
		_ = json.NewEncoder(os.Stdout).Encode(resp)
	} else if result != nil {
		fmt.Printf("run %s: %s\n", runID, result.Run.Status)
		if result.Run.Failure != nil {
			fmt.Println(shared.RenderError(result.Run.Failure.Reason))
		}
		for k, v := range result.Outputs {
			fmt.Printf("  %s = %v\n", k, v)
		}
	}

	if runErr != nil {
		return &shared.ExitError{Code: shared.ExitExecutionFailed, Message: "run did not succeed", Cause: runErr}
	}
	return nil
}
