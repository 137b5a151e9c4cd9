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

	"github.com/spf13/cobra"

	"github.com/graphforge/core/internal/commands/shared"
	"github.com/graphforge/core/pkg/engine/store/sqlite"
)

// NewTraceCommand creates the "trace" subcommand: it replays the
// persisted trace events for a previously completed run (spec §6
// "Trace stream" batch form; the live-tail form belongs to the daemon,
// not this offline CLI).
func NewTraceCommand() *cobra.Command {
	var (
		storePath  string
		fromCursor uint64
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "trace <run-id>",
		Short: "Print the persisted trace events for a run",
		Long: `Trace reads back the durable event log for a run from a sqlite store
(created by a prior "graphcore run --store <path>") and prints each
event in cursor order: timestamp, type, node, attempt, level, and
message.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(cmd.Context(), args[0], storePath, fromCursor, limit)
		},
	}

	cmd.Flags().StringVar(&storePath, "store", "", "Path to the sqlite store file (required)")
	cmd.Flags().Uint64Var(&fromCursor, "from-cursor", 0, "Resume from this cursor (0 = from the beginning)")
	cmd.Flags().IntVar(&limit, "limit", 500, "Maximum events to print")
	_ = cmd.MarkFlagRequired("store")

	return cmd
}

func runTrace(ctx context.Context, runID, storePath string, fromCursor uint64, limit int) error {
	if storePath == "" {
		return &shared.ExitError{Code: shared.ExitInvalidWorkflow, Message: "--store is required"}
	}
	s, err := sqlite.New(sqlite.Config{Path: storePath})
	if err != nil {
		return &shared.ExitError{Code: shared.ExitExecutionFailed, Message: fmt.Sprintf("open sqlite store: %v", err)}
	}
	defer s.Close()

	events, _, err := s.ListEvents(ctx, runID, fromCursor, limit)
	if err != nil {
		return &shared.ExitError{Code: shared.ExitExecutionFailed, Message: fmt.Sprintf("list events: %v", err)}
	}

	if shared.GetJSON() {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(events)
	}

	for _, ev := range events {
		fmt.Printf("%s  %-10s %-20s attempt=%d %-5s %s\n", ev.Timestamp.Format("15:04:05.000"), ev.Type, ev.NodeRef, ev.Attempt, ev.Level, ev.Message)
	}
	return nil
}
