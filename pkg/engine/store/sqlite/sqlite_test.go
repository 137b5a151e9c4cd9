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

package sqlite

import (
	"context"
	"testing"

	"github.com/graphforge/core/pkg/engine/store"
)

func TestSQLiteStoreCreateAndGetRun(t *testing.T) {
	s, err := New(Config{Path: ":memory:", MaxOpenConns: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	run, err := s.CreateRun(ctx, store.RunDescriptor{RunID: "run-1", WorkflowID: "wf-a", IdempotencyKey: "key-1"})
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if run.Status != store.RunPending {
		t.Errorf("Status = %v, want RunPending", run.Status)
	}

	got, err := s.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.WorkflowID != "wf-a" {
		t.Errorf("WorkflowID = %q, want wf-a", got.WorkflowID)
	}

	dup, err := s.CreateRun(ctx, store.RunDescriptor{RunID: "run-2", WorkflowID: "wf-a", IdempotencyKey: "key-1"})
	if err != nil {
		t.Fatalf("CreateRun (dup): %v", err)
	}
	if dup.RunID != "run-1" {
		t.Errorf("expected idempotency dedup to return run-1, got %q", dup.RunID)
	}
}

func TestSQLiteStoreUpdateRunStatus(t *testing.T) {
	s, err := New(Config{Path: ":memory:", MaxOpenConns: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	s.CreateRun(ctx, store.RunDescriptor{RunID: "run-1", WorkflowID: "wf-a"})

	failure := &store.Failure{Reason: "boom", Kind: "InternalError"}
	if err := s.UpdateRunStatus(ctx, "run-1", store.RunFailed, failure); err != nil {
		t.Fatalf("UpdateRunStatus: %v", err)
	}

	got, err := s.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Status != store.RunFailed {
		t.Errorf("Status = %v, want RunFailed", got.Status)
	}
	if got.Failure == nil || got.Failure.Reason != "boom" {
		t.Errorf("unexpected failure: %+v", got.Failure)
	}
	if got.CompletedAt == nil {
		t.Error("expected CompletedAt to be set")
	}
}

func TestSQLiteStoreNodeIOAndEvents(t *testing.T) {
	s, err := New(Config{Path: ":memory:", MaxOpenConns: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	s.CreateRun(ctx, store.RunDescriptor{RunID: "run-1", WorkflowID: "wf-a"})

	err = s.UpsertNodeIO(ctx, store.NodeIORecord{
		RunID: "run-1", NodeRef: "a", Attempt: 1,
		Inputs:  store.Payload{Inline: map[string]any{"x": float64(1)}},
		Outputs: store.Payload{Inline: map[string]any{"y": float64(2)}},
		Status:  "succeeded",
	})
	if err != nil {
		t.Fatalf("UpsertNodeIO: %v", err)
	}

	record, err := s.GetNodeIO(ctx, "run-1", "a", 1)
	if err != nil {
		t.Fatalf("GetNodeIO: %v", err)
	}
	if record.Outputs.Inline["y"] != float64(2) {
		t.Errorf("unexpected outputs: %+v", record.Outputs)
	}

	_, err = s.AppendEvents(ctx, "run-1", []store.Event{
		{NodeRef: "a", Type: store.EventStarted},
		{NodeRef: "a", Type: store.EventCompleted, Data: map[string]any{"ok": true}},
	})
	if err != nil {
		t.Fatalf("AppendEvents: %v", err)
	}

	events, _, err := s.ListEvents(ctx, "run-1", 0, 0)
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("len(events) = %d, want 2", len(events))
	}
	if events[0].Cursor >= events[1].Cursor {
		t.Errorf("expected increasing cursors, got %d then %d", events[0].Cursor, events[1].Cursor)
	}
}

func TestSQLiteStoreListRunsRejectsExcessiveLimit(t *testing.T) {
	s, err := New(Config{Path: ":memory:", MaxOpenConns: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	if _, err := s.ListRuns(context.Background(), store.RunFilter{Limit: store.MaxListRunsLimit + 1}); err == nil {
		t.Error("expected error for limit exceeding MaxListRunsLimit")
	}
}
