package store_test

import (
	"context"
	"strings"
	"testing"

	"github.com/graphforge/core/pkg/engine/store"
)

func TestCreateRunIdempotency(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()

	first, err := s.CreateRun(ctx, store.RunDescriptor{RunID: "run-1", WorkflowID: "wf", IdempotencyKey: "key-a"})
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	second, err := s.CreateRun(ctx, store.RunDescriptor{RunID: "run-2", WorkflowID: "wf", IdempotencyKey: "key-a"})
	if err != nil {
		t.Fatalf("CreateRun (dup): %v", err)
	}
	if second.RunID != first.RunID {
		t.Errorf("expected dedup to return original run %q, got %q", first.RunID, second.RunID)
	}
}

func TestCreateRunRejectsLongIdempotencyKey(t *testing.T) {
	s := store.NewMemoryStore()
	_, err := s.CreateRun(context.Background(), store.RunDescriptor{
		RunID:          "run-1",
		IdempotencyKey: strings.Repeat("x", store.MaxIdempotencyKeyLength+1),
	})
	if err == nil {
		t.Fatal("expected error for too-long idempotency key")
	}
}

func TestUpdateRunStatusSetsCompletedAt(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	s.CreateRun(ctx, store.RunDescriptor{RunID: "run-1"})

	if err := s.UpdateRunStatus(ctx, "run-1", store.RunSucceeded, nil); err != nil {
		t.Fatalf("UpdateRunStatus: %v", err)
	}
	run, err := s.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Status != store.RunSucceeded {
		t.Errorf("Status = %v, want RunSucceeded", run.Status)
	}
	if run.CompletedAt == nil {
		t.Error("expected CompletedAt to be set for terminal status")
	}
}

func TestListRunsFiltersAndBoundsLimit(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	s.CreateRun(ctx, store.RunDescriptor{RunID: "r1", WorkflowID: "a"})
	s.CreateRun(ctx, store.RunDescriptor{RunID: "r2", WorkflowID: "b"})
	s.UpdateRunStatus(ctx, "r2", store.RunFailed, &store.Failure{Reason: "boom", Kind: "InternalError"})

	runs, err := s.ListRuns(ctx, store.RunFilter{WorkflowID: "a"})
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 1 || runs[0].RunID != "r1" {
		t.Errorf("unexpected filtered runs: %+v", runs)
	}

	if _, err := s.ListRuns(ctx, store.RunFilter{Limit: store.MaxListRunsLimit + 1}); err == nil {
		t.Error("expected error for limit exceeding MaxListRunsLimit")
	}
}

func TestAppendAndListEventsCursorOrdering(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()

	cursor, err := s.AppendEvents(ctx, "run-1", []store.Event{
		{Type: store.EventStarted, NodeRef: "a"},
		{Type: store.EventCompleted, NodeRef: "a"},
	})
	if err != nil {
		t.Fatalf("AppendEvents: %v", err)
	}
	if cursor == 0 {
		t.Error("expected non-zero cursor")
	}

	events, next, err := s.ListEvents(ctx, "run-1", 0, 0)
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("len(events) = %d, want 2", len(events))
	}
	if events[0].Cursor >= events[1].Cursor {
		t.Errorf("expected strictly increasing cursors, got %d then %d", events[0].Cursor, events[1].Cursor)
	}
	if next != events[1].Cursor {
		t.Errorf("next cursor = %d, want %d", next, events[1].Cursor)
	}

	tail, _, err := s.ListEvents(ctx, "run-1", events[0].Cursor, 0)
	if err != nil {
		t.Fatalf("ListEvents (tail): %v", err)
	}
	if len(tail) != 1 || tail[0].Cursor != events[1].Cursor {
		t.Errorf("unexpected tail: %+v", tail)
	}
}

func TestNodeIOUpsertIsKeyedByAttempt(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()

	err := s.UpsertNodeIO(ctx, store.NodeIORecord{RunID: "run-1", NodeRef: "a", Attempt: 1, Status: "failed"})
	if err != nil {
		t.Fatalf("UpsertNodeIO attempt 1: %v", err)
	}
	err = s.UpsertNodeIO(ctx, store.NodeIORecord{RunID: "run-1", NodeRef: "a", Attempt: 2, Status: "succeeded"})
	if err != nil {
		t.Fatalf("UpsertNodeIO attempt 2: %v", err)
	}

	r1, err := s.GetNodeIO(ctx, "run-1", "a", 1)
	if err != nil {
		t.Fatalf("GetNodeIO attempt 1: %v", err)
	}
	r2, err := s.GetNodeIO(ctx, "run-1", "a", 2)
	if err != nil {
		t.Fatalf("GetNodeIO attempt 2: %v", err)
	}
	if r1.Status != "failed" || r2.Status != "succeeded" {
		t.Errorf("attempts not independently keyed: %+v %+v", r1, r2)
	}
}

type fakeBlob struct {
	data map[string][]byte
}

func newFakeBlob() *fakeBlob { return &fakeBlob{data: make(map[string][]byte)} }

func (f *fakeBlob) Put(ctx context.Context, ref string, data []byte) error {
	f.data[ref] = data
	return nil
}

func (f *fakeBlob) Get(ctx context.Context, ref string) ([]byte, error) {
	return f.data[ref], nil
}

func TestSpillingStoreSpillsLargePayloads(t *testing.T) {
	ctx := context.Background()
	base := store.NewMemoryStore()
	blob := newFakeBlob()
	spilling := store.NewSpillingStore(base, blob, 16) // tiny threshold forces a spill

	big := map[string]any{"value": strings.Repeat("x", 100)}
	err := spilling.UpsertNodeIO(ctx, store.NodeIORecord{
		RunID: "run-1", NodeRef: "a", Attempt: 1,
		Outputs: store.Payload{Inline: big},
	})
	if err != nil {
		t.Fatalf("UpsertNodeIO: %v", err)
	}

	record, err := spilling.GetNodeIO(ctx, "run-1", "a", 1)
	if err != nil {
		t.Fatalf("GetNodeIO: %v", err)
	}
	if !record.Outputs.Spilled {
		t.Fatal("expected outputs to be spilled")
	}
	if record.Outputs.BlobRef == "" {
		t.Error("expected a populated blob ref")
	}

	resolved, err := spilling.ResolvePayload(ctx, record.Outputs, 0)
	if err != nil {
		t.Fatalf("ResolvePayload: %v", err)
	}
	if resolved["value"] != big["value"] {
		t.Errorf("resolved payload mismatch: %v", resolved)
	}
}

func TestSpillingStoreLeavesSmallPayloadsInline(t *testing.T) {
	ctx := context.Background()
	base := store.NewMemoryStore()
	blob := newFakeBlob()
	spilling := store.NewSpillingStore(base, blob, store.DefaultSpillThreshold)

	err := spilling.UpsertNodeIO(ctx, store.NodeIORecord{
		RunID: "run-1", NodeRef: "a", Attempt: 1,
		Outputs: store.Payload{Inline: map[string]any{"ok": true}},
	})
	if err != nil {
		t.Fatalf("UpsertNodeIO: %v", err)
	}
	record, err := spilling.GetNodeIO(ctx, "run-1", "a", 1)
	if err != nil {
		t.Fatalf("GetNodeIO: %v", err)
	}
	if record.Outputs.Spilled {
		t.Error("expected small payload to remain inline")
	}
}
