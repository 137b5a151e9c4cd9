package store

import "context"

// RunStore is the core run-lifecycle surface every backend must
// implement (spec §4.2 createRun/updateRunStatus), mirroring
// internal/controller/backend.RunStore's "minimal required interface"
// split.
type RunStore interface {
	// CreateRun persists a new run. If desc.IdempotencyKey matches a
	// run created within the configured dedup window, the existing
	// run is returned instead of creating a duplicate (spec §4.2,
	// §4.8).
	CreateRun(ctx context.Context, desc RunDescriptor) (*Run, error)

	GetRun(ctx context.Context, runID string) (*Run, error)

	UpdateRunStatus(ctx context.Context, runID string, status RunStatus, failure *Failure) error
}

// RunLister is an optional capability for listing historical runs
// (spec §4.2 listRuns), split out the way
// internal/controller/backend.RunLister is optional.
type RunLister interface {
	ListRuns(ctx context.Context, filter RunFilter) ([]*Run, error)
}

// NodeIOStore persists per-attempt action input/output records (spec
// §4.2 upsertNodeIO), idempotent under (runId, nodeRef, attempt).
type NodeIOStore interface {
	UpsertNodeIO(ctx context.Context, record NodeIORecord) error
	GetNodeIO(ctx context.Context, runID, nodeRef string, attempt int) (*NodeIORecord, error)
}

// EventStore is the durable side of the trace bus (spec §4.2
// appendEvents/listEvents, §4.3): the execution store is the system of
// record, while pkg/engine/tracebus is the purely in-memory live-tail
// layer backed by it.
type EventStore interface {
	// AppendEvents persists events for a run as a single transaction —
	// either all events are durable or none are (spec §5 "Shared
	// resources") — and returns the cursor of the last event appended.
	AppendEvents(ctx context.Context, runID string, events []Event) (newCursor uint64, err error)

	// ListEvents returns events for a run starting strictly after
	// fromCursor (0 means from the beginning), up to limit events, plus
	// the cursor to resume from.
	ListEvents(ctx context.Context, runID string, fromCursor uint64, limit int) (events []Event, nextCursor uint64, err error)
}

// Store composes the full execution-store surface (spec §4.2): a
// backend satisfies Store only if it implements all four interfaces,
// RunLister included. RunLister stays a separate interface so code that
// only lists runs can depend on it alone.
type Store interface {
	RunStore
	RunLister
	NodeIOStore
	EventStore
}
