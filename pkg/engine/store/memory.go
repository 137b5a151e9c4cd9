package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// IdempotencyWindow bounds how long a CreateRun idempotencyKey is
// deduplicated for (spec §4.2 "same key within a window returns the
// existing run").
const IdempotencyWindow = 24 * time.Hour

// MemoryStore is an in-process Store, the in-memory counterpart to
// pkg/engine/store/sqlite's durable backend — grounded on the same
// RunStore/RunLister split as internal/controller/backend, generalized
// to also cover node-IO and trace-event persistence.
type MemoryStore struct {
	mu sync.Mutex

	runs           map[string]*Run
	idempotency    map[string]idempotencyEntry
	nodeIO         map[nodeIOKey]*NodeIORecord
	events         map[string][]Event
	nextCursor     uint64
}

type idempotencyEntry struct {
	runID     string
	createdAt time.Time
}

type nodeIOKey struct {
	runID   string
	nodeRef string
	attempt int
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs:        make(map[string]*Run),
		idempotency: make(map[string]idempotencyEntry),
		nodeIO:      make(map[nodeIOKey]*NodeIORecord),
		events:      make(map[string][]Event),
	}
}

func (s *MemoryStore) CreateRun(ctx context.Context, desc RunDescriptor) (*Run, error) {
	if len(desc.IdempotencyKey) > MaxIdempotencyKeyLength {
		return nil, &IdempotencyKeyTooLongError{Length: len(desc.IdempotencyKey)}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if desc.IdempotencyKey != "" {
		if entry, ok := s.idempotency[desc.IdempotencyKey]; ok && time.Since(entry.createdAt) < IdempotencyWindow {
			if existing, found := s.runs[entry.runID]; found {
				return existing, nil
			}
		}
	}

	now := time.Now()
	run := &Run{
		RunID:          desc.RunID,
		WorkflowID:     desc.WorkflowID,
		Status:         RunPending,
		Trigger:        desc.Trigger,
		ParentRunID:    desc.ParentRunID,
		ParentNodeRef:  desc.ParentNodeRef,
		IdempotencyKey: desc.IdempotencyKey,
		StartedAt:      now,
		UpdatedAt:      now,
	}
	s.runs[run.RunID] = run
	if desc.IdempotencyKey != "" {
		s.idempotency[desc.IdempotencyKey] = idempotencyEntry{runID: run.RunID, createdAt: now}
	}
	return run, nil
}

func (s *MemoryStore) GetRun(ctx context.Context, runID string) (*Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return nil, &RunNotFoundError{RunID: runID}
	}
	copied := *run
	return &copied, nil
}

func (s *MemoryStore) UpdateRunStatus(ctx context.Context, runID string, status RunStatus, failure *Failure) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return &RunNotFoundError{RunID: runID}
	}
	run.Status = status
	run.Failure = failure
	run.UpdatedAt = time.Now()
	if status.IsTerminal() {
		now := time.Now()
		run.CompletedAt = &now
	}
	return nil
}

func (s *MemoryStore) ListRuns(ctx context.Context, filter RunFilter) ([]*Run, error) {
	if filter.Limit > MaxListRunsLimit {
		return nil, &InvalidListRunsLimitError{Requested: filter.Limit}
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = MaxListRunsLimit
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	matched := make([]*Run, 0, len(s.runs))
	for _, run := range s.runs {
		if filter.WorkflowID != "" && run.WorkflowID != filter.WorkflowID {
			continue
		}
		if filter.Status != "" && run.Status != filter.Status {
			continue
		}
		copied := *run
		matched = append(matched, &copied)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].StartedAt.After(matched[j].StartedAt)
	})
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (s *MemoryStore) UpsertNodeIO(ctx context.Context, record NodeIORecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := nodeIOKey{runID: record.RunID, nodeRef: record.NodeRef, attempt: record.Attempt}
	s.nodeIO[key] = &record
	return nil
}

func (s *MemoryStore) GetNodeIO(ctx context.Context, runID, nodeRef string, attempt int) (*NodeIORecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := nodeIOKey{runID: runID, nodeRef: nodeRef, attempt: attempt}
	record, ok := s.nodeIO[key]
	if !ok {
		return nil, &RunNotFoundError{RunID: runID}
	}
	copied := *record
	return &copied, nil
}

func (s *MemoryStore) AppendEvents(ctx context.Context, runID string, events []Event) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Cursors count per run, continuing from the run's last event.
	var cursor uint64
	if prior := s.events[runID]; len(prior) > 0 {
		cursor = prior[len(prior)-1].Cursor
	}
	for i := range events {
		cursor++
		events[i].Cursor = cursor
		events[i].RunID = runID
		if events[i].Timestamp.IsZero() {
			events[i].Timestamp = time.Now()
		}
	}
	s.events[runID] = append(s.events[runID], events...)
	return cursor, nil
}

func (s *MemoryStore) ListEvents(ctx context.Context, runID string, fromCursor uint64, limit int) ([]Event, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := s.events[runID]
	out := make([]Event, 0, len(all))
	for _, e := range all {
		if e.Cursor > fromCursor {
			out = append(out, e)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	next := fromCursor
	if len(out) > 0 {
		next = out[len(out)-1].Cursor
	}
	return out, next, nil
}

var _ Store = (*MemoryStore)(nil)
