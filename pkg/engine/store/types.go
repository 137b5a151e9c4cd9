package store

import "time"

// RunStatus is the closed set of terminal and non-terminal run states
// (spec §4.5, §4.6, §7).
type RunStatus string

const (
	RunPending   RunStatus = "PENDING"
	RunRunning   RunStatus = "RUNNING"
	RunSucceeded RunStatus = "SUCCEEDED"
	RunFailed    RunStatus = "FAILED"
	RunCancelled RunStatus = "CANCELLED"
	RunTimedOut  RunStatus = "TIMED_OUT"
)

// IsTerminal reports whether status ends the run's lifecycle.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunSucceeded, RunFailed, RunCancelled, RunTimedOut:
		return true
	default:
		return false
	}
}

// Failure is the structured reason a run or action did not succeed
// (spec §7 "User-visible failure").
type Failure struct {
	Reason  string         `json:"reason"`
	Kind    string         `json:"kind,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// RunDescriptor is the input to CreateRun (spec §6 "Run dispatch").
type RunDescriptor struct {
	RunID          string
	WorkflowID     string
	Version        int
	VersionID      string
	Inputs         map[string]any
	NodeOverrides  map[string]NodeOverride
	Trigger        Trigger
	IdempotencyKey string
	ParentRunID    string
	ParentNodeRef  string
}

// NodeOverride is a per-node override applied before input routing
// (spec §4.8).
type NodeOverride struct {
	Params         map[string]any `json:"params,omitempty"`
	InputOverrides map[string]any `json:"inputOverrides,omitempty"`
}

// Trigger records what caused a run to start.
type Trigger struct {
	Type     string `json:"type,omitempty"` // manual | schedule | api
	SourceID string `json:"sourceId,omitempty"`
	Label    string `json:"label,omitempty"`
}

// Run is the persisted record of a workflow execution (spec §6 "Run
// status").
type Run struct {
	RunID       string
	WorkflowID  string
	Status      RunStatus
	Failure     *Failure
	Progress    Progress
	Trigger     Trigger

	ParentRunID   string
	ParentNodeRef string

	IdempotencyKey string

	StartedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
}

// Progress reports coarse completion counters for a run.
type Progress struct {
	CompletedActions int
	TotalActions     int
}

// NodeIORecord is the persisted input/output payload for one action
// attempt (spec §4.2 upsertNodeIO). The final attempt for a node is the
// authoritative record; earlier attempts survive only as trace events
// (spec §5 "Ordering").
type NodeIORecord struct {
	RunID   string
	NodeRef string
	Attempt int

	Inputs  Payload
	Outputs Payload

	Status    string
	Failure   *Failure
	StartedAt time.Time
	EndedAt   *time.Time
}

// Payload is a JSON-serializable value that may have been spilled to
// external blob storage when it exceeds the inline threshold (spec
// §4.2 "Payload spill").
type Payload struct {
	Inline  map[string]any `json:"inline,omitempty"`
	Spilled bool           `json:"spilled"`
	BlobRef string         `json:"blobRef,omitempty"`
	Size    int            `json:"size"`
}

// RunFilter constrains ListRuns (spec §4.2 listRuns).
type RunFilter struct {
	WorkflowID string
	Status     RunStatus
	Limit      int
}

// MaxListRunsLimit bounds ListRuns per spec §4.2 ("limit ≤ 200").
const MaxListRunsLimit = 200

// MaxIdempotencyKeyLength bounds createRun's idempotencyKey (spec §4.2,
// §4.8).
const MaxIdempotencyKeyLength = 128
