package store

import "fmt"

// RunNotFoundError is returned when a run id has no corresponding
// record.
type RunNotFoundError struct {
	RunID string
}

func (e *RunNotFoundError) Error() string {
	return fmt.Sprintf("store: run %q not found", e.RunID)
}

// IdempotencyKeyTooLongError is returned by CreateRun when the
// descriptor's key exceeds MaxIdempotencyKeyLength.
type IdempotencyKeyTooLongError struct {
	Length int
}

func (e *IdempotencyKeyTooLongError) Error() string {
	return fmt.Sprintf("store: idempotencyKey length %d exceeds %d", e.Length, MaxIdempotencyKeyLength)
}

// InvalidListRunsLimitError is returned when a RunFilter requests more
// than MaxListRunsLimit.
type InvalidListRunsLimitError struct {
	Requested int
}

func (e *InvalidListRunsLimitError) Error() string {
	return fmt.Sprintf("store: listRuns limit %d exceeds %d", e.Requested, MaxListRunsLimit)
}
