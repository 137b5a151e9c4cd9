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

package orchestrator

import "fmt"

// StalledSchedulerError is raised when the scheduling loop observes
// inflight=0 ∧ ready=∅ ∧ unresolved>0 — a state spec §4.5 calls "a bug"
// since C3 already rejects cycles, making a live deadlock impossible
// under a correct implementation.
type StalledSchedulerError struct {
	RunID      string
	Unresolved int
}

func (e *StalledSchedulerError) Error() string {
	return fmt.Sprintf("orchestrator: run %q stalled with %d unresolved actions and no inflight or ready work", e.RunID, e.Unresolved)
}

// UnknownActionError is returned when an edge or override references
// an action ref the compiled definition does not contain. Compile
// already guarantees referential integrity, so this indicates the
// orchestrator was handed a Definition that didn't come from Compile.
type UnknownActionError struct {
	Ref string
}

func (e *UnknownActionError) Error() string {
	return fmt.Sprintf("orchestrator: unknown action ref %q", e.Ref)
}

// RunTimedOutError marks a run that exceeded its configured run-level
// timeout (spec §4.5 "Run-level timeout ... on expiry the run becomes
// TIMED_OUT").
type RunTimedOutError struct {
	RunID string
}

func (e *RunTimedOutError) Error() string {
	return fmt.Sprintf("orchestrator: run %q exceeded its timeout", e.RunID)
}
