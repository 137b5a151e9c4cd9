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

import (
	"context"
	"sync"

	"github.com/graphforge/core/pkg/engine/compiler"
	"github.com/graphforge/core/pkg/engine/store"
)

// ActionStatus is one state in the per-action state machine (spec
// §4.5): waiting → ready → running → (succeeded | failed | skipped).
type ActionStatus string

const (
	StatusWaiting   ActionStatus = "waiting"
	StatusReady     ActionStatus = "ready"
	StatusRunning   ActionStatus = "running"
	StatusSucceeded ActionStatus = "succeeded"
	StatusFailed    ActionStatus = "failed"
	StatusSkipped   ActionStatus = "skipped"
)

// runState is the orchestrator's in-memory bookkeeping for one
// in-progress run: per-action status, remaining dependency counters,
// accumulated input values, and the outputs cache later actions'
// input routing reads from. It is private to the scheduling loop in
// orchestrator.go; the durable record of truth is always
// pkg/engine/store, which every significant transition is mirrored to.
type runState struct {
	mu sync.Mutex

	def *compiler.Definition

	status    map[string]ActionStatus
	remaining map[string]int
	fired     map[string]bool
	attempt   map[string]int

	// mapped accumulates, per action ref, the inputs routed from
	// upstream outputs (handle -> value, or handle -> []any for a
	// fan-in list port).
	mapped map[string]map[string]any
	// listAccum tracks the ordered values collected so far for a
	// list-typed input fed by more than one source edge (spec §4.6
	// "collected into a list preserving topological order").
	listAccum map[string]map[string][]any

	outputs map[string]map[string]any
	cancel  map[string]context.CancelFunc

	nodeOverrides map[string]store.NodeOverride

	resolvedCount int
}

func newRunState(def *compiler.Definition, desc store.RunDescriptor) *runState {
	rs := &runState{
		def:           def,
		status:        make(map[string]ActionStatus, def.TotalActions),
		remaining:     make(map[string]int, def.TotalActions),
		fired:         make(map[string]bool, def.TotalActions),
		attempt:       make(map[string]int, def.TotalActions),
		mapped:        make(map[string]map[string]any, def.TotalActions),
		listAccum:     make(map[string]map[string][]any, def.TotalActions),
		outputs:       make(map[string]map[string]any, def.TotalActions),
		cancel:        make(map[string]context.CancelFunc, def.TotalActions),
		nodeOverrides: desc.NodeOverrides,
	}
	for _, a := range def.Actions {
		rs.status[a.Ref] = StatusWaiting
		rs.remaining[a.Ref] = def.DependencyCounts[a.Ref]
		rs.mapped[a.Ref] = make(map[string]any)
		if len(a.DependsOn) == 0 {
			// No inbound edges at all: there is nothing to "match", so
			// treat as trivially fired rather than skipped. The
			// entrypoint is always one of these; a constant-valued node
			// with no predecessors can be another.
			rs.fired[a.Ref] = true
		}
	}
	if entry, ok := def.ActionByRef(def.EntrypointRef); ok {
		for handle, value := range desc.Inputs {
			rs.mapped[entry.Ref][handle] = value
		}
	}
	return rs
}

// readyRefs returns every action ref currently Waiting whose
// readiness condition has been met, transitioning each to Ready as it
// is returned. Called only from the single scheduling goroutine, so
// no external locking is required by callers, but the internal fields
// are still mutex-guarded since action goroutines call markRunning,
// inputsFor and overridesFor concurrently.
func (rs *runState) readyRefs() []string {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	var ready []string
	for _, a := range rs.def.Actions {
		if rs.status[a.Ref] != StatusWaiting {
			continue
		}
		if rs.remaining[a.Ref] <= 0 && rs.fired[a.Ref] {
			rs.status[a.Ref] = StatusReady
			ready = append(ready, a.Ref)
			continue
		}
		if rs.remaining[a.Ref] <= 0 && !rs.fired[a.Ref] {
			// All predecessors resolved, but none fired a matching
			// edge into this action: skip (spec §4.5 "waiting → skipped").
			rs.status[a.Ref] = StatusSkipped
			rs.resolvedCount++
			rs.resolveSuccessorsLocked(a.Ref, "", nil)
		}
	}
	return ready
}

// unresolvedCount reports how many actions have not yet reached a
// terminal status (succeeded/failed/skipped).
func (rs *runState) unresolvedCount() int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.def.TotalActions - rs.resolvedCount
}

// markRunning transitions ref from Ready to Running and records its
// per-action cancel func for later "first" join-strategy cancellation.
func (rs *runState) markRunning(ref string, cancel context.CancelFunc) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.status[ref] = StatusRunning
	rs.cancel[ref] = cancel
	rs.attempt[ref]++
}

func (rs *runState) inputsFor(ref string) map[string]any {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	in := make(map[string]any, len(rs.mapped[ref]))
	for k, v := range rs.mapped[ref] {
		in[k] = v
	}
	for handle, values := range rs.listAccum[ref] {
		cp := make([]any, len(values))
		copy(cp, values)
		in[handle] = cp
	}
	return in
}

func (rs *runState) overridesFor(ref string) store.NodeOverride {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.nodeOverrides[ref]
}

// finishSucceeded records a succeeded action's outputs and resolves its
// successors, per spec §4.5 "running → succeeded".
func (rs *runState) finishSucceeded(ref string, outputs map[string]any) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.status[ref] = StatusSucceeded
	rs.outputs[ref] = outputs
	rs.resolvedCount++
	delete(rs.cancel, ref)
	rs.resolveSuccessorsLocked(ref, compiler.EdgeSuccess, outputs)
}

// finishFailed records a failed action and resolves its successors.
// Whether a failure edge exists determines what finishFailed's caller
// (the scheduling loop) does about the run as a whole: §4.5 "(a) routes
// via a kind=failure outbound edge, in which case the run continues, or
// (b) terminates the run".
func (rs *runState) finishFailed(ref string) bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.status[ref] = StatusFailed
	rs.resolvedCount++
	delete(rs.cancel, ref)

	a, _ := rs.def.ActionByRef(ref)
	hasFailureEdge := false
	for _, e := range a.Outgoing {
		if e.Kind == compiler.EdgeFailure {
			hasFailureEdge = true
		}
	}
	rs.resolveSuccessorsLocked(ref, compiler.EdgeFailure, nil)
	return hasFailureEdge
}

// finishCancelled marks a "first"-join loser as skipped rather than
// failed: it lost the race to a sibling, not its own error, so it
// must not fail the run (spec §4.6 "first: ... cancels the rest").
func (rs *runState) finishCancelled(ref string) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.status[ref] = StatusSkipped
	rs.resolvedCount++
	delete(rs.cancel, ref)
	rs.resolveSuccessorsLocked(ref, "", nil)
}

// resolveSuccessorsLocked is the single place dependency bookkeeping
// changes: it walks every edge leaving ref exactly once, and for each
// distinct target still Waiting decrements its remaining counter
// exactly once (DependencyCounts is a count of distinct predecessor
// refs, not of edges — a predecessor can reach one target over more
// than one port). A target's fired flag is set, and its value merged,
// only for edges whose Kind equals outcome; outcome "" (used for a
// skipped or cancelled predecessor) never matches any edge, so it only
// decrements — exactly the "counts toward resolution as if it had
// completed with no output" behavior spec §4.5 describes for a skipped
// upstream action. Callers must hold rs.mu.
func (rs *runState) resolveSuccessorsLocked(ref string, outcome compiler.EdgeKind, outputs map[string]any) {
	a, ok := rs.def.ActionByRef(ref)
	if !ok {
		return
	}
	decremented := make(map[string]bool, len(a.Outgoing))
	for _, e := range a.Outgoing {
		if rs.status[e.TargetRef] != StatusWaiting {
			continue
		}
		matches := outcome != "" && e.Kind == outcome

		if matches {
			rs.mergeValueLocked(e, outputs)
			target, _ := rs.def.ActionByRef(e.TargetRef)
			wasFired := rs.fired[e.TargetRef]
			rs.fired[e.TargetRef] = true
			if target != nil && target.EffectiveJoinStrategy() != compiler.JoinAll && !wasFired {
				// any/first: ready on the first qualifying edge,
				// independent of how many predecessors remain (§4.6).
				rs.remaining[e.TargetRef] = 0
				decremented[e.TargetRef] = true
				continue
			}
		}

		if !decremented[e.TargetRef] {
			rs.remaining[e.TargetRef]--
			decremented[e.TargetRef] = true
		}
	}
}

// mergeValueLocked applies one qualifying edge's routed value into its
// target's accumulated inputs: a scalar overwrite for an ordinary
// single-source port, or an ordered append for a list-typed port fed by
// more than one source edge (spec §4.6 fan-in).
func (rs *runState) mergeValueLocked(e compiler.OutgoingEdge, outputs map[string]any) {
	if outputs == nil {
		return
	}
	target, ok := rs.def.ActionByRef(e.TargetRef)
	if !ok {
		return
	}
	if mappings, ok := target.InputMappings[e.TargetHandle]; ok && len(mappings) > 1 {
		if rs.listAccum[e.TargetRef] == nil {
			rs.listAccum[e.TargetRef] = make(map[string][]any)
		}
		rs.listAccum[e.TargetRef][e.TargetHandle] = append(rs.listAccum[e.TargetRef][e.TargetHandle], outputs[e.SourceHandle])
	} else {
		rs.mapped[e.TargetRef][e.TargetHandle] = outputs[e.SourceHandle]
	}
}

// firstJoinPeers returns the cancel funcs of any still-running actions
// that feed the same target via a different source ref, for the
// "first" join strategy's "cancels peers still in-flight" behavior.
func (rs *runState) firstJoinPeers(targetRef, winningSourceRef string) []context.CancelFunc {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	var peers []context.CancelFunc
	target, ok := rs.def.ActionByRef(targetRef)
	if !ok {
		return nil
	}
	for _, dep := range target.DependsOn {
		if dep == winningSourceRef {
			continue
		}
		if rs.status[dep] == StatusRunning {
			if cancel, ok := rs.cancel[dep]; ok {
				peers = append(peers, cancel)
			}
		}
	}
	return peers
}
