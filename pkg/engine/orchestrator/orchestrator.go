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
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/graphforge/core/pkg/engine/compiler"
	"github.com/graphforge/core/pkg/engine/errkind"
	"github.com/graphforge/core/pkg/engine/runtime"
	"github.com/graphforge/core/pkg/engine/store"
	"github.com/graphforge/core/pkg/engine/subworkflow"
)

// DefaultConcurrency bounds the number of actions a single run may
// have in flight at once, absent an explicit WithConcurrency call.
const DefaultConcurrency = 16

// RunResult bundles the persisted run record with its computed
// outputs: the merged output maps of every sink action (one with no
// outgoing edges of its own), in topological order. Spec.md never
// names a "run output" type directly, but §4.9 requires that "the
// child's terminal status and outputs propagate back as the node's
// outputs" for core.workflow.call — this is the shape that lets the
// orchestrator satisfy that without inventing a second schema.
type RunResult struct {
	Run     *store.Run
	Outputs map[string]any
}

// Orchestrator is the workflow orchestrator (spec §4.5-§4.6, C7): it
// drives one compiled Definition to completion per Run call, dispatching
// ready actions through an engine/runtime.Runtime and persisting every
// transition through an engine/store.Store.
type Orchestrator struct {
	store   store.Store
	runtime *runtime.Runtime

	resolver subworkflow.Resolver

	concurrency int64
	runTimeout  time.Duration

	logger *slog.Logger
}

// New constructs an Orchestrator against a durable store and activity
// runtime, mirroring pkg/workflow's NewExecutor-plus-With*-setters
// construction style.
func New(st store.Store, rt *runtime.Runtime) *Orchestrator {
	return &Orchestrator{
		store:       st,
		runtime:     rt,
		concurrency: DefaultConcurrency,
		logger:      slog.Default(),
	}
}

// WithResolver attaches the sub-workflow resolver used to dispatch
// core.workflow.call nodes (spec §4.9). Without one, a graph containing
// that component fails with a ConfigurationError the first time it is
// reached.
func (o *Orchestrator) WithResolver(r subworkflow.Resolver) *Orchestrator {
	o.resolver = r
	return o
}

// WithConcurrency overrides the run-wide cap on simultaneously
// in-flight actions.
func (o *Orchestrator) WithConcurrency(n int64) *Orchestrator {
	if n > 0 {
		o.concurrency = n
	}
	return o
}

// WithRunTimeout sets the run-level deadline past which a still-running
// run is force-completed as TIMED_OUT (spec §4.5). Zero (the default)
// means no run-level timeout is enforced here.
func (o *Orchestrator) WithRunTimeout(d time.Duration) *Orchestrator {
	o.runTimeout = d
	return o
}

// WithLogger overrides the orchestrator's logger.
func (o *Orchestrator) WithLogger(logger *slog.Logger) *Orchestrator {
	o.logger = logger
	return o
}

// Run starts (or resumes, via CreateRun's idempotency dedup) a run of
// def and drives it to a terminal status, returning the persisted run
// record and its computed outputs.
func (o *Orchestrator) Run(ctx context.Context, def *compiler.Definition, desc store.RunDescriptor) (*RunResult, error) {
	return o.run(ctx, def, desc, 0)
}

type actionResult struct {
	ref     string
	outputs map[string]any
	err     error
}

func (o *Orchestrator) run(ctx context.Context, def *compiler.Definition, desc store.RunDescriptor, depth int) (*RunResult, error) {
	run, err := o.store.CreateRun(ctx, desc)
	if err != nil {
		return nil, err
	}
	if run.Status.IsTerminal() {
		// Idempotent replay of an already-finished run (spec §4.2, §4.8).
		return &RunResult{Run: run, Outputs: o.sinkOutputsOf(def, nil)}, nil
	}

	runCtx := ctx
	var cancelTimeout context.CancelFunc
	if o.runTimeout > 0 {
		runCtx, cancelTimeout = context.WithTimeout(ctx, o.runTimeout)
		defer cancelTimeout()
	}
	runCtx, cancelRun := context.WithCancel(runCtx)
	defer cancelRun()

	if err := o.transition(ctx, run, store.RunRunning, nil); err != nil {
		return nil, err
	}

	rs := newRunState(def, desc)
	runSem := make(chan struct{}, o.concurrency)
	groupSems := make(map[string]*semaphore.Weighted)
	completions := make(chan actionResult, def.TotalActions+1)

	inflight := 0
	var runFailure *store.Failure

	dispatch := func(ref string) {
		inflight++
		go o.dispatchAction(runCtx, def, rs, ref, desc, depth, completions, runSem, groupSems)
	}

	for _, ref := range rs.readyRefs() {
		dispatch(ref)
	}

	for rs.unresolvedCount() > 0 {
		if inflight == 0 {
			err := &StalledSchedulerError{RunID: desc.RunID, Unresolved: rs.unresolvedCount()}
			o.finishFailed(ctx, run, err)
			return nil, err
		}

		select {
		case <-runCtx.Done():
			cancelRun()
			o.drain(completions, inflight)
			if runFailure != nil {
				// runCtx was cancelled internally to unwind in-flight
				// siblings after an unhandled action failure, not by
				// the caller or a timeout — report the failure, not a
				// generic cancellation.
				run.Failure = runFailure
				o.transition(ctx, run, store.RunFailed, runFailure)
				return &RunResult{Run: run, Outputs: o.sinkOutputsOf(def, rs)}, fmt.Errorf("orchestrator: run %q failed: %s", desc.RunID, runFailure.Reason)
			}
			if o.runTimeout > 0 && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
				timeoutErr := &RunTimedOutError{RunID: desc.RunID}
				f := &store.Failure{Reason: timeoutErr.Error(), Kind: string(runtime.Classify(timeoutErr))}
				run.Failure = f
				if tErr := o.transition(ctx, run, store.RunTimedOut, f); tErr != nil {
					o.logger.Error("orchestrator: failed to persist timed-out status", "runId", run.RunID, "error", tErr)
				}
				return nil, timeoutErr
			}
			o.transition(ctx, run, store.RunCancelled, nil)
			return &RunResult{Run: run, Outputs: o.sinkOutputsOf(def, rs)}, runCtx.Err()

		case res := <-completions:
			inflight--
			if res.err != nil && !errors.Is(res.err, context.Canceled) {
				hasFailureEdge := rs.finishFailed(res.ref)
				if !hasFailureEdge {
					runFailure = failureFromErr(res.ref, res.err)
					cancelRun()
				}
			} else if res.err != nil {
				rs.finishCancelled(res.ref)
			} else {
				rs.finishSucceeded(res.ref, res.outputs)
				o.cancelFirstJoinPeers(rs, res.ref)
			}

			for _, ref := range rs.readyRefs() {
				if runFailure == nil {
					dispatch(ref)
				}
			}

			if runFailure != nil && inflight == 0 {
				run.Failure = runFailure
				o.transition(ctx, run, store.RunFailed, runFailure)
				return &RunResult{Run: run, Outputs: o.sinkOutputsOf(def, rs)}, fmt.Errorf("orchestrator: run %q failed: %s", desc.RunID, runFailure.Reason)
			}
		}
	}

	if runFailure != nil {
		run.Failure = runFailure
		o.transition(ctx, run, store.RunFailed, runFailure)
		return &RunResult{Run: run, Outputs: o.sinkOutputsOf(def, rs)}, fmt.Errorf("orchestrator: run %q failed: %s", desc.RunID, runFailure.Reason)
	}

	if err := o.transition(ctx, run, store.RunSucceeded, nil); err != nil {
		return nil, err
	}
	return &RunResult{Run: run, Outputs: o.sinkOutputsOf(def, rs)}, nil
}

// drain empties the completions channel without further processing,
// letting the already-spawned goroutines for inflight actions settle
// after the run has been cancelled or timed out.
func (o *Orchestrator) drain(completions chan actionResult, inflight int) {
	for i := 0; i < inflight; i++ {
		<-completions
	}
}

func (o *Orchestrator) finishFailed(ctx context.Context, run *store.Run, err error) {
	f := &store.Failure{Reason: err.Error(), Kind: string(runtime.Classify(err))}
	run.Failure = f
	if tErr := o.transition(ctx, run, store.RunFailed, f); tErr != nil {
		o.logger.Error("orchestrator: failed to persist terminal failure status", "runId", run.RunID, "error", tErr)
	}
}

func failureFromErr(ref string, err error) *store.Failure {
	return &store.Failure{
		Reason: err.Error(),
		Kind:   string(runtime.Classify(err)),
		Details: map[string]any{
			"nodeRef": ref,
		},
	}
}

// transition persists a run status change and emits the corresponding
// RUN_STATUS_CHANGED trace event (spec §4.5, §4.3).
func (o *Orchestrator) transition(ctx context.Context, run *store.Run, status store.RunStatus, failure *store.Failure) error {
	run.Status = status
	if err := o.store.UpdateRunStatus(ctx, run.RunID, status, failure); err != nil {
		return err
	}
	ev := store.Event{
		RunID:     run.RunID,
		Type:      store.EventRunStatusChanged,
		Level:     store.LevelInfo,
		Message:   fmt.Sprintf("run status changed to %s", status),
		Failure:   failure,
		Timestamp: time.Now().UTC(),
	}
	if _, err := o.store.AppendEvents(ctx, run.RunID, []store.Event{ev}); err != nil {
		o.logger.Warn("orchestrator: failed to append run status event", "runId", run.RunID, "error", err)
	}
	return nil
}

// cancelFirstJoinPeers cancels any still-running sibling predecessors
// of successRef's "first"-strategy targets, once successRef has won the
// race (spec §4.6 "first: dispatch on the first inbound edge to fire
// ... cancels the rest").
func (o *Orchestrator) cancelFirstJoinPeers(rs *runState, successRef string) {
	a, ok := rs.def.ActionByRef(successRef)
	if !ok {
		return
	}
	for _, e := range a.Outgoing {
		target, ok := rs.def.ActionByRef(e.TargetRef)
		if !ok || target.EffectiveJoinStrategy() != compiler.JoinFirst {
			continue
		}
		for _, cancel := range rs.firstJoinPeers(e.TargetRef, successRef) {
			cancel()
		}
	}
}

// dispatchAction runs exactly one action to completion (including its
// own retry policy, inside runtime.Invoke) under the run-wide and
// per-group concurrency caps, and reports the outcome on completions.
// Grounded on pkg/workflow/executor.go's executeParallel: a goroutine
// per unit of work, acquiring a capacity token before doing anything
// else and releasing it on return.
func (o *Orchestrator) dispatchAction(ctx context.Context, def *compiler.Definition, rs *runState, ref string, desc store.RunDescriptor, depth int, completions chan<- actionResult, runSem chan struct{}, groupSems map[string]*semaphore.Weighted) {
	select {
	case runSem <- struct{}{}:
		defer func() { <-runSem }()
	case <-ctx.Done():
		completions <- actionResult{ref: ref, err: ctx.Err()}
		return
	}

	a, ok := def.ActionByRef(ref)
	if !ok {
		completions <- actionResult{ref: ref, err: &UnknownActionError{Ref: ref}}
		return
	}

	if a.GroupID != "" && a.MaxConcurrency > 0 {
		sem := groupSemaphore(groupSems, a.GroupID, a.MaxConcurrency)
		if err := sem.Acquire(ctx, 1); err != nil {
			completions <- actionResult{ref: ref, err: err}
			return
		}
		defer sem.Release(1)
	}

	actionCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	rs.markRunning(ref, cancel)

	overrides := rs.overridesFor(ref)
	params := mergeMaps(a.Params, overrides.Params)
	inputOverrides := mergeMaps(a.InputOverrides, overrides.InputOverrides)
	mapped := rs.inputsFor(ref)

	if a.ComponentID == subworkflow.ComponentID {
		out, err := o.dispatchSubworkflow(actionCtx, a, mapped, params, desc, depth)
		completions <- actionResult{ref: ref, outputs: out, err: err}
		return
	}

	res, err := o.runtime.Invoke(actionCtx, runtime.InvokeRequest{
		RunID:          desc.RunID,
		NodeRef:        ref,
		ComponentID:    a.ComponentID,
		Params:         params,
		MappedInputs:   mapped,
		InputOverrides: inputOverrides,
		Attempt:        1,
	})
	if err != nil {
		completions <- actionResult{ref: ref, err: err}
		return
	}
	completions <- actionResult{ref: ref, outputs: res.Outputs}
}

// dispatchSubworkflow implements the core.workflow.call component
// (spec §4.9): it resolves the target workflow, starts a child run with
// this node's routed inputs, and propagates the child's terminal status
// and outputs back as this node's result.
func (o *Orchestrator) dispatchSubworkflow(ctx context.Context, a *compiler.Action, mapped, params map[string]any, parentDesc store.RunDescriptor, depth int) (map[string]any, error) {
	if o.resolver == nil {
		return nil, &runtime.ActivityError{
			ComponentRef: subworkflow.ComponentID,
			NodeRef:      a.Ref,
			Kind:         errkind.ConfigurationError,
			Message:      "no subworkflow resolver configured",
		}
	}
	if depth+1 > subworkflow.MaxNestingDepth {
		return nil, &subworkflow.TooDeepError{Depth: depth + 1}
	}

	cp := parseCallParams(params)
	childDef, err := o.resolver.Resolve(cp.WorkflowID, cp.VersionStrategy, cp.VersionID)
	if err != nil {
		return nil, err
	}

	childDesc := store.RunDescriptor{
		RunID:         uuid.NewString(),
		WorkflowID:    cp.WorkflowID,
		VersionID:     cp.VersionID,
		Inputs:        mapped,
		Trigger:       store.Trigger{Type: "subworkflow", SourceID: parentDesc.RunID},
		ParentRunID:   parentDesc.RunID,
		ParentNodeRef: a.Ref,
	}

	result, err := o.run(ctx, childDef, childDesc, depth+1)
	if err != nil {
		return nil, err
	}
	if result.Run.Status != store.RunSucceeded {
		return nil, &runtime.ActivityError{
			ComponentRef: subworkflow.ComponentID,
			NodeRef:      a.Ref,
			Kind:         runtime.Classify(errors.New(statusFailureReason(result.Run))),
			Message:      fmt.Sprintf("subworkflow %q child run %q terminated as %s", cp.WorkflowID, childDesc.RunID, result.Run.Status),
		}
	}
	return result.Outputs, nil
}

func statusFailureReason(run *store.Run) string {
	if run.Failure != nil {
		return run.Failure.Reason
	}
	return string(run.Status)
}

// parseCallParams extracts a core.workflow.call node's configured
// target from its compiled params map.
func parseCallParams(params map[string]any) subworkflow.CallParams {
	cp := subworkflow.CallParams{VersionStrategy: subworkflow.VersionLatest}
	if v, ok := params["workflowId"].(string); ok {
		cp.WorkflowID = v
	}
	if v, ok := params["versionStrategy"].(string); ok && v != "" {
		cp.VersionStrategy = subworkflow.VersionStrategy(v)
	}
	if v, ok := params["versionId"].(string); ok {
		cp.VersionID = v
	}
	return cp
}

func mergeMaps(base, overrides map[string]any) map[string]any {
	if len(base) == 0 && len(overrides) == 0 {
		return nil
	}
	out := make(map[string]any, len(base)+len(overrides))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overrides {
		out[k] = v
	}
	return out
}

func groupSemaphore(sems map[string]*semaphore.Weighted, groupID string, maxConcurrency int) *semaphore.Weighted {
	sem, ok := sems[groupID]
	if !ok {
		sem = semaphore.NewWeighted(int64(maxConcurrency))
		sems[groupID] = sem
	}
	return sem
}

// sinkOutputsOf merges the outputs of every action with no outgoing
// edges, in topological order, as the run's overall result (spec §4.9
// leans on this for sub-workflow output propagation; no other part of
// the surface names a run-output shape).
func (o *Orchestrator) sinkOutputsOf(def *compiler.Definition, rs *runState) map[string]any {
	if rs == nil {
		return nil
	}
	out := make(map[string]any)
	for _, a := range def.Actions {
		if len(a.Outgoing) != 0 {
			continue
		}
		rs.mu.Lock()
		outputs := rs.outputs[a.Ref]
		rs.mu.Unlock()
		for k, v := range outputs {
			out[k] = v
		}
	}
	return out
}
