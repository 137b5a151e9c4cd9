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

package runtime

import (
	"context"
	"time"

	"github.com/graphforge/core/pkg/engine/errkind"
	"github.com/graphforge/core/pkg/engine/registry"
	"github.com/graphforge/core/pkg/engine/store"
)

// emitStarted records the STARTED event on entry to an attempt (spec
// §4.4 step 6). append is fire-and-forget from Invoke's perspective:
// a trace-append failure is logged, not surfaced as an activity
// failure, since losing an observability event must never fail the
// underlying work.
func (rt *Runtime) emitStarted(ctx context.Context, req InvokeRequest, attempt int) {
	rt.append(ctx, req, store.Event{
		RunID:   req.RunID,
		NodeRef: req.NodeRef,
		Attempt: attempt,
		Type:    store.EventStarted,
		Level:   store.LevelInfo,
	})
}

// emitProgress records a PROGRESS event raised by the component itself
// via ActivityContext.EmitProgress.
func (rt *Runtime) emitProgress(ctx context.Context, req InvokeRequest, attempt int, ev registry.ProgressEvent) {
	level := store.EventLevel(ev.Level)
	if level == "" {
		level = store.LevelInfo
	}
	rt.append(ctx, req, store.Event{
		RunID:   req.RunID,
		NodeRef: req.NodeRef,
		Attempt: attempt,
		Type:    store.EventProgress,
		Level:   level,
		Message: ev.Message,
		Data:    ev.Data,
	})
}

// emitCompleted records the COMPLETED event with the elided
// outputSummary on success (spec §4.4 step 6).
func (rt *Runtime) emitCompleted(ctx context.Context, req InvokeRequest, attempt int, outputs map[string]any) {
	rt.append(ctx, req, store.Event{
		RunID:   req.RunID,
		NodeRef: req.NodeRef,
		Attempt: attempt,
		Type:    store.EventCompleted,
		Level:   store.LevelInfo,
		Data:    map[string]any{"outputSummary": summarizeOutputs(outputs)},
	})
}

// emitFailed records the FAILED event with {message, kind} on failure
// (spec §4.4 step 6).
func (rt *Runtime) emitFailed(ctx context.Context, req InvokeRequest, attempt int, err error, kind errkind.Kind) {
	rt.append(ctx, req, store.Event{
		RunID:   req.RunID,
		NodeRef: req.NodeRef,
		Attempt: attempt,
		Type:    store.EventFailed,
		Level:   store.LevelError,
		Message: err.Error(),
		Failure: &store.Failure{Reason: err.Error(), Kind: string(kind)},
	})
}

func (rt *Runtime) append(ctx context.Context, req InvokeRequest, ev store.Event) {
	if rt.trace == nil {
		return
	}
	ev.Timestamp = time.Now().UTC()
	if _, err := rt.trace.AppendEvents(ctx, req.RunID, []store.Event{ev}); err != nil {
		rt.logger.Error("runtime: failed to append trace event", "runId", req.RunID, "nodeRef", req.NodeRef, "eventType", ev.Type, "error", err)
	}
}
