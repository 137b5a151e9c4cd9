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

// Package orchestrator is the workflow orchestrator (spec §4.5-§4.6,
// C7): a single-writer-per-run cooperative scheduling loop over a
// compiled compiler.Definition, driving each action through
// waiting→ready→running→(succeeded|failed|skipped) via dependency
// counters and success/failure edge routing, honoring join strategies
// (all/any/first), cancellation, timeouts, and replay-safe durability
// through pkg/engine/store.
//
// It is grounded on two teacher-adjacent shapes: pkg/workflow/
// executor.go's parallelSem-bounded goroutine-plus-results-channel
// pattern (executeParallel) for concurrent dispatch under a
// concurrency cap, and dshills-langgraph-go/graph/scheduler.go's
// queue-driven dispatch loop for the general shape of "drain a
// frontier of ready work, dispatch under a cap, feed completions back
// into readiness" — generalized here from a priority-ordered generic
// frontier to the dependency-counter/edge-kind model spec.md §4.5
// requires, since neither teacher nor pack repo implements dependency-
// counter DAG scheduling with success/failure routing directly.
package orchestrator
