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

// Package store is the execution store (spec §4.2/C4): the durable,
// idempotent-under-(runId,nodeRef,attempt) record of runs, node I/O,
// and trace events. It follows the interface-segregation design of
// internal/controller/backend (RunStore core + optional RunLister /
// CheckpointStore) — here split into a single Store interface composed
// of focused method groups so a minimal in-memory implementation and a
// durable SQLite implementation (pkg/engine/store/sqlite) can both
// satisfy it, with payload spill to blob storage
// (pkg/engine/store/blob) handled by a wrapping decorator rather than
// baked into either backend.
package store
