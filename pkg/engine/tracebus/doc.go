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

// Package tracebus is the purely in-memory, per-run trace channel
// (spec §4.3/C5): a live-tail fan-out layer generalized from the
// teacher's internal/daemon/runner LogAggregator (per-run subscriber
// channels, non-blocking send with a full channel evicting the slow
// reader rather than just skipping one entry — spec §4.3
// "back-pressure ... may be dropped but never sees reorderings").
// Durability is provided by pkg/engine/store; the bus only assigns no
// new cursors of its own — it relays events already cursor-stamped by
// the store's AppendEvents.
package tracebus
