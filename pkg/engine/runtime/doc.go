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

// Package runtime is the activity runtime (spec §4.4, C6): it resolves
// a component's effective ports, routes and coerces inputs, dispatches
// to the configured runner, records the STARTED/PROGRESS/COMPLETED/
// FAILED trace events, and enforces the component's retry policy.
//
// It is grounded on the teacher's pkg/workflow/executor.go
// executeWithRetry backoff loop (the same select-on-ctx.Done/time.After
// shape, generalized from a fixed step-retry list to the closed
// errkind.Kind taxonomy of spec §4.4/§7) and on pkg/errors' typed-struct
// error convention for ActivityError.
package runtime
