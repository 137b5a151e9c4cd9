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

// Package compiler validates a UI graph submission and lowers it into a
// canonical workflow definition (spec §4.1/C3): component resolution
// and resolvePorts, port-type-compatibility checking, cycle detection,
// entrypoint selection, topological ordering, and dependency-count
// computation. It is grounded on the teacher's
// sdk.WorkflowBuilder.Build validation pass (unique IDs, dependency
// existence checks) generalized from a linear step list to a
// DAG-with-ports model, with cycle detection via three-colour DFS in
// the style of the graph-scheduling reference package in the pack.
package compiler
