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

// Package subworkflow holds the shared request/resolution types for
// the sub-workflow call (spec §4.9, C9): the orchestrator-native
// component `core.workflow.call` that starts a child run instead of
// executing a user function.
//
// This package deliberately holds no scheduling logic of its own —
// that lives in pkg/engine/orchestrator, which depends on this package
// rather than the reverse, the way the teacher's
// pkg/workflow/subworkflow registers a loader factory with pkg/workflow
// via workflow.SetDefaultSubworkflowLoaderFactory to avoid an import
// cycle between the two. Here the cycle is avoided more directly: the
// orchestrator already owns graph resolution and scheduling, so the
// only thing worth sharing out is the small vocabulary of request/
// result types a WorkflowResolver exchanges with it.
package subworkflow

import (
	"fmt"

	"github.com/graphforge/core/pkg/engine/compiler"
)

// ComponentID identifies the orchestrator-native sub-workflow-call
// component (spec §4.9). The compiler and registry both treat it as an
// ordinary component reference; only the orchestrator special-cases it.
const ComponentID = "core.workflow.call"

// MaxNestingDepth bounds how many levels of parent→child runs may
// stack, mirroring subworkflow.Loader's MaxNestingDepth guard against
// runaway recursive sub-workflow calls, generalized from a file-load
// depth counter to a live run-nesting counter.
const MaxNestingDepth = 5

// VersionStrategy selects which version of a named workflow a
// core.workflow.call node resolves to (spec §4.5 "versionStrategy").
type VersionStrategy string

const (
	VersionLatest   VersionStrategy = "latest"
	VersionSpecific VersionStrategy = "specific"
)

// CallParams is the parsed parameter set of a core.workflow.call node.
type CallParams struct {
	WorkflowID      string
	VersionStrategy VersionStrategy
	VersionID       string
}

// Resolver resolves a named, versioned workflow to its compiled
// Definition so the orchestrator can start a child run against it.
// Out of scope per spec §1 (workflow storage/versioning is not this
// module's concern) — only the interface the orchestrator consumes is
// fixed here.
type Resolver interface {
	Resolve(workflowID string, strategy VersionStrategy, versionID string) (*compiler.Definition, error)
}

// TooDeepError is returned when starting a child run would exceed
// MaxNestingDepth.
type TooDeepError struct {
	Depth int
}

func (e *TooDeepError) Error() string {
	return fmt.Sprintf("subworkflow: nesting depth %d exceeds maximum %d", e.Depth, MaxNestingDepth)
}
