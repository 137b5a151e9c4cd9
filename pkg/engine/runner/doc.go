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

// Package runner holds the non-inline runtime.Runner adapters (spec
// §4.7, C8): ContainerRunner dispatches a RunnerContainer component by
// running it as a one-shot Docker/Podman container, writing the
// activity's inputs/params/context to its stdin as a single JSON
// document and reading newline-delimited progress/result/error events
// back off its stdout.
//
// It is grounded on pkg/security/sandbox/docker.go's runtime-detection
// and exec.CommandContext plumbing for container lifecycle, and on
// internal/action/shell/action.go's stdout/stderr capture shape for a
// single external-process invocation — generalized here from a shell
// command's plain-text stdout to the spec's structured NDJSON protocol,
// and from a long-lived sandbox to a one-shot "docker run --rm -i"
// invocation per activity attempt, since the orchestrator's retry loop
// already supplies the attempt/backoff semantics a persistent sandbox
// would otherwise need to provide.
package runner
