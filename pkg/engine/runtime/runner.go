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
	"fmt"

	"github.com/graphforge/core/pkg/engine/errkind"
	"github.com/graphforge/core/pkg/engine/registry"
)

// Runner dispatches one activity attempt for a component definition.
// inlineRunner below and pkg/engine/runner's ContainerRunner implement
// this (spec §4.7, C8); the runtime only ever talks to this interface, never
// to a concrete adapter, so C8 can be swapped or extended without this
// package changing (spec §6 "transport-agnostic").
type Runner interface {
	Dispatch(ctx context.Context, def *registry.Definition, in registry.ActivityInput, actx *registry.ActivityContext) (registry.ActivityOutput, error)
}

// inlineRunner is the zero-configuration default for RunnerInline
// components: it calls the component's Execute function directly in
// the current goroutine, matching pkg/workflow/executor.go's direct
// Go-function dispatch for non-integration step types.
type inlineRunner struct{}

func (inlineRunner) Dispatch(ctx context.Context, def *registry.Definition, in registry.ActivityInput, actx *registry.ActivityContext) (registry.ActivityOutput, error) {
	if def.Execute == nil {
		return registry.ActivityOutput{}, &ActivityError{
			ComponentRef: def.ID,
			Kind:         errkind.ConfigurationError,
			Message:      fmt.Sprintf("component %q declares runner=inline but has no Execute bound", def.ID),
		}
	}
	return def.Execute(ctx, in, actx)
}
