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

// Package builtins is a small reference catalog registered by default
// into cmd/graphcore: the component catalog itself is out of scope
// (spec.md §1 Non-goals — "only the contract between core and
// components is fixed"), but the CLI needs something runnable to
// demonstrate compile/run/trace against, the way the teacher's
// `internal/action` packages ship a handful of built-in connectors
// (shell, http, ...) alongside the SDK that lets callers add their own.
package builtins

import (
	"context"
	"fmt"

	"github.com/graphforge/core/pkg/engine/ports"
	"github.com/graphforge/core/pkg/engine/registry"
)

func anyPort(handle string) registry.PortSpec {
	return registry.PortSpec{Handle: handle, Schema: ports.Prim(ports.PrimitiveAny)}
}

// Const emits a single fixed output taken verbatim from its "value"
// parameter. Typically used as an entrypoint when a workflow needs a
// literal rather than runtime-supplied input.
func Const() *registry.Definition {
	return &registry.Definition{
		ID:         "core.util.const",
		Label:      "Constant",
		Category:   "util",
		Parameters: []registry.PortSpec{anyPort("value")},
		Outputs:    []registry.PortSpec{anyPort("value")},
		Runner:     registry.Runner{Kind: registry.RunnerInline},
		Execute: func(ctx context.Context, in registry.ActivityInput, actx *registry.ActivityContext) (registry.ActivityOutput, error) {
			return registry.ActivityOutput{Outputs: map[string]any{"value": in.Params["value"]}}, nil
		},
	}
}

// Echo passes its "in" input straight through to "out", unchanged.
// Useful as a no-op placeholder node while sketching a graph.
func Echo() *registry.Definition {
	return &registry.Definition{
		ID:       "core.util.echo",
		Label:    "Echo",
		Category: "util",
		Inputs:   []registry.PortSpec{anyPort("in")},
		Outputs:  []registry.PortSpec{anyPort("out")},
		Runner:   registry.Runner{Kind: registry.RunnerInline},
		Execute: func(ctx context.Context, in registry.ActivityInput, actx *registry.ActivityContext) (registry.ActivityOutput, error) {
			return registry.ActivityOutput{Outputs: map[string]any{"out": in.Inputs["in"]}}, nil
		},
	}
}

// Log writes its "message" input to the activity logger (stdout
// during a CLI run) and passes it through unchanged on "out", so it
// can be inserted mid-pipeline purely for visibility.
func Log() *registry.Definition {
	return &registry.Definition{
		ID:       "core.util.log",
		Label:    "Log",
		Category: "util",
		Inputs:   []registry.PortSpec{anyPort("message")},
		Outputs:  []registry.PortSpec{anyPort("out")},
		Runner:   registry.Runner{Kind: registry.RunnerInline},
		Execute: func(ctx context.Context, in registry.ActivityInput, actx *registry.ActivityContext) (registry.ActivityOutput, error) {
			if actx.Logger != nil {
				actx.Logger.Info("core.util.log", "message", in.Inputs["message"])
			}
			return registry.ActivityOutput{Outputs: map[string]any{"out": in.Inputs["message"]}}, nil
		},
	}
}

// Fail always fails with a ServiceError, carrying its "message"
// parameter as the failure detail. Useful for exercising a workflow's
// failure-edge routing from the CLI without standing up a real
// integration that can fail.
func Fail() *registry.Definition {
	return &registry.Definition{
		ID:         "core.util.fail",
		Label:      "Fail",
		Category:   "util",
		Parameters: []registry.PortSpec{{Handle: "message", Schema: ports.Prim(ports.PrimitiveText)}},
		Outputs:    []registry.PortSpec{anyPort("out")},
		Runner:     registry.Runner{Kind: registry.RunnerInline},
		Execute: func(ctx context.Context, in registry.ActivityInput, actx *registry.ActivityContext) (registry.ActivityOutput, error) {
			msg, _ := in.Params["message"].(string)
			if msg == "" {
				msg = "core.util.fail: unconditional failure"
			}
			return registry.ActivityOutput{}, fmt.Errorf("%s", msg)
		},
	}
}

// RegisterAll registers every built-in component into reg, returning
// the first registration error encountered, if any.
func RegisterAll(reg *registry.Registry) error {
	for _, def := range []*registry.Definition{Const(), Echo(), Log(), Fail()} {
		if err := reg.Register(def); err != nil {
			return err
		}
	}
	return nil
}
