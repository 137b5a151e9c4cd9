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
	"fmt"

	"github.com/graphforge/core/pkg/engine/errkind"
	"github.com/graphforge/core/pkg/engine/ports"
	"github.com/graphforge/core/pkg/engine/registry"
)

// ResolveInputs applies input routing and coercion (spec §4.4 steps
// 3-4) to produce the map Execute receives as ActivityInput.Inputs.
//
// For each declared input port, the mapped upstream value and any
// manual override are reconciled according to the port's valuePriority
// (auto-first prefers mapped, manual-first prefers override); the
// winning raw value is then coerced to the port's declared schema.
// Failed coercion is a warning unless the port is required, in which
// case it fails the activity with a ValidationError ActivityError.
func ResolveInputs(specs []registry.PortSpec, mapped, overrides map[string]any) (map[string]any, []string, error) {
	result := make(map[string]any, len(specs))
	var warnings []string

	for _, spec := range specs {
		raw, has := routeValue(spec, mapped, overrides)
		if !has {
			if spec.Required {
				return nil, warnings, &ActivityError{
					Kind:    errkind.ValidationError,
					Message: fmt.Sprintf("missing required input %q", spec.Handle),
				}
			}
			continue
		}

		coerced, ok := coerceValue(raw, spec.Schema)
		if !ok {
			warnings = append(warnings, fmt.Sprintf(
				"input %q: %s", spec.Handle, ports.DescribeFailure(fmt.Sprintf("%T", raw), scalarOf(spec.Schema))))
			if spec.Required {
				return nil, warnings, &ActivityError{
					Kind:    errkind.ValidationError,
					Message: fmt.Sprintf("input %q failed coercion to %s", spec.Handle, spec.Schema),
				}
			}
			continue
		}
		result[spec.Handle] = coerced
	}

	return result, warnings, nil
}

func routeValue(spec registry.PortSpec, mapped, overrides map[string]any) (any, bool) {
	mv, hasMapped := mapped[spec.Handle]
	ov, hasOverride := overrides[spec.Handle]

	if spec.IsManualFirst() {
		if hasOverride {
			return ov, true
		}
		return mv, hasMapped
	}
	if hasMapped {
		return mv, true
	}
	return ov, hasOverride
}

// coerceValue applies the port-type coercion table to a single routed
// value, dispatching on the schema's Kind (scalars use CoerceScalar,
// lists use CoerceList element-wise, maps/contracts/any pass through
// unchanged per spec §4.4 step 4, which defines coercion only for
// scalars and lists).
func coerceValue(value any, schema ports.Type) (any, bool) {
	switch schema.Kind {
	case ports.KindPrimitive:
		if schema.Primitive == ports.PrimitiveAny {
			return value, true
		}
		return ports.CoerceScalar(value, schema.Primitive)
	case ports.KindList:
		values, ok := value.([]any)
		if !ok {
			return nil, false
		}
		if schema.Element == nil || schema.Element.Kind != ports.KindPrimitive {
			return value, true
		}
		return ports.CoerceList(values, schema.Element.Primitive)
	default:
		return value, true
	}
}

func scalarOf(schema ports.Type) ports.Primitive {
	if schema.Kind == ports.KindList && schema.Element != nil {
		return schema.Element.Primitive
	}
	return schema.Primitive
}
