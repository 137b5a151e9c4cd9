package runtime_test

import (
	"testing"

	"github.com/graphforge/core/pkg/engine/ports"
	"github.com/graphforge/core/pkg/engine/registry"
	"github.com/graphforge/core/pkg/engine/runtime"
)

func TestResolveInputsAutoFirstPrefersMapped(t *testing.T) {
	specs := []registry.PortSpec{
		{Handle: "x", Schema: ports.Prim(ports.PrimitiveText)},
	}
	got, _, err := runtime.ResolveInputs(specs, map[string]any{"x": "mapped"}, map[string]any{"x": "override"})
	if err != nil {
		t.Fatalf("ResolveInputs: %v", err)
	}
	if got["x"] != "mapped" {
		t.Errorf("x = %v, want mapped (auto-first default)", got["x"])
	}
}

func TestResolveInputsManualFirstPrefersOverride(t *testing.T) {
	specs := []registry.PortSpec{
		{Handle: "x", Schema: ports.Prim(ports.PrimitiveText), ValuePriority: "manual-first"},
	}
	got, _, err := runtime.ResolveInputs(specs, map[string]any{"x": "mapped"}, map[string]any{"x": "override"})
	if err != nil {
		t.Fatalf("ResolveInputs: %v", err)
	}
	if got["x"] != "override" {
		t.Errorf("x = %v, want override (manual-first)", got["x"])
	}
}

func TestResolveInputsCoercesTextToNumber(t *testing.T) {
	specs := []registry.PortSpec{
		{Handle: "n", Schema: ports.Prim(ports.PrimitiveNumber, ports.PrimitiveText)},
	}
	got, warnings, err := runtime.ResolveInputs(specs, map[string]any{"n": "42"}, nil)
	if err != nil {
		t.Fatalf("ResolveInputs: %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("unexpected warnings: %v", warnings)
	}
	if got["n"] != float64(42) {
		t.Errorf("n = %v (%T), want float64(42)", got["n"], got["n"])
	}
}

func TestResolveInputsMissingRequiredFails(t *testing.T) {
	specs := []registry.PortSpec{
		{Handle: "x", Schema: ports.Prim(ports.PrimitiveText), Required: true},
	}
	_, _, err := runtime.ResolveInputs(specs, nil, nil)
	if err == nil {
		t.Fatal("expected error for missing required input")
	}
	ae, ok := err.(*runtime.ActivityError)
	if !ok {
		t.Fatalf("expected *ActivityError, got %T", err)
	}
	if ae.Kind != "ValidationError" {
		t.Errorf("Kind = %q, want ValidationError", ae.Kind)
	}
}

func TestResolveInputsFailedCoercionOnOptionalIsWarningOnly(t *testing.T) {
	specs := []registry.PortSpec{
		{Handle: "n", Schema: ports.Prim(ports.PrimitiveNumber)},
	}
	got, warnings, err := runtime.ResolveInputs(specs, map[string]any{"n": "not-a-number"}, nil)
	if err != nil {
		t.Fatalf("ResolveInputs: %v", err)
	}
	if _, set := got["n"]; set {
		t.Error("expected field to be left unset after failed coercion")
	}
	if len(warnings) != 1 {
		t.Errorf("expected one warning, got %v", warnings)
	}
}

func TestResolveInputsFailedCoercionOnRequiredFails(t *testing.T) {
	specs := []registry.PortSpec{
		{Handle: "n", Schema: ports.Prim(ports.PrimitiveNumber), Required: true},
	}
	_, _, err := runtime.ResolveInputs(specs, map[string]any{"n": "not-a-number"}, nil)
	if err == nil {
		t.Fatal("expected error for required field with failed coercion")
	}
}

func TestResolveInputsListElementWiseCoercion(t *testing.T) {
	specs := []registry.PortSpec{
		{Handle: "items", Schema: ports.List(ports.Prim(ports.PrimitiveNumber, ports.PrimitiveText))},
	}
	got, _, err := runtime.ResolveInputs(specs, map[string]any{"items": []any{"1", "2", "3"}}, nil)
	if err != nil {
		t.Fatalf("ResolveInputs: %v", err)
	}
	list, ok := got["items"].([]any)
	if !ok || len(list) != 3 {
		t.Fatalf("items = %v, want 3-element list", got["items"])
	}
	if list[0] != float64(1) {
		t.Errorf("items[0] = %v, want float64(1)", list[0])
	}
}
